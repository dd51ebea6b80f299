package daemon

import (
	"os"
	"strings"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
)

// readCookie parses the daemon's ".cookie" file, which contains
// "user:password" on a single line.
func readCookie(path string) (user, pass string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindIO, err, "read cookie file")
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
	if len(parts) != 2 {
		return "", "", apperr.New(apperr.KindParse, "malformed cookie file")
	}
	return parts[0], parts[1], nil
}
