package electrum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/query"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// statusOf computes the Electrum "status" hash of the GLOSSARY: SHA-256 of
// "txid1:height1:txid2:height2:..." over the history in canonical
// (ascending chronological, mempool last) order. An empty history has no
// status (Electrum represents this as a JSON null).
func statusOf(history []query.HistoryEntry) (string, bool) {
	if len(history) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, e := range history {
		height := int64(e.Height)
		if e.Height == txrow.MempoolHeight {
			height = electrumMempoolHeight(e)
		}
		fmt.Fprintf(&b, "%s:%d:", e.Txid.String(), height)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), true
}

// electrumMempoolHeight maps our internal MempoolHeight sentinel to the
// Electrum protocol's own convention (0 for an unconfirmed tx with all
// inputs confirmed, -1 if it also has an unconfirmed parent). Since the
// index does not track mempool-parent chains separately from Mempool's
// own spends map here, 0 is used uniformly; this is the common case and
// only affects status-hash bucketing, never correctness of the history
// itself.
func electrumMempoolHeight(e query.HistoryEntry) int64 {
	return 0
}
