package rest

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
)

func writeJSON(w http.ResponseWriter, cacheControl string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Error("encode json response")
	}
}

func writeText(w http.ResponseWriter, cacheControl, text string) {
	w.Header().Set("Content-Type", "text/plain")
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	_, _ = w.Write([]byte(text))
}

func writeBinary(w http.ResponseWriter, cacheControl string, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	_, _ = w.Write(data)
}

// writeError implements spec.md §7's user-visible failure shape.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// writeAppError maps a typed apperr.Kind to a status code per spec.md §7.
func writeAppError(w http.ResponseWriter, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case apperr.KindBadRequest:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.WithField("err", err).Error("internal error serving request")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseTxid(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, apperr.BadRequest("malformed txid")
	}
	return *h, nil
}

func parseBlockHash(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, apperr.BadRequest("malformed block hash")
	}
	return *h, nil
}

func parseUintPathVar(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, apperr.BadRequest("malformed integer path parameter")
	}
	return uint32(n), nil
}

// parseLimit parses the "limit" query parameter, defaulting and clamping it.
func parseLimit(r *http.Request, def, max int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, apperr.BadRequest("malformed limit")
	}
	if n > max {
		n = max
	}
	return n, nil
}

func parseStartIndex(r *http.Request) (int, error) {
	v := r.URL.Query().Get("start_index")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.BadRequest("malformed start_index")
	}
	return n, nil
}

// scripthashFor resolves a REST path segment to its canonical (big-endian)
// scripthash: /address/{addr} decodes an address under params, /scripthash/{h}
// decodes raw hex directly (this surface is independent of the Electrum
// protocol's little-endian wire convention; see chainparams.Scripthash.Electrum).
func scripthashFor(vars map[string]string, params chainparams.Params) (chainparams.Scripthash, string, error) {
	if addr, ok := vars["addr"]; ok {
		sh, err := chainparams.ScripthashForAddress(addr, params)
		if err != nil {
			return chainparams.Scripthash{}, "", apperr.BadRequest("malformed address")
		}
		return sh, addr, nil
	}
	raw, err := hex.DecodeString(vars["sh"])
	if err != nil || len(raw) != 32 {
		return chainparams.Scripthash{}, "", apperr.BadRequest("malformed scripthash")
	}
	var sh chainparams.Scripthash
	copy(sh[:], raw)
	return sh, "", nil
}
