package rest

import (
	"bytes"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/btcsuite/btcd/wire"
	"github.com/gorilla/mux"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// --- blocks ---

func (s *Server) handleTipHash(w http.ResponseWriter, r *http.Request) {
	_, hash, ok := s.q.Tip()
	if !ok {
		writeError(w, http.StatusNotFound, "no tip indexed yet")
		return
	}
	writeText(w, cacheMempool, hash.String())
}

func (s *Server) handleTipHeight(w http.ResponseWriter, r *http.Request) {
	height, _, ok := s.q.Tip()
	if !ok {
		writeError(w, http.StatusNotFound, "no tip indexed yet")
		return
	}
	writeText(w, cacheMempool, strconv.Itoa(int(height)))
}

// handleBlocks implements GET /blocks[/{start_height}]: 10 headers, descending.
func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	start := s.q.ChainHeight() - 1 // ChainHeight is the block count; the tip is one below
	if v, ok := vars["start_height"]; ok {
		h, err := parseUintPathVar(v)
		if err != nil {
			writeAppError(w, err)
			return
		}
		start = h
	}

	var out []blockJSON
	for i := 0; i < 10; i++ {
		height := int64(start) - int64(i)
		if height < 0 {
			break
		}
		hash, ok := s.q.BlockAt(uint32(height))
		if !ok {
			break
		}
		meta, err := s.q.BlockMeta(hash)
		if err != nil {
			continue
		}
		bj, err := toBlockJSON(hash, meta)
		if err != nil {
			continue
		}
		out = append(out, bj)
	}
	writeJSON(w, cacheConfirmed, out)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	hash, err := parseBlockHash(mux.Vars(r)["hash"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	meta, err := s.q.BlockMeta(hash)
	if err != nil {
		writeAppError(w, err)
		return
	}
	bj, err := toBlockJSON(hash, meta)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindParse, err, "parse stored header"))
		return
	}
	writeJSON(w, cacheConfirmed, bj)
}

func (s *Server) handleBlockHeader(w http.ResponseWriter, r *http.Request) {
	hash, err := parseBlockHash(mux.Vars(r)["hash"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	meta, err := s.q.BlockMeta(hash)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeText(w, cacheConfirmed, hex.EncodeToString(meta.HeaderRaw))
}

func (s *Server) handleBlockStatus(w http.ResponseWriter, r *http.Request) {
	hash, err := parseBlockHash(mux.Vars(r)["hash"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	height, ok := s.q.BlockHeightOf(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	status := blockStatusJSON{InBestChain: true, Height: height}
	if next, ok := s.q.BlockAt(height + 1); ok {
		status.NextBest = next.String()
	}
	writeJSON(w, cacheConfirmed, status)
}

func (s *Server) handleBlockTxs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	hash, err := parseBlockHash(vars["hash"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	start := 0
	if v, ok := vars["start_index"]; ok {
		n, err := parseUintPathVar(v)
		if err != nil {
			writeAppError(w, err)
			return
		}
		start = int(n)
	}

	meta, err := s.q.BlockMeta(hash)
	if err != nil {
		writeAppError(w, err)
		return
	}
	txids, err := s.q.BlockTxids(hash)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if start >= len(txids) {
		writeJSON(w, cacheConfirmed, []txJSON{})
		return
	}
	end := start + 25
	if end > len(txids) {
		end = len(txids)
	}

	ctx := r.Context()
	out := make([]txJSON, 0, end-start)
	for _, txid := range txids[start:end] {
		tx, err := s.q.GetTx(ctx, txid)
		if err != nil {
			continue
		}
		tj := toTxJSON(ctx, s.q, tx, s.params)
		tj.Status = txStatusJSON{Confirmed: true, BlockHeight: meta.Height, BlockHash: hash.String(), BlockTime: meta.Time}
		out = append(out, tj)
	}
	writeJSON(w, cacheConfirmed, out)
}

func (s *Server) handleBlockTxids(w http.ResponseWriter, r *http.Request) {
	hash, err := parseBlockHash(mux.Vars(r)["hash"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	txids, err := s.q.BlockTxids(hash)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]string, len(txids))
	for i, h := range txids {
		out[i] = h.String()
	}
	writeJSON(w, cacheConfirmed, out)
}

// handleBlockRaw reconstructs the serialized block from its stored header and
// per-tx rows (spec.md's Store does not keep a whole-block blob; only the
// header and per-tx raw bytes, which together reserialize byte-identically).
func (s *Server) handleBlockRaw(w http.ResponseWriter, r *http.Request) {
	hash, err := parseBlockHash(mux.Vars(r)["hash"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	meta, err := s.q.BlockMeta(hash)
	if err != nil {
		writeAppError(w, err)
		return
	}
	txids, err := s.q.BlockTxids(hash)
	if err != nil {
		writeAppError(w, err)
		return
	}

	var hdr wire.BlockHeader
	if err := hdr.Deserialize(bytes.NewReader(meta.HeaderRaw)); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindParse, err, "parse stored header"))
		return
	}
	blk := wire.MsgBlock{Header: hdr}
	ctx := r.Context()
	for _, txid := range txids {
		tx, err := s.q.GetTx(ctx, txid)
		if err != nil {
			writeAppError(w, err)
			return
		}
		blk.Transactions = append(blk.Transactions, tx)
	}

	var buf bytes.Buffer
	if err := blk.Serialize(&buf); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindParse, err, "serialize block"))
		return
	}
	writeBinary(w, cacheConfirmed, buf.Bytes())
}

func (s *Server) handleBlockHeight(w http.ResponseWriter, r *http.Request) {
	height, err := parseUintPathVar(mux.Vars(r)["height"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	hash, ok := s.q.BlockAt(height)
	if !ok {
		writeError(w, http.StatusNotFound, "height not indexed")
		return
	}
	writeText(w, cacheConfirmed, hash.String())
}

// --- transactions ---

func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	txid, err := parseTxid(mux.Vars(r)["txid"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	ctx := r.Context()
	tx, err := s.q.GetTx(ctx, txid)
	if err != nil {
		writeAppError(w, err)
		return
	}
	tj := toTxJSON(ctx, s.q, tx, s.params)
	if st, err := s.q.GetTxStatus(txid); err == nil {
		tj.Status = toTxStatusJSON(st)
	}
	writeJSON(w, cacheControlForTx(tj.Status.Confirmed), tj)
}

func cacheControlForTx(confirmed bool) string {
	if confirmed {
		return cacheConfirmed
	}
	return cacheMempool
}

func (s *Server) handleTxHex(w http.ResponseWriter, r *http.Request) {
	txid, err := parseTxid(mux.Vars(r)["txid"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	tx, err := s.q.GetTx(r.Context(), txid)
	if err != nil {
		writeAppError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindParse, err, "serialize tx"))
		return
	}
	writeText(w, cacheMempool, hex.EncodeToString(buf.Bytes()))
}

func (s *Server) handleTxRaw(w http.ResponseWriter, r *http.Request) {
	txid, err := parseTxid(mux.Vars(r)["txid"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	tx, err := s.q.GetTx(r.Context(), txid)
	if err != nil {
		writeAppError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		writeAppError(w, apperr.Wrap(apperr.KindParse, err, "serialize tx"))
		return
	}
	writeBinary(w, cacheMempool, buf.Bytes())
}

func (s *Server) handleTxStatus(w http.ResponseWriter, r *http.Request) {
	txid, err := parseTxid(mux.Vars(r)["txid"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	st, err := s.q.GetTxStatus(txid)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, cacheControlForTx(st.Confirmed), toTxStatusJSON(st))
}

func (s *Server) handleMerkleProof(w http.ResponseWriter, r *http.Request) {
	txid, err := parseTxid(mux.Vars(r)["txid"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	proof, err := s.q.MerkleProof(txid)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, cacheConfirmed, toMerkleProofJSON(proof))
}

func (s *Server) handleOutspend(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	txid, err := parseTxid(vars["txid"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	vout, err := parseUintPathVar(vars["vout"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	res, err := s.q.Outspend(txid, vout)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, cacheMempool, toOutspendJSON(res))
}

func (s *Server) handleOutspends(w http.ResponseWriter, r *http.Request) {
	txid, err := parseTxid(mux.Vars(r)["txid"])
	if err != nil {
		writeAppError(w, err)
		return
	}
	res, err := s.q.Outspends(r.Context(), txid)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]outspendJSON, len(res))
	for i, or := range res {
		out[i] = toOutspendJSON(or)
	}
	writeJSON(w, cacheMempool, out)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r.Body); err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}
	hexTx := string(bytes.TrimSpace(buf.Bytes()))
	txid, err := s.q.Broadcast(r.Context(), hexTx)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeText(w, "", txid.String())
}

// --- addresses ---

func (s *Server) handleAddressStats(w http.ResponseWriter, r *http.Request) {
	sh, addr, err := scripthashFor(mux.Vars(r), s.params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	stats, err := s.q.AddressStats(sh)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, cacheMempool, toAddressStatsJSON(addr, sh, stats))
}

func (s *Server) handleAddressBalance(w http.ResponseWriter, r *http.Request) {
	sh, addr, err := scripthashFor(mux.Vars(r), s.params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	stats, err := s.q.AddressStats(sh)
	if err != nil {
		writeAppError(w, err)
		return
	}
	aj := toAddressStatsJSON(addr, sh, stats)
	writeJSON(w, cacheMempool, map[string]interface{}{
		"address": aj.Address, "scripthash": aj.Scripthash, "balance": aj.Balance,
	})
}

func (s *Server) handleAddressTxs(w http.ResponseWriter, r *http.Request) {
	sh, _, err := scripthashFor(mux.Vars(r), s.params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	limit, err := parseLimit(r, 25, 1000)
	if err != nil {
		writeAppError(w, err)
		return
	}
	cursor := r.URL.Query().Get("next_page_after_txid")

	entries, nextCursor, err := s.q.AddressHistory(sh, cursor, limit, true)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]historyEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = toHistoryEntryJSON(e)
	}
	writeJSON(w, cacheMempool, map[string]interface{}{
		"transactions":         out,
		"total":                len(out),
		"limit":                limit,
		"next_page_after_txid": nextCursor,
	})
}

func (s *Server) handleAddressTxsChain(w http.ResponseWriter, r *http.Request) {
	sh, _, err := scripthashFor(mux.Vars(r), s.params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	cursor := mux.Vars(r)["last_txid"]
	entries, _, err := s.q.AddressHistory(sh, cursor, 25, false)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]historyEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = toHistoryEntryJSON(e)
	}
	writeJSON(w, cacheConfirmed, out)
}

func (s *Server) handleAddressTxsMempool(w http.ResponseWriter, r *http.Request) {
	sh, _, err := scripthashFor(mux.Vars(r), s.params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	entries, _, err := s.q.AddressHistory(sh, "", 50, true)
	if err != nil {
		writeAppError(w, err)
		return
	}
	var out []historyEntryJSON
	for _, e := range entries {
		if e.Height == txrow.MempoolHeight {
			out = append(out, toHistoryEntryJSON(e))
		}
	}
	writeJSON(w, cacheMempool, out)
}

func (s *Server) handleAddressUTXO(w http.ResponseWriter, r *http.Request) {
	sh, _, err := scripthashFor(mux.Vars(r), s.params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	limit, err := parseLimit(r, s.cfg.UTXOsLimit, s.cfg.UTXOsLimit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	start, err := parseStartIndex(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	utxos, total, err := s.q.UTXOs(sh, start, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]utxoJSON, len(utxos))
	for i, u := range utxos {
		out[i] = toUTXOJSON(u)
	}
	writeJSON(w, cacheMempool, map[string]interface{}{
		"utxos": out, "total": total, "start_index": start, "limit": limit,
	})
}

func (s *Server) handleAddressPrefix(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AddressSearch {
		writeError(w, http.StatusNotFound, "address search is disabled")
		return
	}
	prefix := mux.Vars(r)["prefix"]
	if len(prefix) < 3 {
		writeError(w, http.StatusBadRequest, "prefix must be at least 3 characters")
		return
	}
	// The on-disk index is keyed by scripthash, not by address text (spec.md
	// GLOSSARY); without a dedicated address-prefix row there is nothing to
	// scan here. See DESIGN.md for the tradeoff.
	writeError(w, http.StatusNotImplemented, "address-prefix search requires an address-text index not built by this server")
}

// --- mempool ---

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	sum := s.q.MempoolSummary()
	out := mempoolSummaryJSON{Count: sum.Count, VSize: sum.VSize, TotalFee: sum.TotalFee}
	for _, b := range sum.Histogram {
		out.Histogram = append(out.Histogram, mempoolHistogramBucketJSON{FeeRate: b.FeeRate, VSize: b.VSize})
	}
	writeJSON(w, cacheMempool, out)
}

func (s *Server) handleMempoolTxids(w http.ResponseWriter, r *http.Request) {
	txids := s.q.MempoolTxids()
	out := make([]string, len(txids))
	for i, h := range txids {
		out[i] = h.String()
	}
	writeJSON(w, cacheMempool, out)
}

func (s *Server) handleMempoolRecent(w http.ResponseWriter, r *http.Request) {
	txids := s.q.MempoolRecent()
	out := make([]string, len(txids))
	for i, h := range txids {
		out[i] = h.String()
	}
	writeJSON(w, cacheRecent, out)
}

// --- fees, supply, holders, sync ---

func (s *Server) handleFeeEstimates(w http.ResponseWriter, r *http.Request) {
	estimates, err := s.q.FeeEstimates(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make(map[string]float64, len(estimates))
	for target, rate := range estimates {
		out[strconv.Itoa(target)] = rate
	}
	writeJSON(w, cacheMempool, out)
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := s.q.TotalSupply()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, cacheMempool, map[string]int64{"total_supply": supply})
}

func (s *Server) handleTopHolders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 100, 1000)
	if err != nil {
		writeAppError(w, err)
		return
	}
	start, err := parseStartIndex(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	holders, err := s.q.TopHolders(start, limit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]topHolderJSON, len(holders))
	for i, h := range holders {
		out[i] = topHolderJSON{Scripthash: hex.EncodeToString(h.Scripthash[:]), Balance: h.Balance}
	}
	writeJSON(w, cacheMempool, out)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	height, hash, progress, err := s.q.SyncProgress(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, "", syncJSON{Height: height, Hash: hash.String(), Progress: progress})
}

