// Package query implements the read-only façade of spec.md §4.7: every
// operation acquires a Store snapshot plus a copy-on-write reference to the
// current Mempool and Chain so a single request sees one internally
// consistent view, even while the indexer keeps writing in the background.
//
// Grounded on the teacher's pkg/core/mempool/mempool.go request/response
// shape (answer a read from whatever state is currently published, no
// locking against the writer) generalized from "in-mempool-only" reads to
// the full joined chain+mempool+store operation set spec.md §4.7 lists.
package query

import (
	"bytes"
	"context"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chain"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/daemon"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/mempool"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/store"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// historyKeyLen is the length of a history row's comparable prefix:
// tag|scripthash|height(be32)|pos(be32)|txid, before any per-subkind suffix
// (funding/txin/txout rows all extend this same prefix).
const historyKeyLen = 1 + 32 + 4 + 4 + 32

// Daemon is the subset of *daemon.Client the query façade falls back to: a
// few reads that are cheaper to proxy than to guarantee are always indexed
// (spec.md §4.7 get_tx's third fallback tier, fee_estimates, broadcast).
type Daemon interface {
	GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)
	SendRawTransaction(ctx context.Context, hexTx string) (chainhash.Hash, error)
	EstimateSmartFee(ctx context.Context, target int) (float64, bool, error)
	GetBestBlockHash(ctx context.Context) (chainhash.Hash, error)
	GetBlockHeader(ctx context.Context, hash chainhash.Hash) (daemon.Header, error)
}

// Query is the read-only façade. It never writes to Store except for the
// small derived X|scripthash stats cache rows that spec.md §4.7 explicitly
// describes the façade as maintaining; the fee-estimate cache is held in
// memory.
type Query struct {
	st     *store.Store
	ch     *chain.Chain
	mp     *mempool.Mempool
	daemon Daemon
	params chainparams.Params

	feeMu      sync.Mutex
	feeCache   map[int]float64
	feeCacheAt time.Time
}

// Params returns the network parameters the façade was constructed with, so
// callers (the REST and Electrum servers) can convert addresses to
// scripthashes consistently.
func (q *Query) Params() chainparams.Params { return q.params }

// New constructs a Query façade over the given collaborators.
func New(st *store.Store, ch *chain.Chain, mp *mempool.Mempool, daemon Daemon, params chainparams.Params) *Query {
	return &Query{st: st, ch: ch, mp: mp, daemon: daemon, params: params}
}

// GetTx implements spec.md §4.7 get_tx: store, then mempool, then daemon.
func (q *Query) GetTx(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	raw, err := q.st.Get(store.CFTxStore, txrow.RawTxKey(txid))
	if err != nil {
		return nil, err
	}
	if raw != nil {
		tx := wire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, apperr.Wrap(apperr.KindParse, err, "parse stored tx")
		}
		return &tx, nil
	}

	sn := q.mp.Snapshot()
	if tx, ok := sn.Tx(txid); ok {
		return tx, nil
	}

	if q.daemon == nil {
		return nil, apperr.NotFound("tx")
	}
	return q.daemon.GetRawTransaction(ctx, txid)
}

// TxStatus is the result of get_tx_status.
type TxStatus struct {
	Confirmed bool
	Height    uint32
	BlockHash chainhash.Hash
	BlockTime uint32
}

// GetTxStatus implements spec.md §4.7 get_tx_status.
func (q *Query) GetTxStatus(txid chainhash.Hash) (TxStatus, error) {
	raw, err := q.st.Get(store.CFTxStore, txrow.TxMetaKey(txid))
	if err != nil {
		return TxStatus{}, err
	}
	if raw != nil {
		tm, err := txrow.DecodeTxMeta(raw)
		if err != nil {
			return TxStatus{}, err
		}
		var blockTime uint32
		if metaRaw, err := q.st.Get(store.CFTxStore, txrow.BlockHeaderKey(tm.BlockHash)); err == nil && metaRaw != nil {
			if meta, err := txrow.DecodeBlockMeta(metaRaw); err == nil {
				blockTime = meta.Time
			}
		}
		return TxStatus{Confirmed: true, Height: tm.Height, BlockHash: tm.BlockHash, BlockTime: blockTime}, nil
	}

	if q.mp.Snapshot().Contains(txid) {
		return TxStatus{Confirmed: false}, nil
	}

	return TxStatus{}, apperr.NotFound("tx")
}

// HistoryEntry is one row of an address's combined confirmed+mempool
// history, per spec.md §4.7 address_history.
type HistoryEntry struct {
	Txid   chainhash.Hash
	Height uint32 // txrow.MempoolHeight for unconfirmed
}

// AddressHistory implements spec.md §4.7 address_history: scan descending,
// skip entries at or before afterCursor, dedupe same-tx input/output rows,
// collect up to limit distinct txids, optionally prepending mempool entries.
// The returned cursor is the hex-encoded (height|pos|txid) suffix of the
// last confirmed row consumed, to resume a later page from.
func (q *Query) AddressHistory(sh chainparams.Scripthash, afterCursor string, limit int, includeMempool bool) ([]HistoryEntry, string, error) {
	var cursorSuffix []byte
	if afterCursor != "" {
		b, err := hex.DecodeString(afterCursor)
		if err != nil {
			return nil, "", apperr.BadRequest("malformed cursor")
		}
		cursorSuffix = b
	}

	var out []HistoryEntry
	var nextCursor string
	seen := make(map[chainhash.Hash]struct{})

	if includeMempool {
		sn := q.mp.Snapshot()
		for _, e := range sn.History(sh) {
			if _, dup := seen[e.Txid]; dup {
				continue
			}
			seen[e.Txid] = struct{}{}
			out = append(out, HistoryEntry{Txid: e.Txid, Height: e.Height})
			if len(out) >= limit {
				return out, nextCursor, nil
			}
		}
	}

	snap, err := q.st.Snapshot()
	if err != nil {
		return nil, "", err
	}
	defer snap.Release()

	for _, kv := range snap.IterPrefixReverse(store.CFHistory, txrow.HistoryPrefix(sh)) {
		if len(kv.Key) < historyKeyLen {
			continue
		}
		suffix := kv.Key[1+32 : historyKeyLen] // height|pos|txid
		if cursorSuffix != nil && bytes.Compare(suffix, cursorSuffix) >= 0 {
			continue
		}

		_, height, _, txid, ok := txrow.DecodeHistoryKey(kv.Key[:historyKeyLen])
		if !ok {
			continue
		}
		if _, dup := seen[txid]; dup {
			continue
		}
		seen[txid] = struct{}{}
		out = append(out, HistoryEntry{Txid: txid, Height: height})
		nextCursor = hex.EncodeToString(suffix)
		if len(out) >= limit {
			break
		}
	}

	return out, nextCursor, nil
}

// FullHistory returns sh's complete history in ascending chronological
// order (confirmed rows oldest-first, then mempool entries), for the
// Electrum server's get_history and subscription-status computation, which
// need the whole ordered set rather than a paginated page.
func (q *Query) FullHistory(sh chainparams.Scripthash) ([]HistoryEntry, error) {
	snap, err := q.st.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	var out []HistoryEntry
	seen := make(map[chainhash.Hash]struct{})
	for _, kv := range snap.IterPrefix(store.CFHistory, txrow.HistoryPrefix(sh)) {
		if len(kv.Key) < historyKeyLen {
			continue
		}
		_, height, _, txid, ok := txrow.DecodeHistoryKey(kv.Key[:historyKeyLen])
		if !ok {
			continue
		}
		if _, dup := seen[txid]; dup {
			continue
		}
		seen[txid] = struct{}{}
		out = append(out, HistoryEntry{Txid: txid, Height: height})
	}

	sn := q.mp.Snapshot()
	for _, e := range sn.History(sh) {
		if _, dup := seen[e.Txid]; dup {
			continue
		}
		seen[e.Txid] = struct{}{}
		out = append(out, HistoryEntry{Txid: e.Txid, Height: e.Height})
	}

	return out, nil
}

// AddressStats implements spec.md §4.7 address_stats on top of the cache
// row. Every call scans sh's whole confirmed history: the spent totals and
// tx count are recomputed from that scan, and only funding rows past the
// cached (height, pos) high-water mark are added to the funded totals. The
// row is rewritten when anything changed.
func (q *Query) AddressStats(sh chainparams.Scripthash) (txrow.AddressStats, error) {
	raw, err := q.st.Get(store.CFCache, txrow.CachedStatsKey(sh))
	if err != nil {
		return txrow.AddressStats{}, err
	}
	var stats txrow.AddressStats
	if raw != nil {
		stats, err = txrow.DecodeAddressStats(raw)
		if err != nil {
			return txrow.AddressStats{}, err
		}
	}

	snap, err := q.st.Snapshot()
	if err != nil {
		return txrow.AddressStats{}, err
	}
	defer snap.Release()

	changed := false
	// The mark is fixed for the whole scan so that all outputs of one tx
	// past the mark are counted, not only the first.
	markHeight, markPos, haveMark := stats.LastHeight, stats.LastPos, stats.LastIndexedTxid != ""
	distinct := make(map[chainhash.Hash]struct{})
	var spentCount uint64
	var spentSum int64

	for _, kv := range snap.IterPrefix(store.CFHistory, txrow.HistoryPrefix(sh)) {
		if len(kv.Key) < historyKeyLen {
			continue
		}
		_, height, pos, txid, ok := txrow.DecodeHistoryKey(kv.Key[:historyKeyLen])
		if !ok {
			continue
		}
		distinct[txid] = struct{}{}

		if vout, isFunding := txrow.IsFundingRow(kv.Key); isFunding {
			val := txrow.DecodeFundingRowValue(kv.Value)

			op := txrow.Outpoint{Txid: txid, Vout: vout}
			spendRaw, err := snap.Get(store.CFHistory, txrow.SpendKey(op))
			if err != nil {
				return txrow.AddressStats{}, err
			}
			if spendRaw != nil {
				spentCount++
				spentSum += val
			}

			if !haveMark || height > markHeight || (height == markHeight && pos > markPos) {
				stats.FundedCount++
				stats.FundedSum += val
				stats.LastHeight = height
				stats.LastPos = pos
				stats.LastIndexedTxid = txid.String()
				changed = true
			}
		}
	}

	if spentCount != stats.SpentCount || spentSum != stats.SpentSum {
		stats.SpentCount, stats.SpentSum = spentCount, spentSum
		changed = true
	}
	if uint64(len(distinct)) != stats.TxCount {
		stats.TxCount = uint64(len(distinct))
		changed = true
	}

	if stats.FirstSeen == 0 {
		if t, ok := q.firstSeenFromMempool(sh); ok {
			stats.FirstSeen = t
		}
	}

	if changed {
		if encoded, err := stats.Encode(); err == nil {
			_ = q.st.PutBatch([]store.Pair{{CF: store.CFCache, Key: txrow.CachedStatsKey(sh), Value: encoded}})
		}
	}

	return stats, nil
}

// firstSeenFromMempool resolves spec.md §9's first_seen_tx_time open
// question: if any currently-mempooled tx touches sh, its entry time is the
// best available first-seen signal.
func (q *Query) firstSeenFromMempool(sh chainparams.Scripthash) (int64, bool) {
	sn := q.mp.Snapshot()
	entries := sn.History(sh)
	if len(entries) == 0 {
		return 0, false
	}
	if em, ok := sn.EntryMeta(entries[0].Txid); ok {
		return em.Time.Unix(), true
	}
	return 0, false
}

// UTXO is one unspent output for a scripthash.
type UTXO struct {
	Txid   chainhash.Hash
	Vout   uint32
	Value  int64
	Height uint32
}

// UTXOs implements spec.md §4.7 utxos: scan FundingRows, keep the ones with
// no matching SpendKey, offset+limit the result.
func (q *Query) UTXOs(sh chainparams.Scripthash, startIndex, limit int) ([]UTXO, int, error) {
	snap, err := q.st.Snapshot()
	if err != nil {
		return nil, 0, err
	}
	defer snap.Release()

	var all []UTXO
	for _, kv := range snap.IterPrefix(store.CFHistory, txrow.HistoryPrefix(sh)) {
		vout, ok := txrow.IsFundingRow(kv.Key)
		if !ok {
			continue
		}
		_, height, _, txid, ok := txrow.DecodeHistoryKey(kv.Key[:historyKeyLen])
		if !ok {
			continue
		}
		op := txrow.Outpoint{Txid: txid, Vout: vout}
		spendRaw, err := snap.Get(store.CFHistory, txrow.SpendKey(op))
		if err != nil {
			return nil, 0, err
		}
		if spendRaw != nil {
			continue
		}
		all = append(all, UTXO{Txid: txid, Vout: vout, Value: txrow.DecodeFundingRowValue(kv.Value), Height: height})
	}

	// Mempool-funded, still-unspent outputs.
	sn := q.mp.Snapshot()
	for _, e := range sn.History(sh) {
		tx, ok := sn.Tx(e.Txid)
		if !ok {
			continue
		}
		for vout, out := range tx.TxOut {
			if chainparams.NewScripthash(out.PkScript) != sh {
				continue
			}
			op := txrow.Outpoint{Txid: e.Txid, Vout: uint32(vout)}
			if _, spent := sn.SpenderOf(op); spent {
				continue
			}
			all = append(all, UTXO{Txid: e.Txid, Vout: uint32(vout), Value: out.Value, Height: txrow.MempoolHeight})
		}
	}

	total := len(all)
	if startIndex >= total {
		return nil, total, nil
	}
	end := startIndex + limit
	if end > total {
		end = total
	}
	return all[startIndex:end], total, nil
}

// OutspendResult is one answer of spec.md §4.7 outspends.
type OutspendResult struct {
	Spent  bool
	Txid   chainhash.Hash
	Vin    uint32
	Height uint32
}

// Outspends implements spec.md §4.7 outspends for every output of txid.
func (q *Query) Outspends(ctx context.Context, txid chainhash.Hash) ([]OutspendResult, error) {
	tx, err := q.GetTx(ctx, txid)
	if err != nil {
		return nil, err
	}
	out := make([]OutspendResult, len(tx.TxOut))
	for vout := range tx.TxOut {
		r, err := q.Outspend(txid, uint32(vout))
		if err != nil {
			return nil, err
		}
		out[vout] = r
	}
	return out, nil
}

// Outspend answers spec.md §6's GET /tx/{txid}/outspend/{vout}.
func (q *Query) Outspend(txid chainhash.Hash, vout uint32) (OutspendResult, error) {
	op := txrow.Outpoint{Txid: txid, Vout: vout}
	raw, err := q.st.Get(store.CFHistory, txrow.SpendKey(op))
	if err != nil {
		return OutspendResult{}, err
	}
	if raw != nil {
		if info, ok := txrow.DecodeSpenderInfo(raw); ok {
			return OutspendResult{Spent: true, Txid: info.Txid, Vin: info.Vin, Height: info.Height}, nil
		}
	}
	if spender, ok := q.mp.Snapshot().SpenderOf(op); ok {
		return OutspendResult{Spent: true, Txid: spender, Height: txrow.MempoolHeight}, nil
	}
	return OutspendResult{Spent: false}, nil
}

// MerkleProof is the result of spec.md §4.7 merkle_proof.
type MerkleProof struct {
	BlockHash chainhash.Hash
	Height    uint32
	Pos       uint32
	Merkle    []chainhash.Hash
}

// MerkleProof implements spec.md §4.7 merkle_proof using the block's
// canonical tx ordering (BlockTxKey rows).
func (q *Query) MerkleProof(txid chainhash.Hash) (MerkleProof, error) {
	blockHashRaw, err := q.st.Get(store.CFTxStore, txrow.TxBlockKey(txid))
	if err != nil {
		return MerkleProof{}, err
	}
	if blockHashRaw == nil {
		return MerkleProof{}, apperr.NotFound("tx not confirmed")
	}
	var blockHash chainhash.Hash
	copy(blockHash[:], blockHashRaw)

	metaRaw, err := q.st.Get(store.CFTxStore, txrow.BlockHeaderKey(blockHash))
	if err != nil {
		return MerkleProof{}, err
	}
	if metaRaw == nil {
		return MerkleProof{}, apperr.NotFound("block")
	}
	meta, err := txrow.DecodeBlockMeta(metaRaw)
	if err != nil {
		return MerkleProof{}, err
	}

	leaves, err := q.BlockTxids(blockHash)
	if err != nil {
		return MerkleProof{}, err
	}

	pos := -1
	for i, h := range leaves {
		if h == txid {
			pos = i
			break
		}
	}
	if pos < 0 {
		return MerkleProof{}, apperr.NotFound("tx not found in its recorded block")
	}

	branch := merkleBranch(leaves, pos)
	return MerkleProof{BlockHash: blockHash, Height: meta.Height, Pos: uint32(pos), Merkle: branch}, nil
}

// merkleBranch computes the sibling-hash path from leaf index pos to the
// Merkle root, duplicating the last element of an odd-length level per the
// standard UTXO-chain Merkle tree construction.
func merkleBranch(leaves []chainhash.Hash, pos int) []chainhash.Hash {
	var branch []chainhash.Hash
	level := append([]chainhash.Hash{}, leaves...)
	idx := pos
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		branch = append(branch, level[idx^1])

		next := make([]chainhash.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			next[i] = hashPair(level[2*i], level[2*i+1])
		}
		level = next
		idx /= 2
	}
	return branch
}

func hashPair(a, b chainhash.Hash) chainhash.Hash {
	buf := make([]byte, 64)
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return chainhash.DoubleHashH(buf)
}

const feeCacheTTL = 30 * time.Second

var feeEstimateTargets = []int{1, 2, 3, 4, 6, 10, 20, 144, 504, 1008}

// FeeEstimates implements spec.md §4.7 fee_estimates: cache the daemon's
// estimatesmartfee results for a short window rather than hitting the
// daemon on every request. The daemon's BTC/kvB feerates are returned
// converted to sat/vB.
func (q *Query) FeeEstimates(ctx context.Context) (map[int]float64, error) {
	q.feeMu.Lock()
	defer q.feeMu.Unlock()

	if q.feeCache != nil && time.Since(q.feeCacheAt) < feeCacheTTL {
		return q.feeCache, nil
	}

	out := make(map[int]float64)
	for _, target := range feeEstimateTargets {
		rate, ok, err := q.daemon.EstimateSmartFee(ctx, target)
		if err != nil {
			return nil, err
		}
		if ok {
			out[target] = rate * 1e5 // BTC/kvB -> sat/vB
		}
	}
	q.feeCache = out
	q.feeCacheAt = time.Now()
	return out, nil
}

// TopHolder is one entry of spec.md §4.7 top_holders.
type TopHolder struct {
	Scripthash chainparams.Scripthash
	Balance    int64
}

// TopHolders implements spec.md §4.7 top_holders: scan the whole cache CF,
// sort descending by balance, slice. Explicitly rate-limited by callers
// (spec.md calls this operation expensive).
func (q *Query) TopHolders(start, limit int) ([]TopHolder, error) {
	snap, err := q.st.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	var holders []TopHolder
	for _, kv := range snap.IterPrefix(store.CFCache, []byte{txrow.TagCachedStats}) {
		if len(kv.Key) < 1+32 {
			continue
		}
		var sh chainparams.Scripthash
		copy(sh[:], kv.Key[1:33])
		stats, err := txrow.DecodeAddressStats(kv.Value)
		if err != nil {
			continue
		}
		holders = append(holders, TopHolder{Scripthash: sh, Balance: stats.FundedSum - stats.SpentSum})
	}

	sort.Slice(holders, func(i, j int) bool { return holders[i].Balance > holders[j].Balance })

	if start >= len(holders) {
		return nil, nil
	}
	end := start + limit
	if end > len(holders) {
		end = len(holders)
	}
	return holders[start:end], nil
}

// TotalSupply answers both /blockchain/getsupply and /blockchain/total-coin
// (spec.md §9's open question) from the indexer-maintained running counter.
func (q *Query) TotalSupply() (int64, error) {
	raw, err := q.st.Get(store.CFTxStore, txrow.SupplyKey())
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	var v uint64
	for _, c := range raw {
		v = v<<8 | uint64(c)
	}
	return int64(v), nil
}

// Broadcast implements spec.md §4.7 broadcast: forward to the daemon, then
// optimistically add to Mempool so a subsequent GetTx sees it immediately.
func (q *Query) Broadcast(ctx context.Context, hexTx string) (chainhash.Hash, error) {
	txid, err := q.daemon.SendRawTransaction(ctx, hexTx)
	if err != nil {
		return chainhash.Hash{}, err
	}

	if raw, decodeErr := hex.DecodeString(hexTx); decodeErr == nil {
		tx := wire.MsgTx{}
		if tx.Deserialize(bytes.NewReader(raw)) == nil {
			q.mp.AddOptimistic(&tx)
		}
	}
	return txid, nil
}

// Tip returns the local Chain's current best height and hash.
func (q *Query) Tip() (height uint32, hash chainhash.Hash, ok bool) {
	return q.ch.Tip()
}

// BlockAt returns the hash at height, per spec.md §6 GET /block-height/{h}.
func (q *Query) BlockAt(height uint32) (chainhash.Hash, bool) {
	return q.ch.HashAt(height)
}

// BlockHeightOf returns the height of hash, if it is on the local chain.
func (q *Query) BlockHeightOf(hash chainhash.Hash) (uint32, bool) {
	return q.ch.HeightOf(hash)
}

// ChainHeight is the number of blocks on the local chain.
func (q *Query) ChainHeight() uint32 {
	return q.ch.Height()
}

// BlockMeta returns the stored header+meta for hash.
func (q *Query) BlockMeta(hash chainhash.Hash) (txrow.BlockMeta, error) {
	raw, err := q.st.Get(store.CFTxStore, txrow.BlockHeaderKey(hash))
	if err != nil {
		return txrow.BlockMeta{}, err
	}
	if raw == nil {
		return txrow.BlockMeta{}, apperr.NotFound("block")
	}
	return txrow.DecodeBlockMeta(raw)
}

// BlockTxids returns every txid of block hash, in canonical order.
func (q *Query) BlockTxids(hash chainhash.Hash) ([]chainhash.Hash, error) {
	snap, err := q.st.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	var out []chainhash.Hash
	for _, kv := range snap.IterPrefix(store.CFTxStore, txrow.BlockTxPrefix(hash)) {
		var h chainhash.Hash
		copy(h[:], kv.Value)
		out = append(out, h)
	}
	return out, nil
}

// MempoolSummary answers spec.md §6's GET /mempool.
type MempoolSummary struct {
	Count     int
	VSize     uint64
	TotalFee  int64
	Histogram []mempool.FeeHistogramBucket
}

// MempoolSummary implements GET /mempool.
func (q *Query) MempoolSummary() MempoolSummary {
	sn := q.mp.Snapshot()
	return MempoolSummary{Count: sn.Count(), VSize: sn.TotalVSize(), TotalFee: sn.TotalFee(), Histogram: sn.Histogram()}
}

// MempoolTxids answers spec.md §6's GET /mempool/txids.
func (q *Query) MempoolTxids() []chainhash.Hash {
	return q.mp.Snapshot().AllTxids()
}

// MempoolRecent answers spec.md §6's GET /mempool/recent.
func (q *Query) MempoolRecent() []chainhash.Hash {
	return q.mp.Snapshot().Recent()
}

// MempoolFee returns the fee and vsize of a mempool entry, for the Electrum
// server's scripthash.get_mempool.
func (q *Query) MempoolFee(txid chainhash.Hash) (fee int64, vsize uint32, ok bool) {
	meta, found := q.mp.Snapshot().EntryMeta(txid)
	if !found {
		return 0, 0, false
	}
	return meta.Fee, meta.VSize, true
}

// SyncProgress answers spec.md §6's GET /sync: the local tip plus how far
// behind it is from the daemon's own reported tip.
func (q *Query) SyncProgress(ctx context.Context) (height uint32, hash chainhash.Hash, progress float64, err error) {
	height, hash, _ = q.ch.Tip()

	bestHash, err := q.daemon.GetBestBlockHash(ctx)
	if err != nil {
		return height, hash, 0, err
	}
	if bestHash == hash {
		return height, hash, 1.0, nil
	}
	remoteHdr, err := q.daemon.GetBlockHeader(ctx, bestHash)
	if err != nil {
		return height, hash, 0, err
	}
	if remoteHdr.Height == 0 {
		return height, hash, 1.0, nil
	}
	progress = float64(height) / float64(remoteHdr.Height)
	if progress > 1 {
		progress = 1
	}
	return height, hash, progress, nil
}
