// Package mempool mirrors the daemon's mempool in memory: parsed txs,
// per-scripthash histories, spent-outpoint map, fee histogram, and a
// recent-transactions ring buffer, per spec.md §4.6.
//
// Grounded closely on the teacher's pkg/core/mempool/mempool.go: the same
// "one struct holding the whole verified-pool state, refreshed wholesale"
// shape, repurposed from a consensus mempool (accept/reject via the
// chain's tx-validity rules) into a pure mirror of whatever the daemon
// reports (spec.md §4.6 diffs txid sets rather than validating).
package mempool

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

var log = logrus.WithFields(logrus.Fields{"prefix": "mempool"})

const recentCapacity = 100

// HistoryEntry mirrors a confirmed history row's shape for unconfirmed
// entries: height is always txrow.MempoolHeight.
type HistoryEntry struct {
	Txid   chainhash.Hash
	Height uint32 // always txrow.MempoolHeight
}

// EntryMeta is the per-tx bookkeeping the daemon reports for a mempool tx.
type EntryMeta struct {
	Fee      int64 // satoshis
	VSize    uint32
	Time     time.Time
}

// FeeHistogramBucket is one (fee_rate, cumulative_vsize) point, per
// spec.md §4.6.
type FeeHistogramBucket struct {
	FeeRate float64 // sat/vB
	VSize   uint64  // cumulative
}

// state is the full mempool snapshot, replaced wholesale on each refresh so
// readers always see a fully-formed view (spec.md §4.6's "atomic swap").
type state struct {
	txs        map[chainhash.Hash]*wire.MsgTx
	histories  map[chainparams.Scripthash][]HistoryEntry
	spends     map[txrow.Outpoint]chainhash.Hash // outpoint -> spending txid
	entryMeta  map[chainhash.Hash]EntryMeta
	histogram  []FeeHistogramBucket
	recent     []chainhash.Hash // newest first, capped at recentCapacity
	count      int
	totalVSize uint64
	totalFee   int64
}

func emptyState() *state {
	return &state{
		txs:       make(map[chainhash.Hash]*wire.MsgTx),
		histories: make(map[chainparams.Scripthash][]HistoryEntry),
		spends:    make(map[txrow.Outpoint]chainhash.Hash),
		entryMeta: make(map[chainhash.Hash]EntryMeta),
	}
}

// ScripthashResolver resolves the scripthash and value of a prior output.
// insertTx resolves inputs only through it, and the resolver main wires in
// reads the confirmed store only: an input spending another mempool tx's
// output is not resolved, so that output's scripthash gets no history entry
// for the spending tx.
type ScripthashResolver interface {
	ResolveOutput(txid chainhash.Hash, vout uint32) (sh chainparams.Scripthash, value int64, ok bool)
}

// RawTxFetcher fetches a raw tx by txid from the daemon, used to hydrate
// newly-seen mempool txids.
type RawTxFetcher interface {
	FetchRawTx(txid chainhash.Hash) (*wire.MsgTx, error)
}

// Mempool is safe for concurrent use: Refresh is the sole writer and swaps
// in a new *state atomically; all reads dereference the atomic pointer once
// and operate on their own immutable snapshot (spec.md §4.6 concurrency
// contract).
type Mempool struct {
	cur atomic.Pointer[state]

	mu sync.Mutex // serializes concurrent Refresh calls only

	resolver ScripthashResolver
	fetcher  RawTxFetcher
}

// New returns an empty mempool.
func New(resolver ScripthashResolver, fetcher RawTxFetcher) *Mempool {
	m := &Mempool{resolver: resolver, fetcher: fetcher}
	m.cur.Store(emptyState())
	return m
}

// Snapshot is a read-only, internally-consistent view obtained once at
// request entry, per spec.md §4.7 "façade... acquires... a copy-on-write
// reference to current Mempool".
type Snapshot struct{ s *state }

// Snapshot returns the mempool's current view. Cheap: it is a single
// pointer load.
func (m *Mempool) Snapshot() Snapshot {
	return Snapshot{s: m.cur.Load()}
}

func (sn Snapshot) Contains(txid chainhash.Hash) bool {
	_, ok := sn.s.txs[txid]
	return ok
}

func (sn Snapshot) Tx(txid chainhash.Hash) (*wire.MsgTx, bool) {
	tx, ok := sn.s.txs[txid]
	return tx, ok
}

func (sn Snapshot) EntryMeta(txid chainhash.Hash) (EntryMeta, bool) {
	em, ok := sn.s.entryMeta[txid]
	return em, ok
}

func (sn Snapshot) History(sh chainparams.Scripthash) []HistoryEntry {
	return sn.s.histories[sh]
}

// SpenderOf returns the mempool txid spending op, if any.
func (sn Snapshot) SpenderOf(op txrow.Outpoint) (chainhash.Hash, bool) {
	txid, ok := sn.s.spends[op]
	return txid, ok
}

func (sn Snapshot) Histogram() []FeeHistogramBucket { return sn.s.histogram }

func (sn Snapshot) Recent() []chainhash.Hash { return sn.s.recent }

// AllTxids returns every txid currently in the mempool, unordered.
func (sn Snapshot) AllTxids() []chainhash.Hash {
	out := make([]chainhash.Hash, 0, len(sn.s.txs))
	for txid := range sn.s.txs {
		out = append(out, txid)
	}
	return out
}

func (sn Snapshot) Count() int { return sn.s.count }

func (sn Snapshot) TotalVSize() uint64 { return sn.s.totalVSize }

func (sn Snapshot) TotalFee() int64 { return sn.s.totalFee }

// Remove evicts a single tx from the live state immediately, ahead of the
// next full Refresh. It builds a new state rather than mutating the
// published one in place, preserving the atomic-swap contract.
func (m *Mempool) Remove(txid chainhash.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.cur.Load()
	if _, ok := cur.txs[txid]; !ok {
		return
	}
	next := cloneState(cur)
	removeTx(next, txid)
	recomputeHistogram(next)
	m.cur.Store(next)
}

// AddOptimistic inserts tx immediately after a successful broadcast so that
// subsequent reads see it before the next scheduled Refresh (spec.md §4.7
// broadcast). fee/vsize are best-effort (0 if unknown); a later Refresh will
// correct them from the daemon's own accounting.
func (m *Mempool) AddOptimistic(tx *wire.MsgTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.cur.Load()
	txid := tx.TxHash()
	if _, ok := cur.txs[txid]; ok {
		return
	}
	next := cloneState(cur)
	insertTx(next, txid, tx, EntryMeta{Time: time.Now()}, m.resolver)
	recomputeHistogram(next)
	m.cur.Store(next)
}

func cloneState(s *state) *state {
	n := emptyState()
	for k, v := range s.txs {
		n.txs[k] = v
	}
	for k, v := range s.histories {
		cp := make([]HistoryEntry, len(v))
		copy(cp, v)
		n.histories[k] = cp
	}
	for k, v := range s.spends {
		n.spends[k] = v
	}
	for k, v := range s.entryMeta {
		n.entryMeta[k] = v
	}
	n.recent = append([]chainhash.Hash{}, s.recent...)
	n.count = s.count
	n.totalVSize = s.totalVSize
	n.totalFee = s.totalFee
	return n
}

// Refresh diffs newEntries (from the daemon's getrawmempool) against the
// current state, fetching+parsing newly-seen txs and tearing down removed
// ones, per spec.md §4.6. The whole refresh computes into a fresh *state
// and publishes it with a single atomic store so readers never observe an
// intermediate state.
func (m *Mempool) Refresh(newEntries map[chainhash.Hash]EntryMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.cur.Load()
	next := emptyState()

	// Carry over unchanged txs first, then add genuinely new ones. Inputs
	// are resolved through the resolver only, not through this state.
	for txid, tx := range cur.txs {
		if _, stillThere := newEntries[txid]; stillThere {
			insertTx(next, txid, tx, cur.entryMeta[txid], m.resolver)
		}
	}

	var newList []chainhash.Hash
	for txid := range newEntries {
		if _, already := cur.txs[txid]; !already {
			newList = append(newList, txid)
		}
	}
	sort.Slice(newList, func(i, j int) bool { return newList[i].String() < newList[j].String() })

	for _, txid := range newList {
		tx, err := m.fetcher.FetchRawTx(txid)
		if err != nil {
			log.WithError(err).WithField("txid", txid).Warn("failed to fetch new mempool tx, skipping")
			continue
		}
		insertTx(next, txid, tx, newEntries[txid], m.resolver)
	}

	// recent: newest-first, newly seen txs prepended ahead of whatever
	// carried over from the previous recent list and still present.
	next.recent = append(append([]chainhash.Hash{}, reverseCopy(newList)...), filterPresent(cur.recent, next.txs)...)
	if len(next.recent) > recentCapacity {
		next.recent = next.recent[:recentCapacity]
	}

	recomputeHistogram(next)
	m.cur.Store(next)
	return nil
}

func reverseCopy(in []chainhash.Hash) []chainhash.Hash {
	out := make([]chainhash.Hash, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func filterPresent(in []chainhash.Hash, present map[chainhash.Hash]*wire.MsgTx) []chainhash.Hash {
	var out []chainhash.Hash
	for _, h := range in {
		if _, ok := present[h]; ok {
			out = append(out, h)
		}
	}
	return out
}

func insertTx(s *state, txid chainhash.Hash, tx *wire.MsgTx, meta EntryMeta, resolver ScripthashResolver) {
	s.txs[txid] = tx
	s.entryMeta[txid] = meta
	s.count++
	s.totalVSize += uint64(meta.VSize)
	s.totalFee += meta.Fee

	touched := make(map[chainparams.Scripthash]struct{})

	for vin, in := range tx.TxIn {
		_ = vin
		if isCoinbase(in) {
			continue
		}
		op := txrow.Outpoint{Txid: in.PreviousOutPoint.Hash, Vout: in.PreviousOutPoint.Index}
		s.spends[op] = txid
		if resolver != nil {
			if sh, _, ok := resolver.ResolveOutput(op.Txid, op.Vout); ok {
				touched[sh] = struct{}{}
			}
		}
	}
	for _, out := range tx.TxOut {
		sh := chainparams.NewScripthash(out.PkScript)
		touched[sh] = struct{}{}
	}

	for sh := range touched {
		s.histories[sh] = append(s.histories[sh], HistoryEntry{Txid: txid, Height: txrow.MempoolHeight})
	}
}

func removeTx(s *state, txid chainhash.Hash) {
	tx, ok := s.txs[txid]
	if !ok {
		return
	}
	meta := s.entryMeta[txid]
	s.count--
	if s.totalVSize >= uint64(meta.VSize) {
		s.totalVSize -= uint64(meta.VSize)
	}
	s.totalFee -= meta.Fee

	delete(s.txs, txid)
	delete(s.entryMeta, txid)

	for _, in := range tx.TxIn {
		op := txrow.Outpoint{Txid: in.PreviousOutPoint.Hash, Vout: in.PreviousOutPoint.Index}
		if cur, ok := s.spends[op]; ok && cur == txid {
			delete(s.spends, op)
		}
	}
	for sh, entries := range s.histories {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Txid != txid {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(s.histories, sh)
		} else {
			s.histories[sh] = filtered
		}
	}
}

func isCoinbase(in *wire.TxIn) bool {
	return in.PreviousOutPoint.Index == 0xffffffff && in.PreviousOutPoint.Hash == (chainhash.Hash{})
}

// recomputeHistogram sorts entries by descending fee-rate and accumulates
// vsize, per spec.md §4.6.
func recomputeHistogram(s *state) {
	type fr struct {
		rate  float64
		vsize uint64
	}
	frs := make([]fr, 0, len(s.txs))
	for txid := range s.txs {
		meta := s.entryMeta[txid]
		if meta.VSize == 0 {
			continue
		}
		frs = append(frs, fr{rate: float64(meta.Fee) / float64(meta.VSize), vsize: uint64(meta.VSize)})
	}
	sort.Slice(frs, func(i, j int) bool { return frs[i].rate > frs[j].rate })

	var hist []FeeHistogramBucket
	var cum uint64
	const bucketSpanVSize = 50_000 // group into ~50kvB buckets, matching Electrum's own histogram granularity
	var bucketStart uint64
	for _, f := range frs {
		cum += f.vsize
		if cum-bucketStart >= bucketSpanVSize || len(hist) == 0 {
			hist = append(hist, FeeHistogramBucket{FeeRate: f.rate, VSize: cum})
			bucketStart = cum
		} else {
			hist[len(hist)-1] = FeeHistogramBucket{FeeRate: f.rate, VSize: cum}
		}
	}
	s.histogram = hist
}
