// Package indexer implements the two-phase indexing pipeline of spec.md
// §4.4: initial sync (headers -> blocks -> rows -> write batches) and the
// steady-state tick (new-tip detection, reorg rollback, forward index,
// mempool refresh, notification dispatch).
//
// Grounded on the teacher's pkg/core/chain/synchronizer.go state machine and
// pkg/core/chain/database.go batch-write pattern, generalized from
// consensus block acceptance to pure row materialization (we never validate
// consensus rules, only index what the daemon says is canonical, per
// spec.md §1).
package indexer

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sirupsen/logrus"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chain"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/daemon"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/fetcher"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/mempool"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/store"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

var log = logrus.WithFields(logrus.Fields{"prefix": "indexer"})

// Batch size bounds from spec.md §4.4.
const (
	maxBatchBytes = 10 << 20
	maxBatchTxs   = 5000
	fetchBatchK   = 16
)

// Daemon is the subset of *daemon.Client the indexer needs; an interface so
// tests can supply a fake.
type Daemon interface {
	GetBestBlockHash(ctx context.Context) (chainhash.Hash, error)
	GetBlockHash(ctx context.Context, height uint32) (chainhash.Hash, error)
	GetBlockHeader(ctx context.Context, hash chainhash.Hash) (daemon.Header, error)
	GetRawMempoolVerbose(ctx context.Context) (map[string]daemon.MempoolEntry, error)
}

// Indexer drives Phase A initial sync and Phase B steady-state ticks. It is
// the sole writer to Store (spec.md §5): no other goroutine may call its
// methods concurrently.
type Indexer struct {
	st      *store.Store
	ch      *chain.Chain
	mp      *mempool.Mempool
	daemon  Daemon
	blocks  fetcher.BlockSource
	params  chainparams.Params

	addressSearch bool
	lastMempoolKeys string // fingerprint of last-seen mempool txid set, for epoch-unchanged short-circuit

	supplyLoaded  bool
	runningSupply int64
}

// New constructs an Indexer.
func New(st *store.Store, ch *chain.Chain, mp *mempool.Mempool, daemon Daemon, blocks fetcher.BlockSource, params chainparams.Params, addressSearch bool) *Indexer {
	return &Indexer{st: st, ch: ch, mp: mp, daemon: daemon, blocks: blocks, params: params, addressSearch: addressSearch}
}

// batch accumulates pending writes and in-progress output resolution state
// for one or more blocks before a commit.
type batch struct {
	pairs      []store.Pair
	bytes      int
	txs        int
	// outputs resolved within this batch: txid -> vout -> (scripthash, value)
	outputs map[chainhash.Hash]map[uint32]outputInfo
}

type outputInfo struct {
	sh    chainparams.Scripthash
	value int64
}

func newBatch() *batch {
	return &batch{outputs: make(map[chainhash.Hash]map[uint32]outputInfo)}
}

func (b *batch) add(p store.Pair) {
	b.pairs = append(b.pairs, p)
	b.bytes += len(p.Key) + len(p.Value)
}

func (b *batch) full() bool {
	return b.bytes >= maxBatchBytes || b.txs >= maxBatchTxs
}

func (ix *Indexer) commit(b *batch, tipHash chainhash.Hash) error {
	b.add(store.Pair{CF: store.CFTxStore, Key: txrow.TipKey(), Value: tipHash[:]})
	if err := ix.st.PutBatch(b.pairs); err != nil {
		return err
	}
	return nil
}

// resolveOutput implements spec.md §4.4's three-way resolution: in-batch,
// then Store, then invalid.
func (ix *Indexer) resolveOutput(b *batch, txid chainhash.Hash, vout uint32) (chainparams.Scripthash, int64, error) {
	if byVout, ok := b.outputs[txid]; ok {
		if info, ok := byVout[vout]; ok {
			return info.sh, info.value, nil
		}
	}

	raw, err := ix.st.Get(store.CFTxStore, txrow.RawTxKey(txid))
	if err != nil {
		return chainparams.Scripthash{}, 0, err
	}
	if raw == nil {
		return chainparams.Scripthash{}, 0, apperr.New(apperr.KindIndexing, "input references unknown prior output")
	}
	tx := wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return chainparams.Scripthash{}, 0, apperr.Wrap(apperr.KindParse, err, "parse stored tx")
	}
	if int(vout) >= len(tx.TxOut) {
		return chainparams.Scripthash{}, 0, apperr.New(apperr.KindIndexing, "vout out of range")
	}
	out := tx.TxOut[vout]
	return chainparams.NewScripthash(out.PkScript), out.Value, nil
}

// indexBlock appends one block's rows into b (spec.md §4.4 step 2).
func (ix *Indexer) indexBlock(b *batch, height uint32, hash chainhash.Hash, blk *wire.MsgBlock) error {
	if err := ix.loadSupply(); err != nil {
		return err
	}
	ix.applySupplyDelta(b, ix.blockSubsidy(height)-burnedValue(blk))

	header := blk.Header
	meta := txrow.BlockMeta{
		Height:   height,
		PrevHash: header.PrevBlock,
		Time:     uint32(header.Timestamp.Unix()),
		TxCount:  uint32(len(blk.Transactions)),
	}
	var hdrBuf bytes.Buffer
	if err := header.Serialize(&hdrBuf); err != nil {
		return apperr.Wrap(apperr.KindParse, err, "serialize header")
	}
	meta.HeaderRaw = hdrBuf.Bytes()
	metaBytes, err := meta.Encode()
	if err != nil {
		return err
	}
	b.add(store.Pair{CF: store.CFTxStore, Key: txrow.BlockHeaderKey(hash), Value: metaBytes})
	b.add(store.Pair{CF: store.CFTxStore, Key: txrow.HeightKey(height), Value: hash[:]})

	// First pass: register every output so same-block spends resolve
	// in-batch (spec.md §4.4 "(a) in-batch if the funding tx is in the
	// same block").
	for _, tx := range blk.Transactions {
		txid := tx.TxHash()
		byVout := make(map[uint32]outputInfo, len(tx.TxOut))
		for vout, out := range tx.TxOut {
			sh := chainparams.NewScripthash(out.PkScript)
			byVout[uint32(vout)] = outputInfo{sh: sh, value: out.Value}
		}
		b.outputs[txid] = byVout
	}

	for pos, tx := range blk.Transactions {
		txid := tx.TxHash()
		b.add(store.Pair{CF: store.CFTxStore, Key: txrow.BlockTxKey(hash, uint32(pos)), Value: txid[:]})
		if err := ix.indexTx(b, height, uint32(pos), hash, tx); err != nil {
			return err
		}
		b.txs++
	}
	return nil
}

func (ix *Indexer) indexTx(b *batch, height uint32, pos uint32, blockHash chainhash.Hash, tx *wire.MsgTx) error {
	txid := tx.TxHash()

	var rawBuf bytes.Buffer
	if err := tx.Serialize(&rawBuf); err != nil {
		return apperr.Wrap(apperr.KindParse, err, "serialize tx")
	}
	b.add(store.Pair{CF: store.CFTxStore, Key: txrow.RawTxKey(txid), Value: rawBuf.Bytes()})

	tm := txrow.TxMeta{BlockHash: blockHash, Height: height, Confirmed: true}
	tmBytes, err := tm.Encode()
	if err != nil {
		return err
	}
	b.add(store.Pair{CF: store.CFTxStore, Key: txrow.TxMetaKey(txid), Value: tmBytes})
	b.add(store.Pair{CF: store.CFTxStore, Key: txrow.TxBlockKey(txid), Value: blockHash[:]})

	isCoinbase := len(tx.TxIn) == 1 && tx.TxIn[0].PreviousOutPoint.Index == 0xffffffff &&
		tx.TxIn[0].PreviousOutPoint.Hash == (chainhash.Hash{})

	if !isCoinbase {
		for vin, in := range tx.TxIn {
			op := txrow.Outpoint{Txid: in.PreviousOutPoint.Hash, Vout: in.PreviousOutPoint.Index}
			sh, _, err := ix.resolveOutput(b, op.Txid, op.Vout)
			if err != nil {
				return err
			}

			spender := txrow.SpenderInfo{Txid: txid, Vin: uint32(vin), Height: height}
			b.add(store.Pair{CF: store.CFHistory, Key: txrow.SpendKey(op), Value: spender.Encode()})
			b.add(store.Pair{CF: store.CFHistory, Key: txrow.TxInRowKey(sh, height, pos, txid, uint32(vin)), Value: []byte{1}})
		}
	}

	for vout, out := range tx.TxOut {
		sh := chainparams.NewScripthash(out.PkScript)
		b.add(store.Pair{CF: store.CFHistory, Key: txrow.FundingRowKey(sh, height, pos, txid, uint32(vout)), Value: txrow.FundingRowValue(out.Value)})
		b.add(store.Pair{CF: store.CFHistory, Key: txrow.TxOutRowKey(sh, height, pos, txid, uint32(vout)), Value: []byte{1}})
	}

	return nil
}

// deleteBlockRows removes every row derived from the block at height/hash,
// for reorg rollback (spec.md §4.4 phase B step 3), and returns the supply
// delta that block had contributed (for the caller to subtract back out).
// It must be called in descending height order so cross-block scripthash
// cache invalidation stays correct.
func (ix *Indexer) deleteBlockRows(height uint32, hash chainhash.Hash) (txstoreKeys, historyKeys [][]byte, supplyDelta int64, err error) {
	metaRaw, err := ix.st.Get(store.CFTxStore, txrow.BlockHeaderKey(hash))
	if err != nil {
		return nil, nil, 0, err
	}
	if metaRaw == nil {
		return nil, nil, 0, nil // already gone
	}

	txstoreKeys = append(txstoreKeys, txrow.BlockHeaderKey(hash), txrow.HeightKey(height))

	snap, err := ix.st.Snapshot()
	if err != nil {
		return nil, nil, 0, err
	}
	defer snap.Release()

	var burned int64
	for pos, kv := range snap.IterPrefix(store.CFTxStore, txrow.BlockTxPrefix(hash)) {
		txstoreKeys = append(txstoreKeys, txrow.BlockTxKey(hash, uint32(pos)))

		var txid chainhash.Hash
		copy(txid[:], kv.Value)
		txstoreKeys = append(txstoreKeys, txrow.RawTxKey(txid), txrow.TxMetaKey(txid), txrow.TxBlockKey(txid))

		raw, err := snap.Get(store.CFTxStore, txrow.RawTxKey(txid))
		if err != nil || raw == nil {
			continue
		}
		var tx wire.MsgTx
		if tx.Deserialize(bytes.NewReader(raw)) != nil {
			continue
		}

		isCoinbase := len(tx.TxIn) == 1 && tx.TxIn[0].PreviousOutPoint.Index == 0xffffffff &&
			tx.TxIn[0].PreviousOutPoint.Hash == (chainhash.Hash{})
		if !isCoinbase {
			for vin, in := range tx.TxIn {
				op := txrow.Outpoint{Txid: in.PreviousOutPoint.Hash, Vout: in.PreviousOutPoint.Index}
				historyKeys = append(historyKeys, txrow.SpendKey(op))

				sh, _, err := ix.resolveOutputFromSnapshot(snap, op.Txid, op.Vout)
				if err == nil {
					historyKeys = append(historyKeys, txrow.TxInRowKey(sh, height, uint32(pos), txid, uint32(vin)))
				}
			}
		}
		for vout, out := range tx.TxOut {
			sh := chainparams.NewScripthash(out.PkScript)
			historyKeys = append(historyKeys, txrow.FundingRowKey(sh, height, uint32(pos), txid, uint32(vout)))
			historyKeys = append(historyKeys, txrow.TxOutRowKey(sh, height, uint32(pos), txid, uint32(vout)))
			if txscript.GetScriptClass(out.PkScript) == txscript.NullDataTy {
				burned += out.Value
			}
		}
	}

	supplyDelta = ix.blockSubsidy(height) - burned
	return txstoreKeys, historyKeys, supplyDelta, nil
}

// resolveOutputFromSnapshot is resolveOutput's read-only counterpart used
// during rollback, where there is no in-progress batch to consult first.
func (ix *Indexer) resolveOutputFromSnapshot(snap *store.Snapshot, txid chainhash.Hash, vout uint32) (chainparams.Scripthash, int64, error) {
	raw, err := snap.Get(store.CFTxStore, txrow.RawTxKey(txid))
	if err != nil {
		return chainparams.Scripthash{}, 0, err
	}
	if raw == nil {
		return chainparams.Scripthash{}, 0, apperr.New(apperr.KindIndexing, "input references unknown prior output")
	}
	tx := wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return chainparams.Scripthash{}, 0, apperr.Wrap(apperr.KindParse, err, "parse stored tx")
	}
	if int(vout) >= len(tx.TxOut) {
		return chainparams.Scripthash{}, 0, apperr.New(apperr.KindIndexing, "vout out of range")
	}
	out := tx.TxOut[vout]
	return chainparams.NewScripthash(out.PkScript), out.Value, nil
}

// blockMeta fetches and decodes the stored BlockMeta for hash.
func (ix *Indexer) blockMeta(hash chainhash.Hash) (txrow.BlockMeta, error) {
	raw, err := ix.st.Get(store.CFTxStore, txrow.BlockHeaderKey(hash))
	if err != nil {
		return txrow.BlockMeta{}, err
	}
	if raw == nil {
		return txrow.BlockMeta{}, apperr.New(apperr.KindIndexing, "missing block header row")
	}
	return txrow.DecodeBlockMeta(raw)
}
