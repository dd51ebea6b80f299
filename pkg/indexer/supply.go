package indexer

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/store"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// baseSubsidy is the block-0 reward, in satoshis, before any halvings —
// the standard Bitcoin-derived schedule the supplemented
// /blockchain/getsupply and /blockchain/total-coin endpoints rely on
// (spec.md §9's open question, resolved in DESIGN.md as a running
// counter kept under SupplyKey in the txstore CF).
const baseSubsidy = 50 * 1e8

// blockSubsidy returns the newly-issued coinbase reward at height, halving
// every SubsidyReductionInterval blocks per the network's chain params.
func (ix *Indexer) blockSubsidy(height uint32) int64 {
	interval := ix.params.Net.SubsidyReductionInterval
	if interval <= 0 {
		return baseSubsidy
	}
	halvings := height / uint32(interval)
	if halvings >= 64 {
		return 0
	}
	return baseSubsidy >> halvings
}

// burnedValue sums every OP_RETURN (null-data) output in blk, since those
// satoshis leave circulation immediately. Other unspendable or non-standard
// outputs are not counted.
func burnedValue(blk *wire.MsgBlock) int64 {
	var total int64
	for _, tx := range blk.Transactions {
		for _, out := range tx.TxOut {
			class := txscript.GetScriptClass(out.PkScript)
			if class == txscript.NullDataTy {
				total += out.Value
			}
		}
	}
	return total
}

// loadSupply lazily reads the running supply counter once per process
// lifetime; called before the first block of a run is indexed.
func (ix *Indexer) loadSupply() error {
	if ix.supplyLoaded {
		return nil
	}
	raw, err := ix.st.Get(store.CFTxStore, txrow.SupplyKey())
	if err != nil {
		return err
	}
	if raw != nil {
		ix.runningSupply = int64(binary.BigEndian.Uint64(raw))
	}
	ix.supplyLoaded = true
	return nil
}

func encodeSupply(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// applySupplyDelta adjusts the running counter and queues its new value for
// write in b. Positive delta for newly-indexed blocks, negative for
// rollbacks.
func (ix *Indexer) applySupplyDelta(b *batch, delta int64) {
	ix.runningSupply += delta
	b.add(store.Pair{CF: store.CFTxStore, Key: txrow.SupplyKey(), Value: encodeSupply(ix.runningSupply)})
}
