package indexer

import (
	"context"
	"crypto/sha256"
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/daemon"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/mempool"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/store"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// maxReorgWalk bounds how far back Tick will walk looking for a common
// ancestor before giving up as an unrecoverable fork (defensive limit; real
// UTXO-chain reorgs are never this deep).
const maxReorgWalk = 10_000

// Notifier is implemented by the Electrum server to receive "index moved"
// events at the point in spec.md §5 where "no reader may observe the new
// tip before the index is consistent with it".
type Notifier interface {
	NotifyTipChanged()
	NotifyMempoolChanged()
}

// Tick implements spec.md §4.4 Phase B. It is intended to be called
// periodically (every few seconds) or when the daemon announces a new tip.
func (ix *Indexer) Tick(ctx context.Context, notifier Notifier) error {
	bestHash, err := ix.daemon.GetBestBlockHash(ctx)
	if err != nil {
		return err
	}

	_, localTipHash, haveTip := ix.ch.Tip()
	tipChanged := !haveTip || bestHash != localTipHash

	if tipChanged {
		if err := ix.syncToTip(ctx, bestHash); err != nil {
			return err
		}
	}

	mempoolChanged, err := ix.refreshMempool(ctx)
	if err != nil {
		return err
	}

	if notifier != nil {
		if tipChanged {
			notifier.NotifyTipChanged()
		}
		if mempoolChanged {
			notifier.NotifyMempoolChanged()
		}
	}

	if !tipChanged && !mempoolChanged {
		return nil // spec.md §4.4 step 1 short-circuit
	}
	return nil
}

// syncToTip walks back from the daemon's new tip to find the common
// ancestor with the local chain, rolls back any divergent local suffix,
// then forward-indexes to the new tip (spec.md §4.4 steps 2-3).
func (ix *Indexer) syncToTip(ctx context.Context, newTip chainhash.Hash) error {
	var remoteHashes []chainhash.Hash
	cursor := newTip

	for i := 0; i < maxReorgWalk; i++ {
		if ix.ch.Contains(cursor) {
			break
		}
		remoteHashes = append(remoteHashes, cursor)
		hdr, err := ix.daemon.GetBlockHeader(ctx, cursor)
		if err != nil {
			return err
		}
		prev, err := chainhash.NewHashFromStr(hdr.PreviousHash)
		if err != nil {
			return apperr.Wrap(apperr.KindParse, err, "parse previousblockhash")
		}
		cursor = *prev
	}
	remoteHashes = append(remoteHashes, cursor) // the common ancestor itself

	ancestorHeight, found := ix.ch.CommonAncestor(remoteHashes)
	if !found {
		return apperr.New(apperr.KindIndexing, "no common ancestor found within reorg walk bound")
	}

	localTipHeight, _, haveTip := ix.ch.Tip()
	if haveTip && ancestorHeight < localTipHeight {
		log.WithField("ancestor_height", ancestorHeight).WithField("local_tip", localTipHeight).
			Warn("reorg detected, rolling back")
		if err := ix.rollbackTo(ancestorHeight); err != nil {
			return err
		}
	}

	// Forward-index from ancestorHeight+1 to the new tip, reusing the
	// remoteHashes walked above (they are exactly the new canonical blocks
	// in descending order; reverse for ascending indexing order).
	newBlocks := remoteHashes[:len(remoteHashes)-1]
	for i, j := 0, len(newBlocks)-1; i < j; i, j = i+1, j-1 {
		newBlocks[i], newBlocks[j] = newBlocks[j], newBlocks[i]
	}

	height := ancestorHeight + 1
	for _, hash := range newBlocks {
		blk, err := ix.fetchOneBlock(ctx, height, hash)
		if err != nil {
			return err
		}
		b := newBatch()
		if err := ix.indexBlock(b, height, hash, blk); err != nil {
			return err
		}
		if err := ix.ch.Extend(hash, blk.Header.PrevBlock); err != nil {
			return err
		}
		if err := ix.commit(b, hash); err != nil {
			return err
		}
		height++
	}

	return nil
}

func (ix *Indexer) fetchOneBlock(ctx context.Context, height uint32, hash chainhash.Hash) (*wire.MsgBlock, error) {
	out, errc := ix.blocks.Stream(ctx, height, height)
	for blk := range out {
		return blk.Block, nil
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return nil, apperr.New(apperr.KindIndexing, "fetcher produced no block for height")
}

// rollbackTo deletes every row of every block above newTipHeight, then
// trims the in-memory Chain, as one atomic operation per spec.md §4.4 step 3
// ("atomically delete + trim Chain in a single batch").
func (ix *Indexer) rollbackTo(newTipHeight uint32) error {
	localTipHeight, _, _ := ix.ch.Tip()

	if err := ix.loadSupply(); err != nil {
		return err
	}

	var pairs []store.Pair
	var supplyDelta int64
	for h := localTipHeight; h > newTipHeight; h-- {
		hash, ok := ix.ch.HashAt(h)
		if !ok {
			continue
		}
		txKeys, histKeys, delta, err := ix.deleteBlockRows(h, hash)
		if err != nil {
			return err
		}
		for _, k := range txKeys {
			pairs = append(pairs, store.Pair{CF: store.CFTxStore, Key: k, Delete: true})
		}
		for _, k := range histKeys {
			pairs = append(pairs, store.Pair{CF: store.CFHistory, Key: k, Delete: true})
		}
		supplyDelta -= delta
	}
	ix.runningSupply += supplyDelta
	pairs = append(pairs, store.Pair{CF: store.CFTxStore, Key: txrow.SupplyKey(), Value: encodeSupply(ix.runningSupply)})

	if err := ix.st.PutBatch(pairs); err != nil {
		return err
	}
	return ix.ch.RewindTo(newTipHeight)
}

// refreshMempool implements spec.md §4.6: diff the daemon's current mempool
// keyset against what we track, short-circuiting if the key set fingerprint
// is unchanged (spec.md §4.4 step 1, "mempool epoch unchanged").
func (ix *Indexer) refreshMempool(ctx context.Context) (changed bool, err error) {
	raw, err := ix.daemon.GetRawMempoolVerbose(ctx)
	if err != nil {
		return false, err
	}

	fp := fingerprint(raw)
	if fp == ix.lastMempoolKeys {
		return false, nil
	}
	ix.lastMempoolKeys = fp

	entries := make(map[chainhash.Hash]mempool.EntryMeta, len(raw))
	for txidStr, e := range raw {
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			continue
		}
		entries[*txid] = mempool.EntryMeta{
			Fee:   int64(e.Fee * 1e8),
			VSize: e.Size,
			Time:  time.Unix(e.Time, 0),
		}
	}

	if err := ix.mp.Refresh(entries); err != nil {
		return false, err
	}
	return true, nil
}

func fingerprint(raw map[string]daemon.MempoolEntry) string {
	ids := make([]string, 0, len(raw))
	for k := range raw {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id))
	}
	return string(h.Sum(nil))
}
