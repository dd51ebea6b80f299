package indexer

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/store"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// InitialSync implements spec.md §4.4 Phase A: load all headers from the
// stored tip marker (or genesis) up to the daemon's current best height,
// build the in-memory Chain, and stream+index blocks in bulk-load mode.
func (ix *Indexer) InitialSync(ctx context.Context) error {
	if err := ix.st.CheckOrInitVersion(); err != nil {
		return err
	}

	tipHash, err := ix.st.Tip()
	if err != nil {
		return err
	}

	startHeight := uint32(0)
	if tipHash != nil {
		meta, err := ix.blockMeta(chainhash.Hash(mustHash32(tipHash)))
		if err != nil {
			return err
		}
		startHeight = meta.Height + 1
	}

	if err := ix.rebuildChainUpTo(ctx, startHeight); err != nil {
		return err
	}

	bestHash, err := ix.daemon.GetBestBlockHash(ctx)
	if err != nil {
		return err
	}
	bestHdr, err := ix.daemon.GetBlockHeader(ctx, bestHash)
	if err != nil {
		return err
	}
	endHeight := bestHdr.Height

	if startHeight > endHeight {
		return nil // already caught up
	}

	ix.st.EnableBulkLoad()
	defer ix.st.DisableBulkLoad()

	log.WithField("from", startHeight).WithField("to", endHeight).Info("starting initial sync")

	for from := startHeight; from <= endHeight; {
		to := from + fetchBatchK - 1
		if to > endHeight {
			to = endHeight
		}

		out, errc := ix.blocks.Stream(ctx, from, to)
		b := newBatch()
		var lastHash chainhash.Hash
		for blk := range out {
			if err := ix.indexBlock(b, blk.Height, blk.Hash, blk.Block); err != nil {
				return err
			}
			if err := ix.ch.Extend(blk.Hash, blk.Block.Header.PrevBlock); err != nil {
				return err
			}
			lastHash = blk.Hash
			if b.full() {
				if err := ix.commit(b, lastHash); err != nil {
					return err
				}
				b = newBatch()
			}
		}
		if err := <-errc; err != nil {
			return err
		}
		if len(b.pairs) > 0 {
			if err := ix.commit(b, lastHash); err != nil {
				return err
			}
		}

		log.WithField("height", to).Info("indexed up to height")
		from = to + 1
	}

	if err := ix.st.CompactRange(store.CFHistory, nil, nil); err != nil {
		log.WithError(err).Warn("post-sync compaction failed")
	}

	return nil
}

// rebuildChainUpTo loads headers [0, toHeight) from the already-indexed
// store into the in-memory Chain on startup (spec.md §3: "Chain... reloaded
// on startup from Store").
func (ix *Indexer) rebuildChainUpTo(ctx context.Context, toHeightExclusive uint32) error {
	for h := uint32(0); h < toHeightExclusive; h++ {
		hashBytes, err := ix.st.Get(store.CFTxStore, txrow.HeightKey(h))
		if err != nil {
			return err
		}
		if hashBytes == nil {
			return apperr.New(apperr.KindIndexing, "missing height->hash row during chain rebuild")
		}
		hash := mustHash32(hashBytes)
		meta, err := ix.blockMeta(hash)
		if err != nil {
			return err
		}
		if err := ix.ch.Extend(hash, meta.PrevHash); err != nil {
			return err
		}
	}
	return nil
}

func mustHash32(b []byte) chainhash.Hash {
	var h chainhash.Hash
	copy(h[:], b)
	return h
}
