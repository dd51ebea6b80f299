// Package chain keeps the in-memory header chain: canonical hash<->height
// mapping and reorg detection, per spec.md §4.5.
//
// Grounded on the teacher's pkg/core/chain/synchronizer.go state machine
// (inSync/outSync, sequencer for out-of-order blocks) — here reduced to the
// pure bookkeeping spec.md asks for, since we never run consensus or
// block production, only track what the daemon reports as canonical.
package chain

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
)

// Chain is safe for concurrent use: the indexer is the sole writer, all
// other callers only read (spec.md §5).
type Chain struct {
	mu          sync.RWMutex
	hashes      []chainhash.Hash          // indexed by height
	heightOf    map[chainhash.Hash]uint32 // hash -> height
}

// New returns an empty chain.
func New() *Chain {
	return &Chain{heightOf: make(map[chainhash.Hash]uint32)}
}

// Tip returns the current best height and hash. ok is false for an empty
// chain (pre-genesis).
func (c *Chain) Tip() (height uint32, hash chainhash.Hash, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.hashes) == 0 {
		return 0, chainhash.Hash{}, false
	}
	h := uint32(len(c.hashes) - 1)
	return h, c.hashes[h], true
}

// Height returns the number of blocks on the chain (tip height + 1).
func (c *Chain) Height() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint32(len(c.hashes))
}

// HashAt returns the hash at height, or false if out of range.
func (c *Chain) HashAt(height uint32) (chainhash.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(height) >= len(c.hashes) {
		return chainhash.Hash{}, false
	}
	return c.hashes[height], true
}

// HeightOf returns the height of hash, or false if it is not on the chain.
func (c *Chain) HeightOf(hash chainhash.Hash) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.heightOf[hash]
	return h, ok
}

// Contains reports whether hash is on the local chain.
func (c *Chain) Contains(hash chainhash.Hash) bool {
	_, ok := c.HeightOf(hash)
	return ok
}

// Extend appends a new tip block. prevHash must match the current tip's
// hash (or be the zero hash for the genesis block), per spec.md §4.5.
func (c *Chain) Extend(hash, prevHash chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.hashes) > 0 {
		if c.hashes[len(c.hashes)-1] != prevHash {
			return apperr.New(apperr.KindIndexing, "extend: prevHash does not match current tip")
		}
	} else if prevHash != (chainhash.Hash{}) {
		return apperr.New(apperr.KindIndexing, "extend: genesis prevHash is not the zero hash")
	}
	c.heightOf[hash] = uint32(len(c.hashes))
	c.hashes = append(c.hashes, hash)
	return nil
}

// RewindTo truncates the chain so the new tip is at height (inclusive);
// used to undo a reorg'd suffix before re-extending with the new blocks
// (spec.md §4.4 phase B step 3).
func (c *Chain) RewindTo(height uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(height)+1 > len(c.hashes) {
		return apperr.New(apperr.KindIndexing, "rewind: height above current tip")
	}
	for h := uint32(len(c.hashes) - 1); h > height; h-- {
		delete(c.heightOf, c.hashes[h])
	}
	c.hashes = c.hashes[:height+1]
	return nil
}

// CommonAncestor walks remoteHashes (ordered from the daemon's new tip back
// towards genesis via previousblockhash, as spec.md §4.4 phase B step 2
// describes) and returns the height of the first hash also present on the
// local chain, stopping the walk as soon as a match is found. found is
// false if none of remoteHashes are on the local chain (should not happen
// in practice since genesis is always shared).
func (c *Chain) CommonAncestor(remoteHashes []chainhash.Hash) (height uint32, found bool) {
	for _, h := range remoteHashes {
		if height, ok := c.HeightOf(h); ok {
			return height, true
		}
	}
	return 0, false
}
