package main

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/daemon"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/store"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// heightHashResolver adapts *daemon.Client to fetcher.HeightHashResolver.
type heightHashResolver struct{ dc *daemon.Client }

func (r *heightHashResolver) HashAtHeight(ctx context.Context, height uint32) (chainhash.Hash, error) {
	return r.dc.GetBlockHash(ctx, height)
}

// blockReader adapts *daemon.Client to fetcher.BlockReader.
type blockReader struct{ dc *daemon.Client }

func (r *blockReader) FetchBlock(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	return r.dc.GetBlockRaw(ctx, hash)
}

// daemonRawTxFetcher adapts *daemon.Client to mempool.RawTxFetcher: the
// mempool only ever fetches a newly-seen mempool tx's body, a query-path
// call, so it uses Background rather than threading a per-tick context
// through mempool's internals.
type daemonRawTxFetcher struct{ dc *daemon.Client }

func (f *daemonRawTxFetcher) FetchRawTx(txid chainhash.Hash) (*wire.MsgTx, error) {
	return f.dc.GetRawTransaction(context.Background(), txid)
}

// storeResolver adapts the confirmed Store to mempool.ScripthashResolver:
// mempool.Refresh resolves an input's previous output's scripthash by
// reading the confirmed tx it spends. An input spending an unconfirmed
// mempool tx's output is not found here and stays unresolved.
type storeResolver struct{ st *store.Store }

func (r *storeResolver) ResolveOutput(txid chainhash.Hash, vout uint32) (chainparams.Scripthash, int64, bool) {
	raw, err := r.st.Get(store.CFTxStore, txrow.RawTxKey(txid))
	if err != nil || raw == nil {
		return chainparams.Scripthash{}, 0, false
	}
	tx := wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return chainparams.Scripthash{}, 0, false
	}
	if int(vout) >= len(tx.TxOut) {
		return chainparams.Scripthash{}, 0, false
	}
	out := tx.TxOut[vout]
	return chainparams.NewScripthash(out.PkScript), out.Value, true
}
