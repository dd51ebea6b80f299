package electrum

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/wire"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/mempool"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/query"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

type electrumHistoryEntry struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
}

func historyResults(history []query.HistoryEntry) []electrumHistoryEntry {
	out := make([]electrumHistoryEntry, 0, len(history))
	for _, e := range history {
		height := int64(e.Height)
		if e.Height == txrow.MempoolHeight {
			height = electrumMempoolHeight(e)
		}
		out = append(out, electrumHistoryEntry{TxHash: e.Txid.String(), Height: height})
	}
	return out
}

type electrumMempoolEntry struct {
	TxHash string `json:"tx_hash"`
	Height int64  `json:"height"`
	Fee    int64  `json:"fee"`
}

func mempoolHistoryResults(q *query.Query, history []query.HistoryEntry) []electrumMempoolEntry {
	out := make([]electrumMempoolEntry, 0)
	for _, e := range history {
		if e.Height != txrow.MempoolHeight {
			continue
		}
		fee, _, _ := q.MempoolFee(e.Txid)
		out = append(out, electrumMempoolEntry{TxHash: e.Txid.String(), Height: electrumMempoolHeight(e), Fee: fee})
	}
	return out
}

type balanceResult struct {
	Confirmed   int64 `json:"confirmed"`
	Unconfirmed int64 `json:"unconfirmed"`
}

// mempoolDelta approximates the unconfirmed balance delta for sh: the net
// value moved by mempool transactions touching it (outputs paying sh minus
// inputs spending a prevout belonging to sh). Best-effort: a prevout is
// resolved via GetTx, which may itself fall through to the daemon.
func mempoolDelta(ctx context.Context, q *query.Query, sh chainparams.Scripthash) int64 {
	history, err := q.FullHistory(sh)
	if err != nil {
		return 0
	}
	var delta int64
	for _, e := range history {
		if e.Height != txrow.MempoolHeight {
			continue
		}
		tx, err := q.GetTx(ctx, e.Txid)
		if err != nil {
			continue
		}
		for _, out := range tx.TxOut {
			if chainparams.NewScripthash(out.PkScript) == sh {
				delta += out.Value
			}
		}
		for _, in := range tx.TxIn {
			prev, err := q.GetTx(ctx, in.PreviousOutPoint.Hash)
			if err != nil || int(in.PreviousOutPoint.Index) >= len(prev.TxOut) {
				continue
			}
			prevOut := prev.TxOut[in.PreviousOutPoint.Index]
			if chainparams.NewScripthash(prevOut.PkScript) == sh {
				delta -= prevOut.Value
			}
		}
	}
	return delta
}

type electrumUTXO struct {
	TxHash string `json:"tx_hash"`
	TxPos  uint32 `json:"tx_pos"`
	Height uint32 `json:"height"`
	Value  int64  `json:"value"`
}

func utxoResults(utxos []query.UTXO) []electrumUTXO {
	out := make([]electrumUTXO, 0, len(utxos))
	for _, u := range utxos {
		height := u.Height
		if height == txrow.MempoolHeight {
			height = 0
		}
		out = append(out, electrumUTXO{TxHash: u.Txid.String(), TxPos: u.Vout, Height: height, Value: u.Value})
	}
	return out
}

func txHex(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

type electrumMerkleResult struct {
	BlockHeight uint32   `json:"block_height"`
	Merkle      []string `json:"merkle"`
	Pos         uint32   `json:"pos"`
}

func merkleResult(proof query.MerkleProof) electrumMerkleResult {
	merkle := make([]string, len(proof.Merkle))
	for i, h := range proof.Merkle {
		merkle[i] = h.String()
	}
	return electrumMerkleResult{BlockHeight: proof.Height, Merkle: merkle, Pos: proof.Pos}
}

func histogramResult(buckets []mempool.FeeHistogramBucket) [][2]float64 {
	out := make([][2]float64, len(buckets))
	for i, b := range buckets {
		out[i] = [2]float64{b.FeeRate, float64(b.VSize)}
	}
	return out
}
