package rest

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/query"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// errorBody is the JSON shape of spec.md §7's user-visible REST failures.
type errorBody struct {
	Error string `json:"error"`
}

type blockJSON struct {
	ID                string `json:"id"`
	Height            uint32 `json:"height"`
	Version           int32  `json:"version"`
	Timestamp         uint32 `json:"timestamp"`
	TxCount           uint32 `json:"tx_count"`
	MerkleRoot        string `json:"merkle_root"`
	PreviousBlockHash string `json:"previousblockhash,omitempty"`
	Bits              uint32 `json:"bits"`
	Nonce             uint32 `json:"nonce"`
}

func toBlockJSON(hash chainhash.Hash, meta txrow.BlockMeta) (blockJSON, error) {
	var hdr wire.BlockHeader
	if err := hdr.Deserialize(bytes.NewReader(meta.HeaderRaw)); err != nil {
		return blockJSON{}, err
	}
	out := blockJSON{
		ID:         hash.String(),
		Height:     meta.Height,
		Version:    hdr.Version,
		Timestamp:  meta.Time,
		TxCount:    meta.TxCount,
		MerkleRoot: hdr.MerkleRoot.String(),
		Bits:       hdr.Bits,
		Nonce:      hdr.Nonce,
	}
	if meta.Height > 0 {
		out.PreviousBlockHash = meta.PrevHash.String()
	}
	return out, nil
}

type blockStatusJSON struct {
	InBestChain bool   `json:"in_best_chain"`
	Height      uint32 `json:"height"`
	NextBest    string `json:"next_best,omitempty"`
}

type voutJSON struct {
	ScriptPubKey     string `json:"scriptpubkey"`
	ScriptPubKeyAsm  string `json:"scriptpubkey_asm,omitempty"`
	ScriptPubKeyType string `json:"scriptpubkey_type"`
	ScriptPubKeyAddr string `json:"scriptpubkey_address,omitempty"`
	Value            int64  `json:"value"`
}

type vinJSON struct {
	Txid         string    `json:"txid"`
	Vout         uint32    `json:"vout"`
	Prevout      *voutJSON `json:"prevout,omitempty"`
	ScriptSig    string    `json:"scriptsig"`
	ScriptSigAsm string    `json:"scriptsig_asm,omitempty"`
	Witness      []string  `json:"witness,omitempty"`
	Sequence     uint32    `json:"sequence"`
	IsCoinbase   bool      `json:"is_coinbase"`
}

type txStatusJSON struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint32 `json:"block_height,omitempty"`
	BlockHash   string `json:"block_hash,omitempty"`
	BlockTime   uint32 `json:"block_time,omitempty"`
}

type txJSON struct {
	Txid     string       `json:"txid"`
	Version  int32        `json:"version"`
	Locktime uint32       `json:"locktime"`
	Size     int          `json:"size"`
	Weight   int          `json:"weight"`
	Vin      []vinJSON    `json:"vin"`
	Vout     []voutJSON   `json:"vout"`
	Status   txStatusJSON `json:"status"`
}

func toVoutJSON(out *wire.TxOut, params chainparams.Params) voutJSON {
	v := voutJSON{ScriptPubKey: hex.EncodeToString(out.PkScript), Value: out.Value}
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, params.Net)
	if err == nil {
		v.ScriptPubKeyType = class.String()
		if len(addrs) == 1 {
			v.ScriptPubKeyAddr = addrs[0].EncodeAddress()
		}
	}
	if asm, err := txscript.DisasmString(out.PkScript); err == nil {
		v.ScriptPubKeyAsm = asm
	}
	return v
}

// isCoinbase reports whether in is the sole, synthetic coinbase input.
func isCoinbase(tx *wire.MsgTx, idx int) bool {
	if idx != 0 || len(tx.TxIn) != 1 {
		return false
	}
	prevout := tx.TxIn[0].PreviousOutPoint
	return prevout.Index == ^uint32(0) && prevout.Hash == (chainhash.Hash{})
}

// toTxJSON renders tx, best-effort resolving each input's prevout (a failed
// lookup just omits that field rather than failing the whole response).
func toTxJSON(ctx context.Context, q *query.Query, tx *wire.MsgTx, params chainparams.Params) txJSON {
	txid := tx.TxHash()
	out := txJSON{
		Txid:     txid.String(),
		Version:  tx.Version,
		Locktime: tx.LockTime,
		Size:     tx.SerializeSize(),
		Weight:   tx.SerializeSizeStripped()*3 + tx.SerializeSize(),
	}

	for i, in := range tx.TxIn {
		vin := vinJSON{
			Txid:       in.PreviousOutPoint.Hash.String(),
			Vout:       in.PreviousOutPoint.Index,
			ScriptSig:  hex.EncodeToString(in.SignatureScript),
			Sequence:   in.Sequence,
			IsCoinbase: isCoinbase(tx, i),
		}
		if asm, err := txscript.DisasmString(in.SignatureScript); err == nil {
			vin.ScriptSigAsm = asm
		}
		for _, w := range in.Witness {
			vin.Witness = append(vin.Witness, hex.EncodeToString(w))
		}
		if !vin.IsCoinbase {
			if prevTx, err := q.GetTx(ctx, in.PreviousOutPoint.Hash); err == nil &&
				int(in.PreviousOutPoint.Index) < len(prevTx.TxOut) {
				pv := toVoutJSON(prevTx.TxOut[in.PreviousOutPoint.Index], params)
				vin.Prevout = &pv
			}
		}
		out.Vin = append(out.Vin, vin)
	}

	for _, o := range tx.TxOut {
		out.Vout = append(out.Vout, toVoutJSON(o, params))
	}

	return out
}

func toTxStatusJSON(st query.TxStatus) txStatusJSON {
	if !st.Confirmed {
		return txStatusJSON{Confirmed: false}
	}
	return txStatusJSON{
		Confirmed:   true,
		BlockHeight: st.Height,
		BlockHash:   st.BlockHash.String(),
		BlockTime:   st.BlockTime,
	}
}

type merkleProofJSON struct {
	BlockHeight uint32   `json:"block_height"`
	Merkle      []string `json:"merkle"`
	Pos         uint32   `json:"pos"`
}

func toMerkleProofJSON(p query.MerkleProof) merkleProofJSON {
	out := merkleProofJSON{BlockHeight: p.Height, Pos: p.Pos}
	for _, h := range p.Merkle {
		out.Merkle = append(out.Merkle, h.String())
	}
	return out
}

type outspendJSON struct {
	Spent  bool   `json:"spent"`
	Txid   string `json:"txid,omitempty"`
	Vin    uint32 `json:"vin,omitempty"`
	Status string `json:"status,omitempty"`
}

func toOutspendJSON(r query.OutspendResult) outspendJSON {
	if !r.Spent {
		return outspendJSON{Spent: false}
	}
	status := "confirmed"
	if r.Height == txrow.MempoolHeight {
		status = "unconfirmed"
	}
	return outspendJSON{Spent: true, Txid: r.Txid.String(), Vin: r.Vin, Status: status}
}

type addressStatsJSON struct {
	Address         string `json:"address,omitempty"`
	Scripthash      string `json:"scripthash"`
	FundedTxoCount  uint64 `json:"funded_txo_count"`
	FundedTxoSum    int64  `json:"funded_txo_sum"`
	SpentTxoCount   uint64 `json:"spent_txo_count"`
	SpentTxoSum     int64  `json:"spent_txo_sum"`
	TxCount         uint64 `json:"tx_count"`
	Balance         int64  `json:"balance"`
	FirstSeenTxTime int64  `json:"first_seen_tx_time,omitempty"`
}

func toAddressStatsJSON(addr string, sh chainparams.Scripthash, s txrow.AddressStats) addressStatsJSON {
	return addressStatsJSON{
		Address:         addr,
		Scripthash:      hex.EncodeToString(sh[:]),
		FundedTxoCount:  s.FundedCount,
		FundedTxoSum:    s.FundedSum,
		SpentTxoCount:   s.SpentCount,
		SpentTxoSum:     s.SpentSum,
		TxCount:         s.TxCount,
		Balance:         s.FundedSum - s.SpentSum,
		FirstSeenTxTime: s.FirstSeen,
	}
}

type utxoJSON struct {
	Txid   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status struct {
		Confirmed bool   `json:"confirmed"`
		Height    uint32 `json:"block_height,omitempty"`
	} `json:"status"`
}

func toUTXOJSON(u query.UTXO) utxoJSON {
	out := utxoJSON{Txid: u.Txid.String(), Vout: u.Vout, Value: u.Value}
	if u.Height != txrow.MempoolHeight {
		out.Status.Confirmed = true
		out.Status.Height = u.Height
	}
	return out
}

type historyEntryJSON struct {
	Txid   string `json:"txid"`
	Height uint32 `json:"height,omitempty"`
}

func toHistoryEntryJSON(e query.HistoryEntry) historyEntryJSON {
	h := historyEntryJSON{Txid: e.Txid.String()}
	if e.Height != txrow.MempoolHeight {
		h.Height = e.Height
	}
	return h
}

type topHolderJSON struct {
	Scripthash string `json:"scripthash"`
	Balance    int64  `json:"balance"`
}

type mempoolSummaryJSON struct {
	Count     int                           `json:"count"`
	VSize     uint64                        `json:"vsize"`
	TotalFee  int64                         `json:"total_fee"`
	Histogram []mempoolHistogramBucketJSON `json:"fee_histogram"`
}

type mempoolHistogramBucketJSON struct {
	FeeRate float64 `json:"fee_rate"`
	VSize   uint64  `json:"vsize"`
}

type syncJSON struct {
	Height   uint32  `json:"height"`
	Hash     string  `json:"hash"`
	Progress float64 `json:"progress"`
}
