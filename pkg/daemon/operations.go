package daemon

import (
	"bytes"
	"context"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
)

// GetBestBlockHash returns the daemon's current tip hash.
func (c *Client) GetBestBlockHash(ctx context.Context) (chainhash.Hash, error) {
	var h string
	if err := c.callDuringServe(ctx, "getbestblockhash", nil, &h); err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.NewHashFromStr(h)
}

// GetBlockHash returns the canonical block hash at height, during sync
// (unlimited retry, long deadline).
func (c *Client) GetBlockHash(ctx context.Context, height uint32) (chainhash.Hash, error) {
	var h string
	if err := c.callDuringSync(ctx, "getblockhash", []interface{}{height}, &h); err != nil {
		return chainhash.Hash{}, err
	}
	return chainhash.NewHashFromStr(h)
}

// Header is the subset of getblockheader's verbose response the indexer
// needs to build the in-memory Chain (spec.md §4.4 phase A).
type Header struct {
	Hash          string `json:"hash"`
	PreviousHash  string `json:"previousblockhash"`
	Height        uint32 `json:"height"`
	Time          uint32 `json:"time"`
	NTx           uint32 `json:"nTx"`
}

// GetBlockHeader fetches a verbose header by hash.
func (c *Client) GetBlockHeader(ctx context.Context, hash chainhash.Hash) (Header, error) {
	var h Header
	err := c.callDuringSync(ctx, "getblockheader", []interface{}{hash.String(), true}, &h)
	return h, err
}

// GetBlockRaw fetches a block's raw bytes (verbosity=0) and parses it into
// a wire.MsgBlock, per spec.md §4.2.
func (c *Client) GetBlockRaw(ctx context.Context, hash chainhash.Hash) (*wire.MsgBlock, error) {
	var raw string
	if err := c.callDuringSync(ctx, "getblock", []interface{}{hash.String(), 0}, &raw); err != nil {
		return nil, err
	}
	return decodeBlockHex(raw)
}

func decodeBlockHex(raw string) (*wire.MsgBlock, error) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindParse, err, "decode block hex")
	}
	blk := wire.MsgBlock{}
	if err := blk.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, err, "parse block")
	}
	return &blk, nil
}

// GetRawTransaction fetches and parses a raw transaction by txid, falling
// back to the query path's 30s deadline (spec.md §4.7 get_tx).
func (c *Client) GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	var raw string
	if err := c.callDuringServe(ctx, "getrawtransaction", []interface{}{txid.String(), false}, &raw); err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindParse, err, "decode tx hex")
	}
	tx := wire.MsgTx{}
	if err := tx.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, err, "parse tx")
	}
	return &tx, nil
}

// Bitcoin Core's sendrawtransaction verify-reject codes: the broadcast was
// parsed fine but the daemon refuses it (already confirmed, conflicts with
// mempool, fails policy), a client-caused failure rather than a server one.
const (
	rpcVerifyError          = -25
	rpcVerifyRejected       = -26
	rpcVerifyAlreadyInChain = -27
)

// SendRawTransaction broadcasts hex-encoded signed tx bytes, per spec.md
// §4.7 broadcast / REST "POST /tx".
func (c *Client) SendRawTransaction(ctx context.Context, hexTx string) (chainhash.Hash, error) {
	var txid string
	if err := c.callDuringServe(ctx, "sendrawtransaction", []interface{}{hexTx}, &txid); err != nil {
		if code, ok := apperr.RPCCodeOf(err); ok {
			switch code {
			case rpcVerifyError, rpcVerifyRejected, rpcVerifyAlreadyInChain:
				return chainhash.Hash{}, apperr.Recode(err, apperr.KindBadRequest)
			}
		}
		return chainhash.Hash{}, err
	}
	return chainhash.NewHashFromStr(txid)
}

// MempoolEntry is one entry of getrawmempool's verbose response.
type MempoolEntry struct {
	Fee            float64 `json:"fee"`
	Size           uint32  `json:"vsize"`
	Time           int64   `json:"time"`
	DescendantFees float64 `json:"descendantfees"`
}

// GetRawMempoolVerbose returns the daemon's current mempool txid set with
// per-tx metadata, per spec.md §4.2.
func (c *Client) GetRawMempoolVerbose(ctx context.Context) (map[string]MempoolEntry, error) {
	out := make(map[string]MempoolEntry)
	err := c.callDuringServe(ctx, "getrawmempool", []interface{}{true}, &out)
	return out, err
}

// FeeEstimateTargets are the confirmation targets spec.md §4.2 specifies.
var FeeEstimateTargets = []int{1, 2, 3, 4, 6, 10, 20, 144, 504, 1008}

type smartFeeResult struct {
	FeeRate float64  `json:"feerate"`
	Errors  []string `json:"errors"`
}

// EstimateSmartFee returns the daemon's fee-per-kvB estimate for target
// confirmation blocks, or (0, false) if the daemon could not estimate.
func (c *Client) EstimateSmartFee(ctx context.Context, target int) (float64, bool, error) {
	var r smartFeeResult
	if err := c.callDuringServe(ctx, "estimatesmartfee", []interface{}{target}, &r); err != nil {
		return 0, false, err
	}
	if len(r.Errors) > 0 || r.FeeRate == 0 {
		return 0, false, nil
	}
	return r.FeeRate, true, nil
}
