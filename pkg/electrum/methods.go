package electrum

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
)

// rpcRequest is a JSON-RPC 2.0 request; notifications (no "id") are legal
// per the Electrum protocol and are dispatched but never answered.
type rpcRequest struct {
	ID     json.RawMessage   `json:"id,omitempty"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcNotification struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	errParseOrUnknownMethod = -32601
	errInvalidParams        = -32602
	errDomainBase           = -32000
)

// dispatch routes one request to its handler and returns the response to
// enqueue, or nil for a fire-and-forget notification (no "id" field).
func dispatch(c *conn, req rpcRequest) *rpcResponse {
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	result, err := callMethod(c, req.Method, req.Params)
	if isNotification {
		return nil
	}
	if err != nil {
		return &rpcResponse{ID: req.ID, Error: toRPCError(err)}
	}
	return &rpcResponse{ID: req.ID, Result: result}
}

func toRPCError(err error) *rpcError {
	if err == errUnknownMethod {
		return &rpcError{Code: errParseOrUnknownMethod, Message: "unknown method"}
	}
	kind := apperr.KindOf(err)
	code := errDomainBase
	switch kind {
	case apperr.KindBadRequest:
		code = errInvalidParams
	case apperr.KindNotFound:
		code = errDomainBase + 1
	}
	return &rpcError{Code: code, Message: err.Error()}
}

var errUnknownMethod = apperr.New(apperr.KindBadRequest, "unknown method")

const requestTimeout = 10 * time.Second

func callMethod(c *conn, method string, params []json.RawMessage) (interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	q := c.srv.q

	switch method {
	case "server.version":
		return []string{"dedoo-electrs", "1.4"}, nil

	case "server.ping":
		return nil, nil

	case "server.banner":
		return "dedoo electrs server", nil

	case "server.donation_address":
		return "", nil

	case "server.peers.subscribe":
		return []interface{}{}, nil

	case "blockchain.headers.subscribe":
		c.headersSub = true
		height, hash, ok := q.Tip()
		if !ok {
			return nil, apperr.New(apperr.KindNotFound, "no tip yet")
		}
		meta, err := q.BlockMeta(hash)
		if err != nil {
			return nil, err
		}
		return headerResult{Height: meta.Height, Hex: hex.EncodeToString(meta.HeaderRaw)}, nil

	case "blockchain.scripthash.subscribe":
		sh, err := scripthashParam(params, 0)
		if err != nil {
			return nil, err
		}
		history, err := q.FullHistory(sh)
		if err != nil {
			return nil, err
		}
		status, ok := statusOf(history)
		c.subsMu.Lock()
		if c.subs == nil {
			c.subs = make(map[chainparams.Scripthash]string)
		}
		c.subs[sh] = status
		c.subsMu.Unlock()
		if !ok {
			return nil, nil
		}
		return status, nil

	case "blockchain.scripthash.unsubscribe":
		sh, err := scripthashParam(params, 0)
		if err != nil {
			return nil, err
		}
		c.subsMu.Lock()
		_, existed := c.subs[sh]
		delete(c.subs, sh)
		c.subsMu.Unlock()
		return existed, nil

	case "blockchain.scripthash.get_history":
		sh, err := scripthashParam(params, 0)
		if err != nil {
			return nil, err
		}
		history, err := q.FullHistory(sh)
		if err != nil {
			return nil, err
		}
		return historyResults(history), nil

	case "blockchain.scripthash.get_mempool":
		sh, err := scripthashParam(params, 0)
		if err != nil {
			return nil, err
		}
		history, err := q.FullHistory(sh)
		if err != nil {
			return nil, err
		}
		return mempoolHistoryResults(q, history), nil

	case "blockchain.scripthash.get_balance":
		sh, err := scripthashParam(params, 0)
		if err != nil {
			return nil, err
		}
		stats, err := q.AddressStats(sh)
		if err != nil {
			return nil, err
		}
		return balanceResult{
			Confirmed:   stats.FundedSum - stats.SpentSum,
			Unconfirmed: mempoolDelta(ctx, q, sh),
		}, nil

	case "blockchain.scripthash.listunspent":
		sh, err := scripthashParam(params, 0)
		if err != nil {
			return nil, err
		}
		utxos, _, err := q.UTXOs(sh, 0, c.srv.cfg.TxsLimit)
		if err != nil {
			return nil, err
		}
		return utxoResults(utxos), nil

	case "blockchain.transaction.get":
		txid, err := txidParam(params, 0)
		if err != nil {
			return nil, err
		}
		tx, err := q.GetTx(ctx, txid)
		if err != nil {
			return nil, err
		}
		return txHex(tx)

	case "blockchain.transaction.get_merkle":
		txid, err := txidParam(params, 0)
		if err != nil {
			return nil, err
		}
		proof, err := q.MerkleProof(txid)
		if err != nil {
			return nil, err
		}
		return merkleResult(proof), nil

	case "blockchain.transaction.broadcast":
		hexTx, err := stringParam(params, 0)
		if err != nil {
			return nil, err
		}
		txid, err := q.Broadcast(ctx, hexTx)
		if err != nil {
			return nil, err
		}
		return txid.String(), nil

	case "blockchain.estimatefee":
		target, err := intParam(params, 0)
		if err != nil {
			return nil, err
		}
		fees, err := q.FeeEstimates(ctx)
		if err != nil {
			return nil, err
		}
		rate, ok := fees[target]
		if !ok {
			return -1.0, nil
		}
		return rate / 1e5, nil // sat/vB -> BTC/kB, Electrum's convention

	case "blockchain.relayfee":
		return 0.00001, nil

	case "mempool.get_fee_histogram":
		summary := q.MempoolSummary()
		return histogramResult(summary.Histogram), nil

	default:
		return nil, errUnknownMethod
	}
}

func scripthashParam(params []json.RawMessage, idx int) (chainparams.Scripthash, error) {
	s, err := stringParam(params, idx)
	if err != nil {
		return chainparams.Scripthash{}, err
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return chainparams.Scripthash{}, apperr.BadRequest("malformed scripthash")
	}
	var wireForm [32]byte
	copy(wireForm[:], raw)
	canonical := chainparams.Scripthash(wireForm).Electrum()
	return chainparams.Scripthash(canonical), nil
}

func txidParam(params []json.RawMessage, idx int) (chainhash.Hash, error) {
	s, err := stringParam(params, idx)
	if err != nil {
		return chainhash.Hash{}, err
	}
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, apperr.BadRequest("malformed txid")
	}
	return *h, nil
}

func stringParam(params []json.RawMessage, idx int) (string, error) {
	if idx >= len(params) {
		return "", apperr.BadRequest("missing parameter")
	}
	var s string
	if err := json.Unmarshal(params[idx], &s); err != nil {
		return "", apperr.BadRequest("malformed parameter")
	}
	return s, nil
}

func intParam(params []json.RawMessage, idx int) (int, error) {
	if idx >= len(params) {
		return 0, apperr.BadRequest("missing parameter")
	}
	var n int
	if err := json.Unmarshal(params[idx], &n); err != nil {
		return 0, apperr.BadRequest("malformed parameter")
	}
	return n, nil
}
