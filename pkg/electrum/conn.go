package electrum

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
)

// conn is one client connection's live session state, grounded on the
// teacher's pkg/rpc/server/auth.go pattern of a per-connection struct
// consulted on every call rather than a global registry keyed by token.
type conn struct {
	id  uint64
	srv *Server
	nc  net.Conn

	reader *bufio.Reader
	outq   chan []byte
	done   chan struct{}
	closed bool
	mu     sync.Mutex

	headersSub bool
	subsMu     sync.Mutex
	subs       map[chainparams.Scripthash]string // last-sent status, "" meaning null was sent
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	_ = c.nc.Close()
}

// enqueue attempts a non-blocking send. A full queue means the client isn't
// reading fast enough; per spec.md §9 the connection is dropped rather than
// blocking the server on one slow consumer.
func (c *conn) enqueue(b []byte) {
	select {
	case c.outq <- b:
	default:
		log.WithField("conn", c.id).Warn("slow consumer, dropping connection")
		c.close()
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.outq:
			if c.srv.cfg.IdleTimeout > 0 {
				_ = c.nc.SetWriteDeadline(time.Now().Add(c.srv.cfg.IdleTimeout))
			}
			if _, err := c.nc.Write(append(b, '\n')); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *conn) readLoop() {
	defer c.close()
	for {
		if c.srv.cfg.IdleTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(c.srv.cfg.IdleTimeout))
		}
		line, err := c.reader.ReadBytes('\n')
		if len(line) > 0 {
			c.handleLine(line)
		}
		if err != nil {
			return
		}
	}
}

func (c *conn) handleLine(line []byte) {
	var req rpcRequest
	if err := json.Unmarshal(line, &req); err != nil {
		// Malformed JSON: spec.md §4.9 says close the connection, since
		// there is no request ID to reply against.
		c.close()
		return
	}
	resp := dispatch(c, req)
	if resp == nil {
		return // notification request (no ID): no reply expected
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	c.enqueue(b)
}

// maybePushHeader sends blockchain.headers.subscribe's notification form if
// this connection is subscribed and the tip actually changed.
func (c *conn) maybePushHeader(height uint32, hash [32]byte) {
	if !c.headersSub {
		return
	}
	meta, err := c.srv.q.BlockMeta(hash)
	if err != nil {
		return
	}
	note := rpcNotification{
		Method: "blockchain.headers.subscribe",
		Params: []interface{}{headerResult{Height: meta.Height, Hex: hex.EncodeToString(meta.HeaderRaw)}},
	}
	b, err := json.Marshal(note)
	if err != nil {
		return
	}
	c.enqueue(b)
}

// maybePushScripthashes re-derives the status of every scripthash this
// connection subscribed to and notifies on change, per spec.md §4.9
// blockchain.scripthash.subscribe.
func (c *conn) maybePushScripthashes() {
	c.subsMu.Lock()
	subs := make(map[chainparams.Scripthash]string, len(c.subs))
	for sh, st := range c.subs {
		subs[sh] = st
	}
	c.subsMu.Unlock()

	for sh, prev := range subs {
		history, err := c.srv.q.FullHistory(sh)
		if err != nil {
			continue
		}
		status, ok := statusOf(history)
		if !ok {
			status = ""
		}
		if status == prev {
			continue
		}
		c.subsMu.Lock()
		c.subs[sh] = status
		c.subsMu.Unlock()

		wire := sh.Electrum()
		var result interface{}
		if ok {
			result = status
		}
		note := rpcNotification{
			Method: "blockchain.scripthash.subscribe",
			Params: []interface{}{hex.EncodeToString(wire[:]), result},
		}
		b, err := json.Marshal(note)
		if err != nil {
			continue
		}
		c.enqueue(b)
	}
}

type headerResult struct {
	Height uint32 `json:"height"`
	Hex    string `json:"hex"`
}
