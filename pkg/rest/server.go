// Package rest implements spec.md §4.8: a stateless HTTP handler mapping the
// path table of spec.md §6 onto pkg/query.Query calls.
//
// Grounded on the teacher's cmd/exporter/exporter.go, the only bare
// net/http serving code in the teacher (http.HandleFunc + ListenAndServe,
// a panic-recovering entrypoint). Generalized from one metrics handler to a
// full route table using gorilla/mux, since the REST surface needs path
// variables the standard library mux cannot express without hand-rolled
// parsing.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/query"
)

var log = logrus.WithFields(logrus.Fields{"prefix": "rest"})

// Cache-control values from spec.md §6.
const (
	cacheConfirmed = "public, max-age=157784630"
	cacheMempool   = "public, max-age=10"
	cacheRecent    = "public, max-age=5"
)

// Config bundles the per-request caps spec.md §6's configuration table
// assigns to the REST surface.
type Config struct {
	Addr             string
	AddressSearch    bool
	UTXOsLimit       int
	ElectrumTxsLimit int
}

// Server is the stateless HTTP handler of spec.md §4.8.
type Server struct {
	q      *query.Query
	params chainparams.Params
	cfg    Config
	router *mux.Router
	http   *http.Server
}

// New builds a Server and registers its full route table.
func New(q *query.Query, cfg Config) *Server {
	if cfg.UTXOsLimit <= 0 {
		cfg.UTXOsLimit = 100
	}
	if cfg.ElectrumTxsLimit <= 0 {
		cfg.ElectrumTxsLimit = 25
	}

	s := &Server{q: q, params: q.Params(), cfg: cfg, router: mux.NewRouter()}
	s.routes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      loggingMiddleware(recoverMiddleware(s.router)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/blocks/tip/hash", s.handleTipHash).Methods(http.MethodGet)
	r.HandleFunc("/blocks/tip/height", s.handleTipHeight).Methods(http.MethodGet)
	r.HandleFunc("/blocks", s.handleBlocks).Methods(http.MethodGet)
	r.HandleFunc("/blocks/{start_height}", s.handleBlocks).Methods(http.MethodGet)
	r.HandleFunc("/block/{hash}", s.handleBlock).Methods(http.MethodGet)
	r.HandleFunc("/block/{hash}/header", s.handleBlockHeader).Methods(http.MethodGet)
	r.HandleFunc("/block/{hash}/status", s.handleBlockStatus).Methods(http.MethodGet)
	r.HandleFunc("/block/{hash}/txs", s.handleBlockTxs).Methods(http.MethodGet)
	r.HandleFunc("/block/{hash}/txs/{start_index}", s.handleBlockTxs).Methods(http.MethodGet)
	r.HandleFunc("/block/{hash}/txids", s.handleBlockTxids).Methods(http.MethodGet)
	r.HandleFunc("/block/{hash}/raw", s.handleBlockRaw).Methods(http.MethodGet)
	r.HandleFunc("/block-height/{height}", s.handleBlockHeight).Methods(http.MethodGet)

	r.HandleFunc("/tx/{txid}", s.handleTx).Methods(http.MethodGet)
	r.HandleFunc("/tx/{txid}/hex", s.handleTxHex).Methods(http.MethodGet)
	r.HandleFunc("/tx/{txid}/raw", s.handleTxRaw).Methods(http.MethodGet)
	r.HandleFunc("/tx/{txid}/status", s.handleTxStatus).Methods(http.MethodGet)
	r.HandleFunc("/tx/{txid}/merkle-proof", s.handleMerkleProof).Methods(http.MethodGet)
	r.HandleFunc("/tx/{txid}/outspend/{vout}", s.handleOutspend).Methods(http.MethodGet)
	r.HandleFunc("/tx/{txid}/outspends", s.handleOutspends).Methods(http.MethodGet)
	r.HandleFunc("/tx", s.handleBroadcast).Methods(http.MethodPost)

	r.HandleFunc("/address/{addr}", s.handleAddressStats).Methods(http.MethodGet)
	r.HandleFunc("/scripthash/{sh}", s.handleAddressStats).Methods(http.MethodGet)
	r.HandleFunc("/address/{addr}/txs", s.handleAddressTxs).Methods(http.MethodGet)
	r.HandleFunc("/address/{addr}/txs/chain", s.handleAddressTxsChain).Methods(http.MethodGet)
	r.HandleFunc("/address/{addr}/txs/chain/{last_txid}", s.handleAddressTxsChain).Methods(http.MethodGet)
	r.HandleFunc("/address/{addr}/txs/mempool", s.handleAddressTxsMempool).Methods(http.MethodGet)
	r.HandleFunc("/address/{addr}/utxo", s.handleAddressUTXO).Methods(http.MethodGet)
	r.HandleFunc("/address/{addr}/balance", s.handleAddressBalance).Methods(http.MethodGet)
	r.HandleFunc("/address/{addr}/stats", s.handleAddressStats).Methods(http.MethodGet)
	r.HandleFunc("/address-prefix/{prefix}", s.handleAddressPrefix).Methods(http.MethodGet)

	r.HandleFunc("/mempool", s.handleMempool).Methods(http.MethodGet)
	r.HandleFunc("/mempool/txids", s.handleMempoolTxids).Methods(http.MethodGet)
	r.HandleFunc("/mempool/recent", s.handleMempoolRecent).Methods(http.MethodGet)

	r.HandleFunc("/fee-estimates", s.handleFeeEstimates).Methods(http.MethodGet)
	r.HandleFunc("/blockchain/getsupply", s.handleSupply).Methods(http.MethodGet)
	r.HandleFunc("/blockchain/total-coin", s.handleSupply).Methods(http.MethodGet)
	r.HandleFunc("/blockchain/top-holders", s.handleTopHolders).Methods(http.MethodGet)
	r.HandleFunc("/sync", s.handleSync).Methods(http.MethodGet)
}

// ListenAndServe starts the HTTP server; it blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.WithField("addr", s.cfg.Addr).Info("rest server listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server (spec.md §5: indexer drains to a
// batch boundary on shutdown; the REST server drains in-flight requests).
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithField("path", r.URL.Path).WithField("took", time.Since(start)).Debug("handled request")
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("panic", rec).WithField("path", r.URL.Path).Error("recovered from panic in handler")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
