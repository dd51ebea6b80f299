// Command electrsd is the process entrypoint: it wires config -> daemon
// client -> store -> chain -> mempool -> fetcher -> indexer -> query ->
// rest/electrum servers -> metrics, runs the initial sync, then the
// steady-state tick loop, with graceful shutdown on SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/exporter/exporter.go main() wiring shape
// (construct clients, start a background routine, serve HTTP, recover from
// panics) generalized from one metrics endpoint to the full server set
// spec.md §4 describes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chain"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/config"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/daemon"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/electrum"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/fetcher"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/indexer"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/mempool"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/metrics"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/query"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/rest"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/store"
)

var log = logrus.WithFields(logrus.Fields{"prefix": "main"})

const tickInterval = 5 * time.Second

func main() {
	defer handlePanic()

	cmd := config.RootCmd(run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "%+v\npanic in electrsd\n", r)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	setupLogging(cfg)

	params, ok := chainparams.ByName(cfg.Network)
	if !ok {
		return fmt.Errorf("unknown network %q", cfg.Network)
	}

	auth := daemon.Auth{CookiePath: cfg.Cookie, User: cfg.DaemonUser, Password: cfg.DaemonPass}
	dc := daemon.New(cfg.DaemonRPCAddr, auth)

	st, err := store.Open(cfg.DBDir)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ch := chain.New()
	mp := mempool.New(&storeResolver{st: st}, &daemonRawTxFetcher{dc: dc})

	var blocks fetcher.BlockSource
	if cfg.JSONRPCImport {
		blocks = fetcher.NewRPCFetcher(&heightHashResolver{dc: dc}, &blockReader{dc: dc}, 8, fetcher.DefaultPrefetch)
	} else if cfg.DaemonDir != "" {
		bf, err := fetcher.NewBlkFileFetcher(cfg.DaemonDir, &heightHashResolver{dc: dc}, uint32(params.Net.Net), fetcher.DefaultPrefetch)
		if err != nil {
			log.WithError(err).Warn("blk-file fetcher unavailable, falling back to RPC fetch")
			blocks = fetcher.NewRPCFetcher(&heightHashResolver{dc: dc}, &blockReader{dc: dc}, 8, fetcher.DefaultPrefetch)
		} else {
			blocks = bf
		}
	} else {
		blocks = fetcher.NewRPCFetcher(&heightHashResolver{dc: dc}, &blockReader{dc: dc}, 8, fetcher.DefaultPrefetch)
	}

	ix := indexer.New(st, ch, mp, dc, blocks, params, cfg.AddressSearch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting initial sync")
	if err := ix.InitialSync(ctx); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	log.Info("initial sync complete")

	q := query.New(st, ch, mp, dc, params)

	electrumSrv := electrum.New(q, electrum.Config{
		Addr:     cfg.ElectrumRPCAddr,
		TxsLimit: cfg.ElectrumTxsLimit,
	})
	restSrv := rest.New(q, rest.Config{
		Addr:             cfg.HTTPAddr,
		AddressSearch:    cfg.AddressSearch,
		UTXOsLimit:       cfg.UTXOsLimit,
		ElectrumTxsLimit: cfg.ElectrumTxsLimit,
	})

	m, metricsHandler := metrics.New()
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	metricsSrv := &http.Server{Addr: cfg.MonitoringAddr, Handler: metricsMux}

	errs := make(chan error, 3)
	go func() { errs <- restSrv.ListenAndServe() }()
	go func() { errs <- electrumSrv.ListenAndServe() }()
	go func() { errs <- metricsSrv.ListenAndServe() }()
	go tickLoop(ctx, ix, ch, electrumSrv, m)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		log.WithError(err).Error("server exited unexpectedly")
	case s := <-sig:
		log.WithField("signal", s).Info("shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = restSrv.Shutdown(shutdownCtx)
	_ = electrumSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	return nil
}

// tickLoop drives spec.md §4.4 Phase B on a fixed interval until ctx is
// cancelled, reporting indexed height and tick duration to m.
func tickLoop(ctx context.Context, ix *indexer.Indexer, ch *chain.Chain, notifier indexer.Notifier, m *metrics.Metrics) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := ix.Tick(ctx, notifier); err != nil {
				log.WithError(err).Warn("tick failed")
				continue
			}
			m.TickDuration.Observe(time.Since(start).Seconds())
			if height, _, ok := ch.Tip(); ok {
				m.IndexedHeight.Set(float64(height))
			}
		}
	}
}

func setupLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.LogFile != "" {
		logrus.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}
}
