// Package metrics implements the monitoring endpoint of SPEC_FULL §3: a
// Prometheus /metrics HTTP handler exposing indexed height, mempool size,
// daemon RPC latency, and daemon reachability, upgrading the teacher's own
// hand-rolled cmd/exporter/exporter.go text endpoint to real
// prometheus/client_golang collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the indexer and network servers update.
type Metrics struct {
	IndexedHeight   prometheus.Gauge
	ChainTipHeight  prometheus.Gauge
	MempoolTxCount  prometheus.Gauge
	MempoolVSize    prometheus.Gauge
	DaemonUp        prometheus.Gauge
	DaemonRPCLatency prometheus.Histogram
	TickDuration    prometheus.Histogram
	RESTRequests    *prometheus.CounterVec
	ElectrumConns   prometheus.Gauge
	ElectrumRequests *prometheus.CounterVec
}

// New registers every collector against a fresh registry and returns the
// bundle plus the registry's HTTP handler.
func New() (*Metrics, http.Handler) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		IndexedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "electrs_indexed_height",
			Help: "Height of the last block fully indexed into the local store.",
		}),
		ChainTipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "electrs_chain_tip_height",
			Help: "Height of the daemon's reported best block.",
		}),
		MempoolTxCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "electrs_mempool_tx_count",
			Help: "Number of transactions in the tracked mempool snapshot.",
		}),
		MempoolVSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "electrs_mempool_vsize_bytes",
			Help: "Total virtual size of the tracked mempool snapshot.",
		}),
		DaemonUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "electrs_daemon_up",
			Help: "1 if the last daemon RPC call succeeded, 0 otherwise.",
		}),
		DaemonRPCLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "electrs_daemon_rpc_latency_seconds",
			Help:    "Daemon JSON-RPC call latency.",
			Buckets: prometheus.DefBuckets,
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "electrs_tick_duration_seconds",
			Help:    "Duration of one indexer tick (reorg check + forward index + mempool refresh).",
			Buckets: prometheus.DefBuckets,
		}),
		RESTRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "electrs_rest_requests_total",
			Help: "REST requests by path and status class.",
		}, []string{"path", "status"}),
		ElectrumConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "electrs_electrum_connections",
			Help: "Live Electrum TCP connections.",
		}),
		ElectrumRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "electrs_electrum_requests_total",
			Help: "Electrum JSON-RPC requests by method.",
		}, []string{"method"}),
	}

	reg.MustRegister(
		m.IndexedHeight, m.ChainTipHeight, m.MempoolTxCount, m.MempoolVSize,
		m.DaemonUp, m.DaemonRPCLatency, m.TickDuration, m.RESTRequests,
		m.ElectrumConns, m.ElectrumRequests,
	)

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
