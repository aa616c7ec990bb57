// Package metrics holds the Prometheus collectors for RPC traffic, submitted
// transactions and the history cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bloodchain"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	rpcLatency   *prometheus.HistogramVec
	transactions *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "Latency of Solana JSON-RPC calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Program transactions submitted, by instruction and outcome.",
		}, []string{"instruction", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_cache_lookups_total",
			Help:      "Donation history lookups by source.",
		}, []string{"source"}),
	}
	m.registry.MustRegister(
		m.rpcLatency,
		m.transactions,
		m.cacheLookups,
		collectors.NewGoCollector(),
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveRPC records one RPC call. Safe on a nil receiver.
func (m *Metrics) ObserveRPC(method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.rpcLatency.WithLabelValues(method, outcome(err)).Observe(d.Seconds())
}

// CountTransaction records one submitted program transaction.
func (m *Metrics) CountTransaction(instruction string, err error) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(instruction, outcome(err)).Inc()
}

// CountLookup records where a history lookup was served from.
func (m *Metrics) CountLookup(source string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(source).Inc()
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
