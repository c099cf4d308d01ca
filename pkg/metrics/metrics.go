// Package metrics defines the Prometheus collectors of a dedup run and the
// ways to export them: a scrape endpoint for long runs and a Pushgateway push
// when the run ends.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a run.
type Metrics struct {
	RecordsScannedTotal *prometheus.CounterVec
	RecordsRemovedTotal *prometheus.CounterVec
	DeleteFailuresTotal *prometheus.CounterVec
	WindowFlushesTotal  *prometheus.CounterVec
	WindowKeys          *prometheus.GaugeVec
	FlushDuration       *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
	registry            *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		RecordsScannedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_records_scanned_total",
				Help: "Total records read from the collection.",
			},
			[]string{"collection"},
		),
		RecordsRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_records_removed_total",
				Help: "Total records removed by reason (duplicate, malformed).",
			},
			[]string{"collection", "reason"},
		),
		DeleteFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_delete_failures_total",
				Help: "Total deletions the store rejected.",
			},
			[]string{"collection"},
		),
		WindowFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_window_flushes_total",
				Help: "Total reconciliation passes.",
			},
			[]string{"collection"},
		),
		WindowKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dedup_window_keys",
				Help: "Distinct keys loaded by the most recent window.",
			},
			[]string{"collection"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dedup_flush_duration_seconds",
				Help:    "Reconciliation pass latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"collection"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dedup_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RecordsScannedTotal,
		m.RecordsRemovedTotal,
		m.DeleteFailuresTotal,
		m.WindowFlushesTotal,
		m.WindowKeys,
		m.FlushDuration,
		m.CircuitBreakerState,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for this run's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
