// Package report turns dedup scan events into operator-facing output: a
// progress line on the terminal and Prometheus metrics.
package report

import (
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/resilience"
)

// MetricsObserver records scan events on Prometheus collectors.
type MetricsObserver struct {
	m *metrics.Metrics
}

func NewMetricsObserver(m *metrics.Metrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) RecordScanned(collection string, _ int64) {
	o.m.RecordsScannedTotal.WithLabelValues(collection).Inc()
}

func (o *MetricsObserver) RecordRemoved(rm dedup.Removal) {
	o.m.RecordsRemovedTotal.WithLabelValues(rm.Collection, string(rm.Reason)).Inc()
}

func (o *MetricsObserver) DeleteFailed(rm dedup.Removal, _ error) {
	o.m.DeleteFailuresTotal.WithLabelValues(rm.Collection).Inc()
}

func (o *MetricsObserver) FlushStarted(collection string, keys int) {
	o.m.WindowKeys.WithLabelValues(collection).Set(float64(keys))
}

func (o *MetricsObserver) FlushFinished(summary dedup.WindowSummary) {
	o.m.WindowFlushesTotal.WithLabelValues(summary.Collection).Inc()
	o.m.FlushDuration.WithLabelValues(summary.Collection).Observe(summary.Duration.Seconds())
}

// BreakerStateHook reports circuit breaker transitions on the state gauge.
func (o *MetricsObserver) BreakerStateHook() func(name string, from, to resilience.State) {
	return func(name string, _, to resilience.State) {
		o.m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}
