package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/resilience"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestProgressOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 2)
	for i := int64(1); i <= 3; i++ {
		p.RecordScanned("events", i)
	}
	p.FlushStarted("events", 2)
	assert.Equal(t, "\rProcessed 2 records\rProcessed 3 records\nLoaded 2 values, cleaning\n", buf.String())
}

func TestProgressEveryDefaultsToOne(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 0)
	p.RecordScanned("events", 1)
	assert.Equal(t, "\rProcessed 1 records", buf.String())
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, dedup.Stats{Processed: 3, Removed: 1}, false)
	assert.Equal(t, "Processed 3, deleted 1 duplicates\n", buf.String())

	buf.Reset()
	Summary(&buf, dedup.Stats{Processed: 10, Removed: 4, Failed: 2}, true)
	assert.Equal(t, "Processed 10, would delete 4 duplicates (2 deletions failed)\n", buf.String())
}

func TestMetricsObserver(t *testing.T) {
	m := metrics.New()
	o := NewMetricsObserver(m)

	o.RecordScanned("commits", 1)
	o.RecordScanned("commits", 2)
	o.RecordRemoved(dedup.Removal{Collection: "commits", Reason: dedup.ReasonDuplicate})
	o.RecordRemoved(dedup.Removal{Collection: "commits", Reason: dedup.ReasonMalformed})
	o.RecordRemoved(dedup.Removal{Collection: "commits", Reason: dedup.ReasonMalformed})
	o.DeleteFailed(dedup.Removal{Collection: "commits"}, errors.New("x"))
	o.FlushStarted("commits", 7)
	o.FlushFinished(dedup.WindowSummary{Collection: "commits", Duration: time.Second})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsScannedTotal.WithLabelValues("commits")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsRemovedTotal.WithLabelValues("commits", "duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsRemovedTotal.WithLabelValues("commits", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeleteFailuresTotal.WithLabelValues("commits")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.WindowKeys.WithLabelValues("commits")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WindowFlushesTotal.WithLabelValues("commits")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FlushDuration))

	o.BreakerStateHook()("delete", resilience.StateClosed, resilience.StateOpen)
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("delete")))
}
