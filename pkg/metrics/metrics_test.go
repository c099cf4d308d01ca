package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordsScannedTotal.WithLabelValues("events").Add(3)
	m.RecordsRemovedTotal.WithLabelValues("events", "duplicate").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `dedup_records_scanned_total{collection="events"} 3`)
	assert.Contains(t, body, `dedup_records_removed_total{collection="events",reason="duplicate"} 1`)
}

func TestNewUsesPrivateRegistry(t *testing.T) {
	a, b := New(), New()
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestPush(t *testing.T) {
	var path, body string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	m := New()
	m.WindowFlushesTotal.WithLabelValues("commits").Inc()
	require.NoError(t, m.Push(context.Background(), gw.URL, "collection-dedup", "commits"))
	assert.Equal(t, "/metrics/job/collection-dedup/collection/commits", path)
	assert.True(t, strings.Contains(body, "dedup_window_flushes_total"))
}

func TestPushFailure(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gw.Close()
	assert.Error(t, New().Push(context.Background(), gw.URL, "job", "events"))
}
