package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/tracing"
)

// DefaultWindowSize is the number of records accumulated before a
// reconciliation pass.
const DefaultWindowSize = 500000

// Stats summarises a run.
type Stats struct {
	Processed  int64 `json:"processed"`
	Removed    int64 `json:"removed"`
	Duplicates int64 `json:"duplicates"`
	Malformed  int64 `json:"malformed"`
	Failed     int64 `json:"failed"`
	Windows    int   `json:"windows"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithWindowSize sets how many records a window holds before it is flushed.
func WithWindowSize(n int) Option {
	return func(e *Engine) {
		e.windowSize = n
	}
}

// WithObserver adds an observer. Observers are called in registration order.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithBreaker configures the circuit breaker guarding deletions.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(e *Engine) {
		e.breakerCfg = cfg
	}
}

// Engine scans one collection and removes duplicate records window by window.
// A single Engine runs one scan at a time.
type Engine struct {
	store      Store
	coll       Collection
	gateway    *Gateway
	windowSize int
	breakerCfg resilience.CircuitBreakerConfig
	observers  observers
	logger     *slog.Logger
}

// window is the state of the scan between two reconciliation passes.
type window struct {
	seq       int
	buckets   *BucketStore
	processed int
	failed    int
	lastID    ID
}

func NewEngine(store Store, coll Collection, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("dedup engine requires a store")
	}
	if coll.KeyPath.IsZero() {
		return nil, apperrors.Newf(apperrors.ErrInvalidKeyPath, apperrors.ExitConfig, "collection %q has no key path", coll.Name)
	}
	if coll.Table == "" {
		coll.Table = coll.Name
	}
	e := &Engine{
		store:      store,
		coll:       coll,
		windowSize: DefaultWindowSize,
		logger:     slog.Default().With("component", "dedup-engine", "collection", coll.Name),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.windowSize <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidConfig, apperrors.ExitConfig,
			"window size must be positive, got %d", e.windowSize)
	}
	e.gateway = NewGateway(store, e.breakerCfg, e.observers)
	return e, nil
}

// Run scans the collection from filter onwards. Malformed records are deleted
// as they are met; well-formed ones are grouped and reconciled whenever the
// window overflows and once more when the scan ends.
//
// A cancelled context stops the scan between records and stops a
// reconciliation pass between deletions; the rest of the window stays in the
// store and the context error is returned. A cursor failure reconciles the
// window gathered so far before the error is returned.
func (e *Engine) Run(ctx context.Context, filter Filter) (Stats, error) {
	var stats Stats
	cursor, err := e.store.Find(ctx, e.coll.Table, filter, e.coll.Projection())
	if err != nil {
		return stats, fmt.Errorf("querying collection %s: %w", e.coll.Name, err)
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			e.logger.Warn("closing cursor", "error", err)
		}
	}()

	e.logger.Info("scan started",
		"table", e.coll.Table,
		"key_path", e.coll.KeyPath.String(),
		"window_size", e.windowSize,
		"from", filter.MinID,
	)

	w := e.newWindow(1)
	for cursor.Next(ctx) {
		e.step(ctx, cursor.Record(), w, &stats)
		if w.processed > e.windowSize {
			e.flush(ctx, w, &stats)
			w = e.newWindow(w.seq + 1)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if ctx.Err() != nil {
		e.logger.Warn("scan cancelled, unflushed window abandoned",
			"processed", stats.Processed,
			"pending_keys", w.buckets.Size(),
		)
		return stats, ctx.Err()
	}
	if err := cursor.Err(); err != nil {
		e.flush(ctx, w, &stats)
		return stats, fmt.Errorf("scanning collection %s: %w", e.coll.Name, err)
	}
	e.flush(ctx, w, &stats)
	if err := ctx.Err(); err != nil {
		e.logger.Warn("scan cancelled during final reconciliation",
			"processed", stats.Processed,
			"removed", stats.Removed,
		)
		return stats, err
	}

	e.logger.Info("scan finished",
		"processed", stats.Processed,
		"removed", stats.Removed,
		"malformed", stats.Malformed,
		"failed", stats.Failed,
		"windows", stats.Windows,
	)
	return stats, nil
}

func (e *Engine) newWindow(seq int) *window {
	return &window{seq: seq, buckets: NewBucketStore()}
}

// step handles one record.
func (e *Engine) step(ctx context.Context, rec Record, w *window, stats *Stats) {
	key := Extract(rec.Doc, e.coll.KeyPath)
	if key == MalformedKey {
		e.logger.Info("deleting malformed record", "id", rec.ID)
		if e.gateway.Delete(ctx, e.coll.Table, Removal{Collection: e.coll.Name, ID: rec.ID, Reason: ReasonMalformed}) {
			stats.Removed++
			stats.Malformed++
		} else {
			stats.Failed++
			w.failed++
		}
	} else {
		w.buckets.Insert(key, rec.ID)
	}
	w.processed++
	w.lastID = rec.ID
	stats.Processed++
	e.observers.RecordScanned(e.coll.Name, stats.Processed)
}

// flush reconciles the window and folds its outcome into stats.
func (e *Engine) flush(ctx context.Context, w *window, stats *Stats) {
	keys := w.buckets.Size()
	e.observers.FlushStarted(e.coll.Name, keys)

	_, span := tracing.StartChildSpan(ctx, "dedup.flush")
	start := time.Now()
	removed, failed := e.Reconcile(ctx, w.buckets)
	span.SetAttr("window", w.seq)
	span.SetAttr("keys", keys)
	span.SetAttr("removed", removed)
	span.End()

	stats.Removed += int64(removed)
	stats.Duplicates += int64(removed)
	stats.Failed += int64(failed)
	stats.Windows++

	summary := WindowSummary{
		Collection:  e.coll.Name,
		Seq:         w.seq,
		Records:     w.processed,
		Keys:        keys,
		Removed:     removed,
		Failed:      failed + w.failed,
		LastID:      w.lastID,
		Duration:    time.Since(start),
		Interrupted: ctx.Err() != nil,
	}
	e.logger.Info("window reconciled",
		"window", summary.Seq,
		"records", summary.Records,
		"keys", summary.Keys,
		"removed", summary.Removed,
		"failed", summary.Failed,
		"interrupted", summary.Interrupted,
		"duration", summary.Duration,
	)
	e.observers.FlushFinished(summary)
}

// Reconcile drains buckets and deletes every identifier except the last one
// of each bucket holding more than one. Failed deletions are counted and the
// pass continues. Once ctx is done no further deletion is attempted; the
// remaining identifiers are neither removed nor counted as failed.
// Reconciling an empty store does nothing.
func (e *Engine) Reconcile(ctx context.Context, buckets *BucketStore) (removed, failed int) {
	buckets.Drain(func(key string, ids []ID) {
		if len(ids) <= 1 {
			return
		}
		for _, id := range ids[:len(ids)-1] {
			if ctx.Err() != nil {
				return
			}
			if e.gateway.Delete(ctx, e.coll.Table, Removal{Collection: e.coll.Name, ID: id, Key: key, Reason: ReasonDuplicate}) {
				removed++
			} else {
				failed++
			}
		}
	})
	return removed, failed
}
