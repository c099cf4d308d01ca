// Package checkpoint remembers, per collection, the last identifier covered by
// a reconciled window so an interrupted run can resume after it instead of
// rescanning the whole collection.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/docid"
	"github.com/google/uuid"
)

// KV is the subset of a key-value client the checkpoint store needs.
// *redis.Client from pkg/redis satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Checkpoint is the persisted position of a collection's last flushed window.
type Checkpoint struct {
	Collection string    `json:"collection"`
	LastID     uuid.UUID `json:"last_id"`
	Window     int       `json:"window"`
	Processed  int64     `json:"processed"`
	SavedAt    time.Time `json:"saved_at"`
}

// Store reads and writes checkpoints under prefix+collection.
type Store struct {
	kv       KV
	prefix   string
	ttl      time.Duration
	isNotSet func(error) bool
	logger   *slog.Logger
}

// NewStore creates a checkpoint store. isNotSet must recognise the KV's
// key-not-found error.
func NewStore(kv KV, prefix string, ttl time.Duration, isNotSet func(error) bool) *Store {
	return &Store{
		kv:       kv,
		prefix:   prefix,
		ttl:      ttl,
		isNotSet: isNotSet,
		logger:   slog.Default().With("component", "checkpoint"),
	}
}

func (s *Store) key(collection string) string {
	return s.prefix + collection
}

// Save stores cp for its collection.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := s.kv.Set(ctx, s.key(cp.Collection), data, s.ttl); err != nil {
		return fmt.Errorf("saving checkpoint for %s: %w", cp.Collection, err)
	}
	return nil
}

// Load returns the checkpoint of collection, or nil if none is stored.
func (s *Store) Load(ctx context.Context, collection string) (*Checkpoint, error) {
	data, err := s.kv.Get(ctx, s.key(collection))
	if err != nil {
		if s.isNotSet != nil && s.isNotSet(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading checkpoint for %s: %w", collection, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint for %s: %w", collection, err)
	}
	return &cp, nil
}

// Clear removes the checkpoint of collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	if err := s.kv.Del(ctx, s.key(collection)); err != nil {
		return fmt.Errorf("clearing checkpoint for %s: %w", collection, err)
	}
	return nil
}

// Recorder saves a checkpoint after every reconciled window. A window with a
// failed deletion, or one cut short by cancellation, pins the checkpoint at
// the last clean window for the rest of the run so a resumed run revisits the
// records left behind. Save failures are logged and do not affect the scan.
type Recorder struct {
	dedup.NopObserver
	ctx       context.Context
	store     *Store
	processed int64
	pinned    bool
}

// NewRecorder returns an observer writing checkpoints to store. ctx bounds
// the writes.
func NewRecorder(ctx context.Context, store *Store) *Recorder {
	return &Recorder{ctx: ctx, store: store}
}

func (r *Recorder) RecordScanned(_ string, total int64) {
	r.processed = total
}

func (r *Recorder) FlushFinished(summary dedup.WindowSummary) {
	if r.pinned {
		return
	}
	if summary.Failed > 0 || summary.Interrupted {
		r.pinned = true
		r.store.logger.Warn("checkpoint held at last clean window",
			"collection", summary.Collection,
			"window", summary.Seq,
			"failed", summary.Failed,
			"interrupted", summary.Interrupted,
		)
		return
	}
	if summary.Records == 0 {
		return
	}
	cp := Checkpoint{
		Collection: summary.Collection,
		LastID:     summary.LastID,
		Window:     summary.Seq,
		Processed:  r.processed,
		SavedAt:    time.Now().UTC(),
	}
	if err := r.store.Save(r.ctx, cp); err != nil {
		r.store.logger.Error("checkpoint save failed", "collection", cp.Collection, "error", err)
		return
	}
	r.store.logger.Debug("checkpoint saved", "collection", cp.Collection, "last_id", cp.LastID, "window", cp.Window)
}

// Finish clears the checkpoint of collection once a scan has run to the end
// with every deletion applied, so the next resumed run starts from the
// beginning. A run with failures keeps its last clean checkpoint.
func (r *Recorder) Finish(collection string, stats dedup.Stats) error {
	if r.pinned || stats.Failed > 0 {
		return nil
	}
	return r.store.Clear(r.ctx, collection)
}

// ResumeFrom picks the scan lower bound from the explicit lower bound and the
// stored checkpoint, whichever is later. Either may be nil.
func ResumeFrom(since *uuid.UUID, cp *Checkpoint) *uuid.UUID {
	if cp == nil {
		return since
	}
	last := cp.LastID
	if since == nil || docid.Compare(last, *since) > 0 {
		return &last
	}
	return since
}
