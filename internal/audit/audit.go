// Package audit publishes one event per removed record so deletions made by a
// dedup run can be reviewed after the fact. Events are buffered and written to
// Kafka in batches on the scanning goroutine.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/kafka"
)

// Event records a single removal.
type Event struct {
	RunID      string       `json:"run_id"`
	Collection string       `json:"collection"`
	ID         string       `json:"id"`
	Key        string       `json:"key,omitempty"`
	Reason     dedup.Reason `json:"reason"`
	RemovedAt  time.Time    `json:"removed_at"`
}

// Publisher writes a batch of events. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Sink is a dedup.Observer that turns successful removals into audit events.
// Publish failures are logged and the batch is dropped; auditing never
// affects the scan.
type Sink struct {
	dedup.NopObserver
	ctx       context.Context
	publisher Publisher
	runID     string
	batchSize int
	buffer    []kafka.Event
	published int
	dropped   int
	now       func() time.Time
	logger    *slog.Logger
}

func NewSink(ctx context.Context, publisher Publisher, runID string, batchSize int) *Sink {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sink{
		ctx:       ctx,
		publisher: publisher,
		runID:     runID,
		batchSize: batchSize,
		buffer:    make([]kafka.Event, 0, batchSize),
		now:       time.Now,
		logger:    slog.Default().With("component", "audit-sink"),
	}
}

func (s *Sink) RecordRemoved(rm dedup.Removal) {
	s.buffer = append(s.buffer, kafka.Event{
		Key: rm.Collection,
		Value: Event{
			RunID:      s.runID,
			Collection: rm.Collection,
			ID:         rm.ID.String(),
			Key:        rm.Key,
			Reason:     rm.Reason,
			RemovedAt:  s.now().UTC(),
		},
	})
	if len(s.buffer) >= s.batchSize {
		s.Flush()
	}
}

// FlushFinished publishes whatever the window produced so audit lag never
// exceeds one window.
func (s *Sink) FlushFinished(dedup.WindowSummary) {
	s.Flush()
}

// Flush publishes the buffered events.
func (s *Sink) Flush() {
	if len(s.buffer) == 0 {
		return
	}
	batch := s.buffer
	s.buffer = make([]kafka.Event, 0, s.batchSize)
	if err := s.publisher.PublishBatch(s.ctx, batch); err != nil {
		s.dropped += len(batch)
		s.logger.Error("audit batch dropped",
			"batch_size", len(batch),
			"error", err,
		)
		return
	}
	s.published += len(batch)
	s.logger.Debug("audit batch published", "events", len(batch))
}

// Counts returns how many events were published and dropped so far.
func (s *Sink) Counts() (published, dropped int) {
	return s.published, s.dropped
}
