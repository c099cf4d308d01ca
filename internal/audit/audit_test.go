package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/kafka"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	batches [][]kafka.Event
	err     error
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func newTestSink(pub Publisher, batch int) *Sink {
	s := NewSink(context.Background(), pub, "run-1", batch)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestSinkBatchesEvents(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestSink(pub, 2)
	id := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")

	s.RecordRemoved(dedup.Removal{Collection: "commits", ID: id, Key: "abc", Reason: dedup.ReasonDuplicate})
	assert.Empty(t, pub.batches)
	s.RecordRemoved(dedup.Removal{Collection: "commits", ID: id, Reason: dedup.ReasonMalformed})
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)

	first := pub.batches[0][0]
	assert.Equal(t, "commits", first.Key)
	ev, ok := first.Value.(Event)
	require.True(t, ok)
	assert.Equal(t, Event{
		RunID:      "run-1",
		Collection: "commits",
		ID:         id.String(),
		Key:        "abc",
		Reason:     dedup.ReasonDuplicate,
		RemovedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, ev)

	published, dropped := s.Counts()
	assert.Equal(t, 2, published)
	assert.Zero(t, dropped)
}

func TestSinkFlushesAtWindowEnd(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestSink(pub, 100)
	s.RecordRemoved(dedup.Removal{Collection: "events", Reason: dedup.ReasonDuplicate})
	s.FlushFinished(dedup.WindowSummary{Collection: "events"})
	require.Len(t, pub.batches, 1)

	s.FlushFinished(dedup.WindowSummary{Collection: "events"})
	assert.Len(t, pub.batches, 1)
}

func TestSinkDropsFailedBatch(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	s := newTestSink(pub, 10)
	s.RecordRemoved(dedup.Removal{Collection: "events"})
	s.RecordRemoved(dedup.Removal{Collection: "events"})
	s.Flush()

	published, dropped := s.Counts()
	assert.Zero(t, published)
	assert.Equal(t, 2, dropped)

	pub.err = nil
	s.Flush()
	assert.Empty(t, pub.batches)
}

func TestSinkIgnoresFailures(t *testing.T) {
	pub := &fakePublisher{}
	s := newTestSink(pub, 1)
	s.DeleteFailed(dedup.Removal{Collection: "events"}, errors.New("x"))
	s.Flush()
	assert.Empty(t, pub.batches)
}
