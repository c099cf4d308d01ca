package dedup

import (
	"time"
)

// Reason says why a record was removed.
type Reason string

const (
	ReasonDuplicate Reason = "duplicate"
	ReasonMalformed Reason = "malformed"
)

// Removal describes one deletion attempt.
type Removal struct {
	Collection string
	ID         ID
	Key        string
	Reason     Reason
}

// WindowSummary describes one reconciliation pass. Failed counts every
// deletion of the window that failed, malformed records included. Interrupted
// is set when cancellation cut the pass short.
type WindowSummary struct {
	Collection  string
	Seq         int
	Records     int
	Keys        int
	Removed     int
	Failed      int
	LastID      ID
	Duration    time.Duration
	Interrupted bool
}

// Observer receives scan events. Implementations must not block for long;
// they run inline on the scanning goroutine.
type Observer interface {
	RecordScanned(collection string, total int64)
	RecordRemoved(rm Removal)
	DeleteFailed(rm Removal, err error)
	FlushStarted(collection string, keys int)
	FlushFinished(summary WindowSummary)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) RecordScanned(string, int64) {}
func (NopObserver) RecordRemoved(Removal) {}
func (NopObserver) DeleteFailed(Removal, error) {}
func (NopObserver) FlushStarted(string, int) {}
func (NopObserver) FlushFinished(WindowSummary) {}

type observers []Observer

func (obs observers) RecordScanned(collection string, total int64) {
	for _, o := range obs {
		o.RecordScanned(collection, total)
	}
}

func (obs observers) RecordRemoved(rm Removal) {
	for _, o := range obs {
		o.RecordRemoved(rm)
	}
}

func (obs observers) DeleteFailed(rm Removal, err error) {
	for _, o := range obs {
		o.DeleteFailed(rm, err)
	}
}

func (obs observers) FlushStarted(collection string, keys int) {
	for _, o := range obs {
		o.FlushStarted(collection, keys)
	}
}

func (obs observers) FlushFinished(summary WindowSummary) {
	for _, o := range obs {
		o.FlushFinished(summary)
	}
}
