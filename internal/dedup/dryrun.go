package dedup

import (
	"context"
	"log/slog"
	"sync"
)

// DryRunStore scans through the wrapped store but only logs removals. Every
// Remove succeeds, so a dry run reports the counts a real run would.
type DryRunStore struct {
	Finder
	mu      sync.Mutex
	removed map[string]int
	logger  *slog.Logger
}

func NewDryRunStore(finder Finder) *DryRunStore {
	return &DryRunStore{
		Finder:  finder,
		removed: make(map[string]int),
		logger:  slog.Default().With("component", "dry-run"),
	}
}

func (d *DryRunStore) Remove(ctx context.Context, collection string, id ID) error {
	d.mu.Lock()
	d.removed[collection]++
	d.mu.Unlock()
	d.logger.Info("would remove record", "collection", collection, "id", id)
	return nil
}

// Removed returns how many records a real run would have removed.
func (d *DryRunStore) Removed(collection string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed[collection]
}
