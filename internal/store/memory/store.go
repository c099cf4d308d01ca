// Package memory is an in-process dedup.Store. Documents are kept per
// collection in insertion order and scans return them in that order. Failure
// hooks let tests simulate store outages.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/docid"
)

// ErrInjected is returned by operations failed through a hook.
var ErrInjected = errors.New("injected store failure")

type entry struct {
	id  dedup.ID
	doc map[string]any
}

// Store holds collections in memory. It is safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	collections map[string][]entry
	removed     map[string][]dedup.ID

	// FailRemove, when set, decides per identifier whether Remove fails.
	FailRemove func(collection string, id dedup.ID) error
	// FailAfter, when positive, makes cursors fail after yielding that many
	// records.
	FailAfter int
}

func New() *Store {
	return &Store{
		collections: make(map[string][]entry),
		removed:     make(map[string][]dedup.ID),
	}
}

// Insert appends doc under a fresh time-ordered identifier.
func (s *Store) Insert(collection string, doc map[string]any) dedup.ID {
	id, err := docid.New()
	if err != nil {
		panic(err)
	}
	s.InsertWithID(collection, id, doc)
	return id
}

// InsertWithID appends doc under id.
func (s *Store) InsertWithID(collection string, id dedup.ID, doc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], entry{id: id, doc: doc})
}

// IDs returns the identifiers currently stored in collection, in order.
func (s *Store) IDs(collection string) []dedup.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]dedup.ID, 0, len(s.collections[collection]))
	for _, e := range s.collections[collection] {
		ids = append(ids, e.id)
	}
	return ids
}

// Removed returns the identifiers removed from collection, in removal order.
func (s *Store) Removed(collection string) []dedup.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dedup.ID(nil), s.removed[collection]...)
}

func (s *Store) Find(ctx context.Context, collection string, filter dedup.Filter, projection []string) (dedup.Cursor, error) {
	if len(projection) == 0 {
		return nil, errors.New("projection must name at least one field")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []dedup.Record
	for _, e := range s.collections[collection] {
		if filter.MinID != nil && docid.Compare(e.id, *filter.MinID) < 0 {
			continue
		}
		records = append(records, dedup.Record{ID: e.id, Doc: project(e.doc, projection)})
	}
	return &cursor{records: records, failAfter: s.FailAfter}, nil
}

func (s *Store) Remove(ctx context.Context, collection string, id dedup.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailRemove != nil {
		if err := s.FailRemove(collection, id); err != nil {
			return fmt.Errorf("removing %s from %s: %w", id, collection, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.collections[collection]
	for i, e := range entries {
		if e.id == id {
			s.collections[collection] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	s.removed[collection] = append(s.removed[collection], id)
	return nil
}

func project(doc map[string]any, fields []string) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

type cursor struct {
	records   []dedup.Record
	pos       int
	current   dedup.Record
	failAfter int
	err       error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.failAfter > 0 && c.pos >= c.failAfter {
		c.err = fmt.Errorf("cursor after %d records: %w", c.pos, ErrInjected)
		return false
	}
	if c.pos >= len(c.records) {
		return false
	}
	c.current = c.records[c.pos]
	c.pos++
	return true
}

func (c *cursor) Record() dedup.Record { return c.current }
func (c *cursor) Err() error { return c.err }
func (c *cursor) Close() error { return nil }
