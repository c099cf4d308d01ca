// Package postgres stores document collections as JSONB rows keyed by
// time-ordered UUIDs and implements the scan and delete operations the dedup
// engine needs.
//
// Each collection is a table:
//
//	CREATE TABLE commits (
//	    id  UUID PRIMARY KEY,
//	    doc JSONB NOT NULL
//	);
package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/collection-dedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/docid"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/collection-dedup/pkg/resilience"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Options tunes paging and fault handling of scans.
type Options struct {
	PageSize     int
	QueryTimeout time.Duration
	QueryRetries int
}

// Store is a dedup.Store over PostgreSQL.
type Store struct {
	db     *postgres.Client
	opts   Options
	logger *slog.Logger
}

func New(db *postgres.Client, opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = 10000
	}
	return &Store{
		db:     db,
		opts:   opts,
		logger: slog.Default().With("component", "document-store"),
	}
}

// Find returns a cursor over the collection in identifier order. Pages are
// fetched lazily by keyset: the first page starts at filter.MinID inclusive,
// later pages strictly after the last identifier seen.
func (s *Store) Find(ctx context.Context, collection string, filter dedup.Filter, projection []string) (dedup.Cursor, error) {
	if len(projection) == 0 {
		return nil, errors.New("projection must name at least one field")
	}
	start := uuid.Nil
	if filter.MinID != nil {
		start = *filter.MinID
	}
	return &cursor{
		store:  s,
		table:  collection,
		fields: projection,
		after:  start,
		first:  true,
	}, nil
}

// Remove deletes one document. Deleting an absent id succeeds.
func (s *Store) Remove(ctx context.Context, collection string, id dedup.ID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, pq.QuoteIdentifier(collection))
	return resilience.WithTimeout(ctx, s.opts.QueryTimeout, "remove", func(ctx context.Context) error {
		if _, err := s.db.DB.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("deleting %s from %s: %w", id, collection, err)
		}
		return nil
	})
}

// Insert stores doc under a fresh identifier and returns it.
func (s *Store) Insert(ctx context.Context, collection string, doc map[string]any) (dedup.ID, error) {
	id, err := docid.New()
	if err != nil {
		return uuid.Nil, err
	}
	if err := s.InsertWithID(ctx, collection, id, doc); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// InsertWithID stores doc under id.
func (s *Store) InsertWithID(ctx context.Context, collection string, id dedup.ID, doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2)`, pq.QuoteIdentifier(collection))
	if _, err := s.db.DB.ExecContext(ctx, query, id, data); err != nil {
		return fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return nil
}

// Count returns the number of documents in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pq.QuoteIdentifier(collection))
	if err := s.db.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", collection, err)
	}
	return n, nil
}

// pageQuery builds the keyset query for one page. Projected fields become a
// JSONB object holding only those top-level keys.
func pageQuery(table string, fields []string, inclusive bool) string {
	pairs := make([]string, 0, len(fields))
	for i := range fields {
		p := i + 3
		pairs = append(pairs, fmt.Sprintf("$%d::text, doc->($%d::text)", p, p))
	}
	op := ">"
	if inclusive {
		op = ">="
	}
	return fmt.Sprintf(
		`SELECT id, jsonb_build_object(%s) FROM %s WHERE id %s $1 ORDER BY id LIMIT $2`,
		strings.Join(pairs, ", "), pq.QuoteIdentifier(table), op,
	)
}

type cursor struct {
	store  *Store
	table  string
	fields []string
	after  uuid.UUID
	first  bool

	page      []dedup.Record
	pos       int
	exhausted bool
	current   dedup.Record
	err       error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos >= len(c.page) {
		if c.exhausted {
			return false
		}
		if err := c.fetch(ctx); err != nil {
			c.err = err
			return false
		}
		if len(c.page) == 0 {
			return false
		}
	}
	c.current = c.page[c.pos]
	c.pos++
	return true
}

func (c *cursor) Record() dedup.Record {
	return c.current
}

func (c *cursor) Err() error {
	return c.err
}

func (c *cursor) Close() error {
	c.page = nil
	c.exhausted = true
	return nil
}

// fetch loads the next page. Keyset paging makes a retried fetch return the
// same rows, so transient failures are retried.
func (c *cursor) fetch(ctx context.Context) error {
	pageSize := c.store.opts.PageSize
	query := pageQuery(c.table, c.fields, c.first)
	args := make([]any, 0, len(c.fields)+2)
	args = append(args, c.after, pageSize)
	for _, f := range c.fields {
		args = append(args, f)
	}

	var page []dedup.Record
	err := resilience.Retry(ctx, "fetch page "+c.table, resilience.RetryConfig{MaxAttempts: c.store.opts.QueryRetries}, func() error {
		if ctx.Err() != nil {
			return resilience.Permanent(ctx.Err())
		}
		return resilience.WithTimeout(ctx, c.store.opts.QueryTimeout, "fetch page", func(ctx context.Context) error {
			var err error
			page, err = c.queryPage(ctx, query, args)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("fetching page of %s after %s: %w", c.table, c.after, err)
	}

	c.page = page
	c.pos = 0
	c.first = false
	if len(page) > 0 {
		c.after = page[len(page)-1].ID
	}
	if len(page) < pageSize {
		c.exhausted = true
	}
	c.store.logger.Debug("page fetched", "table", c.table, "rows", len(page), "after", c.after)
	return nil
}

func (c *cursor) queryPage(ctx context.Context, query string, args []any) ([]dedup.Record, error) {
	rows, err := c.store.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.table, err)
	}
	defer rows.Close()

	page := make([]dedup.Record, 0, c.store.opts.PageSize)
	for rows.Next() {
		var id uuid.UUID
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			c.store.logger.Warn("undecodable document treated as empty", "table", c.table, "id", id, "error", err)
		}
		page = append(page, dedup.Record{ID: id, Doc: doc})
	}
	return page, rows.Err()
}

// decodeDoc keeps numbers in their textual form so natural keys match the
// stored representation.
func decodeDoc(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}
