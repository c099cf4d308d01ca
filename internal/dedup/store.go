// Package dedup removes duplicate records from a document collection. Records
// are grouped by a natural key read from a dotted path, and every group keeps
// only its most recently scanned member. The scan is cut into bounded windows
// so memory stays flat on arbitrarily large collections.
package dedup

import (
	"context"

	"github.com/google/uuid"
)

// ID is the store-assigned identifier of a record. Identifiers are UUIDv7
// values, so their byte order follows creation time.
type ID = uuid.UUID

// Record is one document as returned by the store: its identifier and the
// projected, arbitrarily nested fields.
type Record struct {
	ID  ID
	Doc map[string]any
}

// Filter restricts a scan. A nil MinID scans the whole collection.
type Filter struct {
	MinID *ID
}

// Cursor is a lazy, forward-only sequence of records. Next returns false when
// the sequence is exhausted or failed; Err tells the two apart.
type Cursor interface {
	Next(ctx context.Context) bool
	Record() Record
	Err() error
	Close() error
}

// Finder issues a projected query against a collection.
type Finder interface {
	Find(ctx context.Context, collection string, filter Filter, projection []string) (Cursor, error)
}

// Remover deletes a single record by identifier. Removing an identifier that
// no longer exists is not an error.
type Remover interface {
	Remove(ctx context.Context, collection string, id ID) error
}

// Store is the document store the engine scans and deletes from.
type Store interface {
	Finder
	Remover
}
