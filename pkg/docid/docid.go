// Package docid provides the time-ordered document identifiers used by the
// document store: UUIDv7 values whose leading 48 bits are the creation time in
// Unix milliseconds, so byte-wise ordering follows creation order.
package docid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a fresh time-ordered identifier.
func New() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generating document id: %w", err)
	}
	return id, nil
}

// FromTime returns the smallest identifier that can be assigned at or after t.
// Every id created at or after t compares greater than or equal to it.
func FromTime(t time.Time) uuid.UUID {
	var id uuid.UUID
	ms := t.UnixMilli()
	if ms < 0 {
		ms = 0
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ms))
	copy(id[0:6], buf[2:8])
	id[6] = 0x70
	id[8] = 0x80
	return id
}

// Time returns the creation time embedded in a UUIDv7 identifier.
func Time(id uuid.UUID) time.Time {
	var buf [8]byte
	copy(buf[2:8], id[0:6])
	return time.UnixMilli(int64(binary.BigEndian.Uint64(buf[:]))).UTC()
}

// Compare orders identifiers byte-wise, which for UUIDv7 is creation order.
func Compare(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
