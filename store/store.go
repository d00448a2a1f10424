// Package store provides the authoritative mapping from record identifier
// to stored vector record. The store has no knowledge of similarity or
// graph structure; the index layer references records by identifier only.
package store

import (
	"errors"
	"fmt"
	"iter"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("store: record not found")

// ErrDimensionMismatch is a named error type for vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Record is a single stored vector record.
//
// Vector and ID are immutable once committed; an update is modeled as
// delete-then-insert by the layer above. Metadata is optional ("" = absent).
type Record struct {
	ID       string
	Vector   []float32
	Metadata string
}

// Store is the interface for vector record storage.
//
// Implementations must be safe for concurrent use; cross-structure
// atomicity with the index is enforced by the layer above.
type Store interface {
	// Put stores a record, overwriting any existing record with the same id
	// (upsert semantics). Fails with ErrDimensionMismatch if the vector
	// length does not match the store's configured dimension.
	Put(id string, vector []float32, metadata string) error

	// Get retrieves a record by id. Read-only, no side effects.
	Get(id string) (Record, bool)

	// Remove deletes a record by id. Fails with ErrNotFound if absent.
	Remove(id string) error

	// Scan returns a finite, restartable sequence over a consistent
	// snapshot of the store taken at call time (not a live view).
	Scan() iter.Seq[Record]

	// Len returns the number of stored records.
	Len() int

	// Close releases any resources held by the store.
	Close() error
}
