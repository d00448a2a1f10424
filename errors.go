package vecbase

import (
	"errors"
	"fmt"

	"github.com/d65v/vecbase/index/hnsw"
	"github.com/d65v/vecbase/store"
)

var (
	// ErrNotFound is returned when no record exists for the given id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrDegenerateVector is returned when a zero-norm vector is inserted
	// under the cosine metric, where it has no direction to compare.
	ErrDegenerateVector = errors.New("degenerate vector: zero norm under cosine metric")

	// ErrIndexInconsistency indicates the record store and the index
	// disagree about which ids exist. The database is corrupt; recover
	// from a snapshot or rebuild.
	ErrIndexInconsistency = errors.New("index inconsistency")

	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("database is closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidVector indicates a vector containing NaN or infinite components.
type ErrInvalidVector struct {
	// Position is the index of the first non-finite component.
	Position int
}

func (e *ErrInvalidVector) Error() string {
	return fmt.Sprintf("invalid vector: non-finite component at position %d", e.Position)
}

// ErrInvalidConfig indicates a configuration that fails validation.
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var nnf *hnsw.ErrNodeNotFound
	if errors.As(err, &nnf) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Dimension and argument normalization.
	var sdm *store.ErrDimensionMismatch
	if errors.As(err, &sdm) {
		return &ErrDimensionMismatch{Expected: sdm.Expected, Actual: sdm.Actual, cause: err}
	}
	var idm *hnsw.ErrDimensionMismatch
	if errors.As(err, &idm) {
		return &ErrDimensionMismatch{Expected: idm.Expected, Actual: idm.Actual, cause: err}
	}
	if errors.Is(err, hnsw.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	// A duplicate surfacing from the index means the store and index
	// disagreed about the id's existence.
	var dup *hnsw.ErrDuplicateID
	if errors.As(err, &dup) {
		return fmt.Errorf("%w: %w", ErrIndexInconsistency, err)
	}

	return err
}
