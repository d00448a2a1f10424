package store

import (
	"iter"
	"sync"
)

// Compile-time check
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory implementation of Store using a Go map.
// It's suitable for datasets that fit in memory and provides fast O(1) access.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	data      map[string]Record
}

// NewMemoryStore creates a new in-memory store for vectors of the given dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		data:      make(map[string]Record),
	}
}

// Put stores a record, overwriting any existing record with the same id.
func (m *MemoryStore) Put(id string, vector []float32, metadata string) error {
	if len(vector) != m.dimension {
		return &ErrDimensionMismatch{Expected: m.dimension, Actual: len(vector)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[id] = Record{ID: id, Vector: vector, Metadata: metadata}
	return nil
}

// Get retrieves a record by id.
func (m *MemoryStore) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[id]
	return rec, ok
}

// Remove deletes a record by id.
func (m *MemoryStore) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[id]; !ok {
		return ErrNotFound
	}
	delete(m.data, id)
	return nil
}

// Scan returns a sequence over a snapshot of all records taken at call time.
// Vectors are shared with the stored records; they are immutable by contract.
func (m *MemoryStore) Scan() iter.Seq[Record] {
	m.mu.RLock()
	snapshot := make([]Record, 0, len(m.data))
	for _, rec := range m.data {
		snapshot = append(snapshot, rec)
	}
	m.mu.RUnlock()

	return func(yield func(Record) bool) {
		for _, rec := range snapshot {
			if !yield(rec) {
				return
			}
		}
	}
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
