package store

import (
	"encoding/binary"
	"fmt"
	"iter"
	"math"

	"go.etcd.io/bbolt"
)

// Compile-time check
var _ Store = (*BoltStore)(nil)

var bucketRecords = []byte("records")

// BoltStore is a bbolt-backed implementation of Store. Records survive
// process restarts; the in-memory index is rebuilt from Scan on startup.
type BoltStore struct {
	db        *bbolt.DB
	dimension int
}

// NewBoltStore opens (or creates) a bbolt database at path for vectors of
// the given dimension.
func NewBoltStore(path string, dimension int) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, dimension: dimension}, nil
}

// Put stores a record, overwriting any existing record with the same id.
func (s *BoltStore) Put(id string, vector []float32, metadata string) error {
	if len(vector) != s.dimension {
		return &ErrDimensionMismatch{Expected: s.dimension, Actual: len(vector)}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Put([]byte(id), encodeRecord(vector, metadata))
	})
}

// Get retrieves a record by id.
func (s *BoltStore) Get(id string) (Record, bool) {
	var rec Record
	found := false

	_ = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(id))
		if data == nil {
			return nil
		}
		vector, metadata, err := decodeRecord(data)
		if err != nil {
			return err
		}
		rec = Record{ID: id, Vector: vector, Metadata: metadata}
		found = true
		return nil
	})

	return rec, found
}

// Remove deletes a record by id.
func (s *BoltStore) Remove(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Scan returns a sequence over a snapshot of all records, decoded within a
// single read transaction at call time.
func (s *BoltStore) Scan() iter.Seq[Record] {
	var snapshot []Record
	_ = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		snapshot = make([]Record, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			vector, metadata, err := decodeRecord(v)
			if err != nil {
				return err
			}
			snapshot = append(snapshot, Record{ID: string(k), Vector: vector, Metadata: metadata})
			return nil
		})
	})

	return func(yield func(Record) bool) {
		for _, rec := range snapshot {
			if !yield(rec) {
				return
			}
		}
	}
}

// Len returns the number of stored records.
func (s *BoltStore) Len() int {
	var n int
	_ = s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// encodeRecord packs a record value as:
//
//	uint32 vector length | vector components (float32 LE) | metadata bytes
func encodeRecord(vector []float32, metadata string) []byte {
	buf := make([]byte, 4+4*len(vector)+len(metadata))
	binary.LittleEndian.PutUint32(buf, uint32(len(vector)))
	for i, x := range vector {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(x))
	}
	copy(buf[4+4*len(vector):], metadata)
	return buf
}

func decodeRecord(data []byte) ([]float32, string, error) {
	if len(data) < 4 {
		return nil, "", fmt.Errorf("store: corrupt record value (%d bytes)", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) < 4+4*n {
		return nil, "", fmt.Errorf("store: corrupt record value: want %d components, have %d bytes", n, len(data)-4)
	}
	vector := make([]float32, n)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	return vector, string(data[4+4*n:]), nil
}
