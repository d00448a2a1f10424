package store

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "vecbase.db"), 3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(3),
		"bolt":   bolt,
	}
}

func TestPutGetRemove(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("a", []float32{1, 2, 3}, "meta-a"))

			rec, ok := s.Get("a")
			require.True(t, ok)
			assert.Equal(t, "a", rec.ID)
			assert.Equal(t, []float32{1, 2, 3}, rec.Vector)
			assert.Equal(t, "meta-a", rec.Metadata)
			assert.Equal(t, 1, s.Len())

			require.NoError(t, s.Remove("a"))
			_, ok = s.Get("a")
			assert.False(t, ok)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestPutUpsert(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("x", []float32{1, 0, 0}, ""))
			require.NoError(t, s.Put("x", []float32{0, 1, 0}, "v2"))

			rec, ok := s.Get("x")
			require.True(t, ok)
			assert.Equal(t, []float32{0, 1, 0}, rec.Vector)
			assert.Equal(t, "v2", rec.Metadata)
			assert.Equal(t, 1, s.Len())
		})
	}
}

func TestPutDimensionMismatch(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Put("bad", []float32{1, 2}, "")
			var dm *ErrDimensionMismatch
			require.ErrorAs(t, err, &dm)
			assert.Equal(t, 3, dm.Expected)
			assert.Equal(t, 2, dm.Actual)
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestRemoveNotFound(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Remove("ghost")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestScanSnapshot(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put("a", []float32{1, 0, 0}, ""))
			require.NoError(t, s.Put("b", []float32{0, 1, 0}, ""))

			seq := s.Scan()

			// Mutations after Scan must not show up in the captured snapshot.
			require.NoError(t, s.Put("c", []float32{0, 0, 1}, ""))

			var ids []string
			for rec := range seq {
				ids = append(ids, rec.ID)
			}
			sort.Strings(ids)
			assert.Equal(t, []string{"a", "b"}, ids)

			// Restartable: a fresh Scan observes the new state.
			n := 0
			for range s.Scan() {
				n++
			}
			assert.Equal(t, 3, n)
		})
	}
}

func TestScanEarlyTermination(t *testing.T) {
	s := NewMemoryStore(3)
	require.NoError(t, s.Put("a", []float32{1, 0, 0}, ""))
	require.NoError(t, s.Put("b", []float32{0, 1, 0}, ""))

	n := 0
	for range s.Scan() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestBoltReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vecbase.db")

	s, err := NewBoltStore(path, 2)
	require.NoError(t, err)
	require.NoError(t, s.Put("persist", []float32{3, 4}, "kept"))
	require.NoError(t, s.Close())

	s2, err := NewBoltStore(path, 2)
	require.NoError(t, err)
	defer s2.Close()

	rec, ok := s2.Get("persist")
	require.True(t, ok)
	assert.Equal(t, []float32{3, 4}, rec.Vector)
	assert.Equal(t, "kept", rec.Metadata)
}
