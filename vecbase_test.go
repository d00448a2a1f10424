package vecbase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d65v/vecbase/plugin"
	"github.com/d65v/vecbase/resource"
)

func newTestDB(t *testing.T, cfg Config, optFns ...Option) *DB {
	t.Helper()

	optFns = append([]Option{WithRandomSeed(42)}, optFns...)
	db, err := New(context.Background(), cfg, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero dimension", cfg: Config{}},
		{name: "bad metric", cfg: Config{Dimension: 3, Metric: "hamming"}},
		{name: "negative capacity", cfg: Config{Dimension: 3, MaxElements: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg)
			var ic *ErrInvalidConfig
			assert.ErrorAs(t, err, &ic)
		})
	}
}

func TestNilLoggerAndMetrics(t *testing.T) {
	// Explicit nils disable logging and metrics instead of panicking.
	db := newTestDB(t, Config{Dimension: 2, Metric: "euclidean"},
		WithLogger(nil), WithMetricsCollector(nil))
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 2}, ""))
	results, err := db.Search(ctx, []float32{1, 2}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, db.Delete(ctx, "a"))
}

func TestCosineSearchOrdering(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 3, Metric: "cosine"})
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0, 0}, ""))
	require.NoError(t, db.Insert(ctx, "b", []float32{0, 1, 0}, ""))
	require.NoError(t, db.Insert(ctx, "c", []float32{0.9, 0.1, 0}, ""))

	results, err := db.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.9939, results[1].Score, 1e-3)
}

func TestEuclideanSelfMatch(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "euclidean"})
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "p", []float32{0, 0}, ""))
	require.NoError(t, db.Insert(ctx, "q", []float32{3, 4}, ""))

	results, err := db.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p", results[0].ID)
	assert.InDelta(t, 0.0, results[0].Score, 1e-9)

	results, err = db.Search(ctx, []float32{3, 4}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "q", results[0].ID)
	assert.InDelta(t, 0.0, results[0].Score, 1e-9)
}

func TestDeleteExcludesFromResults(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 4, Metric: "dot"})
	ctx := context.Background()

	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 600; i++ {
		v := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
		require.NoError(t, db.Insert(ctx, fmt.Sprintf("v%d", i), v, ""))
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, db.Delete(ctx, fmt.Sprintf("v%d", i*6)))
	}
	require.Equal(t, 500, db.Len())

	for q := 0; q < 5; q++ {
		query := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
		results, err := db.Search(ctx, query, 50)
		require.NoError(t, err)
		require.Len(t, results, 50)
		for _, r := range results {
			var n int
			_, scanErr := fmt.Sscanf(r.ID, "v%d", &n)
			require.NoError(t, scanErr)
			assert.NotZero(t, n%6, "deleted id %s surfaced", r.ID)
		}
	}
}

func TestInsertValidation(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 3})
	ctx := context.Background()

	var dm *ErrDimensionMismatch
	err := db.Insert(ctx, "short", []float32{1, 2}, "")
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)

	var iv *ErrInvalidVector
	err = db.Insert(ctx, "nan", []float32{1, float32(math.NaN()), 0}, "")
	require.ErrorAs(t, err, &iv)
	assert.Equal(t, 1, iv.Position)

	err = db.Insert(ctx, "inf", []float32{1, 2, float32(math.Inf(1))}, "")
	assert.ErrorAs(t, err, &iv)

	// Failed inserts must leave no trace in either structure.
	assert.Equal(t, 0, db.Len())
	_, err = db.Get("nan")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDegenerateVector(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "cosine"})
	ctx := context.Background()

	err := db.Insert(ctx, "zero", []float32{0, 0}, "")
	assert.ErrorIs(t, err, ErrDegenerateVector)
	assert.Equal(t, 0, db.Len())

	// Opt-in keeps the zero vector; it scores 0 against everything.
	permissive := newTestDB(t, Config{Dimension: 2, Metric: "cosine"}, WithAllowDegenerateVectors())
	require.NoError(t, permissive.Insert(ctx, "zero", []float32{0, 0}, ""))
	require.NoError(t, permissive.Insert(ctx, "one", []float32{1, 0}, ""))

	results, err := permissive.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "one", results[0].ID)
	assert.InDelta(t, 0.0, results[1].Score, 1e-9)
}

func TestZeroNormQueryAllowed(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "cosine"})
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0}, ""))

	results, err := db.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.0, results[0].Score, 1e-9)
}

func TestUpsert(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "euclidean"})
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "x", []float32{10, 10}, "old"))
	require.NoError(t, db.Insert(ctx, "x", []float32{1, 1}, "new"))
	assert.Equal(t, 1, db.Len())

	rec, err := db.Get("x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, rec.Vector)
	assert.Equal(t, "new", rec.Metadata)

	results, err := db.Search(ctx, []float32{1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
	assert.InDelta(t, 0.0, results[0].Score, 1e-9)
}

func TestDeleteInsertRoundTrip(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 3})
	ctx := context.Background()

	v := []float32{0.3, 0.4, 0.5}
	require.NoError(t, db.Insert(ctx, "r", v, "meta"))
	first, err := db.Get("r")
	require.NoError(t, err)

	require.NoError(t, db.Delete(ctx, "r"))
	_, err = db.Get("r")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Insert(ctx, "r", v, "meta"))
	second, err := db.Get("r")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDeleteNotFound(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2})
	err := db.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchValidation(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2})
	ctx := context.Background()

	_, err := db.Search(ctx, []float32{1, 0}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	var dm *ErrDimensionMismatch
	_, err = db.Search(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorAs(t, err, &dm)

	var iv *ErrInvalidVector
	_, err = db.Search(ctx, []float32{float32(math.Inf(-1)), 0}, 1)
	assert.ErrorAs(t, err, &iv)
}

func TestInsertBatch(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "dot"})
	ctx := context.Background()

	errs := db.InsertBatch(ctx, []BatchItem{
		{ID: "ok1", Vector: []float32{1, 0}},
		{ID: "bad", Vector: []float32{1}},
		{ID: "ok2", Vector: []float32{0, 1}, Metadata: "m"},
	})

	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])
	assert.Equal(t, 2, db.Len())
}

func TestInsertHookMutatesVector(t *testing.T) {
	clamp, err := plugin.NewClamp(-1, 1)
	require.NoError(t, err)

	db := newTestDB(t, Config{Dimension: 2, Metric: "dot"},
		WithHooks(plugin.NewRegistry(clamp)))
	ctx := context.Background()

	original := []float32{5, 0}
	require.NoError(t, db.Insert(ctx, "a", original, ""))

	// The caller's slice stays untouched; the stored vector is clamped.
	assert.Equal(t, []float32{5, 0}, original)
	rec, err := db.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, rec.Vector)
}

type vetoHook struct {
	plugin.NopHook
}

func (vetoHook) Name() string { return "veto" }

func (vetoHook) OnInsert(string, []float32, *string) error {
	return errors.New("rejected by policy")
}

func TestInsertHookVeto(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2}, WithHooks(plugin.NewRegistry(vetoHook{})))

	err := db.Insert(context.Background(), "a", []float32{1, 0}, "")
	require.Error(t, err)
	assert.Equal(t, 0, db.Len())
}

func TestSearchResultHookFilters(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "dot"},
		WithHooks(plugin.NewRegistry(plugin.NewMinScoreFilter(0.5))))
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "high", []float32{1, 0}, ""))
	require.NoError(t, db.Insert(ctx, "low", []float32{0.1, 0}, ""))

	results, err := db.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "high", results[0].ID)
}

func TestConfigPlugins(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "dot", Plugins: []string{"clamp", "min_score=0.5"}})
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "a", []float32{7, 0}, ""))

	rec, err := db.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, rec.Vector)
}

func TestMetrics(t *testing.T) {
	mc := &BasicMetricsCollector{}
	db := newTestDB(t, Config{Dimension: 2, Metric: "dot"}, WithMetricsCollector(mc))
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0}, ""))
	_, err := db.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	_ = db.Delete(ctx, "missing")

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.InsertCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(1), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.DeleteErrors)
}

func TestStats(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "dot"})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.Insert(ctx, fmt.Sprintf("v%d", i), []float32{float32(i), 1}, ""))
	}

	s := db.Stats()
	assert.Equal(t, 5, s.Records)
	assert.Equal(t, 5, s.Index.Live)
	assert.Equal(t, int64(0), s.ActiveSearches)
}

func TestScan(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "dot"})
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0}, ""))
	require.NoError(t, db.Insert(ctx, "b", []float32{0, 1}, ""))

	seen := map[string]bool{}
	for rec := range db.Scan() {
		seen[rec.ID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
}

func TestClosed(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2})
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	ctx := context.Background()
	assert.ErrorIs(t, db.Insert(ctx, "a", []float32{1, 0}, ""), ErrClosed)
	_, err := db.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.Delete(ctx, "a"), ErrClosed)
	_, err = db.Get("a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.SaveSnapshot(ctx, "unused"), ErrClosed)
}

func TestPersistentReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	cfg := Config{Dimension: 2, Metric: "euclidean", StoragePath: path}
	ctx := context.Background()

	db, err := New(ctx, cfg, WithRandomSeed(1))
	require.NoError(t, err)
	require.NoError(t, db.Insert(ctx, "kept", []float32{3, 4}, "meta"))
	require.NoError(t, db.Close())

	db2, err := New(ctx, cfg, WithRandomSeed(1))
	require.NoError(t, err)
	defer db2.Close()

	assert.Equal(t, 1, db2.Len())
	results, err := db2.Search(ctx, []float32{3, 4}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kept", results[0].ID)
	assert.Equal(t, "meta", results[0].Metadata)
}

func TestSnapshotRestore(t *testing.T) {
	cfg := Config{Dimension: 3, Metric: "cosine"}
	ctx := context.Background()

	db := newTestDB(t, cfg)
	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0, 0}, "first"))
	require.NoError(t, db.Insert(ctx, "b", []float32{0, 1, 0}, ""))
	require.NoError(t, db.Insert(ctx, "c", []float32{0.9, 0.1, 0}, ""))

	path := filepath.Join(t.TempDir(), "snap.vbs")
	require.NoError(t, db.SaveSnapshot(ctx, path))

	restored, err := Restore(ctx, path, cfg, WithRandomSeed(42))
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, 3, restored.Len())

	want, err := db.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	got, err := restored.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	rec, err := restored.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "first", rec.Metadata)
}

func TestSnapshotRestoreConfigMismatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, Config{Dimension: 2, Metric: "dot"})
	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0}, ""))

	path := filepath.Join(t.TempDir(), "snap.vbs")
	require.NoError(t, db.SaveSnapshot(ctx, path))

	var dm *ErrDimensionMismatch
	_, err := Restore(ctx, path, Config{Dimension: 3, Metric: "dot"})
	assert.ErrorAs(t, err, &dm)

	var ic *ErrInvalidConfig
	_, err = Restore(ctx, path, Config{Dimension: 2, Metric: "cosine"})
	assert.ErrorAs(t, err, &ic)
}

func TestResourceLimits(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 2, Metric: "dot"},
		WithResourceLimits(resource.Config{MaxConcurrentSearches: 1}))
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "a", []float32{1, 0}, ""))

	// With one slot and no holder, a search proceeds normally.
	results, err := db.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestNormalizationIdempotence(t *testing.T) {
	db := newTestDB(t, Config{Dimension: 3, Metric: "cosine"})
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, "v", []float32{3, 4, 12}, ""))
	rec, err := db.Get("v")
	require.NoError(t, err)

	// The stored vector is already unit length; reinserting it must store
	// the same components.
	require.NoError(t, db.Insert(ctx, "v", rec.Vector, ""))
	again, err := db.Get("v")
	require.NoError(t, err)

	for i := range rec.Vector {
		assert.InDelta(t, rec.Vector[i], again.Vector[i], 1e-6)
	}
}
