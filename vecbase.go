package vecbase

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/d65v/vecbase/index/hnsw"
	"github.com/d65v/vecbase/plugin"
	"github.com/d65v/vecbase/resource"
	"github.com/d65v/vecbase/similarity"
	"github.com/d65v/vecbase/snapshot"
	"github.com/d65v/vecbase/store"
)

// SearchResult is a single search hit, ordered by descending score with
// ties broken by insertion order.
type SearchResult struct {
	ID       string
	Score    float64
	Metadata string
}

// BatchItem is one record in a batch insert.
type BatchItem struct {
	ID       string
	Vector   []float32
	Metadata string
}

// Stats is a point-in-time view of database state.
type Stats struct {
	Records        int
	Index          hnsw.Stats
	ActiveSearches int64
}

// DB is the database handle. The record store and the graph are guarded by
// one lock and mutated together; hooks run outside it.
type DB struct {
	cfg    Config
	opts   options
	metric similarity.Metric

	ctrl  *resource.Controller
	hooks *plugin.Registry

	mu     sync.RWMutex
	store  store.Store
	index  *hnsw.Index
	closed bool

	warnedCapacity bool // guarded by mu
}

// New creates a database from the given configuration. When the store
// already holds records (a reopened on-disk store), the graph is rebuilt
// from it before the database accepts operations.
func New(ctx context.Context, cfg Config, optFns ...Option) (*DB, error) {
	db, err := newDB(cfg, optFns)
	if err != nil {
		return nil, err
	}

	if db.store.Len() > 0 {
		for rec := range db.store.Scan() {
			if err := db.index.Insert(rec.ID, rec.Vector); err != nil {
				_ = db.store.Close()
				return nil, fmt.Errorf("vecbase: failed to rebuild index from store: %w", translateError(err))
			}
		}
		db.opts.logger.InfoContext(ctx, "index rebuilt from store", "records", db.store.Len())
	}

	if err := db.hooks.Init(ctx); err != nil {
		_ = db.store.Close()
		return nil, err
	}
	return db, nil
}

// Restore creates a database from a snapshot file. The configuration must
// match the one the snapshot was taken under.
func Restore(ctx context.Context, path string, cfg Config, optFns ...Option) (*DB, error) {
	db, err := newDB(cfg, optFns)
	if err != nil {
		return nil, err
	}

	snap, err := snapshot.Load(ctx, path, db.ctrl)
	if err != nil {
		_ = db.store.Close()
		return nil, err
	}
	if snap.Dimension != cfg.Dimension {
		_ = db.store.Close()
		return nil, &ErrDimensionMismatch{Expected: cfg.Dimension, Actual: snap.Dimension}
	}
	if snap.Metric != db.metric.String() {
		_ = db.store.Close()
		return nil, &ErrInvalidConfig{
			Field:  "Metric",
			Reason: fmt.Sprintf("snapshot was taken under %q, config says %q", snap.Metric, db.metric),
		}
	}

	for _, rec := range snap.Records {
		if err := db.store.Put(rec.ID, rec.Vector, rec.Metadata); err != nil {
			_ = db.store.Close()
			return nil, translateError(err)
		}
	}
	if err := db.index.GobDecode(snap.Graph); err != nil {
		_ = db.store.Close()
		return nil, err
	}

	if err := db.hooks.Init(ctx); err != nil {
		_ = db.store.Close()
		return nil, err
	}

	db.opts.logger.InfoContext(ctx, "restored from snapshot", "filename", path, "records", len(snap.Records))
	return db, nil
}

// newDB wires store, index, hooks and resource controller without touching
// any persisted state.
func newDB(cfg Config, optFns []Option) (*DB, error) {
	metric, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	opts := applyOptions(optFns)

	hooks := opts.hooks
	if hooks == nil {
		hooks, err = plugin.RegistryFromSpecs(cfg.Plugins)
		if err != nil {
			return nil, err
		}
	}

	st := opts.store
	if st == nil {
		if cfg.StoragePath != "" {
			st, err = store.NewBoltStore(cfg.StoragePath, cfg.Dimension)
			if err != nil {
				return nil, fmt.Errorf("vecbase: failed to open store: %w", err)
			}
		} else {
			st = store.NewMemoryStore(cfg.Dimension)
		}
	}

	idx, err := hnsw.New(opts.indexOptions(cfg.Dimension, metric, cfg.MaxElements))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &DB{
		cfg:    cfg,
		opts:   opts,
		metric: metric,
		ctrl:   resource.NewController(opts.resourceLimits),
		hooks:  hooks,
		store:  st,
		index:  idx,
	}, nil
}

// prepareVector validates and conditions a vector for storage or querying.
// It returns a private copy; the caller's slice is never retained or
// mutated. strict controls whether a zero norm under cosine is an error.
func (db *DB) prepareVector(v []float32, strict bool) ([]float32, error) {
	if len(v) != db.cfg.Dimension {
		return nil, &ErrDimensionMismatch{Expected: db.cfg.Dimension, Actual: len(v)}
	}
	if pos, ok := similarity.Finite(v); !ok {
		return nil, &ErrInvalidVector{Position: pos}
	}

	out := slices.Clone(v)
	if db.metric.RequiresNormalization() {
		if ok := similarity.NormalizeInPlace(out); !ok && strict && !db.opts.allowDegenerate {
			return nil, ErrDegenerateVector
		}
	}
	return out, nil
}

// Insert adds or replaces the record for id. Insert hooks run first, on a
// private copy of the vector, and may mutate it or veto the operation.
// Replacing an existing id removes the old version and inserts the new one
// as a single atomic step.
func (db *DB) Insert(ctx context.Context, id string, vector []float32, metadata string) error {
	start := time.Now()
	replaced, err := db.insert(ctx, id, vector, metadata)
	db.opts.metricsCollector.RecordInsert(time.Since(start), err)
	db.opts.logger.LogInsert(ctx, id, len(vector), replaced, err)
	return err
}

func (db *DB) insert(ctx context.Context, id string, vector []float32, metadata string) (bool, error) {
	if len(vector) != db.cfg.Dimension {
		return false, &ErrDimensionMismatch{Expected: db.cfg.Dimension, Actual: len(vector)}
	}

	// Hooks see the raw (unnormalized) vector and run outside the lock.
	vec := slices.Clone(vector)
	if err := db.hooks.DispatchInsert(id, vec, &metadata); err != nil {
		return false, err
	}

	vec, err := db.prepareVector(vec, true)
	if err != nil {
		return false, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return false, ErrClosed
	}

	old, existed := db.store.Get(id)

	if err := db.store.Put(id, vec, metadata); err != nil {
		return existed, translateError(err)
	}

	if existed {
		if err := db.index.Delete(id); err != nil {
			_ = db.store.Put(old.ID, old.Vector, old.Metadata)
			return existed, fmt.Errorf("%w: %w", ErrIndexInconsistency, err)
		}
	}

	if err := db.index.Insert(id, vec); err != nil {
		// Compensate: put the previous state back so store and index agree.
		if existed {
			_ = db.store.Put(old.ID, old.Vector, old.Metadata)
			_ = db.index.Insert(old.ID, old.Vector)
		} else {
			_ = db.store.Remove(id)
		}
		return existed, translateError(err)
	}

	if db.cfg.MaxElements > 0 && db.index.Len() > db.cfg.MaxElements && !db.warnedCapacity {
		db.warnedCapacity = true
		db.opts.logger.LogCapacityHint(ctx, db.index.Len(), db.cfg.MaxElements)
	}
	return existed, nil
}

// InsertBatch inserts the given items one at a time and reports per-item
// outcomes: errs[i] is nil when items[i] was applied. A failed item does not
// stop the batch.
func (db *DB) InsertBatch(ctx context.Context, items []BatchItem) []error {
	start := time.Now()

	errs := make([]error, len(items))
	failed := 0
	for i, item := range items {
		if _, err := db.insert(ctx, item.ID, item.Vector, item.Metadata); err != nil {
			errs[i] = err
			failed++
		}
	}

	db.opts.metricsCollector.RecordBatchInsert(len(items), failed, time.Since(start))
	db.opts.logger.LogBatchInsert(ctx, len(items), failed)
	return errs
}

// Search returns the top-k records most similar to query. Result hooks run
// on the assembled results after the read lock is released.
func (db *DB) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	start := time.Now()
	results, err := db.search(ctx, query, k)
	db.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
	db.opts.logger.LogSearch(ctx, k, len(results), err)
	return results, err
}

func (db *DB) search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	// A zero-norm query under cosine is allowed: it scores zero against
	// everything and returns an arbitrary-but-deterministic top-k.
	q, err := db.prepareVector(query, false)
	if err != nil {
		return nil, err
	}

	if err := db.ctrl.AcquireSearch(ctx); err != nil {
		return nil, err
	}
	defer db.ctrl.ReleaseSearch()

	results, err := db.searchLocked(q, k)
	if err != nil {
		return nil, err
	}

	if db.hooks.Len() > 0 {
		hr := make([]plugin.Result, len(results))
		for i, r := range results {
			hr[i] = plugin.Result{ID: r.ID, Score: r.Score, Metadata: r.Metadata}
		}
		if err := db.hooks.DispatchSearchResults(q, &hr); err != nil {
			return nil, err
		}
		results = results[:0]
		for _, r := range hr {
			results = append(results, SearchResult{ID: r.ID, Score: r.Score, Metadata: r.Metadata})
		}
	}
	return results, nil
}

func (db *DB) searchLocked(q []float32, k int) ([]SearchResult, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}

	candidates, err := db.index.Search(q, k)
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := db.store.Get(c.ID)
		if !ok {
			return nil, fmt.Errorf("%w: id %q in index but not in store", ErrIndexInconsistency, c.ID)
		}
		results = append(results, SearchResult{ID: c.ID, Score: c.Score, Metadata: rec.Metadata})
	}
	return results, nil
}

// Get returns the record for id. The returned vector is a copy.
func (db *DB) Get(id string) (store.Record, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return store.Record{}, ErrClosed
	}

	rec, ok := db.store.Get(id)
	if !ok {
		return store.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Vector = slices.Clone(rec.Vector)
	return rec, nil
}

// Delete removes the record for id from both the store and the graph.
func (db *DB) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := db.delete(ctx, id)
	db.opts.metricsCollector.RecordDelete(time.Since(start), err)
	db.opts.logger.LogDelete(ctx, id, err)
	return err
}

func (db *DB) delete(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	if err := db.store.Remove(id); err != nil {
		return translateError(err)
	}

	before := db.index.Stats()
	if err := db.index.Delete(id); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexInconsistency, err)
	}

	// A delete may have crossed the tombstone threshold and compacted.
	if after := db.index.Stats(); after.Nodes < before.Nodes {
		removed := before.Nodes - after.Nodes
		db.opts.metricsCollector.RecordCompaction(removed, 0)
		db.opts.logger.LogCompaction(ctx, removed, after.Live)
	}
	return nil
}

// Compact forces physical removal of tombstoned graph nodes.
func (db *DB) Compact(ctx context.Context) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return
	}

	start := time.Now()
	before := db.index.Stats()
	db.index.Compact()
	after := db.index.Stats()

	removed := before.Nodes - after.Nodes
	if removed > 0 {
		db.opts.metricsCollector.RecordCompaction(removed, time.Since(start))
		db.opts.logger.LogCompaction(ctx, removed, after.Live)
	}
}

// Len returns the number of live records.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.Len()
}

// Scan iterates over a consistent snapshot of all records.
func (db *DB) Scan() iter.Seq[store.Record] {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.store.Scan()
}

// Stats returns a point-in-time view of database state.
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return Stats{
		Records:        db.store.Len(),
		Index:          db.index.Stats(),
		ActiveSearches: db.ctrl.ActiveSearches(),
	}
}

// SaveSnapshot writes the full database state to path atomically. Readers
// and writers are blocked only while state is captured, not during IO.
func (db *DB) SaveSnapshot(ctx context.Context, path string) error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrClosed
	}

	snap := &snapshot.Snapshot{
		Dimension: db.cfg.Dimension,
		Metric:    db.metric.String(),
		Records:   slices.Collect(db.store.Scan()),
	}
	graph, err := db.index.GobEncode()
	db.mu.RUnlock()

	if err != nil {
		db.opts.logger.LogSnapshot(ctx, path, err)
		return err
	}
	snap.Graph = graph

	err = snapshot.Save(ctx, path, snap, db.opts.snapshotCodec, db.ctrl)
	db.opts.logger.LogSnapshot(ctx, path, err)
	return err
}

// Close releases the store. Further operations return ErrClosed.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	return db.store.Close()
}
