package vecbase

import (
	"log/slog"

	"github.com/d65v/vecbase/index/hnsw"
	"github.com/d65v/vecbase/plugin"
	"github.com/d65v/vecbase/resource"
	"github.com/d65v/vecbase/similarity"
	"github.com/d65v/vecbase/snapshot"
	"github.com/d65v/vecbase/store"
)

type options struct {
	store                 store.Store
	hooks                 *plugin.Registry
	metricsCollector      MetricsCollector
	logger                *Logger
	resourceLimits        resource.Config
	snapshotCodec         snapshot.Codec
	bruteThreshold        int
	compactionThreshold   float64
	m                     int
	efConstruction        int
	randomSeed            *int64
	allowDegenerate       bool
	haveBruteThreshold    bool
	haveCompactionSetting bool
}

// Option configures database construction.
type Option func(*options)

// WithStore overrides the record store. By default an in-memory store is
// used, or an on-disk store when Config.StoragePath is set.
func WithStore(s store.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithHooks registers a hook registry. Hooks run in registration order,
// outside the database lock.
func WithHooks(r *plugin.Registry) Option {
	return func(o *options) {
		o.hooks = r
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecbase.BasicMetricsCollector{}
//	db, _ := vecbase.New(ctx, cfg, vecbase.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecbase.NewJSONLogger(slog.LevelInfo)
//	db, _ := vecbase.New(ctx, cfg, vecbase.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceLimits configures search admission and snapshot IO limits.
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceLimits = cfg
	}
}

// WithSnapshotCodec selects the compression used by SaveSnapshot.
// Defaults to zstd.
func WithSnapshotCodec(c snapshot.Codec) Option {
	return func(o *options) {
		o.snapshotCodec = c
	}
}

// WithBruteThreshold overrides the collection size at or below which search
// is exact instead of graph-based.
func WithBruteThreshold(n int) Option {
	return func(o *options) {
		o.bruteThreshold = n
		o.haveBruteThreshold = true
	}
}

// WithCompactionThreshold overrides the tombstone ratio that triggers
// physical compaction on delete. Negative disables automatic compaction.
func WithCompactionThreshold(ratio float64) Option {
	return func(o *options) {
		o.compactionThreshold = ratio
		o.haveCompactionSetting = true
	}
}

// WithGraphParameters overrides the graph's neighbor bound and construction
// beam width. Zero values keep the defaults.
func WithGraphParameters(m, efConstruction int) Option {
	return func(o *options) {
		o.m = m
		o.efConstruction = efConstruction
	}
}

// WithRandomSeed pins the graph layer RNG for reproducible builds.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.randomSeed = &seed
	}
}

// WithAllowDegenerateVectors permits inserting zero-norm vectors under the
// cosine metric. They are stored as-is and score zero against everything.
func WithAllowDegenerateVectors() Option {
	return func(o *options) {
		o.allowDegenerate = true
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		snapshotCodec: snapshot.CodecZSTD,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	// Explicit nils disable, they never panic.
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

// indexOptions translates database options into graph options.
func (o options) indexOptions(dimension int, metric similarity.Metric, maxElements int) func(io *hnsw.Options) {
	return func(io *hnsw.Options) {
		io.Dimension = dimension
		io.Metric = metric
		io.MaxElements = maxElements
		if o.m > 0 {
			io.M = o.m
		}
		if o.efConstruction > 0 {
			io.EFConstruction = o.efConstruction
		}
		if o.haveBruteThreshold {
			io.BruteThreshold = o.bruteThreshold
		}
		if o.haveCompactionSetting {
			io.CompactionThreshold = o.compactionThreshold
		}
		io.RandomSeed = o.randomSeed
	}
}
