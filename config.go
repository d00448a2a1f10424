package vecbase

import (
	"github.com/d65v/vecbase/similarity"
)

// Config is the immutable core configuration of a database. Dimension and
// Metric are fixed for the lifetime of the data they describe.
type Config struct {
	// Dimension is the vector dimensionality, enforced on every insert and
	// query. Required.
	Dimension int

	// Metric selects the similarity formula: "cosine", "euclidean" or
	// "dot". Defaults to "cosine".
	Metric string

	// MaxElements is a soft capacity hint. Inserts beyond it succeed but
	// are logged. 0 means unbounded.
	MaxElements int

	// StoragePath, when set, backs records with an on-disk store instead
	// of memory. The index is rebuilt from the store on open.
	StoragePath string

	// Plugins lists built-in hooks to register, in dispatch order, e.g.
	// "clamp" or "min_score=0.25". See plugin.FromSpec.
	Plugins []string
}

// Validate checks the configuration and resolves the metric.
func (c Config) Validate() (similarity.Metric, error) {
	if c.Dimension <= 0 {
		return 0, &ErrInvalidConfig{Field: "Dimension", Reason: "must be positive"}
	}

	name := c.Metric
	if name == "" {
		name = "cosine"
	}
	metric, err := similarity.ParseMetric(name)
	if err != nil {
		return 0, &ErrInvalidConfig{Field: "Metric", Reason: err.Error()}
	}

	if c.MaxElements < 0 {
		return 0, &ErrInvalidConfig{Field: "MaxElements", Reason: "must not be negative"}
	}
	return metric, nil
}
