// Package similarity provides the numeric kernels for vector comparison:
// L2 normalization and the supported similarity metrics.
//
// All scoring functions return float64 with the convention that a higher
// score always means "more similar", regardless of metric. Euclidean is
// mapped into that convention by negating the distance.
package similarity

import (
	"fmt"
	"math"
	"slices"
)

// Metric represents the similarity metric used for vector comparison.
type Metric int

const (
	// MetricCosine scores by dot product of L2-normalized vectors.
	// Vectors must be normalized at insertion/query time; with unit norms
	// the dot product equals the full cosine formula.
	MetricCosine Metric = iota

	// MetricEuclidean scores by negative Euclidean distance.
	MetricEuclidean

	// MetricDot scores by raw, unnormalized dot product.
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricEuclidean:
		return "euclidean"
	case MetricDot:
		return "dot"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

// ParseMetric parses a metric name as it appears in configuration.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "cosine", "":
		return MetricCosine, nil
	case "euclidean":
		return MetricEuclidean, nil
	case "dot":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("similarity: unsupported metric %q (want cosine, euclidean or dot)", s)
	}
}

// RequiresNormalization reports whether vectors must be L2-normalized
// before being stored or queried under this metric.
func (m Metric) RequiresNormalization() bool {
	return m == MetricCosine
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// EuclideanDistance calculates the Euclidean (L2) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Norm computes the L2 norm of a vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// NormalizeInPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm; v is left unchanged in that case.
func NormalizeInPlace(v []float32) bool {
	norm := Norm(v)
	if norm == 0 {
		return false
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeCopy returns an L2-normalized copy of src.
// If src has zero L2 norm, it returns an unmodified copy and false.
func NormalizeCopy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	ok := NormalizeInPlace(dst)
	return dst, ok
}

// Score computes the similarity score between two vectors under the given
// metric. Higher is always better. Given finite inputs the result is finite.
func Score(m Metric, a, b []float32) float64 {
	switch m {
	case MetricCosine, MetricDot:
		return Dot(a, b)
	case MetricEuclidean:
		return -EuclideanDistance(a, b)
	default:
		return math.Inf(-1)
	}
}

// Finite reports whether every component of v is a finite number.
// Returns the position of the first non-finite component otherwise.
func Finite(v []float32) (int, bool) {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i, false
		}
	}
	return 0, true
}
