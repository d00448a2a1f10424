package plugin

import (
	"fmt"
	"strconv"
	"strings"
)

// Clamp limits every vector component to [Min, Max] before insert.
type Clamp struct {
	NopHook
	Min float32
	Max float32
}

// NewClamp creates a clamp hook with the given bounds.
func NewClamp(minVal, maxVal float32) (*Clamp, error) {
	if minVal > maxVal {
		return nil, fmt.Errorf("plugin: clamp bounds inverted: [%v, %v]", minVal, maxVal)
	}
	return &Clamp{Min: minVal, Max: maxVal}, nil
}

func (c *Clamp) Name() string { return "clamp" }

func (c *Clamp) OnInsert(_ string, vector []float32, _ *string) error {
	for i, v := range vector {
		switch {
		case v < c.Min:
			vector[i] = c.Min
		case v > c.Max:
			vector[i] = c.Max
		}
	}
	return nil
}

// MinScoreFilter drops search results scoring below Threshold.
type MinScoreFilter struct {
	NopHook
	Threshold float64
}

// NewMinScoreFilter creates a filter hook with the given score floor.
func NewMinScoreFilter(threshold float64) *MinScoreFilter {
	return &MinScoreFilter{Threshold: threshold}
}

func (f *MinScoreFilter) Name() string { return "min_score" }

func (f *MinScoreFilter) OnSearchResults(_ []float32, results *[]Result) error {
	kept := (*results)[:0]
	for _, r := range *results {
		if r.Score >= f.Threshold {
			kept = append(kept, r)
		}
	}
	*results = kept
	return nil
}

// FromSpec builds a built-in hook from a configuration entry of the form
// "name" or "name=arg":
//
//	clamp            clamp components to [-1, 1]
//	clamp=0.5        clamp components to [-0.5, 0.5]
//	min_score=0.25   drop results scoring below 0.25
func FromSpec(spec string) (Hook, error) {
	name, arg, hasArg := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	arg = strings.TrimSpace(arg)

	switch name {
	case "clamp":
		bound := 1.0
		if hasArg {
			v, err := strconv.ParseFloat(arg, 32)
			if err != nil {
				return nil, fmt.Errorf("plugin: invalid clamp bound %q: %w", arg, err)
			}
			bound = v
		}
		return NewClamp(float32(-bound), float32(bound))
	case "min_score":
		if !hasArg {
			return nil, fmt.Errorf("plugin: min_score requires a threshold")
		}
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("plugin: invalid min_score threshold %q: %w", arg, err)
		}
		return NewMinScoreFilter(v), nil
	default:
		return nil, fmt.Errorf("plugin: unknown hook %q", name)
	}
}

// RegistryFromSpecs builds a registry from configuration entries, running
// no hooks. An empty list yields an empty registry.
func RegistryFromSpecs(specs []string) (*Registry, error) {
	r := NewRegistry()
	for _, spec := range specs {
		h, err := FromSpec(spec)
		if err != nil {
			return nil, err
		}
		r.Register(h)
	}
	return r, nil
}

var (
	_ Hook = (*Clamp)(nil)
	_ Hook = (*MinScoreFilter)(nil)
)
