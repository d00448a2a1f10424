// Package plugin defines the hook bus: an ordered set of extension points
// invoked around inserts and searches. Hooks run outside the database lock,
// in registration order, and may mutate the payload they are handed.
package plugin

import (
	"context"
	"fmt"
)

// Result is a single search hit as seen by hooks. Search-result hooks may
// rewrite or drop entries in place.
type Result struct {
	ID       string
	Score    float64
	Metadata string
}

// Hook is a lifecycle extension point. Implementations must be safe for
// concurrent use: search hooks run under concurrent readers.
type Hook interface {
	// Name identifies the hook in logs and configuration.
	Name() string

	// OnInit runs once when the database starts, before any data access.
	OnInit(ctx context.Context) error

	// OnInsert runs before a vector is written. The hook may mutate the
	// vector in place or replace the metadata. A non-nil error aborts the
	// insert before any state changes.
	OnInsert(id string, vector []float32, metadata *string) error

	// OnSearchResults runs after a search completes, on a private copy of
	// the result slice. The hook may reorder, rewrite, or shrink it.
	OnSearchResults(query []float32, results *[]Result) error
}

// Registry holds hooks in registration order. It is populated at startup
// and read-only afterwards, so dispatch needs no locking.
type Registry struct {
	hooks []Hook
}

// NewRegistry creates a registry with the given hooks.
func NewRegistry(hooks ...Hook) *Registry {
	return &Registry{hooks: hooks}
}

// Register appends a hook. Must not be called after dispatch has started.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.hooks)
}

// Names returns the registered hook names in dispatch order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.hooks))
	for i, h := range r.hooks {
		names[i] = h.Name()
	}
	return names
}

// Init runs every OnInit in order, stopping at the first failure.
func (r *Registry) Init(ctx context.Context) error {
	if r == nil {
		return nil
	}
	for _, h := range r.hooks {
		if err := h.OnInit(ctx); err != nil {
			return fmt.Errorf("plugin %q: init: %w", h.Name(), err)
		}
	}
	return nil
}

// DispatchInsert runs every OnInsert in order. The first failure aborts the
// chain and the insert.
func (r *Registry) DispatchInsert(id string, vector []float32, metadata *string) error {
	if r == nil {
		return nil
	}
	for _, h := range r.hooks {
		if err := h.OnInsert(id, vector, metadata); err != nil {
			return fmt.Errorf("plugin %q: on insert: %w", h.Name(), err)
		}
	}
	return nil
}

// DispatchSearchResults runs every OnSearchResults in order on the given
// slice. The first failure aborts the chain; the results mutated so far are
// kept.
func (r *Registry) DispatchSearchResults(query []float32, results *[]Result) error {
	if r == nil {
		return nil
	}
	for _, h := range r.hooks {
		if err := h.OnSearchResults(query, results); err != nil {
			return fmt.Errorf("plugin %q: on search results: %w", h.Name(), err)
		}
	}
	return nil
}

// NopHook is a Hook with no behavior, for embedding in hooks that only care
// about a subset of the lifecycle.
type NopHook struct{}

func (NopHook) OnInit(context.Context) error { return nil }

func (NopHook) OnInsert(string, []float32, *string) error { return nil }

func (NopHook) OnSearchResults([]float32, *[]Result) error { return nil }
