// Package resource provides admission control for query concurrency and
// throughput limiting for snapshot IO.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxConcurrentSearches is the maximum number of searches admitted at
	// once. If 0, defaults to 64.
	MaxConcurrentSearches int64

	// SnapshotIOBytesPerSec is the maximum throughput for snapshot reads
	// and writes. If 0, unlimited.
	SnapshotIOBytesPerSec int64
}

// Controller gates searches behind a weighted semaphore and throttles
// snapshot IO with a token bucket. A nil Controller admits everything.
type Controller struct {
	cfg Config

	searchSem    *semaphore.Weighted
	activeSearch atomic.Int64

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentSearches <= 0 {
		cfg.MaxConcurrentSearches = 64
	}

	c := &Controller{
		cfg:       cfg,
		searchSem: semaphore.NewWeighted(cfg.MaxConcurrentSearches),
	}

	if cfg.SnapshotIOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.SnapshotIOBytesPerSec), int(cfg.SnapshotIOBytesPerSec))
	}

	return c
}

// AcquireSearch blocks until a search slot is free or ctx is canceled.
func (c *Controller) AcquireSearch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.searchSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.activeSearch.Add(1)
	return nil
}

// TryAcquireSearch reserves a search slot without blocking.
func (c *Controller) TryAcquireSearch() bool {
	if c == nil {
		return true
	}
	if !c.searchSem.TryAcquire(1) {
		return false
	}
	c.activeSearch.Add(1)
	return true
}

// ReleaseSearch releases a search slot.
func (c *Controller) ReleaseSearch() {
	if c == nil {
		return
	}
	c.activeSearch.Add(-1)
	c.searchSem.Release(1)
}

// ActiveSearches returns the number of searches currently admitted.
func (c *Controller) ActiveSearches() int64 {
	if c == nil {
		return 0
	}
	return c.activeSearch.Load()
}

// AcquireIO waits until the snapshot IO budget allows the specified number
// of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	if bytes <= 0 {
		return nil
	}

	// WaitN cannot exceed the bucket size in one call.
	burst := c.ioLimiter.Burst()
	for bytes > burst {
		if err := c.ioLimiter.WaitN(ctx, burst); err != nil {
			return err
		}
		bytes -= burst
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
