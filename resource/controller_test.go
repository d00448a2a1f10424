package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilController(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquireSearch(context.Background()))
	assert.True(t, c.TryAcquireSearch())
	c.ReleaseSearch()
	assert.Equal(t, int64(0), c.ActiveSearches())
	assert.NoError(t, c.AcquireIO(context.Background(), 1<<20))
}

func TestSearchAdmission(t *testing.T) {
	c := NewController(Config{MaxConcurrentSearches: 2})

	require.NoError(t, c.AcquireSearch(context.Background()))
	require.NoError(t, c.AcquireSearch(context.Background()))
	assert.Equal(t, int64(2), c.ActiveSearches())

	assert.False(t, c.TryAcquireSearch())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireSearch(ctx))

	c.ReleaseSearch()
	assert.True(t, c.TryAcquireSearch())

	c.ReleaseSearch()
	c.ReleaseSearch()
	assert.Equal(t, int64(0), c.ActiveSearches())
}

func TestIOUnlimitedByDefault(t *testing.T) {
	c := NewController(Config{})

	start := time.Now()
	require.NoError(t, c.AcquireIO(context.Background(), 100<<20))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestIOLargerThanBurst(t *testing.T) {
	// A request bigger than the bucket must be split, not rejected.
	c := NewController(Config{SnapshotIOBytesPerSec: 1 << 30})

	require.NoError(t, c.AcquireIO(context.Background(), (1<<30)+512))
}

func TestIOCanceled(t *testing.T) {
	c := NewController(Config{SnapshotIOBytesPerSec: 1024})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.AcquireIO(ctx, 4096))
}
