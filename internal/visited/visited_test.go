package visited

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisitAndReset(t *testing.T) {
	v := New(16)

	assert.False(t, v.Visited(3))
	v.Visit(3)
	v.Visit(15)
	assert.True(t, v.Visited(3))
	assert.True(t, v.Visited(15))
	assert.False(t, v.Visited(4))

	v.Reset()
	assert.False(t, v.Visited(3))
	assert.False(t, v.Visited(15))
}

func TestGrowBeyondCapacity(t *testing.T) {
	v := New(8)
	v.Visit(1000)
	assert.True(t, v.Visited(1000))
	assert.False(t, v.Visited(999))

	// Out-of-range query never panics.
	assert.False(t, v.Visited(1 << 20))
}
