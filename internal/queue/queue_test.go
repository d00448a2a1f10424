package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestFirstOrder(t *testing.T) {
	pq := NewBestFirst(4)
	pq.Push(Item{Node: 1, Score: 0.5, Seq: 1})
	pq.Push(Item{Node: 2, Score: 0.9, Seq: 2})
	pq.Push(Item{Node: 3, Score: 0.1, Seq: 3})

	it, ok := pq.Pop()
	require.True(t, ok)
	assert.Equal(t, uint32(2), it.Node)

	it, _ = pq.Pop()
	assert.Equal(t, uint32(1), it.Node)

	it, _ = pq.Pop()
	assert.Equal(t, uint32(3), it.Node)

	_, ok = pq.Pop()
	assert.False(t, ok)
}

func TestWorstFirstEviction(t *testing.T) {
	pq := NewWorstFirst(4)
	pq.Push(Item{Node: 1, Score: 0.5})
	pq.Push(Item{Node: 2, Score: 0.9})
	pq.Push(Item{Node: 3, Score: 0.1})

	// Worst on top for cheap eviction.
	it, ok := pq.Top()
	require.True(t, ok)
	assert.Equal(t, uint32(3), it.Node)

	best, ok := pq.Best()
	require.True(t, ok)
	assert.Equal(t, uint32(2), best.Node)
}

func TestTieBreakBySequence(t *testing.T) {
	// Equal scores rank by ascending insertion sequence.
	pq := NewBestFirst(4)
	pq.Push(Item{Node: 7, Score: 1.0, Seq: 12})
	pq.Push(Item{Node: 8, Score: 1.0, Seq: 3})
	pq.Push(Item{Node: 9, Score: 1.0, Seq: 7})

	var order []uint32
	for pq.Len() > 0 {
		it, _ := pq.Pop()
		order = append(order, it.Node)
	}
	assert.Equal(t, []uint32{8, 9, 7}, order)

	// Worst-first evicts the highest sequence among ties.
	wq := NewWorstFirst(4)
	wq.Push(Item{Node: 7, Score: 1.0, Seq: 12})
	wq.Push(Item{Node: 8, Score: 1.0, Seq: 3})
	worst, _ := wq.Pop()
	assert.Equal(t, uint32(7), worst.Node)
}

func TestReset(t *testing.T) {
	pq := NewBestFirst(2)
	pq.Push(Item{Node: 1, Score: 1})
	pq.Reset()
	assert.Equal(t, 0, pq.Len())
	_, ok := pq.Top()
	assert.False(t, ok)
}
