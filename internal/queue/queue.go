// Package queue implements the priority queues used by graph construction
// and search. Ordering is by similarity score (higher is better); equal
// scores are broken by ascending insertion sequence number so that result
// order is stable and deterministic.
package queue

// Item represents a scored graph node in the priority queue.
type Item struct {
	Node  uint32  // dense arena index of the node
	Score float64 // similarity score, higher is better
	Seq   uint64  // insertion sequence number, tie-break
}

// Better reports whether a ranks ahead of b in final result order.
func Better(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Seq < b.Seq
}

// PriorityQueue holds Items in either best-first or worst-first order.
// Best-first queues pop the highest-scoring item (candidate exploration);
// worst-first queues keep the current worst on top so a bounded result set
// can evict it cheaply.
type PriorityQueue struct {
	worstFirst bool
	items      []Item
}

// NewBestFirst initializes a queue that pops the best item first.
func NewBestFirst(capacity int) *PriorityQueue {
	return &PriorityQueue{worstFirst: false, items: make([]Item, 0, capacity)}
}

// NewWorstFirst initializes a queue that pops the worst item first.
func NewWorstFirst(capacity int) *PriorityQueue {
	return &PriorityQueue{worstFirst: true, items: make([]Item, 0, capacity)}
}

// Len returns the number of items in the queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Reset clears the queue, retaining the backing storage.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

// Top returns the top element of the heap without removing it.
func (pq *PriorityQueue) Top() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) Push(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// Pop removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) Pop() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items[n-1] = Item{}
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// Best returns the highest-ranked item currently in the queue.
// For best-first queues this is the top element; for worst-first queues
// this scans the backing slice.
func (pq *PriorityQueue) Best() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	if !pq.worstFirst {
		return pq.items[0], true
	}
	best := pq.items[0]
	for _, it := range pq.items[1:] {
		if Better(it, best) {
			best = it
		}
	}
	return best, true
}

// Items returns the backing slice in heap order. The slice is owned by the
// queue and only valid until the next mutation.
func (pq *PriorityQueue) Items() []Item { return pq.items }

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.worstFirst {
		return Better(pq.items[j], pq.items[i])
	}
	return Better(pq.items[i], pq.items[j])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}
