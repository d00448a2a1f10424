// Package hnsw implements the approximate nearest-neighbor index: a layered
// proximity graph in the HNSW family with an exact brute-force fallback for
// small collections.
//
// Nodes live in a dense arena indexed by integer position; neighbor lists
// hold arena indices, not owning references. Record data is owned by the
// store layer — the index only keeps the identifier back-reference and a
// shared, immutable view of the vector for scoring.
//
// The index is not safe for concurrent use by itself; the orchestrator
// above serializes writes and shares reads under a single lock.
package hnsw

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/d65v/vecbase/internal/queue"
	"github.com/d65v/vecbase/internal/visited"
	"github.com/d65v/vecbase/similarity"
)

const (
	// DefaultM is the default maximum number of neighbors per node per layer.
	DefaultM = 16

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// DefaultBruteThreshold is the live-node count at or below which search
	// falls back to exact brute-force scoring. Graph-traversal overhead
	// dominates at small scale.
	DefaultBruteThreshold = 500

	// DefaultCompactionThreshold is the tombstoned/total node ratio above
	// which a delete triggers physical compaction.
	DefaultCompactionThreshold = 0.2

	// efSearchFactor scales top-k into the layer-0 beam width at query time.
	efSearchFactor = 4
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("hnsw: k must be positive")

	// ErrEmptyVector is returned when an empty vector is inserted.
	ErrEmptyVector = errors.New("hnsw: empty vector")
)

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrNodeNotFound indicates an operation referenced an id with no live node.
type ErrNodeNotFound struct {
	ID string
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("hnsw: node not found: %s", e.ID)
}

// ErrDuplicateID indicates an insert for an id that already has a live node.
// The orchestrator implements upsert as delete-then-insert; a duplicate
// reaching the index is a bug in the layer above.
type ErrDuplicateID struct {
	ID string
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("hnsw: duplicate id: %s", e.ID)
}

// Candidate is a single search hit: a record identifier with its score.
type Candidate struct {
	ID    string
	Score float64
}

// Options represents the options for configuring the index.
type Options struct {
	// Dimension is the fixed vector dimensionality, enforced on every insert.
	Dimension int

	// M is the maximum number of neighbors per node per layer.
	M int

	// EFConstruction is the beam width used while linking a new node.
	// If 0, it defaults to 8*M.
	EFConstruction int

	// BruteThreshold is the live count at or below which search is exact.
	BruteThreshold int

	// CompactionThreshold is the tombstone ratio that triggers compaction
	// on delete. Negative disables automatic compaction.
	CompactionThreshold float64

	// Metric selects the scoring formula. Vectors are expected to arrive
	// already normalized when the metric requires it.
	Metric similarity.Metric

	// MaxElements is a soft capacity hint used to size initial allocations.
	MaxElements int

	// RandomSeed pins the layer-assignment RNG for deterministic graphs.
	RandomSeed *int64
}

// DefaultOptions contains the default configuration options for the index.
var DefaultOptions = Options{
	M:                   DefaultM,
	BruteThreshold:      DefaultBruteThreshold,
	CompactionThreshold: DefaultCompactionThreshold,
	Metric:              similarity.MetricCosine,
}

// node is one entry in the dense arena. A node present at layer L has
// neighbor lists for every layer <= L.
type node struct {
	id        string
	vector    []float32 // shared with the stored record, never mutated
	level     int
	seq       uint64
	neighbors [][]uint32 // per layer, each at most M entries
}

// Index is the layered proximity graph with brute-force fallback.
type Index struct {
	opts      Options
	layerMult float64 // 1 / ln(M)

	nodes      []*node
	byID       map[string]uint32 // live nodes only
	tombstones *roaring.Bitmap

	entry    uint32
	hasEntry bool
	maxLevel int
	nextSeq  uint64

	rng *rand.Rand

	bestPool    *sync.Pool
	worstPool   *sync.Pool
	visitedPool *sync.Pool
}

// New creates a new index instance.
func New(optFns ...func(o *Options)) (*Index, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("hnsw: invalid dimension: %d", opts.Dimension)
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = 8 * opts.M
	}
	if opts.BruteThreshold < 0 {
		opts.BruteThreshold = 0
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	initialCap := 1024
	if opts.MaxElements > 0 && opts.MaxElements < initialCap {
		initialCap = opts.MaxElements
	}

	h := &Index{
		opts:       opts,
		layerMult:  1 / math.Log(float64(opts.M)),
		nodes:      make([]*node, 0, initialCap),
		byID:       make(map[string]uint32, initialCap),
		tombstones: roaring.New(),
		rng:        rng,
		bestPool: &sync.Pool{
			New: func() any { return queue.NewBestFirst(opts.EFConstruction) },
		},
		worstPool: &sync.Pool{
			New: func() any { return queue.NewWorstFirst(opts.EFConstruction) },
		},
		visitedPool: &sync.Pool{
			New: func() any { return visited.New(1024) },
		},
	}

	return h, nil
}

// Dimension returns the configured vector dimensionality.
func (h *Index) Dimension() int { return h.opts.Dimension }

// Len returns the number of live (non-tombstoned) nodes.
func (h *Index) Len() int { return len(h.byID) }

// Contains reports whether the id has a live node in the graph.
func (h *Index) Contains(id string) bool {
	_, ok := h.byID[id]
	return ok
}

// score computes the similarity of v against the node at idx.
func (h *Index) score(v []float32, idx uint32) float64 {
	return similarity.Score(h.opts.Metric, v, h.nodes[idx].vector)
}

// randomLevel draws a top layer from a geometric-like distribution: given
// presence at layer l, the node reaches layer l+1 with probability 1/M.
// The draw is capped at the graph's current maximum layer plus one.
func (h *Index) randomLevel() int {
	limit := 0
	if h.hasEntry {
		limit = h.maxLevel + 1
	}
	level := 0
	p := 1 / float64(h.opts.M)
	for level < limit && h.rng.Float64() < p {
		level++
	}
	return level
}

// Insert adds a vector under the given id. The id must not have a live node;
// upsert is delete-then-insert in the layer above.
func (h *Index) Insert(id string, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	if len(vec) != h.opts.Dimension {
		return &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(vec)}
	}
	if _, ok := h.byID[id]; ok {
		return &ErrDuplicateID{ID: id}
	}

	level := h.randomLevel()

	n := &node{
		id:        id,
		vector:    vec,
		level:     level,
		seq:       h.nextSeq,
		neighbors: make([][]uint32, level+1),
	}
	h.nextSeq++

	idx := uint32(len(h.nodes))
	h.nodes = append(h.nodes, n)
	h.byID[id] = idx

	if !h.hasEntry {
		h.entry = idx
		h.hasEntry = true
		h.maxLevel = level
		return nil
	}

	h.linkNode(idx, n)

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = idx
	}
	return nil
}

// linkNode walks the graph and wires the new node into every layer it joins.
func (h *Index) linkNode(idx uint32, n *node) {
	curr := h.entry
	currScore := h.score(n.vector, curr)

	// Greedy single-best-first descent through the layers above the node's
	// assigned layer, finding a local entry for the next layer down.
	for level := h.maxLevel; level > n.level; level-- {
		curr, currScore = h.greedyStep(n.vector, curr, currScore, level)
	}

	// From the assigned layer down to 0: beam search for candidates, keep
	// the closest M, and insert symmetric back-links.
	for level := min(n.level, h.maxLevel); level >= 0; level-- {
		results := h.searchLayer(n.vector, curr, currScore, level, h.opts.EFConstruction)

		if best, ok := results.Best(); ok {
			curr = best.Node
			currScore = best.Score
		}

		n.neighbors[level] = h.selectClosest(results, h.opts.M, idx)
		results.Reset()
		h.worstPool.Put(results)

		for _, neighborIdx := range n.neighbors[level] {
			h.addLink(neighborIdx, idx, level)
		}
	}
}

// greedyStep repeatedly moves to the best-scoring live neighbor on the given
// layer until no neighbor improves on the current position.
func (h *Index) greedyStep(v []float32, curr uint32, currScore float64, level int) (uint32, float64) {
	for changed := true; changed; {
		changed = false
		for _, next := range h.neighborsAt(curr, level) {
			// Tombstoned nodes are never greedy-descent targets.
			if h.tombstones.Contains(next) {
				continue
			}
			if s := h.score(v, next); s > currScore {
				curr = next
				currScore = s
				changed = true
			}
		}
	}
	return curr, currScore
}

func (h *Index) neighborsAt(idx uint32, level int) []uint32 {
	n := h.nodes[idx]
	if level > n.level {
		return nil
	}
	return n.neighbors[level]
}

// searchLayer runs a bounded beam search on one layer: best-first expansion
// with a worst-first result set capped at ef. Tombstoned nodes are expanded
// through but never collected, so traversal routes around deletions.
// The returned queue must be Reset and put back into worstPool by the caller.
func (h *Index) searchLayer(query []float32, epIdx uint32, epScore float64, level, ef int) *queue.PriorityQueue {
	seen := h.visitedPool.Get().(*visited.Set)
	seen.Reset()
	defer h.visitedPool.Put(seen)

	candidates := h.bestPool.Get().(*queue.PriorityQueue)
	candidates.Reset()
	defer func() {
		candidates.Reset()
		h.bestPool.Put(candidates)
	}()

	results := h.worstPool.Get().(*queue.PriorityQueue)
	results.Reset()

	seen.Visit(epIdx)

	// The entry point always seeds traversal, even when tombstoned.
	candidates.Push(queue.Item{Node: epIdx, Score: epScore, Seq: h.nodes[epIdx].seq})
	if !h.tombstones.Contains(epIdx) {
		results.Push(queue.Item{Node: epIdx, Score: epScore, Seq: h.nodes[epIdx].seq})
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.Pop()

		if results.Len() >= ef {
			if worst, ok := results.Top(); ok && worst.Score > curr.Score {
				break
			}
		}

		for _, next := range h.neighborsAt(curr.Node, level) {
			if seen.Visited(next) {
				continue
			}
			seen.Visit(next)

			s := h.score(query, next)

			// Skip obviously-bad candidates once the result set is full.
			if results.Len() >= ef {
				if worst, ok := results.Top(); ok && s < worst.Score {
					continue
				}
			}

			candidates.Push(queue.Item{Node: next, Score: s, Seq: h.nodes[next].seq})

			if !h.tombstones.Contains(next) {
				results.Push(queue.Item{Node: next, Score: s, Seq: h.nodes[next].seq})
				if results.Len() > ef {
					_, _ = results.Pop()
				}
			}
		}
	}

	return results
}

// selectClosest drains the worst-first result queue and keeps the closest m
// nodes: furthest-first pruning after the candidate merge. The new node
// itself is excluded from its own neighbor list.
func (h *Index) selectClosest(results *queue.PriorityQueue, m int, self uint32) []uint32 {
	for results.Len() > m+1 {
		_, _ = results.Pop()
	}

	tmp := make([]queue.Item, 0, results.Len())
	for results.Len() > 0 {
		it, _ := results.Pop()
		if it.Node == self {
			continue
		}
		tmp = append(tmp, it)
	}
	if len(tmp) > m {
		tmp = tmp[len(tmp)-m:]
	}

	// Worst-first pops yielded worst-to-best; reverse to best-first.
	selected := make([]uint32, len(tmp))
	for i, it := range tmp {
		selected[len(tmp)-1-i] = it.Node
	}
	return selected
}

// addLink adds a back-link source -> target on the given layer, pruning the
// weakest edge when the neighbor bound M would be exceeded.
func (h *Index) addLink(sourceIdx, targetIdx uint32, level int) {
	src := h.nodes[sourceIdx]
	if level > src.level {
		return
	}

	conns := src.neighbors[level]
	for _, c := range conns {
		if c == targetIdx {
			return
		}
	}

	if len(conns) < h.opts.M {
		src.neighbors[level] = append(conns, targetIdx)
		return
	}

	// Merge and keep the closest M.
	merged := h.worstPool.Get().(*queue.PriorityQueue)
	merged.Reset()
	defer func() {
		merged.Reset()
		h.worstPool.Put(merged)
	}()

	for _, c := range conns {
		merged.Push(queue.Item{Node: c, Score: h.score(src.vector, c), Seq: h.nodes[c].seq})
	}
	merged.Push(queue.Item{Node: targetIdx, Score: h.score(src.vector, targetIdx), Seq: h.nodes[targetIdx].seq})

	src.neighbors[level] = h.selectClosest(merged, h.opts.M, sourceIdx)
}

// Delete tombstones the node for id. The node stays in the arena — excluded
// from results and from greedy targets, routed through during expansion —
// until compaction physically removes it.
func (h *Index) Delete(id string) error {
	idx, ok := h.byID[id]
	if !ok {
		return &ErrNodeNotFound{ID: id}
	}

	delete(h.byID, id)
	h.tombstones.Add(idx)

	if h.hasEntry && idx == h.entry {
		h.reassignEntry()
	}

	if h.opts.CompactionThreshold >= 0 && len(h.nodes) > 0 {
		ratio := float64(h.tombstones.GetCardinality()) / float64(len(h.nodes))
		if ratio > h.opts.CompactionThreshold {
			h.Compact()
		}
	}
	return nil
}

// reassignEntry promotes the live node with the highest layer (ties broken
// by ascending insertion sequence) to entry point.
func (h *Index) reassignEntry() {
	h.hasEntry = false
	h.maxLevel = 0

	var best *node
	var bestIdx uint32
	for _, idx := range h.byID {
		n := h.nodes[idx]
		if best == nil || n.level > best.level || (n.level == best.level && n.seq < best.seq) {
			best = n
			bestIdx = idx
		}
	}
	if best != nil {
		h.entry = bestIdx
		h.hasEntry = true
		h.maxLevel = best.level
	}
}

// Search returns the top-k live candidates for the query, ordered by
// descending score with ties broken by ascending insertion sequence.
// Collections at or below BruteThreshold are scored exactly.
func (h *Index) Search(query []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != h.opts.Dimension {
		return nil, &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(query)}
	}
	if len(h.byID) == 0 {
		return nil, nil
	}

	if len(h.byID) <= h.opts.BruteThreshold {
		return h.BruteSearch(query, k)
	}
	return h.graphSearch(query, k)
}

// BruteSearch performs exact scoring against every live node.
func (h *Index) BruteSearch(query []float32, k int) ([]Candidate, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != h.opts.Dimension {
		return nil, &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(query)}
	}

	top := queue.NewWorstFirst(k)
	for _, idx := range h.byID {
		it := queue.Item{Node: idx, Score: h.score(query, idx), Seq: h.nodes[idx].seq}
		if top.Len() < k {
			top.Push(it)
			continue
		}
		if worst, ok := top.Top(); ok && queue.Better(it, worst) {
			_, _ = top.Pop()
			top.Push(it)
		}
	}

	return h.drainCandidates(top), nil
}

// graphSearch descends greedily to layer 0 and runs a beam search there.
func (h *Index) graphSearch(query []float32, k int) ([]Candidate, error) {
	curr := h.entry
	currScore := h.score(query, curr)

	for level := h.maxLevel; level > 0; level-- {
		curr, currScore = h.greedyStep(query, curr, currScore, level)
	}

	ef := max(efSearchFactor*k, k)
	results := h.searchLayer(query, curr, currScore, 0, ef)
	defer func() {
		results.Reset()
		h.worstPool.Put(results)
	}()

	for results.Len() > k {
		_, _ = results.Pop()
	}
	return h.drainCandidates(results), nil
}

// drainCandidates empties a worst-first queue into a best-first slice.
func (h *Index) drainCandidates(pq *queue.PriorityQueue) []Candidate {
	out := make([]Candidate, pq.Len())
	for i := pq.Len() - 1; i >= 0; i-- {
		it, _ := pq.Pop()
		out[i] = Candidate{ID: h.nodes[it.Node].id, Score: it.Score}
	}
	return out
}
