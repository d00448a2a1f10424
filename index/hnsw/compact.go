package hnsw

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/d65v/vecbase/internal/queue"
)

// Compact physically removes tombstoned nodes from the arena and relinks
// the survivors: neighbors that referenced a tombstoned node inherit its
// live neighbors on the same layer, then prune back to the closest M.
//
// Compaction affects memory use only; search correctness and connectivity
// are preserved whether or not it ever runs.
func (h *Index) Compact() {
	if h.tombstones.IsEmpty() {
		return
	}

	// Map old arena indices to new, preserving arena order (and with it the
	// relative insertion-sequence layout).
	remap := make(map[uint32]uint32, len(h.byID))
	compacted := make([]*node, 0, len(h.byID))
	for oldIdx, n := range h.nodes {
		if h.tombstones.Contains(uint32(oldIdx)) {
			continue
		}
		remap[uint32(oldIdx)] = uint32(len(compacted))
		compacted = append(compacted, n)
	}

	// Relink while the old arena is still addressable. Tombstoned nodes'
	// neighbor lists are read (to route around them) but never rewritten.
	for oldIdx, n := range h.nodes {
		if h.tombstones.Contains(uint32(oldIdx)) {
			continue
		}
		for level := 0; level <= n.level; level++ {
			n.neighbors[level] = h.relinkLayer(n, uint32(oldIdx), level, remap)
		}
	}

	h.nodes = compacted
	h.byID = make(map[string]uint32, len(compacted))
	for idx, n := range compacted {
		h.byID[n.id] = uint32(idx)
	}
	h.tombstones = roaring.New()
	h.reassignEntry()
}

// relinkLayer rebuilds one neighbor list in new arena indices. Tombstoned
// neighbors are replaced by their own live neighbors on the same layer; the
// merged set is pruned furthest-first back to M. Old indices are used for
// scoring; the result is expressed in new indices.
func (h *Index) relinkLayer(n *node, selfOld uint32, level int, remap map[uint32]uint32) []uint32 {
	candidates := make(map[uint32]struct{}, len(n.neighbors[level]))

	var add func(old uint32, throughTombstone bool)
	add = func(old uint32, throughTombstone bool) {
		if old == selfOld {
			return
		}
		if !h.tombstones.Contains(old) {
			candidates[old] = struct{}{}
			return
		}
		if throughTombstone {
			// One hop of routing is enough; chains of tombstones are rare
			// and the graph stays connected through other survivors.
			return
		}
		dead := h.nodes[old]
		if level > dead.level {
			return
		}
		for _, p := range dead.neighbors[level] {
			add(p, true)
		}
	}

	for _, old := range n.neighbors[level] {
		add(old, false)
	}

	items := make([]queue.Item, 0, len(candidates))
	for old := range candidates {
		items = append(items, queue.Item{
			Node:  old,
			Score: h.score(n.vector, old),
			Seq:   h.nodes[old].seq,
		})
	}
	sort.Slice(items, func(i, j int) bool { return queue.Better(items[i], items[j]) })
	if len(items) > h.opts.M {
		items = items[:h.opts.M]
	}

	relinked := make([]uint32, len(items))
	for i, it := range items {
		relinked[i] = remap[it.Node]
	}
	return relinked
}
