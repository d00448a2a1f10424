package hnsw

// Stats describes the current shape of the graph.
type Stats struct {
	// Nodes is the total number of arena slots, tombstoned included.
	Nodes int

	// Live is the number of searchable nodes.
	Live int

	// Tombstoned is the number of logically deleted nodes awaiting compaction.
	Tombstoned int

	// MaxLevel is the highest layer currently present.
	MaxLevel int

	// EntryID is the identifier of the entry-point node ("" when empty).
	EntryID string

	// LevelCounts is the number of live nodes whose top layer is each level.
	LevelCounts []int
}

// Stats returns statistics about the graph.
func (h *Index) Stats() Stats {
	s := Stats{
		Nodes:      len(h.nodes),
		Live:       len(h.byID),
		Tombstoned: int(h.tombstones.GetCardinality()),
	}
	if h.hasEntry {
		s.MaxLevel = h.maxLevel
		s.EntryID = h.nodes[h.entry].id
		s.LevelCounts = make([]int, h.maxLevel+1)
		for _, idx := range h.byID {
			if lvl := h.nodes[idx].level; lvl <= h.maxLevel {
				s.LevelCounts[lvl]++
			}
		}
	}
	return s
}
