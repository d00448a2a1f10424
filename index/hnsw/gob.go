package hnsw

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// gobNode mirrors node for serialization.
type gobNode struct {
	ID        string
	Vector    []float32
	Level     int
	Seq       uint64
	Neighbors [][]uint32
}

// gobIndex is the serialized graph state. Configuration (dimension, M,
// metric) is not part of the payload: the decoding side constructs the
// index from the same configuration and the payload restores state only.
type gobIndex struct {
	Nodes      []gobNode
	Entry      uint32
	HasEntry   bool
	MaxLevel   int
	NextSeq    uint64
	Tombstones []byte
}

// GobEncode implements gob.GobEncoder.
func (h *Index) GobEncode() ([]byte, error) {
	enc := gobIndex{
		Entry:    h.entry,
		HasEntry: h.hasEntry,
		MaxLevel: h.maxLevel,
		NextSeq:  h.nextSeq,
		Nodes:    make([]gobNode, len(h.nodes)),
	}
	for i, n := range h.nodes {
		enc.Nodes[i] = gobNode{
			ID:        n.id,
			Vector:    n.vector,
			Level:     n.level,
			Seq:       n.seq,
			Neighbors: n.neighbors,
		}
	}

	ts, err := h.tombstones.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("hnsw: failed to serialize tombstones: %w", err)
	}
	enc.Tombstones = ts

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(enc); err != nil {
		return nil, fmt.Errorf("hnsw: failed to encode graph: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder. The receiver must have been created
// with New using the same configuration the encoded graph was built with.
func (h *Index) GobDecode(data []byte) error {
	var dec gobIndex
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&dec); err != nil {
		return fmt.Errorf("hnsw: failed to decode graph: %w", err)
	}

	if err := h.tombstones.UnmarshalBinary(dec.Tombstones); err != nil {
		return fmt.Errorf("hnsw: failed to decode tombstones: %w", err)
	}

	h.nodes = make([]*node, len(dec.Nodes))
	h.byID = make(map[string]uint32, len(dec.Nodes))
	for i, gn := range dec.Nodes {
		if len(gn.Vector) != h.opts.Dimension {
			return &ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(gn.Vector)}
		}
		h.nodes[i] = &node{
			id:        gn.ID,
			vector:    gn.Vector,
			level:     gn.Level,
			seq:       gn.Seq,
			neighbors: gn.Neighbors,
		}
		if !h.tombstones.Contains(uint32(i)) {
			h.byID[gn.ID] = uint32(i)
		}
	}

	h.entry = dec.Entry
	h.hasEntry = dec.HasEntry
	h.maxLevel = dec.MaxLevel
	h.nextSeq = dec.NextSeq
	return nil
}
