package octree

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// NodeSnapshot is a copy of a node and its descendants, detached from the
// tree.
type NodeSnapshot struct {
	Handle     Handle          `json:"handle,omitempty"`
	Origin     Vector3f        `json:"origin"`
	HalfExtent Vector3f        `json:"half_extent"`
	Depth      int             `json:"depth"`
	Entries    []Vector3f      `json:"entries,omitempty"`
	Children   []*NodeSnapshot `json:"children,omitempty"`
}

// Snapshot returns a copy of the tree structure with the positions of the
// objects held by each node.
func (t *Tree) Snapshot() *NodeSnapshot {
	return snapshotNode(t.root)
}

func snapshotNode(n *Node) *NodeSnapshot {
	s := &NodeSnapshot{
		Handle:     n.handle,
		Origin:     n.region.Origin,
		HalfExtent: n.region.HalfExtent,
		Depth:      n.depth,
	}

	if len(n.entries) != 0 {
		s.Entries = make([]Vector3f, len(n.entries))
		for i, e := range n.entries {
			s.Entries[i] = e.Position()
		}
	}

	if len(n.children) != 0 {
		s.Children = make([]*NodeSnapshot, len(n.children))
		for i, c := range n.children {
			s.Children[i] = snapshotNode(c)
		}
	}

	return s
}

// Fingerprint returns a hash of the tree shape: its nodes, their regions and
// the number of objects each of them holds. Two trees with the same shape
// have the same fingerprint.
func (t *Tree) Fingerprint() uint64 {
	h := xxhash.New()
	buf := make([]byte, 4)

	writeUint32 := func(v uint32) {
		binary.LittleEndian.PutUint32(buf, v)
		h.Write(buf)
	}

	writeVector := func(v Vector3f) {
		writeUint32(math.Float32bits(v.X))
		writeUint32(math.Float32bits(v.Y))
		writeUint32(math.Float32bits(v.Z))
	}

	t.Walk(func(n *Node) bool {
		writeUint32(uint32(n.depth))
		writeVector(n.region.Origin)
		writeVector(n.region.HalfExtent)
		writeUint32(uint32(len(n.entries)))
		writeUint32(uint32(len(n.children)))
		return true
	})

	return h.Sum64()
}
