package octree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
)

const (
	// DefaultCapacity is the number of direct entries a childless node holds
	// before subdividing.
	DefaultCapacity = 1

	// DefaultMaxDepth is the depth below which nodes are never subdivided.
	DefaultMaxDepth = 5
)

// Config configures a tree.
type Config struct {
	// The number of direct entries a childless node can hold before being
	// subdivided. Defaults to DefaultCapacity when 0.
	Capacity int

	// The depth at which nodes stop subdividing and hold any number of
	// entries. Defaults to DefaultMaxDepth when 0.
	MaxDepth int

	// Makes NotifyMoved return an error for objects that are not tracked.
	StrictMoves bool

	// The visualizer notified about structural changes. Defaults to a
	// visualizer that does nothing.
	Visualizer Visualizer
}

func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		MaxDepth: DefaultMaxDepth,
	}
}

// CycleStats describes what an update cycle did.
type CycleStats struct {
	// The number of pending moves handled.
	Processed int `json:"processed"`

	// The number of objects that changed owner.
	Relocated int `json:"relocated"`

	// The number of pending moves dropped because their object was not
	// tracked anymore.
	Skipped int `json:"skipped"`

	// The number of nodes destroyed by pruning.
	PrunedNodes int `json:"pruned_nodes"`

	Nodes   int `json:"nodes"`
	Leaves  int `json:"leaves"`
	Objects int `json:"objects"`
}

// Tree is a dynamic octree indexing tracked objects by position.
//
// Objects that move must be reported with NotifyMoved. Their placement is
// fixed by the next call to RunUpdateCycle, which also prunes the branches
// that stopped being useful.
//
// A Tree is not safe for concurrent use.
type Tree struct {
	id         string
	root       *Node
	capacity   int
	maxDepth   int
	strict     bool
	visualizer Visualizer
	pending    pendingSet
	owners     map[TrackedObject]*Node
}

// New creates a tree covering the given region.
func New(r Region, conf Config) (*Tree, error) {
	if _, err := NewRegion(r.Origin, r.HalfExtent); err != nil {
		return nil, err
	}

	if conf.Capacity < 0 {
		return nil, errors.New("capacity must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("capacity", conf.Capacity)
	}
	if conf.Capacity == 0 {
		conf.Capacity = DefaultCapacity
	}

	if conf.MaxDepth < 0 {
		return nil, errors.New("max depth must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_depth", conf.MaxDepth)
	}
	if conf.MaxDepth == 0 {
		conf.MaxDepth = DefaultMaxDepth
	}

	if conf.Visualizer == nil {
		conf.Visualizer = NopVisualizer{}
	}

	t := &Tree{
		id:         uuid.NewString(),
		capacity:   conf.Capacity,
		maxDepth:   conf.MaxDepth,
		strict:     conf.StrictMoves,
		visualizer: conf.Visualizer,
		owners:     make(map[TrackedObject]*Node),
	}
	t.root = newNode(t, nil, r, 0)
	return t, nil
}

// ID returns a unique identifier for the tree.
func (t *Tree) ID() string {
	return t.id
}

func (t *Tree) Root() *Node {
	return t.root
}

// Add inserts an object into the tree. It returns false when the object is
// already tracked or when its position is outside the root region.
func (t *Tree) Add(obj TrackedObject) bool {
	if _, ok := t.owners[obj]; ok {
		return false
	}
	if !t.root.Intersects(obj) {
		return false
	}

	t.root.add(obj)
	return true
}

// Remove removes an object from the tree. It returns false when the object
// is not tracked.
//
// The branches emptied by a removal are pruned by the next update cycle.
func (t *Tree) Remove(obj TrackedObject) bool {
	n, ok := t.owners[obj]
	if !ok {
		return false
	}

	n.remove(obj)
	return true
}

// NotifyMoved reports that an object changed position. The object is
// re-homed during the next update cycle.
//
// Reporting an object that is not tracked only returns an error when the tree
// is configured with StrictMoves. Otherwise the move is dropped when the cycle
// runs.
func (t *Tree) NotifyMoved(obj TrackedObject) error {
	if t.strict {
		if _, ok := t.owners[obj]; !ok {
			return errors.New("object is not tracked").
				WithType(ErrTypeUnknownObject).
				WithTag("position", obj.Position())
		}
	}

	t.pending.push(obj)
	return nil
}

// Owner returns the node directly holding the given object.
func (t *Tree) Owner(obj TrackedObject) (*Node, bool) {
	n, ok := t.owners[obj]
	return n, ok
}

// Contains reports whether the object is tracked by the tree.
func (t *Tree) Contains(obj TrackedObject) bool {
	_, ok := t.owners[obj]
	return ok
}

// RegionsAt returns the deepest nodes containing the given point. A point on
// a face shared by several leaves is contained by all of them.
func (t *Tree) RegionsAt(p Vector3f) []*Node {
	if !t.root.Contains(p) {
		return nil
	}

	var nodes []*Node
	var visit func(n *Node)
	visit = func(n *Node) {
		if n.IsLeaf() {
			nodes = append(nodes, n)
			return
		}

		for _, c := range n.children {
			if c.Contains(p) {
				visit(c)
			}
		}
	}

	visit(t.root)
	return nodes
}

// Walk calls f for each node in depth-first order, parents before children.
// Children of a node are skipped when f returns false.
func (t *Tree) Walk(f func(n *Node) bool) {
	var walk func(n *Node)
	walk = func(n *Node) {
		if !f(n) {
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}

	walk(t.root)
}

// IsEmpty reports whether the tree tracks no object.
func (t *Tree) IsEmpty() bool {
	return len(t.owners) == 0
}

// Len returns the number of tracked objects.
func (t *Tree) Len() int {
	return len(t.owners)
}

// PendingLen returns the number of moves waiting for the next update cycle.
func (t *Tree) PendingLen() int {
	return t.pending.len()
}

// Leaves returns the childless nodes of the tree.
func (t *Tree) Leaves() []*Node {
	return t.root.refreshLeaves()
}

// RunUpdateCycle re-homes the objects reported by NotifyMoved and prunes the
// branches holding at most one object.
func (t *Tree) RunUpdateCycle() CycleStats {
	var stats CycleStats

	pairs := t.pairs()
	for _, obj := range t.pending.snapshot() {
		stats.Processed++
		t.pending.remove(obj)

		e, ok := pairs[obj]
		if ok && !e.Owner.holds(obj) {
			// A previous relocation redistributed the object.
			pairs = t.pairs()
			e, ok = pairs[obj]
		}
		if !ok {
			stats.Skipped++
			continue
		}

		if t.relocate(obj, e.Owner) {
			stats.Relocated++
		}
	}

	t.root.refreshAggregate()
	leaves := t.root.refreshLeaves()

	for _, n := range leaves {
		stats.PrunedNodes += t.pruneUp(n)
	}

	t.Walk(func(n *Node) bool {
		stats.Nodes++
		if n.IsLeaf() {
			stats.Leaves++
		}
		stats.Objects += len(n.entries)
		return true
	})
	return stats
}

// relocate moves obj to the node matching its current position. The search
// climbs from the current owner until a node has exactly one child containing
// the position.
func (t *Tree) relocate(obj TrackedObject, owner *Node) bool {
	p := obj.Position()

	for cursor := owner; cursor != nil; cursor = cursor.parent {
		child, count := cursor.childMatches(p)

		if count == 1 {
			if child == owner {
				return false
			}

			owner.remove(obj)
			child.add(obj)
			return true
		}

		if cursor.parent == nil && count > 0 {
			owner.remove(obj)
			t.root.add(obj)
			return true
		}
	}

	return false
}

// pruneUp collapses the subtrees holding at most one object, starting at n
// and going up to the root. It returns the number of destroyed nodes.
func (t *Tree) pruneUp(n *Node) int {
	destroyed := 0

	for ; n != nil && !n.destroyed; n = n.parent {
		entries := n.refreshAggregate()
		if len(entries) > 1 {
			break
		}

		destroyed += n.destroyChildren()

		if len(entries) == 1 && entries[0].Owner != n {
			// store, not add: the object stays tracked even if it moved out
			// of n without being reported.
			entries[0].Owner = n
			n.store(entries[0].Object)
		}
	}

	return destroyed
}

// pairs indexes the root aggregate by object.
func (t *Tree) pairs() map[TrackedObject]*Entry {
	entries := t.root.refreshAggregate()

	pairs := make(map[TrackedObject]*Entry, len(entries))
	for _, e := range entries {
		pairs[e.Object] = e
	}
	return pairs
}

// pendingSet is a set of objects that keeps insertion order.
type pendingSet struct {
	objects []TrackedObject
	index   map[TrackedObject]struct{}
}

func (s *pendingSet) push(obj TrackedObject) {
	if s.index == nil {
		s.index = make(map[TrackedObject]struct{})
	}

	if _, ok := s.index[obj]; ok {
		return
	}
	s.index[obj] = struct{}{}
	s.objects = append(s.objects, obj)
}

func (s *pendingSet) remove(obj TrackedObject) {
	if _, ok := s.index[obj]; !ok {
		return
	}
	delete(s.index, obj)

	for i, o := range s.objects {
		if o == obj {
			s.objects = append(s.objects[:i], s.objects[i+1:]...)
			return
		}
	}
}

func (s *pendingSet) snapshot() []TrackedObject {
	return append([]TrackedObject(nil), s.objects...)
}

func (s *pendingSet) len() int {
	return len(s.objects)
}
