package octree

// TrackedObject is an object indexed by a tree. Only its position matters.
//
// Objects are identified by interface equality, so implementations must be
// comparable. Pointer types are the usual choice.
type TrackedObject interface {
	Position() Vector3f
}

// Entry pairs a tracked object with the node that directly holds it.
type Entry struct {
	Object TrackedObject
	Owner  *Node
}

// Node is a box of the tree. It has either no children or exactly 8.
//
// Nodes are only created by subdivision and only destroyed by pruning. Their
// exported methods are read-only: mutations go through the Tree.
type Node struct {
	region Region
	depth  int
	parent *Node
	tree   *Tree
	handle Handle

	children []*Node
	entries  []TrackedObject

	aggregate lazy[[]*Entry]
	leaves    lazy[[]*Node]
	destroyed bool
}

func newNode(t *Tree, parent *Node, r Region, depth int) *Node {
	return &Node{
		region: r,
		depth:  depth,
		parent: parent,
		tree:   t,
		handle: t.visualizer.Create(r, depth),
	}
}

func (n *Node) Region() Region {
	return n.region
}

// Depth returns the distance to the root. The root is at depth 0.
func (n *Node) Depth() int {
	return n.depth
}

// Parent returns the parent node or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) Children() []*Node {
	return n.children
}

// Entries returns the objects directly held by the node.
func (n *Node) Entries() []TrackedObject {
	return n.entries
}

// Handle returns the value the visualizer created for the node.
func (n *Node) Handle() Handle {
	return n.handle
}

func (n *Node) IsLeaf() bool {
	return len(n.children) == 0
}

// IsEmpty reports whether the node holds no direct entry.
func (n *Node) IsEmpty() bool {
	return len(n.entries) == 0
}

func (n *Node) holds(obj TrackedObject) bool {
	for _, e := range n.entries {
		if e == obj {
			return true
		}
	}
	return false
}

func (n *Node) Contains(p Vector3f) bool {
	return n.region.Contains(p)
}

func (n *Node) Intersects(obj TrackedObject) bool {
	return n.region.Contains(obj.Position())
}

func (n *Node) add(obj TrackedObject) {
	if !n.Intersects(obj) {
		return
	}

	if n.depth >= n.tree.maxDepth {
		n.store(obj)
		return
	}

	if n.IsLeaf() {
		if len(n.entries) < n.tree.capacity {
			n.store(obj)
			return
		}

		n.subdivide()

		entries := n.entries
		n.entries = nil
		n.tree.visualizer.Hide(n.handle)
		for _, e := range entries {
			n.remove(e)
			n.add(e)
		}

		n.add(obj)
		return
	}

	p := obj.Position()
	if child, count := n.childMatches(p); count == 1 {
		child.add(obj)
		return
	}
	n.store(obj)
}

func (n *Node) store(obj TrackedObject) {
	n.entries = append(n.entries, obj)
	n.tree.owners[obj] = n
	n.markAggregateDirty()
	n.tree.visualizer.Show(n.handle)
}

func (n *Node) remove(obj TrackedObject) {
	for i, e := range n.entries {
		if e != obj {
			continue
		}

		n.entries = append(n.entries[:i], n.entries[i+1:]...)
		delete(n.tree.owners, obj)
		if len(n.entries) == 0 {
			n.tree.visualizer.Hide(n.handle)
		}
		break
	}

	n.markAggregateDirty()
}

func (n *Node) subdivide() {
	if n.depth >= n.tree.maxDepth || !n.IsLeaf() {
		return
	}

	n.children = make([]*Node, 8)
	for i := range n.children {
		child := newNode(n.tree, n, n.region.Octant(i), n.depth+1)
		n.children[i] = child
		n.tree.visualizer.Attach(n.handle, child.handle)
	}

	n.markLeavesDirty()
}

// childMatches returns the number of children containing p, stopping at 2,
// and the first matching child.
func (n *Node) childMatches(p Vector3f) (*Node, int) {
	var first *Node
	count := 0

	for _, c := range n.children {
		if !c.Contains(p) {
			continue
		}

		if first == nil {
			first = c
		}
		count++
		if count == 2 {
			break
		}
	}

	return first, count
}

func (n *Node) markAggregateDirty() {
	for c := n; c != nil; c = c.parent {
		c.aggregate.invalidate()
	}
}

func (n *Node) markLeavesDirty() {
	for c := n; c != nil; c = c.parent {
		c.leaves.invalidate()
	}
}

func (n *Node) refreshAggregate() []*Entry {
	return n.aggregate.get(func() []*Entry {
		var entries []*Entry
		for _, c := range n.children {
			entries = append(entries, c.refreshAggregate()...)
		}
		for _, obj := range n.entries {
			entries = append(entries, &Entry{
				Object: obj,
				Owner:  n,
			})
		}
		return entries
	})
}

func (n *Node) refreshLeaves() []*Node {
	return n.leaves.get(func() []*Node {
		if n.IsLeaf() {
			return []*Node{n}
		}

		var leaves []*Node
		for _, c := range n.children {
			leaves = append(leaves, c.refreshLeaves()...)
		}
		return leaves
	})
}

// destroyChildren detaches and discards every descendant of the node. It
// returns the number of destroyed nodes.
func (n *Node) destroyChildren() int {
	if n.IsLeaf() {
		return 0
	}

	destroyed := 0
	for _, c := range n.children {
		destroyed += c.destroyChildren() + 1
		n.tree.visualizer.Detach(n.handle, c.handle)
		for _, obj := range c.entries {
			if n.tree.owners[obj] == c {
				delete(n.tree.owners, obj)
			}
		}
		c.parent = nil
		c.entries = nil
		c.destroyed = true
	}

	n.children = nil
	n.markAggregateDirty()
	n.markLeavesDirty()
	return destroyed
}
