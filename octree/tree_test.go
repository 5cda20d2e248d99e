package octree

import (
	"math/rand"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

type object struct {
	position Vector3f
}

func newObject(x, y, z float32) *object {
	return &object{position: NewVector3f(x, y, z)}
}

func (o *object) Position() Vector3f {
	return o.position
}

func newTestTree(t *testing.T, conf Config) *Tree {
	tree, err := New(Region{
		Origin:     NewVector3f(0, 0, 0),
		HalfExtent: NewVector3f(8, 8, 8),
	}, conf)
	require.NoError(t, err)
	return tree
}

// requireInvariants checks that every object is held by exactly one node
// containing it and that no childless node exceeds its capacity.
func requireInvariants(t *testing.T, tree *Tree, objects []*object) {
	owners := make(map[TrackedObject]int)

	tree.Walk(func(n *Node) bool {
		for _, e := range n.Entries() {
			owners[e]++
			require.Truef(t, n.Intersects(e), "node at depth %v does not contain %+v", n.Depth(), e.Position())
		}

		if n.IsLeaf() && n.Depth() < tree.maxDepth {
			require.LessOrEqual(t, len(n.Entries()), tree.capacity)
		}

		if !n.IsLeaf() {
			require.Len(t, n.Children(), 8)
			for _, c := range n.Children() {
				require.Equal(t, n, c.Parent())
				require.Equal(t, n.Depth()+1, c.Depth())
			}
		}
		return true
	})

	for _, o := range objects {
		require.Equalf(t, 1, owners[o], "object %+v", o.position)
	}
	require.Len(t, owners, len(objects))
	require.Equal(t, len(objects), tree.Len())

	aggregate := tree.root.refreshAggregate()
	require.Len(t, tree.owners, len(aggregate))
	for _, e := range aggregate {
		require.True(t, e.Owner.holds(e.Object))
		require.Same(t, e.Owner, tree.owners[e.Object])
	}
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		tree := newTestTree(t, Config{})
		require.Equal(t, DefaultCapacity, tree.capacity)
		require.Equal(t, DefaultMaxDepth, tree.maxDepth)
		require.NotEmpty(t, tree.ID())
		require.True(t, tree.IsEmpty())
		require.Nil(t, tree.Root().Parent())
		require.Zero(t, tree.Root().Depth())
	})

	t.Run("invalid region", func(t *testing.T) {
		_, err := New(Region{HalfExtent: NewVector3f(1, 1, 0)}, DefaultConfig())
		require.True(t, errors.IsType(err, ErrTypeInvalidRegion))
	})

	t.Run("negative capacity", func(t *testing.T) {
		_, err := New(Region{HalfExtent: NewVector3f(1, 1, 1)}, Config{Capacity: -1})
		require.True(t, errors.IsType(err, ErrTypeInvalidConfig))
	})

	t.Run("negative max depth", func(t *testing.T) {
		_, err := New(Region{HalfExtent: NewVector3f(1, 1, 1)}, Config{MaxDepth: -1})
		require.True(t, errors.IsType(err, ErrTypeInvalidConfig))
	})
}

func TestTreeAdd(t *testing.T) {
	t.Run("first object is held by the root", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())
		a := newObject(1, 1, 1)

		require.True(t, tree.Add(a))
		require.True(t, tree.Root().IsLeaf())
		require.Equal(t, []TrackedObject{a}, tree.Root().Entries())
		require.False(t, tree.IsEmpty())
	})

	t.Run("object outside the root is ignored", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())

		require.False(t, tree.Add(newObject(9, 0, 0)))
		require.True(t, tree.IsEmpty())
	})

	t.Run("object added twice is ignored", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())
		a := newObject(1, 1, 1)

		require.True(t, tree.Add(a))
		require.False(t, tree.Add(a))
		require.Equal(t, 1, tree.Len())
	})

	t.Run("second object subdivides the root", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())
		a := newObject(1, 1, 1)
		b := newObject(-1, -1, -1)

		tree.Add(a)
		tree.Add(b)

		root := tree.Root()
		require.Len(t, root.Children(), 8)
		require.Empty(t, root.Entries())
		require.Equal(t, []TrackedObject{a}, root.Children()[1].Entries())
		require.Equal(t, []TrackedObject{b}, root.Children()[6].Entries())
		requireInvariants(t, tree, []*object{a, b})
	})

	t.Run("objects are routed to their octant", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())
		objects := []*object{
			newObject(-4, 4, 4),
			newObject(4, 4, 4),
			newObject(-4, -4, 4),
			newObject(4, -4, 4),
			newObject(-4, 4, -4),
			newObject(4, 4, -4),
			newObject(-4, -4, -4),
			newObject(4, -4, -4),
		}

		for _, o := range objects {
			require.True(t, tree.Add(o))
		}

		for i, c := range tree.Root().Children() {
			require.Equal(t, []TrackedObject{objects[i]}, c.Entries())
			require.True(t, c.Region().Origin.Equal(objects[i].position))
		}
		requireInvariants(t, tree, objects)
	})

	t.Run("object on a shared face is held by the common parent", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())
		a := newObject(1, 1, 1)
		b := newObject(-1, -1, -1)
		c := newObject(0, 3, 3)

		tree.Add(a)
		tree.Add(b)
		tree.Add(c)

		require.Equal(t, []TrackedObject{c}, tree.Root().Entries())

		owner, ok := tree.Owner(c)
		require.True(t, ok)
		require.Equal(t, tree.Root(), owner)
		requireInvariants(t, tree, []*object{a, b, c})
	})

	t.Run("objects at the same position stop at max depth", func(t *testing.T) {
		tree := newTestTree(t, Config{MaxDepth: 3})
		a := newObject(5, 5, 5)
		b := newObject(5, 5, 5)
		c := newObject(5, 5, 5)

		tree.Add(a)
		tree.Add(b)
		tree.Add(c)

		owner, ok := tree.Owner(a)
		require.True(t, ok)
		require.Equal(t, 3, owner.Depth())
		require.True(t, owner.IsLeaf())
		require.Len(t, owner.Entries(), 3)
		requireInvariants(t, tree, []*object{a, b, c})
	})

	t.Run("capacity above 1 delays subdivision", func(t *testing.T) {
		tree := newTestTree(t, Config{Capacity: 3})
		objects := []*object{
			newObject(1, 1, 1),
			newObject(-1, -1, -1),
			newObject(2, 2, 2),
		}

		for _, o := range objects {
			tree.Add(o)
		}
		require.True(t, tree.Root().IsLeaf())
		require.Len(t, tree.Root().Entries(), 3)

		d := newObject(-2, 2, -2)
		objects = append(objects, d)
		tree.Add(d)
		require.False(t, tree.Root().IsLeaf())
		requireInvariants(t, tree, objects)
	})
}

func TestTreeRemove(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())
	a := newObject(1, 1, 1)
	b := newObject(-1, -1, -1)

	tree.Add(a)
	tree.Add(b)

	t.Run("untracked object", func(t *testing.T) {
		require.False(t, tree.Remove(newObject(1, 1, 1)))
		require.Equal(t, 2, tree.Len())
	})

	t.Run("tracked object", func(t *testing.T) {
		require.True(t, tree.Remove(b))
		require.Equal(t, 1, tree.Len())
		require.False(t, tree.Contains(b))

		_, ok := tree.Owner(b)
		require.False(t, ok)
	})

	t.Run("next cycle prunes the emptied branch", func(t *testing.T) {
		stats := tree.RunUpdateCycle()
		require.Equal(t, 8, stats.PrunedNodes)
		require.Equal(t, 1, stats.Nodes)
		require.Equal(t, 1, stats.Objects)
		require.True(t, tree.Root().IsLeaf())
		require.Equal(t, []TrackedObject{a}, tree.Root().Entries())
	})
}

func TestTreeAddRemoveRoundTrip(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())
	empty := tree.Fingerprint()

	objects := []*object{
		newObject(1, 1, 1),
		newObject(-1, -1, -1),
		newObject(7, -7, 7),
		newObject(3, 3, 3),
		newObject(3.5, 3, 3),
	}
	for _, o := range objects {
		tree.Add(o)
	}
	requireInvariants(t, tree, objects)
	require.NotEqual(t, empty, tree.Fingerprint())

	for _, o := range objects {
		require.True(t, tree.Remove(o))
	}
	tree.RunUpdateCycle()

	require.True(t, tree.IsEmpty())
	require.True(t, tree.Root().IsLeaf())
	require.Equal(t, empty, tree.Fingerprint())
}

func TestTreeNotifyMoved(t *testing.T) {
	t.Run("moves are deduplicated", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())
		a := newObject(1, 1, 1)
		tree.Add(a)

		require.NoError(t, tree.NotifyMoved(a))
		require.NoError(t, tree.NotifyMoved(a))
		require.Equal(t, 1, tree.PendingLen())

		stats := tree.RunUpdateCycle()
		require.Equal(t, 1, stats.Processed)
		require.Zero(t, tree.PendingLen())
	})

	t.Run("untracked object is skipped by the cycle", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())

		require.NoError(t, tree.NotifyMoved(newObject(1, 1, 1)))

		stats := tree.RunUpdateCycle()
		require.Equal(t, 1, stats.Processed)
		require.Equal(t, 1, stats.Skipped)
		require.Zero(t, tree.PendingLen())
	})

	t.Run("removed object is skipped by the cycle", func(t *testing.T) {
		tree := newTestTree(t, DefaultConfig())
		a := newObject(1, 1, 1)
		tree.Add(a)

		require.NoError(t, tree.NotifyMoved(a))
		tree.Remove(a)

		stats := tree.RunUpdateCycle()
		require.Equal(t, 1, stats.Skipped)
		require.True(t, tree.IsEmpty())
	})

	t.Run("untracked object is rejected in strict mode", func(t *testing.T) {
		tree := newTestTree(t, Config{StrictMoves: true})

		err := tree.NotifyMoved(newObject(1, 1, 1))
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeUnknownObject))
		require.Zero(t, tree.PendingLen())
	})

	t.Run("tracked object is accepted in strict mode", func(t *testing.T) {
		tree := newTestTree(t, Config{StrictMoves: true})
		a := newObject(1, 1, 1)
		tree.Add(a)

		require.NoError(t, tree.NotifyMoved(a))
		require.Equal(t, 1, tree.PendingLen())
	})
}

func TestTreeUpdateCycle(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())
	a := newObject(1, 1, 1)
	b := newObject(-1, -1, -1)
	tree.Add(a)
	tree.Add(b)

	t.Run("object moving next to another one", func(t *testing.T) {
		a.position = NewVector3f(-1, -1, -1)
		require.NoError(t, tree.NotifyMoved(a))

		stats := tree.RunUpdateCycle()
		require.Equal(t, 1, stats.Relocated)
		require.Zero(t, stats.PrunedNodes)

		ownerA, ok := tree.Owner(a)
		require.True(t, ok)
		ownerB, ok := tree.Owner(b)
		require.True(t, ok)
		require.Equal(t, ownerA, ownerB)
		require.Equal(t, 3, ownerA.Depth())
		require.Empty(t, tree.Root().Children()[1].Entries())
		requireInvariants(t, tree, []*object{a, b})
	})

	t.Run("object moving away after the other one is removed", func(t *testing.T) {
		a.position = NewVector3f(7, 7, 7)
		require.NoError(t, tree.NotifyMoved(a))
		require.True(t, tree.Remove(b))

		stats := tree.RunUpdateCycle()
		require.Equal(t, 1, stats.Relocated)
		require.Equal(t, 32, stats.PrunedNodes)
		require.Equal(t, 1, stats.Nodes)
		require.Equal(t, 1, stats.Leaves)
		require.Equal(t, 1, stats.Objects)

		require.True(t, tree.Root().IsLeaf())
		require.Equal(t, []TrackedObject{a}, tree.Root().Entries())
		requireInvariants(t, tree, []*object{a})
	})
}

func TestTreeUpdateCycleWithoutMove(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())
	a := newObject(1, 1, 1)
	b := newObject(-1, -1, -1)
	tree.Add(a)
	tree.Add(b)

	require.NoError(t, tree.NotifyMoved(a))
	stats := tree.RunUpdateCycle()
	require.Equal(t, 1, stats.Processed)
	require.Zero(t, stats.Relocated)

	owner, _ := tree.Owner(a)
	require.Equal(t, tree.Root().Children()[1], owner)
}

func TestTreeUpdateCycleAmbiguousMove(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())
	a := newObject(1, 1, 1)
	b := newObject(-1, -1, -1)
	tree.Add(a)
	tree.Add(b)

	a.position = NewVector3f(0, 2, 2)
	require.NoError(t, tree.NotifyMoved(a))
	stats := tree.RunUpdateCycle()
	require.Equal(t, 1, stats.Relocated)

	owner, _ := tree.Owner(a)
	require.Equal(t, tree.Root(), owner)
	requireInvariants(t, tree, []*object{a, b})

	a.position = NewVector3f(2, 2, 2)
	require.NoError(t, tree.NotifyMoved(a))
	stats = tree.RunUpdateCycle()
	require.Equal(t, 1, stats.Relocated)

	owner, _ = tree.Owner(a)
	require.Equal(t, tree.Root().Children()[1], owner)
	requireInvariants(t, tree, []*object{a, b})
}

func TestTreePruning(t *testing.T) {
	t.Run("internal nodes hold more than one object after a cycle", func(t *testing.T) {
		rnd := rand.New(rand.NewSource(42))
		tree := newTestTree(t, DefaultConfig())

		objects := make([]*object, 64)
		for i := range objects {
			objects[i] = newObject(randomCoord(rnd), randomCoord(rnd), randomCoord(rnd))
			require.True(t, tree.Add(objects[i]))
		}

		for round := 0; round < 20; round++ {
			for _, o := range objects {
				if rnd.Intn(3) != 0 {
					continue
				}
				o.position = NewVector3f(randomCoord(rnd), randomCoord(rnd), randomCoord(rnd))
				require.NoError(t, tree.NotifyMoved(o))
			}

			tree.RunUpdateCycle()
			requireInvariants(t, tree, objects)

			tree.Walk(func(n *Node) bool {
				if !n.IsLeaf() {
					require.Greater(t, len(n.refreshAggregate()), 1)
				}
				return true
			})
		}
	})

	t.Run("pruning is idempotent", func(t *testing.T) {
		rnd := rand.New(rand.NewSource(7))
		tree := newTestTree(t, DefaultConfig())

		objects := make([]*object, 32)
		for i := range objects {
			objects[i] = newObject(randomCoord(rnd), randomCoord(rnd), randomCoord(rnd))
			tree.Add(objects[i])
		}
		for _, o := range objects[:24] {
			tree.Remove(o)
		}

		tree.RunUpdateCycle()
		fingerprint := tree.Fingerprint()

		stats := tree.RunUpdateCycle()
		require.Zero(t, stats.PrunedNodes)
		require.Equal(t, fingerprint, tree.Fingerprint())
		requireInvariants(t, tree, objects[24:])
	})
}

func TestTreeOwnerIndex(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	tree := newTestTree(t, DefaultConfig())

	var tracked []*object
	for round := 0; round < 30; round++ {
		for i := 0; i < 8; i++ {
			o := newObject(randomCoord(rnd), randomCoord(rnd), randomCoord(rnd))
			require.True(t, tree.Add(o))
			tracked = append(tracked, o)
		}

		for i := 0; i < 3 && len(tracked) != 0; i++ {
			j := rnd.Intn(len(tracked))
			require.True(t, tree.Remove(tracked[j]))
			tracked = append(tracked[:j], tracked[j+1:]...)
		}

		for _, o := range tracked {
			if rnd.Intn(2) == 0 {
				continue
			}
			o.position = NewVector3f(randomCoord(rnd), randomCoord(rnd), randomCoord(rnd))
			require.NoError(t, tree.NotifyMoved(o))
		}

		requireInvariantsBeforeCycle(t, tree, tracked)
		tree.RunUpdateCycle()
		requireInvariants(t, tree, tracked)

		for _, o := range tracked {
			n, ok := tree.Owner(o)
			require.True(t, ok)
			require.True(t, n.holds(o))
			require.True(t, n.Contains(o.Position()))
		}
	}
}

// requireInvariantsBeforeCycle checks that the owner index agrees with the
// aggregate while moves are still pending.
func requireInvariantsBeforeCycle(t *testing.T, tree *Tree, objects []*object) {
	require.Equal(t, len(objects), tree.Len())

	aggregate := tree.root.refreshAggregate()
	require.Len(t, aggregate, len(objects))
	for _, e := range aggregate {
		require.Same(t, e.Owner, tree.owners[e.Object])
	}
}

func TestTreeRegionsAt(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())
	tree.Add(newObject(1, 1, 1))
	tree.Add(newObject(-1, -1, -1))

	t.Run("point inside a leaf", func(t *testing.T) {
		nodes := tree.RegionsAt(NewVector3f(5, 5, 5))
		require.Len(t, nodes, 1)
		require.Equal(t, tree.Root().Children()[1], nodes[0])
	})

	t.Run("point on a shared face", func(t *testing.T) {
		nodes := tree.RegionsAt(NewVector3f(0, 5, 5))
		require.Len(t, nodes, 2)
	})

	t.Run("point at the center", func(t *testing.T) {
		nodes := tree.RegionsAt(NewVector3f(0, 0, 0))
		require.Len(t, nodes, 8)
	})

	t.Run("point outside", func(t *testing.T) {
		require.Empty(t, tree.RegionsAt(NewVector3f(0, 0, 9)))
	})
}

func TestTreeLeaves(t *testing.T) {
	tree := newTestTree(t, DefaultConfig())
	require.Equal(t, []*Node{tree.Root()}, tree.Leaves())

	tree.Add(newObject(1, 1, 1))
	tree.Add(newObject(-1, -1, -1))
	require.Equal(t, tree.Root().Children(), tree.Leaves())

	tree.Add(newObject(7, 7, 7))
	require.Len(t, tree.Leaves(), 15)
}

func randomCoord(rnd *rand.Rand) float32 {
	return rnd.Float32()*16 - 8
}
