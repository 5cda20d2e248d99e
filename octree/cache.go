package octree

// lazy is a memoized value that is either valid or stale.
//
// A stale value is recomputed on the next get. Invalidation never recomputes
// anything.
type lazy[T any] struct {
	value T
	fresh bool
}

func (c *lazy[T]) get(recompute func() T) T {
	if !c.fresh {
		c.value = recompute()
		c.fresh = true
	}
	return c.value
}

func (c *lazy[T]) valid() bool {
	return c.fresh
}

func (c *lazy[T]) invalidate() {
	c.fresh = false
}
