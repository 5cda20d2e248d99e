package models

import (
	"slices"
	"sync"
)

// SequentialIDGenerator generates ids starting at 1.
type SequentialIDGenerator struct {
	mutex     sync.Mutex
	currentID uint32
	released  []uint32
}

// New returns an unused id. Released ids are handed out first, smallest
// first.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.released) != 0 {
		id := g.released[0]
		g.released = g.released[1:]
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse releases an id previously returned by New.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	i, found := slices.BinarySearch(g.released, id)
	if found {
		return
	}
	g.released = slices.Insert(g.released, i, id)
}
