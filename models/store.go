package models

import (
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// SpaceStore holds the spaces served by the process.
type SpaceStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	spaces   map[uint32]*Space
	ids      SequentialIDGenerator
}

func (s *SpaceStore) init() {
	s.spaces = map[uint32]*Space{}
}

func (s *SpaceStore) NewID() uint32 {
	return s.ids.New()
}

// ReleaseID gives back an id from NewID that was never added to the store.
func (s *SpaceStore) ReleaseID(id uint32) {
	s.ids.Reuse(id)
}

func (s *SpaceStore) Add(space *Space) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.spaces[space.ID] = space
	instrumentIncreaseSpaceGauge()

	logs.WithTag("space_id", space.ID).
		WithTag("space_uuid", space.UUID).
		WithTag("region", space.Region()).
		Info("space created")
}

// Remove closes and removes a space.
func (s *SpaceStore) Remove(id uint32) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	space, ok := s.spaces[id]
	if !ok {
		return errors.New("space not found").
			WithType(ErrTypeSpaceNotFound).
			WithTag("space_id", id)
	}

	delete(s.spaces, id)
	space.Close()
	s.ids.Reuse(id)
	instrumentDecreaseSpaceGauge(id)

	logs.WithTag("space_id", id).
		WithTag("space_uuid", space.UUID).
		Info("space removed")
	return nil
}

func (s *SpaceStore) Get(id uint32) (*Space, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	space, ok := s.spaces[id]
	return space, ok
}

// List returns the spaces ordered by id.
func (s *SpaceStore) List() []*Space {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	spaces := make([]*Space, 0, len(s.spaces))
	for _, space := range s.spaces {
		spaces = append(spaces, space)
	}

	sort.Slice(spaces, func(a, b int) bool {
		return spaces[a].ID < spaces[b].ID
	})
	return spaces
}

// Close closes every space of the store.
func (s *SpaceStore) Close() {
	for _, space := range s.List() {
		space.Close()
	}
}
