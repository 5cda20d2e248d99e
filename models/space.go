package models

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/ehwaz/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
)

const (
	ErrTypeSpaceNotFound  = "space_not_found"
	ErrTypeEntityNotFound = "entity_not_found"
	ErrTypeOutOfRegion    = "out_of_region"
)

// Placement describes a node of a space octree.
type Placement struct {
	octree.Region
	Depth int `json:"depth"`
}

func newPlacement(n *octree.Node) Placement {
	return Placement{
		Region: n.Region(),
		Depth:  n.Depth(),
	}
}

// Space is a region where entities are tracked by an octree.
//
// The octree is updated once per frame, after the frame handlers ran.
type Space struct {
	ID   uint32
	UUID string

	entityIDs  SequentialIDGenerator
	mutex      sync.RWMutex
	entities   map[uint32]*Entity
	tree       *octree.Tree
	region     octree.Region
	visualizer octree.Visualizer

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewSpace(id uint32, region octree.Region, conf octree.Config, frameDuration time.Duration) (*Space, error) {
	tree, err := octree.New(region, conf)
	if err != nil {
		return nil, errors.New("creating space octree failed").
			WithType(errors.Type(err)).
			WithTag("space_id", id).
			Wrap(err)
	}

	return &Space{
		ID:             id,
		UUID:           uuid.New().String(),
		entities:       make(map[uint32]*Entity),
		tree:           tree,
		region:         region,
		visualizer:     conf.Visualizer,
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		frameHandlers:  make(map[uint32]func()),
	}, nil
}

func (s *Space) Region() octree.Region {
	return s.region
}

// Visualizer returns the visualizer given at creation, nil if none was.
func (s *Space) Visualizer() octree.Visualizer {
	return s.visualizer
}

func (s *Space) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}
	})
}

// AddEntity creates an entity with the given pose and starts tracking it.
func (s *Space) AddEntity(pose Pose) (*Entity, error) {
	if !s.region.Contains(pose.Position()) {
		return nil, errors.New("pose is outside the space region").
			WithType(ErrTypeOutOfRegion).
			WithTag("space_id", s.ID).
			WithTag("position", pose.Position())
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	e := &Entity{ID: s.entityIDs.New()}
	e.SetPose(pose)

	s.entities[e.ID] = e
	s.tree.Add(e)
	return e, nil
}

// RemoveEntity stops tracking an entity.
func (s *Space) RemoveEntity(id uint32) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return s.entityNotFound(id)
	}

	delete(s.entities, id)
	s.tree.Remove(e)
	s.entityIDs.Reuse(id)
	return nil
}

// UpdateEntityPose sets the pose of an entity. The entity is re-homed in the
// octree during the next update.
func (s *Space) UpdateEntityPose(id uint32, pose Pose) error {
	if !s.region.Contains(pose.Position()) {
		return errors.New("pose is outside the space region").
			WithType(ErrTypeOutOfRegion).
			WithTag("space_id", s.ID).
			WithTag("entity_id", id).
			WithTag("position", pose.Position())
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return s.entityNotFound(id)
	}

	moved := !e.Position().Equal(pose.Position())
	e.SetPose(pose)

	if !moved {
		return nil
	}
	if err := s.tree.NotifyMoved(e); err != nil {
		return errors.New("notifying entity move failed").
			WithType(errors.Type(err)).
			WithTag("space_id", s.ID).
			WithTag("entity_id", id).
			Wrap(err)
	}
	return nil
}

func (s *Space) Entity(id uint32) (*Entity, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

// Entities returns the entities of the space ordered by id.
func (s *Space) Entities() []*Entity {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}

	sort.Slice(entities, func(a, b int) bool {
		return entities[a].ID < entities[b].ID
	})
	return entities
}

func (s *Space) EntityCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.entities)
}

// Locate returns the octree node holding the given entity.
//
// An entity whose pose changed since the last update is reported where it
// was before the change.
func (s *Space) Locate(id uint32) (Placement, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return Placement{}, s.entityNotFound(id)
	}

	n, ok := s.tree.Owner(e)
	if !ok {
		return Placement{}, s.entityNotFound(id)
	}
	return newPlacement(n), nil
}

// RegionsAt returns the deepest octree nodes containing the given point.
func (s *Space) RegionsAt(p octree.Vector3f) []Placement {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	nodes := s.tree.RegionsAt(p)
	placements := make([]Placement, len(nodes))
	for i, n := range nodes {
		placements[i] = newPlacement(n)
	}
	return placements
}

// Snapshot returns a copy of the space octree with its fingerprint.
func (s *Space) Snapshot() (*octree.NodeSnapshot, uint64) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tree.Snapshot(), s.tree.Fingerprint()
}

// View calls f with the space octree while holding the space in read mode.
// The octree must not be retained or modified by f.
func (s *Space) View(f func(t *octree.Tree)) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	f(s.tree)
}

// Update runs an octree update cycle.
func (s *Space) Update() octree.CycleStats {
	s.mutex.Lock()
	start := time.Now()
	stats := s.tree.RunUpdateCycle()
	latency := time.Since(start)
	pending := s.tree.PendingLen()
	s.mutex.Unlock()

	instrumentUpdateCycle(s.ID, stats, pending, latency)

	if stats.Processed != 0 || stats.PrunedNodes != 0 {
		logs.WithTag("space_id", s.ID).
			WithTag("processed", stats.Processed).
			WithTag("relocated", stats.Relocated).
			WithTag("skipped", stats.Skipped).
			WithTag("pruned_nodes", stats.PrunedNodes).
			WithTag("nodes", stats.Nodes).
			WithTag("objects", stats.Objects).
			WithTag("latency", latency).
			Debug("octree updated")
	}
	return stats
}

// HandleFrame registers a handler called at each frame, before the octree
// update.
func (s *Space) HandleFrame(h func()) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames runs frames until the space is closed.
func (s *Space) StartDispatchFrames() {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-s.frameTicker.C:
				s.frameMutex.RLock()
				for _, h := range s.frameHandlers {
					h()
				}
				s.frameMutex.RUnlock()

				s.Update()
			}
		}
	})
}

func (s *Space) entityNotFound(id uint32) error {
	return errors.New("entity not found").
		WithType(ErrTypeEntityNotFound).
		WithTag("space_id", s.ID).
		WithTag("entity_id", id)
}
