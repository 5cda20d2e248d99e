package simulation

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aukilabs/ehwaz/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/tanema/gween/ease"
)

// Config configures a simulation.
type Config struct {
	// The number of entities to move.
	Walkers int

	// The speed of the entities, in units per second.
	Speed float32

	// The seed of the random targets.
	Seed int64

	// The easing applied to movements. Defaults to ease.InOutQuad.
	Ease ease.TweenFunc
}

// Simulation spawns entities in a space and moves them at every frame.
type Simulation struct {
	space *models.Space

	mutex    sync.Mutex
	walkers  []*Walker
	lastStep time.Time
}

// New spawns the simulation walkers at random positions in the space.
func New(space *models.Space, conf Config) (*Simulation, error) {
	if conf.Walkers < 0 || conf.Speed <= 0 {
		return nil, errors.New("invalid simulation config").
			WithTag("walkers", conf.Walkers).
			WithTag("speed", conf.Speed)
	}

	rnd := rand.New(rand.NewSource(conf.Seed))
	s := &Simulation{space: space}

	for i := 0; i < conf.Walkers; i++ {
		e, err := space.AddEntity(models.NewPoseAt(RandomPosition(space.Region(), rnd)))
		if err != nil {
			return nil, errors.New("spawning walker failed").Wrap(err)
		}
		s.walkers = append(s.walkers, NewWalker(space, e.ID, conf.Speed, rnd, conf.Ease))
	}

	return s, nil
}

// Walkers returns the walkers still moving.
func (s *Simulation) Walkers() []*Walker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]*Walker(nil), s.walkers...)
}

// Step moves every walker by dt seconds. Walkers whose entity was removed
// from the space are dropped.
func (s *Simulation) Step(dt float32) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	walkers := s.walkers[:0]
	for _, w := range s.walkers {
		err := w.Update(dt)
		if errors.IsType(err, models.ErrTypeEntityNotFound) {
			logs.WithTag("space_id", s.space.ID).
				WithTag("entity_id", w.EntityID).
				Debug("walker stopped")
			continue
		}
		if err != nil {
			logs.WithTag("space_id", s.space.ID).
				WithTag("entity_id", w.EntityID).
				Warn(err)
		}
		walkers = append(walkers, w)
	}
	s.walkers = walkers
}

// Start steps the simulation at every frame of the space.
func (s *Simulation) Start() (stop func()) {
	s.mutex.Lock()
	s.lastStep = time.Now()
	s.mutex.Unlock()

	return s.space.HandleFrame(func() {
		s.mutex.Lock()
		now := time.Now()
		dt := now.Sub(s.lastStep)
		s.lastStep = now
		s.mutex.Unlock()

		s.Step(float32(dt.Seconds()))
	})
}
