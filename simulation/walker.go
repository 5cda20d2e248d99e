// Package simulation moves entities around a space so that its octree has
// something to track.
package simulation

import (
	"math/rand"

	"github.com/aukilabs/ehwaz/models"
	"github.com/aukilabs/ehwaz/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Walker moves an entity toward random targets inside its space region, one
// target after the other.
type Walker struct {
	EntityID uint32

	space  *models.Space
	rand   *rand.Rand
	speed  float32
	easeFn ease.TweenFunc

	target octree.Vector3f
	tweens [3]*gween.Tween
}

// NewWalker returns a walker moving the given entity at speed units per
// second.
func NewWalker(space *models.Space, entityID uint32, speed float32, rnd *rand.Rand, fn ease.TweenFunc) *Walker {
	if fn == nil {
		fn = ease.InOutQuad
	}

	return &Walker{
		EntityID: entityID,
		space:    space,
		rand:     rnd,
		speed:    speed,
		easeFn:   fn,
	}
}

// Target returns the position the walker is heading to.
func (w *Walker) Target() octree.Vector3f {
	return w.target
}

// Update advances the walker by dt seconds and updates the entity pose.
func (w *Walker) Update(dt float32) error {
	e, ok := w.space.Entity(w.EntityID)
	if !ok {
		return errors.New("walker entity not found").
			WithType(models.ErrTypeEntityNotFound).
			WithTag("space_id", w.space.ID).
			WithTag("entity_id", w.EntityID)
	}

	pose := e.Pose()
	if w.tweens[0] == nil {
		w.retarget(pose.Position())
	}

	var values [3]float32
	done := true
	for i, t := range w.tweens {
		v, finished := t.Update(dt)
		values[i] = v
		if !finished {
			done = false
		}
	}

	p := clamp(w.space.Region(), octree.NewVector3f(values[0], values[1], values[2]))
	if done {
		w.tweens = [3]*gween.Tween{}
	}

	return w.space.UpdateEntityPose(w.EntityID, pose.WithPosition(p))
}

func (w *Walker) retarget(from octree.Vector3f) {
	w.target = RandomPosition(w.space.Region(), w.rand)

	duration := float32(octree.Distance(from, w.target)) / w.speed
	if duration <= 0 {
		duration = 1
	}

	w.tweens[0] = gween.New(from.X, w.target.X, duration, w.easeFn)
	w.tweens[1] = gween.New(from.Y, w.target.Y, duration, w.easeFn)
	w.tweens[2] = gween.New(from.Z, w.target.Z, duration, w.easeFn)
}

// RandomPosition returns a random position inside the given region.
func RandomPosition(r octree.Region, rnd *rand.Rand) octree.Vector3f {
	lo := r.Min()
	size := octree.Mul(r.HalfExtent, 2)

	return octree.NewVector3f(
		lo.X+rnd.Float32()*size.X,
		lo.Y+rnd.Float32()*size.Y,
		lo.Z+rnd.Float32()*size.Z,
	)
}

func clamp(r octree.Region, p octree.Vector3f) octree.Vector3f {
	lo := r.Min()
	hi := r.Max()

	return octree.NewVector3f(
		min(max(p.X, lo.X), hi.X),
		min(max(p.Y, lo.Y), hi.Y),
		min(max(p.Z, lo.Z), hi.Z),
	)
}
