package models

import (
	"sync"

	"github.com/aukilabs/ehwaz/octree"
)

// Entity is an object tracked in a space.
type Entity struct {
	ID uint32

	mutex sync.RWMutex
	pose  Pose
}

func (e *Entity) SetPose(v Pose) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.pose = v
}

func (e *Entity) Pose() Pose {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.pose
}

// Position returns the position part of the entity pose.
func (e *Entity) Position() octree.Vector3f {
	return e.Pose().Position()
}

type Pose struct {
	PX float32 `json:"px"`
	PY float32 `json:"py"`
	PZ float32 `json:"pz"`
	RX float32 `json:"rx"`
	RY float32 `json:"ry"`
	RZ float32 `json:"rz"`
	RW float32 `json:"rw"`
}

// NewPoseAt returns a pose at the given position with no rotation.
func NewPoseAt(p octree.Vector3f) Pose {
	return Pose{
		PX: p.X,
		PY: p.Y,
		PZ: p.Z,
		RW: 1,
	}
}

func (p Pose) Position() octree.Vector3f {
	return octree.NewVector3f(p.PX, p.PY, p.PZ)
}

// WithPosition returns a copy of the pose moved to the given position.
func (p Pose) WithPosition(v octree.Vector3f) Pose {
	p.PX = v.X
	p.PY = v.Y
	p.PZ = v.Z
	return p
}
