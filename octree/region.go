package octree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hagall-common/messages/dagazpb"
)

// Region is an axis-aligned box described by its center and its half-extents
// on each axis.
//
// The box is closed: a point lying exactly on a face is contained, which means
// a point on a face shared by two sibling regions is contained by both.
type Region struct {
	Origin     Vector3f `json:"origin"      yaml:"origin"      toml:"origin"`
	HalfExtent Vector3f `json:"half_extent" yaml:"half_extent" toml:"half_extent"`
}

// NewRegion returns a region centered on origin. Every half-extent must be
// strictly positive.
func NewRegion(origin Vector3f, halfExtent Vector3f) (Region, error) {
	if !halfExtent.GreaterThan(Vector3f{}) {
		return Region{}, errors.New("region half-extents must be positive").
			WithType(ErrTypeInvalidRegion).
			WithTag("half_extent", halfExtent)
	}

	return Region{
		Origin:     origin,
		HalfExtent: halfExtent,
	}, nil
}

func NewRegionFromProtobuf(q *dagazpb.Quad) (Region, error) {
	if q == nil {
		return Region{}, errors.New("region is missing").WithType(ErrTypeInvalidRegion)
	}
	return NewRegion(NewVector3fFromProtobuf(q.Center), NewVector3fFromProtobuf(q.Extents))
}

func (r Region) ToProtobuf() *dagazpb.Quad {
	return &dagazpb.Quad{
		Center:  r.Origin.ToProtobuf(),
		Extents: r.HalfExtent.ToProtobuf(),
	}
}

func (r Region) Min() Vector3f {
	return Sub(r.Origin, r.HalfExtent)
}

func (r Region) Max() Vector3f {
	return Add(r.Origin, r.HalfExtent)
}

// Contains reports whether p is inside the region or on its boundary.
func (r Region) Contains(p Vector3f) bool {
	d := Abs(Sub(p, r.Origin))
	return d.X <= r.HalfExtent.X &&
		d.Y <= r.HalfExtent.Y &&
		d.Z <= r.HalfExtent.Z
}

// Octant returns the i-th of the 8 regions obtained by halving r on every
// axis.
//
// Octants are numbered like this, looking down -z with y up:
//
//	      _____________
//	     /  4   /  5   /|
//	    /______/______/ |        y
//	   /      /      /| |        |
//	  /______/______/ |/|        |___ x
//	  |   0  |  1   | |7|       /
//	  |______|______|/|/       z
//	  |   2  |  3   | /
//	  |______|______|/
//
// Bit 0 of i selects +x, bit 1 selects -y and bit 2 selects -z.
func (r Region) Octant(i int) Region {
	q := Mul(r.HalfExtent, 0.5)

	sx, sy, sz := float32(-1), float32(1), float32(1)
	if i&1 != 0 {
		sx = 1
	}
	if i&2 != 0 {
		sy = -1
	}
	if i&4 != 0 {
		sz = -1
	}

	return Region{
		Origin:     Add(r.Origin, Vector3f{sx * q.X, sy * q.Y, sz * q.Z}),
		HalfExtent: q,
	}
}
