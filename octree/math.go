package octree

import (
	"math"

	"github.com/aukilabs/hagall-common/messages/dagazpb"
)

func EqualWithEpsilon(a float32, b float32, epsilon float64) bool {
	return math.Abs((float64)(a-b)) <= epsilon
}

// Vector3f is a point or a direction in the indexed space.
type Vector3f struct {
	X float32 `json:"x" yaml:"x" toml:"x"`
	Y float32 `json:"y" yaml:"y" toml:"y"`
	Z float32 `json:"z" yaml:"z" toml:"z"`
}

func NewVector3f(x, y, z float32) Vector3f {
	return Vector3f{X: x, Y: y, Z: z}
}

func (v Vector3f) Equal(o Vector3f) bool {
	return v.X == o.X && v.Y == o.Y && v.Z == o.Z
}

func (v Vector3f) EqualWithEpsilon(o Vector3f, epsilon float64) bool {
	return EqualWithEpsilon(v.X, o.X, epsilon) &&
		EqualWithEpsilon(v.Y, o.Y, epsilon) &&
		EqualWithEpsilon(v.Z, o.Z, epsilon)
}

func (v Vector3f) GreaterThan(o Vector3f) bool {
	return v.X > o.X && v.Y > o.Y && v.Z > o.Z
}

func Add(a Vector3f, b Vector3f) Vector3f {
	return Vector3f{a.X + b.X, a.Y + b.Y, a.Z + b.Z}
}

func Sub(a Vector3f, b Vector3f) Vector3f {
	return Vector3f{a.X - b.X, a.Y - b.Y, a.Z - b.Z}
}

func Mul(a Vector3f, s float32) Vector3f {
	return Vector3f{a.X * s, a.Y * s, a.Z * s}
}

// Abs returns the component-wise absolute value of a.
func Abs(a Vector3f) Vector3f {
	return Vector3f{
		X: float32(math.Abs(float64(a.X))),
		Y: float32(math.Abs(float64(a.Y))),
		Z: float32(math.Abs(float64(a.Z))),
	}
}

func (v Vector3f) Length() float64 {
	return math.Sqrt((float64)(v.X*v.X + v.Y*v.Y + v.Z*v.Z))
}

func Distance(a Vector3f, b Vector3f) float64 {
	return Sub(a, b).Length()
}

func NewVector3fFromProtobuf(point *dagazpb.Point) Vector3f {
	if point == nil {
		return Vector3f{}
	}

	return Vector3f{
		X: point.X,
		Y: point.Y,
		Z: point.Z,
	}
}

func (v Vector3f) ToProtobuf() *dagazpb.Point {
	return &dagazpb.Point{
		X: v.X,
		Y: v.Y,
		Z: v.Z,
	}
}
