package types

import (
	"github.com/chewxy/math32"
	"golang.org/x/image/math/f32"
)

type Vec2 f32.Vec2
type Vec3 f32.Vec3
type Vec4 f32.Vec4

// Define a 2 component vector.
func XY(x, y float32) Vec2 {
	return Vec2{x, y}
}

// Define a 3 component vector.
func XYZ(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

// Define a 4 component vector.
func XYZW(x, y, z, w float32) Vec4 {
	return Vec4{x, y, z, w}
}

// Expand a 3 component vector to a Vec4.
func (v Vec3) Vec4(w float32) Vec4 {
	return Vec4{v[0], v[1], v[2], w}
}

// Truncate a Vec4 to its first 3 components.
func (v Vec4) Vec3() Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

// Add a vector.
func (v Vec3) Add(v2 Vec3) Vec3 {
	return Vec3{v[0] + v2[0], v[1] + v2[1], v[2] + v2[2]}
}

// Subtract a vector.
func (v Vec3) Sub(v2 Vec3) Vec3 {
	return Vec3{v[0] - v2[0], v[1] - v2[1], v[2] - v2[2]}
}

// Multiply a 3 component vector with a scalar.
func (v Vec3) Mul(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Componentwise multiplication.
func (v Vec3) MulVec(v2 Vec3) Vec3 {
	return Vec3{v[0] * v2[0], v[1] * v2[1], v[2] * v2[2]}
}

// Get 3 component vector length.
func (v Vec3) Len() float32 {
	return math32.Sqrt(v.Dot(v))
}

// Normalize 3 component vector.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Mul(1.0 / l)
}

// Dot product of two 3 component vectors.
func (v Vec3) Dot(v2 Vec3) float32 {
	return v[0]*v2[0] + v[1]*v2[1] + v[2]*v2[2]
}

// Cross product of two 3 component vectors.
func (v Vec3) Cross(v2 Vec3) Vec3 {
	return Vec3{
		v[1]*v2[2] - v[2]*v2[1],
		v[2]*v2[0] - v[0]*v2[2],
		v[0]*v2[1] - v[1]*v2[0],
	}
}

// Dot product of two 4 component vectors.
func (v Vec4) Dot(v2 Vec4) float32 {
	return v[0]*v2[0] + v[1]*v2[1] + v[2]*v2[2] + v[3]*v2[3]
}

// MinVec3 selects the componentwise minimum of two vectors. The comparisons
// are written so that a NaN component in v2 never wins; callers growing
// bounding boxes rely on this to keep bad points from poisoning the box.
func MinVec3(v, v2 Vec3) Vec3 {
	out := v
	if v2[0] < v[0] {
		out[0] = v2[0]
	}
	if v2[1] < v[1] {
		out[1] = v2[1]
	}
	if v2[2] < v[2] {
		out[2] = v2[2]
	}
	return out
}

// MaxVec3 selects the componentwise maximum of two vectors, with the same
// NaN behavior as MinVec3.
func MaxVec3(v, v2 Vec3) Vec3 {
	out := v
	if v2[0] > v[0] {
		out[0] = v2[0]
	}
	if v2[1] > v[1] {
		out[1] = v2[1]
	}
	if v2[2] > v[2] {
		out[2] = v2[2]
	}
	return out
}

// Linear interpolation between two vectors.
func MixVec3(a, b Vec3, t float32) Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Clamp a scalar to [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	return !(math32.IsNaN(v[0]) || math32.IsInf(v[0], 0) ||
		math32.IsNaN(v[1]) || math32.IsInf(v[1], 0) ||
		math32.IsNaN(v[2]) || math32.IsInf(v[2], 0))
}
