package scene

import "github.com/primatelabs/cycles/types"

// GeometryType discriminates the primitive container kinds the BVH builder
// knows how to partition.
type GeometryType int

const (
	GeometryMesh GeometryType = iota
	GeometryHair
	GeometryPointCloud
)

// Geometry is the narrow contract the BVH builder consumes. Mesh, Hair and
// PointCloud implement it; everything else about geometry management lives
// outside this module.
type Geometry interface {
	GeometryType() GeometryType

	// NumPrimitives returns the number of BVH-visible primitives:
	// triangles, curve segments or points.
	NumPrimitives() int

	// PrimOffset is the geometry's first primitive slot in the global
	// primitive arrays once it has been flattened into a top-level BVH.
	PrimOffset() int

	// NeedBuildBVH reports whether the geometry keeps its own bottom-level
	// BVH. Geometry with its transform baked into the positions is instead
	// flattened directly into the top level.
	NeedBuildBVH() bool

	UseMotionBlur() bool
	MotionSteps() int

	// Bounds returns the object-space bounds over all motion steps.
	Bounds() types.BoundBox
}

// motionTime maps a shutter time in [0, 1] onto the motion step sequence,
// returning the two surrounding step indexes and the interpolation weight.
// Step motionSteps/2 is the center step stored in the rest positions.
func motionTime(steps int, t float32) (int, int, float32) {
	maxStep := steps - 1
	s := t * float32(maxStep)
	lo := int(s)
	if lo > maxStep-1 {
		lo = maxStep - 1
	}
	if lo < 0 {
		lo = 0
	}
	return lo, lo + 1, s - float32(lo)
}
