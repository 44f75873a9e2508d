package bvh

import "github.com/primatelabs/cycles/types"

// Reference is the builder's view of one primitive: its bounds plus enough
// identity to emit the packed primitive arrays. References never own
// geometry data; spatial splitting may replace one reference with two
// carrying narrower boxes.
type Reference struct {
	Bounds types.BoundBox

	// PrimIndex is the primitive's index within its geometry, or -1 when
	// the reference wraps an entire object instance.
	PrimIndex int32

	// PrimObject indexes the owning object.
	PrimObject int32

	// PrimType carries the kind bits and, for curves, the segment index.
	PrimType int32

	// Time range covered by the reference; differs from [0, 1] only for
	// time-subdivided motion primitives.
	TimeFrom float32
	TimeTo   float32
}

// NewReference builds a reference covering the full shutter interval.
func NewReference(bounds types.BoundBox, primIndex, primObject int, primType int32) Reference {
	return Reference{
		Bounds:     bounds,
		PrimIndex:  int32(primIndex),
		PrimObject: int32(primObject),
		PrimType:   primType,
		TimeFrom:   0.0,
		TimeTo:     1.0,
	}
}

// Range is a [Start, Start+Size) window into a reference array together
// with the cached aggregate bounds and centroid bounds of its references.
// Ranges are value types; sibling ranges never alias.
type Range struct {
	Bounds     types.BoundBox
	CentBounds types.BoundBox
	Start      int
	Size       int
}

// NewRange builds a range window with known bounds.
func NewRange(bounds, centBounds types.BoundBox, start, size int) Range {
	return Range{Bounds: bounds, CentBounds: centBounds, Start: start, Size: size}
}

// End returns the exclusive upper index of the window.
func (r Range) End() int {
	return r.Start + r.Size
}
