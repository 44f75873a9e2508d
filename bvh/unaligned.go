package bvh

import (
	"github.com/chewxy/math32"

	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

// unalignedHeuristic fits orientation frames to curve segments and measures
// ranges of references inside such a frame. Tight oriented boxes around
// elongated hair segments are what make unaligned nodes pay off.
type unalignedHeuristic struct {
	objects []*scene.Object
}

// computeAlignedSpace derives an orientation frame from the first curve
// segment in the range. Non-curve primitives, and degenerate segments, fall
// back to the identity frame.
func (h *unalignedHeuristic) computeAlignedSpace(ref *Reference) types.Transform {
	if ref.PrimType&(PrimitiveCurve|PrimitiveMotionCurve) != 0 {
		obj := h.objects[ref.PrimObject]
		hair, ok := obj.Geometry.(*scene.Hair)
		if ok {
			curve := int(ref.PrimIndex)
			segment := UnpackSegment(ref.PrimType)
			v0, v1, _, _ := hair.SegmentKeys(curve, segment)
			axis := v1.Sub(v0)
			if axis.Len() > 1e-6 {
				return types.MakeFrame(axis.Normalize())
			}
		}
	}
	return types.TransformIdentity()
}

// computeAlignedPrimBoundbox bounds one reference inside the given frame.
// Curve segments are rebounded from their keys, which is what gives the
// frame its payoff; other kinds transform their existing box.
func (h *unalignedHeuristic) computeAlignedPrimBoundbox(ref *Reference, space types.Transform) types.BoundBox {
	bounds := types.EmptyBoundBox()
	if ref.PrimType&(PrimitiveCurve|PrimitiveMotionCurve) != 0 {
		obj := h.objects[ref.PrimObject]
		if hair, ok := obj.Geometry.(*scene.Hair); ok {
			hair.GrowSegmentBoundsAligned(int(ref.PrimIndex), UnpackSegment(ref.PrimType), space, &bounds)
			return bounds
		}
	}
	return ref.Bounds.Transformed(space)
}

// computeAlignedBoundbox bounds a whole range of references inside the
// frame.
func (h *unalignedHeuristic) computeAlignedBoundbox(refs []Reference, space types.Transform) types.BoundBox {
	bounds := types.EmptyBoundBox()
	for i := range refs {
		b := h.computeAlignedPrimBoundbox(&refs[i], space)
		bounds.Grow(b)
	}
	return bounds
}

// computeAlignedRange rebounds a range inside the frame, returning both the
// aggregate bounds and the centroid bounds the split evaluators need.
func (h *unalignedHeuristic) computeAlignedRange(refs []Reference, space types.Transform) (bounds, centBounds types.BoundBox) {
	bounds = types.EmptyBoundBox()
	centBounds = types.EmptyBoundBox()
	for i := range refs {
		b := h.computeAlignedPrimBoundbox(&refs[i], space)
		bounds.Grow(b)
		centBounds.GrowPoint(b.Center2())
	}
	return bounds, centBounds
}

// computeNodeTransform turns a node's frame and frame-space bounds into the
// normalized transform stored in packed unaligned nodes: it maps the node's
// oriented box onto the unit cube.
func computeNodeTransform(bounds types.BoundBox, alignedSpace types.Transform) types.Transform {
	space := alignedSpace
	space.X[3] -= bounds.Min[0]
	space.Y[3] -= bounds.Min[1]
	space.Z[3] -= bounds.Min[2]
	dim := bounds.Max.Sub(bounds.Min)
	scale := types.TransformScale(
		1.0/math32.Max(1e-18, dim[0]),
		1.0/math32.Max(1e-18, dim[1]),
		1.0/math32.Max(1e-18, dim[2]),
	)
	return scale.Mul(space)
}
