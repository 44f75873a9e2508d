package scene

import "github.com/primatelabs/cycles/types"

// Object places a geometry in the scene with a transform and visibility
// mask. Top-level BVH builds partition objects; bottom-level builds
// partition one geometry's primitives.
type Object struct {
	Geometry   Geometry
	Transform  types.Transform
	Visibility uint32

	// Bounds caches the world-space bounds; refresh with UpdateBounds
	// after the geometry or transform changes.
	Bounds types.BoundBox
}

// NewObject wraps a geometry with a transform and computes its bounds.
func NewObject(geom Geometry, tfm types.Transform, visibility uint32) *Object {
	ob := &Object{
		Geometry:   geom,
		Transform:  tfm,
		Visibility: visibility,
	}
	ob.UpdateBounds()
	return ob
}

// UpdateBounds recomputes the cached world-space bounds.
func (o *Object) UpdateBounds() {
	if o.Geometry == nil {
		o.Bounds = types.EmptyBoundBox()
		return
	}
	bounds := o.Geometry.Bounds()
	if o.Geometry.NeedBuildBVH() {
		bounds = bounds.Transformed(o.Transform)
	}
	o.Bounds = bounds
}

// VisibilityForTracing returns the visibility mask contributed to BVH nodes
// referencing this object.
func (o *Object) VisibilityForTracing() uint32 {
	return o.Visibility
}
