package scene

import "github.com/primatelabs/cycles/types"

// Curve addresses a run of keys inside a Hair geometry.
type Curve struct {
	FirstKey int
	NumKeys  int
}

// NumSegments returns the number of BVH-visible segments of the curve.
func (c Curve) NumSegments() int {
	return c.NumKeys - 1
}

// Hair is a set of curves sharing one key/radius array, with optional
// per-step motion keys.
type Hair struct {
	Keys   []types.Vec3
	Radius []float32
	Curves []Curve

	// MotionKeys holds one key array per motion step excluding the center
	// step, which is Keys itself.
	MotionKeys [][]types.Vec3

	Offset           int
	TransformApplied bool
}

func (h *Hair) GeometryType() GeometryType {
	return GeometryHair
}

// NumPrimitives counts segments over all curves.
func (h *Hair) NumPrimitives() int {
	total := 0
	for _, c := range h.Curves {
		total += c.NumSegments()
	}
	return total
}

func (h *Hair) PrimOffset() int {
	return h.Offset
}

func (h *Hair) NeedBuildBVH() bool {
	return !h.TransformApplied
}

func (h *Hair) UseMotionBlur() bool {
	return len(h.MotionKeys) > 0
}

func (h *Hair) MotionSteps() int {
	if len(h.MotionKeys) == 0 {
		return 1
	}
	return len(h.MotionKeys) + 1
}

func (h *Hair) stepKeys(step int) []types.Vec3 {
	center := h.MotionSteps() / 2
	if step == center {
		return h.Keys
	}
	if step < center {
		return h.MotionKeys[step]
	}
	return h.MotionKeys[step-1]
}

// SegmentKeys returns the two rest-position keys and radii of a segment.
func (h *Hair) SegmentKeys(curve, segment int) (types.Vec3, types.Vec3, float32, float32) {
	k0 := h.Curves[curve].FirstKey + segment
	return h.Keys[k0], h.Keys[k0+1], h.Radius[k0], h.Radius[k0+1]
}

// SegmentKeysAtTime interpolates a segment's keys at shutter time t. The
// radius does not animate.
func (h *Hair) SegmentKeysAtTime(curve, segment int, t float32) (types.Vec3, types.Vec3, float32, float32) {
	if !h.UseMotionBlur() {
		return h.SegmentKeys(curve, segment)
	}
	lo, hi, w := motionTime(h.MotionSteps(), t)
	ka := h.stepKeys(lo)
	kb := h.stepKeys(hi)
	k0 := h.Curves[curve].FirstKey + segment
	return types.MixVec3(ka[k0], kb[k0], w), types.MixVec3(ka[k0+1], kb[k0+1], w),
		h.Radius[k0], h.Radius[k0+1]
}

// GrowSegmentBounds extends bounds by a segment at the rest positions,
// including the key radii.
func (h *Hair) GrowSegmentBounds(curve, segment int, bounds *types.BoundBox) {
	k0 := h.Curves[curve].FirstKey + segment
	bounds.GrowPointBorder(h.Keys[k0], h.Radius[k0])
	bounds.GrowPointBorder(h.Keys[k0+1], h.Radius[k0+1])
}

// GrowSegmentBoundsStep extends bounds by a segment at a motion step.
func (h *Hair) GrowSegmentBoundsStep(curve, segment, step int, bounds *types.BoundBox) {
	keys := h.stepKeys(step)
	k0 := h.Curves[curve].FirstKey + segment
	bounds.GrowPointBorder(keys[k0], h.Radius[k0])
	bounds.GrowPointBorder(keys[k0+1], h.Radius[k0+1])
}

// GrowSegmentBoundsAligned extends bounds by a segment's keys projected into
// an orientation frame. Used by the unaligned-node heuristic.
func (h *Hair) GrowSegmentBoundsAligned(curve, segment int, space types.Transform, bounds *types.BoundBox) {
	k0 := h.Curves[curve].FirstKey + segment
	bounds.GrowPointBorder(space.Point(h.Keys[k0]), h.Radius[k0])
	bounds.GrowPointBorder(space.Point(h.Keys[k0+1]), h.Radius[k0+1])
}

// Bounds returns the hair bounds swept over all motion steps.
func (h *Hair) Bounds() types.BoundBox {
	bounds := types.EmptyBoundBox()
	for step := 0; step < h.MotionSteps(); step++ {
		keys := h.stepKeys(step)
		for i, k := range keys {
			bounds.GrowPointBorder(k, h.Radius[i])
		}
	}
	return bounds
}
