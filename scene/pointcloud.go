package scene

import "github.com/primatelabs/cycles/types"

// PointCloud is a set of spheres given by center and radius, with optional
// per-step motion positions.
type PointCloud struct {
	Points []types.Vec3
	Radius []float32

	// MotionPoints holds one position array per motion step excluding the
	// center step, which is Points itself.
	MotionPoints [][]types.Vec3

	Offset           int
	TransformApplied bool
}

func (p *PointCloud) GeometryType() GeometryType {
	return GeometryPointCloud
}

func (p *PointCloud) NumPrimitives() int {
	return len(p.Points)
}

func (p *PointCloud) PrimOffset() int {
	return p.Offset
}

func (p *PointCloud) NeedBuildBVH() bool {
	return !p.TransformApplied
}

func (p *PointCloud) UseMotionBlur() bool {
	return len(p.MotionPoints) > 0
}

func (p *PointCloud) MotionSteps() int {
	if len(p.MotionPoints) == 0 {
		return 1
	}
	return len(p.MotionPoints) + 1
}

func (p *PointCloud) stepPoints(step int) []types.Vec3 {
	center := p.MotionSteps() / 2
	if step == center {
		return p.Points
	}
	if step < center {
		return p.MotionPoints[step]
	}
	return p.MotionPoints[step-1]
}

// Point returns the rest position and radius of point i.
func (p *PointCloud) Point(i int) (types.Vec3, float32) {
	return p.Points[i], p.Radius[i]
}

// PointAtTime interpolates point i at shutter time t.
func (p *PointCloud) PointAtTime(i int, t float32) (types.Vec3, float32) {
	if !p.UseMotionBlur() {
		return p.Point(i)
	}
	lo, hi, w := motionTime(p.MotionSteps(), t)
	return types.MixVec3(p.stepPoints(lo)[i], p.stepPoints(hi)[i], w), p.Radius[i]
}

// GrowPointBounds extends bounds by point i at the rest position.
func (p *PointCloud) GrowPointBounds(i int, bounds *types.BoundBox) {
	bounds.GrowPointBorder(p.Points[i], p.Radius[i])
}

// GrowPointBoundsStep extends bounds by point i at a motion step.
func (p *PointCloud) GrowPointBoundsStep(i, step int, bounds *types.BoundBox) {
	bounds.GrowPointBorder(p.stepPoints(step)[i], p.Radius[i])
}

// Bounds returns the point cloud bounds swept over all motion steps.
func (p *PointCloud) Bounds() types.BoundBox {
	bounds := types.EmptyBoundBox()
	for step := 0; step < p.MotionSteps(); step++ {
		pts := p.stepPoints(step)
		for i, pt := range pts {
			bounds.GrowPointBorder(pt, p.Radius[i])
		}
	}
	return bounds
}
