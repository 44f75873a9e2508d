package bvh

import (
	"errors"
	"time"

	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

// ErrRefitTopLevel is returned when refitting a top-level structure, whose
// merged instances cannot be refit in place.
var ErrRefitTopLevel = errors.New("bvh: cannot refit top-level structure")

// Refit recomputes all packed bounds and visibility from the current
// geometry positions without rebuilding the topology. Valid for bottom-level
// structures only.
func (b *BVH) Refit(progress *Progress) error {
	if b.Params.TopLevel {
		return ErrRefitTopLevel
	}
	if progress == nil {
		progress = NewProgress()
	}

	progress.SetSubstatus("Packing BVH primitives")
	b.packPrimitives()
	if progress.IsCanceled() {
		return ErrCanceled
	}

	progress.SetSubstatus("Refitting BVH nodes")
	refitStart := time.Now()
	b.refitNodes()
	if progress.IsCanceled() {
		return ErrCanceled
	}
	logger.Debugf("BVH refit time: %d ms\n", time.Since(refitStart).Nanoseconds()/1e6)
	return nil
}

type refitResult struct {
	bounds     types.BoundBox
	visibility uint32
}

type refitFrame struct {
	idx     int32
	leaf    bool
	entered bool
}

// refitNodes walks the packed tree with an explicit stack, two visits per
// inner node: the first pushes the children, the second pops their refit
// results and rewrites the node. Packed trees can be deep enough that the
// recursive formulation is not safe.
func (b *BVH) refitNodes() {
	frames := make([]refitFrame, 0, MaxDepth*2)
	results := make([]refitResult, 0, MaxDepth)

	frames = append(frames, refitFrame{idx: 0, leaf: b.Pack.RootIndex == -1})

	for len(frames) > 0 {
		f := frames[len(frames)-1]
		frames = frames[:len(frames)-1]

		if f.leaf {
			results = append(results, b.refitLeaf(f.idx))
			continue
		}

		data := b.Pack.Nodes[f.idx]
		c0 := data[2]
		c1 := data[3]

		if !f.entered {
			frames = append(frames, refitFrame{idx: f.idx, entered: true})
			frames = append(frames, childFrame(c0), childFrame(c1))
			continue
		}

		// Children are complete; child 0 was processed last, so its result
		// is on top.
		r0 := results[len(results)-1]
		r1 := results[len(results)-2]
		results = results[:len(results)-2]

		isUnaligned := uint32(data[0])&PathRayNodeUnaligned != 0
		if isUnaligned {
			identity := types.TransformIdentity()
			b.packUnalignedNode(f.idx, identity, identity, r0.bounds, r1.bounds, c0, c1, r0.visibility, r1.visibility)
		} else {
			b.packAlignedNode(f.idx, r0.bounds, r1.bounds, c0, c1, r0.visibility, r1.visibility)
		}

		results = append(results, refitResult{
			bounds:     types.Merge(r0.bounds, r1.bounds),
			visibility: r0.visibility | r1.visibility,
		})
	}
}

func childFrame(c int32) refitFrame {
	if c < 0 {
		return refitFrame{idx: -c - 1, leaf: true}
	}
	return refitFrame{idx: c}
}

func (b *BVH) refitLeaf(idx int32) refitResult {
	data := b.Pack.LeafNodes[idx]
	c0 := data[0]
	c1 := data[1]

	res := b.refitPrimitives(c0, c1)

	b.Pack.LeafNodes[idx] = Int4{c0, c1, int32(res.visibility), data[3]}
	return res
}

// refitPrimitives regrows the bounds of a packed primitive range from the
// geometry, including every motion step.
func (b *BVH) refitPrimitives(start, end int32) refitResult {
	bounds := types.EmptyBoundBox()
	var visibility uint32

	for prim := start; prim < end; prim++ {
		pidx := b.Pack.PrimIndex[prim]
		ob := b.Objects[b.Pack.PrimObject[prim]]

		if pidx == -1 {
			bounds.Grow(ob.Bounds)
		} else {
			primType := b.Pack.PrimType[prim]
			switch {
			case primType&(PrimitiveCurve|PrimitiveMotionCurve) != 0:
				hair := ob.Geometry.(*scene.Hair)
				k := UnpackSegment(primType)
				for step := 0; step < hair.MotionSteps(); step++ {
					hair.GrowSegmentBoundsStep(int(pidx), k, step, &bounds)
				}
			case primType&(PrimitivePoint|PrimitiveMotionPoint) != 0:
				pointcloud := ob.Geometry.(*scene.PointCloud)
				for step := 0; step < pointcloud.MotionSteps(); step++ {
					pointcloud.GrowPointBoundsStep(int(pidx), step, &bounds)
				}
			default:
				mesh := ob.Geometry.(*scene.Mesh)
				for step := 0; step < mesh.MotionSteps(); step++ {
					mesh.GrowTriangleBoundsStep(int(pidx), step, &bounds)
				}
			}
		}
		visibility |= ob.VisibilityForTracing()
	}

	return refitResult{bounds: bounds, visibility: visibility}
}
