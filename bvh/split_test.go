package bvh

import (
	"testing"

	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

func boxContains(outer, inner types.BoundBox) bool {
	merged := types.Merge(outer, inner)
	return merged.Min == outer.Min && merged.Max == outer.Max
}

func TestSplitReferenceTriangle(t *testing.T) {
	mesh := makeMesh(types.XYZ(0, 0, 0))
	b := newBVHBuild([]*scene.Object{makeObject(mesh)}, DefaultParams(), nil)
	rng := b.addReferences()
	if rng.Size != 1 {
		t.Fatalf("expected a single reference; got %d", rng.Size)
	}

	ref := b.references[0]
	split := spatialSplit{dim: 0, pos: 0.5}

	var left, right Reference
	split.splitReference(b, &left, &right, &ref, 0, 0.5)

	if !boxContains(ref.Bounds, left.Bounds) || !boxContains(ref.Bounds, right.Bounds) {
		t.Fatal("expected clipped halves to stay inside the original bounds")
	}
	if left.Bounds.Max[0] > 0.5 {
		t.Fatalf("expected left half to end at the plane; got max %f", left.Bounds.Max[0])
	}
	if right.Bounds.Min[0] < 0.5 {
		t.Fatalf("expected right half to start at the plane; got min %f", right.Bounds.Min[0])
	}
	if left.PrimIndex != ref.PrimIndex || right.PrimIndex != ref.PrimIndex {
		t.Fatal("expected both halves to keep the primitive identity")
	}
}

func TestSplitReferenceCurve(t *testing.T) {
	hair := &scene.Hair{
		Keys:             []types.Vec3{types.XYZ(0, 0, 0), types.XYZ(2, 2, 0)},
		Radius:           []float32{0.1, 0.1},
		Curves:           []scene.Curve{{FirstKey: 0, NumKeys: 2}},
		TransformApplied: true,
	}
	obj := scene.NewObject(hair, types.TransformIdentity(), 1)

	b := newBVHBuild([]*scene.Object{obj}, DefaultParams(), nil)
	b.addReferences()

	ref := b.references[0]
	split := spatialSplit{dim: 0, pos: 1.0}

	var left, right Reference
	split.splitReference(b, &left, &right, &ref, 0, 1.0)

	if !boxContains(ref.Bounds, left.Bounds) || !boxContains(ref.Bounds, right.Bounds) {
		t.Fatal("expected clipped halves to stay inside the original bounds")
	}
	// The interpolated plane crossing at (1, 1, 0) belongs to both halves.
	if left.Bounds.Max[1] < 1.0 {
		t.Fatalf("expected left half to reach the crossing point; got max y %f", left.Bounds.Max[1])
	}
	if right.Bounds.Min[1] > 1.0 {
		t.Fatalf("expected right half to start at the crossing point; got min y %f", right.Bounds.Min[1])
	}
}

func TestObjectSplitPartitions(t *testing.T) {
	origins := make([]types.Vec3, 16)
	for i := range origins {
		origins[i] = types.XYZ(float32(i)*4, 0, 0)
	}
	mesh := makeMesh(origins...)

	b := newBVHBuild([]*scene.Object{makeObject(mesh)}, DefaultParams(), nil)
	rng := b.addReferences()

	var storage spatialStorage
	split := newObjectSplit(b, &storage, rng, b.references, 0, nil, nil)

	if split.dim != 0 {
		t.Fatalf("expected split along x for a row of boxes; got dim %d", split.dim)
	}
	if split.numLeft <= 0 || split.numLeft >= rng.Size {
		t.Fatalf("expected a proper partition; got %d of %d on the left", split.numLeft, rng.Size)
	}

	var left, right Range
	split.split(b.references, &left, &right, rng)

	if left.Size+right.Size != rng.Size {
		t.Fatalf("expected partition sizes to add up to %d; got %d and %d", rng.Size, left.Size, right.Size)
	}
	for i := left.Start; i < left.End(); i++ {
		if !boxContains(left.Bounds, b.references[i].Bounds) {
			t.Fatalf("left bounds do not contain reference %d", i)
		}
	}
	for i := right.Start; i < right.End(); i++ {
		if !boxContains(right.Bounds, b.references[i].Bounds) {
			t.Fatalf("right bounds do not contain reference %d", i)
		}
	}
}

func TestObjectBinningMedianFallback(t *testing.T) {
	// All centroids coincide, so no plane can separate them. The split must
	// still make progress.
	origins := make([]types.Vec3, 8)
	mesh := makeMesh(origins...)

	b := newBVHBuild([]*scene.Object{makeObject(mesh)}, DefaultParams(), nil)
	rng := b.addReferences()

	binning := newObjectBinning(rng, b.references, nil, nil)

	var left, right objectBinning
	binning.split(b.references, &left, &right)

	if left.Size == 0 || right.Size == 0 {
		t.Fatalf("expected median fallback to produce two non-empty sides; got %d and %d", left.Size, right.Size)
	}
	if left.Size+right.Size != rng.Size {
		t.Fatalf("expected sizes to add up to %d; got %d and %d", rng.Size, left.Size, right.Size)
	}
}
