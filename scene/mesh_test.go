package scene

import (
	"testing"

	"github.com/primatelabs/cycles/types"
)

func staticTriangle() *Mesh {
	return &Mesh{
		Verts: []types.Vec3{
			types.XYZ(0, 0, 0),
			types.XYZ(1, 0, 0),
			types.XYZ(0, 1, 0),
		},
		Triangles:        [][3]int{{0, 1, 2}},
		TransformApplied: true,
	}
}

func TestMeshMotionSteps(t *testing.T) {
	mesh := staticTriangle()
	if mesh.UseMotionBlur() {
		t.Fatal("expected a static mesh without motion verts")
	}
	if got := mesh.MotionSteps(); got != 1 {
		t.Fatalf("expected 1 motion step for a static mesh; got %d", got)
	}

	mesh.MotionVerts = [][]types.Vec3{
		offsetVerts(mesh.Verts, types.XYZ(-1, 0, 0)),
		offsetVerts(mesh.Verts, types.XYZ(1, 0, 0)),
	}
	if got := mesh.MotionSteps(); got != 3 {
		t.Fatalf("expected 3 motion steps; got %d", got)
	}
}

func offsetVerts(verts []types.Vec3, offset types.Vec3) []types.Vec3 {
	out := make([]types.Vec3, len(verts))
	for i, v := range verts {
		out[i] = v.Add(offset)
	}
	return out
}

func TestMeshBoundsSweepMotion(t *testing.T) {
	mesh := staticTriangle()
	mesh.MotionVerts = [][]types.Vec3{
		offsetVerts(mesh.Verts, types.XYZ(-2, 0, 0)),
		offsetVerts(mesh.Verts, types.XYZ(3, 0, 0)),
	}

	b := mesh.Bounds()
	expMin := types.XYZ(-2, 0, 0)
	expMax := types.XYZ(4, 1, 0)
	if b.Min != expMin || b.Max != expMax {
		t.Fatalf("expected swept bounds %v-%v; got %v-%v", expMin, expMax, b.Min, b.Max)
	}
}

func TestMeshTriangleVertsAtTime(t *testing.T) {
	mesh := staticTriangle()
	mesh.MotionVerts = [][]types.Vec3{
		offsetVerts(mesh.Verts, types.XYZ(-2, 0, 0)),
		offsetVerts(mesh.Verts, types.XYZ(2, 0, 0)),
	}

	// Shutter midpoint lands on the center step, which is the rest mesh.
	mid := mesh.TriangleVertsAtTime(0, 0.5)
	rest := mesh.TriangleVerts(0)
	if mid != rest {
		t.Fatalf("expected shutter midpoint to match rest verts; got %v", mid)
	}

	// Shutter open is the first motion step.
	open := mesh.TriangleVertsAtTime(0, 0)
	if open[0] != types.XYZ(-2, 0, 0) {
		t.Fatalf("expected shutter open at the first motion step; got %v", open[0])
	}

	// Quarter shutter interpolates between the first step and the rest.
	quarter := mesh.TriangleVertsAtTime(0, 0.25)
	if quarter[0] != types.XYZ(-1, 0, 0) {
		t.Fatalf("expected interpolated position (-1, 0, 0); got %v", quarter[0])
	}
}

func TestMeshGrowTriangleBoundsStep(t *testing.T) {
	mesh := staticTriangle()
	mesh.MotionVerts = [][]types.Vec3{
		offsetVerts(mesh.Verts, types.XYZ(-2, 0, 0)),
		offsetVerts(mesh.Verts, types.XYZ(2, 0, 0)),
	}

	bounds := types.EmptyBoundBox()
	mesh.GrowTriangleBoundsStep(0, 1, &bounds)
	if bounds.Min != types.XYZ(0, 0, 0) || bounds.Max != types.XYZ(1, 1, 0) {
		t.Fatalf("expected center step bounds from the rest verts; got %v-%v", bounds.Min, bounds.Max)
	}

	bounds = types.EmptyBoundBox()
	mesh.GrowTriangleBoundsStep(0, 2, &bounds)
	if bounds.Min != types.XYZ(2, 0, 0) {
		t.Fatalf("expected last step bounds to start at x=2; got %v", bounds.Min)
	}
}
