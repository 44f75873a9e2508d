package bvh

import (
	"math"
	"reflect"
	"testing"

	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

// triangleAt returns a unit right triangle with its corner at origin.
func triangleAt(origin types.Vec3) [3]types.Vec3 {
	return [3]types.Vec3{
		origin,
		origin.Add(types.XYZ(1, 0, 0)),
		origin.Add(types.XYZ(0, 1, 0)),
	}
}

func makeMesh(origins ...types.Vec3) *scene.Mesh {
	mesh := &scene.Mesh{TransformApplied: true}
	for _, origin := range origins {
		verts := triangleAt(origin)
		base := len(mesh.Verts)
		mesh.Verts = append(mesh.Verts, verts[0], verts[1], verts[2])
		mesh.Triangles = append(mesh.Triangles, [3]int{base, base + 1, base + 2})
	}
	return mesh
}

func makeObject(mesh *scene.Mesh) *scene.Object {
	return scene.NewObject(mesh, types.TransformIdentity(), 1)
}

// makeHair returns hair made of two-key curves laid out along the (1, 1, 1)
// diagonal, the shape orientation-fitted nodes pay off for.
func makeHair(curves int) *scene.Hair {
	dir := types.XYZ(1, 1, 1).Normalize()
	hair := &scene.Hair{TransformApplied: true}
	for i := 0; i < curves; i++ {
		start := dir.Mul(float32(i) * 4)
		first := len(hair.Keys)
		hair.Keys = append(hair.Keys, start, start.Add(dir.Mul(10)))
		hair.Radius = append(hair.Radius, 0.1, 0.1)
		hair.Curves = append(hair.Curves, scene.Curve{FirstKey: first, NumKeys: 2})
	}
	return hair
}

func decodeBox(row0, row1, row2 Int4, child int) types.BoundBox {
	boxOf := func(bits int32) float32 {
		return math.Float32frombits(uint32(bits))
	}
	return types.NewBoundBox(
		types.XYZ(boxOf(row0[child]), boxOf(row1[child]), boxOf(row2[child])),
		types.XYZ(boxOf(row0[child+2]), boxOf(row1[child+2]), boxOf(row2[child+2])),
	)
}

// innerChildBoxes decodes both child boxes of an aligned inner node.
func innerChildBoxes(pack *PackedBVH, idx int32) (types.BoundBox, types.BoundBox) {
	return decodeBox(pack.Nodes[idx+1], pack.Nodes[idx+2], pack.Nodes[idx+3], 0),
		decodeBox(pack.Nodes[idx+1], pack.Nodes[idx+2], pack.Nodes[idx+3], 1)
}

// collectLeaves walks the packed tree and returns every leaf row index.
func collectLeaves(t *testing.T, pack *PackedBVH) []int32 {
	t.Helper()

	if pack.RootIndex == -1 {
		return []int32{0}
	}

	var leaves []int32
	stack := []int32{pack.RootIndex}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		data := pack.Nodes[idx]
		for _, c := range []int32{data[2], data[3]} {
			if c < 0 {
				leaves = append(leaves, ^c)
			} else {
				stack = append(stack, c)
			}
		}
	}
	return leaves
}

func TestBuildTwoDisjointTriangles(t *testing.T) {
	mesh := makeMesh(types.XYZ(0, 0, 0), types.XYZ(10, 10, 0))

	params := DefaultParams()
	params.MaxTriangleLeafSize = 1

	b, err := Build([]*scene.Object{makeObject(mesh)}, nil, params, nil)
	if err != nil {
		t.Fatal(err)
	}

	if b.Pack.RootIndex != 0 {
		t.Fatalf("expected root index 0; got %d", b.Pack.RootIndex)
	}
	if len(b.Pack.Nodes) != nodeSize {
		t.Fatalf("expected a single inner node of %d rows; got %d rows", nodeSize, len(b.Pack.Nodes))
	}
	if len(b.Pack.LeafNodes) != 2 {
		t.Fatalf("expected 2 leaf rows; got %d", len(b.Pack.LeafNodes))
	}

	for _, leaf := range collectLeaves(t, &b.Pack) {
		data := b.Pack.LeafNodes[leaf]
		if data[1]-data[0] != 1 {
			t.Fatalf("expected every leaf to hold 1 primitive; leaf %d holds %d", leaf, data[1]-data[0])
		}
	}

	b0, b1 := innerChildBoxes(&b.Pack, 0)
	root := types.Merge(b0, b1)
	expMin := types.XYZ(0, 0, 0)
	expMax := types.XYZ(11, 11, 0)
	if root.Min != expMin || root.Max != expMax {
		t.Fatalf("expected root bounds %v-%v; got %v-%v", expMin, expMax, root.Min, root.Max)
	}
}

func TestBuildLeafSizeBound(t *testing.T) {
	origins := make([]types.Vec3, 100)
	for i := range origins {
		origins[i] = types.XYZ(float32(i)*2, 0, 0)
	}
	mesh := makeMesh(origins...)

	params := DefaultParams()
	params.MaxTriangleLeafSize = 4

	b, err := Build([]*scene.Object{makeObject(mesh)}, nil, params, nil)
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[int32]bool)
	total := int32(0)
	for _, leaf := range collectLeaves(t, &b.Pack) {
		data := b.Pack.LeafNodes[leaf]
		size := data[1] - data[0]
		if size > 4 {
			t.Fatalf("expected leaves of at most 4 primitives; got %d", size)
		}
		total += size
		for p := data[0]; p < data[1]; p++ {
			idx := b.Pack.PrimIndex[p]
			if seen[idx] {
				t.Fatalf("primitive %d referenced by more than one leaf", idx)
			}
			seen[idx] = true
		}
	}
	if total != 100 {
		t.Fatalf("expected leaves to cover 100 primitives; got %d", total)
	}
}

func TestBuildDeterministic(t *testing.T) {
	origins := make([]types.Vec3, 64)
	for i := range origins {
		origins[i] = types.XYZ(float32(i%8)*3, float32(i/8)*3, float32(i%3))
	}

	build := func() *BVH {
		mesh := makeMesh(origins...)
		b, err := Build([]*scene.Object{makeObject(mesh)}, nil, DefaultParams(), nil)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	first := build()
	second := build()
	if !reflect.DeepEqual(first.Pack, second.Pack) {
		t.Fatal("expected two builds of the same scene to produce identical packed output")
	}
}

func TestBuildSingleLeafRoot(t *testing.T) {
	mesh := makeMesh(types.XYZ(0, 0, 0))

	b, err := Build([]*scene.Object{makeObject(mesh)}, nil, DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if b.Pack.RootIndex != -1 {
		t.Fatalf("expected root index -1 for a leaf root; got %d", b.Pack.RootIndex)
	}
	if len(b.Pack.Nodes) != 0 {
		t.Fatalf("expected no inner node rows; got %d", len(b.Pack.Nodes))
	}
	if len(b.Pack.LeafNodes) != 1 {
		t.Fatalf("expected a single leaf row; got %d", len(b.Pack.LeafNodes))
	}
}

func TestBuildCanceled(t *testing.T) {
	origins := make([]types.Vec3, 10000)
	for i := range origins {
		origins[i] = types.XYZ(float32(i), 0, 0)
	}
	mesh := makeMesh(origins...)

	progress := NewProgress()
	progress.Cancel()

	_, err := Build([]*scene.Object{makeObject(mesh)}, nil, DefaultParams(), progress)
	if err != ErrCanceled {
		t.Fatalf("expected %v; got %v", ErrCanceled, err)
	}
}

func TestBuildSpatialSplitCoversAllPrimitives(t *testing.T) {
	origins := make([]types.Vec3, 50)
	for i := range origins {
		origins[i] = types.XYZ(float32(i)*0.4, float32(i%5)*0.3, 0)
	}
	mesh := makeMesh(origins...)

	params := DefaultParams()
	params.UseSpatialSplit = true
	params.MaxTriangleLeafSize = 2

	b, err := Build([]*scene.Object{makeObject(mesh)}, nil, params, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Spatial splits may duplicate references, so every primitive must be
	// seen at least once and nothing outside the mesh may appear.
	seen := make(map[int32]bool)
	for _, leaf := range collectLeaves(t, &b.Pack) {
		data := b.Pack.LeafNodes[leaf]
		for p := data[0]; p < data[1]; p++ {
			idx := b.Pack.PrimIndex[p]
			if idx < 0 || idx >= 50 {
				t.Fatalf("leaf references primitive %d outside the mesh", idx)
			}
			seen[idx] = true
		}
	}
	if len(seen) != 50 {
		t.Fatalf("expected leaves to cover all 50 primitives; got %d", len(seen))
	}
}

func TestBuildUnalignedHair(t *testing.T) {
	hair := makeHair(2)

	params := DefaultParams()
	params.UseUnalignedNodes = true

	obj := scene.NewObject(hair, types.TransformIdentity(), 1)
	b, err := Build([]*scene.Object{obj}, nil, params, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Curve leaves cap out at one segment, so both curves must end up in
	// leaves of their own.
	seen := make(map[int32]bool)
	for _, leaf := range collectLeaves(t, &b.Pack) {
		data := b.Pack.LeafNodes[leaf]
		if size := data[1] - data[0]; size > int32(params.MaxCurveLeafSize) {
			t.Fatalf("expected curve leaves of at most %d primitives; got %d", params.MaxCurveLeafSize, size)
		}
		for p := data[0]; p < data[1]; p++ {
			if b.Pack.PrimType[p]&PrimitiveCurve == 0 {
				t.Fatalf("expected slot %d to hold a curve segment; got type %#x", p, b.Pack.PrimType[p])
			}
			seen[b.Pack.PrimIndex[p]] = true
		}
	}
	if len(seen) != 2 {
		t.Fatalf("expected leaves to cover both curves; got %d", len(seen))
	}
}

func TestBuildEmptyScene(t *testing.T) {
	mesh := &scene.Mesh{TransformApplied: true}

	b, err := Build([]*scene.Object{makeObject(mesh)}, nil, DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Pack.RootIndex != -1 {
		t.Fatalf("expected leaf root for empty scene; got root index %d", b.Pack.RootIndex)
	}
	data := b.Pack.LeafNodes[0]
	if data[0] != 0 || data[1] != 0 {
		t.Fatalf("expected empty leaf range; got [%d, %d)", data[0], data[1])
	}
}
