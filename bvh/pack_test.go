package bvh

import (
	"testing"

	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

func TestPackInnerBoundsContainChildren(t *testing.T) {
	origins := make([]types.Vec3, 32)
	for i := range origins {
		origins[i] = types.XYZ(float32(i)*1.5, float32(i%4), float32(i%7))
	}
	mesh := makeMesh(origins...)

	params := DefaultParams()
	params.MaxTriangleLeafSize = 2

	b, err := Build([]*scene.Object{makeObject(mesh)}, nil, params, nil)
	if err != nil {
		t.Fatal(err)
	}

	stack := []int32{b.Pack.RootIndex}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		data := b.Pack.Nodes[idx]
		b0, b1 := innerChildBoxes(&b.Pack, idx)

		for i, c := range []int32{data[2], data[3]} {
			if c < 0 {
				continue
			}
			c0, c1 := innerChildBoxes(&b.Pack, c)
			inner := types.Merge(c0, c1)
			outer := b0
			if i == 1 {
				outer = b1
			}
			merged := types.Merge(outer, inner)
			if merged.Min != outer.Min || merged.Max != outer.Max {
				t.Fatalf("inner node %d bounds do not contain its children", c)
			}
			stack = append(stack, c)
		}
	}
}

// nodeHeaders walks the packed inner nodes and splits their header row
// indexes by layout.
func nodeHeaders(pack *PackedBVH) (aligned, unaligned []int32) {
	if pack.RootIndex < 0 {
		return nil, nil
	}
	stack := []int32{pack.RootIndex}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		data := pack.Nodes[idx]
		if uint32(data[0])&PathRayNodeUnaligned != 0 {
			unaligned = append(unaligned, idx)
		} else {
			aligned = append(aligned, idx)
		}
		for _, c := range []int32{data[2], data[3]} {
			if c >= 0 {
				stack = append(stack, c)
			}
		}
	}
	return aligned, unaligned
}

func TestPackUnalignedNodes(t *testing.T) {
	hair := makeHair(8)

	params := DefaultParams()
	params.UseUnalignedNodes = true

	obj := scene.NewObject(hair, types.TransformIdentity(), 1)
	b, err := Build([]*scene.Object{obj}, nil, params, nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Pack.RootIndex != 0 {
		t.Fatalf("expected inner root; got root index %d", b.Pack.RootIndex)
	}

	aligned, unaligned := nodeHeaders(&b.Pack)
	if len(unaligned) == 0 {
		t.Fatal("expected diagonal hair to pack unaligned nodes")
	}
	for _, idx := range unaligned {
		if uint32(b.Pack.Nodes[idx][1])&PathRayNodeUnaligned == 0 {
			t.Fatalf("node %d carries the unaligned flag in only one visibility word", idx)
		}
	}

	// Every header row must land exactly where the mixed 4 and 7 row
	// strides put it.
	rows := len(aligned)*nodeSize + len(unaligned)*unalignedNodeSize
	if rows != len(b.Pack.Nodes) {
		t.Fatalf("expected %d node rows from %d aligned and %d unaligned nodes; got %d",
			rows, len(aligned), len(unaligned), len(b.Pack.Nodes))
	}
}

func TestPackInstanceSharing(t *testing.T) {
	mesh := makeMesh(types.XYZ(0, 0, 0), types.XYZ(3, 0, 0), types.XYZ(0, 3, 0))
	mesh.TransformApplied = false

	bottomParams := DefaultParams()
	bottomParams.MaxTriangleLeafSize = 1
	bottom, err := Build([]*scene.Object{makeObject(mesh)}, nil, bottomParams, nil)
	if err != nil {
		t.Fatal(err)
	}

	obj0 := scene.NewObject(mesh, types.TransformTranslate(types.XYZ(0, 0, 0)), 1)
	obj1 := scene.NewObject(mesh, types.TransformTranslate(types.XYZ(100, 0, 0)), 2)

	topParams := DefaultParams()
	topParams.TopLevel = true

	top, err := Build([]*scene.Object{obj0, obj1},
		map[scene.Geometry]*BVH{mesh: bottom}, topParams, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(top.Pack.ObjectNode) != 2 {
		t.Fatalf("expected 2 object node entries; got %d", len(top.Pack.ObjectNode))
	}
	if top.Pack.ObjectNode[0] != top.Pack.ObjectNode[1] {
		t.Fatalf("expected both instances to share one merged structure; got %d and %d",
			top.Pack.ObjectNode[0], top.Pack.ObjectNode[1])
	}

	// Two object slots up front plus one merged copy of the instanced pack.
	expPrims := 2 + len(bottom.Pack.PrimIndex)
	if len(top.Pack.PrimIndex) != expPrims {
		t.Fatalf("expected %d packed primitive slots; got %d", expPrims, len(top.Pack.PrimIndex))
	}

	// The top level of a multi-object scene always has an inner root.
	if top.Pack.RootIndex != 0 {
		t.Fatalf("expected inner root; got root index %d", top.Pack.RootIndex)
	}

	// Top-level leaves are object leaves: negated slot, zero second word.
	root := top.Pack.Nodes[0]
	for _, c := range []int32{root[2], root[3]} {
		if c >= 0 {
			t.Fatalf("expected leaf children under the top-level root; got node %d", c)
		}
		data := top.Pack.LeafNodes[^c]
		if data[0] >= 0 || data[1] != 0 {
			t.Fatalf("expected object leaf encoding; got [%d, %d]", data[0], data[1])
		}
		slot := ^data[0]
		if top.Pack.PrimIndex[slot] != -1 {
			t.Fatalf("expected object slot %d to hold prim index -1; got %d", slot, top.Pack.PrimIndex[slot])
		}
	}

	// Merged instance nodes sit behind the top level's own rows and their
	// leaf ranges are rebased past the top level's primitive slots.
	if top.Pack.ObjectNode[0] < 0 {
		leaf := top.Pack.LeafNodes[-top.Pack.ObjectNode[0]-1]
		if leaf[0] < 2 {
			t.Fatalf("expected rebased leaf range; got start %d", leaf[0])
		}
	} else {
		sub := top.Pack.Nodes[top.Pack.ObjectNode[0]]
		if uint32(sub[0])&PathRayNodeUnaligned != 0 {
			t.Fatal("expected merged instance root to be an aligned node")
		}
	}
}

func TestPackPrimitiveVisibility(t *testing.T) {
	mesh := makeMesh(types.XYZ(0, 0, 0), types.XYZ(5, 0, 0))
	obj := scene.NewObject(mesh, types.TransformIdentity(), 0xf0)

	b, err := Build([]*scene.Object{obj}, nil, DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}

	for i, vis := range b.Pack.PrimVisibility {
		if vis != 0xf0 {
			t.Fatalf("expected slot %d visibility 0xf0; got %#x", i, vis)
		}
	}
}
