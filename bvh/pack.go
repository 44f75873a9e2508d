package bvh

import (
	"errors"
	"math"
	"time"

	"github.com/primatelabs/cycles/log"
	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

// ErrCanceled is returned when a build or refit is canceled through its
// progress handle. No partial structure is produced.
var ErrCanceled = errors.New("bvh: build canceled")

var logger = log.New("bvh")

// Int4 is one 16-byte row of the packed node stream. Float payloads are
// stored as raw bit patterns.
type Int4 [4]int32

// Packed node layouts, in Int4 rows. An aligned inner node is a header row
// (visibility pair and child indexes) plus one row per axis interleaving
// both child boxes. An unaligned inner node replaces the box rows with two
// 3-row child transforms. A leaf is a single row.
const (
	nodeSize          = 4
	unalignedNodeSize = 7
	leafNodeSize      = 1
)

// PathRayNodeUnaligned flags, inside packed visibility words, inner nodes
// stored in the unaligned layout.
const PathRayNodeUnaligned uint32 = 1 << 31

// PackedBVH is the flat, traversal-ready form of a built tree.
type PackedBVH struct {
	// RootIndex is the node index traversal starts at, or -1 when the root
	// is leaf 0.
	RootIndex int32

	// Nodes holds inner nodes; child indexes address rows here, negated
	// (bitwise complement) when the child is a leaf.
	Nodes []Int4

	// LeafNodes holds leaf rows: primitive range, visibility and type.
	LeafNodes []Int4

	// ObjectNode maps each object to the packed root of its merged
	// bottom-level structure. Top-level only.
	ObjectNode []int32

	// Per packed primitive slot.
	PrimType       []int32
	PrimIndex      []int32
	PrimObject     []int32
	PrimVisibility []uint32
	PrimTime       []types.Vec2
}

// BVH is a built acceleration structure over a set of objects.
type BVH struct {
	Params  Params
	Pack    PackedBVH
	Objects []*scene.Object
}

func floatBits(f float32) int32 {
	return int32(math.Float32bits(f))
}

// Build constructs a BVH over the objects. For a top-level build, accels
// maps instanced geometry to its already-built bottom-level BVH, which is
// merged into the packed output with structural sharing; bottom-level builds
// pass nil. Cancellation through progress returns ErrCanceled.
func Build(objects []*scene.Object, accels map[scene.Geometry]*BVH, params Params, progress *Progress) (*BVH, error) {
	if progress == nil {
		progress = NewProgress()
	}
	progress.SetSubstatus("Building BVH")

	buildStart := time.Now()
	builder := newBVHBuild(objects, params, progress)
	root, err := builder.run()
	if err != nil {
		return nil, err
	}
	logger.Debugf(
		"BVH build time: %d ms, references: %d (%d duplicated)\n",
		time.Since(buildStart).Nanoseconds()/1e6,
		len(builder.references), len(builder.references)-builder.numOriginalReferences,
	)

	b := &BVH{
		Params:  params,
		Objects: objects,
		Pack: PackedBVH{
			PrimType:   builder.primType,
			PrimIndex:  builder.primIndex,
			PrimObject: builder.primObject,
			PrimTime:   builder.primTime,
		},
	}

	packStart := time.Now()
	progress.SetSubstatus("Packing BVH primitives")
	b.packPrimitives()
	if progress.IsCanceled() {
		return nil, ErrCanceled
	}

	progress.SetSubstatus("Packing BVH nodes")
	b.packNodes(root, accels)
	if progress.IsCanceled() {
		return nil, ErrCanceled
	}
	logger.Debugf(
		"BVH pack time: %d ms, node rows: %d, leafs: %d\n",
		time.Since(packStart).Nanoseconds()/1e6,
		len(b.Pack.Nodes), len(b.Pack.LeafNodes),
	)
	return b, nil
}

// packPrimitives fills the per-slot visibility array from the owning
// objects. Object-instance slots stay zero, their visibility lives in the
// instanced structure.
func (b *BVH) packPrimitives() {
	b.Pack.PrimVisibility = make([]uint32, len(b.Pack.PrimIndex))
	for i := range b.Pack.PrimIndex {
		if b.Pack.PrimIndex[i] != -1 {
			ob := b.Objects[b.Pack.PrimObject[i]]
			b.Pack.PrimVisibility[i] = ob.VisibilityForTracing()
		}
	}
}

type packStackEntry struct {
	node *node
	idx  int32
}

func (e packStackEntry) encodeIdx() int32 {
	if e.node.isLeaf() {
		return ^e.idx
	}
	return e.idx
}

func (b *BVH) packLeaf(e packStackEntry, leaf *node) {
	var data Int4
	if leaf.numPrims() == 1 && b.Pack.PrimIndex[leaf.lo] == -1 {
		// Object instance leaf.
		data[0] = ^leaf.lo
		data[1] = 0
	} else {
		data[0] = leaf.lo
		data[1] = leaf.hi
	}
	data[2] = int32(leaf.visibility)
	if leaf.numPrims() != 0 {
		data[3] = b.Pack.PrimType[leaf.lo]
	}
	b.Pack.LeafNodes[e.idx] = data
}

func (b *BVH) packAlignedNode(idx int32, b0, b1 types.BoundBox, c0, c1 int32, visibility0, visibility1 uint32) {
	b.Pack.Nodes[idx] = Int4{
		int32(visibility0 &^ PathRayNodeUnaligned),
		int32(visibility1 &^ PathRayNodeUnaligned),
		c0, c1,
	}
	for axis := 0; axis < 3; axis++ {
		b.Pack.Nodes[idx+1+int32(axis)] = Int4{
			floatBits(b0.Min[axis]),
			floatBits(b1.Min[axis]),
			floatBits(b0.Max[axis]),
			floatBits(b1.Max[axis]),
		}
	}
}

func transformRows(t types.Transform) [3]Int4 {
	rows := [3]types.Vec4{t.X, t.Y, t.Z}
	var out [3]Int4
	for i, row := range rows {
		out[i] = Int4{floatBits(row[0]), floatBits(row[1]), floatBits(row[2]), floatBits(row[3])}
	}
	return out
}

func (b *BVH) packUnalignedNode(idx int32, alignedSpace0, alignedSpace1 types.Transform, b0, b1 types.BoundBox, c0, c1 int32, visibility0, visibility1 uint32) {
	space0 := transformRows(computeNodeTransform(b0, alignedSpace0))
	space1 := transformRows(computeNodeTransform(b1, alignedSpace1))

	b.Pack.Nodes[idx] = Int4{
		int32(visibility0 | PathRayNodeUnaligned),
		int32(visibility1 | PathRayNodeUnaligned),
		c0, c1,
	}
	for i := 0; i < 3; i++ {
		b.Pack.Nodes[idx+1+int32(i)] = space0[i]
		b.Pack.Nodes[idx+4+int32(i)] = space1[i]
	}
}

func (b *BVH) packInner(e, e0, e1 packStackEntry) {
	if e0.node.isUnaligned || e1.node.isUnaligned {
		b.packUnalignedNode(e.idx,
			e0.node.getAlignedSpace(), e1.node.getAlignedSpace(),
			e0.node.bounds, e1.node.bounds,
			e0.encodeIdx(), e1.encodeIdx(),
			e0.node.visibility, e1.node.visibility)
	} else {
		b.packAlignedNode(e.idx,
			e0.node.bounds, e1.node.bounds,
			e0.encodeIdx(), e1.encodeIdx(),
			e0.node.visibility, e1.node.visibility)
	}
}

// packNodes flattens the tree depth first, assigning inner nodes and leaves
// their final rows. A size pre-pass allocates both arrays up front; for
// top-level structures the bottom-level packs are merged in first so the
// instance offsets are known.
func (b *BVH) packNodes(root *node, accels map[scene.Geometry]*BVH) {
	numNodes, numLeafNodes, numUnaligned := root.subtreeCounts()
	numInnerNodes := numNodes - numLeafNodes

	var nodesSize int
	if b.Params.UseUnalignedNodes {
		nodesSize = numUnaligned*unalignedNodeSize + (numInnerNodes-numUnaligned)*nodeSize
	} else {
		nodesSize = numInnerNodes * nodeSize
	}

	if b.Params.TopLevel {
		b.packInstances(nodesSize, numLeafNodes*leafNodeSize, accels)
	} else {
		b.Pack.Nodes = make([]Int4, nodesSize)
		b.Pack.LeafNodes = make([]Int4, numLeafNodes*leafNodeSize)
	}

	var nextNodeIdx, nextLeafNodeIdx int32

	stack := make([]packStackEntry, 0, MaxDepth*2)
	if root.isLeaf() {
		stack = append(stack, packStackEntry{root, nextLeafNodeIdx})
		nextLeafNodeIdx++
	} else {
		stack = append(stack, packStackEntry{root, nextNodeIdx})
		if root.packsUnaligned() {
			nextNodeIdx += unalignedNodeSize
		} else {
			nextNodeIdx += nodeSize
		}
	}

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if e.node.isLeaf() {
			b.packLeaf(e, e.node)
			continue
		}

		var idx [2]int32
		for i := 0; i < 2; i++ {
			child := e.node.children[i]
			if child.isLeaf() {
				idx[i] = nextLeafNodeIdx
				nextLeafNodeIdx++
			} else {
				idx[i] = nextNodeIdx
				if child.packsUnaligned() {
					nextNodeIdx += unalignedNodeSize
				} else {
					nextNodeIdx += nodeSize
				}
			}
		}

		stack = append(stack,
			packStackEntry{e.node.children[0], idx[0]},
			packStackEntry{e.node.children[1], idx[1]})

		b.packInner(e, stack[len(stack)-2], stack[len(stack)-1])
	}

	if int(nextNodeIdx) != nodesSize || int(nextLeafNodeIdx) != numLeafNodes*leafNodeSize {
		panic("bvh: packed node size does not match pre-pass")
	}

	if root.isLeaf() {
		b.Pack.RootIndex = -1
	} else {
		b.Pack.RootIndex = 0
	}
}

// packInstances merges the bottom-level packs referenced by the objects
// behind this top-level structure's own data, rebasing primitive slots and
// child indexes. Objects sharing geometry share one merged copy.
func (b *BVH) packInstances(nodesSize, leafNodesSize int, accels map[scene.Geometry]*BVH) {
	pack := &b.Pack

	// Primitives packed directly into the top level (transform applied)
	// address the global arrays, so their indexes become geometry-global.
	for i := range pack.PrimIndex {
		if pack.PrimIndex[i] != -1 {
			pack.PrimIndex[i] += int32(b.Objects[pack.PrimObject[i]].Geometry.PrimOffset())
		}
	}

	primOffset := len(pack.PrimIndex)
	nodesOffset := nodesSize
	leafNodesOffset := leafNodesSize

	// Sizing pass over the distinct instanced geometries.
	primIndexSize := len(pack.PrimIndex)
	totalNodesSize := nodesSize
	totalLeafSize := leafNodesSize
	seen := make(map[scene.Geometry]bool)
	for _, ob := range b.Objects {
		geom := ob.Geometry
		if !geom.NeedBuildBVH() || seen[geom] {
			continue
		}
		seen[geom] = true
		sub := accels[geom]
		primIndexSize += len(sub.Pack.PrimIndex)
		totalNodesSize += len(sub.Pack.Nodes)
		totalLeafSize += len(sub.Pack.LeafNodes)
	}

	pack.PrimIndex = append(pack.PrimIndex, make([]int32, primIndexSize-len(pack.PrimIndex))...)
	pack.PrimType = append(pack.PrimType, make([]int32, primIndexSize-len(pack.PrimType))...)
	pack.PrimObject = append(pack.PrimObject, make([]int32, primIndexSize-len(pack.PrimObject))...)
	pack.PrimVisibility = append(pack.PrimVisibility, make([]uint32, primIndexSize-len(pack.PrimVisibility))...)
	if b.Params.UseMotionSteps() {
		pack.PrimTime = append(pack.PrimTime, make([]types.Vec2, primIndexSize-len(pack.PrimTime))...)
	}
	pack.Nodes = make([]Int4, totalNodesSize)
	pack.LeafNodes = make([]Int4, totalLeafSize)
	pack.ObjectNode = make([]int32, len(b.Objects))

	primIndexCursor := primOffset
	nodesCursor := nodesSize
	leafCursor := leafNodesSize

	merged := make(map[scene.Geometry]int32)

	for objectIdx, ob := range b.Objects {
		geom := ob.Geometry

		// Geometry without its own structure was packed directly above.
		if !geom.NeedBuildBVH() {
			pack.ObjectNode[objectIdx] = 0
			continue
		}

		if noffset, ok := merged[geom]; ok {
			pack.ObjectNode[objectIdx] = noffset
			continue
		}

		sub := accels[geom]
		noffset := int32(nodesOffset)
		noffsetLeaf := int32(leafNodesOffset)
		geomPrimOffset := int32(geom.PrimOffset())

		if sub.Pack.RootIndex == -1 {
			pack.ObjectNode[objectIdx] = -noffsetLeaf - 1
		} else {
			pack.ObjectNode[objectIdx] = noffset
		}
		merged[geom] = pack.ObjectNode[objectIdx]

		// Merge primitive slots, rebased to geometry-global indexes.
		for i := range sub.Pack.PrimIndex {
			pack.PrimIndex[primIndexCursor] = sub.Pack.PrimIndex[i] + geomPrimOffset
			pack.PrimType[primIndexCursor] = sub.Pack.PrimType[i]
			pack.PrimVisibility[primIndexCursor] = sub.Pack.PrimVisibility[i]
			pack.PrimObject[primIndexCursor] = 0
			if b.Params.UseMotionSteps() && len(sub.Pack.PrimTime) > 0 {
				pack.PrimTime[primIndexCursor] = sub.Pack.PrimTime[i]
			}
			primIndexCursor++
		}

		// Merge leaf rows, rebasing their primitive ranges.
		for i := 0; i < len(sub.Pack.LeafNodes); i += leafNodeSize {
			data := sub.Pack.LeafNodes[i]
			data[0] += int32(primOffset)
			data[1] += int32(primOffset)
			pack.LeafNodes[leafCursor] = data
			leafCursor += leafNodeSize
		}

		// Merge inner rows, rebasing child indexes. Negative child indexes
		// address leaves and shift by the leaf offset instead.
		for i := 0; i < len(sub.Pack.Nodes); {
			nsize := nodeSize
			if uint32(sub.Pack.Nodes[i][0])&PathRayNodeUnaligned != 0 {
				nsize = unalignedNodeSize
			}

			data := sub.Pack.Nodes[i]
			if data[2] < 0 {
				data[2] -= noffsetLeaf
			} else {
				data[2] += noffset
			}
			if data[3] < 0 {
				data[3] -= noffsetLeaf
			} else {
				data[3] += noffset
			}
			pack.Nodes[nodesCursor] = data
			copy(pack.Nodes[nodesCursor+1:nodesCursor+nsize], sub.Pack.Nodes[i+1:i+nsize])

			nodesCursor += nsize
			i += nsize
		}

		nodesOffset += len(sub.Pack.Nodes)
		leafNodesOffset += len(sub.Pack.LeafNodes)
		primOffset += len(sub.Pack.PrimIndex)
	}
}
