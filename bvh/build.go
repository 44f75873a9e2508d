package bvh

import (
	"fmt"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

// bvhBuild drives one SAH build: it expands the scene into primitive
// references, recursively splits them into a binary tree and fills the
// packed primitive arrays as leaves are created.
type bvhBuild struct {
	objects []*scene.Object

	references            []Reference
	numOriginalReferences int

	// Packed primitive arrays, filled by leaf creation.
	primType   []int32
	primIndex  []int32
	primObject []int32
	primTime   []types.Vec2

	needPrimTime bool

	params   Params
	progress *Progress

	buildMu               sync.Mutex
	progressStart         time.Time
	progressLastUpdate    time.Time
	progressCount         int
	progressTotal         int
	progressOriginalTotal int

	// Spatial splits write leaf primitives into slots claimed from a shared
	// cursor, since duplication makes leaf output exceed range positions.
	spatialMinOverlap float32
	spatialFreeIndex  int
	spatialMu         sync.Mutex

	pool *taskPool

	heuristic unalignedHeuristic
}

func newBVHBuild(objects []*scene.Object, params Params, progress *Progress) *bvhBuild {
	if progress == nil {
		progress = NewProgress()
	}
	return &bvhBuild{
		objects:   objects,
		params:    params,
		progress:  progress,
		heuristic: unalignedHeuristic{objects: objects},
	}
}

// addReferenceTriangles emits one reference per triangle. Motion meshes
// either get a single swept reference per triangle, or one reference per
// time step pair when step subdivision is enabled.
func (b *bvhBuild) addReferenceTriangles(root, center *types.BoundBox, mesh *scene.Mesh, objectIndex int) {
	numTriangles := len(mesh.Triangles)
	for j := 0; j < numTriangles; j++ {
		if !mesh.UseMotionBlur() {
			bounds := types.EmptyBoundBox()
			mesh.GrowTriangleBounds(j, &bounds)
			verts := mesh.TriangleVerts(j)
			if bounds.Valid() && verts[0].IsFinite() && verts[1].IsFinite() && verts[2].IsFinite() {
				b.references = append(b.references, NewReference(bounds, j, objectIndex, PrimitiveTriangle))
				root.Grow(bounds)
				center.GrowPoint(bounds.Center2())
			}
		} else if b.params.NumMotionTriangleSteps == 0 || b.params.UseSpatialSplit {
			// Single swept reference covering all steps. Smallest memory
			// footprint, less optimal traversal.
			bounds := types.EmptyBoundBox()
			for step := 0; step < mesh.MotionSteps(); step++ {
				mesh.GrowTriangleBoundsStep(j, step, &bounds)
			}
			if bounds.Valid() {
				b.references = append(b.references, NewReference(bounds, j, objectIndex, PrimitiveMotionTriangle))
				root.Grow(bounds)
				center.GrowPoint(bounds.Center2())
			}
		} else {
			// One reference per time step pair, so neighboring samples do
			// not inflate each other's bounds.
			numBVHSteps := b.params.NumMotionTriangleSteps*2 + 1
			invNumBVHSteps := 1.0 / float32(numBVHSteps-1)

			prevVerts := mesh.TriangleVertsAtTime(j, 0.0)
			prevBounds := types.EmptyBoundBox()
			prevBounds.GrowPoint(prevVerts[0])
			prevBounds.GrowPoint(prevVerts[1])
			prevBounds.GrowPoint(prevVerts[2])

			for step := 1; step < numBVHSteps; step++ {
				currTime := float32(step) * invNumBVHSteps
				currVerts := mesh.TriangleVertsAtTime(j, currTime)
				currBounds := types.EmptyBoundBox()
				currBounds.GrowPoint(currVerts[0])
				currBounds.GrowPoint(currVerts[1])
				currBounds.GrowPoint(currVerts[2])

				bounds := types.Merge(prevBounds, currBounds)
				if bounds.Valid() {
					prevTime := float32(step-1) * invNumBVHSteps
					ref := NewReference(bounds, j, objectIndex, PrimitiveMotionTriangle)
					ref.TimeFrom = prevTime
					ref.TimeTo = currTime
					b.references = append(b.references, ref)
					root.Grow(bounds)
					center.GrowPoint(bounds.Center2())
				}
				prevBounds = currBounds
			}
		}
	}
}

// addReferenceCurves emits one reference per curve segment, with the segment
// index packed into the primitive type.
func (b *bvhBuild) addReferenceCurves(root, center *types.BoundBox, hair *scene.Hair, objectIndex int) {
	for j := range hair.Curves {
		numSegments := hair.Curves[j].NumSegments()
		for k := 0; k < numSegments; k++ {
			if !hair.UseMotionBlur() {
				bounds := types.EmptyBoundBox()
				hair.GrowSegmentBounds(j, k, &bounds)
				if bounds.Valid() {
					b.references = append(b.references,
						NewReference(bounds, j, objectIndex, PackSegment(PrimitiveCurve, k)))
					root.Grow(bounds)
					center.GrowPoint(bounds.Center2())
				}
			} else if b.params.NumMotionCurveSteps == 0 || b.params.UseSpatialSplit {
				bounds := types.EmptyBoundBox()
				for step := 0; step < hair.MotionSteps(); step++ {
					hair.GrowSegmentBoundsStep(j, k, step, &bounds)
				}
				if bounds.Valid() {
					b.references = append(b.references,
						NewReference(bounds, j, objectIndex, PackSegment(PrimitiveMotionCurve, k)))
					root.Grow(bounds)
					center.GrowPoint(bounds.Center2())
				}
			} else {
				numBVHSteps := b.params.NumMotionCurveSteps*2 + 1
				invNumBVHSteps := 1.0 / float32(numBVHSteps-1)

				v0, v1, r0, r1 := hair.SegmentKeysAtTime(j, k, 0.0)
				prevBounds := types.EmptyBoundBox()
				prevBounds.GrowPointBorder(v0, r0)
				prevBounds.GrowPointBorder(v1, r1)

				for step := 1; step < numBVHSteps; step++ {
					currTime := float32(step) * invNumBVHSteps
					v0, v1, r0, r1 = hair.SegmentKeysAtTime(j, k, currTime)
					currBounds := types.EmptyBoundBox()
					currBounds.GrowPointBorder(v0, r0)
					currBounds.GrowPointBorder(v1, r1)

					bounds := types.Merge(prevBounds, currBounds)
					if bounds.Valid() {
						prevTime := float32(step-1) * invNumBVHSteps
						ref := NewReference(bounds, j, objectIndex, PackSegment(PrimitiveMotionCurve, k))
						ref.TimeFrom = prevTime
						ref.TimeTo = currTime
						b.references = append(b.references, ref)
						root.Grow(bounds)
						center.GrowPoint(bounds.Center2())
					}
					prevBounds = currBounds
				}
			}
		}
	}
}

// addReferencePoints emits one reference per point.
func (b *bvhBuild) addReferencePoints(root, center *types.BoundBox, pointcloud *scene.PointCloud, objectIndex int) {
	numPoints := len(pointcloud.Points)
	for j := 0; j < numPoints; j++ {
		if !pointcloud.UseMotionBlur() {
			bounds := types.EmptyBoundBox()
			pointcloud.GrowPointBounds(j, &bounds)
			if bounds.Valid() {
				b.references = append(b.references, NewReference(bounds, j, objectIndex, PrimitivePoint))
				root.Grow(bounds)
				center.GrowPoint(bounds.Center2())
			}
		} else if b.params.NumMotionPointSteps == 0 || b.params.UseSpatialSplit {
			bounds := types.EmptyBoundBox()
			for step := 0; step < pointcloud.MotionSteps(); step++ {
				pointcloud.GrowPointBoundsStep(j, step, &bounds)
			}
			if bounds.Valid() {
				b.references = append(b.references, NewReference(bounds, j, objectIndex, PrimitiveMotionPoint))
				root.Grow(bounds)
				center.GrowPoint(bounds.Center2())
			}
		} else {
			numBVHSteps := b.params.NumMotionPointSteps*2 + 1
			invNumBVHSteps := 1.0 / float32(numBVHSteps-1)

			p, r := pointcloud.PointAtTime(j, 0.0)
			prevBounds := types.EmptyBoundBox()
			prevBounds.GrowPointBorder(p, r)

			for step := 1; step < numBVHSteps; step++ {
				currTime := float32(step) * invNumBVHSteps
				p, r = pointcloud.PointAtTime(j, currTime)
				currBounds := types.EmptyBoundBox()
				currBounds.GrowPointBorder(p, r)

				bounds := types.Merge(prevBounds, currBounds)
				if bounds.Valid() {
					prevTime := float32(step-1) * invNumBVHSteps
					ref := NewReference(bounds, j, objectIndex, PrimitiveMotionPoint)
					ref.TimeFrom = prevTime
					ref.TimeTo = currTime
					b.references = append(b.references, ref)
					root.Grow(bounds)
					center.GrowPoint(bounds.Center2())
				}
				prevBounds = currBounds
			}
		}
	}
}

func (b *bvhBuild) addReferenceGeometry(root, center *types.BoundBox, geom scene.Geometry, objectIndex int) {
	switch g := geom.(type) {
	case *scene.Mesh:
		b.addReferenceTriangles(root, center, g, objectIndex)
	case *scene.Hair:
		b.addReferenceCurves(root, center, g, objectIndex)
	case *scene.PointCloud:
		b.addReferencePoints(root, center, g, objectIndex)
	}
}

// addReferenceObject emits a single reference standing in for a whole
// object instance, marked by a primitive index of -1.
func (b *bvhBuild) addReferenceObject(root, center *types.BoundBox, ob *scene.Object, objectIndex int) {
	b.references = append(b.references, NewReference(ob.Bounds, -1, objectIndex, PrimitiveNone))
	root.Grow(ob.Bounds)
	center.GrowPoint(ob.Bounds.Center2())
}

// addReferences expands every object into references and returns the root
// range covering all of them.
func (b *bvhBuild) addReferences() Range {
	numAlloc := 0
	for _, ob := range b.objects {
		if b.params.TopLevel {
			if !ob.Bounds.Valid() {
				continue
			}
			if ob.Geometry.NeedBuildBVH() {
				numAlloc++
			} else {
				numAlloc += ob.Geometry.NumPrimitives()
			}
		} else {
			numAlloc += ob.Geometry.NumPrimitives()
		}
	}
	b.references = make([]Reference, 0, numAlloc)

	bounds := types.EmptyBoundBox()
	center := types.EmptyBoundBox()
	for i, ob := range b.objects {
		if b.params.TopLevel {
			if !ob.Bounds.Valid() {
				continue
			}
			if ob.Geometry.NeedBuildBVH() {
				b.addReferenceObject(&bounds, &center, ob, i)
			} else {
				b.addReferenceGeometry(&bounds, &center, ob.Geometry, i)
			}
		} else {
			b.addReferenceGeometry(&bounds, &center, ob.Geometry, i)
		}
	}

	// Degenerate scenes still get a usable root box.
	if !bounds.Valid() {
		bounds.GrowPoint(types.XYZ(0, 0, 0))
	}

	return NewRange(bounds, center, 0, len(b.references))
}

// rangeWithinMaxLeafSize reports whether every primitive kind in the range
// fits its per-kind leaf cap.
func (b *bvhBuild) rangeWithinMaxLeafSize(rng Range, refs []Reference) bool {
	if rng.Size > b.params.maxLeafSize() {
		return false
	}

	var numTriangles, numMotionTriangles int
	var numCurves, numMotionCurves int
	var numPoints, numMotionPoints int
	for i := 0; i < rng.Size; i++ {
		ref := &refs[rng.Start+i]
		switch {
		case ref.PrimType&PrimitiveCurve != 0:
			numCurves++
		case ref.PrimType&PrimitiveMotionCurve != 0:
			numMotionCurves++
		case ref.PrimType&PrimitiveTriangle != 0:
			numTriangles++
		case ref.PrimType&PrimitiveMotionTriangle != 0:
			numMotionTriangles++
		case ref.PrimType&PrimitivePoint != 0:
			numPoints++
		case ref.PrimType&PrimitiveMotionPoint != 0:
			numMotionPoints++
		}
	}

	return numTriangles <= b.params.MaxTriangleLeafSize &&
		numMotionTriangles <= b.params.MaxMotionTriangleLeafSize &&
		numCurves <= b.params.MaxCurveLeafSize &&
		numMotionCurves <= b.params.MaxMotionCurveLeafSize &&
		numPoints <= b.params.MaxPointLeafSize &&
		numMotionPoints <= b.params.MaxMotionPointLeafSize
}

// progressUpdate publishes build progress, throttled so the substatus sink
// is not hammered from the hot path. Caller holds buildMu.
func (b *bvhBuild) progressUpdate() {
	now := time.Now()
	if now.Sub(b.progressLastUpdate) < 250*time.Millisecond {
		return
	}
	b.progressLastUpdate = now

	percent := 0
	if b.progressTotal > 0 {
		percent = b.progressCount * 100 / b.progressTotal
	}
	duplicates := 0
	if b.progressOriginalTotal > 0 {
		duplicates = (b.progressTotal - b.progressOriginalTotal) * 100 / b.progressOriginalTotal
	}
	b.progress.SetSubstatus(fmt.Sprintf("Building BVH %d%%, duplicates %d%%", percent, duplicates))
}

// createObjectLeafNodes chains object-instance references, one per leaf,
// into a balanced subtree. The leaves point at consecutive packed slots
// beginning at start; the slot contents are written by the caller.
func (b *bvhBuild) createObjectLeafNodes(arena *nodeArena, refs []Reference, start, num int) *node {
	if num == 0 {
		return arena.newLeaf(types.EmptyBoundBox(), 0, 0, 0)
	}
	if num == 1 {
		ref := &refs[0]
		visibility := b.objects[ref.PrimObject].VisibilityForTracing()
		return arena.newLeaf(ref.Bounds, visibility, int32(start), int32(start+1))
	}

	mid := num / 2
	leaf0 := b.createObjectLeafNodes(arena, refs[:mid], start, mid)
	leaf1 := b.createObjectLeafNodes(arena, refs[mid:], start+mid, num-mid)
	return arena.newInner(types.Merge(leaf0.bounds, leaf1.bounds), leaf0, leaf1)
}

// createLeafNode turns a range into leaf nodes, one per primitive kind
// present, with object instances chained behind them. Primitive data lands
// in the packed arrays: at the range position for object splits, or in
// freshly claimed slots for spatial splits, whose duplication breaks the
// one-to-one range mapping.
func (b *bvhBuild) createLeafNode(arena *nodeArena, rng Range, refs []Reference) *node {
	var (
		kindRefs   [primitiveNumKinds][]Reference
		kindBounds [primitiveNumKinds]types.BoundBox
		visibility [primitiveNumKinds]uint32
		objectRefs []Reference
	)
	for i := range kindBounds {
		kindBounds[i] = types.EmptyBoundBox()
	}

	numNewPrims := 0
	for i := 0; i < rng.Size; i++ {
		ref := refs[rng.Start+i]
		if ref.PrimIndex != -1 {
			k := kindIndex(ref.PrimType)
			kindRefs[k] = append(kindRefs[k], ref)
			kindBounds[k].Grow(ref.Bounds)
			visibility[k] |= b.objects[ref.PrimObject].VisibilityForTracing()
			numNewPrims++
		} else {
			objectRefs = append(objectRefs, ref)
		}
	}

	// Stage leaf data locally first; slot positions in the shared arrays
	// are only known afterwards for spatial builds. Object references take
	// the slots behind the typed primitives.
	localType := make([]int32, rng.Size)
	localIndex := make([]int32, rng.Size)
	localObject := make([]int32, rng.Size)
	var localTime []types.Vec2
	if b.needPrimTime {
		localTime = make([]types.Vec2, rng.Size)
	}
	for j, ref := range objectRefs {
		localType[numNewPrims+j] = ref.PrimType
		localIndex[numNewPrims+j] = ref.PrimIndex
		localObject[numNewPrims+j] = ref.PrimObject
		if b.needPrimTime {
			localTime[numNewPrims+j] = types.XY(ref.TimeFrom, ref.TimeTo)
		}
	}

	var leaves []*node
	cursor := 0
	for k := 0; k < primitiveNumKinds; k++ {
		num := len(kindRefs[k])
		if num == 0 {
			continue
		}
		for j, ref := range kindRefs[k] {
			localType[cursor+j] = ref.PrimType
			localIndex[cursor+j] = ref.PrimIndex
			localObject[cursor+j] = ref.PrimObject
			if b.needPrimTime {
				localTime[cursor+j] = types.XY(ref.TimeFrom, ref.TimeTo)
			}
		}
		leaves = append(leaves, arena.newLeaf(kindBounds[k], visibility[k], int32(cursor), int32(cursor+num)))
		cursor += num
	}

	var startIndex int
	if b.params.UseSpatialSplit {
		// Claim slots and copy under the lock: the arrays may be grown by
		// concurrent leaf creation, which would otherwise move them under a
		// lock-free copy.
		b.spatialMu.Lock()
		startIndex = b.spatialFreeIndex
		b.spatialFreeIndex += rng.Size
		rangeEnd := startIndex + rng.Size
		if len(b.primType) < rangeEnd {
			b.primType = append(b.primType, make([]int32, rangeEnd-len(b.primType))...)
			b.primIndex = append(b.primIndex, make([]int32, rangeEnd-len(b.primIndex))...)
			b.primObject = append(b.primObject, make([]int32, rangeEnd-len(b.primObject))...)
			if b.needPrimTime {
				b.primTime = append(b.primTime, make([]types.Vec2, rangeEnd-len(b.primTime))...)
			}
		}
		copy(b.primType[startIndex:], localType)
		copy(b.primIndex[startIndex:], localIndex)
		copy(b.primObject[startIndex:], localObject)
		if b.needPrimTime {
			copy(b.primTime[startIndex:], localTime)
		}
		b.spatialMu.Unlock()
	} else {
		startIndex = rng.Start
		copy(b.primType[startIndex:], localType)
		copy(b.primIndex[startIndex:], localIndex)
		copy(b.primObject[startIndex:], localObject)
		if b.needPrimTime {
			copy(b.primTime[startIndex:], localTime)
		}
	}
	for _, leaf := range leaves {
		leaf.lo += int32(startIndex)
		leaf.hi += int32(startIndex)
	}

	if len(objectRefs) > 0 {
		leaves = append(leaves, b.createObjectLeafNodes(arena, objectRefs, startIndex+numNewPrims, len(objectRefs)))
	}
	if len(leaves) == 0 {
		return arena.newLeaf(types.EmptyBoundBox(), 0, 0, 0)
	}

	// Merge per-kind leaves pairwise into a small balanced subtree.
	for len(leaves) > 1 {
		merged := leaves[:0]
		for i := 0; i < len(leaves); i += 2 {
			if i+1 < len(leaves) {
				merged = append(merged, arena.newInner(
					types.Merge(leaves[i].bounds, leaves[i+1].bounds), leaves[i], leaves[i+1]))
			} else {
				merged = append(merged, leaves[i])
			}
		}
		leaves = merged
	}
	return leaves[0]
}

// forceTopLevelSplit keeps the root of a multi-object scene an inner node.
func (b *bvhBuild) forceTopLevelSplit(size, level int) bool {
	return b.params.TopLevel && level == 0 && size > 1
}

// buildBinnedNode is the recursion of the plain object-split build, carrying
// the binning evaluation computed when the range was created.
func (b *bvhBuild) buildBinnedNode(arena *nodeArena, binning objectBinning, level int) *node {
	if b.progress.IsCanceled() {
		return nil
	}

	size := binning.Size
	leafSAH := b.params.SAHPrimitiveCost * binning.leafSAH
	splitSAH := b.params.SAHNodeCost*binning.Bounds.HalfArea() + b.params.SAHPrimitiveCost*binning.splitSAH

	// The depth and size floors come before any split evaluation, so every
	// path through the recursion bottoms out in a leaf.
	if !b.forceTopLevelSplit(size, level) {
		if b.params.SmallEnoughForLeaf(size, level) ||
			(b.rangeWithinMaxLeafSize(binning.Range, b.references) && leafSAH < splitSAH) {
			return b.createLeafNode(arena, binning.Range, b.references)
		}
	}

	var unalignedBinning objectBinning
	var alignedSpace types.Transform
	doUnalignedSplit := false
	if b.params.UseUnalignedNodes && splitSAH > b.params.UnalignedSplitThreshold*leafSAH && size > 0 {
		alignedSpace = b.heuristic.computeAlignedSpace(&b.references[binning.Start])
		unalignedBinning = newObjectBinning(binning.Range, b.references, &b.heuristic, &alignedSpace)
		unalignedSplitSAH := b.params.SAHNodeCost*unalignedBinning.innerBounds.HalfArea() +
			b.params.SAHPrimitiveCost*unalignedBinning.splitSAH
		unalignedLeafSAH := b.params.SAHPrimitiveCost * unalignedBinning.leafSAH
		if !b.forceTopLevelSplit(size, level) &&
			unalignedLeafSAH < unalignedSplitSAH && unalignedSplitSAH < splitSAH &&
			b.rangeWithinMaxLeafSize(binning.Range, b.references) {
			return b.createLeafNode(arena, binning.Range, b.references)
		}
		doUnalignedSplit = unalignedSplitSAH < splitSAH
	}

	var left, right objectBinning
	if doUnalignedSplit {
		unalignedBinning.split(b.references, &left, &right)
	} else {
		binning.split(b.references, &left, &right)
	}

	bounds := binning.Bounds
	if doUnalignedSplit {
		bounds = b.heuristic.computeAlignedBoundbox(
			b.references[binning.Start:binning.End()], alignedSpace)
	}

	var inner *node
	if size < threadTaskSize {
		leftNode := b.buildBinnedNode(arena, left, level+1)
		rightNode := b.buildBinnedNode(arena, right, level+1)
		if leftNode == nil || rightNode == nil {
			return nil
		}
		inner = arena.newInner(bounds, leftNode, rightNode)
	} else {
		inner = arena.newInnerShell(bounds)
		b.pool.push(func() { b.threadBuildNode(inner, 0, left, level+1) })
		b.pool.push(func() { b.threadBuildNode(inner, 1, right, level+1) })
	}

	if doUnalignedSplit {
		inner.isUnaligned = true
		space := alignedSpace
		inner.alignedSpace = &space
	}
	return inner
}

func (b *bvhBuild) threadBuildNode(inner *node, child int, binning objectBinning, level int) {
	if b.progress.IsCanceled() {
		return
	}

	var arena nodeArena
	n := b.buildBinnedNode(&arena, binning, level)
	inner.children[child] = n

	if binning.Size < threadTaskSize {
		b.buildMu.Lock()
		b.progressCount += binning.Size
		b.progressUpdate()
		b.buildMu.Unlock()
	}
}

// buildSpatialNode is the recursion of the mixed object/spatial build. Each
// task owns its reference slice; the right child's references are copied out
// before recursing left, because spatial duplication grows the slice in
// place.
func (b *bvhBuild) buildSpatialNode(arena *nodeArena, rng Range, refs *[]Reference, level int, storage *spatialStorage) *node {
	if b.progress.IsCanceled() {
		return nil
	}

	if !b.forceTopLevelSplit(rng.Size, level) && b.params.SmallEnoughForLeaf(rng.Size, level) {
		b.buildMu.Lock()
		b.progressCount += rng.Size
		b.progressUpdate()
		b.buildMu.Unlock()
		return b.createLeafNode(arena, rng, *refs)
	}

	split := newMixedSplit(b, storage, rng, *refs, level, nil, nil)

	if !b.forceTopLevelSplit(rng.Size, level) && split.noSplit {
		b.buildMu.Lock()
		b.progressCount += rng.Size
		b.progressUpdate()
		b.buildMu.Unlock()
		return b.createLeafNode(arena, rng, *refs)
	}

	leafSAH := b.params.SAHPrimitiveCost * split.leafSAH
	splitSAH := b.params.SAHNodeCost * split.nodeSAH

	var unalignedSplit mixedSplit
	var alignedSpace types.Transform
	doUnalignedSplit := false
	if b.params.UseUnalignedNodes && splitSAH > b.params.UnalignedSplitThreshold*leafSAH && rng.Size > 0 {
		alignedSpace = b.heuristic.computeAlignedSpace(&(*refs)[rng.Start])
		unalignedSplit = newMixedSplit(b, storage, rng, *refs, level, &b.heuristic, &alignedSpace)
		unalignedSplitSAH := b.params.SAHNodeCost * unalignedSplit.nodeSAH
		if !b.forceTopLevelSplit(rng.Size, level) && unalignedSplit.noSplit &&
			unalignedSplitSAH < splitSAH {
			return b.createLeafNode(arena, rng, *refs)
		}
		doUnalignedSplit = unalignedSplitSAH < splitSAH
	}

	var left, right Range
	if doUnalignedSplit {
		unalignedSplit.split(b, storage, refs, &left, &right, rng)
	} else {
		split.split(b, storage, refs, &left, &right, rng)
	}

	b.buildMu.Lock()
	b.progressTotal += left.Size + right.Size - rng.Size
	b.buildMu.Unlock()

	bounds := rng.Bounds
	if doUnalignedSplit {
		bounds = b.heuristic.computeAlignedBoundbox((*refs)[rng.Start:rng.End()], alignedSpace)
	}

	var inner *node
	if rng.Size < threadTaskSize {
		// Copy out the right child before recursing left: left-side
		// duplication inserts into the slice and would shift the right
		// child's window.
		rightRefs := make([]Reference, right.Size)
		copy(rightRefs, (*refs)[right.Start:right.End()])
		right.Start = 0

		leftNode := b.buildSpatialNode(arena, left, refs, level+1, storage)
		rightNode := b.buildSpatialNode(arena, right, &rightRefs, level+1, storage)
		if leftNode == nil || rightNode == nil {
			return nil
		}
		inner = arena.newInner(bounds, leftNode, rightNode)
	} else {
		inner = arena.newInnerShell(bounds)

		leftRefs := make([]Reference, left.Size)
		copy(leftRefs, (*refs)[left.Start:left.End()])
		left.Start = 0
		rightRefs := make([]Reference, right.Size)
		copy(rightRefs, (*refs)[right.Start:right.End()])
		right.Start = 0

		b.pool.push(func() { b.threadBuildSpatialNode(inner, 0, left, leftRefs, level+1) })
		b.pool.push(func() { b.threadBuildSpatialNode(inner, 1, right, rightRefs, level+1) })
	}

	if doUnalignedSplit {
		inner.isUnaligned = true
		space := alignedSpace
		inner.alignedSpace = &space
	}
	return inner
}

func (b *bvhBuild) threadBuildSpatialNode(inner *node, child int, rng Range, refs []Reference, level int) {
	if b.progress.IsCanceled() {
		return
	}

	var arena nodeArena
	var storage spatialStorage
	n := b.buildSpatialNode(&arena, rng, &refs, level, &storage)
	inner.children[child] = n
}

// rotatePass performs one bottom-up pass of local tree rotations: for each
// inner node it tries swapping one grandchild with the opposite child and
// keeps the cheapest improvement.
func rotatePass(n *node, maxDepth int) {
	if n.isLeaf() || maxDepth < 0 {
		return
	}

	rotatePass(n.children[0], maxDepth-1)
	rotatePass(n.children[1], maxDepth-1)

	bounds0 := n.children[0].bounds
	bounds1 := n.children[1].bounds
	childArea := [2]float32{bounds0.HalfArea(), bounds1.HalfArea()}

	bestCost := float32(math32.MaxFloat32)
	bestChild, bestTarget, bestOther := -1, -1, -1

	for c := 0; c < 2; c++ {
		if n.children[c].isLeaf() {
			continue
		}
		child := n.children[c]
		other := bounds1
		if c == 1 {
			other = bounds0
		}

		target0 := child.children[0].bounds
		target1 := child.children[1].bounds

		cost0 := types.Merge(other, target1).HalfArea() - childArea[c]
		cost1 := types.Merge(target0, other).HalfArea() - childArea[c]

		if math32.Min(cost0, cost1) < bestCost {
			bestChild = c
			bestOther = 1 - c
			if cost0 < cost1 {
				bestCost = cost0
				bestTarget = 0
			} else {
				bestCost = cost1
				bestTarget = 1
			}
		}
	}

	if bestCost >= 0 {
		return
	}

	child := n.children[bestChild]
	n.children[bestOther], child.children[bestTarget] = child.children[bestTarget], n.children[bestOther]
	child.bounds = types.Merge(child.children[0].bounds, child.children[1].bounds)
}

// run builds the full tree and returns its root together with the packed
// primitive arrays' final size.
func (b *bvhBuild) run() (*node, error) {
	root := b.addReferences()
	if b.progress.IsCanceled() {
		return nil, ErrCanceled
	}

	b.numOriginalReferences = len(b.references)
	b.needPrimTime = b.params.UseMotionSteps()

	b.spatialMinOverlap = root.Bounds.SafeArea() * b.params.SpatialSplitAlpha
	b.spatialFreeIndex = 0

	b.progressStart = time.Now()
	b.progressLastUpdate = b.progressStart
	b.progressCount = 0
	b.progressTotal = len(b.references)
	b.progressOriginalTotal = b.progressTotal

	b.primType = make([]int32, len(b.references))
	b.primIndex = make([]int32, len(b.references))
	b.primObject = make([]int32, len(b.references))
	if b.needPrimTime {
		b.primTime = make([]types.Vec2, len(b.references))
	}

	b.pool = newTaskPool(0)
	defer b.pool.stop()

	var arena nodeArena
	var rootNode *node
	if len(b.references) == 0 {
		rootNode = arena.newLeaf(types.EmptyBoundBox(), 0, 0, 0)
	} else if b.params.UseSpatialSplit {
		var storage spatialStorage
		rootNode = b.buildSpatialNode(&arena, root, &b.references, 0, &storage)
	} else {
		binning := newObjectBinning(root, b.references, nil, nil)
		rootNode = b.buildBinnedNode(&arena, binning, 0)
	}
	b.pool.wait()

	if b.progress.IsCanceled() || rootNode == nil {
		return nil, ErrCanceled
	}

	// Threaded tasks attach children after their parents are created, so a
	// subtree built by a task may be missing entirely on cancellation. At
	// this point the tree is complete.
	if b.params.TreeRotationPasses > 0 {
		for i := 0; i < b.params.TreeRotationPasses; i++ {
			rotatePass(rootNode, MaxDepth)
		}
	}
	rootNode.updateVisibility()

	return rootNode, nil
}
