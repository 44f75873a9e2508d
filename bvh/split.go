package bvh

import (
	"github.com/chewxy/math32"

	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

// spatialBin is one slab of the spatial split evaluation: the clipped bounds
// of everything overlapping it plus how many references start and end here.
type spatialBin struct {
	bounds types.BoundBox
	enter  int
	exit   int
}

// spatialStorage holds the scratch memory of one build task. Reusing it
// across split evaluations keeps the hot path free of allocations.
type spatialStorage struct {
	bins        [3][numSpatialBins]spatialBin
	rightBounds []types.BoundBox
	newRefs     []Reference
}

func (s *spatialStorage) ensureRightBounds(n int) {
	if cap(s.rightBounds) < n {
		s.rightBounds = make([]types.BoundBox, n)
	}
	s.rightBounds = s.rightBounds[:n]
}

// objectSplit is an exact sweep SAH split: sort along each axis, sweep a
// suffix-bounds scratch array right to left, then scan left to right for the
// cheapest plane.
type objectSplit struct {
	sah         float32
	dim         int
	numLeft     int
	leftBounds  types.BoundBox
	rightBounds types.BoundBox

	heuristic    *unalignedHeuristic
	alignedSpace *types.Transform
}

func (s *objectSplit) primBounds(ref *Reference) types.BoundBox {
	if s.alignedSpace == nil {
		return ref.Bounds
	}
	return s.heuristic.computeAlignedPrimBoundbox(ref, *s.alignedSpace)
}

func newObjectSplit(b *bvhBuild, storage *spatialStorage, rng Range, refs []Reference, nodeSAH float32, heuristic *unalignedHeuristic, alignedSpace *types.Transform) objectSplit {
	s := objectSplit{
		sah:          math32.MaxFloat32,
		leftBounds:   types.EmptyBoundBox(),
		rightBounds:  types.EmptyBoundBox(),
		heuristic:    heuristic,
		alignedSpace: alignedSpace,
	}

	minSAH := float32(math32.MaxFloat32)
	for dim := 0; dim < 3; dim++ {
		sortReferences(refs, rng.Start, rng.End(), referenceCompare{dim, heuristic, alignedSpace})

		storage.ensureRightBounds(rng.Size)
		window := refs[rng.Start:rng.End()]

		// Suffix bounds, right to left.
		right := types.EmptyBoundBox()
		for i := rng.Size - 1; i > 0; i-- {
			right.Grow(s.primBounds(&window[i]))
			storage.rightBounds[i-1] = right
		}

		// Prefix sweep, left to right, tracking the cheapest plane.
		left := types.EmptyBoundBox()
		for i := 1; i < rng.Size; i++ {
			left.Grow(s.primBounds(&window[i-1]))
			right = storage.rightBounds[i-1]

			sah := nodeSAH +
				left.SafeArea()*b.params.PrimitiveCost(i) +
				right.SafeArea()*b.params.PrimitiveCost(rng.Size-i)
			if sah < minSAH {
				minSAH = sah
				s.sah = sah
				s.dim = dim
				s.numLeft = i
				s.leftBounds = left
				s.rightBounds = right
			}
		}
	}
	return s
}

// split re-sorts along the winning axis and cuts the range at numLeft. With
// an orientation frame the stored bounds are frame-space, so world-space
// child bounds are recomputed from the references.
func (s *objectSplit) split(refs []Reference, left, right *Range, rng Range) {
	sortReferences(refs, rng.Start, rng.End(), referenceCompare{s.dim, s.heuristic, s.alignedSpace})

	numRight := rng.Size - s.numLeft
	effLeft := s.leftBounds
	effRight := s.rightBounds
	if s.alignedSpace != nil {
		effLeft = types.EmptyBoundBox()
		effRight = types.EmptyBoundBox()
		for i := 0; i < s.numLeft; i++ {
			effLeft.Grow(refs[rng.Start+i].Bounds)
		}
		for i := 0; i < numRight; i++ {
			effRight.Grow(refs[rng.Start+s.numLeft+i].Bounds)
		}
	}

	*left = NewRange(effLeft, types.EmptyBoundBox(), rng.Start, s.numLeft)
	*right = NewRange(effRight, types.EmptyBoundBox(), left.End(), numRight)
}

// spatialSplit bins references along fixed planes, clipping each reference
// against every plane it straddles. Unlike the object split, both children
// of the winning plane can reference the same primitive.
type spatialSplit struct {
	sah float32
	dim int
	pos float32

	heuristic    *unalignedHeuristic
	alignedSpace *types.Transform
}

func (s *spatialSplit) primBounds(ref *Reference) types.BoundBox {
	if s.alignedSpace == nil {
		return ref.Bounds
	}
	return s.heuristic.computeAlignedPrimBoundbox(ref, *s.alignedSpace)
}

func (s *spatialSplit) unalignedPoint(p types.Vec3) types.Vec3 {
	if s.alignedSpace == nil {
		return p
	}
	return s.alignedSpace.Point(p)
}

func newSpatialSplit(b *bvhBuild, storage *spatialStorage, rng Range, refs []Reference, nodeSAH float32, heuristic *unalignedHeuristic, alignedSpace *types.Transform) spatialSplit {
	s := spatialSplit{
		sah:          math32.MaxFloat32,
		heuristic:    heuristic,
		alignedSpace: alignedSpace,
	}

	rangeBounds := rng.Bounds
	if alignedSpace != nil {
		rangeBounds = heuristic.computeAlignedBoundbox(refs[rng.Start:rng.End()], *alignedSpace)
	}

	origin := rangeBounds.Min
	binSize := rangeBounds.Max.Sub(origin).Mul(1.0 / float32(numSpatialBins))
	var invBinSize types.Vec3
	for a := 0; a < 3; a++ {
		if binSize[a] != 0.0 {
			invBinSize[a] = 1.0 / binSize[a]
		}
	}

	for dim := 0; dim < 3; dim++ {
		for i := 0; i < numSpatialBins; i++ {
			storage.bins[dim][i] = spatialBin{bounds: types.EmptyBoundBox()}
		}
	}

	// Chop each reference into the bins it overlaps.
	for refIdx := rng.Start; refIdx < rng.End(); refIdx++ {
		ref := &refs[refIdx]
		primBounds := s.primBounds(ref)

		var firstBin, lastBin [3]int
		for a := 0; a < 3; a++ {
			firstBin[a] = clampInt(int((primBounds.Min[a]-origin[a])*invBinSize[a]), 0, numSpatialBins-1)
			lastBin[a] = clampInt(int((primBounds.Max[a]-origin[a])*invBinSize[a]), firstBin[a], numSpatialBins-1)
		}

		for dim := 0; dim < 3; dim++ {
			currRef := *ref
			currRef.Bounds = primBounds

			for i := firstBin[dim]; i < lastBin[dim]; i++ {
				var leftRef, rightRef Reference
				s.splitReference(b, &leftRef, &rightRef, &currRef, dim, origin[dim]+binSize[dim]*float32(i+1))
				storage.bins[dim][i].bounds.Grow(leftRef.Bounds)
				currRef = rightRef
			}

			storage.bins[dim][lastBin[dim]].bounds.Grow(currRef.Bounds)
			storage.bins[dim][firstBin[dim]].enter++
			storage.bins[dim][lastBin[dim]].exit++
		}
	}

	// Select the cheapest plane across all axes.
	storage.ensureRightBounds(numSpatialBins)
	for dim := 0; dim < 3; dim++ {
		right := types.EmptyBoundBox()
		for i := numSpatialBins - 1; i > 0; i-- {
			right.Grow(storage.bins[dim][i].bounds)
			storage.rightBounds[i-1] = right
		}

		left := types.EmptyBoundBox()
		leftNum := 0
		rightNum := rng.Size
		for i := 1; i < numSpatialBins; i++ {
			left.Grow(storage.bins[dim][i-1].bounds)
			leftNum += storage.bins[dim][i-1].enter
			rightNum -= storage.bins[dim][i-1].exit

			sah := nodeSAH +
				left.SafeArea()*b.params.PrimitiveCost(leftNum) +
				storage.rightBounds[i-1].SafeArea()*b.params.PrimitiveCost(rightNum)
			if sah < s.sah {
				s.sah = sah
				s.dim = dim
				s.pos = origin[dim] + binSize[dim]*float32(i)
			}
		}
	}
	return s
}

// split partitions the range around the plane. The window is kept as three
// regions, left / straddling / right, and every straddler is resolved to
// whichever of unsplit-left, unsplit-right or duplicate is cheapest.
// Duplicates are batched and inserted in one go.
func (s *spatialSplit) split(b *bvhBuild, storage *spatialStorage, refs *[]Reference, left, right *Range, rng Range) {
	leftStart := rng.Start
	leftEnd := leftStart
	rightStart := rng.End()
	rightEnd := rng.End()
	leftBounds := types.EmptyBoundBox()
	rightBounds := types.EmptyBoundBox()

	r := *refs
	for i := leftEnd; i < rightStart; i++ {
		primBounds := s.primBounds(&r[i])
		if primBounds.Max[s.dim] <= s.pos {
			leftBounds.Grow(primBounds)
			r[i], r[leftEnd] = r[leftEnd], r[i]
			leftEnd++
		} else if primBounds.Min[s.dim] >= s.pos {
			rightBounds.Grow(primBounds)
			rightStart--
			r[i], r[rightStart] = r[rightStart], r[i]
			i--
		}
	}

	storage.newRefs = storage.newRefs[:0]
	for leftEnd < rightStart {
		currRef := r[leftEnd]
		currRef.Bounds = s.primBounds(&r[leftEnd])

		var lref, rref Reference
		s.splitReference(b, &lref, &rref, &currRef, s.dim, s.pos)

		lub := leftBounds
		rub := rightBounds
		ldb := leftBounds
		rdb := rightBounds
		lub.Grow(currRef.Bounds)
		rub.Grow(currRef.Bounds)
		ldb.Grow(lref.Bounds)
		rdb.Grow(rref.Bounds)

		lac := b.params.PrimitiveCost(leftEnd - leftStart)
		rac := b.params.PrimitiveCost(rightEnd - rightStart)
		lbc := b.params.PrimitiveCost(leftEnd - leftStart + 1)
		rbc := b.params.PrimitiveCost(rightEnd - rightStart + 1)

		unsplitLeftSAH := lub.SafeArea()*lbc + rightBounds.SafeArea()*rac
		unsplitRightSAH := leftBounds.SafeArea()*lac + rub.SafeArea()*rbc
		duplicateSAH := ldb.SafeArea()*lbc + rdb.SafeArea()*rbc
		minSAH := math32.Min(math32.Min(unsplitLeftSAH, unsplitRightSAH), duplicateSAH)

		switch {
		case minSAH == unsplitLeftSAH:
			leftBounds = lub
			leftEnd++
		case minSAH == unsplitRightSAH:
			rightBounds = rub
			rightStart--
			r[leftEnd], r[rightStart] = r[rightStart], r[leftEnd]
		default:
			leftBounds = ldb
			rightBounds = rdb
			r[leftEnd] = lref
			leftEnd++
			storage.newRefs = append(storage.newRefs, rref)
			rightEnd++
		}
	}

	if len(storage.newRefs) > 0 {
		at := rightEnd - len(storage.newRefs)
		r = append(r, make([]Reference, len(storage.newRefs))...)
		copy(r[at+len(storage.newRefs):], r[at:])
		copy(r[at:], storage.newRefs)
		*refs = r
	}

	// Frame-space classification; recompute world-space child bounds.
	if s.alignedSpace != nil {
		leftBounds = types.EmptyBoundBox()
		rightBounds = types.EmptyBoundBox()
		for i := leftStart; i < leftEnd; i++ {
			leftBounds.Grow(r[i].Bounds)
		}
		for i := rightStart; i < rightEnd; i++ {
			rightBounds.Grow(r[i].Bounds)
		}
	}

	*left = NewRange(leftBounds, types.EmptyBoundBox(), leftStart, leftEnd-leftStart)
	*right = NewRange(rightBounds, types.EmptyBoundBox(), rightStart, rightEnd-rightStart)
}

// splitTrianglePrimitive clips one triangle against an axis plane, growing
// the side boxes with every vertex and edge crossing.
func (s *spatialSplit) splitTrianglePrimitive(mesh *scene.Mesh, tfm *types.Transform, primIndex, dim int, pos float32, leftBounds, rightBounds *types.BoundBox) {
	verts := mesh.TriangleVerts(primIndex)
	v1 := verts[2]
	if tfm != nil {
		v1 = tfm.Point(v1)
	}
	v1 = s.unalignedPoint(v1)

	for i := 0; i < 3; i++ {
		v0 := v1
		v1 = verts[i]
		if tfm != nil {
			v1 = tfm.Point(v1)
		}
		v1 = s.unalignedPoint(v1)
		v0p := v0[dim]
		v1p := v1[dim]

		if v0p <= pos {
			leftBounds.GrowPoint(v0)
		}
		if v0p >= pos {
			rightBounds.GrowPoint(v0)
		}

		// Edge crosses the plane, the crossing point lands in both boxes.
		if (v0p < pos && v1p > pos) || (v0p > pos && v1p < pos) {
			t := types.MixVec3(v0, v1, types.Clamp((pos-v0p)/(v1p-v0p), 0.0, 1.0))
			leftBounds.GrowPoint(t)
			rightBounds.GrowPoint(t)
		}
	}
}

// splitCurvePrimitive clips one curve segment against an axis plane.
// NOTE - Currently ignores curve width and needs to be fixed.
func (s *spatialSplit) splitCurvePrimitive(hair *scene.Hair, tfm *types.Transform, primIndex, segmentIndex, dim int, pos float32, leftBounds, rightBounds *types.BoundBox) {
	v0, v1, _, _ := hair.SegmentKeys(primIndex, segmentIndex)
	if tfm != nil {
		v0 = tfm.Point(v0)
		v1 = tfm.Point(v1)
	}
	v0 = s.unalignedPoint(v0)
	v1 = s.unalignedPoint(v1)

	v0p := v0[dim]
	v1p := v1[dim]

	if v0p <= pos {
		leftBounds.GrowPoint(v0)
	}
	if v0p >= pos {
		rightBounds.GrowPoint(v0)
	}
	if v1p <= pos {
		leftBounds.GrowPoint(v1)
	}
	if v1p >= pos {
		rightBounds.GrowPoint(v1)
	}

	if (v0p < pos && v1p > pos) || (v0p > pos && v1p < pos) {
		t := types.MixVec3(v0, v1, types.Clamp((pos-v0p)/(v1p-v0p), 0.0, 1.0))
		leftBounds.GrowPoint(t)
		rightBounds.GrowPoint(t)
	}
}

// splitPointPrimitive classifies one point by its center. Points are
// assumed small enough that real clipping would not pay off.
func (s *spatialSplit) splitPointPrimitive(pointcloud *scene.PointCloud, tfm *types.Transform, primIndex, dim int, pos float32, leftBounds, rightBounds *types.BoundBox) {
	point, radius := pointcloud.Point(primIndex)
	if tfm != nil {
		point = tfm.Point(point)
	}
	point = s.unalignedPoint(point)

	if point[dim] <= pos {
		leftBounds.GrowPointBorder(point, radius)
	}
	if point[dim] >= pos {
		rightBounds.GrowPointBorder(point, radius)
	}
}

// splitObjectReference clips every primitive of an instanced object, in
// world space, against the plane.
func (s *spatialSplit) splitObjectReference(object *scene.Object, dim int, pos float32, leftBounds, rightBounds *types.BoundBox) {
	switch geom := object.Geometry.(type) {
	case *scene.Mesh:
		for triIdx := 0; triIdx < len(geom.Triangles); triIdx++ {
			s.splitTrianglePrimitive(geom, &object.Transform, triIdx, dim, pos, leftBounds, rightBounds)
		}
	case *scene.Hair:
		for curveIdx := range geom.Curves {
			for segIdx := 0; segIdx < geom.Curves[curveIdx].NumSegments(); segIdx++ {
				s.splitCurvePrimitive(geom, &object.Transform, curveIdx, segIdx, dim, pos, leftBounds, rightBounds)
			}
		}
	case *scene.PointCloud:
		for pointIdx := 0; pointIdx < len(geom.Points); pointIdx++ {
			s.splitPointPrimitive(geom, &object.Transform, pointIdx, dim, pos, leftBounds, rightBounds)
		}
	}
}

// splitReference clips ref against the plane at pos along dim, producing the
// left and right halves. Both halves keep the primitive identity; only the
// bounds narrow.
func (s *spatialSplit) splitReference(b *bvhBuild, left, right *Reference, ref *Reference, dim int, pos float32) {
	leftBounds := types.EmptyBoundBox()
	rightBounds := types.EmptyBoundBox()

	obj := b.objects[ref.PrimObject]
	switch {
	case ref.PrimType&(PrimitiveTriangle|PrimitiveMotionTriangle) != 0:
		mesh := obj.Geometry.(*scene.Mesh)
		s.splitTrianglePrimitive(mesh, nil, int(ref.PrimIndex), dim, pos, &leftBounds, &rightBounds)
	case ref.PrimType&(PrimitiveCurve|PrimitiveMotionCurve) != 0:
		hair := obj.Geometry.(*scene.Hair)
		s.splitCurvePrimitive(hair, nil, int(ref.PrimIndex), UnpackSegment(ref.PrimType), dim, pos, &leftBounds, &rightBounds)
	case ref.PrimType&(PrimitivePoint|PrimitiveMotionPoint) != 0:
		pointcloud := obj.Geometry.(*scene.PointCloud)
		s.splitPointPrimitive(pointcloud, nil, int(ref.PrimIndex), dim, pos, &leftBounds, &rightBounds)
	default:
		s.splitObjectReference(obj, dim, pos, &leftBounds, &rightBounds)
	}

	leftBounds.Max[dim] = pos
	rightBounds.Min[dim] = pos
	leftBounds.Intersect(ref.Bounds)
	rightBounds.Intersect(ref.Bounds)

	*left = *ref
	left.Bounds = leftBounds
	*right = *ref
	right.Bounds = rightBounds
}

// mixedSplit evaluates the leaf, object and spatial alternatives for one
// range and remembers which was cheapest.
type mixedSplit struct {
	object  objectSplit
	spatial spatialSplit

	leafSAH float32
	nodeSAH float32
	minSAH  float32

	noSplit bool

	bounds types.BoundBox
}

func newMixedSplit(b *bvhBuild, storage *spatialStorage, rng Range, refs []Reference, level int, heuristic *unalignedHeuristic, alignedSpace *types.Transform) mixedSplit {
	var s mixedSplit
	if alignedSpace == nil {
		s.bounds = rng.Bounds
	} else {
		s.bounds = heuristic.computeAlignedBoundbox(refs[rng.Start:rng.End()], *alignedSpace)
	}

	area := s.bounds.SafeArea()
	s.leafSAH = area * b.params.PrimitiveCost(rng.Size)
	s.nodeSAH = area * b.params.NodeCost(2)

	s.object = newObjectSplit(b, storage, rng, refs, s.nodeSAH, heuristic, alignedSpace)

	s.spatial.sah = math32.MaxFloat32
	if b.params.UseSpatialSplit && level < MaxSpatialDepth {
		overlap := types.Intersection(s.object.leftBounds, s.object.rightBounds)
		if overlap.SafeArea() >= b.spatialMinOverlap {
			s.spatial = newSpatialSplit(b, storage, rng, refs, s.nodeSAH, heuristic, alignedSpace)
		}
	}

	s.minSAH = math32.Min(math32.Min(s.leafSAH, s.object.sah), s.spatial.sah)
	s.noSplit = s.minSAH == s.leafSAH && b.rangeWithinMaxLeafSize(rng, refs)
	return s
}

func (s *mixedSplit) split(b *bvhBuild, storage *spatialStorage, refs *[]Reference, left, right *Range, rng Range) {
	if b.params.UseSpatialSplit && s.minSAH == s.spatial.sah {
		s.spatial.split(b, storage, refs, left, right, rng)
	}
	if left.Size == 0 || right.Size == 0 {
		s.object.split(*refs, left, right, rng)
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
