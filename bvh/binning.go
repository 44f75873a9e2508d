package bvh

import (
	"github.com/chewxy/math32"

	"github.com/primatelabs/cycles/types"
)

// objectBinning evaluates an approximate SAH object split over a range by
// scattering references into equi-sized bins along all three axes at once.
// One pass over the references plus two sweeps over the bins replaces the
// exact sort-based evaluation, at O(n) instead of O(n log n).
type objectBinning struct {
	Range

	leafSAH  float32
	splitSAH float32
	dim      int
	pos      int

	numBins int
	scale   types.Vec3

	// Bounds the binning operates in. Equal to the range bounds for
	// world-axis evaluation, recomputed inside the frame for unaligned
	// evaluation.
	innerBounds     types.BoundBox
	innerCentBounds types.BoundBox

	heuristic    *unalignedHeuristic
	alignedSpace *types.Transform
}

// blocks rounds a primitive count up to SIMD blocks of four, the granularity
// the traversal kernel intersects at.
func blocks(n int) float32 {
	return float32((n + 3) >> 2)
}

func newObjectBinning(job Range, refs []Reference, heuristic *unalignedHeuristic, alignedSpace *types.Transform) objectBinning {
	b := objectBinning{
		Range:        job,
		splitSAH:     math32.MaxFloat32,
		heuristic:    heuristic,
		alignedSpace: alignedSpace,
	}

	if alignedSpace == nil {
		b.innerBounds = job.Bounds
		b.innerCentBounds = job.CentBounds
	} else {
		b.innerBounds, b.innerCentBounds = heuristic.computeAlignedRange(
			refs[job.Start:job.End()], *alignedSpace)
	}

	// Adaptive bin count; tiny ranges get few bins, large ranges cap out.
	b.numBins = int(4.0 + 0.05*float32(job.Size))
	if b.numBins > maxBins {
		b.numBins = maxBins
	}
	centSize := b.innerCentBounds.Size()
	for a := 0; a < 3; a++ {
		if centSize[a] != 0.0 {
			b.scale[a] = float32(b.numBins) / centSize[a]
		}
	}

	// Scatter references into per-axis bins.
	var binBounds [maxBins][3]types.BoundBox
	var binCount [maxBins][3]int
	for i := 0; i < b.numBins; i++ {
		for a := 0; a < 3; a++ {
			binBounds[i][a] = types.EmptyBoundBox()
		}
	}
	for i := job.Start; i < job.End(); i++ {
		bounds := b.primBounds(&refs[i])
		bin := b.binOfBox(bounds)
		for a := 0; a < 3; a++ {
			binCount[bin[a]][a]++
			binBounds[bin[a]][a].Grow(bounds)
		}
	}

	// Right-to-left sweep: suffix areas and block counts per axis.
	var rArea [maxBins][3]float32
	var rCount [maxBins][3]float32
	var count [3]int
	right := [3]types.BoundBox{types.EmptyBoundBox(), types.EmptyBoundBox(), types.EmptyBoundBox()}
	for i := b.numBins - 1; i > 0; i-- {
		for a := 0; a < 3; a++ {
			count[a] += binCount[i][a]
			rCount[i][a] = blocks(count[a])
			right[a].Grow(binBounds[i][a])
			rArea[i][a] = right[a].HalfArea()
		}
	}

	// Left-to-right sweep: combine with prefix areas into per-plane SAH.
	bestSAH := [3]float32{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32}
	bestPos := [3]int{-1, -1, -1}
	count = [3]int{}
	left := [3]types.BoundBox{types.EmptyBoundBox(), types.EmptyBoundBox(), types.EmptyBoundBox()}
	for i := 1; i < b.numBins; i++ {
		for a := 0; a < 3; a++ {
			count[a] += binCount[i-1][a]
			left[a].Grow(binBounds[i-1][a])
			sah := left[a].HalfArea()*blocks(count[a]) + rArea[i][a]*rCount[i][a]
			if sah < bestSAH[a] {
				bestSAH[a] = sah
				bestPos[a] = i
			}
		}
	}

	// An axis with no centroid extent cannot be split along.
	for a := 0; a < 3; a++ {
		if centSize[a] <= 0.0 {
			bestSAH[a] = math32.MaxFloat32
		}
	}

	// First axis wins ties, keeping the result deterministic.
	b.dim = 0
	for a := 1; a < 3; a++ {
		if bestSAH[a] < bestSAH[b.dim] {
			b.dim = a
		}
	}
	b.splitSAH = bestSAH[b.dim]
	b.pos = bestPos[b.dim]
	b.leafSAH = b.innerBounds.HalfArea() * blocks(job.Size)
	return b
}

func (b *objectBinning) primBounds(ref *Reference) types.BoundBox {
	if b.alignedSpace == nil {
		return ref.Bounds
	}
	return b.heuristic.computeAlignedPrimBoundbox(ref, *b.alignedSpace)
}

// binOfBox maps a box to its bin index along every axis. Centroids live in
// min+max space, so no halving is needed anywhere.
func (b *objectBinning) binOfBox(bounds types.BoundBox) [3]int {
	c := bounds.Center2()
	var bin [3]int
	for a := 0; a < 3; a++ {
		i := int((c[a] - b.innerCentBounds.Min[a])*b.scale[a] - 0.5)
		if i < 0 {
			i = 0
		} else if i > b.numBins-1 {
			i = b.numBins - 1
		}
		bin[a] = i
	}
	return bin
}

func (b *objectBinning) binOfCenter(c types.Vec3) int {
	return int((c[b.dim]-b.innerCentBounds.Min[b.dim])*b.scale[b.dim] - 0.5)
}

// split partitions the range in place around the chosen plane. When every
// centroid lands on one side it falls back to a median split, which always
// makes progress.
func (b *objectBinning) split(refs []Reference, leftOut, rightOut *objectBinning) {
	n := b.Size

	lBounds := types.EmptyBoundBox()
	rBounds := types.EmptyBoundBox()
	lCent := types.EmptyBoundBox()
	rCent := types.EmptyBoundBox()

	l := 0
	r := n - 1
	for l <= r {
		ref := refs[b.Start+l]
		innerCenter := b.primBounds(&ref).Center2()
		center := ref.Bounds.Center2()

		if b.binOfCenter(innerCenter) < b.pos {
			lBounds.Grow(ref.Bounds)
			lCent.GrowPoint(center)
			l++
		} else {
			rBounds.Grow(ref.Bounds)
			rCent.GrowPoint(center)
			refs[b.Start+l], refs[b.Start+r] = refs[b.Start+r], refs[b.Start+l]
			r--
		}
	}

	if l != 0 && n-1-r != 0 {
		*rightOut = newObjectBinning(NewRange(rBounds, rCent, b.Start+l, n-1-r), refs, nil, nil)
		*leftOut = newObjectBinning(NewRange(lBounds, lCent, b.Start, l), refs, nil, nil)
		return
	}

	// Median split. All centroids coincide, so the plane separated nothing.
	lBounds = types.EmptyBoundBox()
	rBounds = types.EmptyBoundBox()
	lCent = types.EmptyBoundBox()
	rCent = types.EmptyBoundBox()

	for i := 0; i < n/2; i++ {
		lBounds.Grow(refs[b.Start+i].Bounds)
		lCent.GrowPoint(refs[b.Start+i].Bounds.Center2())
	}
	for i := n / 2; i < n; i++ {
		rBounds.Grow(refs[b.Start+i].Bounds)
		rCent.GrowPoint(refs[b.Start+i].Bounds.Center2())
	}

	*rightOut = newObjectBinning(NewRange(rBounds, rCent, b.Start+n/2, n/2+n%2), refs, nil, nil)
	*leftOut = newObjectBinning(NewRange(lBounds, lCent, b.Start, n/2), refs, nil, nil)
}
