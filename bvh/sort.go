package bvh

import (
	"sync"

	"github.com/primatelabs/cycles/types"
)

// sortTaskSize is the partition size below which the parallel sort stops
// forking and finishes serially.
const sortTaskSize = 4096

// referenceCompare orders references along one axis by box center, with the
// primitive identity as tie breaker so equal centers sort deterministically.
// A non-nil aligned space compares centers inside that frame instead of
// world space.
type referenceCompare struct {
	dim          int
	heuristic    *unalignedHeuristic
	alignedSpace *types.Transform
}

func (c *referenceCompare) primBounds(ref *Reference) types.BoundBox {
	if c.alignedSpace == nil {
		return ref.Bounds
	}
	return c.heuristic.computeAlignedPrimBoundbox(ref, *c.alignedSpace)
}

func (c *referenceCompare) less(a, b *Reference) bool {
	ab := c.primBounds(a)
	bb := c.primBounds(b)
	ca := ab.Min[c.dim] + ab.Max[c.dim]
	cb := bb.Min[c.dim] + bb.Max[c.dim]
	if ca < cb {
		return true
	}
	if ca > cb {
		return false
	}
	if a.PrimObject != b.PrimObject {
		return a.PrimObject < b.PrimObject
	}
	if a.PrimIndex != b.PrimIndex {
		return a.PrimIndex < b.PrimIndex
	}
	return a.PrimType < b.PrimType
}

// sortReferences sorts refs[start:end) with the given comparator, forking
// large partitions onto fresh goroutines. The quicksort loops on one side
// and forks or recurses into the other, so stack depth stays logarithmic in
// practice.
func sortReferences(refs []Reference, start, end int, cmp referenceCompare) {
	var wg sync.WaitGroup
	quickSortReferences(refs, start, end-1, &cmp, &wg)
	wg.Wait()
}

func insertionSortReferences(refs []Reference, lo, hi int, cmp *referenceCompare) {
	for i := lo + 1; i <= hi; i++ {
		v := refs[i]
		j := i - 1
		for j >= lo && cmp.less(&v, &refs[j]) {
			refs[j+1] = refs[j]
			j--
		}
		refs[j+1] = v
	}
}

// medianOfThree moves the median of refs[lo], refs[mid], refs[hi] into
// refs[hi-1] and returns it as the pivot, leaving lo and hi as sentinels.
func medianOfThree(refs []Reference, lo, hi int, cmp *referenceCompare) Reference {
	mid := lo + (hi-lo)/2
	if cmp.less(&refs[mid], &refs[lo]) {
		refs[lo], refs[mid] = refs[mid], refs[lo]
	}
	if cmp.less(&refs[hi], &refs[lo]) {
		refs[lo], refs[hi] = refs[hi], refs[lo]
	}
	if cmp.less(&refs[hi], &refs[mid]) {
		refs[mid], refs[hi] = refs[hi], refs[mid]
	}
	refs[mid], refs[hi-1] = refs[hi-1], refs[mid]
	return refs[hi-1]
}

func quickSortReferences(refs []Reference, lo, hi int, cmp *referenceCompare, wg *sync.WaitGroup) {
	for hi-lo >= 16 {
		pivot := medianOfThree(refs, lo, hi, cmp)
		i, j := lo, hi-1
		for {
			for {
				i++
				if !cmp.less(&refs[i], &pivot) {
					break
				}
			}
			for {
				j--
				if !cmp.less(&pivot, &refs[j]) {
					break
				}
			}
			if i >= j {
				break
			}
			refs[i], refs[j] = refs[j], refs[i]
		}
		refs[i], refs[hi-1] = refs[hi-1], refs[i]

		// Fork the right partition when it is big enough to be worth a
		// goroutine, otherwise sort it after the left.
		if hi-(i+1) >= sortTaskSize {
			wg.Add(1)
			go func(l, h int) {
				defer wg.Done()
				quickSortReferences(refs, l, h, cmp, wg)
			}(i+1, hi)
			hi = i - 1
		} else {
			quickSortReferences(refs, lo, i-1, cmp, wg)
			lo = i + 1
		}
	}
	insertionSortReferences(refs, lo, hi, cmp)
}
