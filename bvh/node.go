package bvh

import "github.com/primatelabs/cycles/types"

type nodeKind uint8

const (
	nodeInner nodeKind = iota
	nodeLeaf
)

// node is one transient tree node, a tagged variant over the inner and leaf
// payloads. The tree only lives between build and pack.
type node struct {
	kind       nodeKind
	bounds     types.BoundBox
	visibility uint32

	// Inner payload.
	children [2]*node

	// isUnaligned marks subtrees whose bounds live in an orientation
	// frame; alignedSpace is that frame.
	isUnaligned  bool
	alignedSpace *types.Transform

	// Leaf payload: [lo, hi) into the packed primitive arrays.
	lo, hi int32
}

func (n *node) isLeaf() bool {
	return n.kind == nodeLeaf
}

func (n *node) numPrims() int32 {
	return n.hi - n.lo
}

// getAlignedSpace returns the node's orientation frame, identity when the
// node is world-axis aligned.
func (n *node) getAlignedSpace() types.Transform {
	if n.alignedSpace == nil {
		return types.TransformIdentity()
	}
	return *n.alignedSpace
}

// packsUnaligned reports whether the node packs in the 7-word unaligned
// layout, which it does when either child carries an orientation frame.
func (n *node) packsUnaligned() bool {
	if n.kind != nodeInner {
		return false
	}
	return n.children[0].isUnaligned || n.children[1].isUnaligned
}

// updateVisibility recomputes inner-node visibility bottom-up. Needed after
// threaded builds, where children are attached to pre-created parents.
func (n *node) updateVisibility() uint32 {
	if n.kind == nodeInner {
		n.visibility = n.children[0].updateVisibility() | n.children[1].updateVisibility()
	}
	return n.visibility
}

// subtreeCounts walks the subtree iteratively and returns the node, leaf and
// unaligned-inner counts the packer needs for its size pre-pass.
func (n *node) subtreeCounts() (nodes, leaves, unalignedInner int) {
	stack := make([]*node, 0, MaxDepth*2)
	stack = append(stack, n)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++
		if cur.isLeaf() {
			leaves++
			continue
		}
		if cur.packsUnaligned() {
			unalignedInner++
		}
		stack = append(stack, cur.children[0], cur.children[1])
	}
	return nodes, leaves, unalignedInner
}

// nodeArena hands out nodes from chunked storage so a build does not pay
// one heap allocation per node. Each build task owns its own arena; the
// resulting subtrees link freely across arenas.
type nodeArena struct {
	chunk []node
}

const nodeArenaChunkSize = 1024

func (a *nodeArena) alloc() *node {
	if len(a.chunk) == 0 {
		a.chunk = make([]node, nodeArenaChunkSize)
	}
	n := &a.chunk[0]
	a.chunk = a.chunk[1:]
	return n
}

// newLeaf allocates a leaf node covering packed primitive slots [lo, hi).
func (a *nodeArena) newLeaf(bounds types.BoundBox, visibility uint32, lo, hi int32) *node {
	n := a.alloc()
	n.kind = nodeLeaf
	n.bounds = bounds
	n.visibility = visibility
	n.lo = lo
	n.hi = hi
	return n
}

// newInner allocates an inner node over two finished children.
func (a *nodeArena) newInner(bounds types.BoundBox, c0, c1 *node) *node {
	n := a.alloc()
	n.kind = nodeInner
	n.bounds = bounds
	n.children[0] = c0
	n.children[1] = c1
	if c0 != nil && c1 != nil {
		n.visibility = c0.visibility | c1.visibility
	}
	return n
}

// newInnerShell allocates an inner node whose children will be attached by
// concurrently running build tasks.
func (a *nodeArena) newInnerShell(bounds types.BoundBox) *node {
	n := a.alloc()
	n.kind = nodeInner
	n.bounds = bounds
	return n
}
