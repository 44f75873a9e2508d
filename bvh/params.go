package bvh

// Hard limits of the builder. MaxDepth bounds the recursion (a leaf is
// forced beyond it), MaxSpatialDepth bounds how deep spatial splits are
// still attempted, and the bin counts size the split evaluators.
const (
	MaxDepth        = 64
	MaxSpatialDepth = 48

	numSpatialBins = 32
	maxBins        = 32

	// Subtrees smaller than this are built inline instead of being handed
	// to the task pool; scheduling overhead dominates below it.
	threadTaskSize = 4096
)

// Params fixes the cost model and structural options for one build.
type Params struct {
	// SAH cost constants for traversing a node and intersecting one
	// primitive.
	SAHNodeCost      float32
	SAHPrimitiveCost float32

	// Per-kind leaf size caps.
	MaxTriangleLeafSize       int
	MaxMotionTriangleLeafSize int
	MaxCurveLeafSize          int
	MaxMotionCurveLeafSize    int
	MaxPointLeafSize          int
	MaxMotionPointLeafSize    int

	// MinLeafSize stops subdivision outright for tiny ranges.
	MinLeafSize int

	// Spatial ("SBVH") splitting. SpatialSplitAlpha scales the root area
	// into the minimum child overlap that triggers spatial evaluation.
	UseSpatialSplit   bool
	SpatialSplitAlpha float32

	// Orientation-fitted nodes for elongated curve segments.
	// UnalignedSplitThreshold gates how bad an aligned split must be,
	// relative to its leaf cost, before the unaligned alternative is
	// evaluated.
	UseUnalignedNodes       bool
	UnalignedSplitThreshold float32

	// TopLevel builds partition object instances instead of primitives and
	// merge their bottom-level structures when packing.
	TopLevel bool

	// Motion step counts; non-zero requests time-subdivided references and
	// the per-primitive time range array.
	NumMotionTriangleSteps int
	NumMotionCurveSteps    int
	NumMotionPointSteps    int

	// TreeRotationPasses applies that many SAH-driven local rotation
	// passes to the finished topology.
	TreeRotationPasses int
}

// DefaultParams mirrors the renderer's production configuration.
func DefaultParams() Params {
	return Params{
		SAHNodeCost:      1.0,
		SAHPrimitiveCost: 0.8,

		MaxTriangleLeafSize:       8,
		MaxMotionTriangleLeafSize: 8,
		MaxCurveLeafSize:          1,
		MaxMotionCurveLeafSize:    4,
		MaxPointLeafSize:          8,
		MaxMotionPointLeafSize:    8,

		MinLeafSize: 1,

		UseSpatialSplit:   false,
		SpatialSplitAlpha: 1e-5,

		UseUnalignedNodes:       false,
		UnalignedSplitThreshold: 0.7,

		TreeRotationPasses: 0,
	}
}

// PrimitiveCost returns the SAH cost of intersecting n primitives.
func (p *Params) PrimitiveCost(n int) float32 {
	return float32(n) * p.SAHPrimitiveCost
}

// NodeCost returns the SAH cost of traversing n nodes.
func (p *Params) NodeCost(n int) float32 {
	return float32(n) * p.SAHNodeCost
}

// SmallEnoughForLeaf reports whether subdivision must stop regardless of
// cost, either because the range is trivial or the depth cap was hit.
func (p *Params) SmallEnoughForLeaf(size, level int) bool {
	return size <= p.MinLeafSize || level >= MaxDepth
}

// UseMotionSteps reports whether any motion step subdivision is requested,
// which in turn requires tracking per-primitive time ranges.
func (p *Params) UseMotionSteps() bool {
	return p.NumMotionTriangleSteps > 0 || p.NumMotionCurveSteps > 0 || p.NumMotionPointSteps > 0
}

// maxLeafSize returns the loosest per-kind cap; a range above it can never
// become a leaf.
func (p *Params) maxLeafSize() int {
	m := p.MaxTriangleLeafSize
	for _, v := range []int{
		p.MaxMotionTriangleLeafSize,
		p.MaxCurveLeafSize,
		p.MaxMotionCurveLeafSize,
		p.MaxPointLeafSize,
		p.MaxMotionPointLeafSize,
	} {
		if v > m {
			m = v
		}
	}
	return m
}
