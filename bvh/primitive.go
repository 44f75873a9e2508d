package bvh

import "math/bits"

// Primitive kind bits carried by references and the packed PrimType array.
// Curve types additionally pack their segment index in the high bits.
const (
	PrimitiveNone           int32 = 0
	PrimitiveTriangle       int32 = 1 << 0
	PrimitiveMotionTriangle int32 = 1 << 1
	PrimitiveCurve          int32 = 1 << 2
	PrimitiveMotionCurve    int32 = 1 << 3
	PrimitivePoint          int32 = 1 << 4
	PrimitiveMotionPoint    int32 = 1 << 5

	PrimitiveAll = PrimitiveTriangle | PrimitiveMotionTriangle |
		PrimitiveCurve | PrimitiveMotionCurve |
		PrimitivePoint | PrimitiveMotionPoint

	primitiveNumKinds = 6

	primitiveSegmentShift = 16
)

// PackSegment merges a curve kind with its sub-segment index.
func PackSegment(primType int32, segment int) int32 {
	return primType | int32(segment)<<primitiveSegmentShift
}

// UnpackSegment recovers the sub-segment index of a packed curve type.
func UnpackSegment(primType int32) int {
	return int(primType >> primitiveSegmentShift)
}

// kindIndex maps a single primitive kind bit onto a dense 0..5 index used
// to group leaf contents by kind.
func kindIndex(primType int32) int {
	return bits.TrailingZeros32(uint32(primType & PrimitiveAll))
}
