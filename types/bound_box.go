package types

import "github.com/chewxy/math32"

// BoundBox is an axis-aligned 3D bounding box. A freshly constructed empty
// box uses the +Inf/-Inf sentinel so that every grow operation treats it as
// an identity element.
type BoundBox struct {
	Min Vec3
	Max Vec3
}

// EmptyBoundBox returns the canonical empty box.
func EmptyBoundBox() BoundBox {
	inf := math32.Inf(1)
	return BoundBox{
		Min: Vec3{inf, inf, inf},
		Max: Vec3{-inf, -inf, -inf},
	}
}

// NewBoundBox returns a box spanning the given extents.
func NewBoundBox(min, max Vec3) BoundBox {
	return BoundBox{Min: min, Max: max}
}

// BoundBoxFromPoint returns a degenerate box containing a single point.
func BoundBoxFromPoint(pt Vec3) BoundBox {
	return BoundBox{Min: pt, Max: pt}
}

// GrowPoint extends the box to contain a point. NaN components are ignored
// rather than corrupting the box.
func (b *BoundBox) GrowPoint(pt Vec3) {
	b.Min = MinVec3(b.Min, pt)
	b.Max = MaxVec3(b.Max, pt)
}

// GrowPointBorder extends the box to contain a sphere around a point.
func (b *BoundBox) GrowPointBorder(pt Vec3, border float32) {
	shift := XYZ(border, border, border)
	b.Min = MinVec3(b.Min, pt.Sub(shift))
	b.Max = MaxVec3(b.Max, pt.Add(shift))
}

// Grow extends the box to contain another box.
func (b *BoundBox) Grow(bbox BoundBox) {
	b.Min = MinVec3(b.Min, bbox.Min)
	b.Max = MaxVec3(b.Max, bbox.Max)
}

// Intersect shrinks the box to the overlap with another box. The result may
// be invalid; SafeArea treats that as zero.
func (b *BoundBox) Intersect(bbox BoundBox) {
	b.Min = MaxVec3(b.Min, bbox.Min)
	b.Max = MinVec3(b.Max, bbox.Max)
}

// Merge returns the union of two boxes.
func Merge(a, b BoundBox) BoundBox {
	return BoundBox{
		Min: MinVec3(a.Min, b.Min),
		Max: MaxVec3(a.Max, b.Max),
	}
}

// Intersection returns the overlap of two boxes.
func Intersection(a, b BoundBox) BoundBox {
	return BoundBox{
		Min: MaxVec3(a.Min, b.Min),
		Max: MinVec3(a.Max, b.Max),
	}
}

// HalfArea returns half the surface area of the box.
func (b BoundBox) HalfArea() float32 {
	d := b.Max.Sub(b.Min)
	return d[0]*d[2] + d[1]*d[2] + d[0]*d[1]
}

// Area returns the surface area of the box.
func (b BoundBox) Area() float32 {
	return b.HalfArea() * 2.0
}

// SafeArea returns the surface area, or zero for an inverted/empty box.
func (b BoundBox) SafeArea() float32 {
	if !(b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]) {
		return 0.0
	}
	return b.Area()
}

// SafeHalfArea returns half the surface area, or zero for an inverted box.
func (b BoundBox) SafeHalfArea() float32 {
	if !(b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]) {
		return 0.0
	}
	return b.HalfArea()
}

// Center returns the midpoint of the box.
func (b BoundBox) Center() Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Center2 returns min+max, twice the center. Binning works on this to skip
// the multiply.
func (b BoundBox) Center2() Vec3 {
	return b.Min.Add(b.Max)
}

// Size returns the box extent per axis.
func (b BoundBox) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// Valid reports whether the box has finite, non-inverted extents.
func (b BoundBox) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2] &&
		b.Min.IsFinite() && b.Max.IsFinite()
}

// Transformed returns the box containing all eight transformed corners.
// Invalid boxes pass through as empty, since transforming the sentinel
// corners would fabricate a valid box.
func (b BoundBox) Transformed(tfm Transform) BoundBox {
	result := EmptyBoundBox()
	if !b.Valid() {
		return result
	}
	for i := 0; i < 8; i++ {
		var p Vec3
		if i&1 != 0 {
			p[0] = b.Min[0]
		} else {
			p[0] = b.Max[0]
		}
		if i&2 != 0 {
			p[1] = b.Min[1]
		} else {
			p[1] = b.Max[1]
		}
		if i&4 != 0 {
			p[2] = b.Min[2]
		} else {
			p[2] = b.Max[2]
		}
		result.GrowPoint(tfm.Point(p))
	}
	return result
}
