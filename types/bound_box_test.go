package types

import (
	"math"
	"testing"
)

func TestEmptyBoundBoxGrow(t *testing.T) {
	b := EmptyBoundBox()
	if b.Valid() {
		t.Fatal("expected empty box to be invalid")
	}

	b.GrowPoint(XYZ(1, 2, 3))
	if !b.Valid() {
		t.Fatal("expected box to become valid after growing")
	}
	if b.Min != b.Max {
		t.Fatalf("expected degenerate box around a single point; got %v-%v", b.Min, b.Max)
	}

	b.GrowPoint(XYZ(-1, 5, 0))
	expMin := XYZ(-1, 2, 0)
	expMax := XYZ(1, 5, 3)
	if b.Min != expMin || b.Max != expMax {
		t.Fatalf("expected %v-%v; got %v-%v", expMin, expMax, b.Min, b.Max)
	}
}

func TestGrowPointIgnoresNaN(t *testing.T) {
	nan := float32(math.NaN())

	b := BoundBoxFromPoint(XYZ(0, 0, 0))
	b.GrowPoint(XYZ(nan, 1, 1))

	if b.Min[0] != 0 || b.Max[0] != 0 {
		t.Fatalf("expected NaN component to be ignored; got %v-%v", b.Min, b.Max)
	}
	if b.Max[1] != 1 || b.Max[2] != 1 {
		t.Fatalf("expected finite components to grow; got %v", b.Max)
	}
}

func TestHalfArea(t *testing.T) {
	b := NewBoundBox(XYZ(0, 0, 0), XYZ(2, 3, 4))

	exp := float32(2*4 + 3*4 + 2*3)
	if got := b.HalfArea(); got != exp {
		t.Fatalf("expected half area %f; got %f", exp, got)
	}
	if got := b.Area(); got != exp*2 {
		t.Fatalf("expected area %f; got %f", exp*2, got)
	}
}

func TestSafeAreaInvertedBox(t *testing.T) {
	b := Intersection(
		NewBoundBox(XYZ(0, 0, 0), XYZ(1, 1, 1)),
		NewBoundBox(XYZ(2, 2, 2), XYZ(3, 3, 3)),
	)
	if b.Valid() {
		t.Fatal("expected disjoint intersection to be invalid")
	}
	if got := b.SafeArea(); got != 0 {
		t.Fatalf("expected zero safe area; got %f", got)
	}
	if got := b.SafeHalfArea(); got != 0 {
		t.Fatalf("expected zero safe half area; got %f", got)
	}
}

func TestMergeAndIntersect(t *testing.T) {
	a := NewBoundBox(XYZ(0, 0, 0), XYZ(2, 2, 2))
	b := NewBoundBox(XYZ(1, 1, 1), XYZ(3, 3, 3))

	m := Merge(a, b)
	if m.Min != XYZ(0, 0, 0) || m.Max != XYZ(3, 3, 3) {
		t.Fatalf("unexpected merge result %v-%v", m.Min, m.Max)
	}

	i := Intersection(a, b)
	if i.Min != XYZ(1, 1, 1) || i.Max != XYZ(2, 2, 2) {
		t.Fatalf("unexpected intersection result %v-%v", i.Min, i.Max)
	}
}

func TestCenters(t *testing.T) {
	b := NewBoundBox(XYZ(0, 2, 4), XYZ(2, 4, 6))
	if c := b.Center(); c != XYZ(1, 3, 5) {
		t.Fatalf("expected center (1, 3, 5); got %v", c)
	}
	if c2 := b.Center2(); c2 != XYZ(2, 6, 10) {
		t.Fatalf("expected center2 (2, 6, 10); got %v", c2)
	}
}

func TestTransformedBox(t *testing.T) {
	b := NewBoundBox(XYZ(0, 0, 0), XYZ(1, 1, 1))

	moved := b.Transformed(TransformTranslate(XYZ(10, 0, 0)))
	if moved.Min != XYZ(10, 0, 0) || moved.Max != XYZ(11, 1, 1) {
		t.Fatalf("unexpected translated box %v-%v", moved.Min, moved.Max)
	}

	scaled := b.Transformed(TransformScale(2, 3, 4))
	if scaled.Min != XYZ(0, 0, 0) || scaled.Max != XYZ(2, 3, 4) {
		t.Fatalf("unexpected scaled box %v-%v", scaled.Min, scaled.Max)
	}

	empty := EmptyBoundBox().Transformed(TransformTranslate(XYZ(1, 1, 1)))
	if empty.Valid() {
		t.Fatal("expected transforming an empty box to stay empty")
	}
}
