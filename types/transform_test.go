package types

import (
	"testing"

	"github.com/chewxy/math32"
)

func vecNear(a, b Vec3, eps float32) bool {
	return math32.Abs(a[0]-b[0]) <= eps &&
		math32.Abs(a[1]-b[1]) <= eps &&
		math32.Abs(a[2]-b[2]) <= eps
}

func TestTransformPointAndDirection(t *testing.T) {
	tfm := TransformTranslate(XYZ(1, 2, 3))

	if p := tfm.Point(XYZ(0, 0, 0)); p != XYZ(1, 2, 3) {
		t.Fatalf("expected translated point (1, 2, 3); got %v", p)
	}
	if d := tfm.Direction(XYZ(1, 0, 0)); d != XYZ(1, 0, 0) {
		t.Fatalf("expected directions to ignore translation; got %v", d)
	}
}

func TestTransformMulOrder(t *testing.T) {
	scale := TransformScale(2, 2, 2)
	translate := TransformTranslate(XYZ(1, 0, 0))

	// Mul applies the right-hand transform first.
	p := translate.Mul(scale).Point(XYZ(1, 0, 0))
	if p != XYZ(3, 0, 0) {
		t.Fatalf("expected scale-then-translate to give (3, 0, 0); got %v", p)
	}

	p = scale.Mul(translate).Point(XYZ(1, 0, 0))
	if p != XYZ(4, 0, 0) {
		t.Fatalf("expected translate-then-scale to give (4, 0, 0); got %v", p)
	}
}

func TestTransformInverseRoundTrip(t *testing.T) {
	tfm := TransformTranslate(XYZ(3, -1, 2)).Mul(TransformScale(2, 4, 0.5))
	inv := tfm.Inverse()

	points := []Vec3{XYZ(0, 0, 0), XYZ(1, 1, 1), XYZ(-5, 2, 7)}
	for _, p := range points {
		back := inv.Point(tfm.Point(p))
		if !vecNear(back, p, 1e-5) {
			t.Fatalf("expected inverse round trip of %v; got %v", p, back)
		}
	}
}

func TestTransformInverseSingular(t *testing.T) {
	singular := TransformScale(1, 1, 0)
	if inv := singular.Inverse(); inv != TransformIdentity() {
		t.Fatalf("expected singular inverse to fall back to identity; got %v", inv)
	}
}

func TestMakeFrameOrthonormal(t *testing.T) {
	axes := []Vec3{
		XYZ(0, 0, 1),
		XYZ(1, 0, 0),
		XYZ(1, 1, 1).Normalize(),
		XYZ(-0.3, 0.9, 0.2).Normalize(),
	}

	for _, n := range axes {
		frame := MakeFrame(n)
		dx := frame.X.Vec3()
		dy := frame.Y.Vec3()
		dz := frame.Z.Vec3()

		if !vecNear(dz, n, 1e-6) {
			t.Fatalf("expected frame z row to be the axis %v; got %v", n, dz)
		}
		for _, d := range []Vec3{dx, dy} {
			if math32.Abs(d.Len()-1) > 1e-5 {
				t.Fatalf("expected unit frame rows; got length %f", d.Len())
			}
		}
		if math32.Abs(dx.Dot(dy)) > 1e-5 || math32.Abs(dx.Dot(dz)) > 1e-5 || math32.Abs(dy.Dot(dz)) > 1e-5 {
			t.Fatalf("expected orthogonal frame rows for axis %v", n)
		}
	}
}
