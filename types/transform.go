package types

// Transform is an affine 3D transform stored as three rows of a 3x4 matrix.
// The missing fourth row is implicitly (0, 0, 0, 1).
type Transform struct {
	X, Y, Z Vec4
}

// TransformIdentity returns the identity transform.
func TransformIdentity() Transform {
	return Transform{
		X: Vec4{1, 0, 0, 0},
		Y: Vec4{0, 1, 0, 0},
		Z: Vec4{0, 0, 1, 0},
	}
}

// NewTransform assembles a transform from its 12 row-major components.
func NewTransform(a, b, c, d, e, f, g, h, i, j, k, l float32) Transform {
	return Transform{
		X: Vec4{a, b, c, d},
		Y: Vec4{e, f, g, h},
		Z: Vec4{i, j, k, l},
	}
}

// TransformScale returns a transform scaling each axis independently.
func TransformScale(x, y, z float32) Transform {
	return NewTransform(
		x, 0, 0, 0,
		0, y, 0, 0,
		0, 0, z, 0,
	)
}

// TransformTranslate returns a transform moving points by t.
func TransformTranslate(t Vec3) Transform {
	return NewTransform(
		1, 0, 0, t[0],
		0, 1, 0, t[1],
		0, 0, 1, t[2],
	)
}

// Point applies the full affine transform to a point.
func (t Transform) Point(p Vec3) Vec3 {
	hp := p.Vec4(1)
	return Vec3{t.X.Dot(hp), t.Y.Dot(hp), t.Z.Dot(hp)}
}

// Direction applies only the linear part of the transform to a direction.
func (t Transform) Direction(d Vec3) Vec3 {
	hd := d.Vec4(0)
	return Vec3{t.X.Dot(hd), t.Y.Dot(hd), t.Z.Dot(hd)}
}

// Mul composes two transforms; the result applies b first, then t.
func (t Transform) Mul(b Transform) Transform {
	cols := [4]Vec4{
		{b.X[0], b.Y[0], b.Z[0], 0},
		{b.X[1], b.Y[1], b.Z[1], 0},
		{b.X[2], b.Y[2], b.Z[2], 0},
		{b.X[3], b.Y[3], b.Z[3], 1},
	}
	row := func(r Vec4) Vec4 {
		return Vec4{r.Dot(cols[0]), r.Dot(cols[1]), r.Dot(cols[2]), r.Dot(cols[3])}
	}
	return Transform{X: row(t.X), Y: row(t.Y), Z: row(t.Z)}
}

// Inverse inverts an affine transform. A singular linear part yields the
// identity, which callers treat as "no usable orientation frame".
func (t Transform) Inverse() Transform {
	m := [3][3]float32{
		{t.X[0], t.X[1], t.X[2]},
		{t.Y[0], t.Y[1], t.Y[2]},
		{t.Z[0], t.Z[1], t.Z[2]},
	}

	c00 := m[1][1]*m[2][2] - m[1][2]*m[2][1]
	c01 := m[1][2]*m[2][0] - m[1][0]*m[2][2]
	c02 := m[1][0]*m[2][1] - m[1][1]*m[2][0]
	det := m[0][0]*c00 + m[0][1]*c01 + m[0][2]*c02
	if det == 0 {
		return TransformIdentity()
	}
	inv := 1.0 / det

	r := [3][3]float32{
		{c00 * inv, (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv, (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv},
		{c01 * inv, (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv, (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv},
		{c02 * inv, (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv, (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv},
	}

	trans := Vec3{t.X[3], t.Y[3], t.Z[3]}
	out := Transform{
		X: Vec4{r[0][0], r[0][1], r[0][2], 0},
		Y: Vec4{r[1][0], r[1][1], r[1][2], 0},
		Z: Vec4{r[2][0], r[2][1], r[2][2], 0},
	}
	nt := out.Direction(trans).Mul(-1)
	out.X[3] = nt[0]
	out.Y[3] = nt[1]
	out.Z[3] = nt[2]
	return out
}

// MakeFrame builds an orthonormal orientation frame whose third row is the
// given unit axis. Used to fit tight boxes around elongated curve segments.
func MakeFrame(n Vec3) Transform {
	dx0 := XYZ(1, 0, 0).Cross(n)
	dx1 := XYZ(0, 1, 0).Cross(n)
	dx := dx1
	if dx0.Dot(dx0) > dx1.Dot(dx1) {
		dx = dx0
	}
	dx = dx.Normalize()
	dy := n.Cross(dx).Normalize()
	return NewTransform(
		dx[0], dx[1], dx[2], 0,
		dy[0], dy[1], dy[2], 0,
		n[0], n[1], n[2], 0,
	)
}
