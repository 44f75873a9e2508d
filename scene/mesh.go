package scene

import "github.com/primatelabs/cycles/types"

// Mesh is a triangle soup with optional per-step motion positions.
type Mesh struct {
	Verts     []types.Vec3
	Triangles [][3]int

	// MotionVerts holds one vertex array per motion step excluding the
	// center step, which is Verts itself. Empty when the mesh does not
	// deform.
	MotionVerts [][]types.Vec3

	// Offset of the mesh's first triangle in the global primitive arrays.
	Offset int

	// TransformApplied marks meshes whose object transform was baked into
	// Verts; they are flattened into the top-level BVH instead of keeping
	// their own.
	TransformApplied bool
}

func (m *Mesh) GeometryType() GeometryType {
	return GeometryMesh
}

func (m *Mesh) NumPrimitives() int {
	return len(m.Triangles)
}

func (m *Mesh) PrimOffset() int {
	return m.Offset
}

func (m *Mesh) NeedBuildBVH() bool {
	return !m.TransformApplied
}

func (m *Mesh) UseMotionBlur() bool {
	return len(m.MotionVerts) > 0
}

func (m *Mesh) MotionSteps() int {
	if len(m.MotionVerts) == 0 {
		return 1
	}
	return len(m.MotionVerts) + 1
}

// stepVerts returns the vertex array for a motion step, mapping the center
// step onto the rest positions.
func (m *Mesh) stepVerts(step int) []types.Vec3 {
	center := m.MotionSteps() / 2
	if step == center {
		return m.Verts
	}
	if step < center {
		return m.MotionVerts[step]
	}
	return m.MotionVerts[step-1]
}

// TriangleVerts returns the rest positions of triangle i.
func (m *Mesh) TriangleVerts(i int) [3]types.Vec3 {
	t := m.Triangles[i]
	return [3]types.Vec3{m.Verts[t[0]], m.Verts[t[1]], m.Verts[t[2]]}
}

// TriangleVertsAtTime interpolates triangle i's vertices at shutter time t.
func (m *Mesh) TriangleVertsAtTime(i int, t float32) [3]types.Vec3 {
	if !m.UseMotionBlur() {
		return m.TriangleVerts(i)
	}
	lo, hi, w := motionTime(m.MotionSteps(), t)
	va := m.stepVerts(lo)
	vb := m.stepVerts(hi)
	tri := m.Triangles[i]
	var out [3]types.Vec3
	for c := 0; c < 3; c++ {
		out[c] = types.MixVec3(va[tri[c]], vb[tri[c]], w)
	}
	return out
}

// GrowTriangleBounds extends bounds by triangle i at the rest positions.
func (m *Mesh) GrowTriangleBounds(i int, bounds *types.BoundBox) {
	for _, v := range m.TriangleVerts(i) {
		bounds.GrowPoint(v)
	}
}

// GrowTriangleBoundsStep extends bounds by triangle i at a motion step.
func (m *Mesh) GrowTriangleBoundsStep(i, step int, bounds *types.BoundBox) {
	verts := m.stepVerts(step)
	for _, vi := range m.Triangles[i] {
		bounds.GrowPoint(verts[vi])
	}
}

// Bounds returns the mesh bounds swept over all motion steps.
func (m *Mesh) Bounds() types.BoundBox {
	bounds := types.EmptyBoundBox()
	for step := 0; step < m.MotionSteps(); step++ {
		for _, v := range m.stepVerts(step) {
			bounds.GrowPoint(v)
		}
	}
	return bounds
}
