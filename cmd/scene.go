package cmd

import (
	"math/rand"

	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
)

func randPoint(rng *rand.Rand, extent float32) types.Vec3 {
	return types.XYZ(
		(rng.Float32()-0.5)*extent,
		(rng.Float32()-0.5)*extent,
		(rng.Float32()-0.5)*extent,
	)
}

func jitterVerts(rng *rand.Rand, verts []types.Vec3, amount float32) []types.Vec3 {
	out := make([]types.Vec3, len(verts))
	for i, v := range verts {
		out[i] = v.Add(randPoint(rng, amount))
	}
	return out
}

// genMesh scatters triangles of roughly unit size inside a cube with the
// given extent. With motion enabled each vertex gets jittered positions for
// the shutter-open and shutter-close steps.
func genMesh(rng *rand.Rand, triangles int, extent float32, motion, instanced bool) *scene.Mesh {
	mesh := &scene.Mesh{
		Verts:            make([]types.Vec3, 0, triangles*3),
		Triangles:        make([][3]int, 0, triangles),
		TransformApplied: !instanced,
	}
	for i := 0; i < triangles; i++ {
		origin := randPoint(rng, extent)
		base := len(mesh.Verts)
		mesh.Verts = append(mesh.Verts,
			origin,
			origin.Add(randPoint(rng, 2)),
			origin.Add(randPoint(rng, 2)),
		)
		mesh.Triangles = append(mesh.Triangles, [3]int{base, base + 1, base + 2})
	}
	if motion {
		mesh.MotionVerts = [][]types.Vec3{
			jitterVerts(rng, mesh.Verts, 1),
			jitterVerts(rng, mesh.Verts, 1),
		}
	}
	return mesh
}

// genHair scatters short multi-segment curves inside a cube with the given
// extent.
func genHair(rng *rand.Rand, segments int, extent float32, motion, instanced bool) *scene.Hair {
	const segmentsPerCurve = 4

	hair := &scene.Hair{TransformApplied: !instanced}
	for remaining := segments; remaining > 0; {
		n := segmentsPerCurve
		if n > remaining {
			n = remaining
		}
		remaining -= n

		first := len(hair.Keys)
		key := randPoint(rng, extent)
		for k := 0; k <= n; k++ {
			hair.Keys = append(hair.Keys, key)
			hair.Radius = append(hair.Radius, 0.01+rng.Float32()*0.05)
			key = key.Add(randPoint(rng, 1))
		}
		hair.Curves = append(hair.Curves, scene.Curve{FirstKey: first, NumKeys: n + 1})
	}
	if motion {
		hair.MotionKeys = [][]types.Vec3{
			jitterVerts(rng, hair.Keys, 0.5),
			jitterVerts(rng, hair.Keys, 0.5),
		}
	}
	return hair
}

// genPoints scatters spheres inside a cube with the given extent.
func genPoints(rng *rand.Rand, points int, extent float32, motion, instanced bool) *scene.PointCloud {
	pc := &scene.PointCloud{
		Points:           make([]types.Vec3, points),
		Radius:           make([]float32, points),
		TransformApplied: !instanced,
	}
	for i := range pc.Points {
		pc.Points[i] = randPoint(rng, extent)
		pc.Radius[i] = 0.05 + rng.Float32()*0.2
	}
	if motion {
		pc.MotionPoints = [][]types.Vec3{
			jitterVerts(rng, pc.Points, 0.5),
			jitterVerts(rng, pc.Points, 0.5),
		}
	}
	return pc
}
