package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/primatelabs/cycles/bvh"
	"github.com/primatelabs/cycles/scene"
	"github.com/primatelabs/cycles/types"
	"github.com/urfave/cli"
)

// Build a BVH over a synthetic scene and report timing and layout statistics.
func Bench(ctx *cli.Context) error {
	setupLogging(ctx)

	rng := rand.New(rand.NewSource(ctx.Int64("seed")))
	motionSteps := ctx.Int("motion-steps")

	params := bvh.DefaultParams()
	params.UseSpatialSplit = ctx.Bool("spatial")
	params.UseUnalignedNodes = ctx.Bool("unaligned")
	params.TreeRotationPasses = ctx.Int("rotations")
	if v := ctx.Int("leaf-size"); v > 0 {
		params.MaxTriangleLeafSize = v
		params.MaxMotionTriangleLeafSize = v
		params.MaxPointLeafSize = v
		params.MaxMotionPointLeafSize = v
	}
	if motionSteps > 0 {
		params.NumMotionTriangleSteps = motionSteps
		params.NumMotionCurveSteps = motionSteps
		params.NumMotionPointSteps = motionSteps
	}

	instances := ctx.Int("instances")
	instanced := instances > 1

	var geoms []scene.Geometry
	if n := ctx.Int("triangles"); n > 0 {
		geoms = append(geoms, genMesh(rng, n, 100, motionSteps > 0, instanced))
	}
	if n := ctx.Int("curves"); n > 0 {
		geoms = append(geoms, genHair(rng, n, 100, motionSteps > 0, instanced))
	}
	if n := ctx.Int("points"); n > 0 {
		geoms = append(geoms, genPoints(rng, n, 100, motionSteps > 0, instanced))
	}
	if len(geoms) == 0 {
		return errors.New("nothing to build; pass at least one of --triangles, --curves or --points")
	}

	progress := bvh.NewProgressWithSink(func(status string) {
		logger.Infof("%s", status)
	})

	start := time.Now()
	var built *bvh.BVH
	var err error
	if instanced {
		built, err = benchInstanced(rng, geoms, instances, params, progress)
	} else {
		objects := make([]*scene.Object, len(geoms))
		for i, geom := range geoms {
			objects[i] = scene.NewObject(geom, types.TransformIdentity(), 1)
		}
		built, err = bvh.Build(objects, nil, params, progress)
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	displayBuildStats(built, elapsed)
	return nil
}

// benchInstanced builds one bottom-level BVH per geometry, then a top-level
// BVH over the requested number of scattered instances.
func benchInstanced(rng *rand.Rand, geoms []scene.Geometry, instances int, params bvh.Params, progress *bvh.Progress) (*bvh.BVH, error) {
	accels := make(map[scene.Geometry]*bvh.BVH, len(geoms))
	objects := make([]*scene.Object, 0, len(geoms)*instances)
	for _, geom := range geoms {
		sub, err := bvh.Build(
			[]*scene.Object{scene.NewObject(geom, types.TransformIdentity(), 1)},
			nil, params, progress)
		if err != nil {
			return nil, err
		}
		accels[geom] = sub

		for i := 0; i < instances; i++ {
			tfm := types.TransformTranslate(randPoint(rng, 1000))
			objects = append(objects, scene.NewObject(geom, tfm, 1))
		}
	}

	topParams := params
	topParams.TopLevel = true
	topParams.UseSpatialSplit = false
	topParams.UseUnalignedNodes = false
	return bvh.Build(objects, accels, topParams, progress)
}

func displayBuildStats(b *bvh.BVH, elapsed time.Duration) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Node rows", "Leaf nodes", "Primitive slots", "Build time"})
	table.Append([]string{
		fmt.Sprintf("%d", len(b.Pack.Nodes)),
		fmt.Sprintf("%d", len(b.Pack.LeafNodes)),
		fmt.Sprintf("%d", len(b.Pack.PrimIndex)),
		fmt.Sprintf("%s", elapsed),
	})
	table.Render()
	logger.Noticef("build statistics\n%s", buf.String())
	logger.Noticef("memory layout\n%s", b.Stats())
}
