package main

import (
	"os"

	"github.com/primatelabs/cycles/cmd"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "cycles-bvh"
	app.Usage = "build and inspect ray tracing acceleration structures"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "bench",
			Usage: "build a BVH over a synthetic scene and report statistics",
			Description: `
Generate a procedural scene with the requested primitive mix, build a BVH
over it and print build timing together with the packed memory layout.

With --instances greater than one, each geometry gets its own bottom-level
BVH and the scattered instances are merged through a top-level build.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "triangles",
					Value: 100000,
					Usage: "number of triangles to generate",
				},
				cli.IntFlag{
					Name:  "curves",
					Value: 0,
					Usage: "number of curve segments to generate",
				},
				cli.IntFlag{
					Name:  "points",
					Value: 0,
					Usage: "number of points to generate",
				},
				cli.IntFlag{
					Name:  "instances",
					Value: 1,
					Usage: "number of instances per geometry; above one enables a two-level build",
				},
				cli.BoolFlag{
					Name:  "spatial",
					Usage: "enable spatial splits",
				},
				cli.BoolFlag{
					Name:  "unaligned",
					Usage: "enable orientation-fitted nodes for curves",
				},
				cli.IntFlag{
					Name:  "motion-steps",
					Value: 0,
					Usage: "motion step pairs per primitive; above zero enables motion blur",
				},
				cli.IntFlag{
					Name:  "leaf-size",
					Value: 0,
					Usage: "override the triangle and point leaf size caps",
				},
				cli.IntFlag{
					Name:  "rotations",
					Value: 0,
					Usage: "tree rotation passes over the finished topology",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 42,
					Usage: "seed for the scene generator",
				},
			},
			Action: cmd.Bench,
		},
	}

	app.Run(os.Args)
}
