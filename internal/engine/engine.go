// Package engine wraps the external binaries that do the heavy geospatial
// work: the cassini map generator and the GDAL command line tools.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// DefaultCassiniBinary is the executable looked up on PATH when no explicit
// binary path is configured.
const DefaultCassiniBinary = "cassini"

// Engine runs the two cassini processing stages of a tile.
type Engine interface {
	// LidarTile turns the raw point cloud at lazPath into the intermediate
	// rasters and shapefiles of one tile, written under outputDir.
	LidarTile(ctx context.Context, lazPath, outputDir string) error

	// RenderTile renders the final map image of a tile from its own
	// intermediate files in inputDir and those of its available neighbors,
	// written under outputDir.
	RenderTile(ctx context.Context, inputDir, outputDir string, neighborDirs []string) error
}

// Cassini invokes the cassini binary as a subprocess.
type Cassini struct {
	// Binary is the name or path of the cassini executable.
	Binary string
}

var _ Engine = (*Cassini)(nil)

// NewCassini returns a Cassini engine using the default binary name.
func NewCassini() *Cassini {
	return &Cassini{Binary: DefaultCassiniBinary}
}

// LidarTile implements Engine.LidarTile.
func (c *Cassini) LidarTile(ctx context.Context, lazPath, outputDir string) error {
	return c.run(ctx, lidarArgs(lazPath, outputDir))
}

// RenderTile implements Engine.RenderTile.
func (c *Cassini) RenderTile(ctx context.Context, inputDir, outputDir string, neighborDirs []string) error {
	return c.run(ctx, renderArgs(inputDir, outputDir, neighborDirs))
}

func (c *Cassini) run(ctx context.Context, args []string) error {
	// #nosec G204 -- command arguments are constructed from validated inputs
	cmd := exec.CommandContext(ctx, c.Binary, args...)

	// Cassini reports its own progress, so pipe it straight through.
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run cassini %s step (check output above for details): %w", args[0], err)
	}

	return nil
}

func lidarArgs(lazPath, outputDir string) []string {
	return []string{"lidar", lazPath, "--output-dir", outputDir}
}

func renderArgs(inputDir, outputDir string, neighborDirs []string) []string {
	args := []string{"render", inputDir, "--output-dir", outputDir}
	for _, dir := range neighborDirs {
		args = append(args, "--neighbor", dir)
	}
	return args
}
