package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/NicoRio42/mapant-fr-worker/internal/types"
)

const (
	// DefaultTranslateBinary is the GDAL raster cropping tool.
	DefaultTranslateBinary = "gdal_translate"

	// DefaultVectorBinary is the GDAL vector clipping tool.
	DefaultVectorBinary = "ogr2ogr"
)

// GeoClip cuts rasters and vector layers down to a tile extent.
type GeoClip interface {
	// CropRaster extracts the extent window from the GeoTIFF at src into dest.
	CropRaster(ctx context.Context, src, dest string, extent types.Extent) error

	// ClipVector clips the shapefile at src to the extent into dest.
	ClipVector(ctx context.Context, src, dest string, extent types.Extent) error
}

// GDAL implements GeoClip with the gdal_translate and ogr2ogr binaries.
type GDAL struct {
	// TranslateBinary is the name or path of the gdal_translate executable.
	TranslateBinary string

	// VectorBinary is the name or path of the ogr2ogr executable.
	VectorBinary string
}

var _ GeoClip = (*GDAL)(nil)

// NewGDAL returns a GDAL clipper using the default binary names.
func NewGDAL() *GDAL {
	return &GDAL{
		TranslateBinary: DefaultTranslateBinary,
		VectorBinary:    DefaultVectorBinary,
	}
}

// CropRaster implements GeoClip.CropRaster.
func (g *GDAL) CropRaster(ctx context.Context, src, dest string, extent types.Extent) error {
	return runQuiet(ctx, g.TranslateBinary, cropRasterArgs(src, dest, extent))
}

// ClipVector implements GeoClip.ClipVector.
func (g *GDAL) ClipVector(ctx context.Context, src, dest string, extent types.Extent) error {
	return runQuiet(ctx, g.VectorBinary, clipVectorArgs(src, dest, extent))
}

// runQuiet runs a tool that only produces output when something goes wrong,
// so the output belongs in the returned error rather than on the console.
func runQuiet(ctx context.Context, binary string, args []string) error {
	// #nosec G204 -- command arguments are constructed from validated inputs
	cmd := exec.CommandContext(ctx, binary, args...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s failed: %s: %w", binary, msg, err)
		}
		return fmt.Errorf("%s failed: %w", binary, err)
	}

	return nil
}

func cropRasterArgs(src, dest string, e types.Extent) []string {
	// -projwin takes the window as upper left then lower right corner.
	return []string{
		"-projwin",
		strconv.FormatInt(e.MinX, 10),
		strconv.FormatInt(e.MaxY, 10),
		strconv.FormatInt(e.MaxX, 10),
		strconv.FormatInt(e.MinY, 10),
		"-of", "GTiff",
		src,
		dest,
		"--quiet",
	}
}

func clipVectorArgs(src, dest string, e types.Extent) []string {
	// ogr2ogr wants the destination before the source.
	return []string{
		"-f", "ESRI Shapefile",
		dest,
		src,
		"-clipsrc",
		strconv.FormatInt(e.MinX, 10),
		strconv.FormatInt(e.MinY, 10),
		strconv.FormatInt(e.MaxX, 10),
		strconv.FormatInt(e.MaxY, 10),
	}
}
