package steps

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/NicoRio42/mapant-fr-worker/internal/api"
	"github.com/NicoRio42/mapant-fr-worker/internal/archive"
	"github.com/NicoRio42/mapant-fr-worker/internal/cache"
	"github.com/NicoRio42/mapant-fr-worker/internal/config"
	"github.com/NicoRio42/mapant-fr-worker/internal/engine"
	"github.com/NicoRio42/mapant-fr-worker/internal/logger"
	"github.com/NicoRio42/mapant-fr-worker/internal/transfer"
	"github.com/NicoRio42/mapant-fr-worker/internal/types"
)

const (
	// highQualityTilePixelSize is the pixel side of the full resolution
	// render of one tile.
	highQualityTilePixelSize = 2362

	// shapefileClipBuffer widens the clip window in ground units so strokes
	// crossing the tile border survive the cut.
	shapefileClipBuffer = 20
)

// rasterCrops maps render outputs to their cropped name under rasters/.
var rasterCrops = [][2]string{
	{"dem-with-buffer.tif", "dem.tif"},
	{"dem-low-resolution-with-buffer.tif", "dem-low-resolution.tif"},
	{"high-vegetation-with-buffer.tif", "high-vegetation.tif"},
	{"medium-vegetation-with-buffer.tif", "medium-vegetation.tif"},
	{"slopes.tif", "slopes.tif"},
}

// shapefileClips maps render outputs to their clipped name under shapefiles/.
var shapefileClips = [][2]string{
	{"shapes/lines.shp", "vectors/lines.shp"},
	{"shapes/multipolygons.shp", "vectors/multipolygons.shp"},
	{"contours/contours.shp", "contours/contours.shp"},
	{"contours-raw/contours-raw.shp", "contours-raw/contours-raw.shp"},
	{"formlines/formlines.shp", "formlines/formlines.shp"},
}

// overlayPNGs are the transparent layers shipped alongside the full map.
var overlayPNGs = []string{"cliffs.png", "contours.png", "vegetation.png"}

// RenderStep renders the map of a tile from its LiDAR step dataset and those
// of its neighbors, then uploads the map with its cropped source layers.
type RenderStep struct {
	// OutputDir is the parent of the per tile result directories.
	OutputDir string

	baseURL  string
	transfer *transfer.Client
	engine   engine.Engine
	clipper  engine.GeoClip
	cache    *cache.Cache
}

// NewRenderStep creates a render step handler writing to the default
// directory. lidarCache provides the LiDAR step datasets.
func NewRenderStep(cfg config.Config, transferClient *transfer.Client, eng engine.Engine, clipper engine.GeoClip, lidarCache *cache.Cache) *RenderStep {
	return &RenderStep{
		OutputDir: DefaultRenderStepDir,
		baseURL:   cfg.BaseURL,
		transfer:  transferClient,
		engine:    eng,
		clipper:   clipper,
		cache:     lidarCache,
	}
}

// Run executes one render job.
func (s *RenderStep) Run(ctx context.Context, job types.RenderJob) error {
	tileDir, err := s.cache.Ensure(ctx, job.TileID)
	if err != nil {
		return fmt.Errorf("failed to get LiDAR step files for tile %s: %w", job.TileID, err)
	}

	neighborDirs := make([]string, 0, len(job.NeighboringTileIDs))
	for _, neighborID := range job.NeighboringTileIDs {
		dir, err := s.cache.Ensure(ctx, neighborID)
		if err != nil {
			return fmt.Errorf("failed to get LiDAR step files for neighbor tile %s: %w", neighborID, err)
		}
		neighborDirs = append(neighborDirs, dir)
	}

	if err := os.MkdirAll(s.OutputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.OutputDir, err)
	}
	outputDir := filepath.Join(s.OutputDir, job.TileID)

	logger.Infof("Processing render step for tile %s", job.TileID)
	start := time.Now()
	if err := s.engine.RenderTile(ctx, tileDir, outputDir, neighborDirs); err != nil {
		return fmt.Errorf("render step failed for tile %s: %w", job.TileID, err)
	}
	logger.Infof("Render step for tile %s processed in %s", job.TileID, time.Since(start).Round(time.Millisecond))

	// Tiles at the area border cover less ground than the nominal square.
	// The real extent drives the crops, the nominal one the png layout.
	realExtent, err := types.ReadExtentFile(filepath.Join(tileDir, ExtentFileName))
	if err != nil {
		return fmt.Errorf("failed to read extent for tile %s: %w", job.TileID, err)
	}

	rastersArchive, err := s.prepareRasters(ctx, job.TileID, tileDir, outputDir, realExtent)
	if err != nil {
		return err
	}

	shapefilesArchive, err := s.prepareShapefiles(ctx, job.TileID, outputDir, realExtent)
	if err != nil {
		return err
	}

	pngsArchive, err := s.preparePNGs(job.TileID, outputDir, realExtent)
	if err != nil {
		return err
	}

	parts := []transfer.FilePart{
		{Field: "rasters", FileName: filepath.Base(rastersArchive), Path: rastersArchive, ContentType: ArchiveContentType},
		{Field: "shapefiles", FileName: filepath.Base(shapefilesArchive), Path: shapefilesArchive, ContentType: ArchiveContentType},
		{Field: "pngs", FileName: filepath.Base(pngsArchive), Path: pngsArchive, ContentType: ArchiveContentType},
		{Field: "full-map", FileName: "full-map.png", Path: filepath.Join(outputDir, "full-map.png"), ContentType: PNGContentType},
	}
	if err := s.transfer.UploadFiles(ctx, api.RenderStepURL(s.baseURL, job.TileID), parts); err != nil {
		return fmt.Errorf("failed to upload render results for tile %s: %w", job.TileID, err)
	}

	return nil
}

// prepareRasters crops the buffered rasters to the tile extent, adds the
// tile's metadata files and archives the lot. A failed crop is logged and
// leaves that raster out, the render result itself is still usable.
func (s *RenderStep) prepareRasters(ctx context.Context, tileID, tileDir, outputDir string, extent types.Extent) (string, error) {
	rastersDir := filepath.Join(outputDir, "rasters")
	if err := os.MkdirAll(rastersDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", rastersDir, err)
	}

	for _, crop := range rasterCrops {
		src := filepath.Join(outputDir, crop[0])
		dest := filepath.Join(rastersDir, crop[1])
		if err := s.clipper.CropRaster(ctx, src, dest, extent); err != nil {
			logger.Errorf("Tile %s extent %s: %v", tileID, extent, err)
		}
	}

	for _, name := range []string{ExtentFileName, "pipeline.json"} {
		if err := copyFile(filepath.Join(tileDir, name), filepath.Join(rastersDir, name)); err != nil {
			return "", err
		}
	}

	archivePath := filepath.Join(outputDir, fmt.Sprintf("rasters_%s.tar.xz", tileID))
	if err := archive.Compress(rastersDir, archivePath); err != nil {
		return "", fmt.Errorf("failed to compress rasters for tile %s: %w", tileID, err)
	}

	return archivePath, nil
}

// prepareShapefiles clips the vector layers to the buffered tile extent and
// archives them. Failed clips are logged like failed crops.
func (s *RenderStep) prepareShapefiles(ctx context.Context, tileID, outputDir string, extent types.Extent) (string, error) {
	shapefilesDir := filepath.Join(outputDir, "shapefiles")
	clipExtent := extent.Expand(shapefileClipBuffer)

	for _, clip := range shapefileClips {
		src := filepath.Join(outputDir, filepath.FromSlash(clip[0]))
		dest := filepath.Join(shapefilesDir, filepath.FromSlash(clip[1]))
		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
		}
		if err := s.clipper.ClipVector(ctx, src, dest, clipExtent); err != nil {
			logger.Errorf("Tile %s extent %s: %v", tileID, clipExtent, err)
		}
	}

	archivePath := filepath.Join(outputDir, fmt.Sprintf("shapefiles_%s.tar.xz", tileID))
	if err := archive.Compress(shapefilesDir, archivePath); err != nil {
		return "", fmt.Errorf("failed to compress shapefiles for tile %s: %w", tileID, err)
	}

	return archivePath, nil
}

// preparePNGs lays the rendered overlays out on the nominal tile square and
// archives them. The full map is repositioned in place when needed so the
// upload always covers the full square.
func (s *RenderStep) preparePNGs(tileID, outputDir string, realExtent types.Extent) (string, error) {
	nominal, err := types.ExtentFromTileID(tileID)
	if err != nil {
		return "", err
	}

	pngsDir := filepath.Join(outputDir, "pngs")
	if err := os.MkdirAll(pngsDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", pngsDir, err)
	}

	if realExtent != nominal {
		for _, name := range overlayPNGs {
			if err := repositionOntoTile(filepath.Join(outputDir, name), filepath.Join(pngsDir, name), nominal, realExtent); err != nil {
				return "", fmt.Errorf("failed to reposition %s for tile %s: %w", name, tileID, err)
			}
		}

		fullMapPath := filepath.Join(outputDir, "full-map.png")
		if err := repositionOntoTile(fullMapPath, fullMapPath, nominal, realExtent); err != nil {
			return "", fmt.Errorf("failed to reposition full-map.png for tile %s: %w", tileID, err)
		}
	} else {
		for _, name := range overlayPNGs {
			if err := copyFile(filepath.Join(outputDir, name), filepath.Join(pngsDir, name)); err != nil {
				return "", err
			}
		}
	}

	archivePath := filepath.Join(outputDir, fmt.Sprintf("pngs_%s.tar.xz", tileID))
	if err := archive.Compress(pngsDir, archivePath); err != nil {
		return "", fmt.Errorf("failed to compress pngs for tile %s: %w", tileID, err)
	}

	return archivePath, nil
}

// repositionOntoTile pastes an image rendered for the real extent onto a
// transparent canvas covering the nominal tile square, at the pixel offset
// where the real extent sits inside the square.
func repositionOntoTile(srcPath, destPath string, nominal, real types.Extent) error {
	img, err := imaging.Open(srcPath)
	if err != nil {
		return err
	}

	width := float64(nominal.MaxX - nominal.MinX)
	height := float64(nominal.MaxY - nominal.MinY)
	startX := int(math.Round(highQualityTilePixelSize * float64(real.MinX-nominal.MinX) / width))
	startY := int(math.Round(highQualityTilePixelSize * float64(nominal.MaxY-real.MaxY) / height))

	canvas := imaging.New(highQualityTilePixelSize, highQualityTilePixelSize, color.Transparent)
	canvas = imaging.Paste(canvas, img, image.Pt(startX, startY))

	return imaging.Save(canvas, destPath)
}
