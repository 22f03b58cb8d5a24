package steps

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"github.com/NicoRio42/mapant-fr-worker/internal/api"
	"github.com/NicoRio42/mapant-fr-worker/internal/config"
	"github.com/NicoRio42/mapant-fr-worker/internal/logger"
	"github.com/NicoRio42/mapant-fr-worker/internal/pyramid"
	"github.com/NicoRio42/mapant-fr-worker/internal/transfer"
	"github.com/NicoRio42/mapant-fr-worker/internal/types"
)

// PyramidStep builds display tiles, either by fanning a freshly rendered map
// tile out into the base zoom levels or by merging four finer tiles into
// their parent. A finished tile that fails to upload is logged and left on
// disk, the job itself still succeeds.
type PyramidStep struct {
	// TilesDir is the root of the on-disk tile hierarchy.
	TilesDir string

	baseURL  string
	transfer *transfer.Client
}

// NewPyramidStep creates a pyramid step handler writing to the default
// directory.
func NewPyramidStep(cfg config.Config, transferClient *transfer.Client) *PyramidStep {
	return &PyramidStep{
		TilesDir: DefaultTilesDir,
		baseURL:  cfg.BaseURL,
		transfer: transferClient,
	}
}

// Run executes one pyramid job.
func (s *PyramidStep) Run(ctx context.Context, job types.PyramidJob) error {
	coord := pyramid.Coord{X: job.X, Y: job.Y, Z: job.Z}

	if job.BaseZoomLevelTileID != nil {
		return s.buildBaseLevel(ctx, coord, job.AreaID, *job.BaseZoomLevelTileID)
	}

	return s.buildFromChildren(ctx, coord, job.AreaID)
}

// tilePath returns the on-disk location of one tile of an area's pyramid.
func (s *PyramidStep) tilePath(areaID string, c pyramid.Coord) string {
	return filepath.Join(s.TilesDir, areaID, strconv.Itoa(c.Z), strconv.Itoa(c.X), fmt.Sprintf("%d.png", c.Y))
}

// buildBaseLevel downloads the full resolution map of tileID and fans it out
// into the 21 tiles covering the base zoom level and the two below it.
func (s *PyramidStep) buildBaseLevel(ctx context.Context, root pyramid.Coord, areaID, tileID string) error {
	rootPath := s.tilePath(areaID, root)

	logger.Infof("Downloading the base high quality tile for tile %s", tileID)
	start := time.Now()
	if err := s.transfer.DownloadAuthenticated(ctx, api.FullMapURL(s.baseURL, tileID), rootPath); err != nil {
		return fmt.Errorf("failed to download full map for tile %s: %w", tileID, err)
	}
	logger.Infof("Base high quality tile for tile %s downloaded in %s", tileID, time.Since(start).Round(time.Millisecond))

	fullMap, err := imaging.Open(rootPath)
	if err != nil {
		return fmt.Errorf("failed to open full map for tile %s: %w", tileID, err)
	}

	logger.Infof("Generating tiles for zoom %d, %d and %d for high quality tile %s", root.Z, root.Z+1, root.Z+2, tileID)
	start = time.Now()

	tiles := pyramid.BuildBaseLevelTiles(root, fullMap)

	parts := make([]transfer.FilePart, 0, len(tiles))
	for _, tile := range tiles {
		path := s.tilePath(areaID, tile.Coord)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
		}
		if err := imaging.Save(tile.Image, path); err != nil {
			return fmt.Errorf("failed to save tile %d/%d/%d: %w", tile.Coord.Z, tile.Coord.X, tile.Coord.Y, err)
		}

		parts = append(parts, transfer.FilePart{
			Field:       fmt.Sprintf("%d_%d_%d", tile.Coord.Z, tile.Coord.X, tile.Coord.Y),
			FileName:    fmt.Sprintf("%d.png", tile.Coord.Y),
			Path:        path,
			ContentType: PNGContentType,
		})
	}

	logger.Infof("Tiles for zoom %d, %d and %d for high quality tile %s generated in %s", root.Z, root.Z+1, root.Z+2, tileID, time.Since(start).Round(time.Millisecond))

	logger.Infof("Uploading tiles for base level zoom=%d x=%d y=%d", root.Z, root.X, root.Y)
	start = time.Now()
	if err := s.transfer.UploadFiles(ctx, api.PyramidBaseLevelURL(s.baseURL, areaID, root.X, root.Y), parts); err != nil {
		logger.Errorf("Failed to upload tiles for base level zoom=%d x=%d y=%d: %v", root.Z, root.X, root.Y, err)
		return nil
	}
	logger.Infof("Tiles for base level zoom=%d x=%d y=%d uploaded in %s", root.Z, root.X, root.Y, time.Since(start).Round(time.Millisecond))

	return nil
}

// buildFromChildren fetches the four children of coord from the tile store,
// merges them and uploads the resulting parent tile. Children that do not
// exist yet stay transparent.
func (s *PyramidStep) buildFromChildren(ctx context.Context, coord pyramid.Coord, areaID string) error {
	logger.Infof("Zoom=%d x=%d y=%d, trying to download children tiles", coord.Z, coord.X, coord.Y)
	start := time.Now()

	var children [4]image.Image
	for i, child := range coord.Children() {
		path := s.tilePath(areaID, child)
		url := api.PyramidStepURL(s.baseURL, areaID, child.Z, child.X, child.Y)

		err := s.transfer.DownloadAuthenticated(ctx, url, path)
		if errors.Is(err, transfer.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to download child tile %d/%d/%d: %w", child.Z, child.X, child.Y, err)
		}

		img, err := imaging.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open child tile %d/%d/%d: %w", child.Z, child.X, child.Y, err)
		}
		children[i] = img
	}

	logger.Infof("Zoom=%d x=%d y=%d, children tiles (maybe) downloaded in %s", coord.Z, coord.X, coord.Y, time.Since(start).Round(time.Millisecond))

	logger.Infof("Zoom=%d x=%d y=%d, merging and resizing children tiles", coord.Z, coord.X, coord.Y)
	start = time.Now()

	merged := pyramid.MergeQuadrants(children, pyramid.TilePixelSize)
	tile := pyramid.ResizeToTile(merged)

	path := s.tilePath(areaID, coord)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := imaging.Save(tile, path); err != nil {
		return fmt.Errorf("failed to save tile %d/%d/%d: %w", coord.Z, coord.X, coord.Y, err)
	}

	logger.Infof("Zoom=%d x=%d y=%d, children tiles merged and resized in %s", coord.Z, coord.X, coord.Y, time.Since(start).Round(time.Millisecond))

	logger.Infof("Uploading tile zoom=%d x=%d y=%d", coord.Z, coord.X, coord.Y)
	start = time.Now()
	part := transfer.FilePart{
		Field:       "file",
		FileName:    fmt.Sprintf("%d.png", coord.Y),
		Path:        path,
		ContentType: PNGContentType,
	}
	if err := s.transfer.UploadFile(ctx, api.PyramidStepURL(s.baseURL, areaID, coord.Z, coord.X, coord.Y), part); err != nil {
		logger.Errorf("Failed to upload tile zoom=%d x=%d y=%d: %v", coord.Z, coord.X, coord.Y, err)
		return nil
	}
	logger.Infof("Tile zoom=%d x=%d y=%d uploaded in %s", coord.Z, coord.X, coord.Y, time.Since(start).Round(time.Millisecond))

	return nil
}
