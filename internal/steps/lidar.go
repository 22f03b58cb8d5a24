package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NicoRio42/mapant-fr-worker/internal/api"
	"github.com/NicoRio42/mapant-fr-worker/internal/archive"
	"github.com/NicoRio42/mapant-fr-worker/internal/config"
	"github.com/NicoRio42/mapant-fr-worker/internal/engine"
	"github.com/NicoRio42/mapant-fr-worker/internal/logger"
	"github.com/NicoRio42/mapant-fr-worker/internal/transfer"
	"github.com/NicoRio42/mapant-fr-worker/internal/types"
)

// LidarStep turns the raw point cloud of a tile into the intermediate
// dataset consumed by the render step and uploads it as one archive.
type LidarStep struct {
	// FilesDir stores the downloaded point clouds.
	FilesDir string

	// OutputDir is the parent of the per tile result directories.
	OutputDir string

	baseURL  string
	transfer *transfer.Client
	engine   engine.Engine
}

// NewLidarStep creates a LiDAR step handler writing to the default
// directories.
func NewLidarStep(cfg config.Config, transferClient *transfer.Client, eng engine.Engine) *LidarStep {
	return &LidarStep{
		FilesDir:  DefaultLidarFilesDir,
		OutputDir: DefaultLidarStepDir,
		baseURL:   cfg.BaseURL,
		transfer:  transferClient,
		engine:    eng,
	}
}

// Run executes one LiDAR job.
func (s *LidarStep) Run(ctx context.Context, job types.LidarJob) error {
	lazPath := filepath.Join(s.FilesDir, job.TileID+".laz")

	logger.Infof("Downloading laz file for tile %s", job.TileID)
	start := time.Now()
	// Point clouds are hosted publicly, no credentials attached.
	if err := s.transfer.Download(ctx, job.TileURL, lazPath); err != nil {
		return fmt.Errorf("failed to download laz file for tile %s: %w", job.TileID, err)
	}
	logger.Infof("Laz file for tile %s downloaded in %s", job.TileID, time.Since(start).Round(time.Millisecond))

	if err := os.MkdirAll(s.OutputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.OutputDir, err)
	}
	outputDir := filepath.Join(s.OutputDir, job.TileID)

	logger.Infof("Processing LiDAR step for tile %s", job.TileID)
	start = time.Now()
	if err := s.engine.LidarTile(ctx, lazPath, outputDir); err != nil {
		return fmt.Errorf("LiDAR step failed for tile %s: %w", job.TileID, err)
	}
	logger.Infof("LiDAR step for tile %s processed in %s", job.TileID, time.Since(start).Round(time.Millisecond))

	logger.Infof("Compressing resulting files for tile %s", job.TileID)
	start = time.Now()
	archiveName := job.TileID + ".tar.xz"
	archivePath := filepath.Join(s.OutputDir, archiveName)
	if err := archive.Compress(outputDir, archivePath); err != nil {
		return fmt.Errorf("failed to compress results for tile %s: %w", job.TileID, err)
	}
	logger.Infof("Resulting files compression for tile %s done in %s", job.TileID, time.Since(start).Round(time.Millisecond))

	part := transfer.FilePart{
		Field:       "file",
		FileName:    archiveName,
		Path:        archivePath,
		ContentType: ArchiveContentType,
	}
	if err := s.transfer.UploadFile(ctx, api.LidarStepURL(s.baseURL, job.TileID), part); err != nil {
		return fmt.Errorf("failed to upload results for tile %s: %w", job.TileID, err)
	}

	return nil
}
