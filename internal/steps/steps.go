// Package steps implements the three kinds of work handed out by the
// mapant.fr job queue: processing a tile's point cloud, rendering a tile's
// map, and assembling the display pyramid.
package steps

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/NicoRio42/mapant-fr-worker/internal/api"
	"github.com/NicoRio42/mapant-fr-worker/internal/archive"
	"github.com/NicoRio42/mapant-fr-worker/internal/cache"
	"github.com/NicoRio42/mapant-fr-worker/internal/logger"
	"github.com/NicoRio42/mapant-fr-worker/internal/transfer"
)

const (
	// DefaultLidarFilesDir stores the downloaded point clouds.
	DefaultLidarFilesDir = "lidar-files"

	// DefaultLidarStepDir stores the per tile results of the LiDAR step.
	DefaultLidarStepDir = "lidar-step"

	// DefaultRenderStepDir stores the per tile results of the render step.
	DefaultRenderStepDir = "render-step"

	// DefaultTilesDir stores the generated pyramid tiles.
	DefaultTilesDir = "tiles"

	// ExtentFileName is the file carrying a tile's real extent. Its presence
	// also marks a LiDAR step directory as complete.
	ExtentFileName = "extent.txt"

	// ArchiveContentType is the MIME type announced for tar.xz uploads.
	ArchiveContentType = "application/x-xz"

	// PNGContentType is the MIME type announced for png uploads.
	PNGContentType = "image/png"
)

// NewLidarStepCache returns the shared cache of LiDAR step results rooted at
// root, fetching missing tiles from the API as tar.xz archives.
func NewLidarStepCache(root, baseURL string, client *transfer.Client) *cache.Cache {
	fetch := func(ctx context.Context, tileID, destDir string) error {
		archivePath := filepath.Join(root, tileID+".tar.xz")

		logger.Infof("Downloading files from LiDAR step for tile %s", tileID)
		start := time.Now()
		if err := client.DownloadAuthenticated(ctx, api.LidarStepURL(baseURL, tileID), archivePath); err != nil {
			return err
		}
		logger.Infof("Files from LiDAR step for tile %s downloaded in %s", tileID, time.Since(start).Round(time.Millisecond))

		logger.Infof("Decompressing files from LiDAR step for tile %s", tileID)
		start = time.Now()
		if err := archive.Decompress(archivePath, destDir); err != nil {
			return err
		}
		logger.Infof("Files from LiDAR step for tile %s decompressed in %s", tileID, time.Since(start).Round(time.Millisecond))

		// The archive is spent once decompressed.
		if err := os.Remove(archivePath); err != nil {
			logger.Warnf("Failed to remove archive %s: %v", archivePath, err)
		}

		return nil
	}

	return cache.New(root, ExtentFileName, fetch)
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer func() { _ = src.Close() }()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	if _, err := io.Copy(dest, src); err != nil {
		_ = dest.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", srcPath, destPath, err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", destPath, err)
	}

	return nil
}
