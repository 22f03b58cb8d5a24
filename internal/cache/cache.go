// Package cache maintains the on-disk store of fetched tile step results.
// Several workers, possibly in different processes sharing the same
// directory, can ask for the same tile at once; exactly one of them fetches
// while the others wait for the result.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danjacques/gofslock/fslock"
	"golang.org/x/sync/singleflight"

	"github.com/NicoRio42/mapant-fr-worker/internal/logger"
)

const (
	// DefaultRetryDelay is the pause between two checks on a tile that
	// another claimant is currently fetching.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultMaxAttempts bounds how long a worker waits on another claimant
	// before giving up on the tile.
	DefaultMaxAttempts = 600
)

// FetchFunc populates destDir with the files of a tile. The marker file must
// exist inside destDir when it returns successfully.
type FetchFunc func(ctx context.Context, tileID, destDir string) error

// Cache hands out per-tile directories under a common root. A directory is
// complete exactly when it holds the marker file; a directory without the
// marker is a leftover from an interrupted fetch and gets cleaned up.
type Cache struct {
	root        string
	marker      string
	fetch       FetchFunc
	retryDelay  time.Duration
	maxAttempts int

	group singleflight.Group
}

// New creates a cache rooted at root. The marker is the name of the file
// whose presence inside a tile directory marks it as complete.
func New(root, marker string, fetch FetchFunc) *Cache {
	return &Cache{
		root:        root,
		marker:      marker,
		fetch:       fetch,
		retryDelay:  DefaultRetryDelay,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Ensure returns the directory holding the files of tileID, fetching them
// first if no complete copy is on disk. Concurrent calls for the same tile
// share a single fetch.
func (c *Cache) Ensure(ctx context.Context, tileID string) (string, error) {
	dir := filepath.Join(c.root, tileID)

	_, err, _ := c.group.Do(tileID, func() (interface{}, error) {
		return nil, c.ensure(ctx, tileID, dir)
	})
	if err != nil {
		return "", err
	}

	return dir, nil
}

func (c *Cache) ensure(ctx context.Context, tileID, dir string) error {
	markerPath := filepath.Join(dir, c.marker)

	// Fast path: a previous run fully populated the directory.
	if _, err := os.Stat(markerPath); err == nil {
		logger.Infof("Files for tile %s already on disk", tileID)
		return nil
	}

	if err := os.MkdirAll(c.root, 0o750); err != nil {
		return fmt.Errorf("failed to create cache root %s: %w", c.root, err)
	}

	lockPath := filepath.Join(c.root, tileID+".lock")

	// Whoever takes the lock first does the fetch. Later claimants keep
	// retrying until they find the marker left behind by the winner. The
	// lock file itself stays on disk, only holding it means anything.
	for attempt := 1; ; attempt++ {
		err := fslock.With(lockPath, func() error {
			return c.populateLocked(ctx, tileID, dir, markerPath)
		})
		switch err {
		case nil:
			return nil

		case fslock.ErrLockHeld:
			if attempt >= c.maxAttempts {
				return fmt.Errorf("gave up waiting for tile %s after %d attempts: %w", tileID, attempt, err)
			}
			logger.Infof("Files for tile %s are being fetched by another worker, retrying in %s", tileID, c.retryDelay)
			if err := sleep(ctx, c.retryDelay); err != nil {
				return err
			}

		default:
			return fmt.Errorf("failed to populate cache for tile %s: %w", tileID, err)
		}
	}
}

func (c *Cache) populateLocked(ctx context.Context, tileID, dir, markerPath string) error {
	// Another claimant may have finished while we waited on the lock.
	if _, err := os.Stat(markerPath); err == nil {
		return nil
	}

	// A directory without a marker is a partial copy left by an interrupted
	// fetch. Clear it and start over.
	if _, err := os.Stat(dir); err == nil {
		logger.Warnf("Removing incomplete files for tile %s", tileID)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove incomplete directory %s: %w", dir, err)
		}
	}

	if err := c.fetch(ctx, tileID, dir); err != nil {
		return err
	}

	if _, err := os.Stat(markerPath); err != nil {
		return fmt.Errorf("fetch for tile %s did not produce %s", tileID, c.marker)
	}

	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
