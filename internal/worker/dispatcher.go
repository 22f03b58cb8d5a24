// Package worker runs the job loop: a fixed pool of workers, each polling
// the mapant.fr API and handing every job to its step handler.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/NicoRio42/mapant-fr-worker/internal/logger"
	"github.com/NicoRio42/mapant-fr-worker/internal/types"
)

// DefaultNoJobDelay is the pause before polling again when the server has
// no job to hand out.
const DefaultNoJobDelay = 30 * time.Second

// JobSource hands out the next unit of work.
type JobSource interface {
	NextJob(ctx context.Context) (types.Job, error)
}

// LidarHandler runs LiDAR jobs.
type LidarHandler interface {
	Run(ctx context.Context, job types.LidarJob) error
}

// RenderHandler runs render jobs.
type RenderHandler interface {
	Run(ctx context.Context, job types.RenderJob) error
}

// PyramidHandler runs pyramid jobs.
type PyramidHandler interface {
	Run(ctx context.Context, job types.PyramidJob) error
}

// Dispatcher routes one decoded job to the matching step handler.
type Dispatcher struct {
	// NoJobDelay is the pause observed when the queue is empty.
	NoJobDelay time.Duration

	lidar   LidarHandler
	render  RenderHandler
	pyramid PyramidHandler
}

// NewDispatcher creates a dispatcher over the three step handlers.
func NewDispatcher(lidar LidarHandler, render RenderHandler, pyramid PyramidHandler) *Dispatcher {
	return &Dispatcher{
		NoJobDelay: DefaultNoJobDelay,
		lidar:      lidar,
		render:     render,
		pyramid:    pyramid,
	}
}

// Dispatch runs the handler matching the job kind and returns its error
// untouched. An empty queue is not an error, the call just waits out
// NoJobDelay so the caller can poll again right away.
func (d *Dispatcher) Dispatch(ctx context.Context, job types.Job) error {
	switch job.Type {
	case types.JobTypeLidar:
		logger.Infof("Handle Lidar job for tile %s", job.Lidar.TileID)
		start := time.Now()
		if err := d.lidar.Run(ctx, *job.Lidar); err != nil {
			return err
		}
		logger.Infof("Lidar job for tile %s done in %s", job.Lidar.TileID, time.Since(start).Round(time.Millisecond))
		return nil

	case types.JobTypeRender:
		logger.Infof("Handle Render job for tile %s", job.Render.TileID)
		start := time.Now()
		if err := d.render.Run(ctx, *job.Render); err != nil {
			return err
		}
		logger.Infof("Render job for tile %s done in %s", job.Render.TileID, time.Since(start).Round(time.Millisecond))
		return nil

	case types.JobTypePyramid:
		logger.Infof("Handle Pyramid job x=%d, y=%d, z=%d", job.Pyramid.X, job.Pyramid.Y, job.Pyramid.Z)
		start := time.Now()
		if err := d.pyramid.Run(ctx, *job.Pyramid); err != nil {
			return err
		}
		logger.Infof("Pyramid job x=%d, y=%d, z=%d done in %s", job.Pyramid.X, job.Pyramid.Y, job.Pyramid.Z, time.Since(start).Round(time.Millisecond))
		return nil

	case types.JobTypeNoJobLeft:
		logger.Infof("No job left, retrying in %s", d.NoJobDelay)
		sleep(ctx, d.NoJobDelay)
		return nil

	default:
		return fmt.Errorf("unhandled job type: %s", job.Type)
	}
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
