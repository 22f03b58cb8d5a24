package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NicoRio42/mapant-fr-worker/internal/logger"
)

const (
	// DefaultPoolSize is the number of parallel workers.
	DefaultPoolSize = 3

	// DefaultRestartDelay is the pause before a worker resumes polling
	// after an error.
	DefaultRestartDelay = time.Second

	// DefaultPollPause is the pause between a finished job and the next
	// poll.
	DefaultPollPause = time.Millisecond
)

// Pool runs a fixed number of workers, each independently polling the job
// source and running jobs until the context ends. One worker's failure or
// panic never affects its siblings.
type Pool struct {
	// Size is the number of workers.
	Size int

	// RestartDelay is the pause after a failed poll or job.
	RestartDelay time.Duration

	// PollPause is the pause after a completed job.
	PollPause time.Duration

	source     JobSource
	dispatcher *Dispatcher
}

// NewPool creates a pool with the default tuning.
func NewPool(source JobSource, dispatcher *Dispatcher) *Pool {
	return &Pool{
		Size:         DefaultPoolSize,
		RestartDelay: DefaultRestartDelay,
		PollPause:    DefaultPollPause,
		source:       source,
		dispatcher:   dispatcher,
	}
}

// Run blocks until the context ends and every worker has drained.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 1; i <= p.Size; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.runWorker(ctx, n)
		}(i)
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, n int) {
	logger.Infof("Worker %d started", n)

	for {
		if ctx.Err() != nil {
			logger.Infof("Worker %d stopped", n)
			return
		}

		if err := p.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Errorf("Worker %d: %v. Restarting the loop...", n, err)
			sleep(ctx, p.RestartDelay)
			continue
		}

		sleep(ctx, p.PollPause)
	}
}

// runOnce polls for one job and dispatches it. A panic inside a handler is
// turned into an error so one bad job cannot take the worker down.
func (p *Pool) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	job, err := p.source.NextJob(ctx)
	if err != nil {
		return err
	}

	return p.dispatcher.Dispatch(ctx, job)
}
