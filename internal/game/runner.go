package game

import (
	"context"
	"errors"
	"sync"
)

// ErrRunnerStopped is returned for work submitted to a stopped runner.
var ErrRunnerStopped = errors.New("runner stopped")

// Runner executes submitted work one item at a time on its own goroutine.
// Each match has one runner, which is what keeps a match single-threaded.
type Runner struct {
	jobs     chan func()
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRunner starts a runner with a queue of the given depth.
func NewRunner(queue int) *Runner {
	if queue < 1 {
		queue = 1
	}
	r := &Runner{
		jobs: make(chan func(), queue),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *Runner) loop() {
	defer close(r.done)
	for {
		select {
		case job := <-r.jobs:
			job()
		case <-r.stop:
			return
		}
	}
}

// Do queues fn and waits for it to finish. If ctx ends after fn was
// queued, Do returns ctx.Err() but fn still runs to completion.
func (r *Runner) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case <-r.stop:
		return ErrRunnerStopped
	default:
	}

	select {
	case r.jobs <- job:
	case <-r.stop:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-r.done:
		// Stopped with the job still queued.
		select {
		case <-finished:
			return nil
		default:
			return ErrRunnerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the runner after the job in progress. Queued jobs are
// dropped.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}
