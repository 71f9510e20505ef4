// Package coalesce runs a task so that at most one invocation is in
// flight and at most one is queued. Triggers that arrive while a run
// is active collapse into the single queued run, which always starts
// after the active one finishes and therefore sees the latest state.
package coalesce

import (
	"context"
	"sync"
)

// Runner coalesces triggers of one task. Use New; the zero value is
// not usable.
type Runner struct {
	task    func(context.Context) error
	onError func(error)

	mu      sync.Mutex
	idle    chan struct{} // closed while no run is active
	running bool
	queued  bool
	closed  bool
}

// New builds a runner for task. onError receives failures of individual
// runs and may be nil.
func New(task func(context.Context) error, onError func(error)) *Runner {
	idle := make(chan struct{})
	close(idle)
	return &Runner{task: task, onError: onError, idle: idle}
}

// Trigger requests a run. If the task is idle it starts immediately;
// otherwise one follow-up run is queued, no matter how many triggers
// arrive in between. Trigger never blocks.
func (r *Runner) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.running {
		r.queued = true
		return
	}
	r.running = true
	r.idle = make(chan struct{})
	go r.loop()
}

func (r *Runner) loop() {
	for {
		if err := r.task(context.Background()); err != nil && r.onError != nil {
			r.onError(err)
		}

		r.mu.Lock()
		if !r.queued || r.closed {
			r.running = false
			close(r.idle)
			r.mu.Unlock()
			return
		}
		r.queued = false
		r.mu.Unlock()
	}
}

// Wait blocks until the runner is idle with nothing queued, or ctx is
// done. Use it to make sure the latest trigger has been flushed.
func (r *Runner) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		if !r.running && !r.queued {
			r.mu.Unlock()
			return nil
		}
		idle := r.idle
		r.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close drops any queued run, waits for the in-flight one to finish
// and makes later triggers no-ops.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.queued = false
	idle := r.idle
	r.mu.Unlock()
	<-idle
}
