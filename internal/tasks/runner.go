// Package tasks runs side effects that must not hold up or fail the request
// that triggered them: notification fanout, alert delivery and the like.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultTimeout bounds a task when the runner is built with a zero timeout.
const DefaultTimeout = 10 * time.Second

// Runner starts tasks in their own goroutines. Each task gets a context that
// is detached from the caller's cancellation and bounded by the runner's
// timeout. Errors are logged and panics recovered; neither reaches the caller.
type Runner struct {
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Go runs fn in the background. Values carried by parent (request id, actor)
// stay visible to fn; its deadline and cancellation do not. After Close, Go
// runs nothing and returns false.
func (r *Runner) Go(parent context.Context, name string, fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		slog.Warn("task dropped, runner closed", "task", name)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.timeout)
		defer cancel()

		start := time.Now()
		err := r.run(ctx, fn)
		if err != nil {
			slog.Error("task failed", "task", name, "error", err, "duration", time.Since(start))
			return
		}
		slog.Debug("task done", "task", name, "duration", time.Since(start))
	}()
	return true
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops accepting tasks and waits for running ones, or for ctx.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}
