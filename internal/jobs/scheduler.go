// Package jobs runs periodic maintenance: releasing lapsed claims, pickup
// reminders, expiry alerts, notification retention and geo index refresh.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Func is one run of a job. It returns how many items it handled.
type Func func(ctx context.Context, now time.Time) (int, error)

type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      Func
}

// Scheduler runs each job on its own ticker, so a slow job delays only its
// own next run.
type Scheduler struct {
	jobs  []Job
	clock func() time.Time
	wg    sync.WaitGroup
}

func NewScheduler(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:  jobs,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// Start launches every job and returns immediately. Jobs stop when ctx is
// cancelled; Wait blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			slog.Warn("job disabled, no interval", "job", job.Name)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOne(ctx, job)
		}
	}
}

// RunOnce runs every job a single time, in order, and returns the first error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var firstErr error
	for _, job := range s.jobs {
		if err := s.runOne(ctx, job); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", job.Name, err)
		}
	}
	return firstErr
}

func (s *Scheduler) runOne(ctx context.Context, job Job) (err error) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			slog.Error("job panicked", "job", job.Name, "panic", p, "stack", string(debug.Stack()))
		}
	}()

	n, err := job.Run(ctx, s.clock())
	if err != nil {
		slog.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(start))
		return err
	}
	if n > 0 {
		slog.Info("job done", "job", job.Name, "items", n, "duration", time.Since(start))
	}
	return nil
}
