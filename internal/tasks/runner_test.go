package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_DetachesFromCaller(t *testing.T) {
	r := NewRunner(time.Second)

	parent, cancel := context.WithCancel(context.Background())
	var ctxErr atomic.Value

	started := make(chan struct{})
	r.Go(parent, "detached", func(ctx context.Context) error {
		<-started
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
		return nil
	})
	cancel()
	close(started)
	r.Wait()

	if v := ctxErr.Load(); v != nil {
		t.Fatalf("task saw caller cancellation: %v", v)
	}
}

func TestRunner_Timeout(t *testing.T) {
	r := NewRunner(20 * time.Millisecond)

	var got atomic.Value
	r.Go(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		got.Store(ctx.Err())
		return ctx.Err()
	})
	r.Wait()

	err, _ := got.Load().(error)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestRunner_RecoversPanic(t *testing.T) {
	r := NewRunner(time.Second)

	var after atomic.Bool
	r.Go(context.Background(), "panics", func(ctx context.Context) error {
		panic("boom")
	})
	r.Go(context.Background(), "survives", func(ctx context.Context) error {
		after.Store(true)
		return nil
	})
	r.Wait()

	if !after.Load() {
		t.Fatal("second task did not run")
	}
}

func TestRunner_CloseRejectsNewTasks(t *testing.T) {
	r := NewRunner(time.Second)

	release := make(chan struct{})
	r.Go(context.Background(), "running", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := r.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close with running task: err = %v, want DeadlineExceeded", err)
	}

	if r.Go(context.Background(), "late", func(ctx context.Context) error { return nil }) {
		t.Error("Go accepted a task after Close")
	}

	close(release)
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
