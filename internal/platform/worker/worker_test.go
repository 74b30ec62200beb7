package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoop_RunsTasksUntilCanceled(t *testing.T) {
	var runs atomic.Int64

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- Loop(ctx, Config{
			Name: "test",
			Tasks: []Task{{
				Name:     "count",
				Interval: 10 * time.Millisecond,
				Run:      func(context.Context) { runs.Add(1) },
			}},
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Loop() error = %v, want context.Canceled", err)
	}

	if runs.Load() < 2 {
		t.Errorf("task ran %d times, want at least 2", runs.Load())
	}
}

func TestLoop_RunOnStart(t *testing.T) {
	var runs atomic.Int64

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- Loop(ctx, Config{
			Name:       "test",
			RunOnStart: true,
			Tasks: []Task{{
				Name:     "count",
				Interval: time.Hour,
				Run:      func(context.Context) { runs.Add(1) },
			}},
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done

	if runs.Load() != 1 {
		t.Errorf("task ran %d times, want exactly the initial run", runs.Load())
	}
}

func TestWait_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestWait_ZeroDuration(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait(0) error = %v", err)
	}
}
