// Package worker provides the periodic loop used for background
// maintenance tasks: log pruning, gauge refreshes, reconciliation sweeps.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Task runs at its interval until the loop's context is canceled.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Config configures a maintenance loop.
type Config struct {
	// Name identifies the loop for logging.
	Name string

	// Tasks are the periodic tasks to run. Tasks with a non-positive
	// interval are skipped.
	Tasks []Task

	// RunOnStart runs every task once before the tickers start.
	RunOnStart bool

	// Logger for the loop. Nil disables logging.
	Logger *zerolog.Logger
}

// Loop runs the configured tasks until ctx is canceled and returns the
// wrapped context error.
func Loop(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	logger.Info().Str("worker", cfg.Name).Msg("maintenance loop starting")

	defer logger.Info().Str("worker", cfg.Name).Msg("maintenance loop stopped")

	tasks := make([]Task, 0, len(cfg.Tasks))
	for _, task := range cfg.Tasks {
		if task.Interval > 0 && task.Run != nil {
			tasks = append(tasks, task)
		}
	}

	if len(tasks) == 0 {
		<-ctx.Done()

		return fmt.Errorf("maintenance loop %s: %w", cfg.Name, ctx.Err())
	}

	if cfg.RunOnStart {
		for _, task := range tasks {
			logger.Debug().Str("task", task.Name).Msg("running initial task")
			task.Run(ctx)
		}
	}

	tickers := make([]*time.Ticker, len(tasks))
	cases := make([]<-chan time.Time, len(tasks))

	for i, task := range tasks {
		tickers[i] = time.NewTicker(task.Interval)
		cases[i] = tickers[i].C
	}

	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// A short sweep interval keeps the select simple with a variable
	// number of tasks.
	sweep := time.NewTicker(100 * time.Millisecond)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("maintenance loop %s: %w", cfg.Name, ctx.Err())
		case <-sweep.C:
			for i, task := range tasks {
				select {
				case <-cases[i]:
					logger.Debug().Str("task", task.Name).Msg("running periodic task")
					task.Run(ctx)
				default:
				}
			}
		}
	}
}

// Wait blocks until d elapses or ctx is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
