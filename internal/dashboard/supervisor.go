package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle phase of the supervised relay loop.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateFailed   State = "failed"
)

// ErrAlreadyRunning is returned by Start when the loop is active.
var ErrAlreadyRunning = errors.New("relay already running")

// ErrNotRunning is returned by Stop when there is nothing to stop.
var ErrNotRunning = errors.New("relay not running")

// RunFunc is the supervised loop. It must return only after in-flight
// work has drained following ctx cancellation.
type RunFunc func(ctx context.Context) error

// Supervisor owns the relay loop lifecycle on behalf of the dashboard
// control endpoint. A failed loop keeps its error until the next start.
type Supervisor struct {
	run    RunFunc
	logger *zerolog.Logger

	mu      sync.Mutex
	state   State
	lastErr error
	since   time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSupervisor(run RunFunc, logger *zerolog.Logger) *Supervisor {
	return &Supervisor{
		run:    run,
		logger: logger,
		state:  StateStopped,
		since:  time.Now().UTC(),
	}
}

// Start launches the relay loop. Restarting after a failure clears the
// retained error.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStarting || s.state == StateRunning || s.state == StateDraining {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.state = StateStarting
	s.lastErr = nil
	s.since = time.Now().UTC()
	s.cancel = cancel
	s.done = done

	go s.supervise(runCtx, done)

	return nil
}

func (s *Supervisor) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.markRunning()
	s.logger.Info().Msg("relay loop started")

	err := s.run(ctx)

	if err != nil && !errors.Is(err, context.Canceled) {
		s.transition(StateFailed, err)
		s.logger.Error().Err(err).Msg("relay loop failed")

		return
	}

	s.transition(StateStopped, nil)
	s.logger.Info().Msg("relay loop stopped")
}

// Stop cancels the loop and waits for the drain to finish.
func (s *Supervisor) Stop() error {
	s.mu.Lock()

	if s.state != StateStarting && s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}

	s.state = StateDraining
	s.since = time.Now().UTC()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	return nil
}

// Restart stops the loop if it is running and starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return fmt.Errorf("restart: %w", err)
	}

	return s.Start(ctx)
}

// markRunning moves Starting to Running. Stop may have set Draining before
// the loop got scheduled; that drain is left to reach its terminal state.
func (s *Supervisor) markRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStarting {
		return
	}

	s.state = StateRunning
	s.since = time.Now().UTC()
}

// transition records the loop's terminal state. It overrides Draining.
func (s *Supervisor) transition(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	s.lastErr = err
	s.since = time.Now().UTC()
}

// Status reports the current state, when it was entered, and the retained
// failure if any.
func (s *Supervisor) Status() (State, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state, s.since, s.lastErr
}
