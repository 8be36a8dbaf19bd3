// Package supervisor implements C8: a per-subprocess lifecycle state
// machine (NotStarted -> Starting -> Healthy <-> Error), health polling,
// and the single user-visible status surface described in spec §4.7.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
	"github.com/debrief/psbc/pkg/logger"
)

const logModule = "supervisor"

// State is the closed set of Supervisor states (spec §4.7 diagram).
type State string

const (
	StateNotStarted State = "NotStarted"
	StateStarting   State = "Starting"
	StateHealthy    State = "Healthy"
	StateError      State = "Error"
)

// Probe checks subprocess health, returning nil when healthy. It must
// respect ctx cancellation; an aborted probe (ctx.Err() != nil) is not
// counted as a health failure (spec §5 Cancellation & timeouts).
type Probe func(ctx context.Context) error

// StartFunc launches the subprocess. A non-nil, typed *errorx.Error with
// errno.PortConflict propagates the port-conflict classification through
// unchanged; any other error is wrapped as Internal.
type StartFunc func(ctx context.Context) error

// StopFunc stops the subprocess. It must never panic; Supervisor.Stop
// logs but does not propagate StopFunc errors (spec §4.7: "idempotent;
// never throws; logs failures").
type StopFunc func(ctx context.Context) error

// Config parameterizes one Supervisor instance (spec §4.7 Parameters).
type Config struct {
	Name               string
	Start              StartFunc
	Stop               StopFunc
	Probe              Probe
	StartupTimeout     time.Duration // default 30s
	StartupPollInterval time.Duration // default 500ms, must be <= 500ms
	SteadyPollInterval time.Duration // default 5s, valid range 1-30s
	FailureThreshold   int           // default 3
}

func (c *Config) applyDefaults() {
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 30 * time.Second
	}
	if c.StartupPollInterval <= 0 || c.StartupPollInterval > 500*time.Millisecond {
		c.StartupPollInterval = 500 * time.Millisecond
	}
	if c.SteadyPollInterval < time.Second || c.SteadyPollInterval > 30*time.Second {
		c.SteadyPollInterval = 5 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
}

// Status is the user-visible status surface (spec §4.7: "icon + colour +
// tooltip + contextual menu").
type Status struct {
	State            State
	Tooltip          string
	ConsecutiveFails int
	LastError        error
}

// Supervisor is C8. Grounded on the teacher's RunStateMachine (named
// transition methods, one log line per transition), generalized from a
// one-shot run lifecycle to a restartable subprocess with health polling.
type Supervisor struct {
	cfg Config

	mu        sync.Mutex
	state     State
	fails     int
	lastErr   error
	pollCancel context.CancelFunc
	generation uint64
}

// New constructs a Supervisor in NotStarted. No auto-start occurs (spec
// §4.7: "no auto-start is permitted on extension activation").
func New(cfg Config) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{cfg: cfg, state: StateNotStarted}
}

// Status returns a snapshot of the current status surface.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:            s.state,
		Tooltip:          s.tooltipLocked(),
		ConsecutiveFails: s.fails,
		LastError:        s.lastErr,
	}
}

func (s *Supervisor) tooltipLocked() string {
	switch s.state {
	case StateNotStarted:
		return fmt.Sprintf("%s: not started", s.cfg.Name)
	case StateStarting:
		return fmt.Sprintf("%s: starting…", s.cfg.Name)
	case StateHealthy:
		return fmt.Sprintf("%s: healthy", s.cfg.Name)
	case StateError:
		if s.lastErr != nil {
			return fmt.Sprintf("%s: error — %v", s.cfg.Name, s.lastErr)
		}
		return fmt.Sprintf("%s: error", s.cfg.Name)
	default:
		return s.cfg.Name
	}
}

// transition moves to next, logging exactly once per change.
func (s *Supervisor) transition(next State) {
	prev := s.state
	s.state = next
	if prev != next {
		logger.InfoX(logModule, "state transition", "name", s.cfg.Name, "from", prev, "to", next)
	}
}

// Start runs the configured StartFunc, then polls health rapidly until
// Healthy or StartupTimeout elapses (spec §4.7 start()).
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateHealthy || s.state == StateStarting {
		s.mu.Unlock()
		return nil
	}
	s.transition(StateStarting)
	s.fails = 0
	s.lastErr = nil
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	if err := s.cfg.Start(ctx); err != nil {
		return s.handleStartError(err)
	}

	startupCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	ticker := time.NewTicker(s.cfg.StartupPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-startupCtx.Done():
			return s.handleStartupTimeout(generation)
		case <-ticker.C:
			probeCtx, probeCancel := context.WithTimeout(startupCtx, s.cfg.StartupPollInterval)
			err := s.cfg.Probe(probeCtx)
			probeCancel()
			if err == nil {
				s.mu.Lock()
				if s.generation == generation {
					s.transition(StateHealthy)
					s.fails = 0
				}
				s.mu.Unlock()
				go s.steadyPoll(generation)
				return nil
			}
			if probeCtx.Err() != nil {
				continue // aborted probe, not a failure
			}
		}
	}
}

func (s *Supervisor) handleStartError(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appErr, ok := err.(*errorx.Error); ok && appErr.Coder.Code() == errno.CodePortConflict {
		s.lastErr = appErr
		s.transition(StateError)
		return appErr
	}
	wrapped := errorx.New(errno.Internal, err.Error(), nil)
	s.lastErr = wrapped
	s.transition(StateError)
	return wrapped
}

func (s *Supervisor) handleStartupTimeout(generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return nil // superseded by a newer Start/Stop
	}
	err := errorx.New(errno.HealthCheckTimeout, fmt.Sprintf("%s did not become healthy within %s", s.cfg.Name, s.cfg.StartupTimeout), nil)
	s.lastErr = err
	s.transition(StateError)
	return err
}

// steadyPoll runs steady-state health polling while generation remains
// current, transitioning Healthy -> Error after FailureThreshold
// consecutive failures.
func (s *Supervisor) steadyPoll(generation uint64) {
	pollCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.pollCancel = cancel
	s.mu.Unlock()
	defer cancel()

	ticker := time.NewTicker(s.cfg.SteadyPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.generation != generation || s.state != StateHealthy {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()

			probeCtx, probeCancel := context.WithTimeout(pollCtx, s.cfg.SteadyPollInterval)
			err := s.cfg.Probe(probeCtx)
			aborted := probeCtx.Err() != nil
			probeCancel()
			if aborted {
				continue
			}

			s.mu.Lock()
			if s.generation != generation {
				s.mu.Unlock()
				return
			}
			if err == nil {
				s.fails = 0
			} else {
				s.fails++
				logger.WarnX(logModule, "health probe failed", "name", s.cfg.Name, "consecutive", s.fails, "error", err)
				if s.fails >= s.cfg.FailureThreshold {
					s.lastErr = errorx.New(errno.ToolServerUnavailable, err.Error(), nil)
					s.transition(StateError)
					s.mu.Unlock()
					return
				}
			}
			s.mu.Unlock()
		}
	}
}

// Stop runs the configured StopFunc; idempotent, never propagates a
// StopFunc error (spec §4.7 stop()).
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	s.transition(StateNotStarted)
	s.fails = 0
	s.lastErr = nil
	s.mu.Unlock()

	if s.cfg.Stop == nil {
		return
	}
	if err := s.cfg.Stop(ctx); err != nil {
		logger.WarnX(logModule, "stop callback failed", "name", s.cfg.Name, "error", err)
	}
}

// Restart stops then starts (spec §4.7 restart(): "either a
// caller-supplied restart or a stop-then-start" — this Supervisor always
// does the latter; callers wanting a custom restart compose Stop/Start
// themselves).
func (s *Supervisor) Restart(ctx context.Context) error {
	s.Stop(ctx)
	return s.Start(ctx)
}
