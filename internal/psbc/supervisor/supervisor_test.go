package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/debrief/psbc/internal/psbc/errno"
	"github.com/debrief/psbc/pkg/errorx"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func alwaysHealthy(ctx context.Context) error { return nil }

func TestStartTransitionsToHealthy(t *testing.T) {
	s := New(Config{
		Name:               "test",
		Start:              func(ctx context.Context) error { return nil },
		Probe:              alwaysHealthy,
		StartupPollInterval: 5 * time.Millisecond,
		SteadyPollInterval:  time.Second,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.Status().State; got != StateHealthy {
		t.Fatalf("expected Healthy, got %v", got)
	}
}

func TestStartFailurePropagatesPortConflict(t *testing.T) {
	portErr := errorx.New(errno.PortConflict, "port in use", errno.PortConflictData{Port: 60123})
	s := New(Config{
		Name:  "test",
		Start: func(ctx context.Context) error { return portErr },
		Probe: alwaysHealthy,
	})

	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	appErr, ok := err.(*errorx.Error)
	if !ok || appErr.Coder.Code() != errno.CodePortConflict {
		t.Fatalf("expected PortConflict, got %v", err)
	}
	if s.Status().State != StateError {
		t.Fatalf("expected Error state, got %v", s.Status().State)
	}
}

func TestStartTimesOutWhenNeverHealthy(t *testing.T) {
	s := New(Config{
		Name:                "test",
		Start:               func(ctx context.Context) error { return nil },
		Probe:               func(ctx context.Context) error { return errors.New("not ready") },
		StartupTimeout:      20 * time.Millisecond,
		StartupPollInterval: 5 * time.Millisecond,
	})

	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	appErr, ok := err.(*errorx.Error)
	if !ok || appErr.Coder.Code() != errno.CodeHealthCheckTimeout {
		t.Fatalf("expected HealthCheckTimeout, got %v", err)
	}
}

func TestSteadyPollTransitionsToErrorAfterThreshold(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	s := New(Config{
		Name:                "test",
		Start:               func(ctx context.Context) error { return nil },
		Probe:               func(ctx context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("down")
		},
		StartupPollInterval: 5 * time.Millisecond,
		SteadyPollInterval:  time.Second,
		FailureThreshold:    2,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return s.Status().State == StateHealthy })

	healthy.Store(false)
	waitFor(t, 5*time.Second, func() bool { return s.Status().State == StateError })
	if got := s.Status().ConsecutiveFails; got < 2 {
		t.Fatalf("expected at least 2 consecutive fails recorded, got %d", got)
	}
}

func TestStopIsIdempotentAndNeverErrors(t *testing.T) {
	stopCalls := 0
	s := New(Config{
		Name:  "test",
		Start: func(ctx context.Context) error { return nil },
		Stop: func(ctx context.Context) error {
			stopCalls++
			return errors.New("stop failed, but nobody should see it")
		},
		Probe: alwaysHealthy,
	})

	_ = s.Start(context.Background())
	s.Stop(context.Background())
	s.Stop(context.Background())

	if s.Status().State != StateNotStarted {
		t.Fatalf("expected NotStarted after Stop, got %v", s.Status().State)
	}
	if stopCalls != 2 {
		t.Fatalf("expected StopFunc called twice, got %d", stopCalls)
	}
}

func TestRestartRunsStopThenStart(t *testing.T) {
	var starts, stops int
	s := New(Config{
		Name:  "test",
		Start: func(ctx context.Context) error { starts++; return nil },
		Stop:  func(ctx context.Context) error { stops++; return nil },
		Probe: alwaysHealthy,
		StartupPollInterval: 5 * time.Millisecond,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if starts != 2 || stops != 1 {
		t.Fatalf("expected 2 starts and 1 stop, got starts=%d stops=%d", starts, stops)
	}
	if s.Status().State != StateHealthy {
		t.Fatalf("expected Healthy after Restart, got %v", s.Status().State)
	}
}
