package config

import "testing"

func TestDefaultsPassValidation(t *testing.T) {
	opts := NewOptions()
	if err := opts.Complete(); err != nil {
		t.Fatalf("defaults should validate, got %v", err)
	}
}

func TestSteadyPollMsOutOfRangeRejected(t *testing.T) {
	opts := NewOptions()
	opts.Supervisor.SteadyPollMs = 50
	if err := opts.Complete(); err == nil {
		t.Fatalf("expected validation error for out-of-range steadyPollMs")
	}
}

func TestBridgePortOutOfRangeRejected(t *testing.T) {
	opts := NewOptions()
	opts.Bridge.Port = 0
	if err := opts.Complete(); err == nil {
		t.Fatalf("expected validation error for port 0")
	}
}

func TestCreateConfigFromOptionsWrapsOptions(t *testing.T) {
	opts := NewOptions()
	cfg, err := CreateConfigFromOptions(opts)
	if err != nil {
		t.Fatalf("CreateConfigFromOptions: %v", err)
	}
	if cfg.Bridge.Port != 60123 {
		t.Fatalf("expected default port 60123, got %d", cfg.Bridge.Port)
	}
}
