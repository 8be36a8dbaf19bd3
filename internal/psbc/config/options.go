// Package config assembles the PSBC daemon's runtime configuration from
// defaults, a config file, and command-line flags, in the style of the
// teacher's options/config split (internal/hivemind/options,
// internal/hivemind/config) narrowed to plain pflag + viper: the teacher's
// own cliflag.NamedFlagSets/genericapiserver wrappers around that split
// are referenced by its cmd/cmd.go but are not themselves present in the
// retrieval pack, so there is nothing to adapt them from (see DESIGN.md).
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// BridgeOptions configures the Bridge Server's HTTP surface (spec §6
// "bridge.port").
type BridgeOptions struct {
	Port int `json:"port" mapstructure:"port"`
}

func NewBridgeOptions() *BridgeOptions {
	return &BridgeOptions{Port: 60123}
}

func (o *BridgeOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Port, "bridge.port", o.Port, "TCP port the bridge HTTP/SSE server listens on.")
}

func (o *BridgeOptions) Validate() []error {
	var errs []error
	if o.Port <= 0 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("bridge.port %d out of range", o.Port))
	}
	return errs
}

// ToolServerOptions configures the Tool Client's connection to the
// external tool server process (spec §6 "toolServer.url",
// "toolServer.executablePath").
type ToolServerOptions struct {
	URL            string `json:"url" mapstructure:"url"`
	ExecutablePath string `json:"executable-path" mapstructure:"executablePath"`
}

func NewToolServerOptions() *ToolServerOptions {
	return &ToolServerOptions{URL: "http://localhost:60124"}
}

func (o *ToolServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.URL, "toolServer.url", o.URL, "Base URL of the external tool server.")
	fs.StringVar(&o.ExecutablePath, "toolServer.executablePath", o.ExecutablePath, "Path to the tool server executable, if the daemon should launch it.")
}

func (o *ToolServerOptions) Validate() []error {
	var errs []error
	if o.URL == "" {
		errs = append(errs, fmt.Errorf("toolServer.url is required"))
	}
	return errs
}

// SupervisorOptions configures the Supervisor's polling cadence and failure
// tolerance (spec §4.7, §6 "supervisor.*").
type SupervisorOptions struct {
	StartupPollMs    int `json:"startup-poll-ms" mapstructure:"startupPollMs"`
	SteadyPollMs     int `json:"steady-poll-ms" mapstructure:"steadyPollMs"`
	StartupTimeoutMs int `json:"startup-timeout-ms" mapstructure:"startupTimeoutMs"`
	FailureThreshold int `json:"failure-threshold" mapstructure:"failureThreshold"`
}

func NewSupervisorOptions() *SupervisorOptions {
	return &SupervisorOptions{
		StartupPollMs:    500,
		SteadyPollMs:     5000,
		StartupTimeoutMs: 30000,
		FailureThreshold: 3,
	}
}

func (o *SupervisorOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.StartupPollMs, "supervisor.startupPollMs", o.StartupPollMs, "Interval in milliseconds between health probes while starting up.")
	fs.IntVar(&o.SteadyPollMs, "supervisor.steadyPollMs", o.SteadyPollMs, "Interval in milliseconds between health probes once healthy.")
	fs.IntVar(&o.StartupTimeoutMs, "supervisor.startupTimeoutMs", o.StartupTimeoutMs, "Milliseconds to wait for the first successful probe before failing startup.")
	fs.IntVar(&o.FailureThreshold, "supervisor.failureThreshold", o.FailureThreshold, "Consecutive probe failures tolerated before transitioning to Error.")
}

func (o *SupervisorOptions) Validate() []error {
	var errs []error
	if o.SteadyPollMs < 1000 || o.SteadyPollMs > 30000 {
		errs = append(errs, fmt.Errorf("supervisor.steadyPollMs %d out of range [1000,30000]", o.SteadyPollMs))
	}
	if o.FailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("supervisor.failureThreshold must be >= 1"))
	}
	return errs
}

// PersistenceOptions configures the Persistence Adapter's debounced-write
// cadence (spec §4.3, §6 "persistence.debounceMs").
type PersistenceOptions struct {
	DebounceMs int `json:"debounce-ms" mapstructure:"debounceMs"`
}

func NewPersistenceOptions() *PersistenceOptions {
	return &PersistenceOptions{DebounceMs: 50}
}

func (o *PersistenceOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.DebounceMs, "persistence.debounceMs", o.DebounceMs, "Milliseconds to coalesce rapid state mutations before writing to disk.")
}

func (o *PersistenceOptions) Validate() []error {
	var errs []error
	if o.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("persistence.debounceMs must be >= 0"))
	}
	return errs
}

// Options aggregates every sub-options group the daemon needs, mirroring
// the teacher's Options struct shape (internal/hivemind/options.Options)
// one field per concern.
type Options struct {
	Bridge      *BridgeOptions      `json:"bridge" mapstructure:"bridge"`
	ToolServer  *ToolServerOptions  `json:"toolServer" mapstructure:"toolServer"`
	Supervisor  *SupervisorOptions  `json:"supervisor" mapstructure:"supervisor"`
	Persistence *PersistenceOptions `json:"persistence" mapstructure:"persistence"`
	Debug       bool                `json:"debug" mapstructure:"debug"`
}

func NewOptions() *Options {
	return &Options{
		Bridge:      NewBridgeOptions(),
		ToolServer:  NewToolServerOptions(),
		Supervisor:  NewSupervisorOptions(),
		Persistence: NewPersistenceOptions(),
	}
}

// Flags registers every sub-options group onto fs, returning fs back for
// chaining.
func (o *Options) Flags(fs *pflag.FlagSet) *pflag.FlagSet {
	o.Bridge.AddFlags(fs)
	o.ToolServer.AddFlags(fs)
	o.Supervisor.AddFlags(fs)
	o.Persistence.AddFlags(fs)
	fs.BoolVar(&o.Debug, "debug", o.Debug, "Mount pprof and enable verbose logging.")
	return fs
}

// Complete validates every sub-options group, matching the teacher's
// Options.Complete() slot (unused there; here it does the validation the
// teacher's model_options.Validate() does per-group).
func (o *Options) Complete() error {
	var errs []error
	errs = append(errs, o.Bridge.Validate()...)
	errs = append(errs, o.ToolServer.Validate()...)
	errs = append(errs, o.Supervisor.Validate()...)
	errs = append(errs, o.Persistence.Validate()...)
	if len(errs) == 0 {
		return nil
	}
	msg := "invalid configuration:"
	for _, e := range errs {
		msg += " " + e.Error() + ";"
	}
	return fmt.Errorf("%s", msg)
}
