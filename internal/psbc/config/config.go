package config

// Config is the completed runtime configuration handed to the daemon's
// wiring step, mirroring the teacher's one-line Config{*options.Options}
// wrapper (internal/hivemind/config.Config).
type Config struct {
	*Options
}

// CreateConfigFromOptions completes opts and wraps it as a Config.
func CreateConfigFromOptions(opts *Options) (*Config, error) {
	if err := opts.Complete(); err != nil {
		return nil, err
	}
	return &Config{opts}, nil
}
