package dispatcher

import "runtime"

// Config configures the proof dispatcher.
type Config struct {
	// Concurrency caps the number of simultaneous prover calls across all
	// in-flight triggers. Defaults to 4x the CPU count.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// GuardRetention is how many heights below the newest trigger the
	// dispatch guard remembers. Replays older than this window are already
	// filtered by the monitor watermark.
	GuardRetention uint64 `mapstructure:"guard_retention" yaml:"guard_retention"`
	// MetricsEnabled controls Prometheus metric registration.
	MetricsEnabled bool `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

func DefaultConfig() Config {
	return Config{
		Concurrency:    4 * runtime.GOMAXPROCS(0),
		GuardRetention: 64,
		MetricsEnabled: true,
	}
}
