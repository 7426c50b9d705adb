package registry

import "time"

// Config configures the registry refresh loop.
type Config struct {
	// RefreshInterval is how often the registry re-resolves rigs from all
	// sources. Zero disables the periodic loop (refresh on demand only).
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
}

func DefaultConfig() Config {
	return Config{RefreshInterval: 5 * time.Minute}
}

// SourceConfig describes one EVM oracle contract to load rigs from.
type SourceConfig struct {
	Chain    string `mapstructure:"chain"    yaml:"chain"`
	RPC      string `mapstructure:"rpc"      yaml:"rpc"`
	Contract string `mapstructure:"contract" yaml:"contract"`
}
