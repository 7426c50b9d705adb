package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nuchain-network/hardware-miner/internal/miner"
	"github.com/nuchain-network/hardware-miner/x/registry"
)

// Config holds the complete application configuration
type Config struct {
	Miner   miner.Config    `mapstructure:"miner"   yaml:"miner"`
	API     APIServerConfig `mapstructure:"api"     yaml:"api"`
	Metrics MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig       `mapstructure:"log"     yaml:"log"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fallback env aliases for the secrets that never belong in the file
	if strings.TrimSpace(cfg.Miner.Prover.APIKey) == "" {
		if val := strings.TrimSpace(os.Getenv("PROVER_API_KEY")); val != "" {
			cfg.Miner.Prover.APIKey = val
		}
	}
	if strings.TrimSpace(cfg.Miner.Submitter.RelayerAddress) == "" {
		if val := strings.TrimSpace(os.Getenv("RELAYER_ADDRESS")); val != "" {
			cfg.Miner.Submitter.RelayerAddress = val
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("miner.registry.refresh_interval", "5m")
	v.SetDefault("miner.sources", []map[string]string{})

	v.SetDefault("miner.monitor.endpoint", "")
	v.SetDefault("miner.monitor.query", "tm.event = 'NewBlock'")
	v.SetDefault("miner.monitor.backoff_base", "1s")
	v.SetDefault("miner.monitor.backoff_cap", "30s")
	v.SetDefault("miner.monitor.handshake_timeout", "10s")
	v.SetDefault("miner.monitor.buffer", 16)

	v.SetDefault("miner.prover.base_url", "")
	v.SetDefault("miner.prover.hardware_id", "nvidia-a100")
	v.SetDefault("miner.prover.call_timeout", "30s")

	v.SetDefault("miner.dispatch.concurrency", 0) // 0 = derived from GOMAXPROCS
	v.SetDefault("miner.dispatch.guard_retention", 64)
	v.SetDefault("miner.dispatch.metrics_enabled", true)

	v.SetDefault("miner.submitter.max_attempts", 5)
	v.SetDefault("miner.submitter.backoff_base", "500ms")
	v.SetDefault("miner.submitter.backoff_cap", "10s")
	v.SetDefault("miner.submitter.queue_depth", 64)

	v.SetDefault("miner.stats.report_interval", "30s")
	v.SetDefault("miner.ledger_rpc", "")

	// API defaults (separate HTTP API server)
	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	if err := c.validateSubmitter(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSources() error {
	if len(c.Miner.Sources) == 0 {
		return fmt.Errorf("miner.sources must list at least one oracle contract")
	}
	seen := make(map[string]bool, len(c.Miner.Sources))
	for i, src := range c.Miner.Sources {
		if strings.TrimSpace(src.Chain) == "" {
			return fmt.Errorf("miner.sources[%d].chain is empty", i)
		}
		if seen[src.Chain] {
			return fmt.Errorf("miner.sources has duplicate chain %q", src.Chain)
		}
		seen[src.Chain] = true
		if strings.TrimSpace(src.RPC) == "" {
			return fmt.Errorf("miner.sources[%s].rpc is required", src.Chain)
		}
		if strings.TrimSpace(src.Contract) == "" {
			return fmt.Errorf("miner.sources[%s].contract is required", src.Chain)
		}
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	if strings.TrimSpace(c.Miner.Monitor.Endpoint) == "" {
		return fmt.Errorf("miner.monitor.endpoint is required")
	}
	if strings.TrimSpace(c.Miner.Prover.BaseURL) == "" {
		return fmt.Errorf("miner.prover.base_url is required")
	}
	if strings.TrimSpace(c.Miner.LedgerRPC) == "" {
		return fmt.Errorf("miner.ledger_rpc is required")
	}
	return nil
}

func (c *Config) validateSubmitter() error {
	if strings.TrimSpace(c.Miner.Submitter.RelayerAddress) == "" {
		return fmt.Errorf("miner.submitter.relayer_address is required (or set RELAYER_ADDRESS)")
	}
	if c.Miner.Submitter.MaxAttempts <= 0 {
		return fmt.Errorf("miner.submitter.max_attempts must be positive")
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Miner: miner.Config{
			Registry: registry.Config{RefreshInterval: 5 * time.Minute},
		},
		API: APIServerConfig{
			ListenAddr:        ":8081",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
