package monitor

import "time"

// Config configures the event monitor.
type Config struct {
	// Endpoint is the source ledger's WebSocket RPC endpoint
	// (e.g. ws://localhost:26657/websocket).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// Query is the subscription query issued on every (re)connect.
	Query string `mapstructure:"query" yaml:"query"`
	// BackoffBase is the first reconnect delay; each consecutive failure
	// doubles it up to BackoffCap.
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"  yaml:"backoff_cap"`
	// HandshakeTimeout bounds the WebSocket dial and subscribe exchange.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	// Buffer is the trigger channel capacity.
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

func DefaultConfig() Config {
	return Config{
		Query:            "tm.event = 'NewBlock'",
		BackoffBase:      time.Second,
		BackoffCap:       30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Buffer:           16,
	}
}
