package submitter

import "time"

// Config configures the submission pipeline.
type Config struct {
	// RelayerAddress is this process's account on the target ledger,
	// recorded as the message creator.
	RelayerAddress string `mapstructure:"relayer_address" yaml:"relayer_address"`
	// MaxAttempts bounds broadcasts per (rig, height); once exhausted the
	// record is abandoned.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`
	// BackoffBase is the delay before the second attempt; it doubles per
	// retry up to BackoffCap.
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"  yaml:"backoff_cap"`
	// QueueDepth is the per-rig queue capacity.
	QueueDepth int `mapstructure:"queue_depth" yaml:"queue_depth"`
	// RecordRetention is how many heights below the newest enqueued trigger
	// settled submission records stay queryable before they are pruned.
	// Pending records are never pruned.
	RecordRetention uint64 `mapstructure:"record_retention" yaml:"record_retention"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		BackoffBase:     500 * time.Millisecond,
		BackoffCap:      10 * time.Second,
		QueueDepth:      64,
		RecordRetention: 1024,
	}
}
