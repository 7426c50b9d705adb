// Package stats aggregates counters emitted by the other components into
// periodic read-only snapshots. Increments are lock-free so the hot paths
// never block on reporting.
package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuchain-network/hardware-miner/x/registry"
)

// Counters is the write side: one atomic counter per observed event.
// Components hold a *Counters and call the increment methods; the
// aggregator only ever reads.
type Counters struct {
	triggersObserved     atomic.Uint64
	proofsGenerated      atomic.Uint64
	proofsFailed         atomic.Uint64
	submissionsConfirmed atomic.Uint64
	submissionsAbandoned atomic.Uint64
	reconnects           atomic.Uint64
	sourceFailures       atomic.Uint64
}

func NewCounters() *Counters { return &Counters{} }

func (c *Counters) TriggerObserved()     { c.triggersObserved.Add(1) }
func (c *Counters) ProofGenerated()      { c.proofsGenerated.Add(1) }
func (c *Counters) ProofFailed()         { c.proofsFailed.Add(1) }
func (c *Counters) SubmissionConfirmed() { c.submissionsConfirmed.Add(1) }
func (c *Counters) SubmissionAbandoned() { c.submissionsAbandoned.Add(1) }
func (c *Counters) Reconnected()         { c.reconnects.Add(1) }
func (c *Counters) SourceFailed()        { c.sourceFailures.Add(1) }

// Stats is one point-in-time summary of the whole system.
type Stats struct {
	UptimeSeconds        float64 `json:"uptime_seconds"`
	TriggersObserved     uint64  `json:"triggers_observed"`
	ProofsGenerated      uint64  `json:"proofs_generated"`
	ProofsFailed         uint64  `json:"proofs_failed"`
	ProofsPerSecond      float64 `json:"proofs_per_second"`
	TotalHashPower       uint64  `json:"total_hash_power"`
	TotalWattConsumption uint64  `json:"total_watt_consumption"`
	ActiveRigCount       int     `json:"active_rig_count"`
	ConfirmedSubmissions uint64  `json:"confirmed_submissions"`
	AbandonedSubmissions uint64  `json:"abandoned_submissions"`
	Reconnects           uint64  `json:"reconnects"`
	SourceFailures       uint64  `json:"source_failures"`
}

// Aggregator derives Stats from the counters and the current registry
// snapshot. It has no write access to the rest of the system.
type Aggregator struct {
	log      zerolog.Logger
	counters *Counters
	registry *registry.Registry
	started  time.Time
	interval time.Duration
	now      func() time.Time
}

// Config configures the Aggregator.
type Config struct {
	// ReportInterval is how often the periodic reporter logs a snapshot.
	ReportInterval time.Duration `mapstructure:"report_interval" yaml:"report_interval"`
	// Now is injectable for deterministic tests. Defaults to time.Now.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{ReportInterval: 30 * time.Second}
}

// New creates an Aggregator over the given counters and registry.
func New(cfg Config, counters *Counters, reg *registry.Registry, log zerolog.Logger) *Aggregator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 30 * time.Second
	}
	return &Aggregator{
		log:      log.With().Str("component", "stats").Logger(),
		counters: counters,
		registry: reg,
		started:  cfg.Now(),
		interval: cfg.ReportInterval,
		now:      cfg.Now,
	}
}

// Snapshot computes the current Stats.
func (a *Aggregator) Snapshot() Stats {
	uptime := a.now().Sub(a.started)
	generated := a.counters.proofsGenerated.Load()

	var pps float64
	if secs := uptime.Seconds(); secs > 0 {
		pps = float64(generated) / secs
	}

	s := Stats{
		UptimeSeconds:        uptime.Seconds(),
		TriggersObserved:     a.counters.triggersObserved.Load(),
		ProofsGenerated:      generated,
		ProofsFailed:         a.counters.proofsFailed.Load(),
		ProofsPerSecond:      pps,
		ConfirmedSubmissions: a.counters.submissionsConfirmed.Load(),
		AbandonedSubmissions: a.counters.submissionsAbandoned.Load(),
		Reconnects:           a.counters.reconnects.Load(),
		SourceFailures:       a.counters.sourceFailures.Load(),
	}

	if a.registry != nil {
		for _, r := range a.registry.Snapshot().Active() {
			s.ActiveRigCount++
			s.TotalHashPower += r.HashPower
			s.TotalWattConsumption += r.WattConsumption
		}
	}
	return s
}

// Run logs a snapshot every interval until the context is canceled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := a.Snapshot()
			a.log.Info().
				Float64("uptime_seconds", s.UptimeSeconds).
				Uint64("triggers", s.TriggersObserved).
				Uint64("proofs_generated", s.ProofsGenerated).
				Uint64("proofs_failed", s.ProofsFailed).
				Float64("proofs_per_second", s.ProofsPerSecond).
				Int("active_rigs", s.ActiveRigCount).
				Uint64("total_hash_power", s.TotalHashPower).
				Uint64("total_watt_consumption", s.TotalWattConsumption).
				Uint64("confirmed_submissions", s.ConfirmedSubmissions).
				Uint64("abandoned_submissions", s.AbandonedSubmissions).
				Msg("Mining statistics")
		}
	}
}
