// Package miner wires the mining components together: registry refresh,
// event monitoring, proof dispatch, and submission. It owns the single
// dispatch loop that consumes triggers in order, so per-rig submissions are
// always enqueued in ascending height order.
package miner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuchain-network/hardware-miner/x/dispatcher"
	"github.com/nuchain-network/hardware-miner/x/monitor"
	"github.com/nuchain-network/hardware-miner/x/prover"
	"github.com/nuchain-network/hardware-miner/x/registry"
	"github.com/nuchain-network/hardware-miner/x/rig"
	"github.com/nuchain-network/hardware-miner/x/stats"
	"github.com/nuchain-network/hardware-miner/x/submitter"
)

// Config aggregates the component configurations.
type Config struct {
	Registry  registry.Config         `mapstructure:"registry"  yaml:"registry"`
	Sources   []registry.SourceConfig `mapstructure:"sources"   yaml:"sources"`
	Monitor   monitor.Config          `mapstructure:"monitor"   yaml:"monitor"`
	Prover    prover.Config           `mapstructure:"prover"    yaml:"prover"`
	Dispatch  dispatcher.Config       `mapstructure:"dispatch"  yaml:"dispatch"`
	Submitter submitter.Config        `mapstructure:"submitter" yaml:"submitter"`
	Stats     stats.Config            `mapstructure:"stats"     yaml:"stats"`
	// LedgerRPC is the target ledger's JSON-RPC endpoint transactions are
	// broadcast to.
	LedgerRPC string `mapstructure:"ledger_rpc" yaml:"ledger_rpc"`
}

// Option overrides a default component, mainly for tests and local runs.
type Option func(*Miner)

// WithProver replaces the HTTP prover client.
func WithProver(c prover.Client) Option {
	return func(m *Miner) { m.prover = c }
}

// WithBroadcaster replaces the JSON-RPC ledger broadcaster.
func WithBroadcaster(b submitter.Broadcaster) Option {
	return func(m *Miner) { m.broadcaster = b }
}

// WithSources replaces the contract-backed rig sources.
func WithSources(sources ...registry.Source) Option {
	return func(m *Miner) { m.sources = sources }
}

// WithDialer replaces the WebSocket event stream dialer.
func WithDialer(d monitor.Dialer) Option {
	return func(m *Miner) { m.dialer = d }
}

// Miner is the top-level coordinator.
type Miner struct {
	log zerolog.Logger
	cfg Config

	counters *stats.Counters
	stats    *stats.Aggregator

	sources     []registry.Source
	registry    *registry.Registry
	monitor     *monitor.Monitor
	prover      prover.Client
	dispatcher  *dispatcher.Dispatcher
	broadcaster submitter.Broadcaster
	pipeline    *submitter.Pipeline

	dialer monitor.Dialer

	mu      sync.Mutex
	started bool
	startAt time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a Miner from the config. Options may pre-install components;
// anything not provided is constructed from cfg.
func New(cfg Config, log zerolog.Logger, opts ...Option) (*Miner, error) {
	m := &Miner{
		log:      log.With().Str("component", "miner").Logger(),
		cfg:      cfg,
		counters: stats.NewCounters(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.sources == nil {
		for _, sc := range cfg.Sources {
			src, err := registry.NewContractSource(sc, log)
			if err != nil {
				return nil, fmt.Errorf("rig source %s: %w", sc.Chain, err)
			}
			m.sources = append(m.sources, src)
		}
	}
	if len(m.sources) == 0 {
		return nil, errors.New("at least one rig source is required")
	}

	if m.prover == nil {
		pc, err := prover.NewHTTPClient(cfg.Prover, nil, log)
		if err != nil {
			return nil, fmt.Errorf("prover client: %w", err)
		}
		m.prover = pc
	}

	if m.broadcaster == nil {
		b, err := submitter.NewRPCBroadcaster(cfg.LedgerRPC, &http.Client{Timeout: 15 * time.Second}, log)
		if err != nil {
			return nil, fmt.Errorf("ledger broadcaster: %w", err)
		}
		m.broadcaster = b
	}

	m.registry = registry.New(cfg.Registry, m.sources, log)
	m.registry.SetSourceFailureHook(func(string) { m.counters.SourceFailed() })

	m.monitor = monitor.New(cfg.Monitor, m.dialer, log)
	m.monitor.SetReconnectHook(m.counters.Reconnected)

	m.pipeline = submitter.New(cfg.Submitter, m.broadcaster, m.counters, log)
	m.dispatcher = dispatcher.New(cfg.Dispatch, m.registry, m.prover, m.pipeline, m.counters, log)
	m.stats = stats.New(cfg.Stats, m.counters, m.registry, log)

	return m, nil
}

// Start launches the background loops. The first registry refresh runs
// synchronously so the dispatch loop never starts against an empty fleet.
func (m *Miner) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("miner already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = true
	m.startAt = time.Now()

	if err := m.registry.Refresh(runCtx); err != nil {
		m.log.Warn().Err(err).Msg("initial rig refresh failed, starting with empty registry")
	}

	if err := m.pipeline.Start(runCtx); err != nil {
		cancel()
		m.started = false
		return fmt.Errorf("start submission pipeline: %w", err)
	}

	m.wg.Add(3)
	go func() {
		defer m.wg.Done()
		m.registry.Run(runCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.monitor.Run(runCtx)
	}()
	go func() {
		defer m.wg.Done()
		m.stats.Run(runCtx)
	}()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatchLoop(runCtx)
	}()

	m.log.Info().
		Int("sources", len(m.sources)).
		Str("event_endpoint", m.cfg.Monitor.Endpoint).
		Str("ledger_rpc", m.cfg.LedgerRPC).
		Msg("miner started")
	return nil
}

// Stop cancels the loops and drains the pipeline within the ctx deadline.
func (m *Miner) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("miner shutdown: %w", ctx.Err())
	}

	if err := m.pipeline.Stop(ctx); err != nil {
		return err
	}

	m.log.Info().Msg("miner stopped")
	return nil
}

// dispatchLoop is the single trigger consumer. Rounds are processed one at a
// time, which is what keeps per-rig submission order aligned with height
// order end to end.
func (m *Miner) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-m.monitor.Triggers():
			m.counters.TriggerObserved()
			m.dispatcher.Dispatch(ctx, trigger)
		}
	}
}

// Stats returns the current aggregated snapshot.
func (m *Miner) Stats() stats.Stats { return m.stats.Snapshot() }

// Ready reports whether the miner can do useful work: it needs at least one
// active rig to dispatch proofs for.
func (m *Miner) Ready() bool {
	return len(m.registry.Snapshot().Active()) > 0
}

// SubmissionRecord exposes the pipeline's record for one (rig, height) pair.
func (m *Miner) SubmissionRecord(at rig.ProvenAt) (submitter.SubmissionRecord, bool) {
	return m.pipeline.Record(at)
}

// GetStats returns the snapshot as a loosely typed map for the stats API.
func (m *Miner) GetStats() map[string]interface{} {
	s := m.stats.Snapshot()
	return map[string]interface{}{
		"uptime_seconds":         s.UptimeSeconds,
		"triggers_observed":      s.TriggersObserved,
		"proofs_generated":       s.ProofsGenerated,
		"proofs_failed":          s.ProofsFailed,
		"proofs_per_second":      s.ProofsPerSecond,
		"total_hash_power":       s.TotalHashPower,
		"total_watt_consumption": s.TotalWattConsumption,
		"active_rig_count":       s.ActiveRigCount,
		"confirmed_submissions":  s.ConfirmedSubmissions,
		"abandoned_submissions":  s.AbandonedSubmissions,
		"reconnects":             s.Reconnects,
		"source_failures":        s.SourceFailures,
	}
}
