// Package dispatcher fans one Trigger out into bounded-concurrency prover
// calls across all active rigs and streams each success to the submission
// pipeline as it completes. A (rig, height) pair is dispatched at most once,
// even when triggers replay or overlap.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuchain-network/hardware-miner/x/monitor"
	"github.com/nuchain-network/hardware-miner/x/prover"
	"github.com/nuchain-network/hardware-miner/x/registry"
	"github.com/nuchain-network/hardware-miner/x/rig"
	"github.com/nuchain-network/hardware-miner/x/stats"
)

// Sink receives successful proof results, streamed as they complete.
type Sink interface {
	Enqueue(result *prover.ProofResult)
}

// Outcome summarizes one trigger's fan-out.
type Outcome struct {
	Height     uint64
	Dispatched int
	Succeeded  int
	Failed     int
	Skipped    int
}

// Dispatcher coordinates the per-trigger fan-out.
type Dispatcher struct {
	log      zerolog.Logger
	cfg      Config
	registry *registry.Registry
	prover   prover.Client
	sink     Sink
	counters *stats.Counters
	metrics  *Metrics

	// sem is the global prover-call limit, shared by overlapping
	// fan-outs for different heights.
	sem chan struct{}

	mu sync.Mutex
	// claimed records every (rig, height) pair a prover call was issued
	// for. Claims are taken before the call, so a replayed trigger can
	// never double-dispatch. Failed attempts stay claimed for their
	// height; the rig becomes eligible again at the next height.
	claimed   map[rig.ProvenAt]struct{}
	maxHeight uint64
}

// New creates a Dispatcher.
func New(cfg Config, reg *registry.Registry, client prover.Client, sink Sink, counters *stats.Counters, log zerolog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.GuardRetention == 0 {
		cfg.GuardRetention = def.GuardRetention
	}

	d := &Dispatcher{
		log:      log.With().Str("component", "dispatcher").Logger(),
		cfg:      cfg,
		registry: reg,
		prover:   client,
		sink:     sink,
		counters: counters,
		sem:      make(chan struct{}, cfg.Concurrency),
		claimed:  make(map[rig.ProvenAt]struct{}),
	}
	if cfg.MetricsEnabled {
		d.metrics = NewMetrics()
	}
	return d
}

// Dispatch runs one round of proof generation for the trigger. It blocks
// until every issued call has completed, but successes are forwarded to the
// sink as soon as they finish, not when the round ends.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger monitor.Trigger) Outcome {
	snap := d.registry.Snapshot()
	active := snap.Active()

	out := Outcome{Height: trigger.Height}
	if len(active) == 0 {
		return out
	}

	var (
		wg        sync.WaitGroup
		resultMu  sync.Mutex
		succeeded int
		failed    int
	)

	for _, r := range active {
		if !d.claim(r.Key, trigger.Height) {
			out.Skipped++
			if d.metrics != nil {
				d.metrics.DispatchSkipped.Inc()
			}
			continue
		}
		out.Dispatched++

		wg.Add(1)
		go func(r rig.Rig) {
			defer wg.Done()

			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-d.sem }()

			if d.metrics != nil {
				d.metrics.InflightCalls.Inc()
				defer d.metrics.InflightCalls.Dec()
			}

			ok := d.prove(ctx, r, trigger.Height)
			resultMu.Lock()
			if ok {
				succeeded++
			} else {
				failed++
			}
			resultMu.Unlock()
		}(r)
	}

	if d.metrics != nil {
		d.metrics.FanoutSize.Observe(float64(out.Dispatched))
	}

	wg.Wait()
	out.Succeeded = succeeded
	out.Failed = failed

	d.prune(trigger.Height)

	d.log.Info().
		Uint64("height", trigger.Height).
		Int("dispatched", out.Dispatched).
		Int("succeeded", out.Succeeded).
		Int("failed", out.Failed).
		Int("skipped", out.Skipped).
		Msg("trigger dispatched")
	return out
}

// prove issues one prover call and forwards a success to the sink.
// Failures are counted and logged; they never affect sibling calls.
func (d *Dispatcher) prove(ctx context.Context, r rig.Rig, height uint64) bool {
	started := time.Now()
	result, err := d.prover.Prove(ctx, r, height)
	if err != nil {
		if d.counters != nil {
			d.counters.ProofFailed()
		}
		if d.metrics != nil {
			d.metrics.ProofsFailed.WithLabelValues(failureReason(err)).Inc()
		}
		d.log.Warn().
			Err(err).
			Str("rig", r.Key.String()).
			Uint64("height", height).
			Msg("proof generation failed")
		return false
	}

	if d.counters != nil {
		d.counters.ProofGenerated()
	}
	if d.metrics != nil {
		d.metrics.ProofsGenerated.Inc()
		d.metrics.GenerationTime.Observe(time.Since(started).Seconds())
	}
	d.sink.Enqueue(result)
	return true
}

// claim reserves a (rig, height) pair. Returns false if it was already
// claimed by this or an earlier dispatch.
func (d *Dispatcher) claim(key rig.Key, height uint64) bool {
	at := rig.ProvenAt{Rig: key, Height: height}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.claimed[at]; dup {
		return false
	}
	d.claimed[at] = struct{}{}
	if height > d.maxHeight {
		d.maxHeight = height
	}
	return true
}

// prune drops guard entries below the retention window so the claimed set
// stays bounded on a long-running process.
func (d *Dispatcher) prune(height uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.maxHeight < d.cfg.GuardRetention {
		return
	}
	cutoff := d.maxHeight - d.cfg.GuardRetention
	for at := range d.claimed {
		if at.Height < cutoff {
			delete(d.claimed, at)
		}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, prover.ErrTimeout):
		return "timeout"
	case errors.Is(err, prover.ErrRejected):
		return "rejected"
	case errors.Is(err, prover.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
