// Package submitter is the at-least-once submission pipeline. It serializes
// proof results into ledger transactions, submits them with bounded retry,
// and tracks a SubmissionRecord per (rig, height). Submissions for one rig
// are attempted in arrival (height) order through a per-rig queue; rigs
// never block each other.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuchain-network/hardware-miner/x/prover"
	"github.com/nuchain-network/hardware-miner/x/rig"
	"github.com/nuchain-network/hardware-miner/x/stats"
)

// Pipeline accepts proof results from concurrent producers and submits them
// to the target ledger.
type Pipeline struct {
	log         zerolog.Logger
	cfg         Config
	broadcaster Broadcaster
	counters    *stats.Counters

	onAbandoned func(at rig.ProvenAt, rec SubmissionRecord)

	mu      sync.Mutex
	queues  map[rig.Key]chan *prover.ProofResult
	records map[rig.ProvenAt]*SubmissionRecord
	// maxHeight is the highest height ever enqueued; settled records below
	// (maxHeight - RecordRetention) are pruned so the map stays bounded.
	maxHeight uint64

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a Pipeline. Start must be called before Enqueue.
func New(cfg Config, broadcaster Broadcaster, counters *stats.Counters, log zerolog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	if cfg.RecordRetention == 0 {
		cfg.RecordRetention = def.RecordRetention
	}

	return &Pipeline{
		log:         log.With().Str("component", "submission-pipeline").Logger(),
		cfg:         cfg,
		broadcaster: broadcaster,
		counters:    counters,
		queues:      make(map[rig.Key]chan *prover.ProofResult),
		records:     make(map[rig.ProvenAt]*SubmissionRecord),
	}
}

// SetAbandonedHook installs a callback invoked when a submission exhausts
// its retry budget. The record passed is a copy.
func (p *Pipeline) SetAbandonedHook(fn func(at rig.ProvenAt, rec SubmissionRecord)) {
	p.onAbandoned = fn
}

// Start makes the pipeline accept submissions until Stop or ctx cancel.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.runCtx, p.cancel = context.WithCancel(ctx)
	p.started = true
	return nil
}

// Stop cancels the workers and waits for them up to the ctx deadline.
// In-flight submissions interrupted here stay pending; shutdown is a
// best-effort drain, not a lossless one.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submission pipeline shutdown: %w", ctx.Err())
	}
}

// Enqueue accepts one proof result for submission. A (rig, height) pair that
// is already pending or confirmed is not enqueued again.
func (p *Pipeline) Enqueue(result *prover.ProofResult) {
	at := rig.ProvenAt{Rig: result.Rig, Height: result.Height}

	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		p.log.Error().Str("rig", at.Rig.String()).Uint64("height", at.Height).
			Msg("pipeline not started, dropping proof result")
		return
	}
	if rec, ok := p.records[at]; ok && rec.State != StateAbandoned {
		p.mu.Unlock()
		p.log.Debug().Str("rig", at.Rig.String()).Uint64("height", at.Height).
			Msg("duplicate submission suppressed")
		return
	}
	p.records[at] = &SubmissionRecord{State: StatePending}
	if result.Height > p.maxHeight {
		p.maxHeight = result.Height
	}
	p.pruneRecords()

	q, ok := p.queues[result.Rig]
	if !ok {
		q = make(chan *prover.ProofResult, p.cfg.QueueDepth)
		p.queues[result.Rig] = q
		p.wg.Add(1)
		go p.worker(result.Rig, q)
	}
	ctx := p.runCtx
	p.mu.Unlock()

	select {
	case q <- result:
	case <-ctx.Done():
	}
}

// Record returns a copy of the submission record for the given pair.
func (p *Pipeline) Record(at rig.ProvenAt) (SubmissionRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[at]
	if !ok {
		return SubmissionRecord{}, false
	}
	return *rec, true
}

// worker drains one rig's queue in FIFO order, preserving per-rig height
// ordering on the target ledger.
func (p *Pipeline) worker(key rig.Key, q chan *prover.ProofResult) {
	defer p.wg.Done()

	for {
		select {
		case <-p.runCtx.Done():
			return
		case result := <-q:
			p.submit(result)
		}
	}
}

// submit runs the bounded retry loop for one proof result.
func (p *Pipeline) submit(result *prover.ProofResult) {
	at := rig.ProvenAt{Rig: result.Rig, Height: result.Height}

	tx, err := BuildTx(result, p.cfg.RelayerAddress)
	if err != nil {
		p.abandon(at, err)
		return
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		hash, err := p.broadcaster.BroadcastTx(p.runCtx, tx)

		p.mu.Lock()
		rec := p.records[at]
		rec.Attempts = attempt
		rec.LastErr = err
		p.mu.Unlock()

		if err == nil {
			p.confirm(at, hash, attempt)
			return
		}
		if !errors.Is(err, ErrRetryable) {
			p.abandon(at, err)
			return
		}
		lastErr = err

		if attempt < p.cfg.MaxAttempts {
			delay := backoffDelay(p.cfg.BackoffBase, p.cfg.BackoffCap, attempt-1)
			p.log.Warn().
				Err(err).
				Str("rig", at.Rig.String()).
				Uint64("height", at.Height).
				Int("attempt", attempt).
				Dur("retry_in", delay).
				Msg("broadcast failed, retrying")
			if !sleep(p.runCtx, delay) {
				return
			}
		}
	}

	p.abandon(at, lastErr)
}

func (p *Pipeline) confirm(at rig.ProvenAt, hash string, attempts int) {
	p.mu.Lock()
	rec := p.records[at]
	rec.State = StateConfirmed
	rec.TxHash = hash
	rec.LastErr = nil
	p.pruneRecords()
	p.mu.Unlock()

	if p.counters != nil {
		p.counters.SubmissionConfirmed()
	}
	p.log.Info().
		Str("rig", at.Rig.String()).
		Uint64("height", at.Height).
		Str("tx_hash", hash).
		Int("attempts", attempts).
		Msg("proof submitted")
}

// abandon marks the record terminal and surfaces the loss: error-level log,
// abandoned counter, and the hook. Never silent.
func (p *Pipeline) abandon(at rig.ProvenAt, cause error) {
	p.mu.Lock()
	rec := p.records[at]
	rec.State = StateAbandoned
	rec.LastErr = fmt.Errorf("%w: %v", ErrAbandoned, cause)
	snapshot := *rec
	p.pruneRecords()
	p.mu.Unlock()

	if p.counters != nil {
		p.counters.SubmissionAbandoned()
	}
	p.log.Error().
		Err(cause).
		Str("rig", at.Rig.String()).
		Uint64("height", at.Height).
		Int("attempts", snapshot.Attempts).
		Msg("submission abandoned, reward lost")

	if p.onAbandoned != nil {
		p.onAbandoned(at, snapshot)
	}
}

// pruneRecords drops settled records below the retention window. Pending
// records survive regardless of age: their workers still update them, and a
// pending entry is what suppresses duplicate enqueues. Caller holds p.mu.
func (p *Pipeline) pruneRecords() {
	if p.maxHeight < p.cfg.RecordRetention {
		return
	}
	cutoff := p.maxHeight - p.cfg.RecordRetention
	for at, rec := range p.records {
		if at.Height < cutoff && rec.State != StatePending {
			delete(p.records, at)
		}
	}
}

func backoffDelay(base, cap time.Duration, retries int) time.Duration {
	delay := base
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
