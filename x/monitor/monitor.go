// Package monitor maintains the subscription to the source ledger's
// new-block stream and turns block events into Triggers. It owns the
// reconnect-with-backoff state machine and the height watermark that keeps
// replayed events from reaching the dispatcher twice.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Monitor runs indefinitely: Disconnected -> Connecting -> Subscribed, and
// back through Backoff(n) on any stream error. It has no terminal state;
// context cancellation is the only exit.
type Monitor struct {
	log   zerolog.Logger
	cfg   Config
	dial  Dialer
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	triggers chan Trigger
	// watermark is the highest height already emitted. Events at or below
	// it are stale replays and are dropped.
	watermark uint64

	onReconnect func()
}

// New creates a Monitor. If dial is nil the WebSocket dialer for
// cfg.Endpoint is used.
func New(cfg Config, dial Dialer, log zerolog.Logger) *Monitor {
	def := DefaultConfig()
	if cfg.Query == "" {
		cfg.Query = def.Query
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}

	m := &Monitor{
		log:      log.With().Str("component", "event-monitor").Logger(),
		cfg:      cfg,
		dial:     dial,
		now:      time.Now,
		sleep:    sleep,
		triggers: make(chan Trigger, cfg.Buffer),
	}
	if m.dial == nil {
		m.dial = newWSDialer(cfg, m.log)
	}
	return m
}

// SetReconnectHook installs a callback invoked on each successful
// reconnect after at least one failure. Used to feed the stats counters.
func (m *Monitor) SetReconnectHook(fn func()) { m.onReconnect = fn }

// Triggers returns the channel of emitted triggers. It has exactly one
// consumer (the dispatch loop) and preserves emission order.
func (m *Monitor) Triggers() <-chan Trigger { return m.triggers }

// Run drives the subscription state machine until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	failures := 0

	for ctx.Err() == nil {
		stream, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffCap, failures)
			m.log.Warn().
				Err(err).
				Int("consecutive_failures", failures+1).
				Dur("retry_in", delay).
				Msg("event subscription failed")
			failures++
			if !m.sleep(ctx, delay) {
				return
			}
			continue
		}

		if failures > 0 {
			m.log.Info().Uint64("watermark", m.watermark).Msg("event subscription re-established")
			if m.onReconnect != nil {
				m.onReconnect()
			}
		} else {
			m.log.Info().Str("query", m.cfg.Query).Msg("event subscription established")
		}
		failures = 0

		err = m.consume(ctx, stream)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}

		delay := backoffDelay(m.cfg.BackoffBase, m.cfg.BackoffCap, failures)
		m.log.Warn().Err(err).Dur("retry_in", delay).Msg("event stream lost")
		failures++
		if !m.sleep(ctx, delay) {
			return
		}
	}
}

// consume reads the subscribed stream and emits triggers until the stream
// errors or the context is canceled.
func (m *Monitor) consume(ctx context.Context, stream Stream) error {
	for {
		height, err := stream.NextHeight(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		m.emit(ctx, height)
	}
}

// emit applies the watermark and forwards the trigger to the consumer.
func (m *Monitor) emit(ctx context.Context, height uint64) {
	if height <= m.watermark {
		m.log.Debug().
			Uint64("height", height).
			Uint64("watermark", m.watermark).
			Msg("dropping stale block event")
		return
	}

	trigger := Trigger{Height: height, ObservedAt: m.now()}
	select {
	case m.triggers <- trigger:
		m.watermark = height
	case <-ctx.Done():
	}
}

// backoffDelay computes min(base << n, cap) without overflowing.
func backoffDelay(base, cap time.Duration, failures int) time.Duration {
	delay := base
	for i := 0; i < failures; i++ {
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
