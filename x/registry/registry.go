// Package registry holds the authoritative in-memory set of registered
// mining rigs, refreshed from oracle sources. Readers take immutable
// snapshots; a refresh publishes a complete replacement set, never an
// in-place edit.
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nuchain-network/hardware-miner/x/rig"
)

// ErrSourceUnavailable indicates every configured source failed during a
// refresh. A partial failure is logged and skipped, not returned.
var ErrSourceUnavailable = errors.New("registry: no rig source available")

// Snapshot is an immutable view of the registry at one refresh.
type Snapshot struct {
	rigs map[rig.Key]rig.Rig
	// active caches the deterministic active-rig ordering, computed once
	// when the snapshot is published.
	active []rig.Rig
}

// Rigs returns the number of registered rigs, active or not.
func (s *Snapshot) Rigs() int { return len(s.rigs) }

// Get looks up a rig by key.
func (s *Snapshot) Get(k rig.Key) (rig.Rig, bool) {
	r, ok := s.rigs[k]
	return r, ok
}

// Active returns the active rigs in deterministic (sorted key) order.
// The returned slice is shared; callers must not modify it.
func (s *Snapshot) Active() []rig.Rig { return s.active }

func newSnapshot(rigs map[rig.Key]rig.Rig) *Snapshot {
	active := make([]rig.Rig, 0, len(rigs))
	for _, r := range rigs {
		if r.Active {
			active = append(active, r)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Key.Less(active[j].Key) })
	return &Snapshot{rigs: rigs, active: active}
}

// Registry resolves rigs from oracle sources and serves snapshots.
type Registry struct {
	log     zerolog.Logger
	sources []Source
	cfg     Config

	// refreshMu serializes refreshes; snapshot readers never take it.
	refreshMu sync.Mutex
	current   atomic.Pointer[Snapshot]

	onSourceFailure func(chain string)
}

// New creates a Registry over the given sources. The initial snapshot is
// empty until the first Refresh.
func New(cfg Config, sources []Source, log zerolog.Logger) *Registry {
	r := &Registry{
		log:     log.With().Str("component", "rig-registry").Logger(),
		sources: sources,
		cfg:     cfg,
	}
	r.current.Store(newSnapshot(map[rig.Key]rig.Rig{}))
	return r
}

// SetSourceFailureHook installs a callback invoked once per failed source
// per refresh. Used to feed the stats counters.
func (r *Registry) SetSourceFailureHook(fn func(chain string)) {
	r.onSourceFailure = fn
}

// Snapshot returns the current immutable view. It never observes a registry
// mid-refresh: refreshes build a complete replacement and swap it in.
func (r *Registry) Snapshot() *Snapshot { return r.current.Load() }

// Refresh re-queries every source and publishes a new snapshot.
// Sources that fail are skipped: their previous rigs are retained from the
// current snapshot so one flaky oracle does not evict a whole chain's fleet.
// Refresh fails only when every source fails.
func (r *Registry) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	prev := r.current.Load()
	next := make(map[rig.Key]rig.Rig, len(prev.rigs))

	var succeeded int
	failed := make(map[string]bool)

	for _, src := range r.sources {
		rigs, err := src.FetchRigs(ctx)
		if err != nil {
			failed[src.Chain()] = true
			r.log.Warn().
				Err(err).
				Str("chain", src.Chain()).
				Msg("rig source unavailable, keeping previous rigs for chain")
			if r.onSourceFailure != nil {
				r.onSourceFailure(src.Chain())
			}
			continue
		}
		succeeded++
		for _, rg := range rigs {
			if rg.Key.SourceChain == "" {
				rg.Key.SourceChain = src.Chain()
			}
			next[rg.Key] = rg
		}
	}

	if len(r.sources) > 0 && succeeded == 0 {
		return ErrSourceUnavailable
	}

	// Carry over rigs from chains whose source failed this round.
	for k, rg := range prev.rigs {
		if failed[k.SourceChain] {
			next[k] = rg
		}
	}

	snap := newSnapshot(next)
	r.current.Store(snap)

	r.log.Info().
		Int("rigs", snap.Rigs()).
		Int("active", len(snap.Active())).
		Int("sources_ok", succeeded).
		Int("sources_failed", len(failed)).
		Msg("rig registry refreshed")
	return nil
}

// Run refreshes immediately and then on the configured interval until the
// context is canceled. Refresh errors are logged, never fatal: the loop is
// designed to outlive transient oracle outages.
func (r *Registry) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.log.Error().Err(err).Msg("initial rig refresh failed")
	}

	if r.cfg.RefreshInterval <= 0 {
		return
	}

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Error().Err(err).Msg("rig refresh failed")
			}
		}
	}
}
