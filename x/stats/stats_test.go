package stats

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nuchain-network/hardware-miner/x/registry"
	"github.com/nuchain-network/hardware-miner/x/rig"
)

func newTestAggregator(t *testing.T, counters *Counters, reg *registry.Registry, clock func() time.Time) *Aggregator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = clock
	return New(cfg, counters, reg, zerolog.Nop())
}

func TestSnapshotCountersAndRates(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0)
	now := base
	clock := func() time.Time { return now }

	counters := NewCounters()
	agg := newTestAggregator(t, counters, nil, clock)

	for i := 0; i < 10; i++ {
		counters.TriggerObserved()
	}
	for i := 0; i < 6; i++ {
		counters.ProofGenerated()
	}
	counters.ProofFailed()
	counters.SubmissionConfirmed()
	counters.SubmissionAbandoned()
	counters.Reconnected()
	counters.SourceFailed()

	now = base.Add(3 * time.Second)
	s := agg.Snapshot()

	require.InDelta(t, 3.0, s.UptimeSeconds, 1e-9)
	require.Equal(t, uint64(10), s.TriggersObserved)
	require.Equal(t, uint64(6), s.ProofsGenerated)
	require.Equal(t, uint64(1), s.ProofsFailed)
	require.InDelta(t, 2.0, s.ProofsPerSecond, 1e-9)
	require.Equal(t, uint64(1), s.ConfirmedSubmissions)
	require.Equal(t, uint64(1), s.AbandonedSubmissions)
	require.Equal(t, uint64(1), s.Reconnects)
	require.Equal(t, uint64(1), s.SourceFailures)
}

func TestSnapshotRegistryDerivedFields(t *testing.T) {
	t.Parallel()

	src := &registry.StaticSource{ChainName: "ethereum", Set: []rig.Rig{
		{
			Key:             rig.Key{SourceChain: "ethereum", Owner: common.BytesToAddress([]byte{1}), RigID: 1},
			HashPower:       5000,
			WattConsumption: 300,
			Active:          true,
		},
		{
			Key:             rig.Key{SourceChain: "ethereum", Owner: common.BytesToAddress([]byte{2}), RigID: 2},
			HashPower:       7000,
			WattConsumption: 450,
			Active:          true,
		},
		{
			Key:       rig.Key{SourceChain: "ethereum", Owner: common.BytesToAddress([]byte{3}), RigID: 3},
			HashPower: 9000,
			Active:    false,
		},
	}}
	reg := registry.New(registry.Config{}, []registry.Source{src}, zerolog.Nop())
	require.NoError(t, reg.Refresh(context.Background()))

	agg := newTestAggregator(t, NewCounters(), reg, time.Now)
	s := agg.Snapshot()

	// Inactive rigs contribute nothing.
	require.Equal(t, 2, s.ActiveRigCount)
	require.Equal(t, uint64(12000), s.TotalHashPower)
	require.Equal(t, uint64(750), s.TotalWattConsumption)
}

func TestSnapshotZeroUptime(t *testing.T) {
	t.Parallel()

	base := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return base }

	counters := NewCounters()
	counters.ProofGenerated()
	agg := newTestAggregator(t, counters, nil, clock)

	s := agg.Snapshot()
	require.Zero(t, s.ProofsPerSecond, "rate must not divide by zero")
}
