package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nuchain-network/hardware-miner/x/rig"
)

// --- test doubles ---

type flakySource struct {
	mu    sync.Mutex
	chain string
	rigs  []rig.Rig
	err   error
	calls int
}

func (s *flakySource) Chain() string { return s.chain }

func (s *flakySource) FetchRigs(context.Context) ([]rig.Rig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]rig.Rig, len(s.rigs))
	copy(out, s.rigs)
	return out, nil
}

func (s *flakySource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func testRig(chain string, owner byte, id uint64, active bool) rig.Rig {
	return rig.Rig{
		Key: rig.Key{
			SourceChain: chain,
			Owner:       common.BytesToAddress([]byte{owner}),
			RigID:       id,
		},
		HashPower:       100,
		WattConsumption: 50,
		RewardAddress:   "nuchain1qqqsyqcyq5rqwzqfpg9scrgwpugpzysn9g9jzn",
		Active:          active,
	}
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	t.Parallel()

	src := &flakySource{chain: "ethereum", rigs: []rig.Rig{
		testRig("ethereum", 1, 1, true),
		testRig("ethereum", 2, 2, false),
	}}
	reg := New(DefaultConfig(), []Source{src}, zerolog.Nop())

	require.Zero(t, reg.Snapshot().Rigs())

	require.NoError(t, reg.Refresh(context.Background()))

	snap := reg.Snapshot()
	require.Equal(t, 2, snap.Rigs())
	require.Len(t, snap.Active(), 1)
	require.Equal(t, uint64(1), snap.Active()[0].Key.RigID)
}

func TestSnapshotImmutableAcrossRefresh(t *testing.T) {
	t.Parallel()

	src := &flakySource{chain: "ethereum", rigs: []rig.Rig{testRig("ethereum", 1, 1, true)}}
	reg := New(DefaultConfig(), []Source{src}, zerolog.Nop())
	require.NoError(t, reg.Refresh(context.Background()))

	before := reg.Snapshot()

	src.mu.Lock()
	src.rigs = []rig.Rig{
		testRig("ethereum", 1, 1, true),
		testRig("ethereum", 3, 3, true),
	}
	src.mu.Unlock()
	require.NoError(t, reg.Refresh(context.Background()))

	// The old snapshot still reflects the world at its refresh.
	require.Equal(t, 1, before.Rigs())
	require.Equal(t, 2, reg.Snapshot().Rigs())
}

func TestSnapshotUnderConcurrentRefresh(t *testing.T) {
	t.Parallel()

	src := &flakySource{chain: "ethereum", rigs: []rig.Rig{
		testRig("ethereum", 1, 1, true),
		testRig("ethereum", 2, 2, true),
	}}
	reg := New(DefaultConfig(), []Source{src}, zerolog.Nop())
	require.NoError(t, reg.Refresh(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = reg.Refresh(context.Background())
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := reg.Snapshot()
				// Every observed snapshot is complete: both rigs or none.
				require.Contains(t, []int{0, 2}, snap.Rigs())
			}
		}()
	}
	wg.Wait()
}

func TestRefreshPartialSourceFailure(t *testing.T) {
	t.Parallel()

	ethSrc := &flakySource{chain: "ethereum", rigs: []rig.Rig{testRig("ethereum", 1, 1, true)}}
	solSrc := &flakySource{chain: "solana", rigs: []rig.Rig{testRig("solana", 2, 7, true)}}
	reg := New(DefaultConfig(), []Source{ethSrc, solSrc}, zerolog.Nop())

	var failures []string
	reg.SetSourceFailureHook(func(chain string) { failures = append(failures, chain) })

	require.NoError(t, reg.Refresh(context.Background()))
	require.Equal(t, 2, reg.Snapshot().Rigs())

	// solana goes down: its previously known rigs must survive the refresh.
	solSrc.setErr(errors.New("rpc unreachable"))
	require.NoError(t, reg.Refresh(context.Background()))

	snap := reg.Snapshot()
	require.Equal(t, 2, snap.Rigs())
	_, ok := snap.Get(rig.Key{SourceChain: "solana", Owner: common.BytesToAddress([]byte{2}), RigID: 7})
	require.True(t, ok)
	require.Equal(t, []string{"solana"}, failures)
}

func TestRefreshAllSourcesFail(t *testing.T) {
	t.Parallel()

	src := &flakySource{chain: "ethereum", err: errors.New("down")}
	reg := New(DefaultConfig(), []Source{src}, zerolog.Nop())

	err := reg.Refresh(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestActiveOrderingDeterministic(t *testing.T) {
	t.Parallel()

	rigs := make([]rig.Rig, 0, 8)
	for i := 8; i >= 1; i-- {
		rigs = append(rigs, testRig("ethereum", byte(i), uint64(i), true))
	}
	src := &flakySource{chain: "ethereum", rigs: rigs}
	reg := New(DefaultConfig(), []Source{src}, zerolog.Nop())
	require.NoError(t, reg.Refresh(context.Background()))

	first := reg.Snapshot().Active()
	for i := 1; i < len(first); i++ {
		require.True(t, first[i-1].Key.Less(first[i].Key))
	}

	require.NoError(t, reg.Refresh(context.Background()))
	second := reg.Snapshot().Active()
	require.Equal(t, keyStrings(first), keyStrings(second))
}

func keyStrings(rigs []rig.Rig) []string {
	out := make([]string, len(rigs))
	for i, r := range rigs {
		out[i] = r.Key.String()
	}
	return out
}
