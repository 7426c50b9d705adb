package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nuchain-network/hardware-miner/x/monitor"
	"github.com/nuchain-network/hardware-miner/x/prover"
	"github.com/nuchain-network/hardware-miner/x/registry"
	"github.com/nuchain-network/hardware-miner/x/rig"
	"github.com/nuchain-network/hardware-miner/x/stats"
)

// --- test doubles ---

type stubProver struct {
	mu    sync.Mutex
	calls map[rig.ProvenAt]int
	fail  map[rig.Key]error

	inflight    int
	maxInflight int
}

func newStubProver() *stubProver {
	return &stubProver{calls: make(map[rig.ProvenAt]int), fail: make(map[rig.Key]error)}
}

func (p *stubProver) Prove(_ context.Context, r rig.Rig, height uint64) (*prover.ProofResult, error) {
	p.mu.Lock()
	p.calls[rig.ProvenAt{Rig: r.Key, Height: height}]++
	p.inflight++
	if p.inflight > p.maxInflight {
		p.maxInflight = p.inflight
	}
	err := p.fail[r.Key]
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight--
		p.mu.Unlock()
	}()

	if err != nil {
		return nil, err
	}
	return &prover.ProofResult{Rig: r.Key, Height: height, Proof: []byte{1}}, nil
}

func (p *stubProver) callCount(key rig.Key, height uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[rig.ProvenAt{Rig: key, Height: height}]
}

type captureSink struct {
	mu      sync.Mutex
	results []*prover.ProofResult
}

func (s *captureSink) Enqueue(result *prover.ProofResult) {
	s.mu.Lock()
	s.results = append(s.results, result)
	s.mu.Unlock()
}

func (s *captureSink) heights(key rig.Key) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint64
	for _, r := range s.results {
		if r.Rig == key {
			out = append(out, r.Height)
		}
	}
	return out
}

func testRig(owner byte, id uint64) rig.Rig {
	return rig.Rig{
		Key: rig.Key{
			SourceChain: "ethereum",
			Owner:       common.BytesToAddress([]byte{owner}),
			RigID:       id,
		},
		HashPower: 100,
		Active:    true,
	}
}

func newTestRegistry(t *testing.T, rigs ...rig.Rig) *registry.Registry {
	t.Helper()
	src := &registry.StaticSource{ChainName: "ethereum", Set: rigs}
	reg := registry.New(registry.Config{}, []registry.Source{src}, zerolog.Nop())
	require.NoError(t, reg.Refresh(context.Background()))
	return reg
}

func newTestDispatcher(t *testing.T, reg *registry.Registry, p prover.Client, sink Sink, concurrency int) *Dispatcher {
	t.Helper()
	cfg := Config{Concurrency: concurrency, GuardRetention: 8, MetricsEnabled: false}
	return New(cfg, reg, p, sink, stats.NewCounters(), zerolog.Nop())
}

func TestDispatchFansOutOncePerRig(t *testing.T) {
	t.Parallel()

	rigA, rigB := testRig(1, 1), testRig(2, 2)
	reg := newTestRegistry(t, rigA, rigB)
	p := newStubProver()
	sink := &captureSink{}
	d := newTestDispatcher(t, reg, p, sink, 4)

	out := d.Dispatch(context.Background(), monitor.Trigger{Height: 100})
	require.Equal(t, 2, out.Dispatched)
	require.Equal(t, 2, out.Succeeded)
	require.Zero(t, out.Failed)

	require.Equal(t, 1, p.callCount(rigA.Key, 100))
	require.Equal(t, 1, p.callCount(rigB.Key, 100))
	require.Len(t, sink.results, 2)
}

func TestDispatchReplayedTriggerIsIdempotent(t *testing.T) {
	t.Parallel()

	rigA, rigB := testRig(1, 1), testRig(2, 2)
	reg := newTestRegistry(t, rigA, rigB)
	p := newStubProver()
	sink := &captureSink{}
	d := newTestDispatcher(t, reg, p, sink, 4)

	d.Dispatch(context.Background(), monitor.Trigger{Height: 100})
	out := d.Dispatch(context.Background(), monitor.Trigger{Height: 100})

	require.Zero(t, out.Dispatched)
	require.Equal(t, 2, out.Skipped)
	require.Equal(t, 1, p.callCount(rigA.Key, 100))
	require.Equal(t, 1, p.callCount(rigB.Key, 100))
	require.Len(t, sink.results, 2)
}

func TestDispatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	rigA, rigB := testRig(1, 1), testRig(2, 2)
	reg := newTestRegistry(t, rigA, rigB)
	p := newStubProver()
	p.fail[rigA.Key] = prover.ErrUnavailable
	sink := &captureSink{}
	d := newTestDispatcher(t, reg, p, sink, 4)

	out := d.Dispatch(context.Background(), monitor.Trigger{Height: 100})
	require.Equal(t, 1, out.Succeeded)
	require.Equal(t, 1, out.Failed)

	// B's success reached the sink despite A failing.
	require.Equal(t, []uint64{100}, sink.heights(rigB.Key))
	require.Empty(t, sink.heights(rigA.Key))

	// A is not retried at 100, but is eligible again at the next height.
	p.mu.Lock()
	delete(p.fail, rigA.Key)
	p.mu.Unlock()

	d.Dispatch(context.Background(), monitor.Trigger{Height: 100})
	require.Equal(t, 1, p.callCount(rigA.Key, 100))

	out = d.Dispatch(context.Background(), monitor.Trigger{Height: 101})
	require.Equal(t, 2, out.Dispatched)
	require.Equal(t, 1, p.callCount(rigA.Key, 101))
	require.Equal(t, []uint64{100, 101}, sink.heights(rigB.Key))
}

func TestDispatchRespectsConcurrencyBound(t *testing.T) {
	t.Parallel()

	rigs := make([]rig.Rig, 0, 16)
	for i := 1; i <= 16; i++ {
		rigs = append(rigs, testRig(byte(i), uint64(i)))
	}
	reg := newTestRegistry(t, rigs...)
	p := newStubProver()
	sink := &captureSink{}
	d := newTestDispatcher(t, reg, p, sink, 3)

	out := d.Dispatch(context.Background(), monitor.Trigger{Height: 100})
	require.Equal(t, 16, out.Succeeded)

	p.mu.Lock()
	defer p.mu.Unlock()
	require.LessOrEqual(t, p.maxInflight, 3)
}

func TestDispatchEmptyRegistry(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t)
	p := newStubProver()
	sink := &captureSink{}
	d := newTestDispatcher(t, reg, p, sink, 4)

	out := d.Dispatch(context.Background(), monitor.Trigger{Height: 100})
	require.Zero(t, out.Dispatched)
	require.Empty(t, sink.results)
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	require.Equal(t, "timeout", failureReason(prover.ErrTimeout))
	require.Equal(t, "rejected", failureReason(prover.ErrRejected))
	require.Equal(t, "unavailable", failureReason(prover.ErrUnavailable))
	require.Equal(t, "other", failureReason(errors.New("boom")))
}
