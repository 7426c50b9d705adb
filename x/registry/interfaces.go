package registry

import (
	"context"

	"github.com/nuchain-network/hardware-miner/x/rig"
)

// Source resolves the current rig set declared on one oracle chain.
// A source failure degrades only that chain's portion of the registry.
type Source interface {
	// Chain returns the source chain identifier (e.g. "altcoinchain",
	// "polygon"). All rigs returned by FetchRigs must carry it in their key.
	Chain() string
	FetchRigs(ctx context.Context) ([]rig.Rig, error)
}
