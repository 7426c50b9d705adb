// Package rig defines the mining rig data model shared by the registry,
// dispatcher, and submission pipeline.
package rig

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key uniquely identifies a rig across all oracle sources.
// It is a structured composite key so it can be used directly as a map key
// without string-format collisions.
type Key struct {
	SourceChain string
	Owner       common.Address
	RigID       uint64
}

// String renders the key for logging.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.SourceChain, k.Owner.Hex(), k.RigID)
}

// Less orders keys lexicographically by (chain, owner, rig id).
// Used to produce deterministic snapshot ordering.
func (k Key) Less(other Key) bool {
	if k.SourceChain != other.SourceChain {
		return k.SourceChain < other.SourceChain
	}
	if c := k.Owner.Cmp(other.Owner); c != 0 {
		return c < 0
	}
	return k.RigID < other.RigID
}

// Rig is a registered unit of declared compute capacity.
// Instances are immutable once published in a registry snapshot; a refresh
// replaces them wholesale rather than mutating in place.
type Rig struct {
	Key Key

	// Components holds the NFT token IDs the rig is assembled from,
	// in declared order.
	Components []uint64

	// HashPower is the declared capacity in hash units per second.
	HashPower uint64

	// WattConsumption is the declared power draw in watts.
	WattConsumption uint64

	// RewardAddress is the rig owner's address on the target ledger.
	RewardAddress string

	Active bool
}

// ProvenAt identifies one proof attempt: a (rig, trigger height) pair.
// The dispatcher guarantees at most one prover call per ProvenAt value.
type ProvenAt struct {
	Rig    Key
	Height uint64
}
