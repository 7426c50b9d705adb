package prover

import (
	"crypto/sha256"
	"encoding/json"
	"time"

	"github.com/nuchain-network/hardware-miner/x/rig"
)

// digestInput is the canonical document the prover attests over. Field order
// is fixed by the struct definition, so the same inputs always serialize to
// the same bytes.
type digestInput struct {
	RigID           uint64   `json:"rig_id"`
	Owner           string   `json:"owner"`
	SourceChain     string   `json:"source_chain"`
	Components      []uint64 `json:"components"`
	HashPower       uint64   `json:"hash_power"`
	WattConsumption uint64   `json:"watt_consumption"`
	BlockHeight     uint64   `json:"block_height"`
	Timestamp       int64    `json:"timestamp"`
	HardwareID      string   `json:"hardware_id"`
}

// PublicInputDigest computes the SHA-256 digest of the canonical public-input
// document for a rig at a given height. With a pinned timestamp the digest is
// fully deterministic.
func PublicInputDigest(r rig.Rig, height uint64, hardwareID string, at time.Time) []byte {
	doc := digestInput{
		RigID:           r.Key.RigID,
		Owner:           r.Key.Owner.Hex(),
		SourceChain:     r.Key.SourceChain,
		Components:      r.Components,
		HashPower:       r.HashPower,
		WattConsumption: r.WattConsumption,
		BlockHeight:     height,
		Timestamp:       at.Unix(),
		HardwareID:      hardwareID,
	}

	// Struct marshaling cannot fail for these field types.
	serialized, _ := json.Marshal(doc)
	sum := sha256.Sum256(serialized)
	return sum[:]
}
