package prover

import (
	"context"
	"time"

	"github.com/nuchain-network/hardware-miner/x/rig"
)

// Client generates one proof per (rig, trigger height) pair.
// Calls are independent and side-effect-free on the caller; retry policy,
// if any, belongs to the caller.
type Client interface {
	Prove(ctx context.Context, r rig.Rig, height uint64) (*ProofResult, error)
}

// ProofResult is the outcome of one successful proof generation. It carries
// the rig attributes the submission payload is built from, so the pipeline
// needs no registry access and the payload stays deterministic even if the
// rig set is refreshed between generation and submission.
type ProofResult struct {
	Rig    rig.Key
	Height uint64

	Proof           []byte
	PublicInputs    []byte
	VerificationKey []byte

	HashPower       uint64
	WattConsumption uint64
	RewardAddress   string

	HardwareID     string
	GenerationTime time.Duration
}

// proveRequest is the wire request sent to the prover service.
type proveRequest struct {
	RequestID       string   `json:"request_id"`
	RigID           uint64   `json:"rig_id"`
	Owner           string   `json:"owner"`
	SourceChain     string   `json:"source_chain"`
	Components      []uint64 `json:"components"`
	HashPower       uint64   `json:"hash_power"`
	WattConsumption uint64   `json:"watt_consumption"`
	BlockHeight     uint64   `json:"block_height"`
	PublicInputs    string   `json:"public_inputs"`
	HardwareID      string   `json:"hardware_id"`
}

// proveResponse is the prover service's reply.
type proveResponse struct {
	Success         bool    `json:"success"`
	Proof           string  `json:"proof"`
	VerificationKey string  `json:"verification_key"`
	Error           *string `json:"error"`
	Message         string  `json:"message"`
}

func (r proveResponse) errorMessage() string {
	if r.Error != nil {
		return *r.Error
	}
	return r.Message
}
