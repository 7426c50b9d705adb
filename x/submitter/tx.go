package submitter

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/nuchain-network/hardware-miner/x/prover"
)

// SourceChainTag identifies this relayer class to the target ledger's
// cross-chain message handler.
const SourceChainTag = "cysic-hardware-mining"

// MessageTypeProofSubmission is the cross-chain message type for proof
// submissions.
const MessageTypeProofSubmission = "cysic_proof_submission"

// miningPayload is the proof-submission payload carried inside the
// cross-chain message. Field order is fixed by the struct definition, so the
// same ProofResult always serializes to the same bytes (required for
// downstream duplicate detection by hash).
type miningPayload struct {
	MinerAddress    string   `json:"miner_address"`
	RewardAddress   string   `json:"reward_address"`
	RigIDs          []uint64 `json:"rig_ids"`
	TotalHashPower  uint64   `json:"total_hash_power"`
	TotalWattCost   uint64   `json:"total_watt_cost"`
	Proof           string   `json:"proof"`
	PublicInputs    string   `json:"public_inputs"`
	VerificationKey string   `json:"verification_key"`
	HardwareID      string   `json:"hardware_id"`
	BlockHeight     uint64   `json:"block_height"`
}

// crossChainTx is the ledger transaction wrapper
// (mining/ProcessCrossChainMessage).
type crossChainTx struct {
	Type  string          `json:"type"`
	Value crossChainValue `json:"value"`
}

type crossChainValue struct {
	Creator     string          `json:"creator"`
	SourceChain string          `json:"source_chain"`
	MessageType string          `json:"message_type"`
	Payload     json.RawMessage `json:"payload"`
	// Nonce is derived from the trigger height so the encoding stays
	// deterministic and the ledger can reject height replays.
	Nonce uint64 `json:"nonce"`
}

// BuildTx encodes a ProofResult into the target ledger's transaction bytes.
// Encoding is deterministic: identical results produce identical bytes.
func BuildTx(result *prover.ProofResult, relayerAddress string) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("proof result cannot be nil")
	}

	payload, err := json.Marshal(miningPayload{
		MinerAddress:    result.Rig.Owner.Hex(),
		RewardAddress:   result.RewardAddress,
		RigIDs:          []uint64{result.Rig.RigID},
		TotalHashPower:  result.HashPower,
		TotalWattCost:   result.WattConsumption,
		Proof:           hex.EncodeToString(result.Proof),
		PublicInputs:    hex.EncodeToString(result.PublicInputs),
		VerificationKey: hex.EncodeToString(result.VerificationKey),
		HardwareID:      result.HardwareID,
		BlockHeight:     result.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal mining payload: %w", err)
	}

	tx, err := json.Marshal(crossChainTx{
		Type: "mining/ProcessCrossChainMessage",
		Value: crossChainValue{
			Creator:     relayerAddress,
			SourceChain: SourceChainTag,
			MessageType: MessageTypeProofSubmission,
			Payload:     payload,
			Nonce:       result.Height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	return tx, nil
}
