package registry

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/nuchain-network/hardware-miner/x/rig"
)

// rigOracleABI is the read surface of the mining-rig oracle contract:
// getRigs() returns every registered rig with its declared capacity.
const rigOracleABI = `[{"inputs":[],"name":"getRigs","outputs":[{"components":[
{"internalType":"uint256","name":"rigId","type":"uint256"},
{"internalType":"address","name":"owner","type":"address"},
{"internalType":"uint256[]","name":"components","type":"uint256[]"},
{"internalType":"uint256","name":"hashPower","type":"uint256"},
{"internalType":"uint256","name":"wattConsumption","type":"uint256"},
{"internalType":"string","name":"rewardAddress","type":"string"},
{"internalType":"bool","name":"isActive","type":"bool"}],
"internalType":"struct RigOracle.Rig[]","name":"","type":"tuple[]"}],
"stateMutability":"view","type":"function"}]`

// rigArg mirrors the oracle contract's Rig tuple.
type rigArg struct {
	RigId           *big.Int       `abi:"rigId"`
	Owner           common.Address `abi:"owner"`
	Components      []*big.Int     `abi:"components"`
	HashPower       *big.Int       `abi:"hashPower"`
	WattConsumption *big.Int       `abi:"wattConsumption"`
	RewardAddress   string         `abi:"rewardAddress"`
	IsActive        bool           `abi:"isActive"`
}

// ethCaller is the slice of the ethclient surface the source needs.
// Narrowed for test doubles.
type ethCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ContractSource loads the rig set from one EVM oracle contract.
type ContractSource struct {
	chain    string
	contract common.Address
	abi      abi.ABI
	client   ethCaller
	log      zerolog.Logger
}

// NewContractSource dials the chain's RPC endpoint and binds the oracle
// contract at the configured address.
func NewContractSource(cfg SourceConfig, log zerolog.Logger) (*ContractSource, error) {
	if strings.TrimSpace(cfg.Chain) == "" {
		return nil, fmt.Errorf("source chain name is required")
	}
	if strings.TrimSpace(cfg.Contract) == "" {
		return nil, fmt.Errorf("oracle contract address is required for chain %s", cfg.Chain)
	}

	client, err := ethclient.Dial(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", cfg.Chain, err)
	}

	return newContractSource(cfg.Chain, cfg.Contract, client, log)
}

func newContractSource(chain, contractAddr string, client ethCaller, log zerolog.Logger) (*ContractSource, error) {
	parsedABI, err := abi.JSON(strings.NewReader(rigOracleABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rig oracle ABI: %w", err)
	}

	return &ContractSource{
		chain:    chain,
		contract: common.HexToAddress(contractAddr),
		abi:      parsedABI,
		client:   client,
		log:      log.With().Str("component", "rig-source").Str("chain", chain).Logger(),
	}, nil
}

func (s *ContractSource) Chain() string { return s.chain }

// FetchRigs calls getRigs() on the oracle contract and converts the result
// into the registry's rig model.
func (s *ContractSource) FetchRigs(ctx context.Context) ([]rig.Rig, error) {
	calldata, err := s.abi.Pack("getRigs")
	if err != nil {
		return nil, fmt.Errorf("pack getRigs calldata: %w", err)
	}

	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s oracle: %w", s.chain, err)
	}

	var out []rigArg
	if err := s.abi.UnpackIntoInterface(&out, "getRigs", raw); err != nil {
		return nil, fmt.Errorf("unpack getRigs result: %w", err)
	}

	rigs := make([]rig.Rig, 0, len(out))
	for _, arg := range out {
		components := make([]uint64, len(arg.Components))
		for i, c := range arg.Components {
			components[i] = c.Uint64()
		}
		rigs = append(rigs, rig.Rig{
			Key: rig.Key{
				SourceChain: s.chain,
				Owner:       arg.Owner,
				RigID:       arg.RigId.Uint64(),
			},
			Components:      components,
			HashPower:       arg.HashPower.Uint64(),
			WattConsumption: arg.WattConsumption.Uint64(),
			RewardAddress:   arg.RewardAddress,
			Active:          arg.IsActive,
		})
	}

	s.log.Debug().Int("rigs", len(rigs)).Msg("fetched rigs from oracle")
	return rigs, nil
}

var _ Source = (*ContractSource)(nil)

// StaticSource serves a fixed rig set. Used in tests and local development
// where no oracle contract is deployed.
type StaticSource struct {
	ChainName string
	Set       []rig.Rig
}

func (s *StaticSource) Chain() string { return s.ChainName }

func (s *StaticSource) FetchRigs(context.Context) ([]rig.Rig, error) {
	out := make([]rig.Rig, len(s.Set))
	copy(out, s.Set)
	return out, nil
}

var _ Source = (*StaticSource)(nil)
