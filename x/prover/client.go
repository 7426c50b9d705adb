// Package prover is the client for the external Cysic-style proof service.
// It owns per-call timeouts and error translation; everything else about
// proof construction is the service's concern.
package prover

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nuchain-network/hardware-miner/x/rig"
)

// Config configures the HTTP prover client.
type Config struct {
	BaseURL     string        `mapstructure:"base_url"     yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key"      yaml:"api_key"`
	HardwareID  string        `mapstructure:"hardware_id"  yaml:"hardware_id"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	// Now is injectable for deterministic digests in tests.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		HardwareID:  "nvidia-a100",
		CallTimeout: 30 * time.Second,
	}
}

// HTTPClient implements Client over the prover's REST API.
type HTTPClient struct {
	baseURL     *url.URL
	httpClient  *http.Client
	apiKey      string
	hardwareID  string
	callTimeout time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewHTTPClient constructs a prover client for the given config.
// If httpClient is nil a default client is used; the per-call timeout is
// enforced through the request context, not the http.Client.
func NewHTTPClient(cfg Config, httpClient *http.Client, log zerolog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("prover base URL is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid prover base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := log.With().Str("component", "prover-client").Logger()
	logger.Info().
		Str("base_url", cfg.BaseURL).
		Str("hardware_id", cfg.HardwareID).
		Dur("call_timeout", cfg.CallTimeout).
		Msg("HTTP prover client initialized")

	return &HTTPClient{
		baseURL:     parsed,
		httpClient:  httpClient,
		apiKey:      cfg.APIKey,
		hardwareID:  cfg.HardwareID,
		callTimeout: cfg.CallTimeout,
		now:         cfg.Now,
		log:         logger,
	}, nil
}

// Prove requests one proof for the rig at the given trigger height.
func (c *HTTPClient) Prove(ctx context.Context, r rig.Rig, height uint64) (*ProofResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	started := c.now()
	publicInputs := PublicInputDigest(r, height, c.hardwareID, started)

	reqBody := proveRequest{
		RequestID:       uuid.NewString(),
		RigID:           r.Key.RigID,
		Owner:           r.Key.Owner.Hex(),
		SourceChain:     r.Key.SourceChain,
		Components:      r.Components,
		HashPower:       r.HashPower,
		WattConsumption: r.WattConsumption,
		BlockHeight:     height,
		PublicInputs:    hex.EncodeToString(publicInputs),
		HardwareID:      c.hardwareID,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal prove request: %w", err)
	}

	endpoint := c.buildURL("prove")
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("prepare prove request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: rig %s height %d", ErrTimeout, r.Key, height)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, res.Status, string(msg))
	}
	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("%w: %s: %s", ErrRejected, res.Status, string(msg))
	}

	var reply proveResponse
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if !reply.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, reply.errorMessage())
	}

	proof, err := hex.DecodeString(reply.Proof)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed proof bytes: %v", ErrRejected, err)
	}
	vk, err := hex.DecodeString(reply.VerificationKey)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed verification key: %v", ErrRejected, err)
	}

	elapsed := c.now().Sub(started)
	c.log.Debug().
		Str("rig", r.Key.String()).
		Uint64("height", height).
		Dur("generation_time", elapsed).
		Int("proof_bytes", len(proof)).
		Msg("proof generated")

	return &ProofResult{
		Rig:             r.Key,
		Height:          height,
		Proof:           proof,
		PublicInputs:    publicInputs,
		VerificationKey: vk,
		HashPower:       r.HashPower,
		WattConsumption: r.WattConsumption,
		RewardAddress:   r.RewardAddress,
		HardwareID:      c.hardwareID,
		GenerationTime:  elapsed,
	}, nil
}

func (c *HTTPClient) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	return clone.String()
}

var _ Client = (*HTTPClient)(nil)
