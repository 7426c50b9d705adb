package submitter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Ledger response codes that indicate transient congestion rather than a
// rejected transaction.
const codeMempoolFull = 20

// RPCBroadcaster submits transactions through the target ledger's JSON-RPC
// broadcast_tx_sync endpoint.
type RPCBroadcaster struct {
	endpoint   string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewRPCBroadcaster constructs a broadcaster for the given RPC endpoint.
func NewRPCBroadcaster(endpoint string, httpClient *http.Client, log zerolog.Logger) (*RPCBroadcaster, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("ledger RPC endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid ledger RPC endpoint: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &RPCBroadcaster{
		endpoint:   endpoint,
		httpClient: httpClient,
		log:        log.With().Str("component", "ledger-broadcaster").Logger(),
	}, nil
}

type broadcastRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      uint64          `json:"id"`
}

type broadcastResponse struct {
	Result *broadcastResult `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    string `json:"data"`
	} `json:"error"`
}

type broadcastResult struct {
	Code uint32 `json:"code"`
	Log  string `json:"log"`
	Hash string `json:"hash"`
}

// BroadcastTx submits the transaction. Transport failures, server errors,
// and mempool congestion come back wrapped in ErrRetryable; a non-zero
// application code is a terminal rejection.
func (b *RPCBroadcaster) BroadcastTx(ctx context.Context, tx []byte) (string, error) {
	params, _ := json.Marshal(map[string]string{
		"tx": base64.StdEncoding.EncodeToString(tx),
	})
	body, err := json.Marshal(broadcastRequest{
		JSONRPC: "2.0",
		Method:  "broadcast_tx_sync",
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return "", fmt.Errorf("marshal broadcast request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("prepare broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("%w: %s: %s", ErrRetryable, res.Status, string(msg))
	}
	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("ledger returned %s: %s", res.Status, string(msg))
	}

	var reply broadcastResponse
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("%w: decode broadcast response: %v", ErrRetryable, err)
	}
	if reply.Error != nil {
		// RPC-level errors are transport problems (timeout, overload),
		// not verdicts on the transaction itself.
		return "", fmt.Errorf("%w: rpc error %d: %s", ErrRetryable, reply.Error.Code, reply.Error.Message)
	}
	if reply.Result == nil {
		return "", fmt.Errorf("%w: empty broadcast result", ErrRetryable)
	}

	if reply.Result.Code == codeMempoolFull {
		return "", fmt.Errorf("%w: mempool full: %s", ErrRetryable, reply.Result.Log)
	}
	if reply.Result.Code != 0 {
		return "", fmt.Errorf("ledger rejected tx (code %d): %s", reply.Result.Code, reply.Result.Log)
	}

	return reply.Result.Hash, nil
}

var _ Broadcaster = (*RPCBroadcaster)(nil)
