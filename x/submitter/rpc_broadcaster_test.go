package submitter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(t *testing.T, handler http.Handler) *RPCBroadcaster {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := NewRPCBroadcaster(srv.URL, srv.Client(), zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestBroadcastTxSuccess(t *testing.T) {
	t.Parallel()

	var gotReq broadcastRequest
	b := newTestBroadcaster(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(broadcastResponse{
			Result: &broadcastResult{Code: 0, Hash: "ABCDEF"},
		})
	}))

	tx := []byte(`{"type":"mining/ProcessCrossChainMessage"}`)
	hash, err := b.BroadcastTx(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, "ABCDEF", hash)

	require.Equal(t, "broadcast_tx_sync", gotReq.Method)
	var params map[string]string
	require.NoError(t, json.Unmarshal(gotReq.Params, &params))
	decoded, err := base64.StdEncoding.DecodeString(params["tx"])
	require.NoError(t, err)
	require.Equal(t, tx, decoded)
}

func TestBroadcastTxServerErrorIsRetryable(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))

	_, err := b.BroadcastTx(context.Background(), []byte("tx"))
	require.ErrorIs(t, err, ErrRetryable)
}

func TestBroadcastTxRPCErrorIsRetryable(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":-32603,"message":"timed out waiting for tx"}}`))
	}))

	_, err := b.BroadcastTx(context.Background(), []byte("tx"))
	require.ErrorIs(t, err, ErrRetryable)
}

func TestBroadcastTxMempoolFullIsRetryable(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(broadcastResponse{
			Result: &broadcastResult{Code: codeMempoolFull, Log: "mempool is full"},
		})
	}))

	_, err := b.BroadcastTx(context.Background(), []byte("tx"))
	require.ErrorIs(t, err, ErrRetryable)
}

func TestBroadcastTxRejectionIsTerminal(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(broadcastResponse{
			Result: &broadcastResult{Code: 4, Log: "invalid proof"},
		})
	}))

	_, err := b.BroadcastTx(context.Background(), []byte("tx"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRetryable)
}

func TestBroadcastTxUnreachableIsRetryable(t *testing.T) {
	t.Parallel()

	b, err := NewRPCBroadcaster("http://127.0.0.1:1", nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = b.BroadcastTx(context.Background(), []byte("tx"))
	require.ErrorIs(t, err, ErrRetryable)
}

func TestNewRPCBroadcasterRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewRPCBroadcaster("  ", nil, zerolog.Nop())
	require.Error(t, err)
}
