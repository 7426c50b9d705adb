package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// rpcRequest is a JSON-RPC 2.0 request as understood by CometBFT RPC.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      uint64          `json:"id"`
}

// rpcMessage covers both the subscribe confirmation and event pushes.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
}

// newBlockEvent is the slice of the NewBlock push payload we care about.
type newBlockEvent struct {
	Data struct {
		Value struct {
			Block struct {
				Header struct {
					Height string `json:"height"`
				} `json:"header"`
			} `json:"block"`
		} `json:"value"`
	} `json:"data"`
}

// wsStream is a subscribed CometBFT WebSocket connection.
type wsStream struct {
	conn      *websocket.Conn
	log       zerolog.Logger
	closeOnce sync.Once
}

// newWSDialer returns a Dialer that connects to cfg.Endpoint and issues the
// subscribe request. The returned stream is already in the Subscribed state:
// the dialer waits for the subscription confirmation before handing it over.
func newWSDialer(cfg Config, log zerolog.Logger) Dialer {
	return func(ctx context.Context) (Stream, error) {
		dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
		conn, resp, err := dialer.DialContext(ctx, cfg.Endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
		}
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}

		params, _ := json.Marshal(map[string]string{"query": cfg.Query})
		req := rpcRequest{JSONRPC: "2.0", Method: "subscribe", Params: params, ID: 1}
		if err := conn.WriteJSON(req); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("send subscribe: %w", err)
		}

		// The first message with our request ID confirms the subscription.
		var confirm rpcMessage
		if err := conn.ReadJSON(&confirm); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("read subscribe confirmation: %w", err)
		}
		if confirm.Error != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("subscribe rejected: %w", confirm.Error)
		}

		s := &wsStream{conn: conn, log: log}

		// Unblock pending reads when the run context ends.
		go func() {
			<-ctx.Done()
			_ = s.Close()
		}()

		return s, nil
	}
}

// NextHeight reads event pushes until one carries a block height.
func (s *wsStream) NextHeight(ctx context.Context) (uint64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		var msg rpcMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return 0, fmt.Errorf("read event: %w", err)
		}
		if msg.Error != nil {
			return 0, msg.Error
		}
		if len(msg.Result) == 0 {
			continue
		}

		var event newBlockEvent
		if err := json.Unmarshal(msg.Result, &event); err != nil {
			s.log.Warn().Err(err).Msg("unparseable event payload, skipping")
			continue
		}
		raw := event.Data.Value.Block.Header.Height
		if raw == "" {
			continue
		}

		height, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.log.Warn().Str("height", raw).Msg("malformed block height, skipping")
			continue
		}
		return height, nil
	}
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}

var _ Stream = (*wsStream)(nil)
