package monitor

import (
	"context"
	"errors"
	"time"
)

// ErrConnectionLost wraps the stream error that ended a subscription.
// It never escapes Run; it exists so the loss is distinguishable in logs.
var ErrConnectionLost = errors.New("monitor: event stream connection lost")

// Trigger is one round of proof generation, tied to a ledger height.
type Trigger struct {
	Height     uint64
	ObservedAt time.Time
}

// Stream is one live, subscribed connection to the event source.
type Stream interface {
	// NextHeight blocks until the next new-block event and returns its
	// height. Any error ends the stream; the monitor reconnects.
	NextHeight(ctx context.Context) (uint64, error)
	Close() error
}

// Dialer opens a Stream and completes the subscription handshake.
// The monitor re-invokes it with the identical request on every reconnect.
type Dialer func(ctx context.Context) (Stream, error)
