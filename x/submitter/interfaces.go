package submitter

import (
	"context"
	"errors"
)

// ErrRetryable marks a broadcast failure as transient. Broadcaster
// implementations wrap transient errors with it; anything else is terminal
// and abandons the submission without further attempts.
var ErrRetryable = errors.New("submitter: retryable broadcast failure")

// ErrAbandoned is the terminal error recorded when the retry budget is
// exhausted.
var ErrAbandoned = errors.New("submitter: submission abandoned")

// Broadcaster submits an encoded transaction to the target ledger and
// returns its transaction hash on acceptance.
type Broadcaster interface {
	BroadcastTx(ctx context.Context, tx []byte) (txHash string, err error)
}
