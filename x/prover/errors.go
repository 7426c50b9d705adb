package prover

import "errors"

// ErrUnavailable indicates the prover service could not be reached or
// answered with a server-side failure.
var ErrUnavailable = errors.New("prover: service unavailable")

// ErrTimeout indicates the per-call deadline elapsed before the prover
// produced a proof.
var ErrTimeout = errors.New("prover: proof generation timed out")

// ErrRejected indicates the prover refused the job (bad inputs, quota,
// unsupported hardware). Retrying the same request will not help.
var ErrRejected = errors.New("prover: job rejected")
