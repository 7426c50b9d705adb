package submitter

// State is the lifecycle state of one submission.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateAbandoned State = "abandoned"
)

// SubmissionRecord tracks one (rig, height) submission through the pipeline.
// At most one record per key reaches confirmed.
type SubmissionRecord struct {
	Attempts int
	LastErr  error
	TxHash   string
	State    State
}
