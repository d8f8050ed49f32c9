package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Commitment is the degree of cluster consensus a result must reach.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// rank orders commitment levels; unknown levels rank below processed.
func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Valid reports whether c is one of the known levels.
func (c Commitment) Valid() bool {
	return c.rank() > 0
}

// Satisfies reports whether an observation at level c meets the required level.
func (c Commitment) Satisfies(required Commitment) bool {
	return c.Valid() && c.rank() >= required.rank()
}

// ParseCommitment converts a user supplied string into a Commitment.
func ParseCommitment(s string) (Commitment, error) {
	c := Commitment(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown commitment level %q", s)
	}
	return c, nil
}

// Outcome is the terminal tag of a submission.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// FailureReason classifies a Failed outcome.
type FailureReason string

const (
	ReasonNetworkRejected  FailureReason = "network-rejected"
	ReasonProgramError     FailureReason = "program-error"
	ReasonSignatureInvalid FailureReason = "signature-invalid"
)

// StatusState is what the ledger reports for a signature at a commitment level.
type StatusState int

const (
	StatusPending StatusState = iota
	StatusConfirmed
	StatusFailed
)

func (s StatusState) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a single observation of a signature.
type Status struct {
	State StatusState
	// Slot is set for confirmed and failed observations.
	Slot uint64
	// Commitment is the level the ledger reported, which may exceed the requested one.
	Commitment Commitment
	// Diagnostic is the ledger's error payload, passed through untouched.
	Diagnostic string
}

// DispatchOptions are forwarded to the endpoint with the raw transaction.
type DispatchOptions struct {
	SkipPreflight       bool
	PreflightCommitment Commitment
}

// Endpoint is the ledger network as seen by the submitter.
type Endpoint interface {
	// LatestBlockhash returns a blockhash recent enough to anchor a new message.
	LatestBlockhash(ctx context.Context, commitment Commitment) (solana.Hash, error)
	// AcceptSubmission dispatches signed transaction bytes.
	AcceptSubmission(ctx context.Context, raw []byte, opts DispatchOptions) (solana.Signature, error)
	// QueryStatus reports the state of sig at the given commitment level.
	QueryStatus(ctx context.Context, sig solana.Signature, commitment Commitment) (Status, error)
}

// Notifier pushes status updates for a signature. The channel is closed when
// the subscription ends for any reason.
type Notifier interface {
	SubscribeSignature(ctx context.Context, sig solana.Signature, commitment Commitment) (<-chan Status, error)
}

// LogFetcher is implemented by endpoints able to return program logs.
type LogFetcher interface {
	TransactionLogs(ctx context.Context, sig solana.Signature) ([]string, error)
}

// Signer produces signatures over serialized messages.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(payload []byte) (solana.Signature, error)
}

// Recorder observes submissions.
type Recorder interface {
	RecordDispatched()
	RecordResult(result *Result)
}

// Options control a single submission.
type Options struct {
	Commitment          Commitment
	Timeout             time.Duration
	PollInterval        time.Duration
	SkipPreflight       bool
	PreflightCommitment Commitment
}

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		Commitment:   CommitmentProcessed,
		Timeout:      DefaultTimeout,
		PollInterval: DefaultPollInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.Commitment == "" {
		o.Commitment = CommitmentProcessed
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PreflightCommitment == "" {
		o.PreflightCommitment = o.Commitment
	}
	return o
}

// Result is the terminal record of one submission. It is not modified after
// Submit returns.
type Result struct {
	Outcome    Outcome
	Signature  solana.Signature
	Slot       uint64
	Commitment Commitment
	Reason     FailureReason
	Diagnostic string
	Logs       []string
	Cause      error

	Instruction string
	StartedAt   time.Time
	DispatchAt  time.Time
	CompletedAt time.Time
	Phases      []Phase
}

// Confirmed reports whether the submission reached the requested commitment.
func (r *Result) Confirmed() bool {
	return r.Outcome == OutcomeConfirmed
}

// Latency is the time from dispatch to the terminal observation. It is zero
// when the transaction was never dispatched.
func (r *Result) Latency() time.Duration {
	if r.DispatchAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.DispatchAt)
}

// Signed reports whether a signature was produced for this submission.
func (r *Result) Signed() bool {
	return r.Signature != (solana.Signature{})
}

// Err maps the outcome onto the error taxonomy. Confirmed results return nil.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeConfirmed:
		return nil
	case OutcomeTimedOut:
		return &ConfirmationTimeout{
			Signature: r.Signature,
			Waited:    r.CompletedAt.Sub(r.StartedAt),
			Cause:     r.Cause,
		}
	default:
		if r.Reason == ReasonProgramError {
			return &ProgramExecutionError{
				Signature:  r.Signature,
				Slot:       r.Slot,
				Diagnostic: r.Diagnostic,
				Logs:       r.Logs,
			}
		}
		return &DispatchRejectedError{Reason: r.Reason, Cause: r.Cause}
	}
}
