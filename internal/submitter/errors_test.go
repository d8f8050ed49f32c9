package submitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func TestResult_Err(t *testing.T) {
	sig := solana.Signature{7}
	start := time.Now()

	tests := []struct {
		name     string
		result   Result
		sentinel error
	}{
		{"confirmed", Result{Outcome: OutcomeConfirmed}, nil},
		{"network rejected", Result{Outcome: OutcomeFailed, Reason: ReasonNetworkRejected, Cause: errors.New("refused")}, ErrDispatchRejected},
		{"signature invalid", Result{Outcome: OutcomeFailed, Reason: ReasonSignatureInvalid}, ErrDispatchRejected},
		{"program error", Result{Outcome: OutcomeFailed, Reason: ReasonProgramError, Signature: sig}, ErrProgramExecution},
		{"timed out", Result{Outcome: OutcomeTimedOut, Signature: sig, StartedAt: start, CompletedAt: start.Add(time.Second), Cause: context.DeadlineExceeded}, ErrConfirmationTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Err()
			if tt.sentinel == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.sentinel)
			for _, other := range []error{ErrMalformedCall, ErrDispatchRejected, ErrProgramExecution, ErrConfirmationTimeout} {
				if other != tt.sentinel {
					assert.NotErrorIs(t, err, other)
				}
			}
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &DispatchRejectedError{Reason: ReasonNetworkRejected, Cause: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "network-rejected")

	timeout := &ConfirmationTimeout{Signature: solana.Signature{1}, Waited: 1500 * time.Millisecond, Cause: context.Canceled}
	assert.ErrorIs(t, timeout, context.Canceled)
	assert.Contains(t, timeout.Error(), "1.5s")

	rej := &RejectionError{Reason: ReasonSignatureInvalid, Code: -32003, Message: "Transaction signature verification failure"}
	assert.Equal(t, "signature-invalid (code -32003): Transaction signature verification failure", rej.Error())
}

func TestResult_Latency(t *testing.T) {
	start := time.Now()
	r := Result{StartedAt: start}
	assert.Zero(t, r.Latency())

	r.DispatchAt = start.Add(10 * time.Millisecond)
	r.CompletedAt = start.Add(110 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, r.Latency())
}
