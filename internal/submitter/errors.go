package submitter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrMalformedCall       = errors.New("malformed instruction call")
	ErrDispatchRejected    = errors.New("dispatch rejected")
	ErrProgramExecution    = errors.New("program execution failed")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// MalformedCallError is a local validation failure. Calls that produce it
// never reach the network.
type MalformedCallError struct {
	Field   string
	Problem string
}

func (e *MalformedCallError) Error() string {
	return fmt.Sprintf("malformed call: %s: %s", e.Field, e.Problem)
}

func (e *MalformedCallError) Is(target error) bool {
	return target == ErrMalformedCall
}

// DispatchRejectedError means the network refused the submitted bytes.
type DispatchRejectedError struct {
	Reason FailureReason
	Cause  error
}

func (e *DispatchRejectedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("dispatch rejected (%s)", e.Reason)
	}
	return fmt.Sprintf("dispatch rejected (%s): %v", e.Reason, e.Cause)
}

func (e *DispatchRejectedError) Unwrap() error {
	return e.Cause
}

func (e *DispatchRejectedError) Is(target error) bool {
	return target == ErrDispatchRejected
}

// ProgramExecutionError carries the program's failure report as-is.
type ProgramExecutionError struct {
	Signature  solana.Signature
	Slot       uint64
	Diagnostic string
	Logs       []string
}

func (e *ProgramExecutionError) Error() string {
	var b strings.Builder
	b.WriteString("program execution failed")
	if e.Signature != (solana.Signature{}) {
		fmt.Fprintf(&b, " for %s", e.Signature)
	}
	if e.Diagnostic != "" {
		fmt.Fprintf(&b, ": %s", e.Diagnostic)
	}
	return b.String()
}

func (e *ProgramExecutionError) Is(target error) bool {
	return target == ErrProgramExecution
}

// ConfirmationTimeout means no definitive status was observed in time. The
// transaction may still land.
type ConfirmationTimeout struct {
	Signature solana.Signature
	Waited    time.Duration
	Cause     error
}

func (e *ConfirmationTimeout) Error() string {
	return fmt.Sprintf("no definitive status for %s after %s", e.Signature, e.Waited.Round(time.Millisecond))
}

func (e *ConfirmationTimeout) Unwrap() error {
	return e.Cause
}

func (e *ConfirmationTimeout) Is(target error) bool {
	return target == ErrConfirmationTimeout
}

// RejectionError is returned by endpoints that can classify a refusal.
type RejectionError struct {
	Reason     FailureReason
	Code       int
	Message    string
	Diagnostic string
	Logs       []string
}

func (e *RejectionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d): %s", e.Reason, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}
