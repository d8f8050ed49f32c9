package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// Solana JSON-RPC server error codes relevant to dispatch.
const (
	codePreflightFailure             = -32002
	codeSignatureVerificationFailure = -32003
)

// classifyRejection maps a sendTransaction error onto a failure reason.
// Simulation failures raised by an instruction are program errors; anything
// the node refuses for other reasons is a network rejection.
func classifyRejection(err error) *submitter.RejectionError {
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return &submitter.RejectionError{
			Reason:  submitter.ReasonNetworkRejected,
			Message: err.Error(),
		}
	}

	rej := &submitter.RejectionError{
		Reason:  submitter.ReasonNetworkRejected,
		Code:    rpcErr.Code,
		Message: rpcErr.Message,
	}

	switch rpcErr.Code {
	case codeSignatureVerificationFailure:
		rej.Reason = submitter.ReasonSignatureInvalid
	case codePreflightFailure:
		data, _ := rpcErr.Data.(map[string]any)
		txErr := data["err"]
		rej.Diagnostic = diagnosticString(txErr)
		rej.Logs = stringSlice(data["logs"])
		switch {
		case isInstructionError(txErr):
			rej.Reason = submitter.ReasonProgramError
		case txErr == "SignatureFailure":
			rej.Reason = submitter.ReasonSignatureInvalid
		}
	}
	return rej
}

func isInstructionError(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m["InstructionError"]
	return ok
}

// diagnosticString renders a transaction error payload without interpreting it.
func diagnosticString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.RawMessage:
		return string(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
