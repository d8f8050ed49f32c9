package submitter

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AccountRef is one account an instruction touches.
type AccountRef struct {
	PublicKey solana.PublicKey
	Writable  bool
	Signer    bool
}

// InstructionCall is a single program invocation. Values are copied on the
// way in and out so a call cannot change after construction.
type InstructionCall struct {
	program  solana.PublicKey
	name     string
	accounts []AccountRef
	data     []byte
}

// NewInstructionCall captures a program invocation. It does not validate;
// Submit does that before touching the network.
func NewInstructionCall(program solana.PublicKey, name string, accounts []AccountRef, data []byte) *InstructionCall {
	return &InstructionCall{
		program:  program,
		name:     name,
		accounts: append([]AccountRef(nil), accounts...),
		data:     append([]byte(nil), data...),
	}
}

func (c *InstructionCall) ProgramID() solana.PublicKey { return c.program }

func (c *InstructionCall) Name() string { return c.name }

func (c *InstructionCall) Accounts() []AccountRef {
	return append([]AccountRef(nil), c.accounts...)
}

func (c *InstructionCall) Data() []byte {
	return append([]byte(nil), c.data...)
}

// Validate checks the call against the signer that will pay for and sign it.
func (c *InstructionCall) Validate(signer solana.PublicKey) error {
	if c == nil {
		return &MalformedCallError{Field: "call", Problem: "nil instruction call"}
	}
	if c.program.IsZero() {
		return &MalformedCallError{Field: "program", Problem: "empty target program"}
	}
	if len(c.accounts) == 0 {
		return &MalformedCallError{Field: "accounts", Problem: "empty account list"}
	}

	seen := make(map[solana.PublicKey]AccountRef, len(c.accounts))
	for i, acc := range c.accounts {
		// The all-zero address is the System Program and only valid read-only.
		if acc.PublicKey.IsZero() && (acc.Writable || acc.Signer) {
			return &MalformedCallError{
				Field:   fmt.Sprintf("accounts[%d]", i),
				Problem: "zero public key",
			}
		}
		if prev, ok := seen[acc.PublicKey]; ok {
			if prev.Writable != acc.Writable || prev.Signer != acc.Signer {
				return &MalformedCallError{
					Field:   fmt.Sprintf("accounts[%d]", i),
					Problem: fmt.Sprintf("%s listed twice with conflicting writable/signer flags", acc.PublicKey),
				}
			}
			continue
		}
		seen[acc.PublicKey] = acc
		if acc.Signer && !acc.PublicKey.Equals(signer) {
			return &MalformedCallError{
				Field:   fmt.Sprintf("accounts[%d]", i),
				Problem: fmt.Sprintf("%s must sign but the signer is %s", acc.PublicKey, signer),
			}
		}
	}
	return nil
}

func (c *InstructionCall) instruction() solana.Instruction {
	metas := make(solana.AccountMetaSlice, 0, len(c.accounts))
	for _, acc := range c.accounts {
		metas = append(metas, solana.NewAccountMeta(acc.PublicKey, acc.Writable, acc.Signer))
	}
	return solana.NewInstruction(c.program, metas, c.Data())
}
