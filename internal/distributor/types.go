package distributor

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// AccountStatus represents the funding status of an account
type AccountStatus struct {
	Address     solana.PublicKey
	Balance     uint64
	Required    uint64
	Missing     uint64
	IsFunded    bool
	AirdropSig  solana.Signature
	AirdropSlot uint64
}

// DistributionResult holds the result of funding
type DistributionResult struct {
	// Accounts that hold at least the required balance
	ReadyAccounts []*AccountStatus

	// Accounts that could not be funded
	UnfundedAccounts []*AccountStatus

	// Total lamports requested from the faucet
	TotalRequested uint64

	// Number of airdrop transactions confirmed
	TxCount int
}

// Config holds funding configuration
type Config struct {
	// Minimum lamports every account must hold
	MinBalance uint64

	// Lamports requested per airdrop; zero requests exactly the shortfall
	AirdropLamports uint64

	// Commitment for balance reads and airdrop confirmation
	Commitment submitter.Commitment

	// Confirmation wait per airdrop
	Timeout      time.Duration
	PollInterval time.Duration
}

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// DefaultConfig returns default funding configuration
func DefaultConfig() *Config {
	return &Config{
		MinBalance:      LamportsPerSOL / 10,
		AirdropLamports: LamportsPerSOL,
		Commitment:      submitter.CommitmentConfirmed,
		Timeout:         30 * time.Second,
		PollInterval:    500 * time.Millisecond,
	}
}

// RequestAmount returns the lamports to request for a shortfall.
func (c *Config) RequestAmount(missing uint64) uint64 {
	if c.AirdropLamports > missing {
		return c.AirdropLamports
	}
	return missing
}
