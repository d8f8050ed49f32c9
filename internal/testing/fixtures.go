package testing

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/0xmhha/txsubmit/internal/config"
	"github.com/0xmhha/txsubmit/internal/submitter"
)

// TestConfig creates a valid test configuration
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		URL:          "http://127.0.0.1:8899",
		Mnemonic:     TestMnemonic,
		ProgramID:    TestProgramID,
		Instruction:  "initialize",
		Commitment:   "processed",
		Timeout:      30 * time.Second,
		PollInterval: 500 * time.Millisecond,
		Count:        1,
		Workers:      1,
	}
}

// InvalidConfigs returns a set of invalid configurations for testing validation
func InvalidConfigs(t *testing.T) map[string]*config.Config {
	t.Helper()
	mutate := func(f func(*config.Config)) *config.Config {
		cfg := TestConfig(t)
		f(cfg)
		return cfg
	}
	return map[string]*config.Config{
		"missing_url":         mutate(func(c *config.Config) { c.URL = "" }),
		"invalid_url":         mutate(func(c *config.Config) { c.URL = "invalid-url" }),
		"invalid_ws_url":      mutate(func(c *config.Config) { c.WSURL = "http://127.0.0.1:8900" }),
		"missing_credentials": mutate(func(c *config.Config) { c.Mnemonic = "" }),
		"two_credentials":     mutate(func(c *config.Config) { c.SecretKey = "3yZe7d" }),
		"invalid_program_id":  mutate(func(c *config.Config) { c.ProgramID = "not-base58-0OIl" }),
		"invalid_commitment":  mutate(func(c *config.Config) { c.Commitment = "max" }),
		"invalid_instruction": mutate(func(c *config.Config) { c.Instruction = "withdraw" }),
		"negative_count":      mutate(func(c *config.Config) { c.Count = -1 }),
		"invalid_export":      mutate(func(c *config.Config) { c.Export = "xml" }),
	}
}

// TestCall builds a well-formed call signed by payer.
func TestCall(t *testing.T, payer solana.PublicKey) *submitter.InstructionCall {
	t.Helper()
	return submitter.NewInstructionCall(
		MustPublicKey(t, TestProgramID),
		"initialize",
		[]submitter.AccountRef{{PublicKey: payer, Writable: true, Signer: true}},
		[]byte{0xaf, 0xaf, 0x6d, 0x1f, 0x0d, 0x98, 0x9b, 0xed},
	)
}

// FastOptions returns submit options with short intervals for unit tests.
func FastOptions() submitter.Options {
	return submitter.Options{
		Commitment:   submitter.CommitmentProcessed,
		Timeout:      2 * time.Second,
		PollInterval: 5 * time.Millisecond,
	}
}
