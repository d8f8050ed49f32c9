package batcher

import (
	"time"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// Job is one submission of a batch.
type Job struct {
	Call   *submitter.InstructionCall
	Signer submitter.Signer
}

// Summary represents the overall batch operation summary
type Summary struct {
	TotalTxs       int
	ConfirmedCount int
	FailedCount    int
	TimedOutCount  int
	DispatchedTxs  int
	// Skipped jobs were never started because the context ended.
	Skipped       int
	TotalDuration time.Duration
	// SendRate counts dispatched transactions per second of wall time.
	SendRate float64
	// Results are in job order.
	Results []*submitter.Result
}

// AllConfirmed reports whether every job reached its commitment.
func (s *Summary) AllConfirmed() bool {
	return s.TotalTxs > 0 && s.Skipped == 0 && s.ConfirmedCount == s.TotalTxs
}

// Config holds batcher configuration
type Config struct {
	// Workers is the number of concurrent submissions
	Workers int

	// Rate caps submissions started per second; zero disables the cap
	Rate float64

	// Burst is the maximum burst size
	Burst int

	// Options apply to every submission
	Options submitter.Options
}

// DefaultConfig returns default batcher configuration
func DefaultConfig() *Config {
	return &Config{
		Workers: 1,
		Burst:   1,
		Options: submitter.DefaultOptions(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Rate < 0 {
		c.Rate = 0
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}
