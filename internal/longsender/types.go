package longsender

import (
	"context"
	"errors"
	"time"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// Submitter is the single-call submission operation.
type Submitter interface {
	Submit(ctx context.Context, call *submitter.InstructionCall, signer submitter.Signer, opts submitter.Options) (*submitter.Result, error)
}

// CallSource builds the call for the seq-th submission, signed by signer.
type CallSource func(seq int64, signer submitter.Signer) (*submitter.InstructionCall, error)

// Config holds configuration for the LongSender
type Config struct {
	Duration time.Duration // Total run time (0 = run until canceled)
	Rate     float64       // Target submissions started per second
	Burst    int           // Rate limiter burst size
	Workers  int           // Concurrent submissions in flight

	// Options apply to every submission
	Options submitter.Options
}

// DefaultConfig returns default LongSender configuration
func DefaultConfig() *Config {
	return &Config{
		Duration: time.Minute,
		Rate:     2,
		Burst:    1,
		Workers:  4,
		Options:  submitter.DefaultOptions(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Rate <= 0 {
		return errors.New("rate must be positive")
	}
	if c.Burst <= 0 {
		return errors.New("burst must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	return nil
}

// Result holds the results of a long sender run
type Result struct {
	TotalSubmitted int
	TotalConfirmed int
	TotalFailed    int
	TotalTimedOut  int
	TotalDuration  time.Duration
	// SendRate counts dispatched transactions per second of wall time.
	SendRate float64
	// ConfirmedTPS counts confirmed transactions per second of wall time.
	ConfirmedTPS float64
	// Results are in completion order.
	Results []*submitter.Result
}

// Callbacks observe submissions as they complete.
type Callbacks struct {
	OnDispatched func()
	OnResult     func(res *submitter.Result)
}
