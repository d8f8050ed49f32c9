package batcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/0xmhha/txsubmit/internal/submitter"
	"github.com/0xmhha/txsubmit/internal/util/progress"
)

// Submitter is the core submission operation.
type Submitter interface {
	Submit(ctx context.Context, call *submitter.InstructionCall, signer submitter.Signer, opts submitter.Options) (*submitter.Result, error)
}

// PendingGauge observes submissions still awaiting a terminal outcome.
type PendingGauge interface {
	SetPendingCount(count int)
}

// Batcher runs many independent submissions concurrently. Each submission
// keeps its own lifecycle; the batcher only schedules them.
type Batcher struct {
	submitter Submitter
	config    *Config
	limiter   *rate.Limiter
	gauge     PendingGauge
	logger    *zap.Logger
	out       io.Writer

	pending atomic.Int64
}

// Option configures a Batcher.
type Option func(*Batcher)

func WithPendingGauge(g PendingGauge) Option {
	return func(b *Batcher) { b.gauge = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Batcher) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithOutput redirects the progress bar; nil disables it.
func WithOutput(w io.Writer) Option {
	return func(b *Batcher) { b.out = w }
}

// New creates a new Batcher instance
func New(s Submitter, config *Config, opts ...Option) *Batcher {
	if config == nil {
		config = DefaultConfig()
	}
	_ = config.Validate()

	b := &Batcher{
		submitter: s,
		config:    config,
		logger:    zap.NewNop(),
		out:       os.Stdout,
	}
	if config.Rate > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(config.Rate), config.Burst)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SubmitAll submits every job and waits for all of them. A malformed job
// stops scheduling before its own I/O; jobs already running finish under
// ctx and their results are returned together with the error. Cancelling
// ctx stops scheduling and lets running submissions time out.
func (b *Batcher) SubmitAll(ctx context.Context, jobs []Job) (*Summary, error) {
	if len(jobs) == 0 {
		return &Summary{}, nil
	}

	b.logger.Info("starting batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", b.config.Workers),
		zap.Float64("rate", b.config.Rate))

	startTime := time.Now()
	bar := progress.New(b.out, len(jobs), "submitting")
	results := make([]*submitter.Result, len(jobs))

	// schedCtx only gates scheduling; submissions run under ctx.
	eg, schedCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.config.Workers)

	for i, job := range jobs {
		if b.limiter != nil {
			if err := b.limiter.Wait(schedCtx); err != nil {
				break
			}
		}
		if schedCtx.Err() != nil {
			break
		}

		eg.Go(func() error {
			b.setPending(1)
			defer b.setPending(-1)

			res, err := b.submitter.Submit(ctx, job.Call, job.Signer, b.config.Options)
			if err != nil {
				return fmt.Errorf("job %d: %w", i, err)
			}
			results[i] = res
			progress.Add(bar, 1)
			return nil
		})
	}

	err := eg.Wait()

	summary := buildSummary(results, time.Since(startTime))
	summary.Skipped = len(jobs) - summary.TotalTxs
	b.logger.Info("batch finished",
		zap.Int("confirmed", summary.ConfirmedCount),
		zap.Int("failed", summary.FailedCount),
		zap.Int("timed_out", summary.TimedOutCount),
		zap.Duration("duration", summary.TotalDuration),
		zap.Error(err))
	return summary, err
}

func (b *Batcher) setPending(delta int64) {
	n := b.pending.Add(delta)
	if b.gauge != nil {
		b.gauge.SetPendingCount(int(n))
	}
}

// buildSummary skips jobs that were never scheduled.
func buildSummary(results []*submitter.Result, duration time.Duration) *Summary {
	summary := &Summary{TotalDuration: duration, Results: make([]*submitter.Result, 0, len(results))}

	for _, r := range results {
		if r == nil {
			continue
		}
		summary.Results = append(summary.Results, r)
		summary.TotalTxs++
		if slices.Contains(r.Phases, submitter.PhaseDispatched) {
			summary.DispatchedTxs++
		}
		switch r.Outcome {
		case submitter.OutcomeConfirmed:
			summary.ConfirmedCount++
		case submitter.OutcomeFailed:
			summary.FailedCount++
		case submitter.OutcomeTimedOut:
			summary.TimedOutCount++
		}
	}

	if duration.Seconds() > 0 {
		summary.SendRate = float64(summary.DispatchedTxs) / duration.Seconds()
	}
	return summary
}
