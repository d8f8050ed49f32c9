package longsender

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/0xmhha/txsubmit/internal/submitter"
	"github.com/0xmhha/txsubmit/internal/util/mathutil"
)

// LongSender keeps submitting calls at a steady rate until its duration
// passes or the context ends. Every submission runs its own full lifecycle.
type LongSender struct {
	submitter Submitter
	config    *Config
	limiter   *rate.Limiter
	logger    *zap.Logger
	callbacks *Callbacks

	seq        atomic.Int64
	dispatched atomic.Int64
	confirmed  atomic.Int64

	mu      sync.Mutex
	results []*submitter.Result

	startTime time.Time
}

// New creates a new LongSender instance
func New(s Submitter, config *Config) *LongSender {
	if config == nil {
		config = DefaultConfig()
	}
	return &LongSender{
		submitter: s,
		config:    config,
		limiter:   rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
		logger:    zap.NewNop(),
	}
}

// WithLogger sets the logger
func (l *LongSender) WithLogger(logger *zap.Logger) *LongSender {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// WithCallbacks sets the callbacks for live monitoring
func (l *LongSender) WithCallbacks(callbacks *Callbacks) *LongSender {
	l.callbacks = callbacks
	return l
}

// Run submits calls from build, rotating through signers, until the
// configured duration passes. A call that cannot be built or is malformed
// stops the run: it would fail the same way on every iteration.
func (l *LongSender) Run(ctx context.Context, signers []submitter.Signer, build CallSource) (*Result, error) {
	if len(signers) == 0 {
		return nil, errors.New("no signers provided")
	}
	if build == nil {
		return nil, errors.New("no call source provided")
	}
	if err := l.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runCtx := ctx
	if l.config.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.config.Duration)
		defer cancel()
	}

	l.startTime = time.Now()
	l.logger.Info("long run started",
		zap.Duration("duration", l.config.Duration),
		zap.Float64("rate", l.config.Rate),
		zap.Int("workers", l.config.Workers),
		zap.Int("signers", len(signers)))

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < l.config.Workers; i++ {
		g.Go(func() error {
			return l.worker(gctx, ctx, signers, build)
		})
	}
	err := g.Wait()

	result := l.result(time.Since(l.startTime))
	l.logger.Info("long run finished",
		zap.Int("submitted", result.TotalSubmitted),
		zap.Int("confirmed", result.TotalConfirmed),
		zap.Int("failed", result.TotalFailed),
		zap.Int("timed_out", result.TotalTimedOut),
		zap.Duration("duration", result.TotalDuration))
	return result, err
}

// worker starts submissions while runCtx is live. Submissions already
// started finish under parent so the duration cut-off never truncates a
// confirmation wait; each is still bounded by its own timeout.
func (l *LongSender) worker(runCtx, parent context.Context, signers []submitter.Signer, build CallSource) error {
	for {
		if err := l.limiter.Wait(runCtx); err != nil {
			return nil
		}
		if runCtx.Err() != nil {
			return nil
		}

		seq := l.seq.Add(1) - 1
		signer := signers[seq%int64(len(signers))]

		call, err := build(seq, signer)
		if err != nil {
			return fmt.Errorf("failed to build call %d: %w", seq, err)
		}
		res, err := l.submitter.Submit(parent, call, signer, l.config.Options)
		if err != nil {
			return fmt.Errorf("call %d: %w", seq, err)
		}
		l.record(res)
	}
}

func (l *LongSender) record(res *submitter.Result) {
	if slices.Contains(res.Phases, submitter.PhaseDispatched) {
		l.dispatched.Add(1)
		if l.callbacks != nil && l.callbacks.OnDispatched != nil {
			l.callbacks.OnDispatched()
		}
	}
	if res.Confirmed() {
		l.confirmed.Add(1)
	}

	l.mu.Lock()
	l.results = append(l.results, res)
	l.mu.Unlock()

	if l.callbacks != nil && l.callbacks.OnResult != nil {
		l.callbacks.OnResult(res)
	}
}

func (l *LongSender) result(duration time.Duration) *Result {
	l.mu.Lock()
	results := append([]*submitter.Result(nil), l.results...)
	l.mu.Unlock()

	r := &Result{
		TotalSubmitted: len(results),
		TotalDuration:  duration,
		Results:        results,
	}
	for _, res := range results {
		switch res.Outcome {
		case submitter.OutcomeConfirmed:
			r.TotalConfirmed++
		case submitter.OutcomeTimedOut:
			r.TotalTimedOut++
		default:
			r.TotalFailed++
		}
	}
	if secs := duration.Seconds(); secs > 0 {
		dispatched, err := mathutil.Int64ToInt(l.dispatched.Load())
		if err == nil {
			r.SendRate = float64(dispatched) / secs
		}
		r.ConfirmedTPS = float64(r.TotalConfirmed) / secs
	}
	return r
}

// Stats returns the running totals: dispatched, confirmed and the send rate
// since the run started.
func (l *LongSender) Stats() (dispatched, confirmed int64, sendRate float64) {
	dispatched = l.dispatched.Load()
	confirmed = l.confirmed.Load()
	if l.startTime.IsZero() {
		return dispatched, confirmed, 0
	}
	if elapsed := time.Since(l.startTime).Seconds(); elapsed > 0 {
		sendRate = float64(dispatched) / elapsed
	}
	return dispatched, confirmed, sendRate
}
