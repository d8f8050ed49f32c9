// Package submitter turns an instruction call into a signed Solana
// transaction, dispatches it and waits for a definitive outcome.
package submitter

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

const logFetchTimeout = 5 * time.Second

// Submitter owns no per-submission state, so a single instance may serve any
// number of concurrent Submit calls.
type Submitter struct {
	endpoint Endpoint
	notifier Notifier
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithNotifier enables push confirmation alongside polling.
func WithNotifier(n Notifier) Option {
	return func(s *Submitter) { s.notifier = n }
}

func WithRecorder(r Recorder) Option {
	return func(s *Submitter) { s.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Submitter) { s.now = now }
}

// New creates a Submitter bound to endpoint.
func New(endpoint Endpoint, opts ...Option) *Submitter {
	s := &Submitter{
		endpoint: endpoint,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit builds, signs and dispatches call, then waits for the requested
// commitment. The returned error is non-nil only for a *MalformedCallError,
// in which case no network I/O was performed. Every other path yields a
// terminal Result.
func (s *Submitter) Submit(ctx context.Context, call *InstructionCall, signer Signer, opts Options) (*Result, error) {
	if signer == nil {
		return nil, &MalformedCallError{Field: "signer", Problem: "nil signer"}
	}
	payer := signer.PublicKey()
	if payer.IsZero() {
		return nil, &MalformedCallError{Field: "signer", Problem: "zero public key"}
	}
	if err := call.Validate(payer); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if !opts.Commitment.Valid() {
		return nil, &MalformedCallError{Field: "commitment", Problem: "unknown level " + string(opts.Commitment)}
	}
	if !opts.PreflightCommitment.Valid() {
		return nil, &MalformedCallError{Field: "preflight commitment", Problem: "unknown level " + string(opts.PreflightCommitment)}
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{call.instruction()},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return nil, &MalformedCallError{Field: "call", Problem: err.Error()}
	}

	logger := s.logger.With(zap.String("instruction", call.Name()), zap.Stringer("program", call.ProgramID()))
	lc := newLifecycle(logger)
	res := &Result{
		Instruction: call.Name(),
		Commitment:  opts.Commitment,
		StartedAt:   s.now(),
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	blockhash, err := s.endpoint.LatestBlockhash(ctx, opts.PreflightCommitment)
	if err != nil {
		if ctx.Err() != nil {
			return s.timedOut(res, lc, logger, ctx.Err()), nil
		}
		return s.rejected(res, lc, logger, err), nil
	}
	tx.Message.RecentBlockhash = blockhash

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, &MalformedCallError{Field: "call", Problem: err.Error()}
	}
	sig, err := signer.Sign(msg)
	if err != nil {
		return s.failed(res, lc, logger, ReasonSignatureInvalid, err), nil
	}
	if !ed25519.Verify(ed25519.PublicKey(payer[:]), msg, sig[:]) {
		return s.failed(res, lc, logger, ReasonSignatureInvalid, errors.New("signature does not verify against signer public key")), nil
	}
	tx.Signatures = []solana.Signature{sig}
	res.Signature = sig

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, &MalformedCallError{Field: "call", Problem: err.Error()}
	}

	res.DispatchAt = s.now()
	accepted, err := s.endpoint.AcceptSubmission(ctx, raw, DispatchOptions{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: opts.PreflightCommitment,
	})
	if err != nil {
		if ctx.Err() != nil {
			// The bytes may have reached the network; the fate is unknown.
			return s.timedOut(res, lc, logger, ctx.Err()), nil
		}
		return s.rejected(res, lc, logger, err), nil
	}
	if accepted != (solana.Signature{}) && accepted != sig {
		logger.Warn("endpoint returned a different signature",
			zap.Stringer("local", sig), zap.Stringer("accepted", accepted))
		res.Signature = accepted
	}
	s.mustAdvance(lc, PhaseDispatched)
	if s.recorder != nil {
		s.recorder.RecordDispatched()
	}
	logger = logger.With(zap.Stringer("signature", res.Signature))
	logger.Debug("transaction accepted")

	s.mustAdvance(lc, PhasePending)
	return s.settle(ctx, res, lc, logger, opts), nil
}

// WaitOptions control WaitForSignature.
type WaitOptions struct {
	Commitment   Commitment
	Timeout      time.Duration
	PollInterval time.Duration
}

// WaitForSignature runs the confirmation wait for a transaction dispatched
// outside of Submit, such as an airdrop or a submission that previously
// timed out.
func (s *Submitter) WaitForSignature(ctx context.Context, sig solana.Signature, wo WaitOptions) *Result {
	opts := Options{
		Commitment:   wo.Commitment,
		Timeout:      wo.Timeout,
		PollInterval: wo.PollInterval,
	}.withDefaults()
	logger := s.logger.With(zap.Stringer("signature", sig))
	lc := newLifecycle(logger)
	now := s.now()
	res := &Result{
		Signature:  sig,
		Commitment: opts.Commitment,
		StartedAt:  now,
		DispatchAt: now,
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	s.mustAdvance(lc, PhaseDispatched)
	s.mustAdvance(lc, PhasePending)
	return s.settle(ctx, res, lc, logger, opts)
}

func (s *Submitter) settle(ctx context.Context, res *Result, lc *lifecycle, logger *zap.Logger, opts Options) *Result {
	st, err := s.await(ctx, res.Signature, opts, logger)
	if err != nil {
		return s.timedOut(res, lc, logger, err)
	}
	res.Slot = st.Slot
	if st.State == StatusFailed {
		res.Diagnostic = st.Diagnostic
		res.Logs = s.fetchLogs(ctx, res.Signature, logger)
		return s.failed(res, lc, logger, ReasonProgramError, nil)
	}
	if st.Commitment != "" {
		res.Commitment = st.Commitment
	}
	s.mustAdvance(lc, PhaseConfirmed)
	return s.finish(res, lc, logger)
}

func (s *Submitter) rejected(res *Result, lc *lifecycle, logger *zap.Logger, err error) *Result {
	reason := ReasonNetworkRejected
	var rej *RejectionError
	if errors.As(err, &rej) {
		if rej.Reason != "" {
			reason = rej.Reason
		}
		res.Diagnostic = rej.Diagnostic
		res.Logs = rej.Logs
	}
	return s.failed(res, lc, logger, reason, err)
}

func (s *Submitter) failed(res *Result, lc *lifecycle, logger *zap.Logger, reason FailureReason, cause error) *Result {
	res.Outcome = OutcomeFailed
	res.Reason = reason
	res.Cause = cause
	s.mustAdvance(lc, PhaseFailed)
	return s.finish(res, lc, logger)
}

func (s *Submitter) timedOut(res *Result, lc *lifecycle, logger *zap.Logger, cause error) *Result {
	res.Outcome = OutcomeTimedOut
	res.Cause = cause
	s.mustAdvance(lc, PhaseTimedOut)
	return s.finish(res, lc, logger)
}

func (s *Submitter) finish(res *Result, lc *lifecycle, logger *zap.Logger) *Result {
	res.CompletedAt = s.now()
	res.Phases = lc.history()

	fields := []zap.Field{
		zap.Stringer("outcome", res.Outcome),
		zap.Duration("latency", res.Latency()),
	}
	switch res.Outcome {
	case OutcomeConfirmed:
		logger.Info("submission confirmed", append(fields, zap.Uint64("slot", res.Slot))...)
	case OutcomeFailed:
		logger.Warn("submission failed", append(fields,
			zap.String("reason", string(res.Reason)),
			zap.String("diagnostic", res.Diagnostic),
			zap.Error(res.Cause))...)
	default:
		logger.Warn("submission timed out", append(fields, zap.Error(res.Cause))...)
	}

	if s.recorder != nil {
		s.recorder.RecordResult(res)
	}
	return res
}

func (s *Submitter) fetchLogs(ctx context.Context, sig solana.Signature, logger *zap.Logger) []string {
	fetcher, ok := s.endpoint.(LogFetcher)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logFetchTimeout)
	defer cancel()
	logs, err := fetcher.TransactionLogs(ctx, sig)
	if err != nil {
		logger.Debug("fetch transaction logs", zap.Error(err))
		return nil
	}
	return logs
}

// mustAdvance panics on an illegal transition; the call sites are fixed, so
// a failure here is a programming error.
func (s *Submitter) mustAdvance(lc *lifecycle, to Phase) {
	if err := lc.advance(to); err != nil {
		panic(err)
	}
}
