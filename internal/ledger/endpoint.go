// Package ledger connects the submitter to a Solana cluster over JSON-RPC and
// websocket subscriptions.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// ErrAccountNotFound is returned by AccountData for missing accounts.
var ErrAccountNotFound = errors.New("account not found")

// RPCClient is the subset of *rpc.Client the endpoint uses.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendRawTransactionWithOpts(ctx context.Context, rawTx []byte, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetRecentPerformanceSamples(ctx context.Context, limit *uint) ([]*rpc.GetRecentPerformanceSamplesResult, error)
	Close() error
}

// Endpoint implements submitter.Endpoint against a Solana RPC node. It is
// safe for concurrent use; all submissions share the client and the limiter.
type Endpoint struct {
	rpc     RPCClient
	limiter *rate.Limiter
	cache   *statusCache
	logger  *zap.Logger
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithRateLimit caps outgoing RPC calls. A non-positive rps disables the cap.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Endpoint) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Endpoint) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCacheSize bounds the number of memoized confirmations.
func WithCacheSize(n int) Option {
	return func(e *Endpoint) { e.cache = newStatusCache(n) }
}

// Dial creates an Endpoint for the JSON-RPC url.
func Dial(url string, opts ...Option) *Endpoint {
	return NewEndpoint(rpc.New(url), opts...)
}

// NewEndpoint wraps an existing RPC client.
func NewEndpoint(client RPCClient, opts ...Option) *Endpoint {
	e := &Endpoint{
		rpc:    client,
		cache:  newStatusCache(defaultCacheSize),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases the underlying client.
func (e *Endpoint) Close() error {
	return e.rpc.Close()
}

func (e *Endpoint) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// LatestBlockhash fetches a blockhash at the given commitment.
func (e *Endpoint) LatestBlockhash(ctx context.Context, commitment submitter.Commitment) (solana.Hash, error) {
	if err := e.wait(ctx); err != nil {
		return solana.Hash{}, err
	}
	out, err := e.rpc.GetLatestBlockhash(ctx, rpc.CommitmentType(commitment))
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, errors.New("failed to get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

// AcceptSubmission sends the signed transaction. Refusals come back as
// *submitter.RejectionError.
func (e *Endpoint) AcceptSubmission(ctx context.Context, raw []byte, opts submitter.DispatchOptions) (solana.Signature, error) {
	if err := e.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := e.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: rpc.CommitmentType(opts.PreflightCommitment),
	})
	if err != nil {
		if ctx.Err() != nil {
			return solana.Signature{}, err
		}
		rej := classifyRejection(err)
		e.logger.Debug("send transaction rejected",
			zap.String("reason", string(rej.Reason)),
			zap.Int("code", rej.Code),
			zap.String("message", rej.Message))
		return solana.Signature{}, rej
	}
	return sig, nil
}

// QueryStatus reports sig at the requested level. Once a signature has been
// seen confirmed at a level, later queries at that level return the same
// observation.
func (e *Endpoint) QueryStatus(ctx context.Context, sig solana.Signature, commitment submitter.Commitment) (submitter.Status, error) {
	if st, ok := e.cache.get(sig, commitment); ok {
		return st, nil
	}
	if err := e.wait(ctx); err != nil {
		return submitter.Status{}, err
	}
	out, err := e.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return submitter.Status{}, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return submitter.Status{State: submitter.StatusPending}, nil
	}

	v := out.Value[0]
	reached := reachedCommitment(v)
	if v.Err != nil {
		return submitter.Status{
			State:      submitter.StatusFailed,
			Slot:       v.Slot,
			Commitment: reached,
			Diagnostic: diagnosticString(v.Err),
		}, nil
	}
	if !reached.Satisfies(commitment) {
		return submitter.Status{State: submitter.StatusPending, Slot: v.Slot, Commitment: reached}, nil
	}

	st := submitter.Status{State: submitter.StatusConfirmed, Slot: v.Slot, Commitment: reached}
	e.cache.put(sig, commitment, st)
	return st, nil
}

// reachedCommitment maps the node's confirmation status. Nodes that omit it
// signal finality with a nil confirmation count.
func reachedCommitment(v *rpc.SignatureStatusesResult) submitter.Commitment {
	switch v.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return submitter.CommitmentFinalized
	case rpc.ConfirmationStatusConfirmed:
		return submitter.CommitmentConfirmed
	case rpc.ConfirmationStatusProcessed:
		return submitter.CommitmentProcessed
	}
	if v.Confirmations == nil {
		return submitter.CommitmentFinalized
	}
	return submitter.CommitmentProcessed
}

// TransactionLogs returns the program logs of a landed transaction.
func (e *Endpoint) TransactionLogs(ctx context.Context, sig solana.Signature) ([]string, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	maxVersion := uint64(0)
	out, err := e.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if out == nil || out.Meta == nil {
		return nil, nil
	}
	return out.Meta.LogMessages, nil
}

// Balance returns the lamports held by account.
func (e *Endpoint) Balance(ctx context.Context, account solana.PublicKey, commitment submitter.Commitment) (uint64, error) {
	if err := e.wait(ctx); err != nil {
		return 0, err
	}
	out, err := e.rpc.GetBalance(ctx, account, rpc.CommitmentType(commitment))
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return out.Value, nil
}

// RequestAirdrop asks a faucet-enabled cluster for lamports.
func (e *Endpoint) RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment submitter.Commitment) (solana.Signature, error) {
	if err := e.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := e.rpc.RequestAirdrop(ctx, account, lamports, rpc.CommitmentType(commitment))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to request airdrop: %w", err)
	}
	return sig, nil
}

// AccountData returns the raw data of account.
func (e *Endpoint) AccountData(ctx context.Context, account solana.PublicKey, commitment submitter.Commitment) ([]byte, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	out, err := e.rpc.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentType(commitment),
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return nil, ErrAccountNotFound
	}
	return out.Value.Data.GetBinary(), nil
}

// RecentPerformanceSamples returns up to limit of the node's recent
// throughput samples, newest first.
func (e *Endpoint) RecentPerformanceSamples(ctx context.Context, limit uint) ([]*rpc.GetRecentPerformanceSamplesResult, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	out, err := e.rpc.GetRecentPerformanceSamples(ctx, &limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get performance samples: %w", err)
	}
	return out, nil
}
