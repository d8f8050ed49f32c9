package longsender

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/txsubmit/internal/submitter"
	testutil "github.com/0xmhha/txsubmit/internal/testing"
)

func fastConfig() *Config {
	return &Config{
		Duration: 100 * time.Millisecond,
		Rate:     200,
		Burst:    1,
		Workers:  2,
		Options:  testutil.FastOptions(),
	}
}

func prebuilt(t *testing.T, signers []submitter.Signer) CallSource {
	calls := make(map[solana.PublicKey]*submitter.InstructionCall, len(signers))
	for _, s := range signers {
		calls[s.PublicKey()] = testutil.TestCall(t, s.PublicKey())
	}
	return func(_ int64, signer submitter.Signer) (*submitter.InstructionCall, error) {
		return calls[signer.PublicKey()], nil
	}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Rate = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Duration = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestLongSender_RunsForDuration(t *testing.T) {
	a, b := testutil.NewMockSigner(), testutil.NewMockSigner()
	signers := []submitter.Signer{a, b}

	var dispatched, completed atomic.Int64
	l := New(submitter.New(testutil.NewMockEndpoint()), fastConfig()).WithCallbacks(&Callbacks{
		OnDispatched: func() { dispatched.Add(1) },
		OnResult:     func(*submitter.Result) { completed.Add(1) },
	})

	start := time.Now()
	result, err := l.Run(context.Background(), signers, prebuilt(t, signers))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.GreaterOrEqual(t, result.TotalSubmitted, 2)
	assert.Equal(t, result.TotalSubmitted, result.TotalConfirmed)
	assert.Len(t, result.Results, result.TotalSubmitted)
	assert.Equal(t, int64(result.TotalSubmitted), completed.Load())
	assert.Equal(t, int64(result.TotalSubmitted), dispatched.Load())
	assert.Greater(t, result.SendRate, 0.0)
	assert.Greater(t, result.ConfirmedTPS, 0.0)

	// round-robin reaches both signers
	assert.Positive(t, a.Calls)
	assert.Positive(t, b.Calls)

	sent, confirmed, _ := l.Stats()
	assert.Equal(t, int64(result.TotalSubmitted), sent)
	assert.Equal(t, int64(result.TotalConfirmed), confirmed)
}

func TestLongSender_CountsOutcomes(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.Outcome = submitter.StatusFailed
	endpoint.Diagnostic = `{"InstructionError":[0,{"Custom":6004}]}`

	signers := []submitter.Signer{testutil.NewMockSigner()}
	result, err := New(submitter.New(endpoint), fastConfig()).Run(context.Background(), signers, prebuilt(t, signers))
	require.NoError(t, err)

	require.Positive(t, result.TotalSubmitted)
	assert.Equal(t, result.TotalSubmitted, result.TotalFailed)
	assert.Zero(t, result.TotalConfirmed)
	assert.Zero(t, result.ConfirmedTPS)
	for _, res := range result.Results {
		assert.Equal(t, submitter.ReasonProgramError, res.Reason)
	}
}

func TestLongSender_RejectedSendsAreNotDispatched(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.AcceptError = &submitter.RejectionError{
		Reason:  submitter.ReasonNetworkRejected,
		Code:    -32002,
		Message: "Attempt to debit an account but found no record of a prior credit.",
	}

	var dispatched atomic.Int64
	signers := []submitter.Signer{testutil.NewMockSigner()}
	l := New(submitter.New(endpoint), fastConfig()).WithCallbacks(&Callbacks{
		OnDispatched: func() { dispatched.Add(1) },
	})
	result, err := l.Run(context.Background(), signers, prebuilt(t, signers))
	require.NoError(t, err)

	require.Positive(t, result.TotalSubmitted)
	assert.Equal(t, result.TotalSubmitted, result.TotalFailed)
	assert.Zero(t, result.SendRate)
	assert.Zero(t, dispatched.Load())

	sent, _, rate := l.Stats()
	assert.Zero(t, sent)
	assert.Zero(t, rate)
}

func TestLongSender_BuildErrorStopsRun(t *testing.T) {
	cfg := fastConfig()
	cfg.Duration = 0
	cfg.Workers = 1
	cfg.Rate = 1000

	signer := testutil.NewMockSigner()
	call := testutil.TestCall(t, signer.PublicKey())
	build := func(seq int64, _ submitter.Signer) (*submitter.InstructionCall, error) {
		if seq == 3 {
			return nil, errors.New("boom")
		}
		return call, nil
	}

	result, err := New(submitter.New(testutil.NewMockEndpoint()), cfg).Run(context.Background(), []submitter.Signer{signer}, build)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build call 3")
	assert.Equal(t, 3, result.TotalSubmitted)
}

func TestLongSender_MalformedCallStopsRun(t *testing.T) {
	cfg := fastConfig()
	cfg.Duration = 0
	cfg.Workers = 1

	signer := testutil.NewMockSigner()
	other := testutil.RandomPublicKey(t)
	call := testutil.TestCall(t, other)
	build := func(int64, submitter.Signer) (*submitter.InstructionCall, error) { return call, nil }

	endpoint := testutil.NewMockEndpoint()
	result, err := New(submitter.New(endpoint), cfg).Run(context.Background(), []submitter.Signer{signer}, build)
	var malformed *submitter.MalformedCallError
	require.ErrorAs(t, err, &malformed)
	assert.Zero(t, result.TotalSubmitted)
	assert.Zero(t, endpoint.GetCallCount("AcceptSubmission"))
}

func TestLongSender_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	signers := []submitter.Signer{testutil.NewMockSigner()}
	result, err := New(submitter.New(testutil.NewMockEndpoint()), fastConfig()).Run(ctx, signers, prebuilt(t, signers))
	require.NoError(t, err)
	assert.Zero(t, result.TotalSubmitted)
}

func TestLongSender_RequiresSignersAndSource(t *testing.T) {
	l := New(submitter.New(testutil.NewMockEndpoint()), fastConfig())

	_, err := l.Run(context.Background(), nil, func(int64, submitter.Signer) (*submitter.InstructionCall, error) { return nil, nil })
	assert.Error(t, err)

	_, err = l.Run(context.Background(), []submitter.Signer{testutil.NewMockSigner()}, nil)
	assert.Error(t, err)
}
