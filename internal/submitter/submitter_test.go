package submitter_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/txsubmit/internal/submitter"
	testutil "github.com/0xmhha/txsubmit/internal/testing"
)

func TestSubmit_Confirmed(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.PendingPolls = 2
	recorder := &testutil.MockRecorder{}
	signer := testutil.NewMockSigner()

	s := submitter.New(endpoint, submitter.WithRecorder(recorder))
	res, err := s.Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
	require.NoError(t, err)

	assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
	assert.True(t, res.Confirmed())
	assert.True(t, res.Signed())
	assert.NoError(t, res.Err())
	assert.Equal(t, "initialize", res.Instruction)
	assert.Equal(t, submitter.CommitmentProcessed, res.Commitment)

	require.Len(t, endpoint.Accepted, 1)
	assert.Equal(t, endpoint.Accepted[0], res.Signature)
	slot, ok := endpoint.SlotOf(res.Signature)
	require.True(t, ok)
	assert.Equal(t, slot, res.Slot)
	assert.Equal(t, 3, endpoint.GetCallCount("QueryStatus"))

	assert.Equal(t, []submitter.Phase{
		submitter.PhaseBuilt,
		submitter.PhaseDispatched,
		submitter.PhasePending,
		submitter.PhaseConfirmed,
	}, res.Phases)

	assert.Equal(t, 1, recorder.Dispatched)
	require.Len(t, recorder.Results, 1)
	assert.Same(t, res, recorder.Results[0])
	assert.False(t, res.DispatchAt.IsZero())
	assert.False(t, res.CompletedAt.Before(res.DispatchAt))
}

func TestSubmit_SignedWireFormat(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	signer := testutil.NewMockSigner()

	s := submitter.New(endpoint)
	res, err := s.Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
	require.NoError(t, err)
	require.Len(t, endpoint.RawTxs, 1)

	raw := endpoint.RawTxs[0]
	assert.Equal(t, byte(1), raw[0], "one required signature")
	message := raw[1+64:]
	pub := signer.PublicKey()
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub[:]), message, res.Signature[:]))
	assert.Equal(t, 1, signer.Calls)
}

func TestSubmit_MalformedCall(t *testing.T) {
	signer := testutil.NewMockSigner()
	payer := signer.PublicKey()
	program := testutil.MustPublicKey(t, testutil.TestProgramID)
	other := testutil.RandomPublicKey(t)

	tests := []struct {
		name   string
		call   *submitter.InstructionCall
		signer submitter.Signer
		opts   submitter.Options
		field  string
	}{
		{
			name:   "nil call",
			call:   nil,
			signer: signer,
			field:  "call",
		},
		{
			name: "empty program",
			call: submitter.NewInstructionCall(solana.PublicKey{}, "initialize",
				[]submitter.AccountRef{{PublicKey: payer, Writable: true, Signer: true}}, nil),
			signer: signer,
			field:  "program",
		},
		{
			name:   "empty account list",
			call:   submitter.NewInstructionCall(program, "initialize", nil, nil),
			signer: signer,
			field:  "accounts",
		},
		{
			name: "zero account key",
			call: submitter.NewInstructionCall(program, "initialize", []submitter.AccountRef{
				{PublicKey: payer, Writable: true, Signer: true},
				{PublicKey: solana.PublicKey{}, Writable: true},
			}, nil),
			signer: signer,
			field:  "accounts[1]",
		},
		{
			name: "conflicting duplicate",
			call: submitter.NewInstructionCall(program, "initialize", []submitter.AccountRef{
				{PublicKey: payer, Writable: true, Signer: true},
				{PublicKey: other, Writable: true},
				{PublicKey: other, Writable: false},
			}, nil),
			signer: signer,
			field:  "accounts[2]",
		},
		{
			name: "signer account not held by signer",
			call: submitter.NewInstructionCall(program, "settlement", []submitter.AccountRef{
				{PublicKey: payer, Writable: true, Signer: true},
				{PublicKey: other, Writable: true, Signer: true},
			}, nil),
			signer: signer,
			field:  "accounts[1]",
		},
		{
			name:   "nil signer",
			call:   testutil.TestCall(t, payer),
			signer: nil,
			field:  "signer",
		},
		{
			name:   "unknown commitment",
			call:   testutil.TestCall(t, payer),
			signer: signer,
			opts:   submitter.Options{Commitment: "max"},
			field:  "commitment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := testutil.NewMockEndpoint()
			s := submitter.New(endpoint)

			res, err := s.Submit(context.Background(), tt.call, tt.signer, tt.opts)

			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, submitter.ErrMalformedCall)
			var malformed *submitter.MalformedCallError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.field, malformed.Field)
			assert.Zero(t, endpoint.TotalCalls(), "malformed calls must not reach the network")
		})
	}
}

func TestSubmit_DuplicateAccountsWithSameFlags(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	signer := testutil.NewMockSigner()
	program := testutil.MustPublicKey(t, testutil.TestProgramID)
	other := testutil.RandomPublicKey(t)

	call := submitter.NewInstructionCall(program, "buy", []submitter.AccountRef{
		{PublicKey: signer.PublicKey(), Writable: true, Signer: true},
		{PublicKey: other, Writable: true},
		{PublicKey: other, Writable: true},
	}, []byte{1, 2, 3})

	res, err := submitter.New(endpoint).Submit(context.Background(), call, signer, testutil.FastOptions())
	require.NoError(t, err)
	assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
}

func TestSubmit_ProgramError(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.PendingPolls = 1
	endpoint.Outcome = submitter.StatusFailed
	endpoint.Diagnostic = `{"InstructionError":[0,{"Custom":6001}]}`
	endpoint.LogsValue = []string{"Program log: AnchorError occurred"}
	signer := testutil.NewMockSigner()

	res, err := submitter.New(endpoint).Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
	require.NoError(t, err)

	assert.Equal(t, submitter.OutcomeFailed, res.Outcome)
	assert.False(t, res.Confirmed())
	assert.Equal(t, submitter.ReasonProgramError, res.Reason)
	assert.Equal(t, endpoint.Diagnostic, res.Diagnostic)
	assert.Equal(t, endpoint.LogsValue, res.Logs)
	assert.NotZero(t, res.Slot)

	err = res.Err()
	assert.ErrorIs(t, err, submitter.ErrProgramExecution)
	assert.NotErrorIs(t, err, submitter.ErrConfirmationTimeout)
	var progErr *submitter.ProgramExecutionError
	require.ErrorAs(t, err, &progErr)
	assert.Equal(t, res.Signature, progErr.Signature)
	assert.Contains(t, progErr.Error(), "6001")

	assert.Equal(t, submitter.PhaseFailed, res.Phases[len(res.Phases)-1])
	assert.Contains(t, res.Phases, submitter.PhaseDispatched)
}

func TestSubmit_TimedOut(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.Outcome = submitter.StatusPending
	signer := testutil.NewMockSigner()

	opts := testutil.FastOptions()
	opts.Timeout = 60 * time.Millisecond

	res, err := submitter.New(endpoint).Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, opts)
	require.NoError(t, err)

	assert.Equal(t, submitter.OutcomeTimedOut, res.Outcome)
	assert.NotEqual(t, submitter.OutcomeFailed, res.Outcome)
	assert.Empty(t, res.Reason)
	assert.True(t, res.Signed(), "a timed out submission still carries its signature")
	assert.ErrorIs(t, res.Cause, context.DeadlineExceeded)

	err = res.Err()
	assert.ErrorIs(t, err, submitter.ErrConfirmationTimeout)
	assert.NotErrorIs(t, err, submitter.ErrProgramExecution)
	assert.NotErrorIs(t, err, submitter.ErrDispatchRejected)
	assert.Greater(t, endpoint.GetCallCount("QueryStatus"), 1)
}

func TestSubmit_CancelledWait(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.Outcome = submitter.StatusPending
	signer := testutil.NewMockSigner()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	res, err := submitter.New(endpoint).Submit(ctx, testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
	require.NoError(t, err)

	assert.Equal(t, submitter.OutcomeTimedOut, res.Outcome)
	assert.ErrorIs(t, res.Cause, context.Canceled)
	assert.Len(t, endpoint.Accepted, 1, "cancelling the wait does not retract the submission")
}

func TestSubmit_DispatchFailures(t *testing.T) {
	tests := []struct {
		name       string
		acceptErr  error
		reason     submitter.FailureReason
		sentinel   error
		diagnostic string
	}{
		{
			name:      "transport error",
			acceptErr: errors.New("connection refused"),
			reason:    submitter.ReasonNetworkRejected,
			sentinel:  submitter.ErrDispatchRejected,
		},
		{
			name: "signature verification failure",
			acceptErr: &submitter.RejectionError{
				Reason:  submitter.ReasonSignatureInvalid,
				Code:    -32003,
				Message: "Transaction signature verification failure",
			},
			reason:   submitter.ReasonSignatureInvalid,
			sentinel: submitter.ErrDispatchRejected,
		},
		{
			name: "preflight program failure",
			acceptErr: &submitter.RejectionError{
				Reason:     submitter.ReasonProgramError,
				Code:       -32002,
				Message:    "Transaction simulation failed",
				Diagnostic: `{"InstructionError":[0,{"Custom":6000}]}`,
				Logs:       []string{"Program log: Error: Invalid amount"},
			},
			reason:     submitter.ReasonProgramError,
			sentinel:   submitter.ErrProgramExecution,
			diagnostic: `{"InstructionError":[0,{"Custom":6000}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := testutil.NewMockEndpoint()
			endpoint.AcceptError = tt.acceptErr
			recorder := &testutil.MockRecorder{}
			signer := testutil.NewMockSigner()

			s := submitter.New(endpoint, submitter.WithRecorder(recorder))
			res, err := s.Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
			require.NoError(t, err)

			assert.Equal(t, submitter.OutcomeFailed, res.Outcome)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.diagnostic, res.Diagnostic)
			assert.ErrorIs(t, res.Err(), tt.sentinel)
			assert.Equal(t, []submitter.Phase{submitter.PhaseBuilt, submitter.PhaseFailed}, res.Phases)
			assert.Zero(t, endpoint.GetCallCount("QueryStatus"))
			assert.Zero(t, recorder.Dispatched)
			assert.Len(t, recorder.Results, 1)
		})
	}
}

func TestSubmit_BlockhashFailure(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.BlockhashError = errors.New("node is behind")
	signer := testutil.NewMockSigner()

	res, err := submitter.New(endpoint).Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
	require.NoError(t, err)

	assert.Equal(t, submitter.OutcomeFailed, res.Outcome)
	assert.Equal(t, submitter.ReasonNetworkRejected, res.Reason)
	assert.False(t, res.Signed())
	assert.Zero(t, endpoint.GetCallCount("AcceptSubmission"))
	assert.Zero(t, signer.Calls)
}

func TestSubmit_SignerFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testutil.MockSigner)
	}{
		{"sign error", func(s *testutil.MockSigner) { s.SignError = errors.New("hardware wallet locked") }},
		{"corrupt signature", func(s *testutil.MockSigner) { s.Corrupt = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := testutil.NewMockEndpoint()
			signer := testutil.NewMockSigner()
			tt.setup(signer)

			res, err := submitter.New(endpoint).Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
			require.NoError(t, err)

			assert.Equal(t, submitter.OutcomeFailed, res.Outcome)
			assert.Equal(t, submitter.ReasonSignatureInvalid, res.Reason)
			assert.Zero(t, endpoint.GetCallCount("AcceptSubmission"))
		})
	}
}

func TestSubmit_TransientQueryErrors(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	signer := testutil.NewMockSigner()

	var mu sync.Mutex
	calls := 0
	endpoint.StatusFunc = func(sig solana.Signature, c submitter.Commitment) (submitter.Status, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 2 {
			return submitter.Status{}, errors.New("503 service unavailable")
		}
		return submitter.Status{State: submitter.StatusConfirmed, Slot: 77, Commitment: c}, nil
	}

	res, err := submitter.New(endpoint).Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
	require.NoError(t, err)
	assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
	assert.Equal(t, uint64(77), res.Slot)
}

func TestSubmit_WaitsForRequestedCommitment(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	signer := testutil.NewMockSigner()

	var mu sync.Mutex
	calls := 0
	endpoint.StatusFunc = func(sig solana.Signature, c submitter.Commitment) (submitter.Status, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		level := submitter.CommitmentProcessed
		if calls > 3 {
			level = submitter.CommitmentFinalized
		}
		return submitter.Status{State: submitter.StatusConfirmed, Slot: 12, Commitment: level}, nil
	}

	opts := testutil.FastOptions()
	opts.Commitment = submitter.CommitmentFinalized

	res, err := submitter.New(endpoint).Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, opts)
	require.NoError(t, err)
	assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
	assert.Equal(t, submitter.CommitmentFinalized, res.Commitment)
	assert.Equal(t, 4, calls)
}

func TestSubmit_PushNotification(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.Outcome = submitter.StatusPending
	notifier := testutil.NewMockNotifier()
	notifier.Updates <- submitter.Status{State: submitter.StatusConfirmed, Slot: 9, Commitment: submitter.CommitmentConfirmed}
	signer := testutil.NewMockSigner()

	opts := testutil.FastOptions()
	opts.PollInterval = time.Hour
	opts.Commitment = submitter.CommitmentConfirmed

	s := submitter.New(endpoint, submitter.WithNotifier(notifier))
	res, err := s.Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, opts)
	require.NoError(t, err)

	assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
	assert.Equal(t, uint64(9), res.Slot)
	require.Len(t, notifier.Subscribed, 1)
	assert.Equal(t, res.Signature, notifier.Subscribed[0])
}

func TestSubmit_PushFallsBackToPolling(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testutil.MockNotifier)
	}{
		{"subscription error", func(n *testutil.MockNotifier) { n.SubError = errors.New("ws closed") }},
		{"closed stream", func(n *testutil.MockNotifier) { close(n.Updates) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint := testutil.NewMockEndpoint()
			endpoint.PendingPolls = 2
			notifier := testutil.NewMockNotifier()
			tt.setup(notifier)
			signer := testutil.NewMockSigner()

			s := submitter.New(endpoint, submitter.WithNotifier(notifier))
			res, err := s.Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, testutil.FastOptions())
			require.NoError(t, err)
			assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
		})
	}
}

func TestSubmit_SilentNotifierDoesNotDelayPolling(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	notifier := testutil.NewMockNotifier()
	notifier.Block = true
	signer := testutil.NewMockSigner()

	opts := testutil.FastOptions()
	opts.Timeout = 300 * time.Millisecond

	s := submitter.New(endpoint, submitter.WithNotifier(notifier))
	start := time.Now()
	res, err := s.Submit(context.Background(), testutil.TestCall(t, signer.PublicKey()), signer, opts)
	require.NoError(t, err)

	assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
	assert.Equal(t, 1, endpoint.GetCallCount("QueryStatus"))
	assert.Less(t, time.Since(start), opts.Timeout)
}

func TestSubmit_ConcurrentSubmissionsStayIsolated(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	endpoint.PendingPolls = 1
	s := submitter.New(endpoint)

	const n = 16
	signers := make([]*testutil.MockSigner, n)
	results := make([]*submitter.Result, n)
	for i := range signers {
		signers[i] = testutil.NewMockSigner()
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Submit(context.Background(), testutil.TestCall(t, signers[i].PublicKey()), signers[i], testutil.FastOptions())
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	seen := make(map[solana.Signature]bool, n)
	for i, res := range results {
		require.NotNil(t, res, "result %d", i)
		assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
		assert.False(t, seen[res.Signature], "duplicate signature across submissions")
		seen[res.Signature] = true

		slot, ok := endpoint.SlotOf(res.Signature)
		require.True(t, ok)
		assert.Equal(t, slot, res.Slot, "result %d carries another submission's slot", i)
	}
}

func TestWaitForSignature(t *testing.T) {
	endpoint := testutil.NewMockEndpoint()
	sig := solana.Signature{1, 2, 3}
	endpoint.StatusFunc = func(got solana.Signature, c submitter.Commitment) (submitter.Status, error) {
		if got != sig {
			return submitter.Status{State: submitter.StatusPending}, nil
		}
		return submitter.Status{State: submitter.StatusConfirmed, Slot: 5, Commitment: submitter.CommitmentFinalized}, nil
	}

	res := submitter.New(endpoint).WaitForSignature(context.Background(), sig, submitter.WaitOptions{
		Commitment:   submitter.CommitmentConfirmed,
		Timeout:      time.Second,
		PollInterval: 5 * time.Millisecond,
	})

	assert.Equal(t, submitter.OutcomeConfirmed, res.Outcome)
	assert.Equal(t, sig, res.Signature)
	assert.Equal(t, uint64(5), res.Slot)
	assert.Equal(t, submitter.CommitmentFinalized, res.Commitment)
	assert.Zero(t, endpoint.GetCallCount("AcceptSubmission"))
}
