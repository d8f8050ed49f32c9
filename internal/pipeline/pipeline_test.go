package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/txsubmit/internal/config"
	"github.com/0xmhha/txsubmit/internal/program"
	"github.com/0xmhha/txsubmit/internal/submitter"
	testutil "github.com/0xmhha/txsubmit/internal/testing"
	"github.com/0xmhha/txsubmit/internal/wallet"
)

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage    Stage
		expected string
	}{
		{StageInit, "INITIALIZE"},
		{StageFund, "FUND"},
		{StageBuild, "BUILD"},
		{StageSubmit, "SUBMIT"},
		{StageReport, "REPORT"},
		{StageComplete, "COMPLETE"},
		{Stage(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.stage.String())
		})
	}
}

func TestResult_Success(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Success())
	assert.False(t, r.AllConfirmed(), "no summary yet")

	r.AddStageResult(&StageResult{Stage: StageInit, Success: true})
	r.AddStageResult(&StageResult{Stage: StageBuild, Success: false, Error: errors.New("boom")})
	assert.False(t, r.Success())
	assert.Len(t, r.Errors, 1)

	r.Finalize()
	assert.False(t, r.EndTime.IsZero())
}

type fundingClient struct {
	mu       sync.Mutex
	balances map[solana.PublicKey]uint64
	airdrops int
}

func (f *fundingClient) Balance(_ context.Context, account solana.PublicKey, _ submitter.Commitment) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[account], nil
}

func (f *fundingClient) RequestAirdrop(_ context.Context, _ solana.PublicKey, _ uint64, _ submitter.Commitment) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.airdrops++
	return solana.Signature{byte(f.airdrops)}, nil
}

type stageRecorder struct {
	mu     sync.Mutex
	stages []string
	rate   float64
	tps    float64
}

func (r *stageRecorder) SetPendingCount(int)         {}
func (r *stageRecorder) SetSendRate(rate float64)    { r.rate = rate }
func (r *stageRecorder) SetConfirmedTPS(tps float64) { r.tps = tps }
func (r *stageRecorder) RecordStageDuration(stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func confirmAll(_ solana.Signature, commitment submitter.Commitment) (submitter.Status, error) {
	return submitter.Status{State: submitter.StatusConfirmed, Slot: 42, Commitment: commitment}, nil
}

func newTestPipeline(t *testing.T, cfg *config.Config, endpoint *testutil.MockEndpoint, deps Deps) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	w, err := wallet.NewFromMnemonic(testutil.TestMnemonic, 2)
	require.NoError(t, err)

	var out bytes.Buffer
	deps.Submitter = submitter.New(endpoint)
	deps.Wallet = w
	deps.Output = &out

	p, err := New(cfg, deps)
	require.NoError(t, err)
	return p, &out
}

func fastConfig(t *testing.T) *config.Config {
	cfg := testutil.TestConfig(t)
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Timeout = 2 * time.Second
	cfg.Count = 4
	cfg.Workers = 2
	cfg.OutputDir = t.TempDir()
	return cfg
}

func TestPipeline_InitializeConfirmed(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Export = config.ExportJSON

	rec := &stageRecorder{}
	p, out := newTestPipeline(t, cfg, testutil.NewMockEndpoint(), Deps{Recorder: rec})

	result, err := p.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, result.AllConfirmed())
	require.NotNil(t, result.Summary)
	assert.Equal(t, 4, result.Summary.ConfirmedCount)
	require.NotNil(t, result.Report)
	assert.Equal(t, 4, result.Report.Metrics.TotalConfirmed)
	assert.Len(t, result.Exported, 1)
	for _, f := range result.Exported {
		assert.FileExists(t, f)
	}

	// funding is off without a minimum balance
	assert.True(t, result.StageResults[StageFund].Skipped)
	assert.Equal(t, []string{"INITIALIZE", "BUILD", "SUBMIT", "REPORT"}, rec.stages)
	assert.Greater(t, rec.rate, 0.0)
	assert.Contains(t, out.String(), "CONFIRMED")
}

func TestPipeline_RotatesSigners(t *testing.T) {
	cfg := fastConfig(t)
	endpoint := testutil.NewMockEndpoint()
	p, _ := newTestPipeline(t, cfg, endpoint, Deps{})

	_, err := p.Execute(context.Background())
	require.NoError(t, err)

	// two sub-accounts carry four copies
	require.Len(t, p.jobs, 4)
	assert.Equal(t, p.jobs[0].Signer.PublicKey(), p.jobs[2].Signer.PublicKey())
	assert.NotEqual(t, p.jobs[0].Signer.PublicKey(), p.jobs[1].Signer.PublicKey())
	assert.NotEqual(t, p.deps.Wallet.MasterAddress(), p.jobs[0].Signer.PublicKey())
}

func TestPipeline_ProgramErrorIsReported(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Count = 1
	endpoint := testutil.NewMockEndpoint()
	endpoint.Outcome = submitter.StatusFailed
	endpoint.Diagnostic = `{"InstructionError":[0,{"Custom":6000}]}`

	p, out := newTestPipeline(t, cfg, endpoint, Deps{})
	result, err := p.Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success())
	assert.False(t, result.AllConfirmed())
	assert.Equal(t, 1, result.Report.Metrics.ProgramErrors)
	assert.Equal(t, 1, result.Report.ErrorSummary["program-error: InvalidAmount"])
	assert.Contains(t, out.String(), "FAILED")
}

func TestPipeline_Funding(t *testing.T) {
	cfg := fastConfig(t)
	cfg.MinBalance = testutil.SOL(1)

	endpoint := testutil.NewMockEndpoint()
	endpoint.StatusFunc = confirmAll
	funding := &fundingClient{balances: map[solana.PublicKey]uint64{}}

	p, _ := newTestPipeline(t, cfg, endpoint, Deps{Funding: funding})
	result, err := p.Execute(context.Background())
	require.NoError(t, err)

	assert.False(t, result.StageResults[StageFund].Skipped)
	assert.Equal(t, 2, funding.airdrops)
	assert.True(t, result.AllConfirmed())
}

func TestPipeline_DryRun(t *testing.T) {
	cfg := fastConfig(t)
	endpoint := testutil.NewMockEndpoint()
	p, _ := newTestPipeline(t, cfg, endpoint, Deps{})
	p.WithRunConfig(&RunConfig{DryRun: true})

	result, err := p.Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, p.jobs, 4)
	assert.Zero(t, endpoint.GetCallCount("AcceptSubmission"))
	assert.Nil(t, result.Summary)
	assert.False(t, result.AllConfirmed())
}

func TestPipeline_BuildFailsWithoutParties(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Instruction = program.InstructionBuy

	endpoint := testutil.NewMockEndpoint()
	p, _ := newTestPipeline(t, cfg, endpoint, Deps{})
	result, err := p.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seller is required for buy")
	assert.False(t, result.Success())
	assert.Zero(t, endpoint.GetCallCount("AcceptSubmission"))
}

func TestNew_RequiresDeps(t *testing.T) {
	cfg := testutil.TestConfig(t)
	_, err := New(cfg, Deps{})
	assert.Error(t, err)

	w, err := wallet.NewFromMnemonic(testutil.TestMnemonic, 0)
	require.NoError(t, err)
	cfg.ProgramID = "bad"
	_, err = New(cfg, Deps{Submitter: submitter.New(testutil.NewMockEndpoint()), Wallet: w})
	assert.Error(t, err)
}

func TestCallOptions(t *testing.T) {
	buyer := testutil.RandomPublicKey(t)
	seller := testutil.RandomPublicKey(t)
	verifier := testutil.RandomPublicKey(t)
	mint := testutil.RandomPublicKey(t)

	cfg := testutil.TestConfig(t)
	cfg.Buyer = buyer.String()
	cfg.Seller = seller.String()
	cfg.FreightVerifier = verifier.String()
	cfg.Mint = mint.String()
	cfg.Seed = 7

	opts, err := CallOptions(cfg)
	require.NoError(t, err)

	f := program.NewFactory(testutil.MustPublicKey(t, testutil.TestProgramID))
	call, err := f.CreateCall(program.InstructionSettlement, verifier, opts...)
	require.NoError(t, err)
	assert.Equal(t, program.InstructionSettlement, call.Name())

	cfg.Seller = "not a key"
	_, err = CallOptions(cfg)
	assert.Error(t, err)

	cfg.Seller = ""
	cfg.DocumentHash = "zz"
	_, err = CallOptions(cfg)
	assert.Error(t, err)
}
