// Package pipeline runs the staged invoke flow behind the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/0xmhha/txsubmit/internal/batcher"
	"github.com/0xmhha/txsubmit/internal/collector"
	"github.com/0xmhha/txsubmit/internal/config"
	"github.com/0xmhha/txsubmit/internal/distributor"
	"github.com/0xmhha/txsubmit/internal/program"
	"github.com/0xmhha/txsubmit/internal/submitter"
	"github.com/0xmhha/txsubmit/internal/wallet"
)

// Submitter submits calls and confirms signatures dispatched elsewhere.
type Submitter interface {
	batcher.Submitter
	distributor.Waiter
}

// Recorder receives run-level measurements.
type Recorder interface {
	batcher.PendingGauge
	SetSendRate(rate float64)
	SetConfirmedTPS(tps float64)
	RecordStageDuration(stage string, duration time.Duration)
}

// Deps are the components a pipeline drives.
type Deps struct {
	Submitter Submitter
	Funding   distributor.Client
	Wallet    *wallet.Wallet
	// Recorder is optional
	Recorder Recorder
	Logger   *zap.Logger
	// Output receives stage banners and the report; defaults to stdout
	Output io.Writer
}

// Pipeline orchestrates one invoke run
type Pipeline struct {
	cfg    *config.Config
	runCfg *RunConfig
	deps   Deps
	logger *zap.Logger
	out    io.Writer

	factory   *program.Factory
	opts      submitter.Options
	signers   []submitter.Signer
	jobs      []batcher.Job
	collector *collector.Collector
}

// New creates a pipeline for a validated config.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if deps.Submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if deps.Wallet == nil {
		return nil, errors.New("wallet is required")
	}
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}
	commitment, err := submitter.ParseCommitment(cfg.Commitment)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	out := deps.Output
	if out == nil {
		out = os.Stdout
	}

	return &Pipeline{
		cfg:     cfg,
		runCfg:  DefaultRunConfig(),
		deps:    deps,
		logger:  logger,
		out:     out,
		factory: program.NewFactory(programID),
		opts: submitter.Options{
			Commitment:    commitment,
			Timeout:       cfg.Timeout,
			PollInterval:  cfg.PollInterval,
			SkipPreflight: cfg.SkipPreflight,
		},
		collector: collector.NewCollector(&collector.Config{
			Name:   cfg.Instruction,
			Output: out,
		}),
	}, nil
}

// WithRunConfig sets the run configuration
func (p *Pipeline) WithRunConfig(runCfg *RunConfig) *Pipeline {
	p.runCfg = runCfg
	return p
}

// Execute runs every stage in order and stops at the first failing one. A
// run whose submissions fail still completes; check Result.AllConfirmed.
func (p *Pipeline) Execute(ctx context.Context) (*Result, error) {
	result := NewResult()

	stages := []struct {
		stage Stage
		skip  bool
		fn    func(context.Context, *Result) error
	}{
		{StageInit, false, p.initialize},
		{StageFund, !p.fundingEnabled(), p.fund},
		{StageBuild, false, p.build},
		{StageSubmit, p.runCfg.DryRun, p.submit},
		{StageReport, p.runCfg.DryRun, p.report},
	}

	for _, s := range stages {
		if s.skip {
			result.AddStageResult(&StageResult{Stage: s.stage, Success: true, Skipped: true, Message: "skipped"})
			continue
		}
		if err := p.runStage(ctx, result, s.stage, s.fn); err != nil {
			result.Finalize()
			return result, err
		}
	}

	result.Finalize()
	p.printFinalSummary(result)
	return result, nil
}

// runStage executes a pipeline stage with timing and error handling
func (p *Pipeline) runStage(ctx context.Context, result *Result, stage Stage, fn func(context.Context, *Result) error) error {
	fmt.Fprintf(p.out, "\n== Stage %d: %s ==\n", stage+1, stage)

	start := time.Now()
	err := fn(ctx, result)
	duration := time.Since(start)

	if p.deps.Recorder != nil {
		p.deps.Recorder.RecordStageDuration(stage.String(), duration)
	}

	sr := &StageResult{
		Stage:    stage,
		Success:  err == nil,
		Duration: duration,
	}
	if err != nil {
		sr.Error = err
		sr.Message = fmt.Sprintf("Failed: %v", err)
		p.logger.Error("stage failed", zap.Stringer("stage", stage), zap.Error(err))
		fmt.Fprintf(p.out, "[FAIL] %s: %v\n", stage, err)
	} else {
		sr.Message = fmt.Sprintf("Completed in %s", duration)
		p.logger.Debug("stage completed", zap.Stringer("stage", stage), zap.Duration("duration", duration))
	}

	result.AddStageResult(sr)
	return err
}

func (p *Pipeline) fundingEnabled() bool {
	if p.runCfg.SkipFunding || p.deps.Funding == nil {
		return false
	}
	return p.cfg.MinBalance > 0 || p.cfg.AirdropLamports > 0
}

// initialize picks the signing accounts and prints the run parameters.
func (p *Pipeline) initialize(_ context.Context, _ *Result) error {
	all := p.deps.Wallet.LoadSigners()
	p.signers = make([]submitter.Signer, len(all))
	for i, s := range all {
		p.signers[i] = s
	}

	if p.cfg.Count > len(p.signers) && p.cfg.Instruction == program.InstructionInitialize {
		p.logger.Warn("more copies than signers; identical messages may share a signature",
			zap.Int("count", p.cfg.Count), zap.Int("signers", len(p.signers)))
	}

	fmt.Fprintf(p.out, "  URL:          %s\n", p.cfg.URL)
	fmt.Fprintf(p.out, "  Program:      %s\n", p.factory.ProgramID())
	fmt.Fprintf(p.out, "  Instruction:  %s\n", p.cfg.Instruction)
	fmt.Fprintf(p.out, "  Master:       %s\n", p.deps.Wallet.MasterAddress())
	fmt.Fprintf(p.out, "  Signers:      %d\n", len(p.signers))
	fmt.Fprintf(p.out, "  Count:        %d\n", p.cfg.Count)
	fmt.Fprintf(p.out, "  Commitment:   %s\n", p.opts.Commitment)
	fmt.Fprintf(p.out, "  Timeout:      %s\n", p.opts.Timeout)
	return nil
}

// fund tops up the signing accounts on faucet-enabled clusters.
func (p *Pipeline) fund(ctx context.Context, _ *Result) error {
	dcfg := distributor.DefaultConfig()
	dcfg.MinBalance = p.cfg.MinBalance
	if p.cfg.AirdropLamports > 0 {
		dcfg.AirdropLamports = p.cfg.AirdropLamports
	}
	if dcfg.MinBalance == 0 {
		dcfg.MinBalance = dcfg.AirdropLamports
	}
	dcfg.Commitment = p.opts.Commitment
	dcfg.PollInterval = p.opts.PollInterval

	d := distributor.New(p.deps.Funding, p.deps.Submitter, dcfg)
	d.SetOutput(p.out)

	accounts := make([]solana.PublicKey, len(p.signers))
	for i, s := range p.signers {
		accounts[i] = s.PublicKey()
	}

	res, err := d.Distribute(ctx, accounts)
	if res != nil {
		fmt.Fprintf(p.out, "  Ready accounts:    %d\n", len(res.ReadyAccounts))
		fmt.Fprintf(p.out, "  Unfunded accounts: %d\n", len(res.UnfundedAccounts))
		fmt.Fprintf(p.out, "  Airdrops:          %d (%d lamports)\n", res.TxCount, res.TotalRequested)
	}
	if err != nil {
		return fmt.Errorf("funding failed: %w", err)
	}
	return nil
}

// build creates one call per copy, rotating through the signers.
func (p *Pipeline) build(_ context.Context, _ *Result) error {
	callOpts, err := CallOptions(p.cfg)
	if err != nil {
		return err
	}

	count := p.cfg.Count
	if count <= 0 {
		count = 1
	}
	p.jobs = make([]batcher.Job, 0, count)
	for i := 0; i < count; i++ {
		signer := p.signers[i%len(p.signers)]
		call, err := p.factory.CreateCall(p.cfg.Instruction, signer.PublicKey(), callOpts...)
		if err != nil {
			return fmt.Errorf("failed to build %s: %w", p.cfg.Instruction, err)
		}
		p.jobs = append(p.jobs, batcher.Job{Call: call, Signer: signer})
	}

	fmt.Fprintf(p.out, "  Built %d %s call(s)\n", len(p.jobs), p.cfg.Instruction)
	return nil
}

// submit runs the batch. Individual failures are outcomes, not stage errors.
func (p *Pipeline) submit(ctx context.Context, result *Result) error {
	bcfg := &batcher.Config{
		Workers: p.cfg.Workers,
		Rate:    p.cfg.RateLimit,
		Burst:   p.cfg.Burst,
		Options: p.opts,
	}
	opts := []batcher.Option{batcher.WithLogger(p.logger), batcher.WithOutput(p.out)}
	if p.deps.Recorder != nil {
		opts = append(opts, batcher.WithPendingGauge(p.deps.Recorder))
	}

	p.collector.Start()
	summary, err := batcher.New(p.deps.Submitter, bcfg, opts...).SubmitAll(ctx, p.jobs)
	if summary != nil {
		result.Summary = summary
		p.collector.Record(summary.Results...)
		p.collector.AddSkipped(summary.Skipped)
		if p.deps.Recorder != nil {
			p.deps.Recorder.SetSendRate(summary.SendRate)
		}
	}
	return err
}

// report prints the outcome table and exports it when configured.
func (p *Pipeline) report(_ context.Context, result *Result) error {
	report := p.collector.Report()
	result.Report = report
	if p.deps.Recorder != nil {
		p.deps.Recorder.SetConfirmedTPS(report.Metrics.ConfirmedTPS)
	}

	p.collector.PrintSummary(report)
	p.printOutcomes(report)

	files, err := p.export(report)
	if err != nil {
		return err
	}
	result.Exported = files
	if len(files) > 0 {
		fmt.Fprintf(p.out, "\nReports exported to:\n")
		for _, f := range files {
			fmt.Fprintf(p.out, "  - %s\n", f)
		}
	}
	return nil
}

func (p *Pipeline) export(report *collector.Report) ([]string, error) {
	return ExportReport(p.cfg, report)
}

// ExportReport writes report in the format cfg.Export names and returns the
// files written.
func ExportReport(cfg *config.Config, report *collector.Report) ([]string, error) {
	exporter := collector.NewExporter(cfg.OutputDir)
	switch cfg.Export {
	case config.ExportNone:
		return nil, nil
	case config.ExportBoth:
		return exporter.ExportAll(report)
	default:
		f, err := exporter.Export(report, collector.ExportFormat(cfg.Export))
		if err != nil {
			return nil, err
		}
		return []string{f}, nil
	}
}

// printOutcomes lists every submission, failures as visibly as successes.
func (p *Pipeline) printOutcomes(report *collector.Report) {
	fmt.Fprintln(p.out)
	for _, tx := range report.Transactions {
		switch tx.Outcome {
		case submitter.OutcomeConfirmed:
			fmt.Fprintf(p.out, "CONFIRMED %s slot=%d commitment=%s\n", tx.Signature, tx.Slot, tx.Commitment)
		case submitter.OutcomeTimedOut:
			fmt.Fprintf(p.out, "TIMED OUT %s\n", tx.Signature)
		default:
			fmt.Fprintf(p.out, "FAILED    %s reason=%s %s\n", tx.Signature, tx.Reason, tx.Error)
		}
	}
}

// printFinalSummary prints the final execution summary
func (p *Pipeline) printFinalSummary(result *Result) {
	fmt.Fprintf(p.out, "\nStage Results:\n")
	for _, sr := range result.StageResults {
		status := "ok"
		switch {
		case sr.Skipped:
			status = "skip"
		case !sr.Success:
			status = "FAIL"
		}
		fmt.Fprintf(p.out, "  [%s] Stage %d (%s): %s\n", status, sr.Stage+1, sr.Stage, sr.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(p.out, "\nTotal Duration: %s\n", result.Duration.Round(time.Millisecond))
}

// CallOptions maps the trade parties and arguments of cfg onto factory
// options. Unset parties are left out.
func CallOptions(cfg *config.Config) ([]program.CallOption, error) {
	var opts []program.CallOption

	parties := []struct {
		value string
		apply func(solana.PublicKey) program.CallOption
	}{
		{cfg.Buyer, program.WithBuyer},
		{cfg.Seller, program.WithSeller},
		{cfg.FreightVerifier, program.WithFreightVerifier},
		{cfg.Mint, program.WithMint},
		{cfg.TokenProgram, program.WithTokenProgram},
	}
	for _, party := range parties {
		if party.value == "" {
			continue
		}
		pk, err := solana.PublicKeyFromBase58(party.value)
		if err != nil {
			return nil, fmt.Errorf("invalid public key %q: %w", party.value, err)
		}
		opts = append(opts, party.apply(pk))
	}

	opts = append(opts,
		program.WithSeed(cfg.Seed),
		program.WithDeposit(cfg.Deposit),
		program.WithAmount(cfg.Amount),
	)

	if cfg.DocumentHash != "" {
		hash, err := cfg.DocumentHashBytes()
		if err != nil {
			return nil, err
		}
		opts = append(opts, program.WithDocumentHash(hash))
	}
	return opts, nil
}
