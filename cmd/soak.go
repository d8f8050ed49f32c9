package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xmhha/txsubmit/internal/collector"
	"github.com/0xmhha/txsubmit/internal/config"
	"github.com/0xmhha/txsubmit/internal/longsender"
	"github.com/0xmhha/txsubmit/internal/monitor"
	"github.com/0xmhha/txsubmit/internal/pipeline"
	"github.com/0xmhha/txsubmit/internal/program"
	"github.com/0xmhha/txsubmit/internal/submitter"
)

func newSoakCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "soak <initialize|buy|cancel|sell|settlement>",
		Short:     "Keep submitting an instruction at a steady rate for a duration",
		Args:      cobra.ExactArgs(1),
		ValidArgs: program.Instructions,
		RunE:      runSoak,
	}
}

func runSoak(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Instruction = args[0]
	if err := cfg.ValidateSoak(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rt, err := newRuntime(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	build, err := soakCallSource(cfg)
	if err != nil {
		return err
	}
	commitment, err := submitter.ParseCommitment(cfg.Commitment)
	if err != nil {
		return err
	}

	keySigners := rt.wallet.LoadSigners()
	signers := make([]submitter.Signer, len(keySigners))
	for i, s := range keySigners {
		signers[i] = s
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Soaking %s for %s at %.1f/s with %d signer(s)\n", cfg.Instruction, cfg.Duration, cfg.RateLimit, len(signers))

	mon := monitor.New(nil)
	if rt.metrics != nil {
		mon.WithGauge(rt.metrics)
	}
	sender := longsender.New(rt.submitter, &longsender.Config{
		Duration: cfg.Duration,
		Rate:     cfg.RateLimit,
		Burst:    cfg.Burst,
		Workers:  cfg.Workers,
		Options: submitter.Options{
			Commitment:    commitment,
			Timeout:       cfg.Timeout,
			PollInterval:  cfg.PollInterval,
			SkipPreflight: cfg.SkipPreflight,
		},
	}).WithLogger(rt.logger.Named("longsender")).WithCallbacks(&longsender.Callbacks{
		OnDispatched: mon.RecordDispatched,
		OnResult:     mon.Observe,
	})

	start := time.Now()
	mon.Start()
	stop := displayUntilDone(cmd.Context(), mon, out)
	result, runErr := sender.Run(cmd.Context(), signers, build)
	stop()
	end := time.Now()

	if result != nil {
		report := collector.BuildReport("soak-"+cfg.Instruction, result.Results, 0, start, end)
		collector.PrintSummary(out, report)
		files, err := pipeline.ExportReport(cfg, report)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(out, "Report exported to %s\n", f)
		}
		rt.logger.Info("soak finished",
			zap.Int("submitted", result.TotalSubmitted),
			zap.Int("confirmed", result.TotalConfirmed),
			zap.Float64("confirmed_tps", result.ConfirmedTPS))
	}
	if runErr != nil {
		return fmt.Errorf("soak stopped: %w", runErr)
	}
	if result.TotalConfirmed != result.TotalSubmitted {
		return errNotConfirmed
	}
	return nil
}

// displayUntilDone runs the monitor display and returns a func that stops it
// and waits for the final line.
func displayUntilDone(ctx context.Context, mon *monitor.Monitor, w io.Writer) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.Display(ctx, w)
	}()
	return func() {
		cancel()
		<-done
	}
}

// soakCallSource builds calls from cfg. Buy derives a fresh escrow per
// submission by offsetting the seed; the other instructions repeat the
// configured call.
func soakCallSource(cfg *config.Config) (longsender.CallSource, error) {
	programID, err := solana.PublicKeyFromBase58(cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}
	callOpts, err := pipeline.CallOptions(cfg)
	if err != nil {
		return nil, err
	}
	factory := program.NewFactory(programID)

	return func(seq int64, signer submitter.Signer) (*submitter.InstructionCall, error) {
		opts := callOpts
		if cfg.Instruction == program.InstructionBuy {
			opts = append(append([]program.CallOption(nil), callOpts...), program.WithSeed(cfg.Seed+uint64(seq)))
		}
		return factory.CreateCall(cfg.Instruction, signer.PublicKey(), opts...)
	}, nil
}
