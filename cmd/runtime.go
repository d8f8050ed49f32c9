package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xmhha/txsubmit/internal/config"
	"github.com/0xmhha/txsubmit/internal/ledger"
	"github.com/0xmhha/txsubmit/internal/logging"
	"github.com/0xmhha/txsubmit/internal/metrics"
	"github.com/0xmhha/txsubmit/internal/program"
	"github.com/0xmhha/txsubmit/internal/submitter"
	"github.com/0xmhha/txsubmit/internal/wallet"
)

// runtime holds the components shared by every command.
type runtime struct {
	logger    *zap.Logger
	logCloser io.Closer
	endpoint  *ledger.Endpoint
	notifier  *ledger.Notifier
	metrics   *metrics.Metrics
	submitter *submitter.Submitter
	wallet    *wallet.Wallet
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newRuntime wires logging, the ledger endpoint, the optional notifier and
// metrics server, and the submitter. The wallet is opened when withWallet.
func newRuntime(ctx context.Context, cfg *config.Config, withWallet bool) (*runtime, error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if logCfg.Level == "" && cfg.Verbose {
		logCfg.Level = "debug"
	}
	if cfg.LogFormat != "" {
		logCfg.Format = cfg.LogFormat
	}
	logCfg.File = cfg.LogFile

	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	rt := &runtime{logger: logger, logCloser: closer}

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger.Named("ledger"))}
	if cfg.RateLimit > 0 {
		// each submission makes several status calls per dispatch
		ledgerOpts = append(ledgerOpts, ledger.WithRateLimit(cfg.RateLimit*4, cfg.Burst*4))
	}
	rt.endpoint = ledger.Dial(cfg.URL, ledgerOpts...)

	subOpts := []submitter.Option{submitter.WithLogger(logger.Named("submitter"))}
	if cfg.Subscribe && cfg.WSURL != "" {
		rt.notifier = ledger.NewNotifier(cfg.WSURL, nil, logger.Named("notifier"))
		subOpts = append(subOpts, submitter.WithNotifier(rt.notifier))
	}

	if cfg.MetricsEnabled {
		rt.metrics = metrics.NewMetrics("txsubmit", prometheus.NewRegistry(), logger.Named("metrics"))
		if err := rt.metrics.Start(ctx, cfg.MetricsPort); err != nil {
			rt.Close()
			return nil, err
		}
		logger.Info("metrics server started", zap.String("addr", rt.metrics.Addr()))
		subOpts = append(subOpts, submitter.WithRecorder(rt.metrics))
	}

	rt.submitter = submitter.New(rt.endpoint, subOpts...)

	if withWallet {
		w, err := openWallet(cfg)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open wallet: %w", err)
		}
		rt.wallet = w
		logger.Debug("wallet opened",
			zap.Stringer("master", w.MasterAddress()),
			zap.Int("sub_accounts", len(w.SubKeys())))
	}
	return rt, nil
}

func openWallet(cfg *config.Config) (*wallet.Wallet, error) {
	switch {
	case cfg.Mnemonic != "":
		return wallet.NewFromMnemonic(cfg.Mnemonic, cfg.SubAccounts)
	case cfg.SecretKey != "":
		return wallet.NewFromSecret(cfg.SecretKey, cfg.SubAccounts)
	default:
		return wallet.NewFromKeygenFile(cfg.Wallet, cfg.SubAccounts)
	}
}

// Close releases everything newRuntime opened.
func (rt *runtime) Close() {
	if rt.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.metrics.Stop(ctx); err != nil {
			rt.logger.Warn("metrics server shutdown", zap.Error(err))
		}
		cancel()
	}
	if rt.notifier != nil {
		_ = rt.notifier.Close()
	}
	if rt.endpoint != nil {
		_ = rt.endpoint.Close()
	}
	_ = rt.logger.Sync()
	if rt.logCloser != nil {
		_ = rt.logCloser.Close()
	}
}

func printResult(w io.Writer, res *submitter.Result) {
	switch res.Outcome {
	case submitter.OutcomeConfirmed:
		fmt.Fprintf(w, "CONFIRMED %s slot=%d commitment=%s\n", res.Signature, res.Slot, res.Commitment)
	case submitter.OutcomeTimedOut:
		fmt.Fprintf(w, "TIMED OUT %s\n", res.Signature)
	default:
		fmt.Fprintf(w, "FAILED    %s reason=%s\n", res.Signature, res.Reason)
		printDiagnostic(w, res.Diagnostic)
		for _, line := range res.Logs {
			fmt.Fprintf(w, "  log: %s\n", line)
		}
	}
}

func printStatus(w io.Writer, sig solana.Signature, st submitter.Status) {
	fmt.Fprintf(w, "%s %s", sig, st.State)
	if st.Slot > 0 {
		fmt.Fprintf(w, " slot=%d", st.Slot)
	}
	if st.Commitment != "" {
		fmt.Fprintf(w, " commitment=%s", st.Commitment)
	}
	fmt.Fprintln(w)
	printDiagnostic(w, st.Diagnostic)
}

func printDiagnostic(w io.Writer, diagnostic string) {
	if diagnostic == "" {
		return
	}
	fmt.Fprintf(w, "  diagnostic: %s\n", diagnostic)
	if pe, ok := program.ErrorFromDiagnostic(diagnostic); ok {
		fmt.Fprintf(w, "  program error: %s\n", pe)
	}
}

func printTrade(w io.Writer, escrow solana.PublicKey, t *program.Trade) {
	fmt.Fprintf(w, "Escrow:           %s\n", escrow)
	fmt.Fprintf(w, "State:            %s\n", t.State)
	fmt.Fprintf(w, "Buyer:            %s\n", t.Buyer)
	fmt.Fprintf(w, "Seller:           %s\n", t.Seller)
	fmt.Fprintf(w, "Freight verifier: %s\n", t.FreightVerifier)
	fmt.Fprintf(w, "Mint:             %s\n", t.Mint)
	fmt.Fprintf(w, "Amount:           %d\n", t.Amount)
	if t.DocumentHash != nil {
		fmt.Fprintf(w, "Document hash:    %x\n", t.DocumentHash[:])
	} else {
		fmt.Fprintf(w, "Document hash:    none\n")
	}
	fmt.Fprintf(w, "Seed:             %d\n", t.Seed)
	fmt.Fprintf(w, "Bump:             %d\n", t.Bump)
}
