package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xmhha/txsubmit/internal/config"
	"github.com/0xmhha/txsubmit/internal/distributor"
	"github.com/0xmhha/txsubmit/internal/pipeline"
	"github.com/0xmhha/txsubmit/internal/program"
	"github.com/0xmhha/txsubmit/internal/submitter"
)

var (
	version = "dev"
	runCfg  = &pipeline.RunConfig{}
)

// errNotConfirmed makes the process exit non-zero without repeating output
// the run already printed.
var errNotConfirmed = errors.New("not every submission was confirmed")

func main() {
	rootCmd := &cobra.Command{
		Use:           "txsubmit",
		Short:         "Submit and confirm tradelink program instructions on Solana",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	registerFlags(rootCmd)

	rootCmd.AddCommand(
		newInvokeCmd(),
		newSoakCmd(),
		newStatusCmd(),
		newTradeCmd(),
		newAirdropCmd(),
		newClusterCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errNotConfirmed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func registerFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.String(config.KeyConfig, "", "Config file (yaml, toml or json)")

	// Endpoint
	flags.String(config.KeyURL, "", "RPC endpoint URL (env ANCHOR_PROVIDER_URL)")
	flags.String(config.KeyWSURL, "", "Websocket endpoint URL (derived from url when empty)")

	// Credentials, exactly one
	flags.String(config.KeyWallet, "", "Path to a solana-keygen keypair file (env ANCHOR_WALLET)")
	flags.String(config.KeySecretKey, "", "Base58 encoded 64-byte keypair")
	flags.String(config.KeyMnemonic, "", "BIP39 mnemonic")
	flags.Uint64(config.KeySubAccounts, 0, "Number of sub-accounts to sign with")

	// Program and trade parties
	flags.String(config.KeyProgramID, "", "Program address (defaults to the tradelink program)")
	flags.String(config.KeyBuyer, "", "Buyer public key")
	flags.String(config.KeySeller, "", "Seller public key")
	flags.String(config.KeyFreightVerifier, "", "Freight verifier public key")
	flags.String(config.KeyMint, "", "USD mint public key")
	flags.String(config.KeyTokenProgram, "", "Token program (defaults to SPL Token)")
	flags.Uint64(config.KeySeed, 0, "Trade seed")
	flags.Uint64(config.KeyDeposit, 0, "Buyer deposit in token base units")
	flags.Uint64(config.KeyAmount, 0, "Trade amount in token base units")
	flags.String(config.KeyDocumentHash, "", "Hex encoded 32-byte document hash for sell")

	// Confirmation
	flags.String(config.KeyCommitment, config.DefaultCommitment, "Commitment: processed, confirmed or finalized")
	flags.Duration(config.KeyTimeout, config.DefaultTimeout, "Time allowed for one submission")
	flags.Duration(config.KeyPollInterval, config.DefaultPollInterval, "Status poll interval")
	flags.Bool(config.KeySubscribe, false, "Also wait for websocket signature notifications")
	flags.Bool(config.KeySkipPreflight, false, "Skip the node's preflight simulation")

	// Load shaping
	flags.Int(config.KeyCount, 1, "Number of submissions")
	flags.Int(config.KeyWorkers, 1, "Concurrent submissions")
	flags.Float64(config.KeyRateLimit, 0, "Max submissions started per second (0 = unlimited)")
	flags.Int(config.KeyBurst, 1, "Rate limiter burst")
	flags.Duration(config.KeyDuration, 0, "Soak duration (default 1m)")

	// Funding
	flags.Uint64(config.KeyAirdrop, 0, "Lamports per airdrop on faucet-enabled clusters")
	flags.Uint64(config.KeyMinBalance, 0, "Minimum lamports each signer must hold (0 = no funding)")

	// Output
	flags.String(config.KeyOutput, config.DefaultOutputDir, "Output directory for reports")
	flags.String(config.KeyExport, "", "Export report: json, csv or both")
	flags.BoolP(config.KeyVerbose, "v", false, "Enable debug logging")
	flags.Bool(config.KeyMetrics, false, "Enable Prometheus metrics endpoint")
	flags.Int(config.KeyMetricsPort, config.DefaultMetricsPort, "Port for Prometheus metrics endpoint")
	flags.String(config.KeyLogLevel, "", "Log level: debug, info, warn or error")
	flags.String(config.KeyLogFormat, "console", "Log format: console or json")
	flags.String(config.KeyLogFile, "", "Also write JSON logs to this rotated file")
}

func newInvokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "invoke <initialize|buy|cancel|sell|settlement>",
		Short:     "Submit an instruction and wait for confirmation",
		Args:      cobra.ExactArgs(1),
		ValidArgs: program.Instructions,
		RunE:      runInvoke,
	}
	cmd.Flags().BoolVar(&runCfg.SkipFunding, "skip-funding", false, "Skip the funding stage")
	cmd.Flags().BoolVar(&runCfg.DryRun, "dry-run", false, "Build calls but do not submit them")
	return cmd
}

func runInvoke(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Instruction = args[0]
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	rt, err := newRuntime(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	deps := pipeline.Deps{
		Submitter: rt.submitter,
		Funding:   rt.endpoint,
		Wallet:    rt.wallet,
		Logger:    rt.logger,
		Output:    cmd.OutOrStdout(),
	}
	if rt.metrics != nil {
		deps.Recorder = rt.metrics
	}

	p, err := pipeline.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	p.WithRunConfig(runCfg)

	result, err := p.Execute(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}
	if runCfg.DryRun {
		return nil
	}
	if !result.AllConfirmed() {
		return errNotConfirmed
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "status <signature>",
		Short: "Query the status of a signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := solana.SignatureFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateEndpoint(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			rt, err := newRuntime(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			commitment := submitter.Commitment(cfg.Commitment)
			out := cmd.OutOrStdout()

			if wait {
				res := rt.submitter.WaitForSignature(cmd.Context(), sig, submitter.WaitOptions{
					Commitment:   commitment,
					Timeout:      cfg.Timeout,
					PollInterval: cfg.PollInterval,
				})
				printResult(out, res)
				if !res.Confirmed() {
					return errNotConfirmed
				}
				return nil
			}

			st, err := rt.endpoint.QueryStatus(cmd.Context(), sig, commitment)
			if err != nil {
				return err
			}
			printStatus(out, sig, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the commitment is reached or the timeout passes")
	return cmd
}

func newTradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trade",
		Short: "Fetch and decode the escrow account of a trade (--buyer, --seed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateEndpoint(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if cfg.Buyer == "" {
				return errors.New("buyer is required")
			}
			buyer, err := solana.PublicKeyFromBase58(cfg.Buyer)
			if err != nil {
				return fmt.Errorf("invalid buyer: %w", err)
			}
			programID := solana.MustPublicKeyFromBase58(cfg.ProgramID)

			escrow, _, err := program.EscrowAddress(programID, buyer, cfg.Seed)
			if err != nil {
				return err
			}

			rt, err := newRuntime(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			data, err := rt.endpoint.AccountData(cmd.Context(), escrow, submitter.Commitment(cfg.Commitment))
			if err != nil {
				return fmt.Errorf("escrow %s: %w", escrow, err)
			}
			trade, err := program.DecodeTrade(data)
			if err != nil {
				return fmt.Errorf("escrow %s: %w", escrow, err)
			}
			printTrade(cmd.OutOrStdout(), escrow, trade)
			return nil
		},
	}
}

func newAirdropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop [lamports]",
		Short: "Fund the signer on a faucet-enabled cluster",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateAccount(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			lamports := cfg.AirdropLamports
			if len(args) == 1 {
				if _, err := fmt.Sscan(args[0], &lamports); err != nil {
					return fmt.Errorf("invalid lamports %q", args[0])
				}
			}
			if lamports == 0 {
				lamports = distributor.LamportsPerSOL
			}

			rt, err := newRuntime(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			dcfg := &distributor.Config{
				// an airdrop is always requested: the target is current balance plus lamports
				AirdropLamports: lamports,
				Commitment:      submitter.Commitment(cfg.Commitment),
				Timeout:         cfg.Timeout,
				PollInterval:    cfg.PollInterval,
			}
			addresses := rt.wallet.AllAddresses()
			balance, err := rt.endpoint.Balance(cmd.Context(), addresses[0], dcfg.Commitment)
			if err != nil {
				return err
			}
			dcfg.MinBalance = balance + lamports

			d := distributor.New(rt.endpoint, rt.submitter, dcfg)
			d.SetOutput(cmd.OutOrStdout())
			res, err := d.Distribute(cmd.Context(), addresses[:1])
			if err != nil {
				return err
			}
			for _, acct := range res.ReadyAccounts {
				rt.logger.Info("airdrop confirmed",
					zap.Stringer("account", acct.Address),
					zap.Stringer("signature", acct.AirdropSig),
					zap.Uint64("slot", acct.AirdropSlot))
				fmt.Fprintf(cmd.OutOrStdout(), "%s balance %d lamports (airdrop %s)\n", acct.Address, acct.Balance, acct.AirdropSig)
			}
			return nil
		},
	}
}
