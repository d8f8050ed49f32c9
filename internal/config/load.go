package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TXSUBMIT_URL.
const EnvPrefix = "TXSUBMIT"

// Keys shared by flags, environment and config files.
const (
	KeyConfig          = "config"
	KeyURL             = "url"
	KeyWSURL           = "ws-url"
	KeyWallet          = "wallet"
	KeySecretKey       = "secret-key"
	KeyMnemonic        = "mnemonic"
	KeySubAccounts     = "sub-accounts"
	KeyProgramID       = "program-id"
	KeyBuyer           = "buyer"
	KeySeller          = "seller"
	KeyFreightVerifier = "freight-verifier"
	KeyMint            = "mint"
	KeyTokenProgram    = "token-program"
	KeySeed            = "seed"
	KeyDeposit         = "deposit"
	KeyAmount          = "amount"
	KeyDocumentHash    = "document-hash"
	KeyCommitment      = "commitment"
	KeyTimeout         = "timeout"
	KeyPollInterval    = "poll-interval"
	KeySubscribe       = "subscribe"
	KeySkipPreflight   = "skip-preflight"
	KeyCount           = "count"
	KeyWorkers         = "workers"
	KeyRateLimit       = "rate-limit"
	KeyBurst           = "burst"
	KeyDuration        = "duration"
	KeyAirdrop         = "airdrop"
	KeyMinBalance      = "min-balance"
	KeyOutput          = "output"
	KeyExport          = "export"
	KeyVerbose         = "verbose"
	KeyMetrics         = "metrics"
	KeyMetricsPort     = "metrics-port"
	KeyLogLevel        = "log-level"
	KeyLogFormat       = "log-format"
	KeyLogFile         = "log-file"
)

// anchorAliases lets a txsubmit run reuse an Anchor workspace environment.
var anchorAliases = map[string]string{
	KeyURL:    "ANCHOR_PROVIDER_URL",
	KeyWallet: "ANCHOR_WALLET",
}

// Load merges, from lowest to highest precedence, flag defaults, an optional
// config file, a .env file, environment variables and explicitly set flags.
// It does not validate.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, alias := range anchorAliases {
		if err := v.BindEnv(key, EnvPrefix+"_"+envName(key), alias); err != nil {
			return nil, err
		}
	}
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if file := v.GetString(KeyConfig); file != "" {
		v.SetConfigFile(ExpandHome(file))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	return FromViper(v), nil
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// FromViper reads a Config out of v.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		URL:             v.GetString(KeyURL),
		WSURL:           v.GetString(KeyWSURL),
		Wallet:          v.GetString(KeyWallet),
		SecretKey:       v.GetString(KeySecretKey),
		Mnemonic:        v.GetString(KeyMnemonic),
		SubAccounts:     v.GetUint64(KeySubAccounts),
		ProgramID:       v.GetString(KeyProgramID),
		Buyer:           v.GetString(KeyBuyer),
		Seller:          v.GetString(KeySeller),
		FreightVerifier: v.GetString(KeyFreightVerifier),
		Mint:            v.GetString(KeyMint),
		TokenProgram:    v.GetString(KeyTokenProgram),
		Seed:            v.GetUint64(KeySeed),
		Deposit:         v.GetUint64(KeyDeposit),
		Amount:          v.GetUint64(KeyAmount),
		DocumentHash:    v.GetString(KeyDocumentHash),
		Commitment:      v.GetString(KeyCommitment),
		Timeout:         v.GetDuration(KeyTimeout),
		PollInterval:    v.GetDuration(KeyPollInterval),
		Subscribe:       v.GetBool(KeySubscribe),
		SkipPreflight:   v.GetBool(KeySkipPreflight),
		Count:           v.GetInt(KeyCount),
		Workers:         v.GetInt(KeyWorkers),
		RateLimit:       v.GetFloat64(KeyRateLimit),
		Burst:           v.GetInt(KeyBurst),
		Duration:        v.GetDuration(KeyDuration),
		AirdropLamports: v.GetUint64(KeyAirdrop),
		MinBalance:      v.GetUint64(KeyMinBalance),
		OutputDir:       v.GetString(KeyOutput),
		Export:          strings.ToLower(v.GetString(KeyExport)),
		Verbose:         v.GetBool(KeyVerbose),
		MetricsEnabled:  v.GetBool(KeyMetrics),
		MetricsPort:     v.GetInt(KeyMetricsPort),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		LogFile:         v.GetString(KeyLogFile),
	}
}
