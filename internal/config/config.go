package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/0xmhha/txsubmit/internal/program"
)

// Export formats
const (
	ExportNone = ""
	ExportJSON = "json"
	ExportCSV  = "csv"
	ExportBoth = "both"
)

const (
	DefaultCommitment   = "processed"
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMetricsPort  = 9090
	DefaultOutputDir    = "./results"
	DefaultSoakDuration = time.Minute
	DefaultSoakRate     = 2.0
)

// Config holds all configuration for a run
type Config struct {
	// RPC connection
	URL   string
	WSURL string

	// Account configuration, exactly one credential
	Wallet      string
	SecretKey   string
	Mnemonic    string
	SubAccounts uint64

	// Invocation
	ProgramID   string
	Instruction string

	// Trade parties and arguments
	Buyer           string
	Seller          string
	FreightVerifier string
	Mint            string
	TokenProgram    string
	Seed            uint64
	Deposit         uint64
	Amount          uint64
	DocumentHash    string

	// Confirmation
	Commitment    string
	Timeout       time.Duration
	PollInterval  time.Duration
	Subscribe     bool
	SkipPreflight bool

	// Load shaping
	Count     int
	Workers   int
	RateLimit float64
	Burst     int
	// Duration bounds a soak run
	Duration time.Duration

	// Funding on local clusters
	AirdropLamports uint64
	MinBalance      uint64

	// Output
	OutputDir string
	Export    string
	Verbose   bool

	// Prometheus metrics
	MetricsEnabled bool
	MetricsPort    int

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

var (
	httpRegex = regexp.MustCompile(`^https?://`)
	wsRegex   = regexp.MustCompile(`^wss?://`)
	hashRegex = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)
)

// Validate validates the configuration for an invoke run and applies
// defaults.
func (c *Config) Validate() error {
	if err := c.ValidateEndpoint(); err != nil {
		return err
	}
	if err := c.validateCredentials(); err != nil {
		return err
	}

	if c.Instruction == "" {
		c.Instruction = program.InstructionInitialize
	}
	if !slices.Contains(program.Instructions, c.Instruction) {
		return fmt.Errorf("invalid instruction %q: must be one of %s", c.Instruction, strings.Join(program.Instructions, ", "))
	}
	for _, k := range []struct{ name, value string }{
		{"buyer", c.Buyer},
		{"seller", c.Seller},
		{"freight-verifier", c.FreightVerifier},
		{"mint", c.Mint},
		{"token-program", c.TokenProgram},
	} {
		if k.value != "" && !IsPublicKey(k.value) {
			return fmt.Errorf("%s must be a base58 public key", k.name)
		}
	}
	if c.DocumentHash != "" && !hashRegex.MatchString(c.DocumentHash) {
		return errors.New("document-hash must be 32 bytes of hex")
	}

	if c.Count < 0 {
		return errors.New("count must not be negative")
	}
	if c.Count == 0 {
		c.Count = 1
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative")
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.RateLimit < 0 {
		return errors.New("rate-limit must not be negative")
	}

	switch c.Export {
	case ExportNone, ExportJSON, ExportCSV, ExportBoth:
	default:
		return errors.New("invalid export: must be json, csv, or both")
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}

	if c.MetricsEnabled && c.MetricsPort == 0 {
		c.MetricsPort = DefaultMetricsPort
	}
	return nil
}

// ValidateSoak validates a soak run. A soak is always rate limited.
func (c *Config) ValidateSoak() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Duration < 0 {
		return errors.New("duration must not be negative")
	}
	if c.Duration == 0 {
		c.Duration = DefaultSoakDuration
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultSoakRate
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}

// ValidateEndpoint checks what every command needs: the RPC endpoint and the
// confirmation settings.
func (c *Config) ValidateEndpoint() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	if !httpRegex.MatchString(c.URL) {
		return errors.New("url must be a valid HTTP URL")
	}
	if c.WSURL != "" && !wsRegex.MatchString(c.WSURL) {
		return errors.New("ws-url must be a valid WebSocket URL")
	}
	if c.WSURL == "" && c.Subscribe {
		ws, err := DeriveWSURL(c.URL)
		if err != nil {
			return err
		}
		c.WSURL = ws
	}

	if c.ProgramID == "" {
		c.ProgramID = program.DefaultProgramID.String()
	}
	if !IsPublicKey(c.ProgramID) {
		return errors.New("program-id must be a base58 public key")
	}

	if c.Commitment == "" {
		c.Commitment = DefaultCommitment
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return errors.New("invalid commitment: must be processed, confirmed, or finalized")
	}

	if c.Timeout < 0 || c.PollInterval < 0 {
		return errors.New("timeout and poll-interval must not be negative")
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	return nil
}

// ValidateAccount checks the endpoint and the signing credential.
func (c *Config) ValidateAccount() error {
	if err := c.ValidateEndpoint(); err != nil {
		return err
	}
	return c.validateCredentials()
}

func (c *Config) validateCredentials() error {
	set := 0
	for _, v := range []string{c.Wallet, c.SecretKey, c.Mnemonic} {
		if v != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return errors.New("one of wallet, secret-key or mnemonic is required")
	case set > 1:
		return errors.New("only one of wallet, secret-key or mnemonic may be set")
	}
	if c.SecretKey != "" {
		raw, err := base58.Decode(c.SecretKey)
		if err != nil || len(raw) != 64 {
			return errors.New("secret-key must be a base58 encoded 64-byte keypair")
		}
	}
	if c.Wallet != "" {
		c.Wallet = ExpandHome(c.Wallet)
	}
	return nil
}

// DocumentHashBytes decodes DocumentHash; empty yields zeroes.
func (c *Config) DocumentHashBytes() ([32]byte, error) {
	var out [32]byte
	if c.DocumentHash == "" {
		return out, nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(c.DocumentHash, "0x"))
	if err != nil || len(raw) != len(out) {
		return out, errors.New("document-hash must be 32 bytes of hex")
	}
	copy(out[:], raw)
	return out, nil
}

// IsPublicKey reports whether s decodes to a 32-byte key.
func IsPublicKey(s string) bool {
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}

// DeriveWSURL maps a JSON-RPC URL to its pubsub URL. The local validator
// serves pubsub one port above RPC.
func DeriveWSURL(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("cannot derive websocket url from scheme %q", u.Scheme)
	}
	if u.Port() == "8899" {
		u.Host = u.Hostname() + ":8900"
	}
	return u.String(), nil
}

// ExpandHome resolves a leading ~/ against the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
