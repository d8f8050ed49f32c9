package distributor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/gagliardetto/solana-go"

	"github.com/0xmhha/txsubmit/internal/submitter"
	"github.com/0xmhha/txsubmit/internal/util/progress"
)

var (
	ErrNoAccountsToFund = errors.New("no accounts to fund")
	ErrAirdropFailed    = errors.New("airdrop failed")
)

// Client is the ledger surface funding needs.
type Client interface {
	Balance(ctx context.Context, account solana.PublicKey, commitment submitter.Commitment) (uint64, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment submitter.Commitment) (solana.Signature, error)
}

// Waiter confirms a signature dispatched outside the submitter.
type Waiter interface {
	WaitForSignature(ctx context.Context, sig solana.Signature, wo submitter.WaitOptions) *submitter.Result
}

// Distributor tops up accounts from the cluster faucet. It only works on
// clusters that serve requestAirdrop (local validator, devnet, testnet).
type Distributor struct {
	client Client
	waiter Waiter
	config *Config
	out    io.Writer
}

// New creates a new Distributor instance
func New(client Client, waiter Waiter, config *Config) *Distributor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Distributor{
		client: client,
		waiter: waiter,
		config: config,
		out:    os.Stdout,
	}
}

// SetOutput redirects progress output.
func (d *Distributor) SetOutput(w io.Writer) {
	d.out = w
}

// Distribute ensures every account holds at least MinBalance lamports.
func (d *Distributor) Distribute(ctx context.Context, accounts []solana.PublicKey) (*DistributionResult, error) {
	if len(accounts) == 0 {
		return nil, ErrNoAccountsToFund
	}
	fmt.Fprintf(d.out, "\nChecking funding of %d accounts (minimum %d lamports)\n", len(accounts), d.config.MinBalance)

	statuses, err := d.checkBalances(ctx, accounts)
	if err != nil {
		return nil, fmt.Errorf("failed to check balances: %w", err)
	}

	var funded, unfunded []*AccountStatus
	for _, status := range statuses {
		if status.IsFunded {
			funded = append(funded, status)
		} else {
			unfunded = append(unfunded, status)
		}
	}

	if len(unfunded) == 0 {
		fmt.Fprintf(d.out, "[OK] All %d accounts are already funded\n", len(funded))
		return &DistributionResult{ReadyAccounts: funded}, nil
	}

	// smallest shortfall first, so a throttled faucet funds the most accounts
	sort.Slice(unfunded, func(i, j int) bool {
		return unfunded[i].Missing < unfunded[j].Missing
	})

	result, err := d.fundAccounts(ctx, unfunded)
	result.ReadyAccounts = append(funded, result.ReadyAccounts...)
	return result, err
}

func (d *Distributor) checkBalances(ctx context.Context, accounts []solana.PublicKey) ([]*AccountStatus, error) {
	bar := progress.New(d.out, len(accounts), "checking balances")
	statuses := make([]*AccountStatus, 0, len(accounts))

	for _, addr := range accounts {
		balance, err := d.client.Balance(ctx, addr, d.config.Commitment)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance for %s: %w", addr, err)
		}

		status := &AccountStatus{
			Address:  addr,
			Balance:  balance,
			Required: d.config.MinBalance,
			IsFunded: balance >= d.config.MinBalance,
		}
		if !status.IsFunded {
			status.Missing = d.config.MinBalance - balance
		}
		statuses = append(statuses, status)
		progress.Add(bar, 1)
	}
	return statuses, nil
}

// fundAccounts requests one airdrop per account and confirms each through
// the waiter.
func (d *Distributor) fundAccounts(ctx context.Context, unfunded []*AccountStatus) (*DistributionResult, error) {
	fmt.Fprintf(d.out, "Requesting airdrops for %d accounts...\n", len(unfunded))
	bar := progress.New(d.out, len(unfunded), "airdropping")

	result := &DistributionResult{}
	for i, account := range unfunded {
		amount := d.config.RequestAmount(account.Missing)
		sig, err := d.client.RequestAirdrop(ctx, account.Address, amount, d.config.Commitment)
		if err != nil {
			result.UnfundedAccounts = append(result.UnfundedAccounts, unfunded[i:]...)
			return result, fmt.Errorf("%w for %s: %v", ErrAirdropFailed, account.Address, err)
		}
		account.AirdropSig = sig

		res := d.waiter.WaitForSignature(ctx, sig, submitter.WaitOptions{
			Commitment:   d.config.Commitment,
			Timeout:      d.config.Timeout,
			PollInterval: d.config.PollInterval,
		})
		if !res.Confirmed() {
			result.UnfundedAccounts = append(result.UnfundedAccounts, unfunded[i:]...)
			return result, fmt.Errorf("%w for %s: %v", ErrAirdropFailed, account.Address, res.Err())
		}

		account.AirdropSlot = res.Slot
		account.Balance += amount
		account.IsFunded = true
		result.ReadyAccounts = append(result.ReadyAccounts, account)
		result.TotalRequested += amount
		result.TxCount++
		progress.Add(bar, 1)
	}

	fmt.Fprintf(d.out, "[OK] Funded %d accounts with %d lamports\n", result.TxCount, result.TotalRequested)
	return result, nil
}
