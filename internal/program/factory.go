package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// Factory creates calls by instruction name. The signer takes the signing
// role of each instruction: buyer for buy and cancel, seller for sell, and
// freight verifier for settlement.
type Factory struct {
	programID solana.PublicKey
}

// NewFactory creates a factory for the program at programID.
func NewFactory(programID solana.PublicKey) *Factory {
	return &Factory{programID: programID}
}

// ProgramID returns the target program.
func (f *Factory) ProgramID() solana.PublicKey { return f.programID }

// CreateCall builds the named instruction signed by signer.
func (f *Factory) CreateCall(name string, signer solana.PublicKey, opts ...CallOption) (*submitter.InstructionCall, error) {
	o := &callOptions{}
	for _, opt := range opts {
		opt(o)
	}
	p := o.parties

	switch name {
	case InstructionInitialize:
		return Initialize(f.programID, signer), nil
	case InstructionBuy:
		p.Buyer = signer
		if err := require(name, role{"seller", p.Seller}, role{"freight verifier", p.FreightVerifier}, role{"mint", p.Mint}); err != nil {
			return nil, err
		}
		return Buy(f.programID, p, o.seed, o.deposit, o.amount)
	case InstructionCancel:
		p.Buyer = signer
		if err := require(name, role{"mint", p.Mint}); err != nil {
			return nil, err
		}
		return Cancel(f.programID, p, o.seed)
	case InstructionSell:
		p.Seller = signer
		if err := require(name, role{"buyer", p.Buyer}, role{"mint", p.Mint}); err != nil {
			return nil, err
		}
		return Sell(f.programID, p, o.seed, o.documentHash)
	case InstructionSettlement:
		p.FreightVerifier = signer
		if err := require(name, role{"buyer", p.Buyer}, role{"seller", p.Seller}, role{"mint", p.Mint}); err != nil {
			return nil, err
		}
		return Settlement(f.programID, p, o.seed)
	default:
		return nil, fmt.Errorf("unsupported instruction: %s", name)
	}
}

type role struct {
	name string
	key  solana.PublicKey
}

func require(instruction string, roles ...role) error {
	for _, r := range roles {
		if r.key.IsZero() {
			return fmt.Errorf("%s is required for %s", r.name, instruction)
		}
	}
	return nil
}

// CallOption is a functional option for call construction
type CallOption func(*callOptions)

type callOptions struct {
	parties      Parties
	seed         uint64
	deposit      uint64
	amount       uint64
	documentHash [32]byte
}

func WithBuyer(pk solana.PublicKey) CallOption {
	return func(o *callOptions) { o.parties.Buyer = pk }
}

func WithSeller(pk solana.PublicKey) CallOption {
	return func(o *callOptions) { o.parties.Seller = pk }
}

func WithFreightVerifier(pk solana.PublicKey) CallOption {
	return func(o *callOptions) { o.parties.FreightVerifier = pk }
}

func WithMint(pk solana.PublicKey) CallOption {
	return func(o *callOptions) { o.parties.Mint = pk }
}

// WithTokenProgram selects the token program owning the mint.
func WithTokenProgram(pk solana.PublicKey) CallOption {
	return func(o *callOptions) { o.parties.TokenProgram = pk }
}

// WithSeed selects the trade of the buyer.
func WithSeed(seed uint64) CallOption {
	return func(o *callOptions) { o.seed = seed }
}

// WithDeposit sets the token amount moved into the vault by buy.
func WithDeposit(deposit uint64) CallOption {
	return func(o *callOptions) { o.deposit = deposit }
}

// WithAmount sets the agreed trade amount.
func WithAmount(amount uint64) CallOption {
	return func(o *callOptions) { o.amount = amount }
}

func WithDocumentHash(hash [32]byte) CallOption {
	return func(o *callOptions) { o.documentHash = hash }
}
