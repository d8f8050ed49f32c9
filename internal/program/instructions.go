package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"

	"github.com/0xmhha/txsubmit/internal/submitter"
)

// Instruction names understood by the program.
const (
	InstructionInitialize = "initialize"
	InstructionBuy        = "buy"
	InstructionCancel     = "cancel"
	InstructionSell       = "sell"
	InstructionSettlement = "settlement"
)

// Instructions lists every supported instruction name.
var Instructions = []string{
	InstructionInitialize,
	InstructionBuy,
	InstructionCancel,
	InstructionSell,
	InstructionSettlement,
}

// Parties identifies the participants of one trade.
type Parties struct {
	Buyer           solana.PublicKey
	Seller          solana.PublicKey
	FreightVerifier solana.PublicKey
	Mint            solana.PublicKey
	// TokenProgram defaults to the SPL token program.
	TokenProgram solana.PublicKey
}

func (p Parties) tokenProgram() solana.PublicKey {
	if p.TokenProgram.IsZero() {
		return solana.TokenProgramID
	}
	return p.TokenProgram
}

type buyArgs struct {
	Seed    uint64
	Deposit uint64
	Amount  uint64
}

type sellArgs struct {
	DocumentHash [32]byte
}

func encode(name string, args any) ([]byte, error) {
	disc := Discriminator(name)
	data := append([]byte(nil), disc[:]...)
	if args == nil {
		return data, nil
	}
	encoded, err := borsh.Serialize(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", name, err)
	}
	return append(data, encoded...), nil
}

// Initialize builds the no-argument initialize call of the Anchor scaffold.
// The payer is passed as the only account. The tradelink program declares
// no initialize handler and answers InstructionFallbackNotFound (101).
func Initialize(programID, payer solana.PublicKey) *submitter.InstructionCall {
	data, _ := encode(InstructionInitialize, nil)
	return submitter.NewInstructionCall(programID, InstructionInitialize,
		[]submitter.AccountRef{{PublicKey: payer, Writable: true, Signer: true}},
		data)
}

// escrowAccounts resolves the escrow and its vault.
func escrowAccounts(programID solana.PublicKey, p Parties, seed uint64) (escrow, vault solana.PublicKey, err error) {
	escrow, _, err = EscrowAddress(programID, p.Buyer, seed)
	if err != nil {
		return
	}
	vault, err = AssociatedTokenAddress(escrow, p.Mint, p.tokenProgram())
	return
}

func tail(p Parties) []submitter.AccountRef {
	return []submitter.AccountRef{
		{PublicKey: solana.SPLAssociatedTokenAccountProgramID},
		{PublicKey: p.tokenProgram()},
		{PublicKey: solana.SystemProgramID},
	}
}

// Buy opens a trade and deposits into its vault. The buyer signs.
func Buy(programID solana.PublicKey, p Parties, seed, deposit, amount uint64) (*submitter.InstructionCall, error) {
	escrow, vault, err := escrowAccounts(programID, p, seed)
	if err != nil {
		return nil, err
	}
	buyerATA, err := AssociatedTokenAddress(p.Buyer, p.Mint, p.tokenProgram())
	if err != nil {
		return nil, err
	}
	data, err := encode(InstructionBuy, buyArgs{Seed: seed, Deposit: deposit, Amount: amount})
	if err != nil {
		return nil, err
	}
	accounts := append([]submitter.AccountRef{
		{PublicKey: p.Buyer, Writable: true, Signer: true},
		{PublicKey: p.Seller, Writable: true},
		{PublicKey: p.FreightVerifier, Writable: true},
		{PublicKey: p.Mint},
		{PublicKey: buyerATA, Writable: true},
		{PublicKey: escrow, Writable: true},
		{PublicKey: vault, Writable: true},
	}, tail(p)...)
	return submitter.NewInstructionCall(programID, InstructionBuy, accounts, data), nil
}

// Cancel refunds the buyer while the trade is still open. The buyer signs.
func Cancel(programID solana.PublicKey, p Parties, seed uint64) (*submitter.InstructionCall, error) {
	escrow, vault, err := escrowAccounts(programID, p, seed)
	if err != nil {
		return nil, err
	}
	buyerATA, err := AssociatedTokenAddress(p.Buyer, p.Mint, p.tokenProgram())
	if err != nil {
		return nil, err
	}
	data, _ := encode(InstructionCancel, nil)
	accounts := append([]submitter.AccountRef{
		{PublicKey: p.Buyer, Writable: true, Signer: true},
		{PublicKey: p.Mint},
		{PublicKey: buyerATA, Writable: true},
		{PublicKey: escrow, Writable: true},
		{PublicKey: vault, Writable: true},
	}, tail(p)...)
	return submitter.NewInstructionCall(programID, InstructionCancel, accounts, data), nil
}

// Sell records the shipping document hash. The seller signs.
func Sell(programID solana.PublicKey, p Parties, seed uint64, documentHash [32]byte) (*submitter.InstructionCall, error) {
	escrow, vault, err := escrowAccounts(programID, p, seed)
	if err != nil {
		return nil, err
	}
	sellerATA, err := AssociatedTokenAddress(p.Seller, p.Mint, p.tokenProgram())
	if err != nil {
		return nil, err
	}
	data, err := encode(InstructionSell, sellArgs{DocumentHash: documentHash})
	if err != nil {
		return nil, err
	}
	accounts := append([]submitter.AccountRef{
		{PublicKey: p.Seller, Writable: true, Signer: true},
		{PublicKey: p.Buyer, Writable: true},
		{PublicKey: p.Mint},
		{PublicKey: sellerATA, Writable: true},
		{PublicKey: escrow, Writable: true},
		{PublicKey: vault, Writable: true},
	}, tail(p)...)
	return submitter.NewInstructionCall(programID, InstructionSell, accounts, data), nil
}

// Settlement releases the vault once the freight verifier signs off.
func Settlement(programID solana.PublicKey, p Parties, seed uint64) (*submitter.InstructionCall, error) {
	escrow, vault, err := escrowAccounts(programID, p, seed)
	if err != nil {
		return nil, err
	}
	buyerATA, err := AssociatedTokenAddress(p.Buyer, p.Mint, p.tokenProgram())
	if err != nil {
		return nil, err
	}
	sellerATA, err := AssociatedTokenAddress(p.Seller, p.Mint, p.tokenProgram())
	if err != nil {
		return nil, err
	}
	data, _ := encode(InstructionSettlement, nil)
	accounts := append([]submitter.AccountRef{
		{PublicKey: p.FreightVerifier, Writable: true, Signer: true},
		{PublicKey: p.Buyer, Writable: true},
		{PublicKey: p.Seller, Writable: true},
		{PublicKey: p.Mint},
		{PublicKey: buyerATA, Writable: true},
		{PublicKey: sellerATA, Writable: true},
		{PublicKey: escrow, Writable: true},
		{PublicKey: vault, Writable: true},
	}, tail(p)...)
	return submitter.NewInstructionCall(programID, InstructionSettlement, accounts, data), nil
}
