package program

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const escrowSeed = "trade"

// EscrowAddress derives the Trade account of buyer for seed.
func EscrowAddress(programID, buyer solana.PublicKey, seed uint64) (solana.PublicKey, uint8, error) {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], seed)
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{[]byte(escrowSeed), buyer.Bytes(), le[:]},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive escrow address: %w", err)
	}
	return addr, bump, nil
}

// AssociatedTokenAddress derives the associated token account of owner for
// mint under tokenProgram.
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}
