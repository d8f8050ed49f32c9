// Package program builds calls into the tradelink escrow program and decodes
// its accounts and errors.
package program

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the deployed tradelink program.
var DefaultProgramID = solana.MustPublicKeyFromBase58("S4Zy9tboDLQ8Qj8UxhcSFc9z4K4GrYzUyDVenbKyr3Z")

const discriminatorLength = 8

// Discriminator returns the 8-byte selector Anchor prefixes to instruction
// data for the named instruction.
func Discriminator(instruction string) [discriminatorLength]byte {
	return hashPrefix("global:" + instruction)
}

// AccountDiscriminator returns the 8-byte tag Anchor writes at the start of an
// account of the named type.
func AccountDiscriminator(account string) [discriminatorLength]byte {
	return hashPrefix("account:" + account)
}

func hashPrefix(preimage string) [discriminatorLength]byte {
	sum := sha256.Sum256([]byte(preimage))
	var out [discriminatorLength]byte
	copy(out[:], sum[:discriminatorLength])
	return out
}
