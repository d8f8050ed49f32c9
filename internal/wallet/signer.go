package wallet

import (
	"github.com/gagliardetto/solana-go"
)

// KeySigner signs with an in-memory ed25519 key.
type KeySigner struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

func NewKeySigner(key solana.PrivateKey) *KeySigner {
	return &KeySigner{key: key, pub: key.PublicKey()}
}

func (s *KeySigner) PublicKey() solana.PublicKey {
	return s.pub
}

func (s *KeySigner) Sign(payload []byte) (solana.Signature, error) {
	return s.key.Sign(payload)
}
