package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"

	"github.com/0xmhha/txsubmit/internal/util/mathutil"
)

// Wallet holds the signing keys of a run: a master key that pays and signs
// by default, plus optional sub-accounts derived from it.
type Wallet struct {
	masterKey   solana.PrivateKey
	subKeys     []solana.PrivateKey
	useMnemonic bool
}

// NewFromSecret creates a wallet from a base58-encoded 64-byte secret key as
// printed by most Solana wallets.
func NewFromSecret(secret string, subAccounts uint64) (*Wallet, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	key, err := keyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	return fromMaster(key, subAccounts)
}

// NewFromKeygenFile loads a solana-keygen JSON keypair file.
func NewFromKeygenFile(path string, subAccounts uint64) (*Wallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	if _, err := keyFromBytes(key); err != nil {
		return nil, fmt.Errorf("invalid keypair %s: %w", path, err)
	}
	return fromMaster(key, subAccounts)
}

func fromMaster(masterKey solana.PrivateKey, subAccounts uint64) (*Wallet, error) {
	subKeys := make([]solana.PrivateKey, subAccounts)
	for i := uint64(0); i < subAccounts; i++ {
		seed := sha256.Sum256(append(
			append([]byte(nil), masterKey[:ed25519.SeedSize]...),
			[]byte(fmt.Sprintf("subaccount-%d", i))...,
		))
		subKeys[i] = solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:]))
	}
	return &Wallet{masterKey: masterKey, subKeys: subKeys}, nil
}

// NewFromMnemonic derives keys from a BIP39 mnemonic along m/44'/501'/i'/0',
// the path used by solana-keygen and browser wallets. Index 0 is the master.
func NewFromMnemonic(mnemonic string, subAccounts uint64) (*Wallet, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	// account indexes are hardened, so the last one must stay below the offset
	if _, err := mathutil.Uint64ToIndex(subAccounts, hardenedOffset); err != nil {
		return nil, fmt.Errorf("too many sub-accounts: %w", err)
	}

	masterKey := DeriveKey(seed, 0)
	subKeys := make([]solana.PrivateKey, subAccounts)
	for i := uint64(0); i < subAccounts; i++ {
		account, err := mathutil.Uint64ToUint32(i + 1)
		if err != nil {
			return nil, err
		}
		subKeys[i] = DeriveKey(seed, account)
	}

	return &Wallet{
		masterKey:   masterKey,
		subKeys:     subKeys,
		useMnemonic: true,
	}, nil
}

// DeriveKey returns the key at m/44'/501'/account'/0' of a BIP39 seed.
func DeriveKey(seed []byte, account uint32) solana.PrivateKey {
	k := deriveSLIP10(seed, []uint32{44, 501, account, 0})
	return solana.PrivateKey(ed25519.NewKeyFromSeed(k))
}

func keyFromBytes(raw []byte) (solana.PrivateKey, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	expected := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !expected.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
		return nil, errors.New("public half does not match secret")
	}
	return solana.PrivateKey(raw), nil
}

// MasterKey returns the master private key
func (w *Wallet) MasterKey() solana.PrivateKey {
	return w.masterKey
}

// MasterAddress returns the master account address
func (w *Wallet) MasterAddress() solana.PublicKey {
	return w.masterKey.PublicKey()
}

// FromMnemonic reports whether keys were derived from a mnemonic.
func (w *Wallet) FromMnemonic() bool {
	return w.useMnemonic
}

// SubKeys returns all sub-account private keys
func (w *Wallet) SubKeys() []solana.PrivateKey {
	return w.subKeys
}

// AllKeys returns all keys (master + sub-accounts)
func (w *Wallet) AllKeys() []solana.PrivateKey {
	keys := make([]solana.PrivateKey, 1+len(w.subKeys))
	keys[0] = w.masterKey
	copy(keys[1:], w.subKeys)
	return keys
}

// AllAddresses returns all addresses (master + sub-accounts)
func (w *Wallet) AllAddresses() []solana.PublicKey {
	keys := w.AllKeys()
	addresses := make([]solana.PublicKey, len(keys))
	for i, key := range keys {
		addresses[i] = key.PublicKey()
	}
	return addresses
}

// Signer returns the signer for the account at index (0 = master).
func (w *Wallet) Signer(index int) (*KeySigner, error) {
	keys := w.AllKeys()
	if index < 0 || index >= len(keys) {
		return nil, fmt.Errorf("account index %d out of range [0, %d)", index, len(keys))
	}
	return NewKeySigner(keys[index]), nil
}

// Signers returns a signer for every account, master first.
func (w *Wallet) Signers() []*KeySigner {
	keys := w.AllKeys()
	out := make([]*KeySigner, len(keys))
	for i, key := range keys {
		out[i] = NewKeySigner(key)
	}
	return out
}

// LoadSigners returns the signers that carry submissions: the sub-accounts
// when there are any, otherwise the master alone.
func (w *Wallet) LoadSigners() []*KeySigner {
	all := w.Signers()
	if len(all) > 1 {
		return all[1:]
	}
	return all
}
