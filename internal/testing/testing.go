// Package testing provides test utilities and helpers for txsubmit tests.
package testing

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

// TestMnemonic is a well-known test mnemonic (DO NOT use in production)
const TestMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// TestProgramID is the tradelink program address used across tests.
const TestProgramID = "S4Zy9tboDLQ8Qj8UxhcSFc9z4K4GrYzUyDVenbKyr3Z"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// GenerateTestKey generates a random private key for testing
func GenerateTestKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	return key
}

// GenerateTestKeys generates multiple random private keys for testing
func GenerateTestKeys(t *testing.T, count int) []solana.PrivateKey {
	t.Helper()
	keys := make([]solana.PrivateKey, count)
	for i := range count {
		keys[i] = GenerateTestKey(t)
	}
	return keys
}

// RandomPublicKey generates a random public key for testing
func RandomPublicKey(t *testing.T) solana.PublicKey {
	t.Helper()
	return GenerateTestKey(t).PublicKey()
}

// MustPublicKey parses a base58 public key or fails the test
func MustPublicKey(t *testing.T, s string) solana.PublicKey {
	t.Helper()
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		t.Fatalf("failed to parse public key %q: %v", s, err)
	}
	return pk
}

// SOL converts whole SOL to lamports
func SOL(n uint64) uint64 {
	return n * LamportsPerSOL
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNotEqual fails the test if got == want
func AssertNotEqual[T comparable](t *testing.T, got, notWant T) {
	t.Helper()
	if got == notWant {
		t.Errorf("got %v, should not equal %v", got, notWant)
	}
}

// AssertTrue fails the test if condition is false
func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", msg)
	}
}

// AssertLen fails the test if the slice length doesn't match
func AssertLen[T any](t *testing.T, slice []T, expectedLen int) {
	t.Helper()
	if len(slice) != expectedLen {
		t.Errorf("expected length %d, got %d", expectedLen, len(slice))
	}
}
