package wallet

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
)

const hardenedOffset = 0x80000000

// deriveSLIP10 walks a fully hardened ed25519 path and returns the 32-byte
// private seed at its end.
func deriveSLIP10(seed []byte, path []uint32) []byte {
	key, chain := slip10Master(seed)
	for _, index := range path {
		key, chain = slip10Child(key, chain, index)
	}
	return key
}

func slip10Master(seed []byte) (key, chain []byte) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

func slip10Child(key, chain []byte, index uint32) ([]byte, []byte) {
	data := make([]byte, 0, 37)
	data = append(data, 0)
	data = append(data, key...)
	data = binary.BigEndian.AppendUint32(data, index|hardenedOffset)

	mac := hmac.New(sha512.New, chain)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}
