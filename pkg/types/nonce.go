package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NonceHexLength is the length of a nonce in hex characters, excluding
// the 0x prefix. Nonces are exactly 32 bytes.
const NonceHexLength = 64

// GenerateNonce returns a fresh random 32-byte nonce as 0x-prefixed hex.
// Clients pick one nonce per authorization; the facilitator only ever
// consumes them.
func GenerateNonce() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return "0x" + hex.EncodeToString(buf[:]), nil
}

// ValidNonce reports whether the string is a well-formed 32-byte
// 0x-prefixed hex nonce.
func ValidNonce(nonce string) bool {
	if len(nonce) != 2+NonceHexLength || nonce[0] != '0' || (nonce[1] != 'x' && nonce[1] != 'X') {
		return false
	}

	_, err := hex.DecodeString(nonce[2:])
	return err == nil
}
