package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the byte length of an r||s||v secp256k1 signature.
const SignatureLength = 65

// RecoverSigner recovers the Ethereum address that produced the signature
// over the given 32-byte digest.
//
// The signature is 65 bytes (r: 32, s: 32, v: 1) with v in {0, 1, 27, 28};
// 27/28 are normalised down before recovery. The returned address is
// lowercase 0x-prefixed hex: the low 20 bytes of keccak256 over the
// uncompressed public key without its 0x04 prefix.
func RecoverSigner(digest []byte, signature []byte) (string, error) {
	if len(digest) != 32 {
		return "", fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	if len(signature) != SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(signature))
	}

	v := signature[64]
	if v == 27 || v == 28 {
		v -= 27
	}
	if v > 1 {
		return "", fmt.Errorf("invalid recovery id: %d", signature[64])
	}

	sigCopy := make([]byte, SignatureLength)
	copy(sigCopy, signature)
	sigCopy[64] = v

	pubKey, err := crypto.SigToPub(digest, sigCopy)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex()), nil
}

// VerifySignature reports whether the signature over digest was produced
// by the expected address. Addresses are compared lowercase.
func VerifySignature(digest []byte, signature []byte, expectedAddress string) (bool, error) {
	recovered, err := RecoverSigner(digest, signature)
	if err != nil {
		return false, err
	}

	return recovered == strings.ToLower(expectedAddress), nil
}
