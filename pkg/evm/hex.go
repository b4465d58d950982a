package evm

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexToBytes decodes a hex string with or without a 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string: %w", err)
	}

	return b, nil
}

// BytesToHex encodes bytes as 0x-prefixed lowercase hex.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
