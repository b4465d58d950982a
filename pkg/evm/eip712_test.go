package evm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402-foundation/x402-facilitator/pkg/types"
)

func testAuthorization() *types.ExactEvmPayloadAuthorization {
	return &types.ExactEvmPayloadAuthorization{
		From:        "0x857b06519e91e3a54538791bdbb0e22373e36b66",
		To:          "0x209693bc6afc0c5328ba36faf03c514ef312287c",
		Value:       "1000000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000600",
		Nonce:       "0xf3746613c2d920b5fdabc0856f2aeb2d4f88ee6037b8cc5d04a71a4462f13480",
	}
}

func TestHashTransferWithAuthorizationDeterministic(t *testing.T) {
	auth := testAuthorization()

	first, err := HashTransferWithAuthorization(auth, big.NewInt(84532), "0x036cbd53842c5426634e7929541ec2318f3dcf7e", "USDC", "2")
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := HashTransferWithAuthorization(auth, big.NewInt(84532), "0x036cbd53842c5426634e7929541ec2318f3dcf7e", "USDC", "2")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestHashTransferWithAuthorizationCaseIndependent(t *testing.T) {
	lower := testAuthorization()

	checksummed := testAuthorization()
	checksummed.From = "0x857B06519E91e3A54538791bDbb0E22373e36b66"
	checksummed.To = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

	lowerDigest, err := HashTransferWithAuthorization(lower, big.NewInt(84532), "0x036cbd53842c5426634e7929541ec2318f3dcf7e", "USDC", "2")
	require.NoError(t, err)

	checksummedDigest, err := HashTransferWithAuthorization(checksummed, big.NewInt(84532), "0x036cbd53842c5426634e7929541ec2318f3dcf7e", "USDC", "2")
	require.NoError(t, err)

	assert.Equal(t, lowerDigest, checksummedDigest)
}

func TestHashTransferWithAuthorizationFieldSensitivity(t *testing.T) {
	base := testAuthorization()
	baseDigest, err := HashTransferWithAuthorization(base, big.NewInt(84532), "0x036cbd53842c5426634e7929541ec2318f3dcf7e", "USDC", "2")
	require.NoError(t, err)

	mutations := []func(a *types.ExactEvmPayloadAuthorization){
		func(a *types.ExactEvmPayloadAuthorization) { a.Value = "1000001" },
		func(a *types.ExactEvmPayloadAuthorization) { a.ValidBefore = "1700000601" },
		func(a *types.ExactEvmPayloadAuthorization) {
			a.Nonce = "0x0000000000000000000000000000000000000000000000000000000000000001"
		},
		func(a *types.ExactEvmPayloadAuthorization) { a.To = "0x0000000000000000000000000000000000000001" },
	}

	for i, mutate := range mutations {
		auth := testAuthorization()
		mutate(auth)

		digest, err := HashTransferWithAuthorization(auth, big.NewInt(84532), "0x036cbd53842c5426634e7929541ec2318f3dcf7e", "USDC", "2")
		require.NoError(t, err)
		assert.NotEqual(t, baseDigest, digest, "mutation %d should change the digest", i)
	}

	// Different domain, same message.
	digest, err := HashTransferWithAuthorization(base, big.NewInt(8453), "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", "USD Coin", "2")
	require.NoError(t, err)
	assert.NotEqual(t, baseDigest, digest)
}

func TestHashTransferWithAuthorizationRejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *types.ExactEvmPayloadAuthorization)
	}{
		{"non-numeric value", func(a *types.ExactEvmPayloadAuthorization) { a.Value = "a lot" }},
		{"non-numeric validAfter", func(a *types.ExactEvmPayloadAuthorization) { a.ValidAfter = "" }},
		{"non-numeric validBefore", func(a *types.ExactEvmPayloadAuthorization) { a.ValidBefore = "soon" }},
		{"short nonce", func(a *types.ExactEvmPayloadAuthorization) { a.Nonce = "0xf374" }},
		{"bad nonce hex", func(a *types.ExactEvmPayloadAuthorization) {
			a.Nonce = "0xzz746613c2d920b5fdabc0856f2aeb2d4f88ee6037b8cc5d04a71a4462f13480"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := testAuthorization()
			tt.mutate(auth)

			_, err := HashTransferWithAuthorization(auth, big.NewInt(84532), "0x036cbd53842c5426634e7929541ec2318f3dcf7e", "USDC", "2")
			assert.Error(t, err)
		})
	}
}

func TestHexToBytes(t *testing.T) {
	b, err := HexToBytes("0x1234")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, b)

	b, err = HexToBytes("abcd")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, b)

	_, err = HexToBytes("0x123")
	assert.Error(t, err)

	_, err = HexToBytes("0xzz")
	assert.Error(t, err)

	assert.Equal(t, "0x1234", BytesToHex([]byte{0x12, 0x34}))
}
