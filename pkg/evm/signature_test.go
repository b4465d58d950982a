package evm

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTestDigest(t *testing.T) (digest []byte, signature []byte, address string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	auth := testAuthorization()
	auth.From = strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	digest, err = HashTransferWithAuthorization(auth, big.NewInt(84532), "0x036cbd53842c5426634e7929541ec2318f3dcf7e", "USDC", "2")
	require.NoError(t, err)

	signature, err = crypto.Sign(digest, key)
	require.NoError(t, err)

	return digest, signature, auth.From
}

func TestRecoverSigner(t *testing.T) {
	digest, signature, address := signedTestDigest(t)

	recovered, err := RecoverSigner(digest, signature)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)
}

func TestRecoverSignerNormalizesV(t *testing.T) {
	digest, signature, address := signedTestDigest(t)

	// Ethereum wallets emit v as 27/28; recovery must accept both forms.
	shifted := make([]byte, len(signature))
	copy(shifted, signature)
	shifted[64] += 27

	recovered, err := RecoverSigner(digest, shifted)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)
}

func TestRecoverSignerRejectsBadInput(t *testing.T) {
	digest, signature, _ := signedTestDigest(t)

	_, err := RecoverSigner(digest[:31], signature)
	assert.Error(t, err)

	_, err = RecoverSigner(digest, signature[:64])
	assert.Error(t, err)

	badV := make([]byte, len(signature))
	copy(badV, signature)
	badV[64] = 29
	_, err = RecoverSigner(digest, badV)
	assert.Error(t, err)
}

func TestRecoverSignerMutatedDigest(t *testing.T) {
	digest, signature, address := signedTestDigest(t)

	mutated := make([]byte, len(digest))
	copy(mutated, digest)
	mutated[0] ^= 0x01

	recovered, err := RecoverSigner(mutated, signature)
	if err == nil {
		assert.NotEqual(t, address, recovered)
	}
}

func TestVerifySignature(t *testing.T) {
	digest, signature, address := signedTestDigest(t)

	ok, err := VerifySignature(digest, signature, address)
	require.NoError(t, err)
	assert.True(t, ok)

	// Checksum casing must not matter.
	ok, err = VerifySignature(digest, signature, strings.ToUpper(address[:2])+address[2:])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifySignature(digest, signature, "0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.False(t, ok)
}
