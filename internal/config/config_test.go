package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BIND_ADDRESS", "STORAGE_BACKEND", "KV_URL", "KV_KEY_PREFIX",
		"EVM_PRIVATE_KEY", "EVM_RPC_URL", "EVM_NETWORK",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultBindAddress, cfg.BindAddress)
	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, DefaultKVURL, cfg.KVURL)
	assert.Equal(t, DefaultKVKeyPrefix, cfg.KVKeyPrefix)
	assert.Empty(t, cfg.EVMPrivateKey)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BIND_ADDRESS", "127.0.0.1:8080")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("KV_URL", "redis://redis.internal:6379/2")
	t.Setenv("KV_KEY_PREFIX", "facilitator:nonce:")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.BindAddress)
	assert.Equal(t, StorageRedis, cfg.StorageBackend)
	assert.Equal(t, "redis://redis.internal:6379/2", cfg.KVURL)
	assert.Equal(t, "facilitator:nonce:", cfg.KVKeyPrefix)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_BACKEND")
}

func TestLoadEVMRequiresRPCAndNetwork(t *testing.T) {
	clearEnv(t)
	t.Setenv("EVM_PRIVATE_KEY", "0xabc")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVM_RPC_URL")

	t.Setenv("EVM_RPC_URL", "https://sepolia.base.org")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVM_NETWORK")

	t.Setenv("EVM_NETWORK", "base-sepolia")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "base-sepolia", cfg.EVMNetwork)
}
