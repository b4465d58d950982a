// Package config loads facilitator settings from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Storage backend names.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Defaults applied when the environment leaves a setting unset.
const (
	DefaultBindAddress = "0.0.0.0:3000"
	DefaultKVURL       = "redis://localhost:6379"
	DefaultKVKeyPrefix = "x402:nonce:"
)

// Config holds the runtime settings of the standalone facilitator.
type Config struct {
	BindAddress    string
	StorageBackend string
	KVURL          string
	KVKeyPrefix    string

	// EVM settlement is optional. When EVMPrivateKey is empty the
	// facilitator runs with a stub settler.
	EVMPrivateKey string
	EVMRPCURL     string
	EVMNetwork    string
}

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	// Missing .env files are fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := &Config{
		BindAddress:    getEnv("BIND_ADDRESS", DefaultBindAddress),
		StorageBackend: getEnv("STORAGE_BACKEND", StorageMemory),
		KVURL:          getEnv("KV_URL", DefaultKVURL),
		KVKeyPrefix:    getEnv("KV_KEY_PREFIX", DefaultKVKeyPrefix),
		EVMPrivateKey:  os.Getenv("EVM_PRIVATE_KEY"),
		EVMRPCURL:      os.Getenv("EVM_RPC_URL"),
		EVMNetwork:     os.Getenv("EVM_NETWORK"),
	}

	if cfg.StorageBackend != StorageMemory && cfg.StorageBackend != StorageRedis {
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: want %q or %q", cfg.StorageBackend, StorageMemory, StorageRedis)
	}

	if cfg.EVMPrivateKey != "" {
		if cfg.EVMRPCURL == "" {
			return nil, fmt.Errorf("EVM_PRIVATE_KEY is set but EVM_RPC_URL is not")
		}
		if cfg.EVMNetwork == "" {
			return nil, fmt.Errorf("EVM_PRIVATE_KEY is set but EVM_NETWORK is not")
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
