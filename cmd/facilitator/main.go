// Command facilitator runs the standalone x402 facilitator server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/x402-foundation/x402-facilitator/internal/config"
	"github.com/x402-foundation/x402-facilitator/internal/server"
	"github.com/x402-foundation/x402-facilitator/pkg/facilitator"
	"github.com/x402-foundation/x402-facilitator/pkg/noncestore"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	settler, err := buildSettler(cfg)
	if err != nil {
		return err
	}

	engine := facilitator.NewEngine(store, settler)
	srv := &http.Server{
		Addr:    cfg.BindAddress,
		Handler: server.New(engine).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("facilitator listening on %s (storage=%s)", cfg.BindAddress, cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(ctx)
}

func buildStore(cfg *config.Config) (noncestore.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageRedis:
		return noncestore.NewRedisStore(cfg.KVURL, noncestore.WithKeyPrefix(cfg.KVKeyPrefix))
	default:
		return noncestore.NewMemoryStore(), nil
	}
}

func buildSettler(cfg *config.Config) (facilitator.Settler, error) {
	if cfg.EVMPrivateKey == "" {
		log.Printf("no EVM_PRIVATE_KEY configured, settlements are stubbed")
		return facilitator.StubSettler{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	settler, err := facilitator.NewEvmSettler(ctx, cfg.EVMRPCURL, cfg.EVMPrivateKey, cfg.EVMNetwork)
	if err != nil {
		return nil, err
	}

	log.Printf("settling on %s from %s", cfg.EVMNetwork, settler.Address())
	return settler, nil
}
