package noncestore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// markedSentinel is the value stored for a spent nonce.
const markedSentinel = "1"

// RedisStore is a durable nonce store backed by Redis.
//
// Keys are <prefix><nonce> with a 24-hour TTL. The check-and-set is a
// single SET NX EX command, so atomicity holds across any number of
// facilitator processes sharing the backend.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisOption customises a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the default "x402:nonce:" key prefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.keyPrefix = prefix
	}
}

// WithTTL overrides the default 24-hour entry TTL.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore creates a Redis-backed nonce store from a connection URL
// (redis://host:port/db). The connection is established lazily; I/O
// failures surface per command as ErrUnavailable.
func NewRedisStore(url string, opts ...RedisOption) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	store := &RedisStore{
		client:    redis.NewClient(redisOpts),
		keyPrefix: DefaultKeyPrefix,
		ttl:       DefaultTTL,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// NewRedisStoreWithClient wraps an existing client, for tests and callers
// that manage their own connection pool.
func NewRedisStoreWithClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		ttl:       DefaultTTL,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *RedisStore) key(nonce string) string {
	return s.keyPrefix + nonce
}

// MarkIfAbsent issues SET key "1" NX EX <ttl>. The command reports
// whether the key was inserted, which is exactly the CAS answer.
func (s *RedisStore) MarkIfAbsent(ctx context.Context, nonce string) (bool, error) {
	inserted, err := s.client.SetNX(ctx, s.key(nonce), markedSentinel, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: SETNX failed: %v", ErrUnavailable, err)
	}

	return inserted, nil
}

// Has checks key existence with EXISTS.
func (s *RedisStore) Has(ctx context.Context, nonce string) (bool, error) {
	count, err := s.client.Exists(ctx, s.key(nonce)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: EXISTS failed: %v", ErrUnavailable, err)
	}

	return count > 0, nil
}

// Remove deletes the nonce key.
func (s *RedisStore) Remove(ctx context.Context, nonce string) error {
	if err := s.client.Del(ctx, s.key(nonce)).Err(); err != nil {
		return fmt.Errorf("%w: DEL failed: %v", ErrUnavailable, err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
