// Package redis provides the Redis-backed TokenStore.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/docauth/internal/core"
)

// TokenStore keeps session tokens in Redis, relying on key expiry for TTL semantics.
// Single-key commands are atomic in Redis, so operations on one key are already ordered.
type TokenStore struct {
	client redis.UniversalClient
}

var _ core.TokenStore = (*TokenStore)(nil)

// NewTokenStore wraps an existing client. The client stays owned by the caller.
func NewTokenStore(client redis.UniversalClient) *TokenStore {
	return &TokenStore{client: client}
}

// Store writes value under key with the given TTL. Redis rejects a non-positive
// expiry, so an already expired entry is removed instead.
func (s *TokenStore) Store(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	}
	// PX keeps millisecond precision for short-lived tokens.
	if err := s.client.SetArgs(ctx, key, value, redis.SetArgs{TTL: ttl}).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns nil without error when the key does not exist.
func (s *TokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Delete removes keys and returns how many existed. Keys are deleted one command each so
// the call also works against a cluster where keys hash to different slots.
func (s *TokenStore) Delete(ctx context.Context, keys []string) (int, error) {
	keys = core.UniqueKeys(keys)
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Del(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}

	total := 0
	for _, c := range cmds {
		total += int(c.Val())
	}
	return total, nil
}

// Close is a no-op; the infrastructure owner closes the client.
func (s *TokenStore) Close() error {
	return nil
}
