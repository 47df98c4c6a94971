package core

import (
	"context"
	"time"
)

// TokenStore holds serialized session tokens with a TTL. Backends are interchangeable and
// share one contract:
//   - an entry not deleted explicitly becomes unavailable once its TTL elapses, at the
//     latest on the next read;
//   - operations on the same key are applied in order; different keys are independent.
type TokenStore interface {
	// Store writes value under key for ttl. A non-positive ttl stores an already expired entry.
	Store(ctx context.Context, key string, ttl time.Duration, value []byte) error
	// Get returns nil without error when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the given keys and returns how many existed.
	Delete(ctx context.Context, keys []string) (int, error)
	// Close releases backend resources.
	Close() error
}

// TokenPurger is implemented by token stores that keep expired entries until they are
// read. PurgeExpired drops them all and returns how many were dropped.
type TokenPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// UniqueKeys normalizes a one-or-many key argument: blanks and duplicates are dropped,
// first-seen order is kept.
func UniqueKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
