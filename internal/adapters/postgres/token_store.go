// Package postgres provides the PostgreSQL-backed TokenStore.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
	apperrors "github.com/target/docauth/internal/errors"
)

// TokenStore keeps session tokens in the session_tokens table. Expired rows are filtered
// on read, removed on access, and purged in bulk by Purge.
type TokenStore struct {
	db    *sql.DB
	clock data.TimeProvider
}

var (
	_ core.TokenStore  = (*TokenStore)(nil)
	_ core.TokenPurger = (*TokenStore)(nil)
)

// TokenStoreOptions configures a TokenStore.
type TokenStoreOptions struct {
	DB           *sql.DB           // Required: pgx-backed database handle
	TimeProvider data.TimeProvider // Optional: defaults to the system clock
}

// NewTokenStore constructs a TokenStore. The schema is created by the migrate package.
func NewTokenStore(opts TokenStoreOptions) (*TokenStore, error) {
	if opts.DB == nil {
		return nil, errors.New("postgres token store requires a database handle")
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	return &TokenStore{db: opts.DB, clock: clock}, nil
}

// Store upserts value under key. A single statement keeps same-key writes atomic.
func (s *TokenStore) Store(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	now := s.clock.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_tokens (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`,
		key, value, now.Add(ttl), now,
	)
	if err != nil {
		return fmt.Errorf("store token: %w", apperrors.MapDBError(err))
	}
	return nil
}

// Get returns nil without error when the key is absent or expired.
func (s *TokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM session_tokens WHERE key = $1`, key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get token: %w", apperrors.MapDBError(err))
	}

	now := s.clock.Now()
	if expiresAt.After(now) {
		return value, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE key = $1 AND expires_at <= $2`, key, now.UTC(),
	); err != nil {
		return nil, fmt.Errorf("remove expired token: %w", apperrors.MapDBError(err))
	}
	return nil, nil
}

// Delete removes keys and returns how many live rows were removed.
func (s *TokenStore) Delete(ctx context.Context, keys []string) (int, error) {
	keys = core.UniqueKeys(keys)
	if len(keys) == 0 {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`DELETE FROM session_tokens WHERE key = ANY($1) RETURNING expires_at`, keys,
	)
	if err != nil {
		return 0, fmt.Errorf("delete tokens: %w", apperrors.MapDBError(err))
	}
	defer rows.Close()

	now := s.clock.Now()
	n := 0
	for rows.Next() {
		var expiresAt time.Time
		if scanErr := rows.Scan(&expiresAt); scanErr != nil {
			return n, fmt.Errorf("scan deleted token: %w", scanErr)
		}
		if expiresAt.After(now) {
			n++
		}
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("delete tokens: %w", apperrors.MapDBError(err))
	}
	return n, nil
}

// PurgeExpired deletes every expired row and returns how many were removed.
func (s *TokenStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE expires_at <= $1`, s.clock.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the database handle is owned by the caller.
func (s *TokenStore) Close() error {
	return nil
}
