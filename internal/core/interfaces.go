package core

import (
	"context"

	"github.com/target/docauth/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and the document store.
// Service implementations should depend on these interfaces, not concrete implementations.
//
// Lookups that find nothing return an errors.NotFound AppError. Writes carrying a stale
// revision return an errors.Conflict AppError.

// UserRepository is the user record store. Secondary lookups are exact-match on derived keys.
type UserRepository interface {
	Get(ctx context.Context, id string) (*model.User, error)
	// Create inserts a new record and sets its revision. It fails with Conflict if the id is taken.
	Create(ctx context.Context, u *model.User) error
	// Put replaces the record if u.Rev is current and advances u.Rev.
	Put(ctx context.Context, u *model.User) error
	// BulkPut writes every record independently. The returned slice is aligned with users;
	// a nil entry means that record was written. The error is reserved for transport failures.
	BulkPut(ctx context.Context, users []*model.User) ([]error, error)
	// Delete removes the record if u.Rev is current.
	Delete(ctx context.Context, u *model.User) error

	FindByUsername(ctx context.Context, username string) (*model.User, error)
	// FindByEmail matches the confirmed address or a pending unverified address.
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByEmailUsername matches accounts keyed by email address.
	FindByEmailUsername(ctx context.Context, email string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, profileID string) (*model.User, error)
	FindBySessionKey(ctx context.Context, key string) (*model.User, error)
	FindByPasswordResetToken(ctx context.Context, tokenHash string) (*model.User, error)
	FindByVerifyEmailToken(ctx context.Context, token string) (*model.User, error)

	// ListIDsWithPrefix returns ids beginning with prefix, used for username generation.
	ListIDsWithPrefix(ctx context.Context, prefix string) ([]string, error)
	// ExpiredSessions returns a point-in-time snapshot of sessions whose expiry is before
	// the cutoff (Unix ms), together with their owners.
	ExpiredSessions(ctx context.Context, before int64) ([]ExpiredSession, error)
	// ExpiredPasswordResets returns users whose pending reset expired before the cutoff.
	ExpiredPasswordResets(ctx context.Context, before int64) ([]*model.User, error)

	// WatchDeleted streams records as they were just before a hard delete. The channel
	// closes when ctx is done or the feed fails.
	WatchDeleted(ctx context.Context) (<-chan *model.User, error)
}

// ExpiredSession is one row of the expired-session index.
type ExpiredSession struct {
	UserID string
	Key    string
	User   *model.User
}

// CredentialRepository is the credentials database the self-managed key adapter mirrors
// session keys into.
type CredentialRepository interface {
	Get(ctx context.Context, id string) (*model.Credential, error)
	// Put creates the record when Rev is zero, otherwise replaces it if Rev is current.
	Put(ctx context.Context, c *model.Credential) error
	// DeleteMany removes the given ids, ignoring ones that do not exist, and returns the
	// number removed.
	DeleteMany(ctx context.Context, ids []string) (int, error)
	// ListExpired returns records whose expiry is before the cutoff (Unix ms).
	ListExpired(ctx context.Context, before int64) ([]*model.Credential, error)
}

// DatabaseAdmin provisions and tears down personal databases.
type DatabaseAdmin interface {
	// CreateDatabase returns false without error when the database already exists.
	CreateDatabase(ctx context.Context, name string) (bool, error)
	DestroyDatabase(ctx context.Context, name string) error
	// Open returns a handle to an existing database. Callers must Close it.
	Open(ctx context.Context, name string) (Database, error)
}

// Database is a handle to one provisioned database's access-control and schema surface.
type Database interface {
	Name() string
	GetSecurity(ctx context.Context) (*model.SecurityDoc, error)
	PutSecurity(ctx context.Context, sec *model.SecurityDoc) error
	// PutDesignDoc writes the document if it is missing or differs from the stored copy.
	PutDesignDoc(ctx context.Context, doc model.DesignDoc) error
	Close() error
}
