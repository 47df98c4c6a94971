// Package ports defines interfaces (hexagonal ports) for session and credential behavior.
// Implementations live in internal/adapters and internal/service/dbauth; orchestration in
// internal/service.
package ports

import (
	"context"

	"github.com/target/docauth/internal/core"
	domainauth "github.com/target/docauth/internal/domain/auth"
)

// KeyGrant describes a freshly minted session key for StoreKey.
type KeyGrant struct {
	UserID    string
	Key       string
	Password  string
	Expires   int64
	Refreshed int64
	Roles     []string
}

// KeyUpdate carries the fields UpdateKey should merge. Zero timestamps and a nil Roles
// slice leave the stored value untouched.
type KeyUpdate struct {
	Expires   int64
	Refreshed int64
	Roles     []string
}

// Empty reports whether the update changes nothing.
func (u KeyUpdate) Empty() bool {
	return u.Expires == 0 && u.Refreshed == 0 && u.Roles == nil
}

// Authorization grants session keys access to one database.
type Authorization struct {
	UserID      string
	Keys        []string
	Permissions []string
	Roles       []string
}

// SecurityKeyAdapter mirrors session keys into the database's native access control.
type SecurityKeyAdapter interface {
	StoreKey(ctx context.Context, grant KeyGrant) error
	// UpdateKey merges changed fields into the key record. A key that no longer exists is
	// not an error.
	UpdateKey(ctx context.Context, key string, upd KeyUpdate) error
	RemoveKeys(ctx context.Context, keys []string) error
	InitSecurity(ctx context.Context, db core.Database, adminRoles, memberRoles []string) error
	// AuthorizeKeys and DeauthorizeKeys are idempotent set operations on the database's
	// access-control document.
	AuthorizeKeys(ctx context.Context, db core.Database, authz Authorization) error
	DeauthorizeKeys(ctx context.Context, db core.Database, keys []string) error
	// RemoveExpiredKeys deletes key records whose expiry is before the cutoff (Unix ms)
	// and returns the removed keys.
	RemoveExpiredKeys(ctx context.Context, before int64) ([]string, error)
}

// KeyIssuer mints a key/password pair for a new session.
type KeyIssuer interface {
	IssueKey(ctx context.Context) (key, password string, err error)
}

// Mailer sends templated mail. Delivery is outside this module.
type Mailer interface {
	SendEmail(ctx context.Context, template, to string, vars map[string]any) error
}

// Event names published by the session engine and user service.
const (
	EventSignup          = "signup"
	EventLogin           = "login"
	EventRefresh         = "refresh"
	EventLogout          = "logout"
	EventLogoutAll       = "logout-all"
	EventPasswordReset   = "password-reset"
	EventPasswordChange  = "password-change"
	EventForgotPassword  = "forgot-password"
	EventEmailVerified   = "email-verified"
	EventEmailChanged    = "email-changed"
	EventUserDBAdded     = "user-db-added"
	EventUserDBRemoved   = "user-db-removed"
	EventAccountLinked   = "link"
	EventAccountUnlinked = "unlink"
)

// Event is a lifecycle notification.
type Event struct {
	Name     string
	UserID   string
	Provider string
	DBName   string
	Session  *domainauth.Descriptor
}

// EventPublisher receives lifecycle notifications. Publishing must not block the caller
// for long and never fails the originating operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}

// BeginInput carries inputs for initiating a federated login.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// FederatedLogin is the outcome of a federated authentication.
type FederatedLogin struct {
	Provider    string
	Credentials domainauth.Credentials
	Profile     domainauth.Identity
}

// IdentityProvider initiates and completes a redirect-based login against an IdP.
type IdentityProvider interface {
	Name() string
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)
	// Exchange completes the login flow, verifying state and nonce.
	Exchange(ctx context.Context, in ExchangeInput) (FederatedLogin, error)
}

// AccessTokenVerifier authenticates a bearer access token issued directly by a provider.
type AccessTokenVerifier interface {
	Name() string
	VerifyAccessToken(ctx context.Context, accessToken string) (FederatedLogin, error)
}
