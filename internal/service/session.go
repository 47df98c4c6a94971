package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
	"github.com/target/docauth/internal/data/cryptoutil"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/observability/metrics"
	"github.com/target/docauth/internal/observability/statsd"
	"github.com/target/docauth/internal/ports"
	"github.com/target/docauth/internal/service/dbauth"
)

// DatabaseAccess is the slice of the database coordinator the session engine drives.
type DatabaseAccess interface {
	StoreKey(ctx context.Context, grant ports.KeyGrant) error
	UpdateKey(ctx context.Context, key string, upd ports.KeyUpdate) error
	RemoveKeys(ctx context.Context, keys []string) error
	AuthorizeUserSessions(ctx context.Context, userID string, dbs map[string]model.PersonalDB, keys, roles []string) error
	DeauthorizeUser(ctx context.Context, u *model.User, keys []string) error
	RemoveExpiredKeys(ctx context.Context) (dbauth.SweepResult, error)
}

var _ DatabaseAccess = (*dbauth.Coordinator)(nil)

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Users        core.UserRepository        // Required: user records
	Tokens       core.TokenStore            // Required: server-side token store
	Access       DatabaseAccess             // Required: key mirror and database authorization
	KeyIssuer    ports.KeyIssuer            // Optional: defaults to RandomKeyIssuer
	Hasher       *cryptoutil.PasswordHasher // Optional: hashes token passwords at rest
	Events       ports.EventPublisher       // Optional: lifecycle notifications
	Security     config.SecurityConfig      // Session lifetimes and lockout
	Local        config.LocalConfig         // Local login rules
	Session      config.SessionConfig       // Token key namespace
	DBServer     config.DBServerConfig      // Client connection URLs
	TimeProvider data.TimeProvider          // Optional: defaults to real time
	Logger       *slog.Logger               // Optional: structured logger
	Metrics      statsd.Sink                // Optional: metrics sink (StatsD-compatible)
}

// SessionService creates, refreshes, confirms and revokes sessions. It keeps the token
// store, the key mirror, the personal databases and the user record's session map in step.
type SessionService struct {
	users     core.UserRepository
	tokens    core.TokenStore
	access    DatabaseAccess
	keyIssuer ports.KeyIssuer
	hasher    *cryptoutil.PasswordHasher
	events    ports.EventPublisher
	security  config.SecurityConfig
	local     config.LocalConfig
	prefix    string
	dbServer  config.DBServerConfig
	clock     data.TimeProvider
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewSessionService constructs a new SessionService.
func NewSessionService(opts SessionServiceOptions) (*SessionService, error) {
	if opts.Users == nil {
		return nil, errors.New("UserRepository is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("TokenStore is required")
	}
	if opts.Access == nil {
		return nil, errors.New("DatabaseAccess is required")
	}
	security := opts.Security
	security.Sanitize()
	local := opts.Local
	local.Sanitize()
	sessionCfg := opts.Session
	sessionCfg.Sanitize()
	dbServer := opts.DBServer
	dbServer.Sanitize()

	s := &SessionService{
		users:     opts.Users,
		tokens:    opts.Tokens,
		access:    opts.Access,
		keyIssuer: opts.KeyIssuer,
		hasher:    opts.Hasher,
		events:    opts.Events,
		security:  security,
		local:     local,
		prefix:    sessionCfg.KeyPrefix,
		dbServer:  dbServer,
		clock:     opts.TimeProvider,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if s.keyIssuer == nil {
		s.keyIssuer = RandomKeyIssuer{}
	}
	if s.hasher == nil {
		s.hasher = cryptoutil.NewPasswordHasher(security.PasswordIterations)
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	if s.clock == nil {
		s.clock = data.RealTimeProvider{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session_service")
	return s, nil
}

// Close releases the token store.
func (s *SessionService) Close() error {
	return s.tokens.Close()
}

func (s *SessionService) now() int64 {
	return data.NowMillis(s.clock)
}

func (s *SessionService) tokenKey(key string) string {
	return s.prefix + key
}

func (s *SessionService) tokenKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.tokenKey(k)
	}
	return out
}

// generateToken mints a token for userID with the configured lifetimes.
func (s *SessionService) generateToken(ctx context.Context, userID string, roles []string) (domainauth.Token, error) {
	key, password, err := s.keyIssuer.IssueKey(ctx)
	if err != nil {
		return domainauth.Token{}, apperrors.Upstream(err, "cannot issue session key")
	}
	now := s.now()
	life := s.security.SessionLife.Milliseconds()
	tok := domainauth.Token{
		UserID:    userID,
		Key:       key,
		Password:  password,
		Issued:    now,
		Refreshed: now,
		Expires:   now + life,
		Roles:     roles,
	}
	if maxLife := s.security.SessionMaxLife.Milliseconds(); maxLife > 0 {
		tok.Ends = now + maxLife
		tok.Expires = min(tok.Expires, tok.Ends)
	}
	return tok, nil
}

// storeToken writes tok to the token store until it expires. A plaintext password is
// replaced by its hash first; the caller's copy is left untouched.
func (s *SessionService) storeToken(ctx context.Context, tok domainauth.Token) error {
	if tok.Password != "" {
		hash, err := s.hasher.Hash(tok.Password)
		if err != nil {
			return fmt.Errorf("hash session password: %w", err)
		}
		tok.Salt = hash.Salt
		tok.DerivedKey = hash.DerivedKey
		tok.Iterations = hash.Iterations
		tok.Password = ""
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	// A token is live while now <= Expires; backends drop entries once now reaches the TTL.
	ttl := time.Duration(tok.Expires-s.now()+1) * time.Millisecond
	if err := s.tokens.Store(ctx, s.tokenKey(tok.Key), ttl, raw); err != nil {
		return apperrors.Upstream(err, "cannot store session token")
	}
	return nil
}

// fetchToken returns the stored token for key, or nil if there is none.
func (s *SessionService) fetchToken(ctx context.Context, key string) (*domainauth.Token, error) {
	raw, err := s.tokens.Get(ctx, s.tokenKey(key))
	if err != nil {
		return nil, apperrors.Upstream(err, "cannot read session token")
	}
	if raw == nil {
		return nil, nil
	}
	var tok domainauth.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

func (s *SessionService) deleteTokens(ctx context.Context, keys []string) error {
	if _, err := s.tokens.Delete(ctx, s.tokenKeys(keys)); err != nil {
		return apperrors.Upstream(err, "cannot delete session tokens")
	}
	return nil
}

// CreateSession logs userID in through provider and returns the new session, including
// its password, which is not retrievable later.
func (s *SessionService) CreateSession(
	ctx context.Context,
	userID, provider string,
	rc domainauth.RequestContext,
) (desc *domainauth.Descriptor, err error) {
	start := s.clock.Now()
	defer func() { s.observe("create", provider, start, err) }()

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	tok, err := s.generateToken(ctx, u.ID, u.AllRoles())
	if err != nil {
		return nil, err
	}
	tok.Provider = provider
	password := tok.Password

	if err := s.storeToken(ctx, tok); err != nil {
		return nil, err
	}
	grant := ports.KeyGrant{
		UserID:    u.ID,
		Key:       tok.Key,
		Password:  password,
		Expires:   tok.Expires,
		Refreshed: tok.Refreshed,
		Roles:     tok.Roles,
	}
	if err := s.access.StoreKey(ctx, grant); err != nil {
		return nil, err
	}
	if len(u.PersonalDBs) > 0 {
		if err := s.access.AuthorizeUserSessions(ctx, u.ID, u.PersonalDBs, []string{tok.Key}, tok.Roles); err != nil {
			return nil, err
		}
	}

	if u.Session == nil {
		u.Session = make(map[string]model.SessionEntry)
	}
	u.Session[tok.Key] = model.SessionEntryFromToken(tok, rc.IP)
	if provider == domainauth.ProviderLocal {
		if u.Local == nil {
			u.Local = &model.LocalAuth{}
		}
		u.Local.FailedLoginAttempts = 0
		u.Local.LockedUntil = 0
	}
	s.logActivity(u, "login", provider, rc)

	if _, err := s.revokeSessions(ctx, u, revokeExpired, ""); err != nil {
		s.logger.WarnContext(ctx, "cannot clean expired sessions on login", "user_id", u.ID, "error", err)
	}

	if err := s.users.Put(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "cannot store new session for user", "user_id", u.ID, "error", err)
		return nil, fmt.Errorf("cannot store new session for user %s: %w", u.ID, err)
	}

	out := tok.Descriptor()
	out.Password = password
	out.IP = rc.IP
	out.Roles = u.AllRoles()
	out.UserDBs = s.userDBURLs(u, tok.Key, password)
	out.Profile = u.Profile
	s.events.Publish(ctx, ports.Event{Name: ports.EventLogin, UserID: u.ID, Provider: provider, Session: &out})
	return &out, nil
}

// userDBURLs maps each personal database's logical name to a URL carrying the session
// credentials.
func (s *SessionService) userDBURLs(u *model.User, key, password string) map[string]string {
	if len(u.PersonalDBs) == 0 {
		return nil
	}
	base := s.dbServer.SessionBaseURL(key, password)
	out := make(map[string]string, len(u.PersonalDBs))
	for physical, db := range u.PersonalDBs {
		out[db.Name] = base + physical
	}
	return out
}

// RefreshSession extends the session's expiry and prunes the owner's expired sessions.
func (s *SessionService) RefreshSession(ctx context.Context, key string) (*domainauth.Descriptor, error) {
	return s.UpdateSession(ctx, key, true, true)
}

// SyncSessionRoles re-derives the session's roles from the user record without touching
// its expiry. It returns nil when the session does not exist.
func (s *SessionService) SyncSessionRoles(ctx context.Context, key string) (*domainauth.Descriptor, error) {
	return s.UpdateSession(ctx, key, false, false)
}

// UpdateSession reconciles a live session with its owner's record. With refresh set the
// expiry moves forward, bounded by the hard ceiling; with cleanup set the owner's expired
// sessions are revoked too. A session missing from the owner's record is written back.
func (s *SessionService) UpdateSession(
	ctx context.Context,
	key string,
	refresh, cleanup bool,
) (desc *domainauth.Descriptor, err error) {
	start := s.clock.Now()
	op := "sync"
	if refresh {
		op = "refresh"
	}
	defer func() { s.observe(op, "", start, err) }()

	tok, err := s.fetchToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		if refresh {
			return nil, apperrors.SessionInvalid(fmt.Sprintf("no session for key %q", key))
		}
		return nil, nil
	}
	now := s.now()
	if tok.Expired(now) {
		if err := s.deleteTokens(ctx, []string{key}); err != nil {
			return nil, err
		}
		return nil, apperrors.SessionInvalid(fmt.Sprintf("session for key %q already expired", key))
	}

	changed, refreshed := false, false
	if refresh {
		expires := now + s.security.SessionLife.Milliseconds()
		if tok.Ends > 0 {
			expires = min(tok.Ends, expires)
		}
		if tok.Ends == 0 || expires != tok.Expires {
			tok.Expires = expires
			tok.Refreshed = now
			changed, refreshed = true, true
		}
	}

	u, err := s.users.Get(ctx, tok.UserID)
	if err != nil {
		return nil, err
	}
	if _, ok := u.Session[key]; !ok {
		s.logger.WarnContext(ctx, "session found in token store but not in user record, repairing",
			"user_id", u.ID)
		if u.Session == nil {
			u.Session = make(map[string]model.SessionEntry)
		}
		u.Session[key] = model.SessionEntryFromToken(*tok, "")
		if err := s.users.Put(ctx, u); err != nil {
			return nil, fmt.Errorf("repair session on user %s: %w", u.ID, err)
		}
	}

	roles := u.AllRoles()
	rolesChanged := !model.RolesEqual(tok.Roles, roles)
	if rolesChanged {
		tok.Roles = roles
		changed = true
	}
	if changed {
		if err := s.storeToken(ctx, *tok); err != nil {
			return nil, err
		}
	}

	if refreshed {
		entry := u.Session[key]
		entry.Expires = tok.Expires
		entry.Refreshed = tok.Refreshed
		u.Session[key] = entry
	}
	if cleanup {
		if err := s.cleanupSessions(ctx, u, refresh); err != nil {
			return nil, err
		}
	}
	if refreshed {
		upd := ports.KeyUpdate{Expires: tok.Expires, Refreshed: tok.Refreshed, Roles: tok.Roles}
		if err := s.access.UpdateKey(ctx, key, upd); err != nil {
			return nil, err
		}
	}
	if rolesChanged && len(u.PersonalDBs) > 0 {
		if err := s.access.AuthorizeUserSessions(ctx, u.ID, u.PersonalDBs, []string{key}, tok.Roles); err != nil {
			return nil, err
		}
	}

	out := tok.Descriptor()
	if changed {
		s.events.Publish(ctx, ports.Event{Name: ports.EventRefresh, UserID: u.ID, Provider: tok.Provider, Session: &out})
	}
	return &out, nil
}

// cleanupSessions revokes u's expired sessions and saves u when the session set changed
// or force is set.
func (s *SessionService) cleanupSessions(ctx context.Context, u *model.User, force bool) error {
	removed, err := s.revokeSessions(ctx, u, revokeExpired, "")
	if err != nil {
		return err
	}
	if !force && len(removed) == 0 {
		return nil
	}
	if err := s.users.Put(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "cannot update user record", "user_id", u.ID, "error", err)
		return fmt.Errorf("cannot update user record %s: %w", u.ID, err)
	}
	return nil
}

// ConfirmSession checks a bearer key/password pair against the token store and returns
// the session it names.
func (s *SessionService) ConfirmSession(ctx context.Context, key, password string) (*domainauth.Descriptor, error) {
	tok, err := s.fetchToken(ctx, key)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, apperrors.SessionInvalid("invalid token")
	}
	if tok.Expired(s.now()) {
		if err := s.deleteTokens(ctx, []string{key}); err != nil {
			return nil, err
		}
		return nil, apperrors.SessionInvalid("invalid token")
	}
	hash := cryptoutil.PasswordHash{Salt: tok.Salt, DerivedKey: tok.DerivedKey, Iterations: tok.Iterations}
	if err := s.hasher.Verify(hash, password); err != nil {
		return nil, apperrors.SessionInvalid("invalid token")
	}
	out := tok.Descriptor()
	return &out, nil
}

// RemoveExpiredKeys runs the global expired-session sweep.
func (s *SessionService) RemoveExpiredKeys(ctx context.Context) (dbauth.SweepResult, error) {
	return s.access.RemoveExpiredKeys(ctx)
}

// logActivity prepends an entry to u's activity log without saving u.
func (s *SessionService) logActivity(u *model.User, action, provider string, rc domainauth.RequestContext) {
	u.LogActivity(model.Activity{
		Timestamp: s.clock.Now().UTC(),
		Action:    action,
		Provider:  provider,
		IP:        rc.IP,
	}, s.security.ActivityLogSize)
}

func (s *SessionService) observe(op, provider string, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitSessionOp(s.metrics, metrics.SessionMetric{
		Operation: op,
		Provider:  provider,
		Result:    result,
		Duration:  s.clock.Now().Sub(start),
		Err:       err,
	})
}
