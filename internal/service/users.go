package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
	"github.com/target/docauth/internal/data/cryptoutil"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
	"github.com/target/docauth/internal/service/dbauth"
)

// SessionRevoker is the part of the session engine account changes rely on.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, u *model.User) error
	LogoutOthers(ctx context.Context, key string) (bool, error)
}

// PersonalDatabases is the part of the database coordinator account changes rely on.
type PersonalDatabases interface {
	DatabaseConfig(name string, t model.DBType) model.DBConfig
	ProvisionUserDatabase(ctx context.Context, u *model.User, req dbauth.ProvisionRequest) (string, error)
	RemoveDatabase(ctx context.Context, name string) error
	DeauthorizeUser(ctx context.Context, u *model.User, keys []string) error
}

var (
	_ SessionRevoker    = (*SessionService)(nil)
	_ PersonalDatabases = (*dbauth.Coordinator)(nil)
)

// UserHook runs against a record before it is saved. OnCreate hooks see new accounts,
// OnLink hooks see existing accounts a provider was linked to or logged in through.
type UserHook func(ctx context.Context, u *model.User, provider string) error

// UserServiceOptions groups dependencies for UserService.
type UserServiceOptions struct {
	Users        core.UserRepository        // Required: user records
	Sessions     SessionRevoker             // Required: session revocation
	Databases    PersonalDatabases          // Required: personal database provisioning
	Mailer       ports.Mailer               // Required: confirmation and reset mail
	Events       ports.EventPublisher       // Optional: lifecycle notifications
	Hasher       *cryptoutil.PasswordHasher // Optional: defaults to Security.PasswordIterations
	Sealer       cryptoutil.Sealer          // Optional: encrypts provider tokens at rest
	Security     config.SecurityConfig      // Token life, default roles, activity log
	Local        config.LocalConfig         // Registration rules
	UserDBs      config.UserDBsConfig       // Default personal databases
	Providers    config.ProvidersConfig     // Federated provider options
	TimeProvider data.TimeProvider          // Optional: defaults to real time
	Logger       *slog.Logger               // Optional: structured logger
}

// UserService manages accounts: registration, federated identities, password and email
// lifecycles, and personal databases.
type UserService struct {
	users     core.UserRepository
	sessions  SessionRevoker
	databases PersonalDatabases
	mailer    ports.Mailer
	events    ports.EventPublisher
	hasher    *cryptoutil.PasswordHasher
	sealer    cryptoutil.Sealer
	security  config.SecurityConfig
	local     config.LocalConfig
	userDBs   config.UserDBsConfig
	providers config.ProvidersConfig
	clock     data.TimeProvider
	logger    *slog.Logger

	hooksMu     sync.RWMutex
	onCreateFns []UserHook
	onLinkFns   []UserHook
}

// NewUserService constructs a new UserService.
func NewUserService(opts UserServiceOptions) (*UserService, error) {
	if opts.Users == nil {
		return nil, errors.New("UserRepository is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionRevoker is required")
	}
	if opts.Databases == nil {
		return nil, errors.New("PersonalDatabases is required")
	}
	if opts.Mailer == nil {
		return nil, errors.New("Mailer is required")
	}
	security := opts.Security
	security.Sanitize()
	local := opts.Local
	local.Sanitize()
	userDBs := opts.UserDBs
	userDBs.Sanitize()

	s := &UserService{
		users:     opts.Users,
		sessions:  opts.Sessions,
		databases: opts.Databases,
		mailer:    opts.Mailer,
		events:    opts.Events,
		hasher:    opts.Hasher,
		sealer:    opts.Sealer,
		security:  security,
		local:     local,
		userDBs:   userDBs,
		providers: opts.Providers,
		clock:     opts.TimeProvider,
		logger:    opts.Logger,
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	if s.hasher == nil {
		s.hasher = cryptoutil.NewPasswordHasher(security.PasswordIterations)
	}
	if s.sealer == nil {
		s.sealer = cryptoutil.PlainSealer{}
	}
	if s.clock == nil {
		s.clock = data.RealTimeProvider{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "user_service")
	return s, nil
}

// OnCreate registers a hook run on every new account before it is first saved.
func (s *UserService) OnCreate(fn UserHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onCreateFns = append(s.onCreateFns, fn)
}

// OnLink registers a hook run when a provider is linked to an existing account.
func (s *UserService) OnLink(fn UserHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onLinkFns = append(s.onLinkFns, fn)
}

func (s *UserService) runHooks(ctx context.Context, create bool, u *model.User, provider string) error {
	s.hooksMu.RLock()
	fns := s.onLinkFns
	if create {
		fns = s.onCreateFns
	}
	fns = append([]UserHook(nil), fns...)
	s.hooksMu.RUnlock()

	for _, fn := range fns {
		if err := fn(ctx, u, provider); err != nil {
			return err
		}
	}
	return nil
}

func (s *UserService) now() int64 {
	return data.NowMillis(s.clock)
}

// Get finds an account by username or email. Email-keyed deployments and email-like
// logins look the account up by id.
func (s *UserService) Get(ctx context.Context, login string) (*model.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if s.local.EmailUsername || emailPattern.MatchString(login) {
		return s.users.FindByEmailUsername(ctx, login)
	}
	return s.users.FindByUsername(ctx, login)
}

// GetByID returns the account with the given id.
func (s *UserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.users.Get(ctx, id)
}

// RegistrationForm is the input for a local signup.
type RegistrationForm struct {
	Name            string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	// Profile carries additional application fields stored on the record as-is.
	Profile map[string]any
}

// Create registers a local account. With confirmation mail enabled the address stays
// unverified until VerifyEmail is called with the mailed token.
func (s *UserService) Create(ctx context.Context, form RegistrationForm, rc domainauth.RequestContext) (*model.User, error) {
	if err := s.validateRegistration(ctx, &form); err != nil {
		return nil, err
	}

	id := form.Username
	if s.local.EmailUsername {
		id = form.Email
	}
	u := &model.User{
		ID:        id,
		Type:      model.UserDocType,
		Name:      form.Name,
		Email:     form.Email,
		Roles:     model.UnionRoles(s.security.DefaultRoles, s.local.DefaultRoles),
		Providers: []string{domainauth.ProviderLocal},
		Profile:   form.Profile,
	}
	if s.local.SendConfirmEmail {
		token, err := cryptoutil.OneTimePassword(s.local.TokenLength)
		if err != nil {
			return nil, fmt.Errorf("generate confirmation token: %w", err)
		}
		u.UnverifiedEmail = &model.UnverifiedEmail{Email: form.Email, Token: token}
		u.Email = ""
	}
	if err := s.setPassword(u, form.Password); err != nil {
		return nil, err
	}
	u.SignUp = &model.SignUp{Provider: domainauth.ProviderLocal, Timestamp: s.clock.Now().UTC(), IP: rc.IP}

	if err := s.addDefaultDBs(ctx, u); err != nil {
		return nil, err
	}
	s.logActivity(u, "signup", domainauth.ProviderLocal, rc)
	if err := s.runHooks(ctx, true, u, domainauth.ProviderLocal); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		if apperrors.IsConflict(err) {
			field := "username"
			if s.local.EmailUsername {
				field = "email"
			}
			return nil, apperrors.ConflictField(field, capitalize(field)+" already in use")
		}
		return nil, fmt.Errorf("create user %s: %w", u.ID, err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID, "provider", domainauth.ProviderLocal)

	if u.UnverifiedEmail != nil {
		vars := map[string]any{"user": u, "token": u.UnverifiedEmail.Token, "lang": mailLang(rc)}
		if err := s.mailer.SendEmail(ctx, "confirmEmail", u.UnverifiedEmail.Email, vars); err != nil {
			return nil, apperrors.Upstream(err, "cannot send confirmation email")
		}
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventSignup, UserID: u.ID, Provider: domainauth.ProviderLocal})
	return u, nil
}

// setPassword hashes password onto u's local credential and links the local provider.
func (s *UserService) setPassword(u *model.User, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if u.Local == nil {
		u.Local = &model.LocalAuth{}
	}
	u.Local.Salt = hash.Salt
	u.Local.DerivedKey = hash.DerivedKey
	u.Local.Iterations = hash.Iterations
	u.AddProvider(domainauth.ProviderLocal)
	return nil
}

// logActivity prepends an entry to u's activity log without saving u.
func (s *UserService) logActivity(u *model.User, action, provider string, rc domainauth.RequestContext) {
	u.LogActivity(model.Activity{
		Timestamp: s.clock.Now().UTC(),
		Action:    action,
		Provider:  provider,
		IP:        rc.IP,
	}, s.security.ActivityLogSize)
}

// save writes u, logging the failure with the record id.
func (s *UserService) save(ctx context.Context, u *model.User, what string) error {
	if err := s.users.Put(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "cannot update user record", "user_id", u.ID, "op", what, "error", err)
		return fmt.Errorf("%s for %s: %w", what, u.ID, err)
	}
	return nil
}

// mailLang picks the template language from the request, defaulting to German.
func mailLang(rc domainauth.RequestContext) string {
	lang, _, _ := strings.Cut(rc.Lang, "_")
	if lang == "" {
		return "de"
	}
	return lang
}
