package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
)

// FederatedAccounts finds, creates and links accounts for federated logins.
type FederatedAccounts interface {
	SocialAuth(ctx context.Context, login ports.FederatedLogin, rc domainauth.RequestContext) (*model.User, error)
	LinkSocial(ctx context.Context, userID string, login ports.FederatedLogin, rc domainauth.RequestContext) (*model.User, error)
}

// SessionIssuer opens sessions for authenticated users.
type SessionIssuer interface {
	CreateSession(ctx context.Context, userID, provider string, rc domainauth.RequestContext) (*domainauth.Descriptor, error)
	Authenticate(ctx context.Context, login, password string, rc domainauth.RequestContext) (*domainauth.Descriptor, error)
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Providers []ports.IdentityProvider
	Verifiers []ports.AccessTokenVerifier
	Accounts  FederatedAccounts
	Sessions  SessionIssuer
	Relay     *LoginRelay
	Logger    *slog.Logger
}

// AuthService orchestrates login flows: local passwords, redirect-based identity
// providers and directly presented provider access tokens.
type AuthService struct {
	providers map[string]ports.IdentityProvider
	verifiers map[string]ports.AccessTokenVerifier
	accounts  FederatedAccounts
	sessions  SessionIssuer
	relay     *LoginRelay
	logger    *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	if opts.Accounts == nil {
		return nil, errors.New("FederatedAccounts is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionIssuer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &AuthService{
		providers: make(map[string]ports.IdentityProvider, len(opts.Providers)),
		verifiers: make(map[string]ports.AccessTokenVerifier, len(opts.Verifiers)),
		accounts:  opts.Accounts,
		sessions:  opts.Sessions,
		relay:     opts.Relay,
		logger:    logger.With("component", "auth"),
	}
	for _, p := range opts.Providers {
		if _, dup := s.providers[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate identity provider %q", p.Name())
		}
		s.providers[p.Name()] = p
	}
	for _, v := range opts.Verifiers {
		if _, dup := s.verifiers[v.Name()]; dup {
			return nil, fmt.Errorf("duplicate access token provider %q", v.Name())
		}
		s.verifiers[v.Name()] = v
	}
	return s, nil
}

// ProviderNames returns the names of the redirect-based providers in sorted order.
func (s *AuthService) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *AuthService) provider(name string) (ports.IdentityProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperrors.NotFoundf("identity provider %q is not configured", name)
	}
	return p, nil
}

// Login authenticates a local username or email and password.
func (s *AuthService) Login(
	ctx context.Context,
	login, password string,
	rc domainauth.RequestContext,
) (*domainauth.Descriptor, error) {
	return s.sessions.Authenticate(ctx, login, password, rc)
}

// BeginLoginInput groups parameters for starting a redirect-based login.
type BeginLoginInput struct {
	Provider    string
	RedirectURL string
	// Relay opens a login relay so a separate client can wait for the outcome.
	Relay bool
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
	RelayID string
}

// BeginLogin initiates an authentication flow and returns the provider auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, in BeginLoginInput) (*BeginLoginResult, error) {
	if in.RedirectURL == "" {
		return nil, apperrors.ValidationField("redirect_url", "redirect URL is required")
	}
	p, err := s.provider(in.Provider)
	if err != nil {
		return nil, err
	}
	if in.Relay && s.relay == nil {
		return nil, apperrors.Validation("login relay is not enabled")
	}

	authURL, state, nonce, err := p.Begin(ctx, ports.BeginInput{RedirectURL: in.RedirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	res := &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}
	if in.Relay {
		res.RelayID = s.relay.Open()
	}
	return res, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Provider string
	Code     string
	State    string
	Nonce    string
	// LinkUserID links the provider profile to this account instead of logging in.
	LinkUserID string
	// RelayID receives the outcome when the flow was started with a relay.
	RelayID string
	Request domainauth.RequestContext
}

// CompleteLoginResult contains the result of completing a login flow. Session is nil
// when the flow linked an account.
type CompleteLoginResult struct {
	User    *model.User
	Session *domainauth.Descriptor
}

// CompleteLogin exchanges the authorization code for a provider identity, finds or
// creates the matching account and opens a session for it.
func (s *AuthService) CompleteLogin(ctx context.Context, in CompleteLoginInput) (res *CompleteLoginResult, err error) {
	if in.RelayID != "" {
		defer func() { s.publishRelay(in.RelayID, res, err) }()
	}

	if in.Code == "" {
		return nil, apperrors.ValidationField("code", "authorization code is required")
	}
	if in.State == "" {
		return nil, apperrors.ValidationField("state", "state parameter is required")
	}
	if in.Nonce == "" {
		return nil, apperrors.ValidationField("nonce", "nonce parameter is required")
	}
	p, err := s.provider(in.Provider)
	if err != nil {
		return nil, err
	}

	login, err := p.Exchange(ctx, ports.ExchangeInput{Code: in.Code, State: in.State, Nonce: in.Nonce})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "exchange authorization code")
	}
	if login.Provider == "" {
		login.Provider = p.Name()
	}
	return s.finishFederated(ctx, login, in.LinkUserID, in.Request)
}

// LoginWithAccessToken authenticates with an access token obtained directly from the
// provider, for clients that run the provider flow themselves.
func (s *AuthService) LoginWithAccessToken(
	ctx context.Context,
	provider, accessToken string,
	rc domainauth.RequestContext,
) (*CompleteLoginResult, error) {
	return s.accessTokenFlow(ctx, provider, accessToken, "", rc)
}

// LinkWithAccessToken links the provider profile behind accessToken to userID.
func (s *AuthService) LinkWithAccessToken(
	ctx context.Context,
	userID, provider, accessToken string,
	rc domainauth.RequestContext,
) (*model.User, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("a signed in account is required to link")
	}
	res, err := s.accessTokenFlow(ctx, provider, accessToken, userID, rc)
	if err != nil {
		return nil, err
	}
	return res.User, nil
}

func (s *AuthService) accessTokenFlow(
	ctx context.Context,
	provider, accessToken, linkUserID string,
	rc domainauth.RequestContext,
) (*CompleteLoginResult, error) {
	if accessToken == "" {
		return nil, apperrors.Unauthorized("access token is required")
	}
	v, ok := s.verifiers[provider]
	if !ok {
		return nil, apperrors.NotFoundf("access token provider %q is not configured", provider)
	}
	login, err := v.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "verify access token")
	}
	if login.Provider == "" {
		login.Provider = provider
	}
	return s.finishFederated(ctx, login, linkUserID, rc)
}

func (s *AuthService) finishFederated(
	ctx context.Context,
	login ports.FederatedLogin,
	linkUserID string,
	rc domainauth.RequestContext,
) (*CompleteLoginResult, error) {
	if linkUserID != "" {
		u, err := s.accounts.LinkSocial(ctx, linkUserID, login, rc)
		if err != nil {
			return nil, err
		}
		return &CompleteLoginResult{User: u}, nil
	}

	u, err := s.accounts.SocialAuth(ctx, login, rc)
	if err != nil {
		return nil, err
	}
	desc, err := s.sessions.CreateSession(ctx, u.ID, login.Provider, rc)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &CompleteLoginResult{User: u, Session: desc}, nil
}

func (s *AuthService) publishRelay(id string, res *CompleteLoginResult, err error) {
	if s.relay == nil {
		return
	}
	out := RelayResult{Err: err}
	if res != nil {
		out.Session = res.Session
	}
	if perr := s.relay.Publish(id, out); perr != nil {
		s.logger.Warn("login relay publish failed", "relay_id", id, "error", perr)
	}
}
