// Package oidc provides federated login adapters backed by OpenID Connect providers.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/target/docauth/config"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/ports"
)

var (
	_ ports.IdentityProvider    = (*Provider)(nil)
	_ ports.AccessTokenVerifier = (*AccessTokenVerifier)(nil)
)

// Provider runs the OpenID Connect authorization code flow against one issuer.
type Provider struct {
	name       string
	config     *oauth2.Config
	httpClient *http.Client
	roles      rolesExpression

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	Name            string
	ClientID        string
	ClientSecret    string
	RedirectURL     string
	Scopes          []string
	IssuerURL       string
	RolesExpression string
	HTTPClient      *http.Client // Optional, defaults to a client with a 30s timeout
}

// ConfigFromSettings converts a named provider entry from the environment configuration.
func ConfigFromSettings(name string, pc config.ProviderConfig) ProviderConfig {
	return ProviderConfig{
		Name:            name,
		ClientID:        pc.ClientID,
		ClientSecret:    pc.ClientSecret,
		RedirectURL:     pc.RedirectURL,
		Scopes:          pc.Scopes,
		IssuerURL:       pc.IssuerURL,
		RolesExpression: pc.RolesExpression,
	}
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

func discover(ctx context.Context, cfg ProviderConfig) (*gooidc.Provider, *http.Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("oidc new provider: %w", err)
	}
	return op, httpClient, nil
}

// NewProvider discovers the issuer and creates a new OIDC provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	if cfg.Name == "" {
		return nil, errors.New("provider name is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	roles, err := compileRoles(cfg.RolesExpression)
	if err != nil {
		return nil, err
	}

	op, httpClient, err := discover(ctx, cfg)
	if err != nil {
		return nil, err
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}
	return &Provider{
		name:         cfg.Name,
		httpClient:   httpClient,
		roles:        roles,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
	}, nil
}

// Name returns the provider name accounts are linked under.
func (p *Provider) Name() string { return p.name }

func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri must match the configured RedirectURL exactly
	authURL := p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.FederatedLogin, error) {
	if in.Code == "" {
		return ports.FederatedLogin{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return ports.FederatedLogin{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return ports.FederatedLogin{}, errors.New("nonce is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return ports.FederatedLogin{}, fmt.Errorf("exchange code for token: %w", err)
	}

	claims, err := p.extractFromIDToken(ctx, token, in.Nonce)
	if err != nil {
		return ports.FederatedLogin{}, fmt.Errorf("extract id_token: %w", err)
	}
	if claimString(claims, "sub") == "" || claimString(claims, "email") == "" {
		info, infoErr := userInfoClaims(ctx, p.oidcProvider, token.AccessToken)
		if infoErr != nil {
			return ports.FederatedLogin{}, fmt.Errorf("get user info: %w", infoErr)
		}
		mergeMissing(claims, info)
	}

	profile, err := identityFromClaims(claims, p.roles)
	if err != nil {
		return ports.FederatedLogin{}, err
	}
	return ports.FederatedLogin{
		Provider: p.name,
		Credentials: domainauth.Credentials{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
		},
		Profile: profile,
	}, nil
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (map[string]any, error) {
	claims := map[string]any{}
	if !slices.Contains(p.config.Scopes, gooidc.ScopeOpenID) {
		return claims, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return nil, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id_token: %w", err)
	}
	if expectedNonce != "" && idTok.Nonce != expectedNonce {
		return nil, errors.New("invalid nonce")
	}
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	return claims, nil
}

// AccessTokenVerifier resolves access tokens a client obtained directly from the provider
// against the issuer's userinfo endpoint.
type AccessTokenVerifier struct {
	name         string
	roles        rolesExpression
	oidcProvider *gooidc.Provider
	httpClient   *http.Client
}

// NewAccessTokenVerifier discovers the issuer and creates a verifier. Client credentials
// are not needed.
func NewAccessTokenVerifier(ctx context.Context, cfg ProviderConfig) (*AccessTokenVerifier, error) {
	if cfg.Name == "" {
		return nil, errors.New("provider name is required")
	}
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	roles, err := compileRoles(cfg.RolesExpression)
	if err != nil {
		return nil, err
	}
	op, httpClient, err := discover(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &AccessTokenVerifier{name: cfg.Name, roles: roles, oidcProvider: op, httpClient: httpClient}, nil
}

// Name returns the provider name accounts are linked under.
func (v *AccessTokenVerifier) Name() string { return v.name }

// VerifyAccessToken fetches the token owner's profile from the userinfo endpoint.
func (v *AccessTokenVerifier) VerifyAccessToken(ctx context.Context, accessToken string) (ports.FederatedLogin, error) {
	if accessToken == "" {
		return ports.FederatedLogin{}, errors.New("access token is required")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)
	claims, err := userInfoClaims(ctx, v.oidcProvider, accessToken)
	if err != nil {
		return ports.FederatedLogin{}, fmt.Errorf("get user info: %w", err)
	}
	profile, err := identityFromClaims(claims, v.roles)
	if err != nil {
		return ports.FederatedLogin{}, err
	}
	return ports.FederatedLogin{
		Provider:    v.name,
		Credentials: domainauth.Credentials{AccessToken: accessToken},
		Profile:     profile,
	}, nil
}

func userInfoClaims(ctx context.Context, op *gooidc.Provider, accessToken string) (map[string]any, error) {
	ui, err := op.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	claims := map[string]any{}
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return nil, fmt.Errorf("decode user info: %w", claimsErr)
	}
	return claims, nil
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least 'length' base64 URL-safe chars
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
