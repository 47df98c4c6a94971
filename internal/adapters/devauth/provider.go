// Package devauth provides a config-driven identity provider for local development.
package devauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/ports"
)

// ProviderName is the name accounts created through the dev provider are linked under.
const ProviderName = "dev"

var _ ports.IdentityProvider = (*Provider)(nil)

// Config controls the dev identity. Roles may be empty.
type Config struct {
	UserID string
	Email  string
	Roles  []string
}

// Provider short-circuits the authorization code flow by redirecting straight back to the
// callback with locally generated state. Exchange ignores the code and returns the
// configured identity.
type Provider struct {
	identity domainauth.Identity
}

// NewProvider constructs a dev identity provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	return &Provider{
		identity: domainauth.Identity{
			ID:          cfg.UserID,
			Username:    cfg.UserID,
			DisplayName: cfg.UserID,
			Emails:      []string{cfg.Email},
			Roles:       append([]string(nil), cfg.Roles...),
		},
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// Begin returns the redirect URL with a dev code and cryptographically secure state and
// nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	u, err := url.Parse(in.RedirectURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse redirect URL: %w", err)
	}
	q := u.Query()
	q.Set("code", "dev")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), state, nonce, nil
}

// Exchange returns the dev identity. State and nonce checks happen in the caller.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (ports.FederatedLogin, error) {
	if in.Code == "" {
		return ports.FederatedLogin{}, errors.New("authorization code is required")
	}
	id := p.identity
	id.Emails = append([]string(nil), p.identity.Emails...)
	id.Roles = append([]string(nil), p.identity.Roles...)
	return ports.FederatedLogin{
		Provider:    ProviderName,
		Credentials: domainauth.Credentials{AccessToken: "dev"},
		Profile:     id,
	}, nil
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
