package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProviderKind selects how a federated provider authenticates users.
type ProviderKind string

const (
	// ProviderKindOIDC runs the OpenID Connect authorization code flow.
	ProviderKindOIDC ProviderKind = "oidc"
	// ProviderKindAccessToken accepts access tokens the client obtained directly and
	// resolves them against the provider's userinfo endpoint.
	ProviderKindAccessToken ProviderKind = "access_token"
)

// ProviderConfig configures one federated provider.
type ProviderConfig struct {
	Kind         ProviderKind `json:"kind"`
	IssuerURL    string       `json:"issuerURL"`
	ClientID     string       `json:"clientID"`
	ClientSecret string       `json:"clientSecret"`
	RedirectURL  string       `json:"redirectURL"`
	Scopes       []string     `json:"scopes"`
	// RolesExpression is a JMESPath expression evaluated against the claims to produce
	// profile roles, e.g. "groups[?starts_with(@, 'app-')]".
	RolesExpression string `json:"rolesExpression"`
	// EmailUsername keys new accounts from this provider by email address.
	EmailUsername bool `json:"emailUsername"`
	// ErrorOnDuplicate fails signup instead of appending a number to a taken username.
	ErrorOnDuplicate bool `json:"errorOnDuplicate"`
	// DefaultRoles are granted to accounts created through this provider.
	DefaultRoles []string `json:"defaultRoles"`
}

// ProviderSet maps provider names to their configuration, parsed from a JSON object.
type ProviderSet map[string]ProviderConfig

// UnmarshalText implements encoding.TextUnmarshaler for ProviderSet.
func (p *ProviderSet) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*p = ProviderSet{}
		return nil
	}
	var out map[string]ProviderConfig
	if err := json.Unmarshal(text, &out); err != nil {
		return fmt.Errorf("invalid providers JSON: %w", err)
	}
	for name, pc := range out {
		if name == "" || name == "local" || name == "dev" {
			return fmt.Errorf("invalid provider name %q", name)
		}
		switch pc.Kind {
		case "":
			pc.Kind = ProviderKindOIDC
		case ProviderKindOIDC, ProviderKindAccessToken:
		default:
			return fmt.Errorf("provider %q: invalid kind %q (valid options: oidc, access_token)", name, pc.Kind)
		}
		if pc.IssuerURL == "" {
			return fmt.Errorf("provider %q: issuerURL is required", name)
		}
		if len(pc.Scopes) == 0 {
			pc.Scopes = []string{"openid", "profile", "email"}
		}
		out[name] = pc
	}
	*p = out
	return nil
}

// DevAuthConfig configures the fixed-identity provider offered in development mode.
type DevAuthConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	UserID  string   `env:"USER_ID" envDefault:"developer"`
	Email   string   `env:"EMAIL"   envDefault:"developer@localhost"`
	Roles   []string `env:"ROLES"   envSeparator:","`
}

// ProvidersConfig groups federated login configuration.
type ProvidersConfig struct {
	Providers ProviderSet `env:"AUTH_PROVIDERS"`
	// Dev registers the "dev" provider when running in development mode.
	Dev DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Get returns the named provider's configuration.
func (p ProvidersConfig) Get(name string) (ProviderConfig, bool) {
	pc, ok := p.Providers[name]
	return pc, ok
}
