package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/adapters/devauth"
	"github.com/target/docauth/internal/adapters/oidc"
	"github.com/target/docauth/internal/ports"
)

// IdentityProviders groups the federated login adapters built from configuration.
type IdentityProviders struct {
	Redirect []ports.IdentityProvider
	Tokens   []ports.AccessTokenVerifier
}

// AuthConfig contains configuration for the federated login adapters.
type AuthConfig struct {
	Providers config.ProvidersConfig
	IsDev     bool
	Logger    *slog.Logger
}

// BuildIdentityProviders discovers every configured provider. Providers of kind oidc run
// the authorization code flow; providers of kind access_token accept tokens clients
// obtained directly. The dev provider is only offered in development mode.
func BuildIdentityProviders(ctx context.Context, cfg AuthConfig) (IdentityProviders, error) {
	var out IdentityProviders

	names := make([]string, 0, len(cfg.Providers.Providers))
	for name := range cfg.Providers.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := cfg.Providers.Providers[name]
		settings := oidc.ConfigFromSettings(name, pc)
		switch pc.Kind {
		case config.ProviderKindAccessToken:
			v, err := oidc.NewAccessTokenVerifier(ctx, settings)
			if err != nil {
				return IdentityProviders{}, fmt.Errorf("provider %s: %w", name, err)
			}
			out.Tokens = append(out.Tokens, v)
		default:
			p, err := oidc.NewProvider(ctx, settings)
			if err != nil {
				return IdentityProviders{}, fmt.Errorf("provider %s: %w", name, err)
			}
			out.Redirect = append(out.Redirect, p)
		}
		if cfg.Logger != nil {
			cfg.Logger.InfoContext(ctx, "identity provider configured", "provider", name, "kind", pc.Kind)
		}
	}

	if cfg.Providers.Dev.Enabled {
		if !cfg.IsDev {
			if cfg.Logger != nil {
				cfg.Logger.WarnContext(ctx, "dev auth provider ignored outside development mode")
			}
			return out, nil
		}
		p, err := devauth.NewProvider(devauth.Config{
			UserID: cfg.Providers.Dev.UserID,
			Email:  cfg.Providers.Dev.Email,
			Roles:  cfg.Providers.Dev.Roles,
		})
		if err != nil {
			return IdentityProviders{}, err
		}
		out.Redirect = append(out.Redirect, p)
		if cfg.Logger != nil {
			cfg.Logger.WarnContext(ctx, "dev auth provider enabled", "user_id", cfg.Providers.Dev.UserID)
		}
	}
	return out, nil
}
