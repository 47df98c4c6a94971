package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/docauth/config"
)

func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/userinfo",
			"jwks_uri":               srv.URL + "/jwks",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildIdentityProviders(t *testing.T) {
	srv := newDiscoveryServer(t)
	providers := config.ProvidersConfig{Providers: config.ProviderSet{
		"github": {
			Kind:         config.ProviderKindOIDC,
			IssuerURL:    srv.URL,
			ClientID:     "id",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/auth/github/callback",
		},
		"mobile": {Kind: config.ProviderKindAccessToken, IssuerURL: srv.URL},
	}}

	got, err := BuildIdentityProviders(context.Background(), AuthConfig{Providers: providers, Logger: testLogger()})
	require.NoError(t, err)
	require.Len(t, got.Redirect, 1)
	require.Len(t, got.Tokens, 1)
	assert.Equal(t, "github", got.Redirect[0].Name())
	assert.Equal(t, "mobile", got.Tokens[0].Name())
}

func TestBuildIdentityProviders_Dev(t *testing.T) {
	providers := config.ProvidersConfig{Dev: config.DevAuthConfig{Enabled: true, UserID: "dev", Email: "dev@localhost"}}

	got, err := BuildIdentityProviders(context.Background(), AuthConfig{Providers: providers, IsDev: true})
	require.NoError(t, err)
	require.Len(t, got.Redirect, 1)
	assert.Equal(t, "dev", got.Redirect[0].Name())

	got, err = BuildIdentityProviders(context.Background(), AuthConfig{Providers: providers, IsDev: false})
	require.NoError(t, err)
	assert.Empty(t, got.Redirect)
}

func TestBuildIdentityProviders_InvalidProvider(t *testing.T) {
	srv := newDiscoveryServer(t)
	providers := config.ProvidersConfig{Providers: config.ProviderSet{
		"broken": {Kind: config.ProviderKindOIDC, IssuerURL: srv.URL},
	}}
	_, err := BuildIdentityProviders(context.Background(), AuthConfig{Providers: providers})
	assert.ErrorContains(t, err, "provider broken")
}
