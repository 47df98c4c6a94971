package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/ports"
)

// testIssuer serves discovery, token and userinfo endpoints. Access token "good" maps to
// the userinfo claims; any other bearer gets 401.
type testIssuer struct {
	*httptest.Server
	claims map[string]any
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	ti := &testIssuer{claims: map[string]any{
		"sub":                "GH-42",
		"preferred_username": "octo",
		"given_name":         "Octo",
		"family_name":        "Cat",
		"email":              "octo@example.com",
		"groups":             []any{"app-admin", "staff", "app-reader"},
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                ti.URL,
			AuthorizationEndpoint: ti.URL + "/auth",
			TokenEndpoint:         ti.URL + "/token",
			UserinfoEndpoint:      ti.URL + "/userinfo",
			JwksURI:               ti.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"good","refresh_token":"refresh","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ti.claims)
	})

	ti.Server = httptest.NewServer(mux)
	t.Cleanup(ti.Close)
	return ti
}

func (ti *testIssuer) config(scopes ...string) ProviderConfig {
	return ProviderConfig{
		Name:            "github",
		ClientID:        "test-client",
		ClientSecret:    "test-secret",
		RedirectURL:     "http://localhost:8080/callback",
		Scopes:          scopes,
		IssuerURL:       ti.URL,
		RolesExpression: "groups[?starts_with(@, 'app-')]",
	}
}

func TestNewProvider_Success(t *testing.T) {
	ti := newTestIssuer(t)
	provider, err := NewProvider(context.Background(), ti.config())
	require.NoError(t, err)
	assert.Equal(t, "github", provider.Name())
	assert.Equal(t, ti.URL+"/auth", provider.config.Endpoint.AuthURL)
	assert.Equal(t, ti.URL+"/token", provider.config.Endpoint.TokenURL)
	assert.Equal(t, []string{"openid", "profile", "email"}, provider.config.Scopes)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	base := ProviderConfig{
		Name:         "github",
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		IssuerURL:    "http://example.com",
	}
	tests := []struct {
		name   string
		mutate func(*ProviderConfig)
		errMsg string
	}{
		{"missing name", func(c *ProviderConfig) { c.Name = "" }, "provider name is required"},
		{"missing client ID", func(c *ProviderConfig) { c.ClientID = "" }, "client ID is required"},
		{"missing client secret", func(c *ProviderConfig) { c.ClientSecret = "" }, "client secret is required"},
		{"missing redirect URL", func(c *ProviderConfig) { c.RedirectURL = "" }, "redirect URL is required"},
		{"missing issuer URL", func(c *ProviderConfig) { c.IssuerURL = "" }, "issuer URL is required"},
		{"bad roles expression", func(c *ProviderConfig) { c.RolesExpression = "groups[?" }, "invalid roles expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewProvider(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfigFromSettings(t *testing.T) {
	cfg := ConfigFromSettings("github", config.ProviderConfig{
		IssuerURL:       "https://issuer.example.com",
		ClientID:        "id",
		ClientSecret:    "secret",
		RedirectURL:     "https://app.example.com/cb",
		Scopes:          []string{"openid"},
		RolesExpression: "groups",
	})
	assert.Equal(t, "github", cfg.Name)
	assert.Equal(t, "https://issuer.example.com", cfg.IssuerURL)
	assert.Equal(t, []string{"openid"}, cfg.Scopes)
	assert.Equal(t, "groups", cfg.RolesExpression)
}

func TestProvider_Begin(t *testing.T) {
	provider, err := NewProvider(context.Background(), newTestIssuer(t).config())
	require.NoError(t, err)

	authURL, state, nonce, err := provider.Begin(context.Background(), ports.BeginInput{RedirectURL: "http://localhost:8080/callback"})
	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "test-client", q.Get("client_id"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, nonce, q.Get("nonce"))
	assert.Equal(t, "http://localhost:8080/callback", q.Get("redirect_uri"))

	_, _, _, err = provider.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect URL is required")
}

func TestProvider_Exchange(t *testing.T) {
	ti := newTestIssuer(t)
	// Without the openid scope the profile comes from the userinfo endpoint only.
	provider, err := NewProvider(context.Background(), ti.config("profile", "email"))
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			input  ports.ExchangeInput
			errMsg string
		}{
			{ports.ExchangeInput{State: "state", Nonce: "nonce"}, "authorization code is required"},
			{ports.ExchangeInput{Code: "code", Nonce: "nonce"}, "state is required"},
			{ports.ExchangeInput{Code: "code", State: "state"}, "nonce is required"},
		}
		for _, tt := range tests {
			_, err := provider.Exchange(ctx, tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		}
	})

	t.Run("maps the profile", func(t *testing.T) {
		login, err := provider.Exchange(ctx, ports.ExchangeInput{Code: "good-code", State: "s", Nonce: "n"})
		require.NoError(t, err)
		assert.Equal(t, "github", login.Provider)
		assert.Equal(t, "good", login.Credentials.AccessToken)
		assert.Equal(t, "refresh", login.Credentials.RefreshToken)
		assert.Equal(t, "GH-42", login.Profile.ID)
		assert.Equal(t, "octo", login.Profile.Username)
		assert.Equal(t, "Octo Cat", login.Profile.DisplayName)
		assert.Equal(t, []string{"octo@example.com"}, login.Profile.Emails)
		assert.Equal(t, []string{"app-admin", "app-reader"}, login.Profile.Roles)
	})

	t.Run("rejected code", func(t *testing.T) {
		_, err := provider.Exchange(ctx, ports.ExchangeInput{Code: "bad-code", State: "s", Nonce: "n"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exchange code for token")
	})
}

func TestAccessTokenVerifier(t *testing.T) {
	ti := newTestIssuer(t)
	cfg := ti.config()
	cfg.RolesExpression = ""
	v, err := NewAccessTokenVerifier(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "github", v.Name())

	login, err := v.VerifyAccessToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "GH-42", login.Profile.ID)
	assert.Equal(t, "good", login.Credentials.AccessToken)
	assert.Empty(t, login.Profile.Roles)

	_, err = v.VerifyAccessToken(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get user info")

	_, err = v.VerifyAccessToken(context.Background(), "")
	require.Error(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	str1, err := generateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, str1, 16)

	str2, err := generateRandomString(32)
	require.NoError(t, err)
	assert.Len(t, str2, 32)
	assert.NotEqual(t, str1, str2)

	empty, err := generateRandomString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	idTok, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", idTok)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	assert.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	assert.ErrorContains(t, err, "nil token")
}
