package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/docauth/internal/ports"
)

func TestMockIdentityProvider_Begin_Defaults(t *testing.T) {
	provider := NewMockIdentityProvider("github")
	ctx := context.Background()

	input := ports.BeginInput{RedirectURL: "http://localhost:8080/callback"}
	authURL, state, nonce, err := provider.Begin(ctx, input)

	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", authURL)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "nonce-1", nonce)

	// Second call should increment counters
	_, state2, nonce2, err2 := provider.Begin(ctx, input)
	require.NoError(t, err2)
	assert.Equal(t, "state-2", state2)
	assert.Equal(t, "nonce-2", nonce2)
}

func TestMockIdentityProvider_Begin_CustomFunc(t *testing.T) {
	provider := &MockIdentityProvider{
		BeginFunc: func(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
			return "custom-url", "custom-state", "custom-nonce", nil
		},
	}
	authURL, state, nonce, err := provider.Begin(context.Background(), ports.BeginInput{})
	require.NoError(t, err)
	assert.Equal(t, "custom-url", authURL)
	assert.Equal(t, "custom-state", state)
	assert.Equal(t, "custom-nonce", nonce)
}

func TestMockIdentityProvider_Exchange(t *testing.T) {
	provider := NewMockIdentityProvider("github")

	login, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "c", State: "s", Nonce: "n"})
	require.NoError(t, err)
	assert.Equal(t, "github", login.Provider)
	assert.Equal(t, "Mock-User-1", login.Profile.ID)
	assert.Equal(t, "mock.user@example.com", login.Profile.PrimaryEmail())

	_, err = provider.Exchange(context.Background(), ports.ExchangeInput{})
	require.Error(t, err)
}

func TestMockAccessTokenVerifier(t *testing.T) {
	v := &MockAccessTokenVerifier{
		ProviderName: "bearer",
		Logins:       map[string]ports.FederatedLogin{"good": {}},
	}
	login, err := v.VerifyAccessToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "bearer", login.Provider)

	_, err = v.VerifyAccessToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordingPublisher(t *testing.T) {
	var p RecordingPublisher
	p.Publish(context.Background(), ports.Event{Name: ports.EventLogin, UserID: "alice"})
	p.Publish(context.Background(), ports.Event{Name: ports.EventLogout, UserID: "alice"})
	assert.Equal(t, []string{"login", "logout"}, p.Names())
	assert.Len(t, p.Events(), 2)
}

func TestRecordingMailer(t *testing.T) {
	var m RecordingMailer
	_, ok := m.Last()
	assert.False(t, ok)

	require.NoError(t, m.SendEmail(context.Background(), "confirmEmail", "a@example.com", map[string]any{"token": "X"}))
	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, "confirmEmail", last.Template)
	assert.Equal(t, "X", last.Vars["token"])

	m.Err = errors.New("smtp down")
	require.Error(t, m.SendEmail(context.Background(), "forgotPassword", "a@example.com", nil))
	assert.Len(t, m.Sent(), 1)
}

func TestSequentialKeyIssuer(t *testing.T) {
	var s SequentialKeyIssuer
	k1, p1, err := s.IssueKey(context.Background())
	require.NoError(t, err)
	k2, p2, _ := s.IssueKey(context.Background())
	assert.Equal(t, "key-1", k1)
	assert.Equal(t, "pass-1", p1)
	assert.Equal(t, "key-2", k2)
	assert.Equal(t, "pass-2", p2)
}
