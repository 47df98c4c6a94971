// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider    = (*MockIdentityProvider)(nil)
	_ ports.AccessTokenVerifier = (*MockAccessTokenVerifier)(nil)
	_ ports.EventPublisher      = (*RecordingPublisher)(nil)
	_ ports.Mailer              = (*RecordingMailer)(nil)
	_ ports.KeyIssuer           = (*SequentialKeyIssuer)(nil)
)

// MockIdentityProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockIdentityProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (ports.FederatedLogin, error)

	// Deterministic values for predictable testing
	ProviderName string
	AuthURL      string
	StatePrefix  string
	NoncePrefix  string
	DefaultLogin ports.FederatedLogin

	mu        sync.Mutex
	callCount int
}

// NewMockIdentityProvider creates a MockIdentityProvider with sensible defaults.
func NewMockIdentityProvider(name string) *MockIdentityProvider {
	return &MockIdentityProvider{
		ProviderName: name,
		AuthURL:      "https://mock-idp/auth",
		StatePrefix:  "state",
		NoncePrefix:  "nonce",
		DefaultLogin: ports.FederatedLogin{
			Provider:    name,
			Credentials: domainauth.Credentials{AccessToken: "mock-access-token"},
			Profile: domainauth.Identity{
				ID:          "Mock-User-1",
				Username:    "mockuser",
				DisplayName: "Mock User",
				Emails:      []string{"mock.user@example.com"},
			},
		},
	}
}

// Name returns the provider name.
func (m *MockIdentityProvider) Name() string { return m.ProviderName }

func (m *MockIdentityProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}
	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockIdentityProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (ports.FederatedLogin, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	if in.Code == "" {
		return ports.FederatedLogin{}, errors.New("missing code")
	}
	login := m.DefaultLogin
	if login.Provider == "" {
		login.Provider = m.ProviderName
	}
	return login, nil
}

// MockAccessTokenVerifier accepts a fixed set of tokens.
type MockAccessTokenVerifier struct {
	ProviderName string
	Logins       map[string]ports.FederatedLogin
}

// Name returns the provider name.
func (m *MockAccessTokenVerifier) Name() string { return m.ProviderName }

// VerifyAccessToken returns the login registered for token.
func (m *MockAccessTokenVerifier) VerifyAccessToken(_ context.Context, token string) (ports.FederatedLogin, error) {
	login, ok := m.Logins[token]
	if !ok {
		return ports.FederatedLogin{}, ErrNotFound
	}
	if login.Provider == "" {
		login.Provider = m.ProviderName
	}
	return login, nil
}

// RecordingPublisher keeps published events in memory. It is safe for concurrent use.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []ports.Event
}

func (r *RecordingPublisher) Publish(_ context.Context, ev ports.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Names returns the names of the recorded events in publish order.
func (r *RecordingPublisher) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

// Events returns a copy of the recorded events.
func (r *RecordingPublisher) Events() []ports.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Event(nil), r.events...)
}

// SentEmail is one message captured by RecordingMailer.
type SentEmail struct {
	Template string
	To       string
	Vars     map[string]any
}

// RecordingMailer captures outgoing mail. Err, when set, fails every send.
type RecordingMailer struct {
	Err error

	mu   sync.Mutex
	sent []SentEmail
}

func (m *RecordingMailer) SendEmail(_ context.Context, template, to string, vars map[string]any) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentEmail{Template: template, To: to, Vars: vars})
	return nil
}

// Sent returns a copy of the captured mail.
func (m *RecordingMailer) Sent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentEmail(nil), m.sent...)
}

// Last returns the most recent message, or false when nothing was sent.
func (m *RecordingMailer) Last() (SentEmail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentEmail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// SequentialKeyIssuer hands out predictable key/password pairs: key-1/pass-1, key-2/pass-2...
type SequentialKeyIssuer struct {
	mu sync.Mutex
	n  int
}

func (s *SequentialKeyIssuer) IssueKey(context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("key-%d", s.n), fmt.Sprintf("pass-%d", s.n), nil
}

// ErrNotFound is returned by mocks when an entity is not present.
type notFoundError struct{}

func (notFoundError) Error() string { return "not found" }

var ErrNotFound error = notFoundError{}
