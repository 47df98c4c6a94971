package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/adapters/memdoc"
	"github.com/target/docauth/internal/adapters/tokenstore"
	"github.com/target/docauth/internal/data"
	"github.com/target/docauth/internal/data/cryptoutil"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	authmocks "github.com/target/docauth/internal/mocks/auth"
	"github.com/target/docauth/internal/service/dbauth"
)

var fixtureNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// authFixture wires the session engine and user service against in-memory backends.
type authFixture struct {
	store    *memdoc.Store
	clock    *data.FixedTimeProvider
	tokens   *tokenstore.MemoryStore
	keys     *dbauth.SelfManagedAdapter
	coord    *dbauth.Coordinator
	events   *authmocks.RecordingPublisher
	mailer   *authmocks.RecordingMailer
	sessions *SessionService
	users    *UserService
}

type fixtureOptions struct {
	security  config.SecurityConfig
	local     config.LocalConfig
	userDBs   config.UserDBsConfig
	providers config.ProvidersConfig
	sealer    cryptoutil.Sealer
}

func defaultSecurity() config.SecurityConfig {
	return config.SecurityConfig{
		SessionLife:        time.Hour,
		TokenLife:          time.Hour,
		LockoutTime:        10 * time.Minute,
		ActivityLogSize:    10,
		DefaultRoles:       []string{"user"},
		PasswordIterations: 1,
	}
}

func newAuthFixture(t *testing.T, opts fixtureOptions) *authFixture {
	t.Helper()
	if opts.security.SessionLife == 0 {
		opts.security = defaultSecurity()
	}

	store := memdoc.New()
	clock := data.NewFixedTimeProvider(fixtureNow)
	hasher := cryptoutil.NewPasswordHasher(1)
	tokens := tokenstore.NewMemoryStore(tokenstore.MemoryStoreOptions{TimeProvider: clock})

	keys, err := dbauth.NewSelfManagedAdapter(dbauth.SelfManagedAdapterOptions{
		Credentials: store.Credentials(),
		Hasher:      hasher,
	})
	require.NoError(t, err)
	coord, err := dbauth.NewCoordinator(dbauth.CoordinatorOptions{
		Admin:        store.Databases(),
		Users:        store.Users(),
		Keys:         keys,
		Config:       opts.userDBs,
		TimeProvider: clock,
	})
	require.NoError(t, err)

	events := &authmocks.RecordingPublisher{}
	mailer := &authmocks.RecordingMailer{}
	sessions, err := NewSessionService(SessionServiceOptions{
		Users:        store.Users(),
		Tokens:       tokens,
		Access:       coord,
		KeyIssuer:    &authmocks.SequentialKeyIssuer{},
		Hasher:       hasher,
		Events:       events,
		Security:     opts.security,
		Local:        opts.local,
		DBServer:     config.DBServerConfig{Protocol: "https://", Host: "db.example.com"},
		TimeProvider: clock,
	})
	require.NoError(t, err)

	users, err := NewUserService(UserServiceOptions{
		Users:        store.Users(),
		Sessions:     sessions,
		Databases:    coord,
		Mailer:       mailer,
		Events:       events,
		Hasher:       hasher,
		Sealer:       opts.sealer,
		Security:     opts.security,
		Local:        opts.local,
		UserDBs:      opts.userDBs,
		Providers:    opts.providers,
		TimeProvider: clock,
	})
	require.NoError(t, err)

	return &authFixture{
		store:    store,
		clock:    clock,
		tokens:   tokens,
		keys:     keys,
		coord:    coord,
		events:   events,
		mailer:   mailer,
		sessions: sessions,
		users:    users,
	}
}

func (f *authFixture) nowMillis() int64 {
	return data.NowMillis(f.clock)
}

// register creates a local account with a valid email derived from the username.
func (f *authFixture) register(t *testing.T, username, password string) *model.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), RegistrationForm{
		Username:        username,
		Email:           username + "@example.com",
		Password:        password,
		ConfirmPassword: password,
	}, domainauth.RequestContext{IP: "10.0.0.1"})
	require.NoError(t, err)
	return u
}

func (f *authFixture) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := f.store.Users().Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

// members returns the member names of a provisioned database's access-control document.
func (f *authFixture) members(t *testing.T, name string) []string {
	t.Helper()
	db, err := f.store.Databases().Open(context.Background(), name)
	require.NoError(t, err)
	defer db.Close()
	sec, err := db.GetSecurity(context.Background())
	require.NoError(t, err)
	return sec.Members.Names
}

// storedToken returns the raw token store entry for key, nil when it is gone.
func (f *authFixture) storedToken(t *testing.T, key string) []byte {
	t.Helper()
	raw, err := f.tokens.Get(context.Background(), "token:"+key)
	require.NoError(t, err)
	return raw
}

// assertRevoked checks that key no longer confirms and has left the token store.
func (f *authFixture) assertRevoked(t *testing.T, key, password string) {
	t.Helper()
	_, err := f.sessions.ConfirmSession(context.Background(), key, password)
	assert.True(t, apperrors.IsSessionInvalid(err), "session %s still confirms", key)
	assert.Nil(t, f.storedToken(t, key), "session %s still in the token store", key)
}
