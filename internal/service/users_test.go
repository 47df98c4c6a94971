package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/data/cryptoutil"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	authmocks "github.com/target/docauth/internal/mocks/auth"
	"github.com/target/docauth/internal/ports"
)

func githubLogin(id, username string, emails ...string) ports.FederatedLogin {
	return ports.FederatedLogin{
		Provider:    "github",
		Credentials: domainauth.Credentials{AccessToken: "at-" + id, RefreshToken: "rt-" + id},
		Profile: domainauth.Identity{
			ID:          id,
			Username:    username,
			DisplayName: "Octo Cat",
			Emails:      emails,
		},
	}
}

func TestNewUserService(t *testing.T) {
	f := notesFixture(t)
	mailer := &authmocks.RecordingMailer{}

	tests := []struct {
		name    string
		opts    UserServiceOptions
		wantErr string
	}{
		{
			name: "valid",
			opts: UserServiceOptions{Users: f.store.Users(), Sessions: f.sessions, Databases: f.coord, Mailer: mailer},
		},
		{
			name:    "missing users",
			opts:    UserServiceOptions{Sessions: f.sessions, Databases: f.coord, Mailer: mailer},
			wantErr: "UserRepository is required",
		},
		{
			name:    "missing sessions",
			opts:    UserServiceOptions{Users: f.store.Users(), Databases: f.coord, Mailer: mailer},
			wantErr: "SessionRevoker is required",
		},
		{
			name:    "missing databases",
			opts:    UserServiceOptions{Users: f.store.Users(), Sessions: f.sessions, Mailer: mailer},
			wantErr: "PersonalDatabases is required",
		},
		{
			name:    "missing mailer",
			opts:    UserServiceOptions{Users: f.store.Users(), Sessions: f.sessions, Databases: f.coord},
			wantErr: "Mailer is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewUserService(tt.opts)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestUserService_Create(t *testing.T) {
	ctx := context.Background()
	rc := domainauth.RequestContext{IP: "10.0.0.1"}

	t.Run("registers a local account", func(t *testing.T) {
		f := notesFixture(t)
		u, err := f.users.Create(ctx, RegistrationForm{
			Name:            " Alice ",
			Username:        "Alice",
			Email:           "Alice@Example.com",
			Password:        "secret123",
			ConfirmPassword: "secret123",
			Profile:         map[string]any{"plan": "free"},
		}, rc)
		require.NoError(t, err)

		assert.Equal(t, "alice", u.ID)
		assert.Equal(t, "Alice", u.Name)
		assert.Equal(t, "alice@example.com", u.Email)
		assert.Equal(t, []string{"user"}, u.Roles)
		assert.Equal(t, []string{domainauth.ProviderLocal}, u.Providers)
		assert.True(t, u.Local.HasPassword())
		assert.Equal(t, "signup", u.Activity[0].Action)
		assert.Equal(t, "10.0.0.1", u.SignUp.IP)
		assert.Equal(t, model.PersonalDB{Name: "notes", Type: model.DBTypePrivate}, u.PersonalDBs["notes$alice"])
		assert.Contains(t, f.store.Databases().List(), "notes$alice")

		stored := f.user(t, "alice")
		assert.Equal(t, "free", stored.Profile["plan"])
		assert.Equal(t, []string{"signup"}, f.events.Names())
	})

	t.Run("reports every format problem at once", func(t *testing.T) {
		f := notesFixture(t)
		_, err := f.users.Create(ctx, RegistrationForm{Username: "a!", Email: "nope", Password: "abc"}, rc)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		fields := apperrors.GetFields(err)
		assert.Equal(t, []string{"Username invalid"}, fields["username"])
		assert.Equal(t, []string{"Email invalid"}, fields["email"])
		assert.Equal(t, []string{"Password must be at least 6 characters"}, fields["password"])
		assert.Equal(t, []string{"Confirm password can't be blank"}, fields["confirmPassword"])
	})

	t.Run("rejects a mismatched confirmation", func(t *testing.T) {
		f := notesFixture(t)
		_, err := f.users.Create(ctx, RegistrationForm{
			Username: "alice", Email: "alice@example.com", Password: "secret123", ConfirmPassword: "secret124",
		}, rc)
		require.Error(t, err)
		assert.Equal(t, []string{"Password does not match confirmPassword"}, apperrors.GetFields(err)["password"])
	})

	t.Run("taken username and email are conflicts", func(t *testing.T) {
		f := notesFixture(t)
		f.register(t, "alice", "secret123")

		_, err := f.users.Create(ctx, RegistrationForm{
			Username: "alice", Email: "other@example.com", Password: "secret123", ConfirmPassword: "secret123",
		}, rc)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, "username", apperrors.GetField(err))

		_, err = f.users.Create(ctx, RegistrationForm{
			Username: "alice2", Email: "ALICE@example.com", Password: "secret123", ConfirmPassword: "secret123",
		}, rc)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, "email", apperrors.GetField(err))
	})

	t.Run("email keyed accounts", func(t *testing.T) {
		f := newAuthFixture(t, fixtureOptions{local: config.LocalConfig{EmailUsername: true}})
		u, err := f.users.Create(ctx, RegistrationForm{
			Email: "Bob@Example.com", Password: "secret123", ConfirmPassword: "secret123",
		}, rc)
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", u.ID)

		got, err := f.users.Get(ctx, "BOB@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("confirmation mail holds the address until verified", func(t *testing.T) {
		f := newAuthFixture(t, fixtureOptions{local: config.LocalConfig{SendConfirmEmail: true}})
		u, err := f.users.Create(ctx, RegistrationForm{
			Username: "carol", Email: "carol@example.com", Password: "secret123", ConfirmPassword: "secret123",
		}, domainauth.RequestContext{Lang: "en_US"})
		require.NoError(t, err)
		assert.Empty(t, u.Email)
		require.NotNil(t, u.UnverifiedEmail)

		mail, ok := f.mailer.Last()
		require.True(t, ok)
		assert.Equal(t, "confirmEmail", mail.Template)
		assert.Equal(t, "carol@example.com", mail.To)
		assert.Equal(t, "en", mail.Vars["lang"])
		token, _ := mail.Vars["token"].(string)
		require.Equal(t, u.UnverifiedEmail.Token, token)

		_, err = f.users.VerifyEmail(ctx, "wrong", rc)
		assert.True(t, apperrors.IsValidation(err))

		verified, err := f.users.VerifyEmail(ctx, token, rc)
		require.NoError(t, err)
		assert.Equal(t, "carol@example.com", verified.Email)
		assert.Nil(t, verified.UnverifiedEmail)
		assert.Contains(t, f.events.Names(), ports.EventEmailVerified)
	})

	t.Run("mail failure is reported", func(t *testing.T) {
		f := newAuthFixture(t, fixtureOptions{local: config.LocalConfig{SendConfirmEmail: true}})
		f.mailer.Err = errors.New("smtp down")
		_, err := f.users.Create(ctx, RegistrationForm{
			Username: "dave", Email: "dave@example.com", Password: "secret123", ConfirmPassword: "secret123",
		}, rc)
		require.Error(t, err)
		assert.True(t, apperrors.IsUpstream(err))
	})

	t.Run("create hooks run before the first save", func(t *testing.T) {
		f := notesFixture(t)
		f.users.OnCreate(func(_ context.Context, u *model.User, provider string) error {
			u.LocalRoles = append(u.LocalRoles, "trial:"+provider)
			return nil
		})
		f.register(t, "erin", "secret123")
		assert.Equal(t, []string{"trial:local"}, f.user(t, "erin").LocalRoles)

		f.users.OnCreate(func(context.Context, *model.User, string) error { return errors.New("quota exceeded") })
		_, err := f.users.Create(ctx, RegistrationForm{
			Username: "frank", Email: "frank@example.com", Password: "secret123", ConfirmPassword: "secret123",
		}, rc)
		require.Error(t, err)
		_, err = f.store.Users().Get(ctx, "frank")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestUserService_SocialAuth(t *testing.T) {
	ctx := context.Background()
	rc := domainauth.RequestContext{IP: "10.0.0.9"}

	t.Run("creates then logs in the same account", func(t *testing.T) {
		f := notesFixture(t)
		u, err := f.users.SocialAuth(ctx, githubLogin("GH-1", "Octo", "octo@example.com"), rc)
		require.NoError(t, err)
		assert.Equal(t, "octo", u.ID)
		assert.Equal(t, "octo@example.com", u.Email)
		assert.Equal(t, "Octo Cat", u.Name)
		assert.Equal(t, []string{"github"}, u.Providers)
		assert.Contains(t, u.AllRoles(), "provider.github")
		assert.Contains(t, u.PersonalDBs, "notes$octo")
		assert.Equal(t, "signup", u.Activity[0].Action)

		again, err := f.users.SocialAuth(ctx, githubLogin("gh-1", "Octo", "octo@example.com"), rc)
		require.NoError(t, err)
		assert.Equal(t, "octo", again.ID)
		assert.Equal(t, "login", again.Activity[0].Action)
		assert.Equal(t, []string{"signup"}, f.events.Names())
	})

	t.Run("taken usernames get a numeric suffix", func(t *testing.T) {
		f := notesFixture(t)
		f.register(t, "octo", "secret123")
		u, err := f.users.SocialAuth(ctx, githubLogin("GH-2", "octo"), rc)
		require.NoError(t, err)
		assert.Equal(t, "octo1", u.ID)

		u, err = f.users.SocialAuth(ctx, githubLogin("GH-3", "octo"), rc)
		require.NoError(t, err)
		assert.Equal(t, "octo2", u.ID)
	})

	t.Run("taken usernames fail when duplicates are refused", func(t *testing.T) {
		f := newAuthFixture(t, fixtureOptions{providers: config.ProvidersConfig{Providers: config.ProviderSet{
			"github": {Kind: config.ProviderKindOIDC, ErrorOnDuplicate: true},
		}}})
		f.register(t, "octo", "secret123")
		_, err := f.users.SocialAuth(ctx, githubLogin("GH-2", "octo"), rc)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.Contains(t, err.Error(), "account name already exists: octo")
	})

	t.Run("username falls back to the email and display name", func(t *testing.T) {
		f := notesFixture(t)
		u, err := f.users.SocialAuth(ctx, githubLogin("GH-4", "", "first.last@example.com"), rc)
		require.NoError(t, err)
		assert.Equal(t, "first.last", u.ID)

		u, err = f.users.SocialAuth(ctx, githubLogin("GH-5", ""), rc)
		require.NoError(t, err)
		assert.Equal(t, "octocat", u.ID)
	})

	t.Run("email already in use", func(t *testing.T) {
		f := notesFixture(t)
		f.register(t, "alice", "secret123")
		_, err := f.users.SocialAuth(ctx, githubLogin("GH-6", "someone", "alice@example.com"), rc)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, "email", apperrors.GetField(err))
	})

	t.Run("email keyed provider requires an email", func(t *testing.T) {
		f := newAuthFixture(t, fixtureOptions{providers: config.ProvidersConfig{Providers: config.ProviderSet{
			"github": {Kind: config.ProviderKindOIDC, EmailUsername: true},
		}}})
		_, err := f.users.SocialAuth(ctx, githubLogin("GH-7", "octo"), rc)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Contains(t, err.Error(), "github didn't supply one")

		u, err := f.users.SocialAuth(ctx, githubLogin("GH-8", "octo", "Octo@Example.com"), rc)
		require.NoError(t, err)
		assert.Equal(t, "octo@example.com", u.ID)
	})

	t.Run("provider tokens are sealed at rest", func(t *testing.T) {
		sealer, err := cryptoutil.NewAESGCMSealer([]byte("0123456789abcdef0123456789abcdef"))
		require.NoError(t, err)
		f := newAuthFixture(t, fixtureOptions{sealer: sealer})

		_, err = f.users.SocialAuth(ctx, githubLogin("GH-9", "octo"), rc)
		require.NoError(t, err)
		stored := f.user(t, "octo")
		assert.NotEqual(t, "at-GH-9", stored.Federated["github"].Auth.AccessToken)

		creds, err := f.users.ProviderCredentials(stored, "github")
		require.NoError(t, err)
		assert.Equal(t, domainauth.Credentials{AccessToken: "at-GH-9", RefreshToken: "rt-GH-9"}, creds)

		_, err = f.users.ProviderCredentials(stored, "gitlab")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("local is not a federated provider", func(t *testing.T) {
		f := notesFixture(t)
		login := githubLogin("GH-10", "octo")
		login.Provider = domainauth.ProviderLocal
		_, err := f.users.SocialAuth(ctx, login, rc)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestUserService_LinkAndUnlink(t *testing.T) {
	ctx := context.Background()
	rc := domainauth.RequestContext{}
	f := notesFixture(t)
	f.register(t, "alice", "secret123")
	f.register(t, "bob", "secret123")

	var linked []string
	f.users.OnLink(func(_ context.Context, u *model.User, provider string) error {
		linked = append(linked, u.ID+"/"+provider)
		return nil
	})

	u, err := f.users.LinkSocial(ctx, "alice", githubLogin("GH-1", "alice-gh"), rc)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice/github"}, linked)
	assert.Equal(t, []string{domainauth.ProviderLocal, "github"}, u.Providers)

	byID, err := f.users.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Contains(t, byID.Federated, "github")
	assert.Equal(t, "link", u.Activity[0].Action)
	assert.Contains(t, f.events.Names(), ports.EventAccountLinked)

	t.Run("relinking the same profile is allowed", func(t *testing.T) {
		_, err := f.users.LinkSocial(ctx, "alice", githubLogin("gh-1", "alice-gh"), rc)
		require.NoError(t, err)
	})

	t.Run("profile used by another account", func(t *testing.T) {
		_, err := f.users.LinkSocial(ctx, "bob", githubLogin("GH-1", "alice-gh"), rc)
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.Contains(t, err.Error(), "This github profile is already in use by another account.")
	})

	t.Run("account holds another profile", func(t *testing.T) {
		_, err := f.users.LinkSocial(ctx, "alice", githubLogin("GH-2", "alice-gh2"), rc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Your account is already linked with another github profile.")
	})

	t.Run("profile email used by another account", func(t *testing.T) {
		login := githubLogin("GL-1", "alice-gl", "bob@example.com")
		login.Provider = "gitlab"
		_, err := f.users.LinkSocial(ctx, "alice", login, rc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "The email bob@example.com is already in use by another account.")
	})

	t.Run("unlink errors", func(t *testing.T) {
		_, err := f.users.Unlink(ctx, "alice", "")
		assert.Contains(t, err.Error(), "You must specify a provider to unlink.")
		_, err = f.users.Unlink(ctx, "alice", domainauth.ProviderLocal)
		assert.Contains(t, err.Error(), "You can't unlink local.")
		_, err = f.users.Unlink(ctx, "alice", "facebook")
		assert.True(t, apperrors.IsNotFound(err))
		assert.Contains(t, err.Error(), "Provider: Facebook not found.")
	})

	t.Run("unlink", func(t *testing.T) {
		u, err := f.users.Unlink(ctx, "alice", "github")
		require.NoError(t, err)
		assert.Equal(t, []string{domainauth.ProviderLocal}, u.Providers)
		assert.NotContains(t, f.user(t, "alice").Federated, "github")
		assert.Contains(t, f.events.Names(), ports.EventAccountUnlinked)
	})

	t.Run("only provider cannot be unlinked", func(t *testing.T) {
		_, err := f.users.SocialAuth(ctx, githubLogin("GH-3", "solo"), rc)
		require.NoError(t, err)
		_, err = f.users.Unlink(ctx, "solo", "github")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "You can't unlink your only provider!")
	})
}

func TestUserService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	rc := domainauth.RequestContext{}

	setup := func(t *testing.T) (*authFixture, string) {
		t.Helper()
		f := notesFixture(t)
		f.register(t, "alice", "secret123")
		_, err := f.sessions.CreateSession(ctx, "alice", domainauth.ProviderLocal, rc)
		require.NoError(t, err)

		fp, err := f.users.ForgotPassword(ctx, "Alice@Example.com", rc)
		require.NoError(t, err)
		mail, ok := f.mailer.Last()
		require.True(t, ok)
		assert.Equal(t, "forgotPassword", mail.Template)
		assert.Equal(t, "alice@example.com", mail.To)
		token, _ := mail.Vars["token"].(string)
		require.NotEmpty(t, token)
		assert.Equal(t, cryptoutil.HashToken(token), fp.Token)
		assert.Equal(t, f.nowMillis()+time.Hour.Milliseconds(), fp.Expires)
		return f, token
	}

	t.Run("unknown email", func(t *testing.T) {
		f := notesFixture(t)
		_, err := f.users.ForgotPassword(ctx, "ghost@example.com", rc)
		assert.True(t, apperrors.IsNotFound(err))
		_, err = f.users.ForgotPassword(ctx, " ", rc)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("reset sets the password and revokes sessions", func(t *testing.T) {
		f, token := setup(t)
		u, err := f.users.ResetPassword(ctx, ResetPasswordForm{
			Token: token, Password: "newsecret", ConfirmPassword: "newsecret",
		}, rc)
		require.NoError(t, err)
		assert.Nil(t, u.ForgotPassword)

		stored := f.user(t, "alice")
		assert.Empty(t, stored.Session)
		assert.Empty(t, f.members(t, "notes$alice"))

		_, err = f.sessions.Authenticate(ctx, "alice", "newsecret", rc)
		require.NoError(t, err)
		assert.Contains(t, f.events.Names(), ports.EventPasswordReset)
	})

	t.Run("invalid token", func(t *testing.T) {
		f, _ := setup(t)
		_, err := f.users.ResetPassword(ctx, ResetPasswordForm{
			Token: "bogus", Password: "newsecret", ConfirmPassword: "newsecret",
		}, rc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid token")
	})

	t.Run("expired token", func(t *testing.T) {
		f, token := setup(t)
		f.clock.AddTime(time.Hour + time.Millisecond)
		_, err := f.users.ResetPassword(ctx, ResetPasswordForm{
			Token: token, Password: "newsecret", ConfirmPassword: "newsecret",
		}, rc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Token expired")
	})

	t.Run("expired reset is cleared by the sweeper", func(t *testing.T) {
		f, _ := setup(t)
		f.clock.AddTime(time.Hour + time.Millisecond)
		svc, err := NewSweeperService(SweeperServiceOptions{
			Sessions:     f.sessions,
			Keys:         f.keys,
			Users:        f.store.Users(),
			Config:       testSweeperConfig(),
			TimeProvider: f.clock,
		})
		require.NoError(t, err)
		require.NoError(t, svc.RunOnce(ctx))
		assert.Nil(t, f.user(t, "alice").ForgotPassword)
	})
}

func TestUserService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*authFixture, []string) {
		t.Helper()
		f := notesFixture(t)
		f.register(t, "alice", "secret123")
		var keys []string
		for i := 0; i < 2; i++ {
			desc, err := f.sessions.CreateSession(ctx, "alice", domainauth.ProviderLocal, domainauth.RequestContext{})
			require.NoError(t, err)
			keys = append(keys, desc.Token)
		}
		return f, keys
	}

	t.Run("current password is required", func(t *testing.T) {
		f, _ := setup(t)
		err := f.users.ChangePasswordSecure(ctx, "alice", ChangePasswordForm{
			NewPassword: "newsecret", ConfirmPassword: "newsecret",
		}, domainauth.RequestContext{})
		require.Error(t, err)
		assert.Equal(t, "currentPassword", apperrors.GetField(err))

		err = f.users.ChangePasswordSecure(ctx, "alice", ChangePasswordForm{
			CurrentPassword: "wrong", NewPassword: "newsecret", ConfirmPassword: "newsecret",
		}, domainauth.RequestContext{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "The current password you supplied is incorrect.")
	})

	t.Run("changes the password and logs out other sessions", func(t *testing.T) {
		f, keys := setup(t)
		err := f.users.ChangePasswordSecure(ctx, "alice", ChangePasswordForm{
			CurrentPassword: "secret123", NewPassword: "newsecret", ConfirmPassword: "newsecret",
		}, domainauth.RequestContext{SessionKey: keys[1]})
		require.NoError(t, err)

		assert.Equal(t, []string{keys[1]}, f.user(t, "alice").SessionKeys())
		_, err = f.sessions.Authenticate(ctx, "alice", "newsecret", domainauth.RequestContext{})
		require.NoError(t, err)
		assert.Contains(t, f.events.Names(), ports.EventPasswordChange)
	})

	t.Run("admin change without the old password", func(t *testing.T) {
		f, _ := setup(t)
		require.NoError(t, f.users.ChangePassword(ctx, "alice", "adminset", domainauth.RequestContext{}))
		_, err := f.sessions.Authenticate(ctx, "alice", "adminset", domainauth.RequestContext{})
		require.NoError(t, err)

		err = f.users.ChangePassword(ctx, "ghost", "adminset", domainauth.RequestContext{})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestUserService_ChangeEmail(t *testing.T) {
	ctx := context.Background()
	rc := domainauth.RequestContext{Provider: "github"}

	t.Run("direct change", func(t *testing.T) {
		f := notesFixture(t)
		f.register(t, "alice", "secret123")
		f.register(t, "bob", "secret123")

		u, err := f.users.ChangeEmail(ctx, "alice", "New@Example.com", rc)
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", u.Email)
		assert.Equal(t, "changed email", u.Activity[0].Action)
		assert.Equal(t, "github", u.Activity[0].Provider)

		_, err = f.users.ChangeEmail(ctx, "alice", "bob@example.com", rc)
		assert.True(t, apperrors.IsConflict(err))
		_, err = f.users.ChangeEmail(ctx, "alice", "not-an-email", rc)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("confirmation flow", func(t *testing.T) {
		f := newAuthFixture(t, fixtureOptions{local: config.LocalConfig{SendConfirmEmail: true}})
		f.register(t, "alice", "secret123")

		u, err := f.users.ChangeEmail(ctx, "alice", "fresh@example.com", rc)
		require.NoError(t, err)
		require.NotNil(t, u.UnverifiedEmail)
		assert.Equal(t, "fresh@example.com", u.UnverifiedEmail.Email)

		mail, ok := f.mailer.Last()
		require.True(t, ok)
		assert.Equal(t, "fresh@example.com", mail.To)
		assert.Equal(t, "de", mail.Vars["lang"])
	})
}

func TestUserService_PersonalDatabases(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, fixtureOptions{userDBs: config.UserDBsConfig{
		DefaultPrivate: []string{"notes"},
		Models:         config.DBModels{"team": {Type: model.DBTypeShared, Permissions: []string{"_reader"}}},
	}})
	f.register(t, "alice", "secret123")
	desc, err := f.sessions.CreateSession(ctx, "alice", domainauth.ProviderLocal, domainauth.RequestContext{})
	require.NoError(t, err)

	t.Run("add shared database authorizes live sessions", func(t *testing.T) {
		physical, err := f.users.AddUserDB(ctx, "alice", AddUserDBInput{DBName: "team", Type: model.DBTypeShared})
		require.NoError(t, err)
		assert.Equal(t, "team", physical)
		assert.Contains(t, f.members(t, "team"), desc.Token)

		entry := f.user(t, "alice").PersonalDBs["team"]
		assert.Equal(t, model.DBTypeShared, entry.Type)
		assert.Nil(t, entry.Permissions)
	})

	t.Run("explicit permissions are stored", func(t *testing.T) {
		physical, err := f.users.AddUserDB(ctx, "alice", AddUserDBInput{DBName: "journal", Permissions: []string{"_writer"}})
		require.NoError(t, err)
		assert.Equal(t, "journal$alice", physical)
		assert.Equal(t, []string{"_writer"}, f.user(t, "alice").PersonalDBs[physical].Permissions)
	})

	t.Run("invalid type", func(t *testing.T) {
		_, err := f.users.AddUserDB(ctx, "alice", AddUserDBInput{DBName: "x", Type: "public"})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("remove keeps a database it does not destroy", func(t *testing.T) {
		require.NoError(t, f.users.RemoveUserDB(ctx, "alice", "team", false, false))
		assert.NotContains(t, f.user(t, "alice").PersonalDBs, "team")
		assert.Contains(t, f.store.Databases().List(), "team")
		assert.NotContains(t, f.members(t, "team"), desc.Token)
	})

	t.Run("remove destroys a private database when asked", func(t *testing.T) {
		require.NoError(t, f.users.RemoveUserDB(ctx, "alice", "journal", true, false))
		assert.NotContains(t, f.store.Databases().List(), "journal$alice")
		assert.Contains(t, f.events.Names(), ports.EventUserDBRemoved)
	})

	t.Run("remove account", func(t *testing.T) {
		require.NoError(t, f.users.Remove(ctx, "alice", true))
		_, err := f.store.Users().Get(ctx, "alice")
		assert.True(t, apperrors.IsNotFound(err))
		assert.NotContains(t, f.store.Databases().List(), "notes$alice")
		_, err = f.store.Credentials().Get(ctx, model.CredentialID(desc.Token))
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestDeletionWatcher(t *testing.T) {
	f := newAuthFixture(t, fixtureOptions{userDBs: config.UserDBsConfig{
		DefaultPrivate:        []string{"notes"},
		DefaultShared:         []string{"lobby"},
		DeletePrivateWithUser: true,
	}})
	f.register(t, "alice", "secret123")
	desc, err := f.sessions.CreateSession(context.Background(), "alice", domainauth.ProviderLocal, domainauth.RequestContext{})
	require.NoError(t, err)

	t.Run("requires dependencies", func(t *testing.T) {
		_, err := NewDeletionWatcher(DeletionWatcherOptions{Databases: f.coord, Sessions: f.sessions})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "UserRepository is required")
	})

	w, err := NewDeletionWatcher(DeletionWatcherOptions{
		Users:     f.store.Users(),
		Databases: f.coord,
		Sessions:  f.sessions,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return f.store.WatcherCount() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.store.Users().Delete(context.Background(), f.user(t, "alice")))

	require.Eventually(t, func() bool {
		_, err := f.store.Credentials().Get(context.Background(), model.CredentialID(desc.Token))
		return apperrors.IsNotFound(err) && !slices.Contains(f.members(t, "lobby"), desc.Token)
	}, time.Second, 5*time.Millisecond)

	assert.NotContains(t, f.store.Databases().List(), "notes$alice")
	assert.Contains(t, f.store.Databases().List(), "lobby")

	cancel()
	require.NoError(t, <-done)
}
