package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/docauth/config"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/testutil"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.SetupTestMongo(t)
	s, err := NewStore(StoreOptions{
		Database: db,
		Config:   config.MongoConfig{DataDatabase: db.Name() + "_data"},
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.EnsureSchema(ctx))
	t.Cleanup(func() { _ = s.data.Drop(context.Background()) })
	return s
}

func TestNewStore_RequiresDatabase(t *testing.T) {
	_, err := NewStore(StoreOptions{})
	assert.ErrorContains(t, err, "database is required")
}

func TestUserRepo_Revisions(t *testing.T) {
	ctx := context.Background()
	repo := setupStore(t).Users()

	u := &model.User{ID: "alice", Type: model.UserDocType, Email: "alice@example.com", Roles: []string{"user"}}
	require.NoError(t, repo.Create(ctx, u))
	assert.Equal(t, int64(1), u.Rev)
	assert.True(t, apperrors.IsConflict(repo.Create(ctx, &model.User{ID: "alice"})))

	stale := *u
	u.Name = "Alice"
	require.NoError(t, repo.Put(ctx, u))
	assert.Equal(t, int64(2), u.Rev)
	stale.Name = "Stale"
	assert.True(t, apperrors.IsConflict(repo.Put(ctx, &stale)))

	got, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, []string{"user"}, got.Roles)

	results, err := repo.BulkPut(ctx, []*model.User{got, &stale})
	require.NoError(t, err)
	assert.NoError(t, results[0])
	assert.True(t, apperrors.IsConflict(results[1]))

	cur, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, apperrors.IsConflict(repo.Delete(ctx, &stale)))
	require.NoError(t, repo.Delete(ctx, cur))
	assert.True(t, apperrors.IsNotFound(repo.Delete(ctx, cur)))
	assert.True(t, apperrors.IsConflict(repo.Put(ctx, cur)))
}

func TestUserRepo_Finders(t *testing.T) {
	ctx := context.Background()
	repo := setupStore(t).Users()

	alice := &model.User{
		ID:              "alice",
		Email:           "alice@example.com",
		UnverifiedEmail: &model.UnverifiedEmail{Email: "alice@new.example.com", Token: "verify-1"},
		Federated: map[string]model.ProviderRecord{
			"github": {Profile: domainauth.Identity{ID: "GH-1"}},
		},
		Session:        map[string]model.SessionEntry{"key-1": {Expires: 100}, "key-2": {Expires: 300}},
		ForgotPassword: &model.ForgotPassword{Token: "hash-1", Expires: 50},
		Profile:        map[string]any{"address": map[string]any{"city": "Berlin"}},
	}
	for _, u := range []*model.User{alice, {ID: "bob@example.com", Email: "bob@example.com"}, {ID: "alicia"}} {
		require.NoError(t, repo.Create(ctx, u))
	}

	tests := []struct {
		name string
		find func() (*model.User, error)
		want string
	}{
		{"username ignores case", func() (*model.User, error) { return repo.FindByUsername(ctx, "ALICE") }, "alice"},
		{"confirmed email", func() (*model.User, error) { return repo.FindByEmail(ctx, "Alice@Example.com") }, "alice"},
		{"pending email", func() (*model.User, error) { return repo.FindByEmail(ctx, "alice@new.example.com") }, "alice"},
		{"email keyed id", func() (*model.User, error) { return repo.FindByEmailUsername(ctx, "BOB@example.com") }, "bob@example.com"},
		{"provider id ignores case", func() (*model.User, error) { return repo.FindByProviderID(ctx, "github", "gh-1") }, "alice"},
		{"session key", func() (*model.User, error) { return repo.FindBySessionKey(ctx, "key-2") }, "alice"},
		{"reset token", func() (*model.User, error) { return repo.FindByPasswordResetToken(ctx, "hash-1") }, "alice"},
		{"verify token", func() (*model.User, error) { return repo.FindByVerifyEmailToken(ctx, "verify-1") }, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := tt.find()
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.ID)
		})
	}

	t.Run("nested profile keeps its shape", func(t *testing.T) {
		u, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		addr, ok := u.Profile["address"].(map[string]any)
		require.True(t, ok, "profile.address decoded as %T", u.Profile["address"])
		assert.Equal(t, "Berlin", addr["city"])
	})

	t.Run("misses are not found", func(t *testing.T) {
		_, err := repo.FindByEmail(ctx, "alice@example")
		assert.True(t, apperrors.IsNotFound(err))
		_, err = repo.FindByProviderID(ctx, "gitlab", "gh-1")
		assert.True(t, apperrors.IsNotFound(err))
		_, err = repo.FindBySessionKey(ctx, "key.1")
		assert.True(t, apperrors.IsNotFound(err))
		_, err = repo.FindByPasswordResetToken(ctx, "")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("ids with prefix", func(t *testing.T) {
		ids, err := repo.ListIDsWithPrefix(ctx, "ali")
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "alicia"}, ids)
	})

	t.Run("expired sessions", func(t *testing.T) {
		rows, err := repo.ExpiredSessions(ctx, 200)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "alice", rows[0].UserID)
		assert.Equal(t, "key-1", rows[0].Key)

		rows, err = repo.ExpiredSessions(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("expired resets", func(t *testing.T) {
		users, err := repo.ExpiredPasswordResets(ctx, 51)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, "alice", users[0].ID)

		users, err = repo.ExpiredPasswordResets(ctx, 50)
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}

func TestUserRepo_WatchDeleted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo := setupStore(t).Users()

	feed, err := repo.WatchDeleted(ctx)
	if err != nil {
		t.Skipf("change streams unavailable: %v", err)
	}

	u := &model.User{ID: "gone", Email: "gone@example.com"}
	require.NoError(t, repo.Create(ctx, u))
	require.NoError(t, repo.Delete(ctx, u))

	select {
	case got := <-feed:
		require.NotNil(t, got)
		assert.Equal(t, "gone", got.ID)
		assert.Equal(t, "gone@example.com", got.Email)
	case <-time.After(5 * time.Second):
		t.Fatal("deletion was not streamed")
	}

	cancel()
	select {
	case _, open := <-feed:
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not close after cancel")
	}
}

func TestCredentialRepo(t *testing.T) {
	ctx := context.Background()
	repo := setupStore(t).Credentials()

	c := &model.Credential{ID: model.CredentialID("k1"), Name: "k1", Expires: 300, Roles: []string{"user:alice"}}
	require.NoError(t, repo.Put(ctx, c))
	assert.Equal(t, int64(1), c.Rev)
	assert.True(t, apperrors.IsConflict(repo.Put(ctx, &model.Credential{ID: c.ID})))

	c.Expires = 100
	require.NoError(t, repo.Put(ctx, c))
	require.NoError(t, repo.Put(ctx, &model.Credential{ID: model.CredentialID("k2"), Expires: 50}))
	require.NoError(t, repo.Put(ctx, &model.Credential{ID: model.CredentialID("k3"), Expires: 500}))

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:alice"}, got.Roles)

	expired, err := repo.ListExpired(ctx, 200)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, model.CredentialID("k2"), expired[0].ID)
	assert.Equal(t, model.CredentialID("k1"), expired[1].ID)

	n, err := repo.DeleteMany(ctx, []string{c.ID, c.ID, model.CredentialID("missing")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = repo.Get(ctx, c.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDatabaseAdmin(t *testing.T) {
	ctx := context.Background()
	admin := setupStore(t).Databases()

	created, err := admin.CreateDatabase(ctx, "notes$alice")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = admin.CreateDatabase(ctx, "notes$alice")
	require.NoError(t, err)
	assert.False(t, created)

	db, err := admin.Open(ctx, "notes$alice")
	require.NoError(t, err)
	defer db.Close()

	sec, err := db.GetSecurity(ctx)
	require.NoError(t, err)
	sec.AddMemberNames("key-1")
	require.NoError(t, db.PutSecurity(ctx, sec))
	sec, err = db.GetSecurity(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-1"}, sec.Members.Names)

	doc := model.DesignDoc{ID: "_design/notes", Body: map[string]any{"views": map[string]any{"all": "x"}}}
	require.NoError(t, db.PutDesignDoc(ctx, doc))
	require.NoError(t, db.PutDesignDoc(ctx, doc))
	doc.Body = map[string]any{"views": map[string]any{"all": "y"}}
	require.NoError(t, db.PutDesignDoc(ctx, doc))
	body, err := db.(*handle).DesignDoc(ctx, "_design/notes")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"views": map[string]any{"all": "y"}}, body)

	names, err := admin.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes$alice"}, names)

	require.NoError(t, admin.DestroyDatabase(ctx, "notes$alice"))
	assert.True(t, apperrors.IsNotFound(admin.DestroyDatabase(ctx, "notes$alice")))
	_, err = admin.Open(ctx, "notes$alice")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "notes__alice", collectionName("notes$alice"))
	assert.Equal(t, "shared", collectionName("shared"))
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.True(t, apperrors.IsTimeout(mapError(context.DeadlineExceeded)))
	assert.True(t, apperrors.IsCanceled(mapError(context.Canceled)))

	plain := assert.AnError
	assert.Same(t, plain, mapError(plain))
}
