package dbauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/docauth/internal/adapters/memdoc"
	"github.com/target/docauth/internal/ports"
)

func TestManagedAdapter(t *testing.T) {
	ctx := context.Background()
	store := memdoc.New()
	db := openDB(t, store, "notes$alice")
	a := NewManagedAdapter(nil)

	t.Run("key record operations are no-ops", func(t *testing.T) {
		require.NoError(t, a.StoreKey(ctx, ports.KeyGrant{UserID: "alice", Key: "k1"}))
		require.NoError(t, a.UpdateKey(ctx, "k1", ports.KeyUpdate{Expires: 1}))
		require.NoError(t, a.RemoveKeys(ctx, []string{"k1"}))
		require.NoError(t, a.InitSecurity(ctx, db, []string{"admins"}, nil))
		keys, err := a.RemoveExpiredKeys(ctx, 1<<40)
		require.NoError(t, err)
		assert.Empty(t, keys)

		sec, err := db.GetSecurity(ctx)
		require.NoError(t, err)
		assert.Empty(t, sec.Admins.Roles)
	})

	t.Run("authorize writes per-key permission lists", func(t *testing.T) {
		err := a.AuthorizeKeys(ctx, db, ports.Authorization{
			UserID: "alice", Keys: []string{"k1", "k2"}, Roles: []string{"editor", "_reader"},
		})
		require.NoError(t, err)

		sec, err := db.GetSecurity(ctx)
		require.NoError(t, err)
		want := []string{"user:alice", "_reader", "_replicator", "editor"}
		assert.Equal(t, want, sec.Cloudant["k1"])
		assert.Equal(t, want, sec.Cloudant["k2"])
	})

	t.Run("explicit permissions replace defaults", func(t *testing.T) {
		err := a.AuthorizeKeys(ctx, db, ports.Authorization{
			UserID: "alice", Keys: []string{"k1"}, Permissions: []string{"_writer"},
		})
		require.NoError(t, err)

		sec, err := db.GetSecurity(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"user:alice", "_writer"}, sec.Cloudant["k1"])
	})

	t.Run("deauthorize drops entries", func(t *testing.T) {
		require.NoError(t, a.DeauthorizeKeys(ctx, db, []string{"k1", "missing"}))
		sec, err := db.GetSecurity(ctx)
		require.NoError(t, err)
		assert.NotContains(t, sec.Cloudant, "k1")
		assert.Contains(t, sec.Cloudant, "k2")
	})
}
