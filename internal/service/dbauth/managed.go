package dbauth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	"github.com/target/docauth/internal/ports"
)

// defaultManagedPermissions apply when neither the database nor its model sets permissions.
var defaultManagedPermissions = []string{"_reader", "_replicator"}

// ManagedAdapter targets a hosted server that issues its own API keys. The server owns key
// records, so storing, updating and removing keys are no-ops; access is granted through a
// per-key permission list in the security document's cloudant section.
type ManagedAdapter struct {
	logger *slog.Logger
}

var _ ports.SecurityKeyAdapter = (*ManagedAdapter)(nil)

// NewManagedAdapter constructs a ManagedAdapter.
func NewManagedAdapter(logger *slog.Logger) *ManagedAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ManagedAdapter{logger: logger.With("component", "key_adapter", "variant", "managed")}
}

// StoreKey is a no-op.
func (a *ManagedAdapter) StoreKey(context.Context, ports.KeyGrant) error { return nil }

// UpdateKey is a no-op.
func (a *ManagedAdapter) UpdateKey(context.Context, string, ports.KeyUpdate) error { return nil }

// RemoveKeys is a no-op.
func (a *ManagedAdapter) RemoveKeys(context.Context, []string) error { return nil }

// InitSecurity is a no-op.
func (a *ManagedAdapter) InitSecurity(context.Context, core.Database, []string, []string) error {
	return nil
}

// RemoveExpiredKeys has nothing to remove; the provider expires its own keys.
func (a *ManagedAdapter) RemoveExpiredKeys(context.Context, int64) ([]string, error) {
	return nil, nil
}

// AuthorizeKeys sets each key's permission list to the owner marker followed by the
// permissions and roles.
func (a *ManagedAdapter) AuthorizeKeys(ctx context.Context, db core.Database, authz ports.Authorization) error {
	perms := authz.Permissions
	if perms == nil {
		perms = defaultManagedPermissions
	}
	grant := append([]string{model.OwnerRole(authz.UserID)}, model.UnionRoles(perms, authz.Roles)...)

	sec, err := db.GetSecurity(ctx)
	if err != nil {
		return fmt.Errorf("get security for %s: %w", db.Name(), err)
	}
	if sec.Cloudant == nil {
		sec.Cloudant = make(map[string][]string)
	}
	for _, k := range core.UniqueKeys(authz.Keys) {
		sec.Cloudant[k] = append([]string(nil), grant...)
	}
	if err := db.PutSecurity(ctx, sec); err != nil {
		return fmt.Errorf("put security for %s: %w", db.Name(), err)
	}
	return nil
}

// DeauthorizeKeys drops the keys' permission lists.
func (a *ManagedAdapter) DeauthorizeKeys(ctx context.Context, db core.Database, keys []string) error {
	sec, err := db.GetSecurity(ctx)
	if err != nil {
		return fmt.Errorf("get security for %s: %w", db.Name(), err)
	}
	changed := false
	for _, k := range keys {
		if _, ok := sec.Cloudant[k]; ok {
			delete(sec.Cloudant, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := db.PutSecurity(ctx, sec); err != nil {
		return fmt.Errorf("put security for %s: %w", db.Name(), err)
	}
	return nil
}
