package dbauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data/cryptoutil"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
)

// SelfManagedAdapterOptions groups dependencies for SelfManagedAdapter.
type SelfManagedAdapterOptions struct {
	Credentials core.CredentialRepository  // Required: credentials database
	Hasher      *cryptoutil.PasswordHasher // Optional: defaults to the standard PBKDF2 hasher
	Attempts    int                        // Optional: conflict attempts for UpdateKey (default 2)
	Logger      *slog.Logger               // Optional: structured logger
}

// SelfManagedAdapter keeps one credential record per session key in a credentials database
// the server authenticates against, and grants keys access by listing them as members of
// each database's security document.
type SelfManagedAdapter struct {
	creds    core.CredentialRepository
	hasher   *cryptoutil.PasswordHasher
	attempts int
	logger   *slog.Logger
}

var _ ports.SecurityKeyAdapter = (*SelfManagedAdapter)(nil)

// NewSelfManagedAdapter constructs a SelfManagedAdapter.
func NewSelfManagedAdapter(opts SelfManagedAdapterOptions) (*SelfManagedAdapter, error) {
	if opts.Credentials == nil {
		return nil, errors.New("CredentialRepository is required")
	}
	hasher := opts.Hasher
	if hasher == nil {
		hasher = cryptoutil.NewPasswordHasher(cryptoutil.DefaultIterations)
	}
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = DefaultConflictAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SelfManagedAdapter{
		creds:    opts.Credentials,
		hasher:   hasher,
		attempts: attempts,
		logger:   logger.With("component", "key_adapter", "variant", "self_managed"),
	}, nil
}

// StoreKey writes the credential record for a new session key.
func (a *SelfManagedAdapter) StoreKey(ctx context.Context, grant ports.KeyGrant) error {
	hash, err := a.hasher.Hash(grant.Password)
	if err != nil {
		return fmt.Errorf("hash key password: %w", err)
	}
	cred := &model.Credential{
		ID:         model.CredentialID(grant.Key),
		Type:       model.UserDocType,
		Name:       grant.Key,
		UserID:     grant.UserID,
		Salt:       hash.Salt,
		DerivedKey: hash.DerivedKey,
		Iterations: hash.Iterations,
		Expires:    grant.Expires,
		Refreshed:  grant.Refreshed,
		Roles:      model.WithOwnerRole(grant.UserID, grant.Roles),
	}
	if err := a.creds.Put(ctx, cred); err != nil {
		a.logger.ErrorContext(ctx, "cannot store key", "user_id", grant.UserID, "error", err)
		return fmt.Errorf("store key: %w", err)
	}
	return nil
}

// UpdateKey merges changed fields into the key's record, retrying revision conflicts.
func (a *SelfManagedAdapter) UpdateKey(ctx context.Context, key string, upd ports.KeyUpdate) error {
	if upd.Empty() {
		return nil
	}
	id := model.CredentialID(key)
	err := RetryOnConflict(ctx, a.attempts, func(ctx context.Context) error {
		cred, err := a.creds.Get(ctx, id)
		if err != nil {
			if apperrors.IsNotFound(err) {
				// Session already gone from the mirror.
				return nil
			}
			return err
		}
		if !mergeKeyUpdate(cred, upd) {
			return nil
		}
		return a.creds.Put(ctx, cred)
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "cannot update key", "key", key, "error", err)
		return fmt.Errorf("update key: %w", err)
	}
	return nil
}

func mergeKeyUpdate(cred *model.Credential, upd ports.KeyUpdate) bool {
	changed := false
	if upd.Expires != 0 && cred.Expires != upd.Expires {
		cred.Expires = upd.Expires
		changed = true
	}
	if upd.Refreshed != 0 && cred.Refreshed != upd.Refreshed {
		cred.Refreshed = upd.Refreshed
		changed = true
	}
	if upd.Roles != nil {
		owner, ok := model.OwnerFromRoles(cred.Roles)
		if !ok {
			owner = cred.UserID
		}
		roles := model.WithOwnerRole(owner, upd.Roles)
		if !model.RolesEqual(cred.Roles, roles) {
			cred.Roles = roles
			changed = true
		}
	}
	return changed
}

// RemoveKeys deletes the credential records for keys. Missing records are ignored.
func (a *SelfManagedAdapter) RemoveKeys(ctx context.Context, keys []string) error {
	keys = core.UniqueKeys(keys)
	if len(keys) == 0 {
		return nil
	}
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = model.CredentialID(k)
	}
	if _, err := a.creds.DeleteMany(ctx, ids); err != nil {
		a.logger.ErrorContext(ctx, "cannot remove keys", "count", len(ids), "error", err)
		return apperrors.Upstream(err, "cannot delete from credentials database")
	}
	return nil
}

// InitSecurity adds the given roles to the database's admin and member role lists.
func (a *SelfManagedAdapter) InitSecurity(ctx context.Context, db core.Database, adminRoles, memberRoles []string) error {
	return initSecurityRoles(ctx, db, adminRoles, memberRoles)
}

func initSecurityRoles(ctx context.Context, db core.Database, adminRoles, memberRoles []string) error {
	sec, err := db.GetSecurity(ctx)
	if err != nil {
		return fmt.Errorf("get security for %s: %w", db.Name(), err)
	}
	admins := model.UnionRoles(sec.Admins.Roles, adminRoles)
	members := model.UnionRoles(sec.Members.Roles, memberRoles)
	if model.RolesEqual(admins, sec.Admins.Roles) && model.RolesEqual(members, sec.Members.Roles) {
		return nil
	}
	sec.Admins.Roles = admins
	sec.Members.Roles = members
	if err := db.PutSecurity(ctx, sec); err != nil {
		return fmt.Errorf("put security for %s: %w", db.Name(), err)
	}
	return nil
}

// AuthorizeKeys lists keys as members of db and resyncs each key record's roles.
func (a *SelfManagedAdapter) AuthorizeKeys(ctx context.Context, db core.Database, authz ports.Authorization) error {
	keys := core.UniqueKeys(authz.Keys)
	sec, err := db.GetSecurity(ctx)
	if err != nil {
		return fmt.Errorf("get security for %s: %w", db.Name(), err)
	}
	if sec.AddMemberNames(keys...) {
		if err := db.PutSecurity(ctx, sec); err != nil {
			return fmt.Errorf("put security for %s: %w", db.Name(), err)
		}
	}
	if authz.Roles == nil {
		return nil
	}
	for _, k := range keys {
		if err := a.UpdateKey(ctx, k, ports.KeyUpdate{Roles: authz.Roles}); err != nil {
			return err
		}
	}
	return nil
}

// DeauthorizeKeys removes keys from db's member list.
func (a *SelfManagedAdapter) DeauthorizeKeys(ctx context.Context, db core.Database, keys []string) error {
	sec, err := db.GetSecurity(ctx)
	if err != nil {
		return fmt.Errorf("get security for %s: %w", db.Name(), err)
	}
	if !sec.RemoveMemberNames(core.UniqueKeys(keys)...) {
		return nil
	}
	if err := db.PutSecurity(ctx, sec); err != nil {
		return fmt.Errorf("put security for %s: %w", db.Name(), err)
	}
	return nil
}

// RemoveExpiredKeys deletes credential records that expired before the cutoff.
func (a *SelfManagedAdapter) RemoveExpiredKeys(ctx context.Context, before int64) ([]string, error) {
	expired, err := a.creds.ListExpired(ctx, before)
	if err != nil {
		return nil, apperrors.Upstream(err, "cannot list expired keys")
	}
	if len(expired) == 0 {
		return nil, nil
	}
	keys := make([]string, len(expired))
	ids := make([]string, len(expired))
	for i, c := range expired {
		keys[i] = c.Name
		ids[i] = c.ID
	}
	if _, err := a.creds.DeleteMany(ctx, ids); err != nil {
		return nil, apperrors.Upstream(err, "cannot delete expired keys")
	}
	return keys, nil
}
