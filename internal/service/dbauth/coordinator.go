package dbauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
)

// CoordinatorOptions groups dependencies for Coordinator.
type CoordinatorOptions struct {
	Admin        core.DatabaseAdmin       // Required: database server administration
	Users        core.UserRepository      // Required: user records, for the expired-key sweep
	Keys         ports.SecurityKeyAdapter // Required: key mirroring strategy
	DesignDocs   DesignDocSource          // Optional: design doc bundles (default: none)
	Config       config.UserDBsConfig     // Personal database templates
	TimeProvider data.TimeProvider        // Optional: defaults to real time
	Logger       *slog.Logger             // Optional: structured logger
}

// Coordinator provisions personal databases and keeps their access control in step with
// users' session keys.
type Coordinator struct {
	admin      core.DatabaseAdmin
	users      core.UserRepository
	keys       ports.SecurityKeyAdapter
	designDocs DesignDocSource
	cfg        config.UserDBsConfig
	clock      data.TimeProvider
	logger     *slog.Logger
}

// ProvisionRequest describes one database to add to a user.
type ProvisionRequest struct {
	DBName      string
	Type        model.DBType
	DesignDocs  []string
	Permissions []string
	AdminRoles  []string
	MemberRoles []string
}

// SweepResult summarizes a RemoveExpiredKeys run.
type SweepResult struct {
	Keys     []string
	Users    int
	Skipped  int
	Duration time.Duration
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Admin == nil {
		return nil, errors.New("DatabaseAdmin is required")
	}
	if opts.Users == nil {
		return nil, errors.New("UserRepository is required")
	}
	if opts.Keys == nil {
		return nil, errors.New("SecurityKeyAdapter is required")
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	designDocs := opts.DesignDocs
	if designDocs == nil {
		designDocs = StaticDesignDocs{}
	}
	cfg := opts.Config
	cfg.Sanitize()
	return &Coordinator{
		admin:      opts.Admin,
		users:      opts.Users,
		keys:       opts.Keys,
		designDocs: designDocs,
		cfg:        cfg,
		clock:      clock,
		logger:     logger.With("component", "db_coordinator"),
	}, nil
}

// Keys returns the key mirroring strategy.
func (c *Coordinator) Keys() ports.SecurityKeyAdapter {
	return c.keys
}

// StoreKey mirrors a new session key.
func (c *Coordinator) StoreKey(ctx context.Context, grant ports.KeyGrant) error {
	return c.keys.StoreKey(ctx, grant)
}

// UpdateKey merges changed fields into a mirrored key.
func (c *Coordinator) UpdateKey(ctx context.Context, key string, upd ports.KeyUpdate) error {
	return c.keys.UpdateKey(ctx, key, upd)
}

// RemoveKeys deletes mirrored keys.
func (c *Coordinator) RemoveKeys(ctx context.Context, keys []string) error {
	return c.keys.RemoveKeys(ctx, keys)
}

// LegalDBName escapes id into a form usable inside a database name. The input is
// lower-cased and every byte other than [a-z0-9_] becomes a bracketed lower-case hex
// escape, e.g. "My.Name@x.com" becomes "my(2e)name(40)x(2e)com".
func LegalDBName(id string) string {
	const hex = "0123456789abcdef"
	lower := strings.ToLower(id)
	var b strings.Builder
	b.Grow(len(lower))
	for i := 0; i < len(lower); i++ {
		ch := lower[i]
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '_' {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('(')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
		b.WriteByte(')')
	}
	return b.String()
}

// PhysicalName returns the server-side name of a user's database. Shared databases use
// the logical name; private ones are namespaced by the optional prefix and the owner.
func (c *Coordinator) PhysicalName(userID, dbName string, t model.DBType) string {
	if t == model.DBTypeShared {
		return dbName
	}
	prefix := ""
	if c.cfg.PrivatePrefix != "" {
		prefix = c.cfg.PrivatePrefix + "_"
	}
	return prefix + dbName + "$" + LegalDBName(userID)
}

// DatabaseConfig resolves the provisioning template for a logical database. A per-name
// model wins over the _default model; role lists are unions with the global defaults.
// An empty t defers to the model's type, then private.
func (c *Coordinator) DatabaseConfig(name string, t model.DBType) model.DBConfig {
	out := model.DBConfig{
		Name:        name,
		AdminRoles:  model.TrimRoles(c.cfg.DefaultAdminRoles),
		MemberRoles: model.TrimRoles(c.cfg.DefaultMemberRoles),
	}
	if m, ok := c.cfg.Model(name); ok {
		out.Permissions = orEmpty(m.Permissions)
		out.DesignDocs = orEmpty(m.DesignDocs)
		out.Type = firstType(t, m.Type, model.DBTypePrivate)
		out.AdminRoles = model.UnionRoles(out.AdminRoles, m.AdminRoles)
		out.MemberRoles = model.UnionRoles(out.MemberRoles, m.MemberRoles)
	} else if d, ok := c.cfg.DefaultModel(); ok {
		out.Permissions = orEmpty(d.Permissions)
		out.DesignDocs = []string{}
		// The default design docs only apply to private databases.
		if t == "" || t == model.DBTypePrivate {
			out.DesignDocs = orEmpty(d.DesignDocs)
		}
		out.Type = firstType(t, model.DBTypePrivate)
	} else {
		out.Type = firstType(t, model.DBTypePrivate)
	}
	out.DeleteWithUser = c.cfg.DeleteWithUser(out.Type)
	return out
}

// DefaultPermissions resolves the permissions for a personal database entry that carries
// none of its own: the per-name model, then the _default model, then none.
func (c *Coordinator) DefaultPermissions(name string) []string {
	if m, ok := c.cfg.Model(name); ok && m.Permissions != nil {
		return m.Permissions
	}
	if d, ok := c.cfg.DefaultModel(); ok && d.Permissions != nil {
		return d.Permissions
	}
	return []string{}
}

// CreateDatabase creates name, reporting false when it already exists.
func (c *Coordinator) CreateDatabase(ctx context.Context, name string) (bool, error) {
	created, err := c.admin.CreateDatabase(ctx, name)
	if err != nil {
		return false, apperrors.Upstreamf(err, "cannot create database %s", name)
	}
	if created {
		c.logger.InfoContext(ctx, "created database", "db", name)
	}
	return created, nil
}

// RemoveDatabase destroys name.
func (c *Coordinator) RemoveDatabase(ctx context.Context, name string) error {
	c.logger.InfoContext(ctx, "deleting database", "db", name)
	if err := c.admin.DestroyDatabase(ctx, name); err != nil {
		if apperrors.IsNotFound(err) {
			return err
		}
		return apperrors.Upstreamf(err, "cannot delete database %s", name)
	}
	return nil
}

// ProvisionUserDatabase creates the user's physical database if needed, initializes its
// security roles, seeds the requested design documents, and authorizes the user's live
// session keys against it. It returns the physical name.
func (c *Coordinator) ProvisionUserDatabase(ctx context.Context, u *model.User, req ProvisionRequest) (string, error) {
	if req.DBName == "" {
		return "", apperrors.ValidationField("dbName", "database name is required")
	}
	final := c.PhysicalName(u.ID, req.DBName, req.Type)
	if _, err := c.CreateDatabase(ctx, final); err != nil {
		return "", err
	}
	db, err := c.admin.Open(ctx, final)
	if err != nil {
		return "", apperrors.Upstreamf(err, "cannot open database %s", final)
	}
	defer c.closeDB(ctx, db)

	if err := c.keys.InitSecurity(ctx, db, req.AdminRoles, req.MemberRoles); err != nil {
		return "", apperrors.Upstreamf(err, "cannot initialize security for %s", final)
	}
	if err := c.seedDesignDocs(ctx, db, req.DesignDocs); err != nil {
		return "", err
	}

	live := u.LiveSessionKeys(data.NowMillis(c.clock))
	if len(live) > 0 {
		authz := ports.Authorization{
			UserID:      u.ID,
			Keys:        live,
			Permissions: req.Permissions,
			Roles:       u.AllRoles(),
		}
		if err := c.keys.AuthorizeKeys(ctx, db, authz); err != nil {
			return "", apperrors.Upstreamf(err, "cannot authorize sessions for %s", final)
		}
	}
	return final, nil
}

func (c *Coordinator) seedDesignDocs(ctx context.Context, db core.Database, names []string) error {
	for _, name := range names {
		docs, err := c.designDocs.Load(ctx, name)
		if err != nil {
			if apperrors.IsNotFound(err) {
				c.logger.WarnContext(ctx, "failed to locate design doc", "design_doc", name, "db", db.Name())
				continue
			}
			return fmt.Errorf("load design doc %s: %w", name, err)
		}
		for _, doc := range docs {
			if err := db.PutDesignDoc(ctx, doc); err != nil {
				return apperrors.Upstreamf(err, "cannot seed %s into %s", doc.ID, db.Name())
			}
		}
	}
	return nil
}

// AuthorizeUserSessions authorizes keys against every personal database of userID, one
// database at a time, stopping at the first failure.
func (c *Coordinator) AuthorizeUserSessions(
	ctx context.Context,
	userID string,
	personalDBs map[string]model.PersonalDB,
	keys []string,
	roles []string,
) error {
	keys = core.UniqueKeys(keys)
	if len(keys) == 0 {
		return nil
	}
	for _, name := range sortedDBNames(personalDBs) {
		entry := personalDBs[name]
		perms := entry.Permissions
		if perms == nil {
			perms = c.DefaultPermissions(entry.Name)
		}
		authz := ports.Authorization{UserID: userID, Keys: keys, Permissions: perms, Roles: roles}
		if err := c.withDB(ctx, name, func(db core.Database) error {
			return c.keys.AuthorizeKeys(ctx, db, authz)
		}); err != nil {
			c.logger.ErrorContext(ctx, "cannot authorize sessions", "user_id", userID, "db", name, "error", err)
			return apperrors.Upstreamf(err, "cannot authorize sessions for %s", name)
		}
	}
	return nil
}

// DeauthorizeUser removes keys from every personal database of u. A nil keys slice means
// every session on the record. Databases that no longer exist are skipped.
func (c *Coordinator) DeauthorizeUser(ctx context.Context, u *model.User, keys []string) error {
	if keys == nil {
		keys = u.SessionKeys()
	}
	keys = core.UniqueKeys(keys)
	if len(keys) == 0 || len(u.PersonalDBs) == 0 {
		return nil
	}
	for _, name := range sortedDBNames(u.PersonalDBs) {
		err := c.withDB(ctx, name, func(db core.Database) error {
			return c.keys.DeauthorizeKeys(ctx, db, keys)
		})
		if err == nil {
			continue
		}
		if apperrors.IsNotFound(err) {
			c.logger.WarnContext(ctx, "personal database missing during deauthorize", "user_id", u.ID, "db", name)
			continue
		}
		c.logger.ErrorContext(ctx, "cannot deauthorize sessions", "user_id", u.ID, "db", name, "error", err)
		return apperrors.Upstreamf(err, "cannot deauthorize sessions for %s", name)
	}
	return nil
}

// RemoveExpiredKeys sweeps every session that expired before now: the keys leave the
// mirror and each owner's personal databases, then the owners' records are saved without
// them. Each owner is re-read before its keys are dropped, so a session refreshed after
// the snapshot survives; records changed while the sweep runs are skipped and picked up
// by the next one.
func (c *Coordinator) RemoveExpiredKeys(ctx context.Context) (SweepResult, error) {
	start := c.clock.Now()
	now := start.UnixMilli()
	rows, err := c.users.ExpiredSessions(ctx, now)
	if err != nil {
		return SweepResult{}, apperrors.Upstream(err, "cannot query expired sessions")
	}

	users := make(map[string]*model.User)
	keysByUser := make(map[string][]string)
	var order []string
	var expired []string
	for _, row := range rows {
		u, ok := users[row.UserID]
		if !ok {
			u, err = c.users.Get(ctx, row.UserID)
			switch {
			case apperrors.IsNotFound(err):
				u = nil
			case err != nil:
				return SweepResult{}, apperrors.Upstreamf(err, "cannot reload user %s", row.UserID)
			}
			users[row.UserID] = u
			order = append(order, row.UserID)
		}
		if u == nil {
			// Owner is gone; only the mirrored key is left to drop.
			expired = append(expired, row.Key)
			continue
		}
		entry, ok := u.Session[row.Key]
		if ok && !entry.Expired(now) {
			continue
		}
		delete(u.Session, row.Key)
		keysByUser[row.UserID] = append(keysByUser[row.UserID], row.Key)
		expired = append(expired, row.Key)
	}
	if len(expired) == 0 {
		return SweepResult{Duration: c.clock.Now().Sub(start)}, nil
	}

	if err := c.keys.RemoveKeys(ctx, expired); err != nil {
		return SweepResult{}, err
	}

	batch := make([]*model.User, 0, len(order))
	for _, id := range order {
		keys := keysByUser[id]
		if len(keys) == 0 {
			continue
		}
		if err := c.DeauthorizeUser(ctx, users[id], keys); err != nil {
			return SweepResult{}, err
		}
		batch = append(batch, users[id])
	}

	res := SweepResult{Keys: expired, Users: len(batch)}
	if len(batch) == 0 {
		res.Duration = c.clock.Now().Sub(start)
		return res, nil
	}
	results, err := c.users.BulkPut(ctx, batch)
	if err != nil {
		return SweepResult{}, apperrors.Upstream(err, "cannot save swept user records")
	}
	var errs []error
	for i, rerr := range results {
		if rerr == nil {
			continue
		}
		if apperrors.IsConflict(rerr) {
			res.Skipped++
			c.logger.WarnContext(ctx, "user record changed during sweep", "user_id", batch[i].ID)
			continue
		}
		errs = append(errs, fmt.Errorf("save %s: %w", batch[i].ID, rerr))
	}
	res.Duration = c.clock.Now().Sub(start)
	if len(errs) > 0 {
		return res, apperrors.Upstream(errors.Join(errs...), "cannot save swept user records")
	}
	return res, nil
}

func (c *Coordinator) withDB(ctx context.Context, name string, fn func(core.Database) error) error {
	db, err := c.admin.Open(ctx, name)
	if err != nil {
		return err
	}
	defer c.closeDB(ctx, db)
	return fn(db)
}

func (c *Coordinator) closeDB(ctx context.Context, db core.Database) {
	if err := db.Close(); err != nil {
		c.logger.DebugContext(ctx, "close database handle", "db", db.Name(), "error", err)
	}
}

func sortedDBNames(dbs map[string]model.PersonalDB) []string {
	names := make([]string, 0, len(dbs))
	for n := range dbs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func firstType(types ...model.DBType) model.DBType {
	for _, t := range types {
		if t != "" {
			return t
		}
	}
	return model.DBTypePrivate
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
