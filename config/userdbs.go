package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/target/docauth/internal/domain/model"
)

// DefaultModelName is the model entry applied to databases without their own entry.
const DefaultModelName = "_default"

// DBModel is the provisioning template for one logical database name.
// Nil slices mean "not set"; an explicit empty list overrides a fallback.
type DBModel struct {
	Type        model.DBType `json:"type,omitempty"`
	Permissions []string     `json:"permissions,omitempty"`
	DesignDocs  []string     `json:"designDocs,omitempty"`
	AdminRoles  []string     `json:"adminRoles,omitempty"`
	MemberRoles []string     `json:"memberRoles,omitempty"`
}

// DBModels maps logical database names to templates. It is parsed from a JSON object,
// e.g. {"_default":{"permissions":["_reader"]},"notes":{"designDocs":["notes"]}}.
type DBModels map[string]DBModel

// UnmarshalText implements encoding.TextUnmarshaler for DBModels.
func (m *DBModels) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*m = DBModels{}
		return nil
	}
	var out map[string]DBModel
	if err := json.Unmarshal(text, &out); err != nil {
		return fmt.Errorf("invalid database models JSON: %w", err)
	}
	for name, mdl := range out {
		if mdl.Type != "" && !mdl.Type.Valid() {
			return fmt.Errorf("database model %q: invalid type %q", name, mdl.Type)
		}
	}
	*m = out
	return nil
}

// UserDBsConfig controls which personal databases users get and how they are secured.
type UserDBsConfig struct {
	// DefaultPrivate databases are created per user on registration.
	DefaultPrivate []string `env:"DEFAULT_PRIVATE" envSeparator:","`
	// DefaultShared databases are joined by every new user.
	DefaultShared []string `env:"DEFAULT_SHARED" envSeparator:","`
	// PrivatePrefix is prepended (with an underscore) to private database names.
	PrivatePrefix string `env:"PRIVATE_PREFIX"`
	// DefaultAdminRoles and DefaultMemberRoles seed every database's security document.
	DefaultAdminRoles  []string `env:"DEFAULT_ADMIN_ROLES"  envSeparator:","`
	DefaultMemberRoles []string `env:"DEFAULT_MEMBER_ROLES" envSeparator:","`
	// Models holds per-database templates as JSON.
	Models DBModels `env:"MODELS"`
	// DeletePrivateWithUser and DeleteSharedWithUser destroy databases when their owner is deleted.
	DeletePrivateWithUser bool `env:"DELETE_PRIVATE_WITH_USER" envDefault:"false"`
	DeleteSharedWithUser  bool `env:"DELETE_SHARED_WITH_USER"  envDefault:"false"`
	// DesignDocDir holds <name>.json design documents referenced by models.
	DesignDocDir string `env:"DESIGN_DOC_DIR" envDefault:"./designdocs"`
}

// Sanitize applies guardrails to personal database values.
func (u *UserDBsConfig) Sanitize() {
	u.DefaultPrivate = model.TrimRoles(trimAll(u.DefaultPrivate))
	u.DefaultShared = model.TrimRoles(trimAll(u.DefaultShared))
	u.PrivatePrefix = strings.TrimSpace(u.PrivatePrefix)
	if u.Models == nil {
		u.Models = DBModels{}
	}
}

// Model returns the template configured for name, without falling back to the default.
func (u *UserDBsConfig) Model(name string) (DBModel, bool) {
	m, ok := u.Models[name]
	return m, ok
}

// DefaultModel returns the "_default" template.
func (u *UserDBsConfig) DefaultModel() (DBModel, bool) {
	return u.Model(DefaultModelName)
}

// DeleteWithUser reports whether databases of type t are destroyed with their owner.
func (u *UserDBsConfig) DeleteWithUser(t model.DBType) bool {
	switch t {
	case model.DBTypePrivate:
		return u.DeletePrivateWithUser
	case model.DBTypeShared:
		return u.DeleteSharedWithUser
	default:
		return false
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
