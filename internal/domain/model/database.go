//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"fmt"
	"slices"
)

// DBType distinguishes per-user databases from databases shared between users.
type DBType string

const (
	DBTypePrivate DBType = "private"
	DBTypeShared  DBType = "shared"
)

// Valid reports whether t is a known database type.
func (t DBType) Valid() bool {
	return t == DBTypePrivate || t == DBTypeShared
}

// UnmarshalText implements encoding.TextUnmarshaler for config parsing.
func (t *DBType) UnmarshalText(text []byte) error {
	v := DBType(text)
	if v == "" {
		v = DBTypePrivate
	}
	if !v.Valid() {
		return fmt.Errorf("invalid database type %q (expected private or shared)", string(text))
	}
	*t = v
	return nil
}

// PersonalDB describes one database the user owns, keyed by physical name on the user record.
// Permissions is only stored when explicitly set; otherwise the configured model applies.
type PersonalDB struct {
	Name           string   `json:"name"                  bson:"name"`
	Type           DBType   `json:"type"                  bson:"type"`
	Permissions    []string `json:"permissions,omitempty" bson:"permissions,omitempty"`
	DeleteWithUser bool     `json:"deleteWithUser"        bson:"deleteWithUser"`
}

// Equal compares two entries field by field.
func (p PersonalDB) Equal(o PersonalDB) bool {
	return p.Name == o.Name && p.Type == o.Type && p.DeleteWithUser == o.DeleteWithUser &&
		slices.Equal(p.Permissions, o.Permissions)
}

// DBConfig is the resolved provisioning configuration for one logical database.
type DBConfig struct {
	Name           string
	Type           DBType
	AdminRoles     []string
	MemberRoles    []string
	Permissions    []string
	DesignDocs     []string
	DeleteWithUser bool
}

// Principals is one half of a security document.
type Principals struct {
	Names []string `json:"names" bson:"names"`
	Roles []string `json:"roles" bson:"roles"`
}

// SecurityDoc is a database's access-control document. Cloudant carries the managed
// provider's per-key permission lists.
type SecurityDoc struct {
	Admins   Principals          `json:"admins"             bson:"admins"`
	Members  Principals          `json:"members"            bson:"members"`
	Cloudant map[string][]string `json:"cloudant,omitempty" bson:"cloudant,omitempty"`
}

// AddMemberNames adds names to the member allow-list, skipping ones already present.
// It reports whether the list changed.
func (s *SecurityDoc) AddMemberNames(names ...string) bool {
	changed := false
	for _, n := range names {
		if n == "" || slices.Contains(s.Members.Names, n) {
			continue
		}
		s.Members.Names = append(s.Members.Names, n)
		changed = true
	}
	return changed
}

// RemoveMemberNames removes names from the member allow-list. It reports whether the list changed.
func (s *SecurityDoc) RemoveMemberNames(names ...string) bool {
	before := len(s.Members.Names)
	s.Members.Names = slices.DeleteFunc(s.Members.Names, func(n string) bool {
		return slices.Contains(names, n)
	})
	return len(s.Members.Names) != before
}

// DesignDoc is a named schema/index document seeded into new databases.
type DesignDoc struct {
	ID   string         `json:"_id"  bson:"_id"`
	Body map[string]any `json:"body" bson:"body"`
}
