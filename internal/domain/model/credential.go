//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import "strings"

const (
	// CredentialIDPrefix namespaces session keys in the credentials database.
	CredentialIDPrefix = "org.couchdb.user:"
	// OwnerRolePrefix marks the role that names the owning user. It is always roles[0] of a
	// credential record so the owner can be recovered from roles alone.
	OwnerRolePrefix = "user:"
)

// Credential is the credentials-mirror record for one session key. The database uses it as
// its native authentication source. The password is stored hashed.
type Credential struct {
	ID         string   `json:"_id"            bson:"_id"`
	Rev        int64    `json:"_rev,omitempty" bson:"_rev"`
	Type       string   `json:"type"           bson:"type"`
	Name       string   `json:"name"           bson:"name"`
	UserID     string   `json:"user_id"        bson:"user_id"`
	Salt       string   `json:"salt"           bson:"salt"`
	DerivedKey string   `json:"derived_key"    bson:"derived_key"`
	Iterations int      `json:"iterations"     bson:"iterations"`
	Expires    int64    `json:"expires"        bson:"expires"`
	Refreshed  int64    `json:"refreshed"      bson:"refreshed"`
	Roles      []string `json:"roles"          bson:"roles"`
}

// CredentialID returns the credentials-database id for a session key.
func CredentialID(key string) string {
	return CredentialIDPrefix + key
}

// OwnerRole returns the marker role naming userID.
func OwnerRole(userID string) string {
	return OwnerRolePrefix + userID
}

// WithOwnerRole returns roles with the owner marker at position zero and any other owner
// markers removed.
func WithOwnerRole(userID string, roles []string) []string {
	out := make([]string, 0, len(roles)+1)
	out = append(out, OwnerRole(userID))
	for _, r := range roles {
		if strings.HasPrefix(r, OwnerRolePrefix) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// OwnerFromRoles recovers the owning user from a credential's role list.
func OwnerFromRoles(roles []string) (string, bool) {
	if len(roles) == 0 || !strings.HasPrefix(roles[0], OwnerRolePrefix) {
		return "", false
	}
	return strings.TrimPrefix(roles[0], OwnerRolePrefix), true
}
