//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"sort"
	"strings"
	"time"

	"github.com/target/docauth/internal/domain/auth"
)

// UserDocType is the value of User.Type for account records.
const UserDocType = "user"

// User is the account record. ID is the normalized username or email and never changes.
// Rev is the optimistic-concurrency revision maintained by the document store; writes
// carrying a stale Rev fail with a conflict.
type User struct {
	ID              string                    `json:"_id"                       bson:"_id"`
	Rev             int64                     `json:"_rev,omitempty"            bson:"_rev"`
	Type            string                    `json:"type"                      bson:"type"`
	Name            string                    `json:"name,omitempty"            bson:"name,omitempty"`
	Email           string                    `json:"email,omitempty"           bson:"email,omitempty"`
	UnverifiedEmail *UnverifiedEmail          `json:"unverifiedEmail,omitempty" bson:"unverifiedEmail,omitempty"`
	Roles           []string                  `json:"roles"                     bson:"roles"`
	LocalRoles      []string                  `json:"localRoles,omitempty"      bson:"localRoles,omitempty"`
	Providers       []string                  `json:"providers"                 bson:"providers"`
	Local           *LocalAuth                `json:"local,omitempty"           bson:"local,omitempty"`
	Federated       map[string]ProviderRecord `json:"federated,omitempty"       bson:"federated,omitempty"`
	Profile         map[string]any            `json:"profile,omitempty"         bson:"profile,omitempty"`
	Session         map[string]SessionEntry   `json:"session,omitempty"         bson:"session,omitempty"`
	PersonalDBs     map[string]PersonalDB     `json:"personalDBs,omitempty"     bson:"personalDBs,omitempty"`
	Activity        []Activity                `json:"activity,omitempty"        bson:"activity,omitempty"`
	ForgotPassword  *ForgotPassword           `json:"forgotPassword,omitempty"  bson:"forgotPassword,omitempty"`
	SignUp          *SignUp                   `json:"signUp,omitempty"          bson:"signUp,omitempty"`
}

// LocalAuth holds the password hash and lockout bookkeeping for the local provider.
type LocalAuth struct {
	Salt                string `json:"salt,omitempty"                bson:"salt,omitempty"`
	DerivedKey          string `json:"derived_key,omitempty"         bson:"derived_key,omitempty"`
	Iterations          int    `json:"iterations,omitempty"          bson:"iterations,omitempty"`
	FailedLoginAttempts int    `json:"failedLoginAttempts,omitempty" bson:"failedLoginAttempts,omitempty"`
	LockedUntil         int64  `json:"lockedUntil,omitempty"         bson:"lockedUntil,omitempty"`
}

// HasPassword reports whether a local credential is set.
func (l *LocalAuth) HasPassword() bool {
	return l != nil && l.Salt != "" && l.DerivedKey != ""
}

// ProviderRecord is the per-provider sub-record of a linked federated account.
type ProviderRecord struct {
	Auth    auth.Credentials `json:"auth"    bson:"auth"`
	Profile auth.Identity    `json:"profile" bson:"profile"`
}

// SessionEntry is the user record's view of one session. It never carries the password.
type SessionEntry struct {
	Issued    int64  `json:"issued"             bson:"issued"`
	Refreshed int64  `json:"refreshed"          bson:"refreshed"`
	Expires   int64  `json:"expires"            bson:"expires"`
	Ends      int64  `json:"ends"               bson:"ends"`
	Provider  string `json:"provider,omitempty" bson:"provider,omitempty"`
	IP        string `json:"ip,omitempty"       bson:"ip,omitempty"`
}

// Expired applies the session expiry rule at now (Unix ms).
func (s SessionEntry) Expired(now int64) bool {
	return auth.IsExpired(s.Expires, s.Ends, now)
}

// SessionEntryFromToken projects a token onto the user record's session shape.
func SessionEntryFromToken(t auth.Token, ip string) SessionEntry {
	return SessionEntry{
		Issued:    t.Issued,
		Refreshed: t.Refreshed,
		Expires:   t.Expires,
		Ends:      t.Ends,
		Provider:  t.Provider,
		IP:        ip,
	}
}

// Activity is one entry of the bounded, most-recent-first activity log.
type Activity struct {
	Timestamp time.Time `json:"timestamp"          bson:"timestamp"`
	Action    string    `json:"action"             bson:"action"`
	Provider  string    `json:"provider"           bson:"provider"`
	IP        string    `json:"ip,omitempty"       bson:"ip,omitempty"`
}

// UnverifiedEmail is a pending address awaiting confirmation.
type UnverifiedEmail struct {
	Email string `json:"email" bson:"email"`
	Token string `json:"token" bson:"token"`
}

// ForgotPassword is a pending password reset. Token is the SHA-256 hex of the emailed value.
type ForgotPassword struct {
	Token   string `json:"token"   bson:"token"`
	Issued  int64  `json:"issued"  bson:"issued"`
	Expires int64  `json:"expires" bson:"expires"`
}

// SignUp records how the account was created. It is set once.
type SignUp struct {
	Provider  string    `json:"provider"     bson:"provider"`
	Timestamp time.Time `json:"timestamp"    bson:"timestamp"`
	IP        string    `json:"ip,omitempty" bson:"ip,omitempty"`
}

// SessionKeys returns the user's session keys in sorted order.
func (u *User) SessionKeys() []string {
	keys := make([]string, 0, len(u.Session))
	for k := range u.Session {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExpiredSessionKeys returns the keys of sessions past their expiry at now (Unix ms).
func (u *User) ExpiredSessionKeys(now int64) []string {
	var keys []string
	for k, s := range u.Session {
		if s.Expired(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// LiveSessionKeys returns the keys of sessions not yet expired at now (Unix ms).
func (u *User) LiveSessionKeys(now int64) []string {
	var keys []string
	for k, s := range u.Session {
		if !s.Expired(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// HasProvider reports whether provider is linked to the account.
func (u *User) HasProvider(provider string) bool {
	for _, p := range u.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// AddProvider links provider if it is not linked yet.
func (u *User) AddProvider(provider string) {
	if !u.HasProvider(provider) {
		u.Providers = append(u.Providers, provider)
	}
}

// RemoveProvider unlinks provider and drops its sub-record.
func (u *User) RemoveProvider(provider string) {
	out := u.Providers[:0]
	for _, p := range u.Providers {
		if p != provider {
			out = append(out, p)
		}
	}
	u.Providers = out
	delete(u.Federated, provider)
}

// LogActivity prepends an entry and trims the log to limit entries. A limit of zero
// disables the log.
func (u *User) LogActivity(entry Activity, limit int) {
	if limit <= 0 {
		return
	}
	u.Activity = append([]Activity{entry}, u.Activity...)
	if len(u.Activity) > limit {
		u.Activity = u.Activity[:limit]
	}
}

// AllRoles derives the effective role set: the explicit roles, a provider.<name> role for
// every linked provider with a sub-record, each provider profile's roles, and the local
// roles. Blank entries and duplicates are dropped; roles with a leading underscore are
// reserved by the database and get an UNDERSCORE prefix.
func (u *User) AllRoles() []string {
	roles := TrimRoles(u.Roles)
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		seen[r] = struct{}{}
	}
	add := func(role string) {
		if role == "" {
			return
		}
		if strings.HasPrefix(role, "_") {
			role = "UNDERSCORE" + role
		}
		if _, ok := seen[role]; ok {
			return
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	for _, name := range u.Providers {
		if name == auth.ProviderLocal {
			if u.Local != nil {
				add("provider." + name)
			}
			continue
		}
		rec, ok := u.Federated[name]
		if !ok {
			continue
		}
		add("provider." + name)
		for _, r := range rec.Profile.Roles {
			add(r)
		}
	}
	for _, r := range u.LocalRoles {
		add(r)
	}
	return roles
}

// TrimRoles drops empty strings and duplicates while keeping first-seen order.
func TrimRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// UnionRoles concatenates role lists and trims the result.
func UnionRoles(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	return TrimRoles(all)
}

// RolesEqual compares two role lists position by position.
func RolesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
