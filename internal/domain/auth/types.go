// Package auth contains domain-level types for session tokens and federated identities.
// It is pure and free of framework/adapter concerns.
package auth

// Provider names with special meaning to the session engine.
const (
	ProviderLocal = "local"
)

// Token is the server-side session record kept in the TokenStore.
// Times are Unix milliseconds. Ends of zero means the session has no hard ceiling.
// Password is only populated while a token is being minted; the stored form carries
// Salt and DerivedKey instead.
type Token struct {
	UserID     string   `json:"_id"`
	Key        string   `json:"key"`
	Password   string   `json:"password,omitempty"`
	Salt       string   `json:"salt,omitempty"`
	DerivedKey string   `json:"derived_key,omitempty"`
	Iterations int      `json:"iterations,omitempty"`
	Issued     int64    `json:"issued"`
	Refreshed  int64    `json:"refreshed"`
	Expires    int64    `json:"expires"`
	Ends       int64    `json:"ends"`
	Roles      []string `json:"roles"`
	Provider   string   `json:"provider,omitempty"`
}

// Expired reports whether the token is past its effective expiry at now (Unix ms).
func (t Token) Expired(now int64) bool {
	return IsExpired(t.Expires, t.Ends, now)
}

// Descriptor converts the token into its public form, dropping secrets.
func (t Token) Descriptor() Descriptor {
	return Descriptor{
		Token:     t.Key,
		Issued:    t.Issued,
		Refreshed: t.Refreshed,
		Expires:   t.Expires,
		Ends:      t.Ends,
		UserID:    t.UserID,
		Roles:     append([]string(nil), t.Roles...),
		Provider:  t.Provider,
	}
}

// IsExpired applies the session expiry rule: when a hard ceiling is set the earlier of
// ends and expires applies, otherwise expires alone.
func IsExpired(expires, ends, now int64) bool {
	if ends > 0 {
		return min(ends, expires) < now
	}
	return expires < now
}

// Descriptor is the session shape returned to callers.
type Descriptor struct {
	Token     string            `json:"token"`
	Password  string            `json:"password,omitempty"`
	Issued    int64             `json:"issued"`
	Refreshed int64             `json:"refreshed"`
	Expires   int64             `json:"expires"`
	Ends      int64             `json:"ends"`
	UserID    string            `json:"user_id"`
	Roles     []string          `json:"roles"`
	Provider  string            `json:"provider,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserDBs   map[string]string `json:"userDBs,omitempty"`
	Profile   map[string]any    `json:"profile,omitempty"`
}

// RequestContext carries the request attributes the engine records.
// SessionKey is the caller's current session, when authenticated.
type RequestContext struct {
	IP         string
	SessionKey string
	Provider   string
	Lang       string
}

// Credentials are the tokens a federated provider issued for a user.
type Credentials struct {
	AccessToken  string `json:"accessToken,omitempty"  bson:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty" bson:"refreshToken,omitempty"`
}

// Identity represents the authenticated principal returned by a federated provider.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	ID          string   `json:"id"                    bson:"id"`
	Username    string   `json:"username,omitempty"    bson:"username,omitempty"`
	DisplayName string   `json:"displayName,omitempty" bson:"displayName,omitempty"`
	Emails      []string `json:"emails,omitempty"      bson:"emails,omitempty"`
	Roles       []string `json:"roles,omitempty"       bson:"roles,omitempty"`
}

// PrimaryEmail returns the first email the provider supplied, if any.
func (i Identity) PrimaryEmail() string {
	if len(i.Emails) == 0 {
		return ""
	}
	return i.Emails[0]
}
