package config

import "time"

// SecurityConfig controls session lifetimes, lockout and the activity log.
type SecurityConfig struct {
	// SessionLife is how long a session stays valid without a refresh.
	SessionLife time.Duration `env:"SESSION_LIFE" envDefault:"24h"`
	// SessionMaxLife is the hard ceiling a refresh cannot extend. Zero disables it.
	SessionMaxLife time.Duration `env:"SESSION_MAX_LIFE" envDefault:"0s"`
	// TokenLife bounds password reset tokens.
	TokenLife time.Duration `env:"TOKEN_LIFE" envDefault:"24h"`
	// MaxFailedLogins locks the account once exceeded. Zero disables lockout.
	MaxFailedLogins int `env:"MAX_FAILED_LOGINS" envDefault:"0"`
	// LockoutTime is how long a locked account stays locked.
	LockoutTime time.Duration `env:"LOCKOUT_TIME" envDefault:"10m"`
	// ActivityLogSize caps the per-user activity log. Zero disables the log.
	ActivityLogSize int `env:"ACTIVITY_LOG_SIZE" envDefault:"10"`
	// DefaultRoles are granted to every new account.
	DefaultRoles []string `env:"DEFAULT_ROLES" envDefault:"user" envSeparator:","`
	// PasswordIterations is the PBKDF2 iteration count for new hashes.
	PasswordIterations int `env:"PASSWORD_ITERATIONS" envDefault:"10"`
}

// Sanitize applies guardrails to security configuration values.
func (s *SecurityConfig) Sanitize() {
	if s.SessionLife < time.Second {
		s.SessionLife = 24 * time.Hour
	}
	if s.SessionMaxLife < 0 {
		s.SessionMaxLife = 0
	}
	if s.TokenLife < time.Minute {
		s.TokenLife = 24 * time.Hour
	}
	if s.MaxFailedLogins < 0 {
		s.MaxFailedLogins = 0
	}
	if s.LockoutTime < 0 {
		s.LockoutTime = 0
	}
	if s.ActivityLogSize < 0 {
		s.ActivityLogSize = 0
	}
	if s.PasswordIterations < 1 {
		s.PasswordIterations = 10
	}
}

// LocalConfig controls local (username/password) registration.
type LocalConfig struct {
	// EmailUsername keys accounts by email address instead of a separate username.
	EmailUsername bool `env:"EMAIL_USERNAME" envDefault:"false"`
	// SendConfirmEmail holds new addresses as unverified until confirmed.
	SendConfirmEmail bool `env:"SEND_CONFIRM_EMAIL" envDefault:"false"`
	// RequireEmailConfirm refuses local logins until the address is confirmed.
	RequireEmailConfirm bool `env:"REQUIRE_EMAIL_CONFIRM" envDefault:"false"`
	// TokenLength is the length of emailed one-time codes.
	TokenLength int `env:"TOKEN_LENGTH" envDefault:"8"`
	// PasswordMinLength is the minimum accepted password length.
	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"6"`
	// DefaultRoles are granted to accounts registered locally.
	DefaultRoles []string `env:"DEFAULT_ROLES" envSeparator:","`
}

// Sanitize applies guardrails to local registration values.
func (l *LocalConfig) Sanitize() {
	if l.TokenLength < 4 {
		l.TokenLength = 8
	}
	if l.PasswordMinLength < 1 {
		l.PasswordMinLength = 6
	}
}
