package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/target/docauth/internal/data/cryptoutil"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
)

const invalidCredentialsMessage = "Invalid username or password"

// HandleFailedLogin counts a failed password attempt against u and locks the account once
// the configured maximum is exceeded. It saves u and reports whether the account is now
// locked. Without a configured maximum it does nothing.
func (s *SessionService) HandleFailedLogin(ctx context.Context, u *model.User, rc domainauth.RequestContext) (bool, error) {
	if s.security.MaxFailedLogins <= 0 {
		return false, nil
	}
	if u.Local == nil {
		u.Local = &model.LocalAuth{}
	}
	u.Local.FailedLoginAttempts++
	if u.Local.FailedLoginAttempts > s.security.MaxFailedLogins {
		u.Local.FailedLoginAttempts = 0
		u.Local.LockedUntil = s.now() + s.security.LockoutTime.Milliseconds()
	}
	s.logActivity(u, "failed login", domainauth.ProviderLocal, rc)
	if err := s.users.Put(ctx, u); err != nil {
		return false, fmt.Errorf("record failed login for %s: %w", u.ID, err)
	}
	return u.Local.LockedUntil > s.now(), nil
}

// lockoutError describes the remaining lockout without revealing the threshold.
func (s *SessionService) lockoutError(lockedUntil int64) error {
	remaining := time.Duration(lockedUntil-s.now()) * time.Millisecond
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return apperrors.Unauthorized(fmt.Sprintf(
		"Maximum failed login attempts exceeded. Your account has been locked for %d minute(s).", minutes))
}

// Authenticate logs in with a username or email and password. Every credential failure
// answers with the same message.
func (s *SessionService) Authenticate(
	ctx context.Context,
	login, password string,
	rc domainauth.RequestContext,
) (*domainauth.Descriptor, error) {
	if login == "" || password == "" {
		return nil, apperrors.Unauthorized(invalidCredentialsMessage)
	}
	u, err := s.lookupLogin(ctx, login)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized(invalidCredentialsMessage)
		}
		return nil, err
	}
	if u.Local != nil && u.Local.LockedUntil > s.now() {
		return nil, s.lockoutError(u.Local.LockedUntil)
	}
	if !u.Local.HasPassword() {
		return nil, apperrors.Unauthorized(invalidCredentialsMessage)
	}
	hash := cryptoutil.PasswordHash{Salt: u.Local.Salt, DerivedKey: u.Local.DerivedKey, Iterations: u.Local.Iterations}
	if err := s.hasher.Verify(hash, password); err != nil {
		locked, ferr := s.HandleFailedLogin(ctx, u, rc)
		if ferr != nil {
			return nil, ferr
		}
		if locked {
			return nil, s.lockoutError(u.Local.LockedUntil)
		}
		return nil, apperrors.Unauthorized(invalidCredentialsMessage)
	}
	if s.local.RequireEmailConfirm && u.Email == "" {
		return nil, apperrors.Unauthorized("You must confirm your email address.")
	}
	return s.CreateSession(ctx, u.ID, domainauth.ProviderLocal, rc)
}

// lookupLogin finds the account a login names: by id for email-keyed accounts or
// email-like logins, falling back to the confirmed address, otherwise by username.
func (s *SessionService) lookupLogin(ctx context.Context, login string) (*model.User, error) {
	if !s.local.EmailUsername && !emailPattern.MatchString(login) {
		return s.users.FindByUsername(ctx, login)
	}
	u, err := s.users.FindByEmailUsername(ctx, login)
	if err == nil || s.local.EmailUsername || !apperrors.IsNotFound(err) {
		return u, err
	}
	return s.users.FindByEmail(ctx, login)
}
