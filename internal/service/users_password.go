package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/target/docauth/internal/data/cryptoutil"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
)

// ResetPasswordForm is the input for completing a password reset.
type ResetPasswordForm struct {
	Token           string
	Password        string
	ConfirmPassword string
}

// ChangePasswordForm is the input for a password change by the account holder.
type ChangePasswordForm struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// ForgotPassword starts a password reset for the account with the given email. The
// one-time token is mailed to the user and only its hash is kept on the record.
func (s *UserService) ForgotPassword(
	ctx context.Context,
	email string,
	rc domainauth.RequestContext,
) (*model.ForgotPassword, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.ValidationField("email", "Email not specified")
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("User not found")
		}
		return nil, err
	}
	token, err := cryptoutil.OneTimePassword(s.local.TokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}
	now := s.now()
	u.ForgotPassword = &model.ForgotPassword{
		Token:   cryptoutil.HashToken(token),
		Issued:  now,
		Expires: now + s.security.TokenLife.Milliseconds(),
	}
	s.logActivity(u, "forgot password", domainauth.ProviderLocal, rc)
	if err := s.save(ctx, u, "forgot password"); err != nil {
		return nil, err
	}

	to := u.Email
	if to == "" && u.UnverifiedEmail != nil {
		to = u.UnverifiedEmail.Email
	}
	vars := map[string]any{"user": u, "token": token, "lang": mailLang(rc)}
	if err := s.mailer.SendEmail(ctx, "forgotPassword", to, vars); err != nil {
		return nil, apperrors.Upstream(err, "cannot send password reset email")
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventForgotPassword, UserID: u.ID})
	fp := *u.ForgotPassword
	return &fp, nil
}

// ResetPassword sets a new password using a mailed reset token and logs the account out
// everywhere.
func (s *UserService) ResetPassword(
	ctx context.Context,
	form ResetPasswordForm,
	rc domainauth.RequestContext,
) (*model.User, error) {
	fe := fieldErrors{}
	if strings.TrimSpace(form.Token) == "" {
		fe.add("token", "Token can't be blank")
	}
	s.checkPassword(fe, "password", form.Password, "confirmPassword", form.ConfirmPassword)
	if err := fe.err(); err != nil {
		return nil, err
	}

	u, err := s.users.FindByPasswordResetToken(ctx, cryptoutil.HashToken(strings.TrimSpace(form.Token)))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ValidationField("token", "Invalid token")
		}
		return nil, err
	}
	if u.ForgotPassword == nil || u.ForgotPassword.Expires < s.now() {
		return nil, apperrors.ValidationField("token", "Token expired")
	}
	if err := s.setPassword(u, form.Password); err != nil {
		return nil, err
	}
	if err := s.sessions.RevokeAll(ctx, u); err != nil {
		return nil, err
	}
	u.ForgotPassword = nil
	s.logActivity(u, "reset password", domainauth.ProviderLocal, rc)
	if err := s.save(ctx, u, "reset password"); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventPasswordReset, UserID: u.ID})
	return u, nil
}

// ChangePasswordSecure changes the password of an authenticated user. The current
// password is required when one is set. Every other session of the caller is revoked.
func (s *UserService) ChangePasswordSecure(
	ctx context.Context,
	userID string,
	form ChangePasswordForm,
	rc domainauth.RequestContext,
) error {
	fe := fieldErrors{}
	s.checkPassword(fe, "newPassword", form.NewPassword, "confirmPassword", form.ConfirmPassword)
	if err := fe.err(); err != nil {
		return err
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.Local.HasPassword() {
		if form.CurrentPassword == "" {
			return apperrors.ValidationField("currentPassword",
				"You must supply your current password in order to change it.")
		}
		hash := cryptoutil.PasswordHash{Salt: u.Local.Salt, DerivedKey: u.Local.DerivedKey, Iterations: u.Local.Iterations}
		if err := s.hasher.Verify(hash, form.CurrentPassword); err != nil {
			return apperrors.ValidationField("currentPassword", "The current password you supplied is incorrect.")
		}
	}
	if err := s.changePassword(ctx, u, form.NewPassword, rc); err != nil {
		return err
	}
	if rc.SessionKey != "" {
		if _, err := s.sessions.LogoutOthers(ctx, rc.SessionKey); err != nil {
			return err
		}
	}
	return nil
}

// ChangePassword sets a new password without checking the old one.
func (s *UserService) ChangePassword(
	ctx context.Context,
	userID, newPassword string,
	rc domainauth.RequestContext,
) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NotFound("User not found")
		}
		return err
	}
	return s.changePassword(ctx, u, newPassword, rc)
}

func (s *UserService) changePassword(ctx context.Context, u *model.User, password string, rc domainauth.RequestContext) error {
	if err := s.setPassword(u, password); err != nil {
		return err
	}
	s.logActivity(u, "changed password", domainauth.ProviderLocal, rc)
	if err := s.save(ctx, u, "change password"); err != nil {
		return err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventPasswordChange, UserID: u.ID})
	return nil
}

// VerifyEmail confirms the pending address carrying token.
func (s *UserService) VerifyEmail(ctx context.Context, token string, rc domainauth.RequestContext) (*model.User, error) {
	if token == "" {
		return nil, apperrors.ValidationField("token", "Invalid token")
	}
	u, err := s.users.FindByVerifyEmailToken(ctx, token)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ValidationField("token", "Invalid token")
		}
		return nil, err
	}
	u.Email = u.UnverifiedEmail.Email
	u.UnverifiedEmail = nil
	s.logActivity(u, "verified email", domainauth.ProviderLocal, rc)
	if err := s.save(ctx, u, "verify email"); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventEmailVerified, UserID: u.ID})
	return u, nil
}

// ChangeEmail replaces the account's address. With confirmation mail enabled the new
// address is held as unverified and a confirmation token is mailed to it.
func (s *UserService) ChangeEmail(
	ctx context.Context,
	userID, newEmail string,
	rc domainauth.RequestContext,
) (*model.User, error) {
	newEmail = normalizeEmail(newEmail)
	switch {
	case newEmail == "":
		return nil, apperrors.ValidationField("email", "Email can't be blank")
	case !emailPattern.MatchString(newEmail):
		return nil, apperrors.ValidationField("email", "Email invalid")
	}
	if err := s.ensureAvailable(ctx, "email", newEmail, s.users.FindByEmail); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.local.SendConfirmEmail {
		token, err := cryptoutil.OneTimePassword(s.local.TokenLength)
		if err != nil {
			return nil, fmt.Errorf("generate confirmation token: %w", err)
		}
		u.UnverifiedEmail = &model.UnverifiedEmail{Email: newEmail, Token: token}
		vars := map[string]any{"user": u, "token": token, "lang": mailLang(rc)}
		if err := s.mailer.SendEmail(ctx, "confirmEmail", newEmail, vars); err != nil {
			return nil, apperrors.Upstream(err, "cannot send confirmation email")
		}
	} else {
		u.Email = newEmail
	}

	provider := rc.Provider
	if provider == "" {
		provider = domainauth.ProviderLocal
	}
	s.logActivity(u, "changed email", provider, rc)
	if err := s.save(ctx, u, "change email"); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventEmailChanged, UserID: u.ID})
	return u, nil
}
