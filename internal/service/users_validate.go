package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/idna"

	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
)

var (
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,6}$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]{3,16}$`)
)

// normalizeEmail trims and lower-cases an address and converts an internationalised
// domain to its ASCII form. Addresses that cannot be converted are returned lower-cased
// so format validation reports them.
func normalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return email
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return email
	}
	return local + "@" + ascii
}

// fieldErrors collects per-field validation messages.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperrors.ValidationFields(f)
}

// checkPassword validates a new password and its confirmation under the given field names.
func (s *UserService) checkPassword(fe fieldErrors, field, password, confirmField, confirm string) {
	switch {
	case password == "":
		fe.add(field, "Password can't be blank")
	case len(password) < s.local.PasswordMinLength:
		fe.add(field, fmt.Sprintf("Password must be at least %d characters", s.local.PasswordMinLength))
	case password != confirm:
		fe.add(field, "Password does not match "+confirmField)
	}
	if confirm == "" {
		fe.add(confirmField, "Confirm password can't be blank")
	}
}

// validateRegistration sanitizes form in place, then checks formats and availability.
// Format problems are reported together as a validation error; a taken username or
// email is a conflict on that field.
func (s *UserService) validateRegistration(ctx context.Context, form *RegistrationForm) error {
	form.Name = strings.TrimSpace(form.Name)
	form.Username = strings.ToLower(strings.TrimSpace(form.Username))
	form.Email = normalizeEmail(form.Email)

	fe := fieldErrors{}
	switch {
	case form.Email == "":
		fe.add("email", "Email can't be blank")
	case !emailPattern.MatchString(form.Email):
		fe.add("email", "Email invalid")
	}
	if !s.local.EmailUsername {
		switch {
		case form.Username == "":
			fe.add("username", "Username can't be blank")
		case !usernamePattern.MatchString(form.Username) && !emailPattern.MatchString(form.Username):
			fe.add("username", "Username invalid")
		}
	}
	s.checkPassword(fe, "password", form.Password, "confirmPassword", form.ConfirmPassword)
	if err := fe.err(); err != nil {
		return err
	}

	if s.local.EmailUsername {
		return s.ensureAvailable(ctx, "email", form.Email, s.users.FindByEmailUsername)
	}
	if err := s.ensureAvailable(ctx, "username", form.Username, s.users.FindByUsername); err != nil {
		return err
	}
	return s.ensureAvailable(ctx, "email", form.Email, s.users.FindByEmail)
}

// ensureAvailable reports a conflict on field when lookup finds an account for value.
func (s *UserService) ensureAvailable(
	ctx context.Context,
	field, value string,
	lookup func(context.Context, string) (*model.User, error),
) error {
	_, err := lookup(ctx, value)
	switch {
	case err == nil:
		return apperrors.ConflictField(field, capitalize(field)+" already in use")
	case apperrors.IsNotFound(err):
		return nil
	default:
		return err
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
