package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
)

// SocialAuth logs in through a federated provider, creating the account on first use.
// The returned record is saved; callers go on to create a session for it.
func (s *UserService) SocialAuth(
	ctx context.Context,
	login ports.FederatedLogin,
	rc domainauth.RequestContext,
) (*model.User, error) {
	provider := login.Provider
	if provider == "" || provider == domainauth.ProviderLocal {
		return nil, apperrors.ValidationField("provider", "a federated provider is required")
	}
	if login.Profile.ID == "" {
		return nil, apperrors.ValidationField("profile", "missing profile id from "+provider)
	}

	u, err := s.users.FindByProviderID(ctx, provider, strings.ToLower(login.Profile.ID))
	newAccount := false
	switch {
	case err == nil:
	case apperrors.IsNotFound(err):
		newAccount = true
		if u, err = s.newFederatedUser(ctx, login, rc); err != nil {
			s.logger.WarnContext(ctx, "federated signup rejected", "provider", provider, "error", err)
			return nil, err
		}
	default:
		return nil, err
	}

	if err := s.attachProvider(u, login); err != nil {
		return nil, err
	}
	action := "login"
	if newAccount {
		action = "signup"
		if err := s.addDefaultDBs(ctx, u); err != nil {
			return nil, err
		}
	}
	s.logActivity(u, action, provider, rc)
	if err := s.runHooks(ctx, newAccount, u, provider); err != nil {
		return nil, err
	}

	if !newAccount {
		if err := s.save(ctx, u, "federated login"); err != nil {
			return nil, err
		}
		return u, nil
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %s: %w", u.ID, err)
	}
	s.logger.InfoContext(ctx, "user registered", "user_id", u.ID, "provider", provider)
	s.events.Publish(ctx, ports.Event{Name: ports.EventSignup, UserID: u.ID, Provider: provider})
	return u, nil
}

// newFederatedUser builds, but does not save, the account for a first federated login.
func (s *UserService) newFederatedUser(
	ctx context.Context,
	login ports.FederatedLogin,
	rc domainauth.RequestContext,
) (*model.User, error) {
	provider := login.Provider
	profile := login.Profile
	pc, _ := s.providers.Get(provider)

	u := &model.User{
		Type:      model.UserDocType,
		Email:     normalizeEmail(profile.PrimaryEmail()),
		Roles:     model.UnionRoles(s.security.DefaultRoles, pc.DefaultRoles),
		Providers: []string{provider},
		SignUp:    &model.SignUp{Provider: provider, Timestamp: s.clock.Now().UTC(), IP: rc.IP},
	}
	emailInUse := apperrors.ConflictField("email",
		"Your email is already in use. Try signing in first and then linking this account.")

	if pc.EmailUsername {
		if u.Email == "" && emailPattern.MatchString(profile.Username) {
			u.Email = normalizeEmail(profile.Username)
		}
		if u.Email == "" {
			return nil, apperrors.ValidationField("email",
				"An email is required for registration, but "+provider+" didn't supply one.")
		}
		if err := s.ensureAvailable(ctx, "email", u.Email, s.users.FindByEmailUsername); err != nil {
			if apperrors.IsConflict(err) {
				return nil, emailInUse
			}
			return nil, err
		}
		u.ID = u.Email
		return u, nil
	}

	if u.Email != "" {
		if err := s.ensureAvailable(ctx, "email", u.Email, s.users.FindByEmail); err != nil {
			if apperrors.IsConflict(err) {
				return nil, emailInUse
			}
			return nil, err
		}
	}
	id, err := s.generateUsername(ctx, baseUsername(profile, u.Email), pc.ErrorOnDuplicate)
	if err != nil {
		return nil, err
	}
	u.ID = id
	return u, nil
}

// baseUsername derives a username candidate from a provider profile: its username, the
// local part of the email, the display name without whitespace, then the profile id.
func baseUsername(profile domainauth.Identity, email string) string {
	switch {
	case profile.Username != "":
		return strings.ToLower(profile.Username)
	case email != "":
		local, _, _ := strings.Cut(email, "@")
		return strings.ToLower(local)
	case profile.DisplayName != "":
		return strings.ToLower(strings.Join(strings.Fields(profile.DisplayName), ""))
	default:
		return strings.ToLower(profile.ID)
	}
}

// generateUsername returns base if it is free, otherwise base with the lowest numeric
// suffix that is. With errorOnDuplicate a taken base is a conflict instead.
func (s *UserService) generateUsername(ctx context.Context, base string, errorOnDuplicate bool) (string, error) {
	base = strings.ToLower(base)
	ids, err := s.users.ListIDsWithPrefix(ctx, base)
	if err != nil {
		return "", fmt.Errorf("list usernames with prefix %q: %w", base, err)
	}
	if !slices.Contains(ids, base) {
		return base, nil
	}
	if errorOnDuplicate {
		return "", apperrors.ConflictField("username", "account name already exists: "+base)
	}
	for n := 1; ; n++ {
		candidate := base + strconv.Itoa(n)
		if !slices.Contains(ids, candidate) {
			return candidate, nil
		}
	}
}

// attachProvider stores the provider's sub-record on u with its tokens sealed.
func (s *UserService) attachProvider(u *model.User, login ports.FederatedLogin) error {
	access, err := s.sealer.Seal(login.Credentials.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(login.Credentials.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	if u.Federated == nil {
		u.Federated = make(map[string]model.ProviderRecord)
	}
	u.Federated[login.Provider] = model.ProviderRecord{
		Auth:    domainauth.Credentials{AccessToken: access, RefreshToken: refresh},
		Profile: login.Profile,
	}
	u.AddProvider(login.Provider)
	if u.Name == "" {
		u.Name = login.Profile.DisplayName
	}
	return nil
}

// ProviderCredentials returns the unsealed tokens stored for provider on u.
func (s *UserService) ProviderCredentials(u *model.User, provider string) (domainauth.Credentials, error) {
	rec, ok := u.Federated[provider]
	if !ok {
		return domainauth.Credentials{}, apperrors.NotFoundf("provider %s is not linked", provider)
	}
	access, err := s.sealer.Open(rec.Auth.AccessToken)
	if err != nil {
		return domainauth.Credentials{}, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := s.sealer.Open(rec.Auth.RefreshToken)
	if err != nil {
		return domainauth.Credentials{}, fmt.Errorf("open refresh token: %w", err)
	}
	return domainauth.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// LinkSocial links a federated profile to an existing account. The profile must not
// belong to another account, the account must not hold a different profile of the same
// provider, and the profile's email must not be used by another account.
func (s *UserService) LinkSocial(
	ctx context.Context,
	userID string,
	login ports.FederatedLogin,
	rc domainauth.RequestContext,
) (*model.User, error) {
	provider := login.Provider
	if provider == "" || provider == domainauth.ProviderLocal {
		return nil, apperrors.ValidationField("provider", "a federated provider is required")
	}
	if login.Profile.ID == "" {
		return nil, apperrors.ValidationField("profile", "missing profile id from "+provider)
	}
	pc, _ := s.providers.Get(provider)

	owner, err := s.users.FindByProviderID(ctx, provider, strings.ToLower(login.Profile.ID))
	switch {
	case err == nil && owner.ID != userID:
		return nil, apperrors.ConflictField("provider",
			"This "+provider+" profile is already in use by another account.")
	case err != nil && !apperrors.IsNotFound(err):
		return nil, err
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec, ok := u.Federated[provider]; ok && !strings.EqualFold(rec.Profile.ID, login.Profile.ID) {
		return nil, apperrors.ConflictField("provider",
			"Your account is already linked with another "+provider+" profile.")
	}

	if email := normalizeEmail(login.Profile.PrimaryEmail()); email != "" {
		lookup := s.users.FindByEmail
		if pc.EmailUsername {
			lookup = s.users.FindByEmailUsername
		}
		other, err := lookup(ctx, email)
		switch {
		case err == nil && other.ID != userID:
			return nil, apperrors.ConflictField("email",
				"The email "+email+" is already in use by another account.")
		case err != nil && !apperrors.IsNotFound(err):
			return nil, err
		}
	}

	if err := s.attachProvider(u, login); err != nil {
		return nil, err
	}
	s.logActivity(u, "link", provider, rc)
	if err := s.runHooks(ctx, false, u, provider); err != nil {
		return nil, err
	}
	if err := s.save(ctx, u, "link provider"); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventAccountLinked, UserID: u.ID, Provider: provider})
	return u, nil
}

// Unlink removes a federated provider from an account. The local provider and an
// account's only way to log in cannot be unlinked.
func (s *UserService) Unlink(ctx context.Context, userID, provider string) (*model.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if provider == "" {
		return nil, apperrors.ValidationField("provider", "You must specify a provider to unlink.")
	}
	if !u.Local.HasPassword() && len(u.Providers) < 2 {
		return nil, apperrors.ValidationField("provider", "You can't unlink your only provider!")
	}
	if provider == domainauth.ProviderLocal {
		return nil, apperrors.ValidationField("provider", "You can't unlink local.")
	}
	if _, ok := u.Federated[provider]; !ok {
		return nil, apperrors.NotFoundf("Provider: %s not found.", capitalize(provider))
	}
	u.RemoveProvider(provider)
	if err := s.save(ctx, u, "unlink provider"); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventAccountUnlinked, UserID: u.ID, Provider: provider})
	return u, nil
}
