package service

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
)

type revokeScope int

const (
	revokeAll revokeScope = iota
	revokeExpired
	revokeOthers
)

// revokeSessions removes the selected sessions of u from the token store, the key mirror
// and every personal database, then drops them from u.Session. u is not saved. The three
// removals run concurrently; u.Session is only changed once all of them succeeded.
func (s *SessionService) revokeSessions(
	ctx context.Context,
	u *model.User,
	scope revokeScope,
	current string,
) ([]string, error) {
	var keys []string
	switch scope {
	case revokeAll:
		keys = u.SessionKeys()
	case revokeOthers:
		keys = slices.DeleteFunc(u.SessionKeys(), func(k string) bool { return k == current })
	case revokeExpired:
		keys = u.ExpiredSessionKeys(s.now())
	}

	if len(keys) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return s.deleteTokens(gctx, keys) })
		g.Go(func() error { return s.access.RemoveKeys(gctx, keys) })
		g.Go(func() error { return s.access.DeauthorizeUser(gctx, u, keys) })
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if scope == revokeAll {
		u.Session = nil
		return keys, nil
	}
	for _, k := range keys {
		delete(u.Session, k)
	}
	return keys, nil
}

// findBySession resolves the owner of a session key. Unknown keys are Unauthorized.
func (s *SessionService) findBySession(ctx context.Context, key string) (*model.User, error) {
	u, err := s.users.FindBySessionKey(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized("session not found")
		}
		return nil, err
	}
	return u, nil
}

// LogoutSession revokes one session and any of the owner's sessions that have expired.
// The owner's record is only saved when its session set changed.
func (s *SessionService) LogoutSession(ctx context.Context, key string) (err error) {
	start := s.clock.Now()
	defer func() { s.observe("logout", "", start, err) }()

	u, err := s.findBySession(ctx, key)
	if err != nil {
		return err
	}
	before := len(u.Session)
	delete(u.Session, key)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.deleteTokens(gctx, []string{key}) })
	g.Go(func() error { return s.access.RemoveKeys(gctx, []string{key}) })
	g.Go(func() error { return s.access.DeauthorizeUser(gctx, u, []string{key}) })
	if err := g.Wait(); err != nil {
		return err
	}

	if _, err := s.revokeSessions(ctx, u, revokeExpired, ""); err != nil {
		return err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventLogout, UserID: u.ID})
	if len(u.Session) == before {
		return nil
	}
	if err := s.users.Put(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "cannot remove sessions from user record", "user_id", u.ID, "error", err)
		return fmt.Errorf("cannot remove sessions from user record %s: %w", u.ID, err)
	}
	return nil
}

// LogoutUser revokes every session of a user, identified either by id or by any of their
// session keys.
func (s *SessionService) LogoutUser(ctx context.Context, userID, key string) (err error) {
	start := s.clock.Now()
	defer func() { s.observe("logout_all", "", start, err) }()

	var u *model.User
	switch {
	case userID != "":
		u, err = s.users.Get(ctx, userID)
	case key != "":
		u, err = s.findBySession(ctx, key)
	default:
		return apperrors.Unauthorized("either user id or session key must be specified")
	}
	if err != nil {
		return err
	}
	if _, err := s.revokeSessions(ctx, u, revokeAll, ""); err != nil {
		return err
	}
	s.events.Publish(ctx, ports.Event{Name: ports.EventLogout, UserID: u.ID})
	s.events.Publish(ctx, ports.Event{Name: ports.EventLogoutAll, UserID: u.ID})
	if err := s.users.Put(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "cannot logout user", "user_id", u.ID, "error", err)
		return fmt.Errorf("cannot logout user %s: %w", u.ID, err)
	}
	return nil
}

// LogoutOthers revokes every session of the key's owner except key itself. It reports
// false when key names no live session.
func (s *SessionService) LogoutOthers(ctx context.Context, key string) (bool, error) {
	u, err := s.users.FindBySessionKey(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if _, ok := u.Session[key]; !ok {
		return false, nil
	}
	if _, err := s.revokeSessions(ctx, u, revokeOthers, key); err != nil {
		return false, err
	}
	if err := s.users.Put(ctx, u); err != nil {
		s.logger.ErrorContext(ctx, "cannot remove sessions from user record", "user_id", u.ID, "error", err)
		return false, fmt.Errorf("cannot remove sessions from user record %s: %w", u.ID, err)
	}
	return true, nil
}

// RevokeAll revokes every session on u without saving it. Callers that go on to modify
// or delete the record use it to fold revocation into their own write.
func (s *SessionService) RevokeAll(ctx context.Context, u *model.User) error {
	_, err := s.revokeSessions(ctx, u, revokeAll, "")
	return err
}
