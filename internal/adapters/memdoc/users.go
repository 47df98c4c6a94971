package memdoc

import (
	"context"
	"sort"
	"strings"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	"github.com/target/docauth/internal/errors"
)

// UserRepo implements core.UserRepository over a Store.
type UserRepo struct {
	s *Store
}

var _ core.UserRepository = (*UserRepo)(nil)

func userNotFound(id string) error {
	return errors.NotFoundf("user %q not found", id)
}

// Get returns a copy of the record with the given id.
func (r *UserRepo) Get(_ context.Context, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, userNotFound(id)
	}
	return clone(u), nil
}

// Create inserts u at revision 1.
func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.ID]; ok {
		return errors.ConflictField("_id", "document already exists")
	}
	u.Rev = 1
	r.s.users[u.ID] = clone(u)
	return nil
}

// Put replaces the record when u.Rev matches and advances u.Rev.
func (r *UserRepo) Put(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.putLocked(u)
}

func (r *UserRepo) putLocked(u *model.User) error {
	cur, ok := r.s.users[u.ID]
	if !ok {
		// A revisioned write to a deleted document is a conflict, not a create.
		if u.Rev != 0 {
			return errors.Conflict("document update conflict")
		}
		u.Rev = 1
		r.s.users[u.ID] = clone(u)
		return nil
	}
	if cur.Rev != u.Rev {
		return errors.Conflict("document update conflict")
	}
	u.Rev++
	r.s.users[u.ID] = clone(u)
	return nil
}

// BulkPut writes each record independently.
func (r *UserRepo) BulkPut(_ context.Context, users []*model.User) ([]error, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	results := make([]error, len(users))
	for i, u := range users {
		results[i] = r.putLocked(u)
	}
	return results, nil
}

// Delete removes the record when u.Rev matches and notifies deletion watchers.
func (r *UserRepo) Delete(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.users[u.ID]
	if !ok {
		return userNotFound(u.ID)
	}
	if cur.Rev != u.Rev {
		return errors.Conflict("document update conflict")
	}
	delete(r.s.users, u.ID)
	r.s.publishDeleted(cur)
	return nil
}

func (r *UserRepo) findOne(match func(*model.User) bool, what string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]string, 0, len(r.s.users))
	for id := range r.s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if u := r.s.users[id]; match(u) {
			return clone(u), nil
		}
	}
	return nil, errors.NotFoundf("no user with %s", what)
}

// FindByUsername matches the record id.
func (r *UserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	key := strings.ToLower(username)
	return r.findOne(func(u *model.User) bool { return u.ID == key }, "that username")
}

// FindByEmail matches the confirmed or the pending address.
func (r *UserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	key := strings.ToLower(email)
	return r.findOne(func(u *model.User) bool {
		if strings.ToLower(u.Email) == key {
			return true
		}
		return u.UnverifiedEmail != nil && strings.ToLower(u.UnverifiedEmail.Email) == key
	}, "that email")
}

// FindByEmailUsername matches accounts keyed by email address.
func (r *UserRepo) FindByEmailUsername(_ context.Context, email string) (*model.User, error) {
	key := strings.ToLower(email)
	return r.findOne(func(u *model.User) bool { return u.ID == key }, "that email")
}

// FindByProviderID matches a linked provider profile id, ignoring case.
func (r *UserRepo) FindByProviderID(_ context.Context, provider, profileID string) (*model.User, error) {
	key := strings.ToLower(profileID)
	return r.findOne(func(u *model.User) bool {
		rec, ok := u.Federated[provider]
		return ok && strings.ToLower(rec.Profile.ID) == key
	}, "that "+provider+" profile")
}

// FindBySessionKey matches any session key on the record.
func (r *UserRepo) FindBySessionKey(_ context.Context, key string) (*model.User, error) {
	return r.findOne(func(u *model.User) bool {
		_, ok := u.Session[key]
		return ok
	}, "that session")
}

// FindByPasswordResetToken matches the hashed reset token.
func (r *UserRepo) FindByPasswordResetToken(_ context.Context, tokenHash string) (*model.User, error) {
	return r.findOne(func(u *model.User) bool {
		return u.ForgotPassword != nil && u.ForgotPassword.Token == tokenHash
	}, "that reset token")
}

// FindByVerifyEmailToken matches the pending email confirmation token.
func (r *UserRepo) FindByVerifyEmailToken(_ context.Context, token string) (*model.User, error) {
	return r.findOne(func(u *model.User) bool {
		return u.UnverifiedEmail != nil && u.UnverifiedEmail.Token == token
	}, "that verification token")
}

// ListIDsWithPrefix returns matching ids in sorted order.
func (r *UserRepo) ListIDsWithPrefix(_ context.Context, prefix string) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var ids []string
	for id := range r.s.users {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ExpiredSessions snapshots sessions with expires before the cutoff. Every row for the
// same user shares one copy of the record.
func (r *UserRepo) ExpiredSessions(_ context.Context, before int64) ([]core.ExpiredSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]string, 0, len(r.s.users))
	for id := range r.s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []core.ExpiredSession
	for _, id := range ids {
		u := r.s.users[id]
		var snapshot *model.User
		for _, key := range u.SessionKeys() {
			if u.Session[key].Expires >= before {
				continue
			}
			if snapshot == nil {
				snapshot = clone(u)
			}
			out = append(out, core.ExpiredSession{UserID: id, Key: key, User: snapshot})
		}
	}
	return out, nil
}

// ExpiredPasswordResets returns users whose reset token expired before the cutoff.
func (r *UserRepo) ExpiredPasswordResets(_ context.Context, before int64) ([]*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.User
	for _, u := range r.s.users {
		if u.ForgotPassword != nil && u.ForgotPassword.Expires < before {
			out = append(out, clone(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// WatchDeleted streams deleted records until ctx is done.
func (r *UserRepo) WatchDeleted(ctx context.Context) (<-chan *model.User, error) {
	return r.s.subscribe(ctx), nil
}
