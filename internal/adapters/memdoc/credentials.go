package memdoc

import (
	"context"
	"sort"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	"github.com/target/docauth/internal/errors"
)

// CredentialRepo implements core.CredentialRepository over a Store.
type CredentialRepo struct {
	s *Store
}

var _ core.CredentialRepository = (*CredentialRepo)(nil)

// Get returns a copy of the credential record.
func (r *CredentialRepo) Get(_ context.Context, id string) (*model.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.creds[id]
	if !ok {
		return nil, errors.NotFoundf("credential %q not found", id)
	}
	return clone(c), nil
}

// Put creates the record when Rev is zero, otherwise replaces it at the current revision.
func (r *CredentialRepo) Put(_ context.Context, c *model.Credential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.creds[c.ID]
	switch {
	case c.Rev == 0 && ok:
		return errors.Conflict("document update conflict")
	case c.Rev != 0 && (!ok || cur.Rev != c.Rev):
		return errors.Conflict("document update conflict")
	}
	c.Rev++
	r.s.creds[c.ID] = clone(c)
	return nil
}

// DeleteMany removes the given ids and returns how many existed.
func (r *CredentialRepo) DeleteMany(_ context.Context, ids []string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, id := range core.UniqueKeys(ids) {
		if _, ok := r.s.creds[id]; ok {
			delete(r.s.creds, id)
			n++
		}
	}
	return n, nil
}

// ListExpired returns records with Expires before the cutoff, ordered by expiry.
func (r *CredentialRepo) ListExpired(_ context.Context, before int64) ([]*model.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Credential
	for _, c := range r.s.creds {
		if c.Expires < before {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Expires != out[j].Expires {
			return out[i].Expires < out[j].Expires
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
