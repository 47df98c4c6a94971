package memdoc

import (
	"context"
	"reflect"
	"sort"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	"github.com/target/docauth/internal/errors"
)

type database struct {
	security   model.SecurityDoc
	designDocs map[string]model.DesignDoc
}

// DatabaseAdmin implements core.DatabaseAdmin over a Store.
type DatabaseAdmin struct {
	s *Store
}

var _ core.DatabaseAdmin = (*DatabaseAdmin)(nil)

// CreateDatabase returns false when the database already exists.
func (a *DatabaseAdmin) CreateDatabase(_ context.Context, name string) (bool, error) {
	if name == "" {
		return false, errors.ValidationField("name", "database name is required")
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.dbs[name]; ok {
		return false, nil
	}
	a.s.dbs[name] = &database{designDocs: make(map[string]model.DesignDoc)}
	return true, nil
}

// DestroyDatabase removes the database. A missing database is NotFound.
func (a *DatabaseAdmin) DestroyDatabase(_ context.Context, name string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.dbs[name]; !ok {
		return errors.NotFoundf("database %q not found", name)
	}
	delete(a.s.dbs, name)
	return nil
}

// Open returns a handle to an existing database.
func (a *DatabaseAdmin) Open(_ context.Context, name string) (core.Database, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	if _, ok := a.s.dbs[name]; !ok {
		return nil, errors.NotFoundf("database %q not found", name)
	}
	return &handle{s: a.s, name: name}, nil
}

// List returns the names of all databases, sorted.
func (a *DatabaseAdmin) List() []string {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	names := make([]string, 0, len(a.s.dbs))
	for n := range a.s.dbs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DesignDocIDs returns the ids of the design documents seeded into name, sorted.
func (a *DatabaseAdmin) DesignDocIDs(name string) []string {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	db, ok := a.s.dbs[name]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(db.designDocs))
	for id := range db.designDocs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type handle struct {
	s      *Store
	name   string
	closed bool
}

func (h *handle) Name() string { return h.name }

func (h *handle) lookup() (*database, error) {
	if h.closed {
		return nil, errors.Internalf("database handle %q is closed", h.name)
	}
	db, ok := h.s.dbs[h.name]
	if !ok {
		return nil, errors.NotFoundf("database %q not found", h.name)
	}
	return db, nil
}

func (h *handle) GetSecurity(_ context.Context) (*model.SecurityDoc, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	db, err := h.lookup()
	if err != nil {
		return nil, err
	}
	return clone(&db.security), nil
}

func (h *handle) PutSecurity(_ context.Context, sec *model.SecurityDoc) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	db, err := h.lookup()
	if err != nil {
		return err
	}
	db.security = *clone(sec)
	return nil
}

func (h *handle) PutDesignDoc(_ context.Context, doc model.DesignDoc) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	db, err := h.lookup()
	if err != nil {
		return err
	}
	if cur, ok := db.designDocs[doc.ID]; ok && reflect.DeepEqual(cur.Body, doc.Body) {
		return nil
	}
	db.designDocs[doc.ID] = *clone(&doc)
	return nil
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}
