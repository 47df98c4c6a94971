package couchdb

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"reflect"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
)

var (
	_ core.DatabaseAdmin = (*DatabaseAdmin)(nil)
	_ core.Database      = (*Database)(nil)
)

// DatabaseAdmin creates, opens and destroys databases on the server.
type DatabaseAdmin struct {
	c *Client
}

// NewDatabaseAdmin wraps a Client.
func NewDatabaseAdmin(c *Client) *DatabaseAdmin {
	return &DatabaseAdmin{c: c}
}

// CreateDatabase creates name. An existing database answers false without error.
func (a *DatabaseAdmin) CreateDatabase(ctx context.Context, name string) (bool, error) {
	_, err := a.c.Do(ctx, http.MethodPut, a.c.URL(name), nil, nil)
	if apperrors.IsConflict(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DestroyDatabase deletes name. A missing database is NotFound.
func (a *DatabaseAdmin) DestroyDatabase(ctx context.Context, name string) error {
	_, err := a.c.Do(ctx, http.MethodDelete, a.c.URL(name), nil, nil)
	return err
}

// Open checks that name exists and returns a handle to it.
func (a *DatabaseAdmin) Open(ctx context.Context, name string) (core.Database, error) {
	if _, err := a.c.Do(ctx, http.MethodHead, a.c.URL(name), nil, nil); err != nil {
		return nil, err
	}
	return &Database{c: a.c, name: name}, nil
}

// Database is a handle to one database. It holds no connection state.
type Database struct {
	c    *Client
	name string
}

// Name returns the physical database name.
func (d *Database) Name() string { return d.name }

// GetSecurity reads the _security document.
func (d *Database) GetSecurity(ctx context.Context) (*model.SecurityDoc, error) {
	var sec model.SecurityDoc
	if _, err := d.c.Do(ctx, http.MethodGet, d.c.URL(d.name, "_security"), nil, &sec); err != nil {
		return nil, err
	}
	return &sec, nil
}

// PutSecurity replaces the _security document.
func (d *Database) PutSecurity(ctx context.Context, sec *model.SecurityDoc) error {
	_, err := d.c.Do(ctx, http.MethodPut, d.c.URL(d.name, "_security"), sec, nil)
	return err
}

// PutDesignDoc writes doc unless the stored copy already has the same body.
func (d *Database) PutDesignDoc(ctx context.Context, doc model.DesignDoc) error {
	target := d.c.URL(d.name, doc.ID)

	var cur map[string]any
	_, err := d.c.Do(ctx, http.MethodGet, target, nil, &cur)
	switch {
	case apperrors.IsNotFound(err):
		cur = nil
	case err != nil:
		return err
	}

	body := make(map[string]any, len(doc.Body)+2)
	maps.Copy(body, doc.Body)
	body["_id"] = doc.ID
	if cur != nil {
		rev := cur["_rev"]
		delete(cur, "_rev")
		if sameJSON(cur, body) {
			return nil
		}
		body["_rev"] = rev
	}
	_, err = d.c.Do(ctx, http.MethodPut, target, body, nil)
	return err
}

// Close is a no-op; handles hold no resources.
func (d *Database) Close() error { return nil }

// sameJSON compares two documents after a JSON round trip so numeric types agree.
func sameJSON(a, b map[string]any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v map[string]any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
