package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
)

// catalogEntry records one provisioned database. Its documents live in a collection of
// the data database named by collectionName.
type catalogEntry struct {
	Name       string            `bson:"_id"`
	Security   model.SecurityDoc `bson:"security"`
	DesignDocs []storedDesignDoc `bson:"designDocs"`
	Created    time.Time         `bson:"created"`
}

// storedDesignDoc keeps the body as canonical JSON so the stored copy compares exactly.
type storedDesignDoc struct {
	ID   string `bson:"id"`
	Body string `bson:"body"`
}

// collectionName maps a database name onto a valid collection name; "$" is reserved.
func collectionName(name string) string {
	return strings.ReplaceAll(name, "$", "__")
}

// DatabaseAdmin implements core.DatabaseAdmin over the catalog collection.
type DatabaseAdmin struct {
	catalog *mongo.Collection
	data    *mongo.Database
}

var _ core.DatabaseAdmin = (*DatabaseAdmin)(nil)

// CreateDatabase registers name in the catalog and creates its data collection. It
// returns false when the database already exists.
func (a *DatabaseAdmin) CreateDatabase(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, apperrors.ValidationField("name", "database name is required")
	}
	entry := catalogEntry{
		Name: name,
		Security: model.SecurityDoc{
			Admins:  model.Principals{Names: []string{}, Roles: []string{}},
			Members: model.Principals{Names: []string{}, Roles: []string{}},
		},
		DesignDocs: []storedDesignDoc{},
		Created:    time.Now().UTC(),
	}
	if _, err := a.catalog.InsertOne(ctx, &entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("register database %s: %w", name, mapError(err))
	}
	err := a.data.CreateCollection(ctx, collectionName(name))
	var cmdErr mongo.CommandError
	if err != nil && !(errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists) {
		return false, fmt.Errorf("create database %s: %w", name, mapError(err))
	}
	return true, nil
}

// DestroyDatabase drops the data collection and the catalog entry. A missing database is NotFound.
func (a *DatabaseAdmin) DestroyDatabase(ctx context.Context, name string) error {
	res, err := a.catalog.DeleteOne(ctx, bson.D{{Key: "_id", Value: name}})
	if err != nil {
		return fmt.Errorf("unregister database %s: %w", name, mapError(err))
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFoundf("database %q not found", name)
	}
	if err := a.data.Collection(collectionName(name)).Drop(ctx); err != nil {
		return fmt.Errorf("drop database %s: %w", name, mapError(err))
	}
	return nil
}

// Open returns a handle to an existing database.
func (a *DatabaseAdmin) Open(ctx context.Context, name string) (core.Database, error) {
	n, err := a.catalog.CountDocuments(ctx, bson.D{{Key: "_id", Value: name}})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", name, mapError(err))
	}
	if n == 0 {
		return nil, apperrors.NotFoundf("database %q not found", name)
	}
	return &handle{catalog: a.catalog, name: name}, nil
}

// List returns the names of all databases, sorted.
func (a *DatabaseAdmin) List(ctx context.Context) ([]string, error) {
	opts := options.Find().SetSort(byID).SetProjection(bson.D{{Key: "_id", Value: 1}})
	cur, err := a.catalog.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", mapError(err))
	}
	var rows []struct {
		Name string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode databases: %w", mapError(err))
	}
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row.Name
	}
	return names, nil
}

type handle struct {
	catalog *mongo.Collection
	name    string
}

func (h *handle) Name() string { return h.name }

func (h *handle) load(ctx context.Context) (*catalogEntry, error) {
	var entry catalogEntry
	err := h.catalog.FindOne(ctx, bson.D{{Key: "_id", Value: h.name}}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFoundf("database %q not found", h.name)
	}
	if err != nil {
		return nil, fmt.Errorf("load database %s: %w", h.name, mapError(err))
	}
	return &entry, nil
}

func (h *handle) set(ctx context.Context, field string, value any) error {
	res, err := h.catalog.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: h.name}},
		bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: value}}}})
	if err != nil {
		return fmt.Errorf("update database %s: %w", h.name, mapError(err))
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFoundf("database %q not found", h.name)
	}
	return nil
}

func (h *handle) GetSecurity(ctx context.Context) (*model.SecurityDoc, error) {
	entry, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	return &entry.Security, nil
}

func (h *handle) PutSecurity(ctx context.Context, sec *model.SecurityDoc) error {
	return h.set(ctx, "security", sec)
}

func (h *handle) PutDesignDoc(ctx context.Context, doc model.DesignDoc) error {
	raw, err := json.Marshal(doc.Body)
	if err != nil {
		return apperrors.Validationf("design document %s: %v", doc.ID, err)
	}
	entry, err := h.load(ctx)
	if err != nil {
		return err
	}
	docs := entry.DesignDocs
	found := false
	for i := range docs {
		if docs[i].ID != doc.ID {
			continue
		}
		if docs[i].Body == string(raw) {
			return nil
		}
		docs[i].Body = string(raw)
		found = true
	}
	if !found {
		docs = append(docs, storedDesignDoc{ID: doc.ID, Body: string(raw)})
	}
	return h.set(ctx, "designDocs", docs)
}

// DesignDoc returns the stored body of a design document.
func (h *handle) DesignDoc(ctx context.Context, id string) (map[string]any, error) {
	entry, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range entry.DesignDocs {
		if d.ID == id {
			var body map[string]any
			if err := json.Unmarshal([]byte(d.Body), &body); err != nil {
				return nil, fmt.Errorf("decode design document %s: %w", id, err)
			}
			return body, nil
		}
	}
	return nil, apperrors.NotFoundf("design document %q not found", id)
}

func (h *handle) Close() error { return nil }
