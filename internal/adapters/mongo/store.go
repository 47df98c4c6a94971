// Package mongo is the MongoDB document store: user records, the credentials mirror, and
// the catalog of provisioned databases. Revisions are kept in the _rev field and enforced
// with compare-and-swap filters; deletions are streamed from a change stream with
// pre-images enabled.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/target/docauth/config"
)

// codeNamespaceExists is the server error returned when creating an existing collection.
const codeNamespaceExists = 48

// Store bundles the collections backing the repositories.
type Store struct {
	client  *mongo.Client
	owned   bool
	users   *mongo.Collection
	creds   *mongo.Collection
	catalog *mongo.Collection
	data    *mongo.Database
	logger  *slog.Logger
}

// StoreOptions configures a Store over an existing database handle.
type StoreOptions struct {
	Database *mongo.Database
	Config   config.MongoConfig
	Logger   *slog.Logger
}

// ClientOptions returns the driver options the store expects: embedded documents decode
// to maps so free-form profile fields keep their JSON shape.
func ClientOptions(uri string) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
}

// Connect dials MongoDB, verifies the connection, and prepares collections and indexes.
func Connect(ctx context.Context, cfg config.MongoConfig, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ClientOptions(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s, err := NewStore(StoreOptions{Database: client.Database(cfg.Database), Config: cfg, Logger: logger})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.owned = true
	if err := s.EnsureSchema(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing database. Close does not disconnect a borrowed client.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Database == nil {
		return nil, errors.New("database is required")
	}
	cfg := opts.Config
	if cfg.UsersCollection == "" {
		cfg.UsersCollection = "users"
	}
	if cfg.CredentialsCollection == "" {
		cfg.CredentialsCollection = "credentials"
	}
	if cfg.CatalogCollection == "" {
		cfg.CatalogCollection = "databases"
	}
	if cfg.DataDatabase == "" {
		cfg.DataDatabase = opts.Database.Name() + "_userdbs"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	db := opts.Database
	return &Store{
		client:  db.Client(),
		users:   db.Collection(cfg.UsersCollection),
		creds:   db.Collection(cfg.CredentialsCollection),
		catalog: db.Collection(cfg.CatalogCollection),
		data:    db.Client().Database(cfg.DataDatabase),
		logger:  logger.With("component", "mongo_store"),
	}, nil
}

// Users returns the user record repository.
func (s *Store) Users() *UserRepo { return &UserRepo{coll: s.users, logger: s.logger} }

// Credentials returns the credentials-mirror repository.
func (s *Store) Credentials() *CredentialRepo { return &CredentialRepo{coll: s.creds} }

// Databases returns the database administration surface.
func (s *Store) Databases() *DatabaseAdmin { return &DatabaseAdmin{catalog: s.catalog, data: s.data} }

// Close disconnects the client when the store dialed it.
func (s *Store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// EnsureSchema creates the collections and secondary indexes. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.ensureCollection(ctx, s.users); err != nil {
		return err
	}
	// Pre-images let the deletion feed see the record as it was before removal.
	enable := bson.D{
		{Key: "collMod", Value: s.users.Name()},
		{Key: "changeStreamPreAndPostImages", Value: bson.D{{Key: "enabled", Value: true}}},
	}
	if err := s.users.Database().RunCommand(ctx, enable).Err(); err != nil {
		s.logger.Warn("change stream pre-images unavailable; deletion watching disabled", "error", err)
	}

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "unverifiedEmail.email", Value: 1}}},
		{Keys: bson.D{{Key: "unverifiedEmail.token", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "forgotPassword.token", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "forgotPassword.expires", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	if _, err := s.users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("create user indexes: %w", mapError(err))
	}
	credIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "expires", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
	}
	if _, err := s.creds.Indexes().CreateMany(ctx, credIndexes); err != nil {
		return fmt.Errorf("create credential indexes: %w", mapError(err))
	}
	return nil
}

func (s *Store) ensureCollection(ctx context.Context, coll *mongo.Collection) error {
	err := coll.Database().CreateCollection(ctx, coll.Name())
	var cmdErr mongo.CommandError
	if err != nil && !(errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists) {
		return fmt.Errorf("create collection %s: %w", coll.Name(), mapError(err))
	}
	return nil
}
