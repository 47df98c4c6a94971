package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/adapters/cloudant"
	"github.com/target/docauth/internal/adapters/couchdb"
	"github.com/target/docauth/internal/adapters/mailer"
	"github.com/target/docauth/internal/adapters/memdoc"
	"github.com/target/docauth/internal/adapters/postgres"
	redisadapter "github.com/target/docauth/internal/adapters/redis"
	"github.com/target/docauth/internal/adapters/tokenstore"
	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
	"github.com/target/docauth/internal/data/cryptoutil"
	"github.com/target/docauth/internal/observability/statsd"
	"github.com/target/docauth/internal/ports"
	"github.com/target/docauth/internal/service"
	"github.com/target/docauth/internal/service/dbauth"
)

// DocStore groups the document store repositories one backend provides.
type DocStore struct {
	Users       core.UserRepository
	Credentials core.CredentialRepository
	Databases   core.DatabaseAdmin
}

// BuildDocStore returns the repositories of the configured document store backend.
func BuildDocStore(cfg *config.AppConfig, infra *Infrastructure) (*DocStore, error) {
	switch cfg.DocStore.Backend {
	case config.DocStoreMongo:
		if infra == nil || infra.Mongo == nil {
			return nil, errors.New("mongo document store is not connected")
		}
		return &DocStore{
			Users:       infra.Mongo.Users(),
			Credentials: infra.Mongo.Credentials(),
			Databases:   infra.Mongo.Databases(),
		}, nil
	case config.DocStoreMemory, "":
		store := memdoc.New()
		return &DocStore{
			Users:       store.Users(),
			Credentials: store.Credentials(),
			Databases:   store.Databases(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported document store backend %q", cfg.DocStore.Backend)
	}
}

// BuildTokenStore returns the configured token store. In-process backends are wrapped so
// that operations on one key never interleave.
//
//nolint:ireturn // the backend is selected at runtime.
func BuildTokenStore(cfg *config.AppConfig, infra *Infrastructure, clock data.TimeProvider) (core.TokenStore, error) {
	switch cfg.Session.Adapter {
	case config.TokenBackendMemory, "":
		return tokenstore.NewSerialized(tokenstore.NewMemoryStore(tokenstore.MemoryStoreOptions{TimeProvider: clock})), nil
	case config.TokenBackendFile:
		fs, err := tokenstore.NewFileStore(tokenstore.FileStoreOptions{Dir: cfg.Session.FilePath, TimeProvider: clock})
		if err != nil {
			return nil, err
		}
		return tokenstore.NewSerialized(fs), nil
	case config.TokenBackendRedis:
		if infra == nil || infra.Redis == nil {
			return nil, errors.New("redis token store is not connected")
		}
		return redisadapter.NewTokenStore(infra.Redis), nil
	case config.TokenBackendPostgres:
		if infra == nil || infra.DB == nil {
			return nil, errors.New("postgres token store is not connected")
		}
		return postgres.NewTokenStore(postgres.TokenStoreOptions{DB: infra.DB, TimeProvider: clock})
	default:
		return nil, fmt.Errorf("unsupported token store backend %q", cfg.Session.Adapter)
	}
}

// NewDBServerClient returns a client for the CouchDB-compatible server, or nil when
// databases are provisioned inside the document store.
func NewDBServerClient(cfg *config.DBServerConfig) (*couchdb.Client, error) {
	if cfg.Kind != config.DBServerCouch {
		return nil, nil //nolint:nilnil // no server client for the docstore kind
	}
	client, err := couchdb.NewClient(couchdb.Config{
		BaseURL:  cfg.Protocol + cfg.Host,
		User:     cfg.User,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("database server client: %w", err)
	}
	return client, nil
}

// BuildDatabaseAdmin returns the administration surface personal databases are
// provisioned through.
//
//nolint:ireturn // the backend is selected at runtime.
func BuildDatabaseAdmin(server *couchdb.Client, docs *DocStore) core.DatabaseAdmin {
	if server != nil {
		return couchdb.NewDatabaseAdmin(server)
	}
	return docs.Databases
}

// BuildKeyAdapter selects the key mirroring strategy.
//
//nolint:ireturn // the strategy is selected at runtime.
func BuildKeyAdapter(
	cfg *config.AppConfig,
	docs *DocStore,
	hasher *cryptoutil.PasswordHasher,
	logger *slog.Logger,
) (ports.SecurityKeyAdapter, error) {
	if cfg.DBServer.Managed {
		return dbauth.NewManagedAdapter(logger), nil
	}
	return dbauth.NewSelfManagedAdapter(dbauth.SelfManagedAdapterOptions{
		Credentials: docs.Credentials,
		Hasher:      hasher,
		Logger:      logger,
	})
}

// BuildKeyIssuer returns the hosted provider's issuer for managed servers and locally
// minted keys otherwise.
//
//nolint:ireturn // the issuer is selected at runtime.
func BuildKeyIssuer(cfg *config.DBServerConfig, server *couchdb.Client) (ports.KeyIssuer, error) {
	if !cfg.Managed {
		return service.RandomKeyIssuer{}, nil
	}
	if server == nil {
		return nil, errors.New("managed key issuance requires a couchdb database server")
	}
	return cloudant.NewKeyIssuer(server, cfg.APIKeyURL)
}

// BuildMailer returns the configured mail delivery backend.
//
//nolint:ireturn // the backend is selected at runtime.
func BuildMailer(cfg config.MailConfig, logger *slog.Logger) (ports.Mailer, error) {
	if cfg.Backend == config.MailBackendWebhook {
		return mailer.NewWebhookMailer(mailer.WebhookConfig{
			URL:        cfg.WebhookURL,
			From:       cfg.From,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
	}
	return mailer.NewLogMailer(logger), nil
}

// BuildMetrics returns a StatsD client; a disabled client drops every sample.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*statsd.Client, error) {
	client, err := statsd.NewClient(statsd.Config{
		Enabled:    cfg.IsEnabled(),
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		Logger:     logger,
		GlobalTags: cfg.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return client, nil
}
