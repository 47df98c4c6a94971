package config

import (
	"fmt"
	"net/url"
	"strings"
)

// DBConfig contains PostgreSQL configuration for the postgres TokenStore backend.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"docauth"`
	Password string `env:"PASSWORD"                envDefault:"docauth"`
	Name     string `env:"NAME"                    envDefault:"docauth"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the token schema is applied during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the redis TokenStore backend.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// DocStoreBackend selects where user records, credentials and the database catalog live.
type DocStoreBackend string

const (
	DocStoreMemory DocStoreBackend = "memory"
	DocStoreMongo  DocStoreBackend = "mongo"
)

// UnmarshalText implements encoding.TextUnmarshaler for DocStoreBackend.
func (b *DocStoreBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch DocStoreBackend(v) {
	case DocStoreMemory, DocStoreMongo:
		*b = DocStoreBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid DocStoreBackend: %q (valid options: memory, mongo)", v)
	}
}

// DocStoreConfig selects the document store backend.
type DocStoreConfig struct {
	Backend DocStoreBackend `env:"BACKEND" envDefault:"memory"`
}

// MongoConfig contains MongoDB connection and collection names.
type MongoConfig struct {
	URI      string `env:"URI"      envDefault:"mongodb://localhost:27017"`
	Database string `env:"DATABASE" envDefault:"docauth"`
	// UsersCollection holds user records.
	UsersCollection string `env:"USERS_COLLECTION" envDefault:"users"`
	// CredentialsCollection is the credentials mirror for session keys.
	CredentialsCollection string `env:"CREDENTIALS_COLLECTION" envDefault:"credentials"`
	// CatalogCollection holds one security/design document per provisioned database.
	CatalogCollection string `env:"CATALOG_COLLECTION" envDefault:"databases"`
	// DataDatabase hosts one collection per provisioned personal database.
	DataDatabase string `env:"DATA_DATABASE" envDefault:"docauth_userdbs"`
}

// DBServerKind selects how personal databases are provisioned.
type DBServerKind string

const (
	// DBServerDocStore provisions databases inside the configured document store.
	DBServerDocStore DBServerKind = "docstore"
	// DBServerCouch provisions databases on a CouchDB-compatible HTTP server.
	DBServerCouch DBServerKind = "couchdb"
)

// UnmarshalText implements encoding.TextUnmarshaler for DBServerKind.
func (k *DBServerKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch DBServerKind(v) {
	case DBServerDocStore, DBServerCouch:
		*k = DBServerKind(v)
		return nil
	default:
		return fmt.Errorf("invalid DBServerKind: %q (valid options: docstore, couchdb)", v)
	}
}

// DBServerConfig describes the database server sessions are authorized against.
type DBServerConfig struct {
	Kind DBServerKind `env:"KIND" envDefault:"docstore"`
	// Protocol and Host address the server for administration.
	Protocol string `env:"PROTOCOL" envDefault:"http://"`
	Host     string `env:"HOST"     envDefault:"localhost:5984"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	// PublicURL is the base URL handed to clients. Session credentials are embedded into it.
	PublicURL string `env:"PUBLIC_URL"`
	// Managed switches to the hosted provider's API key model.
	Managed bool `env:"MANAGED" envDefault:"false"`
	// APIKeyURL is the hosted provider's key issuance endpoint. Defaults to
	// <server>/_api/v2/api_keys.
	APIKeyURL string `env:"API_KEY_URL"`
}

// Sanitize applies guardrails to database server values.
func (d *DBServerConfig) Sanitize() {
	d.Host = strings.TrimSuffix(strings.TrimSpace(d.Host), "/")
	if d.Protocol == "" {
		d.Protocol = "http://"
	}
	if !strings.HasSuffix(d.Protocol, "://") {
		d.Protocol = strings.TrimSuffix(d.Protocol, ":") + "://"
	}
	d.PublicURL = strings.TrimSpace(d.PublicURL)
}

// AdminURL returns the server URL with administrator credentials, if configured.
func (d *DBServerConfig) AdminURL() string {
	if d.User == "" {
		return d.Protocol + d.Host
	}
	return d.Protocol + url.UserPassword(d.User, d.Password).String() + "@" + d.Host
}

// KeyIssuanceURL returns the managed provider's API key endpoint.
func (d *DBServerConfig) KeyIssuanceURL() string {
	if d.APIKeyURL != "" {
		return d.APIKeyURL
	}
	return d.Protocol + d.Host + "/_api/v2/api_keys"
}

// SessionBaseURL returns the base URL clients use for their databases, with key and
// password embedded as user info, ending in a slash.
func (d *DBServerConfig) SessionBaseURL(key, password string) string {
	if d.PublicURL != "" {
		if u, err := url.Parse(d.PublicURL); err == nil {
			u.User = url.UserPassword(key, password)
			s := u.String()
			if !strings.HasSuffix(s, "/") {
				s += "/"
			}
			return s
		}
	}
	return d.Protocol + key + ":" + password + "@" + d.Host + "/"
}
