package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - security.go: Session lifetimes, lockout and local registration
//   - session.go: TokenStore backend selection
//   - database.go: Document store, Postgres, Redis and database server configuration
//   - userdbs.go: Personal database provisioning
//   - auth.go: Federated identity providers
//   - mail.go: Mail delivery
//   - services.go: Background services
type AppConfig struct {
	// IsDev controls development mode behavior.
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// ProviderSecretKey encrypts federated access and refresh tokens at rest.
	// A 32 byte key, hex or base64 encoded. Optional for development.
	ProviderSecretKey string `env:"PROVIDER_SECRET_KEY"`

	Security SecurityConfig `envPrefix:"SECURITY_"`
	Local    LocalConfig    `envPrefix:"LOCAL_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`

	DocStore DocStoreConfig `envPrefix:"DOCSTORE_"`
	Mongo    MongoConfig    `envPrefix:"MONGO_"`
	Postgres DBConfig       `envPrefix:"DB_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	DBServer DBServerConfig `envPrefix:"DBSERVER_"`
	UserDBs  UserDBsConfig  `envPrefix:"USERDBS_"`

	Providers ProvidersConfig
	Mail      MailConfig `envPrefix:"MAIL_"`

	// Services is a comma-delimited list of enabled background services.
	Services string `env:"SERVICES" envDefault:"sweeper,deletion-watcher"`

	Sweeper SweeperConfig `envPrefix:"SWEEPER_"`
	Relay   RelayConfig   `envPrefix:"RELAY_"`

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Security.Sanitize()
	c.Local.Sanitize()
	c.Session.Sanitize()
	c.UserDBs.Sanitize()
	c.DBServer.Sanitize()
	c.Sweeper.Sanitize()
	c.Relay.Sanitize()
	c.Mail.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsSweeperEnabled returns true if the expired-session sweeper is enabled.
func (c *AppConfig) IsSweeperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeSweeper]
}

// IsDeletionWatcherEnabled returns true if the user deletion watcher is enabled.
func (c *AppConfig) IsDeletionWatcherEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeDeletionWatcher]
}
