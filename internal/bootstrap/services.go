package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/adapters/reaper"
	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
	"github.com/target/docauth/internal/data/cryptoutil"
	"github.com/target/docauth/internal/observability/statsd"
	"github.com/target/docauth/internal/service"
	"github.com/target/docauth/internal/service/dbauth"
)

const shutdownWaitTimeout = 30 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Users       *service.UserService
	Sessions    *service.SessionService
	Auth        *service.AuthService
	Coordinator *dbauth.Coordinator
	Relay       *service.LoginRelay
	Sweeper     *service.SweeperService
	Watcher     *service.DeletionWatcher
	DocStore    *DocStore
	Metrics     *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config       *config.AppConfig
	Infra        *Infrastructure
	TimeProvider data.TimeProvider // Optional: defaults to real time
	Logger       *slog.Logger
}

// NewServices wires the document store, token store, key strategy and the services on
// top of them.
func NewServices(ctx context.Context, deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}

	metrics, err := BuildMetrics(cfg.Observability.Metrics, logger)
	if err != nil {
		return nil, err
	}
	container := &ServiceContainer{Metrics: metrics}
	fail := func(err error) (*ServiceContainer, error) {
		if closeErr := container.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, err
	}

	docs, err := BuildDocStore(cfg, deps.Infra)
	if err != nil {
		return fail(err)
	}
	container.DocStore = docs

	tokens, err := BuildTokenStore(cfg, deps.Infra, clock)
	if err != nil {
		return fail(fmt.Errorf("token store: %w", err))
	}

	if err := buildSessionLayer(cfg, deps, container, tokens); err != nil {
		_ = tokens.Close()
		return fail(err)
	}
	if err := buildAccountLayer(ctx, cfg, deps, container); err != nil {
		return fail(err)
	}
	if err := buildBackgroundLayer(cfg, deps, container, tokens); err != nil {
		return fail(err)
	}
	return container, nil
}

func buildSessionLayer(cfg *config.AppConfig, deps *ServiceDeps, c *ServiceContainer, tokens core.TokenStore) error {
	hasher := cryptoutil.NewPasswordHasher(cfg.Security.PasswordIterations)

	server, err := NewDBServerClient(&cfg.DBServer)
	if err != nil {
		return err
	}
	keys, err := BuildKeyAdapter(cfg, c.DocStore, hasher, deps.Logger)
	if err != nil {
		return fmt.Errorf("key adapter: %w", err)
	}
	issuer, err := BuildKeyIssuer(&cfg.DBServer, server)
	if err != nil {
		return fmt.Errorf("key issuer: %w", err)
	}

	c.Coordinator, err = dbauth.NewCoordinator(dbauth.CoordinatorOptions{
		Admin:        BuildDatabaseAdmin(server, c.DocStore),
		Users:        c.DocStore.Users,
		Keys:         keys,
		DesignDocs:   dbauth.DirDesignDocs{Dir: cfg.UserDBs.DesignDocDir},
		Config:       cfg.UserDBs,
		TimeProvider: deps.TimeProvider,
		Logger:       deps.Logger,
	})
	if err != nil {
		return fmt.Errorf("database coordinator: %w", err)
	}

	c.Sessions, err = service.NewSessionService(service.SessionServiceOptions{
		Users:        c.DocStore.Users,
		Tokens:       tokens,
		Access:       c.Coordinator,
		KeyIssuer:    issuer,
		Hasher:       hasher,
		Events:       newEventPublisher(deps.Logger, c.Metrics),
		Security:     cfg.Security,
		Local:        cfg.Local,
		Session:      cfg.Session,
		DBServer:     cfg.DBServer,
		TimeProvider: deps.TimeProvider,
		Logger:       deps.Logger,
		Metrics:      c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("session service: %w", err)
	}
	return nil
}

func buildAccountLayer(ctx context.Context, cfg *config.AppConfig, deps *ServiceDeps, c *ServiceContainer) error {
	mail, err := BuildMailer(cfg.Mail, deps.Logger)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	c.Users, err = service.NewUserService(service.UserServiceOptions{
		Users:        c.DocStore.Users,
		Sessions:     c.Sessions,
		Databases:    c.Coordinator,
		Mailer:       mail,
		Events:       newEventPublisher(deps.Logger, c.Metrics),
		Hasher:       cryptoutil.NewPasswordHasher(cfg.Security.PasswordIterations),
		Sealer:       CreateSealer(cfg.ProviderSecretKey, deps.Logger),
		Security:     cfg.Security,
		Local:        cfg.Local,
		UserDBs:      cfg.UserDBs,
		Providers:    cfg.Providers,
		TimeProvider: deps.TimeProvider,
		Logger:       deps.Logger,
	})
	if err != nil {
		return fmt.Errorf("user service: %w", err)
	}

	providers, err := BuildIdentityProviders(ctx, AuthConfig{
		Providers: cfg.Providers,
		IsDev:     cfg.IsDev,
		Logger:    deps.Logger,
	})
	if err != nil {
		return fmt.Errorf("identity providers: %w", err)
	}

	c.Relay = service.NewLoginRelay(service.LoginRelayOptions{
		Config:       cfg.Relay,
		TimeProvider: deps.TimeProvider,
		Logger:       deps.Logger,
	})
	c.Auth, err = service.NewAuthService(service.AuthServiceOptions{
		Providers: providers.Redirect,
		Verifiers: providers.Tokens,
		Accounts:  c.Users,
		Sessions:  c.Sessions,
		Relay:     c.Relay,
		Logger:    deps.Logger,
	})
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	return nil
}

func buildBackgroundLayer(cfg *config.AppConfig, deps *ServiceDeps, c *ServiceContainer, tokens core.TokenStore) error {
	purger, _ := tokens.(core.TokenPurger)
	var err error
	c.Sweeper, err = service.NewSweeperService(service.SweeperServiceOptions{
		Sessions:     c.Sessions,
		Keys:         c.Coordinator.Keys(),
		Tokens:       purger,
		Users:        c.DocStore.Users,
		Config:       cfg.Sweeper,
		TimeProvider: deps.TimeProvider,
		Logger:       deps.Logger,
		Metrics:      c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	c.Watcher, err = service.NewDeletionWatcher(service.DeletionWatcherOptions{
		Users:     c.DocStore.Users,
		Databases: c.Coordinator,
		Sessions:  c.Sessions,
		Logger:    deps.Logger,
	})
	if err != nil {
		return fmt.Errorf("deletion watcher: %w", err)
	}
	return nil
}

func newEventPublisher(logger *slog.Logger, metrics statsd.Sink) service.FanoutPublisher {
	return service.FanoutPublisher{
		service.NewLoggingPublisher(logger),
		service.NewMetricsPublisher(metrics),
	}
}

// Close releases the token store and the metrics connection. Infrastructure connections
// are closed by their owner.
func (c *ServiceContainer) Close() error {
	if c == nil {
		return nil
	}
	var closeErr error
	if c.Sessions != nil {
		if err := c.Sessions.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close token store: %w", err))
		}
	}
	if c.Metrics != nil {
		if err := c.Metrics.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close metrics: %w", err))
		}
	}
	return closeErr
}

// NewBackgroundRunner collects the enabled background services. Relay expiry always runs.
func NewBackgroundRunner(cfg *config.AppConfig, services *ServiceContainer, logger *slog.Logger) (*reaper.Runner, error) {
	if cfg == nil || services == nil {
		return nil, errors.New("config and services are required")
	}
	enabled, err := cfg.GetEnabledServices()
	if err != nil {
		return nil, fmt.Errorf("determine enabled services: %w", err)
	}

	opts := reaper.RunnerOptions{Logger: logger}
	if services.Metrics != nil {
		opts.Metrics = services.Metrics
	}
	if enabled[config.ServiceModeSweeper] && services.Sweeper != nil {
		opts.Sweeper = services.Sweeper
	}
	if enabled[config.ServiceModeDeletionWatcher] && services.Watcher != nil {
		opts.Watcher = services.Watcher
	}
	if services.Relay != nil {
		opts.Relay = services.Relay
	}
	return reaper.NewRunner(opts)
}

// ServiceOrchestrationConfig contains configuration for running services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled background services and manages their
// lifecycle. It blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runner, err := NewBackgroundRunner(cfg.Config, cfg.Services, logger)
	if err != nil {
		return err
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := runner.Run(serviceCtx); runErr != nil {
			errCh <- runErr
		}
	}()
	logger.Info("background services started", "services", runner.Names())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return waitForShutdown(shutdownConfig{
		cancel: cancel,
		quit:   quit,
		errCh:  errCh,
		done:   done,
		logger: logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel context.CancelFunc
	quit   <-chan os.Signal
	errCh  <-chan error
	done   <-chan struct{}
	logger *slog.Logger
}

// waitForShutdown waits for a shutdown signal or a service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case <-cfg.quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		waitForService(cfg.done, "background services", cfg.logger)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		waitForService(cfg.done, "background services", cfg.logger)
		return err
	case <-cfg.done:
		select {
		case err := <-cfg.errCh:
			cfg.logger.Error("service error", "error", err)
			return err
		default:
		}
		cfg.logger.Info("background services stopped")
		return nil
	}
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
