package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/bootstrap"
	"github.com/target/docauth/internal/domain/model"
	"github.com/target/docauth/internal/service"
)

const defaultMigrationTimeout = 5 * time.Minute

type addDBOptions struct {
	UserID      string
	DBName      string
	Type        model.DBType
	DesignDocs  []string
	Permissions []string
}

type migrateOptions struct {
	Timeout time.Duration
}

func runAddDB(cmdCtx *commandContext, args []string) error {
	opts, err := parseAddDBFlags(args)
	if err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		physical, addErr := svc.Users.AddUserDB(ctx, opts.UserID, service.AddUserDBInput{
			DBName:      opts.DBName,
			Type:        opts.Type,
			DesignDocs:  opts.DesignDocs,
			Permissions: opts.Permissions,
		})
		if addErr != nil {
			return fmt.Errorf("add database: %w", addErr)
		}
		return writef(os.Stdout, "Added %s database %s as %s\n", opts.Type, opts.DBName, physical)
	})
}

func runRemoveExpired(cmdCtx *commandContext, _ []string) error {
	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		res, sweepErr := svc.Sessions.RemoveExpiredKeys(ctx)
		if sweepErr != nil {
			return fmt.Errorf("remove expired sessions: %w", sweepErr)
		}
		if writeErr := writef(os.Stdout, "Removed %d expired sessions from %d users in %s\n",
			len(res.Keys), res.Users, res.Duration.Round(time.Millisecond)); writeErr != nil {
			return fmt.Errorf("print sweep summary: %w", writeErr)
		}
		if res.Skipped > 0 {
			if writeErr := writef(os.Stdout, "Skipped %d users after write conflicts\n", res.Skipped); writeErr != nil {
				return fmt.Errorf("print sweep summary: %w", writeErr)
			}
		}
		return svc.Sweeper.RunOnce(ctx)
	})
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	if cmdCtx.Config.Session.Adapter != config.TokenBackendPostgres {
		cmdCtx.Logger.Warn("token store is not postgres; applying schema anyway", "adapter", cmdCtx.Config.Session.Adapter)
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return migrateErr
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func parseAddDBFlags(args []string) (addDBOptions, error) {
	fs := flag.NewFlagSet("add-db", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		opts        addDBOptions
		dbType      string
		designDocs  string
		permissions string
	)
	fs.StringVar(&opts.UserID, "user", "", "User id")
	fs.StringVar(&opts.DBName, "db", "", "Logical database name")
	fs.StringVar(&dbType, "type", "", "Database type: private or shared (default from the database model)")
	fs.StringVar(&designDocs, "design-docs", "", "Comma-separated design doc bundles to seed")
	fs.StringVar(&permissions, "permissions", "", "Comma-separated permissions granted to session keys")

	if err := fs.Parse(args); err != nil {
		return addDBOptions{}, err
	}
	if opts.UserID == "" {
		return addDBOptions{}, errors.New("--user is required")
	}
	if opts.DBName == "" {
		return addDBOptions{}, errors.New("--db is required")
	}
	if dbType != "" {
		opts.Type = model.DBType(dbType)
		if !opts.Type.Valid() {
			return addDBOptions{}, fmt.Errorf("--type must be private or shared, got %q", dbType)
		}
	}
	opts.DesignDocs = splitList(designDocs)
	opts.Permissions = splitList(permissions)
	return opts, nil
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}
