package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/target/docauth/internal/bootstrap"
	domainauth "github.com/target/docauth/internal/domain/auth"
	"github.com/target/docauth/internal/service"
)

type createUserOptions struct {
	Username string
	Email    string
	Password string
	Name     string
}

type logoutUserOptions struct {
	UserID     string
	SessionKey string
}

type removeUserOptions struct {
	UserID     string
	DestroyDBs bool
	Yes        bool
}

func runCreateUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateUserFlags(args)
	if err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		u, createErr := svc.Users.Create(ctx, service.RegistrationForm{
			Name:            opts.Name,
			Username:        opts.Username,
			Email:           opts.Email,
			Password:        opts.Password,
			ConfirmPassword: opts.Password,
		}, domainauth.RequestContext{IP: "127.0.0.1"})
		if createErr != nil {
			return fmt.Errorf("create user: %w", createErr)
		}
		if writeErr := writef(os.Stdout, "Created user %s\n", u.ID); writeErr != nil {
			return fmt.Errorf("print created user: %w", writeErr)
		}
		for name, db := range u.PersonalDBs {
			if writeErr := writef(os.Stdout, "  database %s (%s, %s)\n", name, db.Name, db.Type); writeErr != nil {
				return fmt.Errorf("print user database: %w", writeErr)
			}
		}
		return nil
	})
}

func runLogoutUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseLogoutUserFlags(args)
	if err != nil {
		return err
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		if logoutErr := svc.Sessions.LogoutUser(ctx, opts.UserID, opts.SessionKey); logoutErr != nil {
			return fmt.Errorf("logout user: %w", logoutErr)
		}
		cmdCtx.Logger.Info("user logged out", "user_id", opts.UserID)
		return writeln(os.Stdout, "All sessions revoked")
	})
}

func runRemoveUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseRemoveUserFlags(args)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("About to delete user %s.", opts.UserID)
	if opts.DestroyDBs {
		prompt = fmt.Sprintf("About to delete user %s and destroy their private databases.", opts.UserID)
	}
	if confirmErr := confirmAction(os.Stdin, opts.Yes, prompt); confirmErr != nil {
		return confirmErr
	}

	return withServices(cmdCtx, defaultCommandTimeout, func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
		if removeErr := svc.Users.Remove(ctx, opts.UserID, opts.DestroyDBs); removeErr != nil {
			return fmt.Errorf("remove user: %w", removeErr)
		}
		cmdCtx.Logger.Info("user removed", "user_id", opts.UserID, "destroy_dbs", opts.DestroyDBs)
		return writef(os.Stdout, "Removed user %s\n", opts.UserID)
	})
}

func parseCreateUserFlags(args []string) (createUserOptions, error) {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts createUserOptions
	fs.StringVar(&opts.Username, "username", "", "Username (omit when emails are usernames)")
	fs.StringVar(&opts.Email, "email", "", "Email address")
	fs.StringVar(&opts.Password, "password", "", "Initial password (defaults to $DOCAUTH_PASSWORD)")
	fs.StringVar(&opts.Name, "name", "", "Display name")

	if err := fs.Parse(args); err != nil {
		return createUserOptions{}, err
	}
	if opts.Password == "" {
		opts.Password = os.Getenv("DOCAUTH_PASSWORD")
	}
	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return createUserOptions{}, errors.New("--email is required")
	}
	if opts.Password == "" {
		return createUserOptions{}, errors.New("--password or DOCAUTH_PASSWORD is required")
	}
	return opts, nil
}

func parseLogoutUserFlags(args []string) (logoutUserOptions, error) {
	fs := flag.NewFlagSet("logout-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts logoutUserOptions
	fs.StringVar(&opts.UserID, "user", "", "User id")
	fs.StringVar(&opts.SessionKey, "session", "", "Any session key of the user")

	if err := fs.Parse(args); err != nil {
		return logoutUserOptions{}, err
	}
	if opts.UserID == "" && opts.SessionKey == "" {
		return logoutUserOptions{}, errors.New("--user or --session is required")
	}
	return opts, nil
}

func parseRemoveUserFlags(args []string) (removeUserOptions, error) {
	fs := flag.NewFlagSet("remove-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts removeUserOptions
	fs.StringVar(&opts.UserID, "user", "", "User id")
	fs.BoolVar(&opts.DestroyDBs, "destroy-dbs", false, "Destroy the user's private databases")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return removeUserOptions{}, err
	}
	if opts.UserID == "" {
		return removeUserOptions{}, errors.New("--user is required")
	}
	return opts, nil
}
