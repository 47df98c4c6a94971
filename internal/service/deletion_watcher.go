package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
)

// DeletionWatcherOptions groups dependencies for DeletionWatcher.
type DeletionWatcherOptions struct {
	Users     core.UserRepository // Required: source of the deletion feed
	Databases PersonalDatabases   // Required: database teardown
	Sessions  SessionRevoker      // Required: session revocation
	Logger    *slog.Logger        // Optional: structured logger
}

// DeletionWatcher follows hard deletes of user records. For each deleted record it
// destroys the personal databases configured to go with their owner and revokes every
// session the record still listed.
type DeletionWatcher struct {
	users     core.UserRepository
	databases PersonalDatabases
	sessions  SessionRevoker
	logger    *slog.Logger
}

// NewDeletionWatcher constructs a new DeletionWatcher.
func NewDeletionWatcher(opts DeletionWatcherOptions) (*DeletionWatcher, error) {
	if opts.Users == nil {
		return nil, errors.New("UserRepository is required")
	}
	if opts.Databases == nil {
		return nil, errors.New("PersonalDatabases is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionRevoker is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DeletionWatcher{
		users:     opts.Users,
		databases: opts.Databases,
		sessions:  opts.Sessions,
		logger:    logger.With("component", "deletion_watcher"),
	}, nil
}

// Run consumes the deletion feed until ctx is done. It returns nil on graceful shutdown
// and an error when the feed ends on its own.
func (w *DeletionWatcher) Run(ctx context.Context) error {
	feed, err := w.users.WatchDeleted(ctx)
	if err != nil {
		return apperrors.Upstream(err, "cannot open deletion feed")
	}
	w.logger.InfoContext(ctx, "watching for deleted users")
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-feed:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("deletion feed closed")
			}
			w.HandleDeleted(ctx, u)
		}
	}
}

// HandleDeleted tears down what a deleted record leaves behind. Failures are logged and
// do not stop the remaining steps.
func (w *DeletionWatcher) HandleDeleted(ctx context.Context, u *model.User) {
	w.logger.InfoContext(ctx, "user deleted", "user_id", u.ID, "sessions", len(u.Session), "dbs", len(u.PersonalDBs))
	for _, physical := range sortedPersonalDBs(u.PersonalDBs) {
		entry := u.PersonalDBs[physical]
		if !w.databases.DatabaseConfig(entry.Name, entry.Type).DeleteWithUser {
			continue
		}
		if err := w.databases.RemoveDatabase(ctx, physical); err != nil && !apperrors.IsNotFound(err) {
			w.logger.ErrorContext(ctx, "cannot destroy database of deleted user",
				"user_id", u.ID, "db", physical, "error", err)
		}
	}
	if err := w.sessions.RevokeAll(ctx, u); err != nil {
		w.logger.ErrorContext(ctx, "cannot revoke sessions of deleted user", "user_id", u.ID, "error", err)
	}
}
