package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/observability/metrics"
	"github.com/target/docauth/internal/observability/statsd"
	"github.com/target/docauth/internal/ports"
	"github.com/target/docauth/internal/service/dbauth"
)

// ExpiredSessionSweeper removes every session that has expired.
type ExpiredSessionSweeper interface {
	RemoveExpiredKeys(ctx context.Context) (dbauth.SweepResult, error)
}

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Sessions     ExpiredSessionSweeper    // Required: expired session sweep
	Keys         ports.SecurityKeyAdapter // Optional: credentials mirror expiry cleanup
	Tokens       core.TokenPurger         // Optional: token store expiry cleanup
	Users        core.UserRepository      // Optional: expired password reset cleanup
	Config       config.SweeperConfig     // Interval and per-run timeout
	TimeProvider data.TimeProvider        // Optional: defaults to real time
	Logger       *slog.Logger             // Optional: structured logger
	Metrics      statsd.Sink              // Optional: metrics sink (StatsD-compatible)
}

// SweeperService periodically removes expired state.
//
// This service manages:
// - Removing expired sessions from the token store, key mirror, databases and user records.
// - Deleting credentials mirror records past their expiry.
// - Dropping token store entries past their TTL that no read has removed yet.
// - Clearing password reset tokens past their expiry.
type SweeperService struct {
	sessions ExpiredSessionSweeper
	keys     ports.SecurityKeyAdapter
	tokens   core.TokenPurger
	users    core.UserRepository
	config   config.SweeperConfig
	clock    data.TimeProvider
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewSweeperService constructs a new SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if opts.Sessions == nil {
		return nil, errors.New("ExpiredSessionSweeper is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	clock := opts.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweeper_service")
		logger.Debug("SweeperService initialized", "interval", cfg.Interval, "timeout", cfg.Timeout)
	}

	return &SweeperService{
		sessions: opts.Sessions,
		keys:     opts.Keys,
		tokens:   opts.Tokens,
		users:    opts.Users,
		config:   cfg,
		clock:    clock,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SweeperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting sweeper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.RunOnce(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *SweeperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *SweeperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "sweeper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logSweepError(err, "sweep")
			}
		}
	}
}

// RunOnce performs every sweep task once, bounded by the configured timeout. A failing
// task does not stop the others.
func (s *SweeperService) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := s.clock.Now()
	steps := []sweepStep{
		{task: "expired_sessions", fn: s.removeExpiredSessions},
		{task: "expired_keys", fn: s.removeExpiredKeys},
		{task: "expired_tokens", fn: s.purgeExpiredTokens},
		{task: "expired_resets", fn: s.clearExpiredResets},
	}

	var errs []error
	allContextCanceled := true
	for _, step := range steps {
		stepStart := s.clock.Now()
		removed, skipped, err := step.fn(ctx)
		metrics.EmitSweep(s.metrics, metrics.SweepMetric{
			Task:     step.task,
			Removed:  removed,
			Skipped:  skipped,
			Duration: s.clock.Now().Sub(stepStart),
			Err:      suppressContextCancellation(err),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.task, err))
			allContextCanceled = allContextCanceled && isContextCancellation(err)
		}
	}

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("sweep failed: %w", joined)
	}
	if s.metrics != nil {
		s.metrics.Gauge("sweep.last_success_epoch", float64(s.clock.Now().Unix()), nil)
	}
	if s.logger != nil {
		s.logger.DebugContext(ctx, "sweep complete", "duration", s.clock.Now().Sub(start))
	}
	return nil
}

type sweepStep struct {
	task string
	fn   func(context.Context) (removed, skipped int, err error)
}

func (s *SweeperService) removeExpiredSessions(ctx context.Context) (int, int, error) {
	res, err := s.sessions.RemoveExpiredKeys(ctx)
	if err != nil {
		return len(res.Keys), res.Skipped, err
	}
	if len(res.Keys) > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "removed expired sessions",
			"keys", len(res.Keys),
			"users", res.Users,
			"skipped", res.Skipped,
			"duration", res.Duration,
		)
	}
	return len(res.Keys), res.Skipped, nil
}

// removeExpiredKeys deletes credentials mirror records that outlived their session, such
// as ones left behind when a user record write failed after the key was stored.
func (s *SweeperService) removeExpiredKeys(ctx context.Context) (int, int, error) {
	if s.keys == nil {
		return 0, 0, nil
	}
	removed, err := s.keys.RemoveExpiredKeys(ctx, data.NowMillis(s.clock))
	if err != nil {
		return 0, 0, err
	}
	if len(removed) > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "removed expired credentials", "count", len(removed))
	}
	return len(removed), 0, nil
}

func (s *SweeperService) purgeExpiredTokens(ctx context.Context) (int, int, error) {
	if s.tokens == nil {
		return 0, 0, nil
	}
	n, err := s.tokens.PurgeExpired(ctx)
	if err != nil {
		return n, 0, err
	}
	if n > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "purged expired tokens", "count", n)
	}
	return n, 0, nil
}

func (s *SweeperService) clearExpiredResets(ctx context.Context) (int, int, error) {
	if s.users == nil {
		return 0, 0, nil
	}
	users, err := s.users.ExpiredPasswordResets(ctx, data.NowMillis(s.clock))
	if err != nil {
		return 0, 0, apperrors.Upstream(err, "cannot query expired password resets")
	}
	if len(users) == 0 {
		return 0, 0, nil
	}
	for _, u := range users {
		u.ForgotPassword = nil
	}
	results, err := s.users.BulkPut(ctx, users)
	if err != nil {
		return 0, 0, apperrors.Upstream(err, "cannot save user records")
	}
	removed, skipped := 0, 0
	var errs []error
	for i, rerr := range results {
		switch {
		case rerr == nil:
			removed++
		case apperrors.IsConflict(rerr):
			skipped++
		default:
			errs = append(errs, fmt.Errorf("save %s: %w", users[i].ID, rerr))
		}
	}
	if removed > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "cleared expired password resets", "count", removed, "skipped", skipped)
	}
	return removed, skipped, errors.Join(errs...)
}

func (s *SweeperService) logSweepError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
