package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/data"
	domainauth "github.com/target/docauth/internal/domain/auth"
	apperrors "github.com/target/docauth/internal/errors"
)

// RelayResult is the outcome of a federated login handed from the callback to the waiter.
type RelayResult struct {
	Session *domainauth.Descriptor
	Err     error
}

// LoginRelayOptions configures a LoginRelay.
type LoginRelayOptions struct {
	Config       config.RelayConfig
	TimeProvider data.TimeProvider
	Logger       *slog.Logger
}

type relayEntry struct {
	done      chan struct{}
	result    RelayResult
	published bool
	waiting   bool
	expiresAt time.Time
}

// LoginRelay correlates a popup-style federated login with the client waiting for it.
// Each id accepts one publish and one waiter at a time. Unclaimed ids expire after the
// configured retention.
type LoginRelay struct {
	cfg    config.RelayConfig
	clock  data.TimeProvider
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*relayEntry
}

// NewLoginRelay constructs a LoginRelay.
func NewLoginRelay(opts LoginRelayOptions) *LoginRelay {
	cfg := opts.Config
	cfg.Sanitize()
	clock := opts.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginRelay{
		cfg:     cfg,
		clock:   clock,
		logger:  logger.With("component", "login_relay"),
		entries: make(map[string]*relayEntry),
	}
}

// Open registers a new correlation id.
func (r *LoginRelay) Open() string {
	id := uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &relayEntry{
		done:      make(chan struct{}),
		expiresAt: r.clock.Now().Add(r.cfg.Retention),
	}
	return id
}

func (r *LoginRelay) lookupLocked(id string) (*relayEntry, error) {
	e, ok := r.entries[id]
	if !ok || !r.clock.Now().Before(e.expiresAt) {
		return nil, apperrors.NotFoundf("login relay %q not found", id)
	}
	return e, nil
}

// Publish hands the login outcome to the waiter of id.
func (r *LoginRelay) Publish(id string, res RelayResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.lookupLocked(id)
	if err != nil {
		return err
	}
	if e.published {
		return apperrors.Conflict("login relay result already published")
	}
	e.published = true
	e.result = res
	close(e.done)
	return nil
}

// Wait blocks until the result for id is published, the wait window elapses, or ctx is
// done. A delivered result consumes the id. An elapsed window returns an empty result
// with no error; the id stays open so the client can wait again.
func (r *LoginRelay) Wait(ctx context.Context, id string) (RelayResult, error) {
	r.mu.Lock()
	e, err := r.lookupLocked(id)
	if err != nil {
		r.mu.Unlock()
		return RelayResult{}, err
	}
	if e.waiting {
		r.mu.Unlock()
		return RelayResult{}, apperrors.Conflict("login relay already has a waiter")
	}
	e.waiting = true
	r.mu.Unlock()

	timer := time.NewTimer(r.cfg.Wait)
	defer timer.Stop()

	select {
	case <-e.done:
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		return e.result, nil
	case <-timer.C:
		r.release(e)
		return RelayResult{}, nil
	case <-ctx.Done():
		r.release(e)
		return RelayResult{}, ctx.Err()
	}
}

func (r *LoginRelay) release(e *relayEntry) {
	r.mu.Lock()
	e.waiting = false
	r.mu.Unlock()
}

// Pending returns the number of open ids.
func (r *LoginRelay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep drops expired ids and returns how many were removed.
func (r *LoginRelay) Sweep() int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.entries {
		if now.Before(e.expiresAt) {
			continue
		}
		delete(r.entries, id)
		n++
	}
	if n > 0 {
		r.logger.Debug("expired login relays removed", "count", n)
	}
	return n
}

// Run sweeps expired ids once per retention period until ctx is done.
func (r *LoginRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Retention)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}
