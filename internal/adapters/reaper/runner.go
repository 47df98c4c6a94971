// Package reaper runs the background loops that reap expired and orphaned state: the
// expired-session sweeper, the deletion watcher, and login relay expiry.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/docauth/internal/observability/statsd"
)

// Loop is a background service that runs until ctx is done. Run returns nil on graceful
// shutdown.
type Loop interface {
	Run(ctx context.Context) error
}

// RunnerOptions holds the loops to run. Nil loops are skipped.
type RunnerOptions struct {
	Sweeper Loop
	Watcher Loop
	Relay   Loop
	Logger  *slog.Logger

	// Optional: loop exits are counted as background.loop_exit
	Metrics statsd.Sink
}

type namedLoop struct {
	name string
	loop Loop
}

// Runner runs every configured loop and stops them all when one fails.
type Runner struct {
	loops   []namedLoop
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewRunner creates a new runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var loops []namedLoop
	for _, l := range []namedLoop{
		{"sweeper", opts.Sweeper},
		{"deletion-watcher", opts.Watcher},
		{"login-relay", opts.Relay},
	} {
		if l.loop != nil {
			loops = append(loops, l)
		}
	}
	if len(loops) == 0 {
		return nil, errors.New("no background loops configured")
	}
	return &Runner{
		loops:   loops,
		logger:  opts.Logger.With("component", "reaper"),
		metrics: opts.Metrics,
	}, nil
}

// Names returns the configured loop names in start order.
func (r *Runner) Names() []string {
	names := make([]string, len(r.loops))
	for i, l := range r.loops {
		names[i] = l.name
	}
	return names
}

// Run starts every loop and blocks until ctx is cancelled or a loop fails. A failing loop
// cancels the others and its error is returned.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, l := range r.loops {
		g.Go(func() error {
			r.logger.InfoContext(gctx, "starting background loop", "loop", l.name)
			start := time.Now()
			err := l.loop.Run(gctx)
			r.recordExit(l.name, err, time.Since(start))
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("%s: %w", l.name, err)
			}
			r.logger.InfoContext(gctx, "background loop stopped", "loop", l.name)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) recordExit(name string, err error, uptime time.Duration) {
	if r.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.metrics.Count("background.loop_exit", 1, map[string]string{"loop": name, "result": result})
	r.metrics.Timing("background.loop_uptime", uptime, map[string]string{"loop": name})
}
