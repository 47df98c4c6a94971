package service

import (
	"context"
	"log/slog"

	"github.com/target/docauth/internal/observability/statsd"
	"github.com/target/docauth/internal/ports"
)

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements ports.EventPublisher.
func (NopPublisher) Publish(context.Context, ports.Event) {}

// LoggingPublisher writes every event to a structured logger.
type LoggingPublisher struct {
	logger *slog.Logger
}

// NewLoggingPublisher constructs a LoggingPublisher.
func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger.With("component", "events")}
}

// Publish implements ports.EventPublisher.
func (p *LoggingPublisher) Publish(ctx context.Context, ev ports.Event) {
	attrs := []any{"event", ev.Name, "user_id", ev.UserID}
	if ev.Provider != "" {
		attrs = append(attrs, "provider", ev.Provider)
	}
	if ev.DBName != "" {
		attrs = append(attrs, "db", ev.DBName)
	}
	if ev.Session != nil {
		attrs = append(attrs, "expires", ev.Session.Expires)
	}
	p.logger.InfoContext(ctx, "auth event", attrs...)
}

// FanoutPublisher delivers each event to several publishers in order.
type FanoutPublisher []ports.EventPublisher

// Publish implements ports.EventPublisher.
func (f FanoutPublisher) Publish(ctx context.Context, ev ports.Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// MetricsPublisher counts events by name as auth.event.
type MetricsPublisher struct {
	sink statsd.Sink
}

// NewMetricsPublisher constructs a MetricsPublisher. A nil sink drops every event.
func NewMetricsPublisher(sink statsd.Sink) *MetricsPublisher {
	return &MetricsPublisher{sink: sink}
}

// Publish implements ports.EventPublisher.
func (p *MetricsPublisher) Publish(_ context.Context, ev ports.Event) {
	if p == nil || p.sink == nil {
		return
	}
	tags := map[string]string{"event": ev.Name}
	if ev.Provider != "" {
		tags["provider"] = ev.Provider
	}
	p.sink.Count("auth.event", 1, tags)
}
