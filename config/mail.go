package config

import (
	"fmt"
	"strings"
	"time"
)

// MailBackend selects how templated mail is delivered.
type MailBackend string

const (
	// MailBackendLog writes mail to the structured log. Suitable for development.
	MailBackendLog MailBackend = "log"
	// MailBackendWebhook posts mail as JSON to a delivery gateway.
	MailBackendWebhook MailBackend = "webhook"
)

// UnmarshalText implements encoding.TextUnmarshaler for MailBackend.
func (b *MailBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch MailBackend(v) {
	case MailBackendLog, MailBackendWebhook:
		*b = MailBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid MailBackend: %q (valid options: log, webhook)", v)
	}
}

// MailConfig configures delivery of confirmation and password reset mail.
type MailConfig struct {
	Backend    MailBackend   `env:"BACKEND"     envDefault:"log"`
	WebhookURL string        `env:"WEBHOOK_URL"`
	From       string        `env:"FROM"        envDefault:"no-reply@localhost"`
	Timeout    time.Duration `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"RETRY_LIMIT" envDefault:"2"`
}

// Sanitize falls back to log delivery when no webhook is configured.
func (m *MailConfig) Sanitize() {
	m.WebhookURL = strings.TrimSpace(m.WebhookURL)
	if m.Backend == MailBackendWebhook && m.WebhookURL == "" {
		m.Backend = MailBackendLog
	}
	if m.Timeout <= 0 {
		m.Timeout = 5 * time.Second
	}
	if m.RetryLimit < 0 {
		m.RetryLimit = 0
	}
}
