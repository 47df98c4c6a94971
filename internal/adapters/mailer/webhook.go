package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/target/docauth/internal/domain/model"
	"github.com/target/docauth/internal/ports"
)

var _ ports.Mailer = (*WebhookMailer)(nil)

// WebhookConfig captures the mail gateway settings.
type WebhookConfig struct {
	URL        string
	From       string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// WebhookMailer posts each message as JSON to a delivery gateway, which owns template
// rendering and transport.
type WebhookMailer struct {
	url        string
	from       string
	retryLimit int
	client     *http.Client
}

// Message is the JSON body posted to the gateway.
type Message struct {
	Template string         `json:"template"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to"`
	Vars     map[string]any `json:"vars,omitempty"`
}

// NewWebhookMailer builds a gateway client. Callers should pass a validated config.
func NewWebhookMailer(cfg WebhookConfig) (*WebhookMailer, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("mail webhook url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := max(cfg.RetryLimit, 0)

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &WebhookMailer{
		url:        url,
		from:       strings.TrimSpace(cfg.From),
		retryLimit: retries,
		client:     hc,
	}, nil
}

// SendEmail posts the message, retrying failed attempts with linear backoff.
func (m *WebhookMailer) SendEmail(ctx context.Context, template, to string, vars map[string]any) error {
	body, err := json.Marshal(Message{Template: template, From: m.from, To: to, Vars: templateVars(vars)})
	if err != nil {
		return fmt.Errorf("encode mail payload: %w", err)
	}

	attempts := m.retryLimit + 1
	var lastErr error
	for attempt := range attempts {
		err = m.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := time.Duration(attempt+1) * 200 * time.Millisecond
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}

// recipient is the part of a user record the gateway may render.
type recipient struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// templateVars replaces user records with their public fields so password hashes and
// session entries never leave the process.
func templateVars(vars map[string]any) map[string]any {
	if len(vars) == 0 {
		return nil
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		if u, ok := v.(*model.User); ok && u != nil {
			v = recipient{ID: u.ID, Name: u.Name, Email: u.Email}
		}
		out[k] = v
	}
	return out
}

func (m *WebhookMailer) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleErrorResponse(resp)
	}
	return drainSuccess(resp)
}

func drainSuccess(resp *http.Response) error {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("drain mail response body: %w", err),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("drain mail response body: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}

func handleErrorResponse(resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return errors.Join(fmt.Errorf("read mail error response: %w", readErr), closeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close response body: %w", closeErr)
	}
	return fmt.Errorf("mail webhook %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
}
