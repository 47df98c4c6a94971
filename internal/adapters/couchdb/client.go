// Package couchdb provisions personal databases on a CouchDB-compatible HTTP server.
package couchdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/target/docauth/internal/errors"
)

// Config addresses the server's administrative API.
type Config struct {
	// BaseURL is the server root, e.g. "https://db.example.com".
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
	Client   *http.Client
}

// Client issues authenticated JSON requests against the server.
type Client struct {
	base     *url.URL
	user     string
	password string
	http     *http.Client
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("database server URL is required")
	}
	base, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse database server URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("database server URL %q must be absolute", raw)
	}

	hc := cfg.Client
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, user: cfg.User, password: cfg.Password, http: hc}, nil
}

// URL resolves path segments against the server root, escaping each segment.
func (c *Client) URL(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := *c.base
	u.RawPath = strings.TrimSuffix(c.base.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.Path = strings.TrimSuffix(c.base.Path, "/") + "/" + strings.Join(segments, "/")
	return u.String()
}

// Do sends a request to target with an optional JSON body and decodes a JSON response
// into out when out is non-nil. Non-2xx responses become application errors.
func (c *Client) Do(ctx context.Context, method, target string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apperrors.Upstream(err, "database server request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, statusError(method, req.URL.Path, resp)
	}
	if out == nil || method == http.MethodHead {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, apperrors.Upstream(err, "decode database server response")
	}
	return resp.StatusCode, nil
}

// couchError is the server's error body.
type couchError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func statusError(method, path string, resp *http.Response) error {
	var ce couchError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ce)
	msg := fmt.Sprintf("%s %s: %s", method, path, resp.Status)
	if ce.Reason != "" {
		msg += ": " + ce.Reason
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperrors.NotFound(msg)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return apperrors.Conflict(msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.Unauthorized(msg)
	case http.StatusBadRequest:
		return apperrors.Validation(msg)
	default:
		return apperrors.Upstream(errors.New(resp.Status), msg)
	}
}
