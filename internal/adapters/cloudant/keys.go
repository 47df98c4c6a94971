// Package cloudant issues session keys from a hosted server's API key endpoint.
package cloudant

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/target/docauth/internal/adapters/couchdb"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/ports"
)

var _ ports.KeyIssuer = (*KeyIssuer)(nil)

// apiKeyResponse is the endpoint's reply to a key generation request.
type apiKeyResponse struct {
	OK       bool   `json:"ok"`
	Key      string `json:"key"`
	Password string `json:"password"`
}

// KeyIssuer asks the hosted server to generate each session's key and password.
type KeyIssuer struct {
	client   *couchdb.Client
	endpoint string
}

// NewKeyIssuer builds an issuer. endpoint defaults to <server>/_api/v2/api_keys.
func NewKeyIssuer(client *couchdb.Client, endpoint string) (*KeyIssuer, error) {
	if client == nil {
		return nil, errors.New("database server client is required")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = client.URL("_api", "v2", "api_keys")
	}
	return &KeyIssuer{client: client, endpoint: endpoint}, nil
}

// IssueKey generates a new API key.
func (k *KeyIssuer) IssueKey(ctx context.Context) (string, string, error) {
	var out apiKeyResponse
	if _, err := k.client.Do(ctx, http.MethodPost, k.endpoint, nil, &out); err != nil {
		return "", "", apperrors.Upstream(err, "cannot generate api key")
	}
	if !out.OK || out.Key == "" || out.Password == "" {
		return "", "", apperrors.Upstream(errors.New("incomplete api key response"), "cannot generate api key")
	}
	return out.Key, out.Password, nil
}
