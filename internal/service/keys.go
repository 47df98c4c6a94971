package service

import (
	"context"

	"github.com/target/docauth/internal/data/cryptoutil"
	"github.com/target/docauth/internal/ports"
)

// RandomKeyIssuer mints session keys locally as URL-safe UUIDs.
type RandomKeyIssuer struct{}

var _ ports.KeyIssuer = RandomKeyIssuer{}

// IssueKey returns a fresh key/password pair. Keys never start with '_' or '-', which the
// database reserves or rejects as leading characters of a user name.
func (RandomKeyIssuer) IssueKey(_ context.Context) (string, string, error) {
	key := cryptoutil.URLSafeUUID()
	for key[0] == '_' || key[0] == '-' {
		key = cryptoutil.URLSafeUUID()
	}
	return key, cryptoutil.URLSafeUUID(), nil
}
