// Package mocks provides mock implementations for testing the auth backend.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the store and
// key-mirror interfaces. Hand-written fakes for the identity, mail and event ports live in
// the auth subpackage.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	tokens := mocks.NewMockTokenStore(ctrl)
//	tokens.EXPECT().Get(gomock.Any(), "token:abc").Return(nil, nil)
package mocks

// Generate mock for TokenStore interface from internal/core package.
// Store, Get, Delete, Close
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=token_store_mock.go github.com/target/docauth/internal/core TokenStore

// Generate mock for UserRepository interface from internal/core package.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_repository_mock.go github.com/target/docauth/internal/core UserRepository

// Generate mock for CredentialRepository interface from internal/core package.
// Get, Put, DeleteMany, ListExpired
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_repository_mock.go github.com/target/docauth/internal/core CredentialRepository

// Generate mock for SecurityKeyAdapter interface from internal/ports package.
// StoreKey, UpdateKey, RemoveKeys, InitSecurity, AuthorizeKeys, DeauthorizeKeys, RemoveExpiredKeys
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=security_key_adapter_mock.go github.com/target/docauth/internal/ports SecurityKeyAdapter
