package config

import (
	"fmt"
	"strings"
)

// TokenBackend selects the TokenStore implementation.
type TokenBackend string

const (
	TokenBackendMemory   TokenBackend = "memory"
	TokenBackendFile     TokenBackend = "file"
	TokenBackendRedis    TokenBackend = "redis"
	TokenBackendPostgres TokenBackend = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for TokenBackend.
func (b *TokenBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch TokenBackend(v) {
	case TokenBackendMemory, TokenBackendFile, TokenBackendRedis, TokenBackendPostgres:
		*b = TokenBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid TokenBackend: %q (valid options: memory, file, redis, postgres)", v)
	}
}

// SessionConfig selects and tunes the TokenStore.
type SessionConfig struct {
	Adapter TokenBackend `env:"ADAPTER" envDefault:"memory"`
	// FilePath is the directory used by the file backend.
	FilePath string `env:"FILE_PATH" envDefault:"./sessions"`
	// KeyPrefix namespaces token keys in shared backends.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"token:"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	s.FilePath = strings.TrimSpace(s.FilePath)
	if s.FilePath == "" {
		s.FilePath = "./sessions"
	}
	if s.KeyPrefix == "" {
		s.KeyPrefix = "token:"
	}
}
