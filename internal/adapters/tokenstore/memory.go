// Package tokenstore provides process-local TokenStore backends and the per-key
// serialization wrapper shared by all backends.
package tokenstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("token store closed")

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps tokens in a map for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   data.TimeProvider
	closed  bool
}

var (
	_ core.TokenStore  = (*MemoryStore)(nil)
	_ core.TokenPurger = (*MemoryStore)(nil)
)

// MemoryStoreOptions configures a MemoryStore.
type MemoryStoreOptions struct {
	TimeProvider data.TimeProvider // Optional: defaults to the system clock
}

// NewMemoryStore creates an empty in-memory TokenStore.
func NewMemoryStore(opts MemoryStoreOptions) *MemoryStore {
	clock := opts.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), clock: clock}
}

// Store writes value under key for ttl.
func (m *MemoryStore) Store(_ context.Context, key string, ttl time.Duration, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	buf := make([]byte, len(value))
	copy(buf, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries[key] = memoryEntry{value: buf, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

// Get returns the stored value, or nil when the key is absent or expired.
// Expired entries are dropped on read.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Delete removes keys and returns how many live entries were removed.
func (m *MemoryStore) Delete(_ context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	now := m.clock.Now()
	n := 0
	for _, k := range core.UniqueKeys(keys) {
		e, ok := m.entries[k]
		if !ok {
			continue
		}
		delete(m.entries, k)
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n, nil
}

// PurgeExpired drops every expired entry and returns how many were dropped.
func (m *MemoryStore) PurgeExpired(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	now := m.clock.Now()
	n := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Close releases the map. Further calls fail with ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = nil
	return nil
}
