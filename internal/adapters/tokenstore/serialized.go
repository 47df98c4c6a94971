package tokenstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/target/docauth/internal/core"
)

// keyLock is a reference-counted mutex for one key.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Serialized wraps a TokenStore so that operations on the same key run one at a time,
// while operations on different keys run in parallel.
type Serialized struct {
	next core.TokenStore

	mu    sync.Mutex
	locks map[string]*keyLock
}

var (
	_ core.TokenStore  = (*Serialized)(nil)
	_ core.TokenPurger = (*Serialized)(nil)
)

// NewSerialized wraps next with per-key serialization.
func NewSerialized(next core.TokenStore) *Serialized {
	return &Serialized{next: next, locks: make(map[string]*keyLock)}
}

func (s *Serialized) acquire(key string) *keyLock {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *Serialized) release(key string, l *keyLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}

// lockAll takes every key lock in sorted order so concurrent multi-key deletes cannot deadlock.
func (s *Serialized) lockAll(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	held := make([]*keyLock, len(sorted))
	for i, k := range sorted {
		held[i] = s.acquire(k)
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			s.release(sorted[i], held[i])
		}
	}
}

// Store implements core.TokenStore.
func (s *Serialized) Store(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	l := s.acquire(key)
	defer s.release(key, l)
	return s.next.Store(ctx, key, ttl, value)
}

// Get implements core.TokenStore.
func (s *Serialized) Get(ctx context.Context, key string) ([]byte, error) {
	l := s.acquire(key)
	defer s.release(key, l)
	return s.next.Get(ctx, key)
}

// Delete implements core.TokenStore.
func (s *Serialized) Delete(ctx context.Context, keys []string) (int, error) {
	keys = core.UniqueKeys(keys)
	unlock := s.lockAll(keys)
	defer unlock()
	return s.next.Delete(ctx, keys)
}

// PurgeExpired forwards to the wrapped store when it can purge; otherwise nothing is
// dropped. Backends that purge hold their own store-wide lock.
func (s *Serialized) PurgeExpired(ctx context.Context) (int, error) {
	p, ok := s.next.(core.TokenPurger)
	if !ok {
		return 0, nil
	}
	return p.PurgeExpired(ctx)
}

// Close closes the wrapped store.
func (s *Serialized) Close() error {
	return s.next.Close()
}
