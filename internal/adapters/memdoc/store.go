// Package memdoc is an in-process document store: user records, the credentials mirror,
// and provisioned databases with their security and design documents. It implements the
// core repository ports with the same revision and not-found semantics as the Mongo
// adapter and backs development mode and engine tests.
package memdoc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/target/docauth/internal/domain/model"
)

// Store holds all documents behind one lock.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	creds    map[string]*model.Credential
	dbs      map[string]*database
	watchers map[int]*watcher
	nextID   int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		creds:    make(map[string]*model.Credential),
		dbs:      make(map[string]*database),
		watchers: make(map[int]*watcher),
	}
}

// Users returns the user record repository.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Credentials returns the credentials-mirror repository.
func (s *Store) Credentials() *CredentialRepo { return &CredentialRepo{s: s} }

// Databases returns the database administration surface.
func (s *Store) Databases() *DatabaseAdmin { return &DatabaseAdmin{s: s} }

// clone deep-copies a document through its JSON form, the same shape it has at rest.
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("memdoc: marshal %T: %v", v, err))
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(fmt.Sprintf("memdoc: unmarshal %T: %v", v, err))
	}
	return out
}

// watcher buffers deletions for one subscriber so Delete never blocks on a slow reader.
type watcher struct {
	mu     sync.Mutex
	queue  []*model.User
	notify chan struct{}
	out    chan *model.User
}

func (w *watcher) push(u *model.User) {
	w.mu.Lock()
	w.queue = append(w.queue, u)
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *watcher) drain() []*model.User {
	w.mu.Lock()
	defer w.mu.Unlock()
	q := w.queue
	w.queue = nil
	return q
}

func (s *Store) subscribe(ctx context.Context) <-chan *model.User {
	w := &watcher{notify: make(chan struct{}, 1), out: make(chan *model.User)}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = w
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(w.out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.notify:
			}
			for _, u := range w.drain() {
				select {
				case w.out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return w.out
}

// WatcherCount returns the number of active deletion subscribers.
func (s *Store) WatcherCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

// publishDeleted must be called with s.mu held.
func (s *Store) publishDeleted(u *model.User) {
	for _, w := range s.watchers {
		w.push(clone(u))
	}
}
