package tokenstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
)

const fileSuffix = ".json"

// fileRecord is the on-disk shape of one token.
type fileRecord struct {
	Value   []byte `json:"value"`
	Expires int64  `json:"expires"`
}

// FileStore keeps one JSON file per key in a directory. File names are the URL-safe
// base64 form of the key, so any key maps to a legal, unique file name.
//
// FileStore is not safe for concurrent use on the same key by itself; wrap it with
// NewSerialized.
type FileStore struct {
	dir   string
	clock data.TimeProvider

	mu     sync.RWMutex
	closed bool
}

var (
	_ core.TokenStore  = (*FileStore)(nil)
	_ core.TokenPurger = (*FileStore)(nil)
)

// FileStoreOptions configures a FileStore.
type FileStoreOptions struct {
	Dir          string            // Required: directory holding token files
	TimeProvider data.TimeProvider // Optional: defaults to the system clock
}

// NewFileStore creates the directory if needed and returns a FileStore rooted there.
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("file store directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("create token directory: %w", err)
	}
	clock := opts.TimeProvider
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	return &FileStore{dir: opts.Dir, clock: clock}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+fileSuffix)
}

// Store writes value under key for ttl. The file is replaced atomically.
func (f *FileStore) Store(_ context.Context, key string, ttl time.Duration, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}

	raw, err := json.Marshal(fileRecord{Value: value, Expires: f.clock.Now().Add(ttl).UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename token file: %w", err)
	}
	return nil
}

// Get returns the stored value, or nil when the key is absent or expired.
// Expired files are removed on read.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrClosed
	}

	rec, err := f.read(key)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Expires <= f.clock.Now().UnixMilli() {
		if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove expired token file: %w", err)
		}
		return nil, nil
	}
	return rec.Value, nil
}

func (f *FileStore) read(key string) (*fileRecord, error) {
	raw, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return &rec, nil
}

// Delete removes keys and returns how many live entries were removed.
func (f *FileStore) Delete(_ context.Context, keys []string) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, ErrClosed
	}

	now := f.clock.Now().UnixMilli()
	n := 0
	var errs []error
	for _, k := range core.UniqueKeys(keys) {
		rec, err := f.read(k)
		if err != nil {
			// Unreadable files are still removed.
			rec = nil
		}
		if rmErr := os.Remove(f.path(k)); rmErr != nil {
			if !errors.Is(rmErr, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove token %q: %w", k, rmErr))
			}
			continue
		}
		if rec != nil && rec.Expires > now {
			n++
		}
	}
	return n, errors.Join(errs...)
}

// PurgeExpired removes every expired token file. It holds the store exclusively, so no
// Store on the same key can land between the expiry check and the removal.
func (f *FileStore) PurgeExpired(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, ErrClosed
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("list token files: %w", err)
	}
	now := f.clock.Now().UnixMilli()
	n := 0
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}
		rec, err := f.read(string(raw))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rec == nil || rec.Expires > now {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove expired token file: %w", err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Close marks the store closed. Files stay on disk.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
