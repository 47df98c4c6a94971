package tokenstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/docauth/internal/core"
	"github.com/target/docauth/internal/data"
)

type storeFactory func(t *testing.T, clock data.TimeProvider) core.TokenStore

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(_ *testing.T, clock data.TimeProvider) core.TokenStore {
			return NewSerialized(NewMemoryStore(MemoryStoreOptions{TimeProvider: clock}))
		},
		"file": func(t *testing.T, clock data.TimeProvider) core.TokenStore {
			fs, err := NewFileStore(FileStoreOptions{Dir: t.TempDir(), TimeProvider: clock})
			require.NoError(t, err)
			return NewSerialized(fs)
		},
	}
}

func TestTokenStore_Contract(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := data.NewFixedTimeProvider(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			store := factory(t, clock)
			defer store.Close()

			t.Run("store and get", func(t *testing.T) {
				require.NoError(t, store.Store(ctx, "token:a", time.Minute, []byte(`{"k":"a"}`)))
				got, err := store.Get(ctx, "token:a")
				require.NoError(t, err)
				assert.JSONEq(t, `{"k":"a"}`, string(got))
			})

			t.Run("missing key returns nil", func(t *testing.T) {
				got, err := store.Get(ctx, "token:missing")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("entry expires after ttl", func(t *testing.T) {
				require.NoError(t, store.Store(ctx, "token:b", time.Second, []byte("b")))
				clock.AddTime(999 * time.Millisecond)
				got, err := store.Get(ctx, "token:b")
				require.NoError(t, err)
				assert.Equal(t, []byte("b"), got)

				clock.AddTime(time.Millisecond)
				got, err = store.Get(ctx, "token:b")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("non-positive ttl stores an expired entry", func(t *testing.T) {
				require.NoError(t, store.Store(ctx, "token:c", 0, []byte("c")))
				got, err := store.Get(ctx, "token:c")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("delete counts live keys once", func(t *testing.T) {
				require.NoError(t, store.Store(ctx, "token:d1", time.Hour, []byte("1")))
				require.NoError(t, store.Store(ctx, "token:d2", time.Hour, []byte("2")))
				n, err := store.Delete(ctx, []string{"token:d1", "token:d2", "token:d1", "token:nope", ""})
				require.NoError(t, err)
				assert.Equal(t, 2, n)

				got, err := store.Get(ctx, "token:d1")
				require.NoError(t, err)
				assert.Nil(t, got)
			})

			t.Run("empty key rejected", func(t *testing.T) {
				assert.Error(t, store.Store(ctx, "", time.Minute, []byte("x")))
			})
		})
	}
}

func TestTokenStore_ConcurrentWritesSameKey(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, data.RealTimeProvider{})
			defer store.Close()

			payloadA := []byte(`{"writer":"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}`)
			payloadB := []byte(`{"writer":"b"}`)

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Store(ctx, "token:same", time.Minute, payloadA))
				}()
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Store(ctx, "token:same", time.Minute, payloadB))
				}()
			}
			wg.Wait()

			got, err := store.Get(ctx, "token:same")
			require.NoError(t, err)
			assert.True(t, string(got) == string(payloadA) || string(got) == string(payloadB),
				"stored value must be exactly one payload, got %q", got)
		})
	}
}

func TestSerialized_DifferentKeysDoNotBlock(t *testing.T) {
	inner := newBlockingStore()
	store := NewSerialized(inner)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		_ = store.Store(ctx, "slow", time.Minute, []byte("x"))
		close(done)
	}()
	<-inner.entered

	require.NoError(t, store.Store(ctx, "fast", time.Minute, []byte("y")))
	close(inner.release)
	<-done
	assert.Empty(t, store.locks)
}

func TestMemoryStore_PurgeAndClose(t *testing.T) {
	ctx := context.Background()
	clock := data.NewFixedTimeProvider(time.Unix(0, 0))
	store := NewMemoryStore(MemoryStoreOptions{TimeProvider: clock})

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Store(ctx, fmt.Sprintf("k%d", i), time.Duration(i+1)*time.Second, []byte("v")))
	}
	clock.AddTime(2 * time.Second)
	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Close())
	_, err = store.Get(ctx, "k2")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTokenStore_PurgeExpired(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := data.NewFixedTimeProvider(time.Unix(1_700_000_000, 0))
			store := factory(t, clock)
			purger, ok := store.(core.TokenPurger)
			require.True(t, ok)

			require.NoError(t, store.Store(ctx, "token:old", time.Second, []byte("a")))
			require.NoError(t, store.Store(ctx, "token:new", time.Hour, []byte("b")))
			clock.AddTime(time.Minute)

			n, err := purger.PurgeExpired(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = store.Delete(ctx, []string{"token:old", "token:new"})
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	_, err := NewFileStore(FileStoreOptions{})
	assert.Error(t, err)
}

// blockingStore blocks Store calls for the key "slow" until release is closed.
type blockingStore struct {
	*MemoryStore
	entered chan struct{}
	release chan struct{}
}

func newBlockingStore() *blockingStore {
	return &blockingStore{
		MemoryStore: NewMemoryStore(MemoryStoreOptions{}),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (b *blockingStore) Store(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if key == "slow" {
		close(b.entered)
		<-b.release
	}
	return b.MemoryStore.Store(ctx, key, ttl, value)
}
