package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/docauth/config"
	"github.com/target/docauth/internal/data"
	"github.com/target/docauth/internal/domain/model"
	apperrors "github.com/target/docauth/internal/errors"
	"github.com/target/docauth/internal/mocks"
	"github.com/target/docauth/internal/service/dbauth"
)

// fakeSessionSweeper is a simple ExpiredSessionSweeper for testing.
type fakeSessionSweeper struct {
	calls  int
	result dbauth.SweepResult
	err    error
}

func (f *fakeSessionSweeper) RemoveExpiredKeys(context.Context) (dbauth.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeTokenPurger struct {
	purged int
	err    error
}

func (f *fakeTokenPurger) PurgeExpired(context.Context) (int, error) {
	return f.purged, f.err
}

// recordingSink captures metrics emitted through statsd.Sink.
type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: map[string]int64{}, gauges: map[string]float64{}}
}

func (r *recordingSink) Count(name string, value int64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := name
	if task := tags["task"]; task != "" {
		key += "." + task
	}
	if result := tags["result"]; result != "" {
		key += "." + result
	}
	r.counts[key] += value
}

func (r *recordingSink) Gauge(name string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

func (r *recordingSink) Timing(string, time.Duration, map[string]string) {}

func testSweeperConfig() config.SweeperConfig {
	return config.SweeperConfig{Interval: 5 * time.Minute, Timeout: time.Minute}
}

func TestNewSweeperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewSweeperService(SweeperServiceOptions{
			Sessions: &fakeSessionSweeper{},
			Config:   testSweeperConfig(),
			Logger:   slog.Default(),
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when session sweeper is nil", func(t *testing.T) {
		_, err := NewSweeperService(SweeperServiceOptions{Config: testSweeperConfig()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ExpiredSessionSweeper is required")
	})

	t.Run("applies config guardrails", func(t *testing.T) {
		svc, err := NewSweeperService(SweeperServiceOptions{
			Sessions: &fakeSessionSweeper{},
			Config:   config.SweeperConfig{Interval: time.Second},
		})
		require.NoError(t, err)
		assert.Equal(t, time.Minute, svc.config.Interval)
		assert.Equal(t, time.Minute, svc.config.Timeout)
	})
}

func TestSweeperService_RunOnce(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	nowMs := now.UnixMilli()

	t.Run("runs every task", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		keys := mocks.NewMockSecurityKeyAdapter(ctrl)
		users := mocks.NewMockUserRepository(ctrl)
		sessions := &fakeSessionSweeper{result: dbauth.SweepResult{Keys: []string{"k1", "k2"}, Users: 1}}
		sink := newRecordingSink()

		stale := &model.User{ID: "alice", ForgotPassword: &model.ForgotPassword{Token: "h", Expires: nowMs - 1}}
		keys.EXPECT().RemoveExpiredKeys(gomock.Any(), nowMs).Return([]string{"orphan"}, nil)
		users.EXPECT().ExpiredPasswordResets(gomock.Any(), nowMs).Return([]*model.User{stale}, nil)
		users.EXPECT().BulkPut(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, us []*model.User) ([]error, error) {
				require.Len(t, us, 1)
				assert.Nil(t, us[0].ForgotPassword)
				return []error{nil}, nil
			})

		svc, err := NewSweeperService(SweeperServiceOptions{
			Sessions:     sessions,
			Keys:         keys,
			Tokens:       &fakeTokenPurger{purged: 3},
			Users:        users,
			Config:       testSweeperConfig(),
			TimeProvider: data.NewFixedTimeProvider(now),
			Metrics:      sink,
		})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(context.Background()))
		assert.Equal(t, 1, sessions.calls)
		assert.Equal(t, int64(3), sink.counts["sweep.removed.expired_tokens"])
		assert.Equal(t, int64(2), sink.counts["sweep.removed.expired_sessions"])
		assert.Equal(t, int64(1), sink.counts["sweep.removed.expired_keys"])
		assert.Equal(t, int64(1), sink.counts["sweep.removed.expired_resets"])
		assert.Equal(t, float64(now.Unix()), sink.gauges["sweep.last_success_epoch"])
	})

	t.Run("optional tasks are skipped without dependencies", func(t *testing.T) {
		sessions := &fakeSessionSweeper{}
		sink := newRecordingSink()
		svc, err := NewSweeperService(SweeperServiceOptions{
			Sessions: sessions,
			Config:   testSweeperConfig(),
			Metrics:  sink,
		})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(context.Background()))
		assert.Equal(t, 1, sessions.calls)
		assert.Equal(t, int64(1), sink.counts["sweep.run.expired_keys.noop"])
		assert.Equal(t, int64(1), sink.counts["sweep.run.expired_tokens.noop"])
		assert.Equal(t, int64(1), sink.counts["sweep.run.expired_resets.noop"])
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		keys := mocks.NewMockSecurityKeyAdapter(ctrl)
		users := mocks.NewMockUserRepository(ctrl)
		sessions := &fakeSessionSweeper{err: errors.New("store down")}
		sink := newRecordingSink()

		keys.EXPECT().RemoveExpiredKeys(gomock.Any(), gomock.Any()).Return(nil, nil)
		users.EXPECT().ExpiredPasswordResets(gomock.Any(), gomock.Any()).Return(nil, nil)

		svc, err := NewSweeperService(SweeperServiceOptions{
			Sessions: sessions,
			Keys:     keys,
			Users:    users,
			Config:   testSweeperConfig(),
			Metrics:  sink,
		})
		require.NoError(t, err)

		err = svc.RunOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expired_sessions")
		assert.Equal(t, int64(1), sink.counts["sweep.run.expired_sessions.error"])
		assert.NotContains(t, sink.gauges, "sweep.last_success_epoch")
	})

	t.Run("conflicting reset writes are skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		users := mocks.NewMockUserRepository(ctrl)
		sink := newRecordingSink()

		batch := []*model.User{
			{ID: "alice", ForgotPassword: &model.ForgotPassword{Expires: nowMs - 10}},
			{ID: "bob", ForgotPassword: &model.ForgotPassword{Expires: nowMs - 10}},
		}
		users.EXPECT().ExpiredPasswordResets(gomock.Any(), nowMs).Return(batch, nil)
		users.EXPECT().BulkPut(gomock.Any(), batch).Return([]error{nil, apperrors.Conflict("stale revision")}, nil)

		svc, err := NewSweeperService(SweeperServiceOptions{
			Sessions:     &fakeSessionSweeper{},
			Users:        users,
			Config:       testSweeperConfig(),
			TimeProvider: data.NewFixedTimeProvider(now),
			Metrics:      sink,
		})
		require.NoError(t, err)

		require.NoError(t, svc.RunOnce(context.Background()))
		assert.Equal(t, int64(1), sink.counts["sweep.removed.expired_resets"])
		assert.Equal(t, int64(1), sink.counts["sweep.skipped.expired_resets"])
	})

	t.Run("cancelled context is reported as cancellation", func(t *testing.T) {
		sessions := &fakeSessionSweeper{err: context.Canceled}
		svc, err := NewSweeperService(SweeperServiceOptions{
			Sessions: sessions,
			Config:   testSweeperConfig(),
		})
		require.NoError(t, err)

		err = svc.RunOnce(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSweeperService_Run(t *testing.T) {
	sessions := &fakeSessionSweeper{}
	svc, err := NewSweeperService(SweeperServiceOptions{
		Sessions: sessions,
		Config:   testSweeperConfig(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, svc.Run(ctx))
}
