package dbauth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/target/docauth/internal/errors"
)

func TestRetryOnConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after a conflict", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(ctx, 2, func(context.Context) error {
			calls++
			if calls == 1 {
				return apperrors.Conflict("stale revision")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("exhaustion surfaces upstream failure", func(t *testing.T) {
		calls := 0
		err := RetryOnConflict(ctx, 2, func(context.Context) error {
			calls++
			return apperrors.Conflict("stale revision")
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.True(t, apperrors.IsUpstream(err))
		assert.True(t, apperrors.IsConflict(err), "cause stays reachable")
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		calls := 0
		boom := errors.New("boom")
		err := RetryOnConflict(ctx, 5, func(context.Context) error {
			calls++
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("non-positive attempts run once", func(t *testing.T) {
		calls := 0
		_ = RetryOnConflict(ctx, 0, func(context.Context) error {
			calls++
			return apperrors.Conflict("stale revision")
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("canceled context stops", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryOnConflict(cctx, 3, func(context.Context) error { return nil })
		require.ErrorIs(t, err, context.Canceled)
	})
}
