// Package dbauth mirrors session keys into the database server's access control and
// coordinates per-user database provisioning and authorization.
package dbauth

import (
	"context"
	"fmt"

	"github.com/target/docauth/internal/errors"
)

// DefaultConflictAttempts bounds retries of credentials-mirror writes that hit a revision conflict.
const DefaultConflictAttempts = 2

// RetryOnConflict runs fn until it succeeds, fails with something other than a Conflict,
// or attempts runs out. Exhausting attempts yields an Upstream error wrapping the last conflict.
func RetryOnConflict(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(ctx); err == nil || !errors.IsConflict(err) {
			return err
		}
	}
	return errors.Upstream(err, fmt.Sprintf("write still conflicting after %d attempts", attempts))
}
