package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/mongo"

	apperrors "github.com/target/docauth/internal/errors"
)

var errRevisionConflict = apperrors.Conflict("document update conflict")

// mapError maps driver errors to AppError instances:
// - duplicate keys → Conflict
// - timeouts and cancellations → Timeout/Canceled
// - network failures → Upstream
//
// Unrecognized errors are returned unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "Request timed out. Please try again.")
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "Request was canceled.")
	}
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.Wrap(err, apperrors.ErrCodeConflict, "document already exists")
	}
	if mongo.IsNetworkError(err) {
		return apperrors.Upstream(err, "Document store is unreachable.")
	}
	return err
}
