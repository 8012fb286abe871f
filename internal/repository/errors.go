package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/dispatch-api/pkg/database"
)

var (
	// ErrStaleState means the row changed status between the locked read and the write.
	ErrStaleState = errors.New("service request status changed concurrently")
	// ErrLockTimeout means the row lock could not be acquired in time. Nothing was written.
	ErrLockTimeout = errors.New("service request lock not available")
)

// lockError maps lock waits that ran out of time onto ErrLockTimeout.
func lockError(ctx context.Context, op string, err error) error {
	if database.IsLockTimeout(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrLockTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
