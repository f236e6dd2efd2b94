package clinic

import (
	"context"
	"errors"
)

// WithRetry runs fn up to attempts times, retrying only on ErrConflict.
// Transaction-layer races are transient; anything else surfaces immediately.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
