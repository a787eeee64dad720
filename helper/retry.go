package helper

import (
	"context"
	"errors"
	"time"

	"github.com/lumenvc/dossier/model"
)

// Retry runs fn up to config.MaxAttempts times with exponential backoff,
// doubling the delay after each failed attempt. Validation, conflict and
// not-found errors are never retried; they are returned as-is. Context
// cancellation between attempts aborts the loop.
func Retry(ctx context.Context, config model.RetryConfig, operation string, fn func() error) error {
	if config.MaxAttempts <= 0 {
		config = model.DefaultRetryConfig()
	}

	var err error
	delay := config.BaseDelay
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return NewError(operation, err)
		}
		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return NewError(operation, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return NewError(operation, err)
}
