package helper

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Sentinel errors classifying every failure the pipeline can produce.
// Callers branch with errors.Is; NewError keeps the wrapping chain intact.
var (
	// ErrValidation marks malformed input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks a uniqueness violation during entity creation.
	// Caught by the resolver and converted to a re-resolve.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a store failure (timeout, connection drop) that is
	// safe to retry.
	ErrTransient = errors.New("transient store error")
	// ErrBoundary marks a failed call to an external boundary (embedding,
	// mention extraction). Treated as transient at the call site.
	ErrBoundary = errors.New("boundary error")
)

// NewError wraps an error with the operation that produced it
func NewError(operation string, err error) error {
	return fmt.Errorf("error in %s: %w", operation, err)
}

// NewValidationError creates a validation error with a reason
func NewValidationError(operation string, reason string) error {
	return fmt.Errorf("error in %s: %w: %s", operation, ErrValidation, reason)
}

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// ClassifyPQ maps a database error onto the error taxonomy. Unique violations
// become ErrConflict so the resolver can catch and re-resolve; everything
// else from the driver is treated as transient.
func ClassifyPQ(operation string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("error in %s: %w: %v", operation, ErrConflict, err)
	}

	return fmt.Errorf("error in %s: %w: %v", operation, ErrTransient, err)
}
