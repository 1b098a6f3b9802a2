package activation

import (
	"errors"
	"fmt"

	"github.com/PortNumber53/tryout-admin/backend/internal/store"
)

var (
	// ErrNotFound means the transaction or its subscription type does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means the requested status change is not permitted.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPersistence means a store read or write failed. Nothing was committed.
	ErrPersistence = errors.New("persistence failure")

	// ErrConflict means a concurrent activation for the same user and
	// subscription type won the race. Retrying the whole operation is safe.
	ErrConflict = errors.New("concurrent activation conflict")
)

func isClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPersistence) ||
		errors.Is(err, ErrConflict)
}

// classify wraps a store error into the activation taxonomy. Errors that are
// already classified pass through unchanged.
func classify(op string, err error) error {
	if err == nil || isClassified(err) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %s: %w", ErrConflict, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
	}
}

// ErrorKind names the taxonomy class of err for logs and metrics. It returns
// an empty string for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "persistence"
	}
}
