package prescription

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("prescription not found")

// PersistenceFailed wraps any failure of the transactional write. Nothing
// from the failed invocation is visible after it is returned.
type PersistenceFailed struct {
	Cause error
}

func (e *PersistenceFailed) Error() string {
	return fmt.Sprintf("persisting prescription: %v", e.Cause)
}

func (e *PersistenceFailed) Unwrap() error {
	return e.Cause
}

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
