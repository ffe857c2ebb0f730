package automation

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no automation request exists for an id.
var ErrNotFound = errors.New("automation request not found")

// ValidationError rejects malformed input before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidStateError rejects an operation the current status does not
// permit. No mutation occurs.
type InvalidStateError struct {
	ID     string
	Status Status
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %q", e.Op, e.ID, e.Status)
}

// ConflictError reports a lost optimistic-concurrency check: another
// operation advanced the record between read and write. Callers should
// re-fetch and decide whether to reissue.
type ConflictError struct {
	ID       string
	Expected Status
	Actual   Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request %s changed status (expected %q, now %q)", e.ID, e.Expected, e.Actual)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var serr *InvalidStateError
	return errors.As(err, &serr)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var cerr *ConflictError
	return errors.As(err, &cerr)
}
