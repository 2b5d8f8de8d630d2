package interfaces

import (
	"errors"
	"fmt"
)

// StatusError tags a failure with the Status it must be reported as.
// Components return it at their boundary; anything else reaching the exit
// path is reported as StatusErrorGeneric.
type StatusError struct {
	Status Status
	Err    error
}

// NewStatusError wraps err with status.
func NewStatusError(status Status, err error) *StatusError {
	return &StatusError{Status: status, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusFromError maps err to the Status it carries. Untagged errors and
// tags outside the status set map to StatusErrorGeneric.
func StatusFromError(err error) Status {
	var se *StatusError
	if errors.As(err, &se) && se.Status.Valid() {
		return se.Status
	}
	return StatusErrorGeneric
}
