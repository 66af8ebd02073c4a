package engine

import (
	"errors"
	"fmt"
)

// ValidationError indicates a rejected input value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ForbiddenError indicates an operation the caller may not perform.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return e.Reason
}

// ErrConflict is returned when concurrent timer starts for the same user
// cannot be reconciled after a retry.
var ErrConflict = errors.New("conflicting open timer")
