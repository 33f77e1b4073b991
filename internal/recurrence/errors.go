package recurrence

import (
	"errors"
	"fmt"
)

// ErrInvalidPattern matches every *ValidationError through errors.Is.
var ErrInvalidPattern = errors.New("invalid recurrence pattern")

// ValidationError reports a malformed pattern field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid recurrence pattern: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidPattern }
