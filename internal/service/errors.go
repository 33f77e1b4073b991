package service

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/jask/recurring/internal/date"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInactive        = errors.New("series is inactive")
	ErrNotScheduled    = errors.New("date is not a scheduled occurrence")
	ErrSkipped         = errors.New("occurrence is skipped")
	ErrAlreadyRealized = errors.New("occurrence already realized")
	ErrConflict        = errors.New("conflicting write, retry")
	ErrValidation      = errors.New("invalid input")
)

// AlreadyRealizedError reports the transaction that already exists for an
// occurrence. It matches ErrAlreadyRealized with errors.Is.
type AlreadyRealizedError struct {
	SeriesID      string
	Date          date.Date
	TransactionID string
}

func (e *AlreadyRealizedError) Error() string {
	return fmt.Sprintf("series %s occurrence %s already realized as transaction %s", e.SeriesID, e.Date, e.TransactionID)
}

func (e *AlreadyRealizedError) Is(target error) bool { return target == ErrAlreadyRealized }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// isConflict reports a write that lost to a concurrent writer: a unique-index
// violation, or the database still locked once the busy timeout ran out.
func isConflict(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked || isUniqueViolation(err)
}

// conflict maps a lost concurrent write to ErrConflict.
func conflict(err error) error {
	if err != nil && isConflict(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
