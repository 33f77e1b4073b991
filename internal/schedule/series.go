// Package schedule projects recurring series into dated instances, applying
// per-occurrence exceptions.
package schedule

import (
	"strings"
	"time"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/recurrence"
)

// Kind distinguishes single-account series from transfers between two accounts.
type Kind string

const (
	KindTransaction Kind = "transaction"
	KindTransfer    Kind = "transfer"
)

// Series is a recurrence definition.
type Series struct {
	ID             string             `json:"id"`
	Kind           Kind               `json:"kind"`
	AccountID      string             `json:"account_id"`
	ToAccountID    string             `json:"to_account_id,omitempty"`
	Description    string             `json:"description"`
	Amount         money.Amount       `json:"amount"`
	Pattern        recurrence.Pattern `json:"-"`
	StartDate      date.Date          `json:"start_date"`
	EndDate        *date.Date         `json:"end_date,omitempty"`
	IsActive       bool               `json:"is_active"`
	NextOccurrence date.Date          `json:"next_occurrence"`
	ImportPatterns []string           `json:"import_patterns,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// IsTransfer reports whether realizing the series produces two legs.
func (s Series) IsTransfer() bool { return s.Kind == KindTransfer }

// TouchesAccount reports whether accountID is one of the series' accounts.
func (s Series) TouchesAccount(accountID string) bool {
	return s.AccountID == accountID || (s.IsTransfer() && s.ToAccountID == accountID)
}

// OccurrencesBetween returns the scheduled dates of s within [from, to].
func (s Series) OccurrencesBetween(from, to date.Date) []date.Date {
	return s.Pattern.OccurrencesBetween(s.StartDate, s.EndDate, from, to)
}

// Schedules reports whether on is one of the series' scheduled dates.
func (s Series) Schedules(on date.Date) bool {
	return s.Pattern.Includes(s.StartDate, s.EndDate, on)
}

// HasImportPattern reports whether description contains one of the learned
// bank-statement texts (case-insensitive).
func (s Series) HasImportPattern(description string) bool {
	desc := strings.ToUpper(strings.TrimSpace(description))
	if desc == "" {
		return false
	}
	for _, p := range s.ImportPatterns {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" && strings.Contains(desc, p) {
			return true
		}
	}
	return false
}
