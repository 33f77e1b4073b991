package schedule

import (
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/money"
)

// ExceptionType is the kind of per-occurrence override.
type ExceptionType string

const (
	ExceptionSkipped  ExceptionType = "skipped"
	ExceptionModified ExceptionType = "modified"
)

// Exception overrides a single occurrence without touching the series.
type Exception struct {
	SeriesID     string        `json:"series_id"`
	OriginalDate date.Date     `json:"original_date"`
	Type         ExceptionType `json:"type"`
	Amount       *money.Amount `json:"amount,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Date         *date.Date    `json:"date,omitempty"`
}

// IsSkipped reports whether the occurrence is suppressed.
func (e Exception) IsSkipped() bool { return e.Type == ExceptionSkipped }

// Key identifies one occurrence of one series by its scheduled date.
type Key struct {
	SeriesID string
	Date     date.Date
}

// Overlay is a sparse set of exceptions keyed by occurrence.
type Overlay map[Key]Exception

// NewOverlay indexes excs by (series, original date).
func NewOverlay(excs ...Exception) Overlay {
	o := make(Overlay, len(excs))
	for _, e := range excs {
		o.Add(e)
	}
	return o
}

// Add records e, replacing any exception for the same occurrence.
func (o Overlay) Add(e Exception) { o[Key{SeriesID: e.SeriesID, Date: e.OriginalDate}] = e }

// Lookup returns the exception for the occurrence, if any.
func (o Overlay) Lookup(seriesID string, on date.Date) (Exception, bool) {
	e, ok := o[Key{SeriesID: seriesID, Date: on}]
	return e, ok
}

// Realized maps an occurrence to the id of the transaction realizing it.
type Realized map[Key]string

// Lookup returns the transaction id realizing the occurrence, if any.
func (r Realized) Lookup(seriesID string, on date.Date) (string, bool) {
	id, ok := r[Key{SeriesID: seriesID, Date: on}]
	return id, ok
}

// Resolve returns the first present value: explicit override, then exception
// override, then the series default. Projection and realization both use it.
func Resolve[T any](override, exception *T, fallback T) T {
	if override != nil {
		return *override
	}
	if exception != nil {
		return *exception
	}
	return fallback
}
