package schedule

import (
	"slices"
	"strings"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/money"
)

// Instance is one projected occurrence after the exception overlay.
type Instance struct {
	SeriesID      string       `json:"series_id"`
	ScheduledDate date.Date    `json:"scheduled_date"`
	Date          date.Date    `json:"date"`
	Amount        money.Amount `json:"amount"`
	Description   string       `json:"description"`
	IsModified    bool         `json:"is_modified"`
	IsSkipped     bool         `json:"is_skipped"`
	IsGenerated   bool         `json:"is_generated"`
	TransactionID string       `json:"transaction_id,omitempty"`
}

// Key returns the occurrence key of the instance.
func (i Instance) Key() Key { return Key{SeriesID: i.SeriesID, Date: i.ScheduledDate} }

// Project lists the instances of s scheduled within [from, to]. Skipped
// occurrences are omitted. The result is ordered by effective date.
func Project(s Series, overlay Overlay, realized Realized, from, to date.Date) []Instance {
	return project(s, overlay, realized, from, to, false)
}

// Expand is like Project but keeps skipped occurrences, flagged IsSkipped.
func Expand(s Series, overlay Overlay, realized Realized, from, to date.Date) []Instance {
	return project(s, overlay, realized, from, to, true)
}

func project(s Series, overlay Overlay, realized Realized, from, to date.Date, keepSkipped bool) []Instance {
	dates := s.OccurrencesBetween(from, to)
	out := make([]Instance, 0, len(dates))
	for _, on := range dates {
		inst := Instance{
			SeriesID:      s.ID,
			ScheduledDate: on,
			Date:          on,
			Amount:        s.Amount,
			Description:   s.Description,
		}
		if exc, ok := overlay.Lookup(s.ID, on); ok {
			if exc.IsSkipped() {
				if !keepSkipped {
					continue
				}
				inst.IsSkipped = true
			} else {
				inst.IsModified = true
				inst.Amount = Resolve(nil, exc.Amount, s.Amount)
				inst.Description = Resolve(nil, exc.Description, s.Description)
				inst.Date = Resolve(nil, exc.Date, on)
			}
		}
		if id, ok := realized.Lookup(s.ID, on); ok {
			inst.IsGenerated = true
			inst.TransactionID = id
		}
		out = append(out, inst)
	}
	SortInstances(out)
	return out
}

// SortInstances orders instances by effective date, then scheduled date, then
// series id. A date-shifting exception may place an instance out of its
// series' scheduled order; that is the date it will really happen on.
func SortInstances(instances []Instance) {
	slices.SortStableFunc(instances, func(a, b Instance) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := a.ScheduledDate.Compare(b.ScheduledDate); c != 0 {
			return c
		}
		return strings.Compare(a.SeriesID, b.SeriesID)
	})
}
