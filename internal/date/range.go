package date

import "fmt"

// Range represents an inclusive range of dates.
type Range struct{ From, To Date }

// NewRange returns the range [from, to].
func NewRange(from, to Date) Range { return Range{From: from, To: to} }

// Around returns the range centered on d, widened by days on both sides.
func Around(d Date, days int) Range { return Range{From: d.Add(-days), To: d.Add(days)} }

// Contains returns true if date is included in the range (boundaries included).
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }

// Empty reports whether the range contains no day.
func (r Range) Empty() bool { return r.To.Before(r.From) }

// Days returns the number of days in the range.
func (r Range) Days() int {
	if r.Empty() {
		return 0
	}
	return r.From.DaysUntil(r.To) + 1
}

func (r Range) String() string { return fmt.Sprintf("%s..%s", r.From, r.To) }
