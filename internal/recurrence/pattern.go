// Package recurrence enumerates the calendar dates a recurring item is
// scheduled on.
package recurrence

import (
	"time"

	"github.com/jask/recurring/internal/date"
)

// Pattern is an immutable recurrence rule. Two patterns are equal (==) iff
// all their fields match.
type Pattern struct {
	freq     Frequency
	interval int
	weekday  time.Weekday
	day      int
	month    time.Month
}

// Spec is the serializable form of a Pattern.
type Spec struct {
	Frequency   Frequency     `json:"frequency"`
	Interval    int           `json:"interval"`
	DayOfWeek   *time.Weekday `json:"day_of_week,omitempty"`
	DayOfMonth  int           `json:"day_of_month,omitempty"`
	MonthOfYear time.Month    `json:"month_of_year,omitempty"`
}

// New validates s and returns the Pattern. Anchors that the frequency does not
// use are dropped so equality only depends on meaningful fields.
func New(s Spec) (Pattern, error) {
	if s.Frequency < Daily || s.Frequency > Yearly {
		return Pattern{}, &ValidationError{Field: "frequency", Reason: "unknown frequency"}
	}
	if s.Interval <= 0 {
		return Pattern{}, &ValidationError{Field: "interval", Reason: "must be a positive integer"}
	}
	p := Pattern{freq: s.Frequency, interval: s.Interval}
	if s.Frequency.usesWeekday() {
		if s.DayOfWeek == nil {
			return Pattern{}, &ValidationError{Field: "day_of_week", Reason: "required for " + s.Frequency.String()}
		}
		if *s.DayOfWeek < time.Sunday || *s.DayOfWeek > time.Saturday {
			return Pattern{}, &ValidationError{Field: "day_of_week", Reason: "out of range"}
		}
		p.weekday = *s.DayOfWeek
	}
	if s.Frequency.usesDayOfMonth() {
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return Pattern{}, &ValidationError{Field: "day_of_month", Reason: "must be within 1..31"}
		}
		p.day = s.DayOfMonth
	}
	if s.Frequency == Yearly {
		if s.MonthOfYear < time.January || s.MonthOfYear > time.December {
			return Pattern{}, &ValidationError{Field: "month_of_year", Reason: "must be within 1..12"}
		}
		p.month = s.MonthOfYear
	}
	return p, nil
}

// MustNew is like New but panics on error.
func MustNew(s Spec) Pattern {
	p, err := New(s)
	if err != nil {
		panic(err.Error())
	}
	return p
}

func (p Pattern) Frequency() Frequency    { return p.freq }
func (p Pattern) Interval() int           { return p.interval }
func (p Pattern) DayOfMonth() int         { return p.day }
func (p Pattern) MonthOfYear() time.Month { return p.month }

// DayOfWeek returns the weekday anchor for weekly patterns.
func (p Pattern) DayOfWeek() (time.Weekday, bool) { return p.weekday, p.freq.usesWeekday() }

// IsZero reports whether p was never constructed.
func (p Pattern) IsZero() bool { return p.interval == 0 }

// Spec returns the serializable form of p.
func (p Pattern) Spec() Spec {
	s := Spec{Frequency: p.freq, Interval: p.interval, DayOfMonth: p.day, MonthOfYear: p.month}
	if p.freq.usesWeekday() {
		wd := p.weekday
		s.DayOfWeek = &wd
	}
	return s
}

// OccurrencesBetween returns the scheduled dates within [from, to], clipped to
// [start, end]. A nil end means the series never ends. The result is ordered
// and bounded by the queried range.
func (p Pattern) OccurrencesBetween(start date.Date, end *date.Date, from, to date.Date) []date.Date {
	lo := date.Max(from, start)
	hi := to
	if end != nil {
		hi = date.Min(hi, *end)
	}
	if hi.Before(lo) || p.IsZero() {
		return nil
	}
	switch p.freq {
	case Daily:
		return stepDays(start, p.interval, lo, hi)
	case Weekly:
		return stepDays(p.weekAnchor(start), 7*p.interval, lo, hi)
	case BiWeekly:
		return stepDays(p.weekAnchor(start), 14*p.interval, lo, hi)
	case Monthly:
		return p.stepMonths(start, p.interval, lo, hi)
	case Quarterly:
		return p.stepMonths(start, 3*p.interval, lo, hi)
	case Yearly:
		return p.stepMonths(start, 12*p.interval, lo, hi)
	}
	return nil
}

// Includes reports whether on is a scheduled occurrence.
func (p Pattern) Includes(start date.Date, end *date.Date, on date.Date) bool {
	return len(p.OccurrencesBetween(start, end, on, on)) == 1
}

// Next returns the first occurrence strictly after the given date.
func (p Pattern) Next(start date.Date, end *date.Date, after date.Date) (date.Date, bool) {
	lo := date.Max(after.Add(1), start)
	occ := p.OccurrencesBetween(start, end, lo, lo.Add(p.maxGap()))
	if len(occ) == 0 {
		return date.Date{}, false
	}
	return occ[0], true
}

// First returns the first occurrence on or after start.
func (p Pattern) First(start date.Date, end *date.Date) (date.Date, bool) {
	return p.Next(start, end, start.Add(-1))
}

// maxGap bounds the distance between two consecutive occurrences, anchor
// offset included.
func (p Pattern) maxGap() int {
	switch p.freq {
	case Daily:
		return p.interval
	case Weekly:
		return 7*p.interval + 7
	case BiWeekly:
		return 14*p.interval + 7
	case Monthly:
		return 31*p.interval + 31
	case Quarterly:
		return 93*p.interval + 31
	default:
		return 366*p.interval + 366
	}
}

// weekAnchor is the first date on or after start falling on the weekday. The
// cadence always counts from it, so pausing or skipping never shifts it.
func (p Pattern) weekAnchor(start date.Date) date.Date {
	offset := (int(p.weekday) - int(start.Weekday()) + 7) % 7
	return start.Add(offset)
}

func stepDays(anchor date.Date, step int, lo, hi date.Date) []date.Date {
	k := 0
	if gap := anchor.DaysUntil(lo); gap > 0 {
		k = (gap + step - 1) / step
	}
	var out []date.Date
	for d := anchor.Add(k * step); !d.After(hi); d = d.Add(step) {
		out = append(out, d)
	}
	return out
}

func (p Pattern) stepMonths(start date.Date, step int, lo, hi date.Date) []date.Date {
	month := start.Month()
	if p.freq == Yearly {
		month = p.month
	}
	base := start.Year()*12 + int(month) - 1
	k := 0
	if gap := lo.Year()*12 + int(lo.Month()) - 1 - base; gap > 0 {
		k = gap / step
	}
	var out []date.Date
	for ; ; k++ {
		idx := base + k*step
		d := date.Clamped(idx/12, time.Month(idx%12+1), p.day)
		if d.After(hi) {
			break
		}
		if !d.Before(lo) && !d.Before(start) {
			out = append(out, d)
		}
	}
	return out
}
