package recurrence

import (
	"fmt"
	"strings"
)

// Frequency is the unit a Pattern repeats on.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	BiWeekly
	Monthly
	Quarterly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case BiWeekly:
		return "biweekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Yearly:
		return "yearly"
	default:
		return fmt.Sprintf("frequency(%d)", int(f))
	}
}

// ParseFrequency accepts the String form and a few common aliases.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day":
		return Daily, nil
	case "weekly", "week":
		return Weekly, nil
	case "biweekly", "bi-weekly", "fortnightly":
		return BiWeekly, nil
	case "monthly", "month":
		return Monthly, nil
	case "quarterly", "quarter":
		return Quarterly, nil
	case "yearly", "year", "annually":
		return Yearly, nil
	default:
		return Daily, &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unknown frequency %q", s)}
	}
}

func (f Frequency) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Frequency) UnmarshalText(text []byte) error {
	v, err := ParseFrequency(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f Frequency) usesWeekday() bool { return f == Weekly || f == BiWeekly }

func (f Frequency) usesDayOfMonth() bool { return f == Monthly || f == Quarterly || f == Yearly }
