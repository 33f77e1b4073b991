// Package matching scores imported bank transactions against projected
// instances of recurring series.
package matching

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Profile is a named tolerance bundle. Profiles differ both in how sub-scores
// are weighted and in the minimum acceptable sub-scores.
type Profile struct {
	Name                string
	MaxAmountPct        decimal.Decimal // fraction of the expected amount, 0.05 = 5%
	MaxDateDays         int
	MinDescriptionScore float64
	AmountWeight        float64
	DateWeight          float64
	DescriptionWeight   float64
}

var (
	Strict = Profile{
		Name:                "strict",
		MaxAmountPct:        decimal.RequireFromString("0.01"),
		MaxDateDays:         1,
		MinDescriptionScore: 0.5,
		AmountWeight:        0.5,
		DateWeight:          0.3,
		DescriptionWeight:   0.2,
	}
	Moderate = Profile{
		Name:                "moderate",
		MaxAmountPct:        decimal.RequireFromString("0.05"),
		MaxDateDays:         3,
		MinDescriptionScore: 0.3,
		AmountWeight:        0.4,
		DateWeight:          0.3,
		DescriptionWeight:   0.3,
	}
	Loose = Profile{
		Name:                "loose",
		MaxAmountPct:        decimal.RequireFromString("0.15"),
		MaxDateDays:         7,
		MinDescriptionScore: 0,
		AmountWeight:        0.3,
		DateWeight:          0.3,
		DescriptionWeight:   0.4,
	}
)

// ProfileByName returns one of the built-in profiles.
func ProfileByName(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "strict":
		return Strict, nil
	case "", "moderate":
		return Moderate, nil
	case "loose":
		return Loose, nil
	default:
		return Profile{}, fmt.Errorf("unknown tolerance profile %q", name)
	}
}

// Validate checks the profile can produce scores in [0,1].
func (p Profile) Validate() error {
	if p.MaxAmountPct.IsNegative() {
		return fmt.Errorf("profile %s: max amount pct must not be negative", p.Name)
	}
	if p.MaxDateDays < 0 {
		return fmt.Errorf("profile %s: max date days must not be negative", p.Name)
	}
	if p.AmountWeight < 0 || p.DateWeight < 0 || p.DescriptionWeight < 0 {
		return fmt.Errorf("profile %s: weights must not be negative", p.Name)
	}
	if p.AmountWeight+p.DateWeight+p.DescriptionWeight == 0 {
		return fmt.Errorf("profile %s: at least one weight must be positive", p.Name)
	}
	return nil
}

// Thresholds split combined scores into confidence levels.
type Thresholds struct {
	High   float64
	Medium float64
}

// DefaultThresholds are used when configuration does not override them.
var DefaultThresholds = Thresholds{High: 0.85, Medium: 0.60}

// Validate checks 0 <= Medium <= High <= 1.
func (t Thresholds) Validate() error {
	if t.Medium < 0 || t.High > 1 || t.Medium > t.High {
		return fmt.Errorf("thresholds must satisfy 0 <= medium (%.2f) <= high (%.2f) <= 1", t.Medium, t.High)
	}
	return nil
}
