package matching

import (
	"github.com/shopspring/decimal"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/schedule"
)

// Level is the discretized confidence of a match.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Status is where a match stands in review.
type Status string

const (
	StatusMatched Status = "matched"
	StatusPending Status = "pending"
	StatusMissing Status = "missing"
	StatusSkipped Status = "skipped"
)

// Source tells whether the matcher or a user created the match.
type Source string

const (
	SourceAuto   Source = "auto"
	SourceManual Source = "manual"
)

// Imported is an externally imported transaction awaiting reconciliation.
type Imported struct {
	ID          string
	AccountID   string
	Date        date.Date
	Amount      money.Amount
	Description string
}

// Candidate is a pending instance together with its series.
type Candidate struct {
	Instance schedule.Instance
	Series   schedule.Series
}

// Scores holds the per-dimension sub-scores, each in [0,1].
type Scores struct {
	Amount      float64
	Date        float64
	Description float64
}

// Evaluation is the scoring of one candidate.
type Evaluation struct {
	Candidate      Candidate
	Scores         Scores
	Score          float64
	AmountVariance decimal.Decimal // |imported| - |expected|
	VariancePct    decimal.Decimal
	DateOffsetDays int
	Disqualified   bool
	Reason         string
}

// Result is the outcome of FindBestMatch.
type Result struct {
	Best       *Evaluation
	Status     Status
	Level      Level
	Considered int
	Qualified  int
}

// Matched reports whether the result may be linked automatically.
func (r Result) Matched() bool { return r.Status == StatusMatched }
