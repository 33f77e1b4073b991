package matching

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"
)

// containmentScore is awarded when one normalized description contains the other.
const containmentScore = 0.9

// AmountScore scores a variance percentage against the profile maximum. The
// score decays linearly from 1 at zero variance to 0 at the maximum; anything
// beyond the maximum is disqualified.
func AmountScore(variancePct, maxPct decimal.Decimal) (float64, bool) {
	if variancePct.GreaterThan(maxPct) {
		return 0, false
	}
	if maxPct.IsZero() {
		return 1, true
	}
	return 1 - variancePct.Div(maxPct).InexactFloat64(), true
}

// DateScore scores an offset in days against the profile maximum, using the
// same linear decay as AmountScore.
func DateScore(offsetDays, maxDays int) (float64, bool) {
	if offsetDays < 0 {
		offsetDays = -offsetDays
	}
	if offsetDays > maxDays {
		return 0, false
	}
	if maxDays == 0 {
		return 1, true
	}
	return 1 - float64(offsetDays)/float64(maxDays), true
}

// VariancePct returns ||imported| - |expected|| / |expected|. A zero expected
// amount yields 0 when imported is also zero and ok=false otherwise.
func VariancePct(imported, expected decimal.Decimal) (decimal.Decimal, bool) {
	exp := expected.Abs()
	diff := imported.Abs().Sub(exp).Abs()
	if exp.IsZero() {
		return decimal.Zero, diff.IsZero()
	}
	return diff.Div(exp), true
}

// DescriptionScore scores how well an imported description fits a candidate.
// A learned import pattern is a certain hit. Otherwise the best of the
// instance and series descriptions is used.
func DescriptionScore(imported string, c Candidate) float64 {
	if c.Series.HasImportPattern(imported) {
		return 1
	}
	best := TextSimilarity(imported, c.Instance.Description)
	if c.Series.Description != c.Instance.Description {
		best = max(best, TextSimilarity(imported, c.Series.Description))
	}
	return best
}

// TextSimilarity compares two free-text descriptions in [0,1].
func TextSimilarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return containmentScore
	}
	// ComputeDistance counts runes, so the divisor must too
	dist := levenshtein.ComputeDistance(a, b)
	ratio := 1 - float64(dist)/float64(max(utf8.RuneCountInString(a), utf8.RuneCountInString(b)))
	return max(ratio, tokenOverlap(a, b))
}

func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func tokenOverlap(a, b string) float64 {
	at, bt := tokens(a), tokens(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	intersect := 0
	for t := range at {
		if _, ok := bt[t]; ok {
			intersect++
		}
	}
	union := len(at) + len(bt) - intersect
	return float64(intersect) / float64(union)
}

func tokens(s string) map[string]struct{} {
	parts := strings.Fields(s)
	out := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		out[p] = struct{}{}
	}
	return out
}

// Evaluate scores one candidate under profile p.
func Evaluate(imp Imported, c Candidate, p Profile) Evaluation {
	ev := Evaluation{Candidate: c}
	inst := c.Instance

	if !imp.Amount.SameCurrency(inst.Amount) {
		ev.Disqualified = true
		ev.Reason = "currency mismatch"
		return ev
	}
	ev.AmountVariance = imp.Amount.Decimal().Abs().Sub(inst.Amount.Decimal().Abs())
	pct, ok := VariancePct(imp.Amount.Decimal(), inst.Amount.Decimal())
	ev.VariancePct = pct
	if !ok {
		ev.Disqualified = true
		ev.Reason = "expected amount is zero"
		return ev
	}
	ev.DateOffsetDays = abs(inst.Date.DaysUntil(imp.Date))

	var amountOK, dateOK bool
	ev.Scores.Amount, amountOK = AmountScore(pct, p.MaxAmountPct)
	ev.Scores.Date, dateOK = DateScore(ev.DateOffsetDays, p.MaxDateDays)
	ev.Scores.Description = DescriptionScore(imp.Description, c)

	switch {
	case !amountOK:
		ev.Disqualified, ev.Reason = true, "amount variance exceeds tolerance"
	case !dateOK:
		ev.Disqualified, ev.Reason = true, "date offset exceeds tolerance"
	case ev.Scores.Description < p.MinDescriptionScore:
		ev.Disqualified, ev.Reason = true, "description too dissimilar"
	}
	if ev.Disqualified {
		return ev
	}
	ev.Score = p.combine(ev.Scores)
	return ev
}

func (p Profile) combine(s Scores) float64 {
	total := p.AmountWeight + p.DateWeight + p.DescriptionWeight
	if total == 0 {
		return 0
	}
	score := (p.AmountWeight*s.Amount + p.DateWeight*s.Date + p.DescriptionWeight*s.Description) / total
	return min(max(score, 0), 1)
}

// Classify maps a combined score to a status and confidence level.
func Classify(score float64, t Thresholds) (Status, Level) {
	switch {
	case score >= t.High:
		return StatusMatched, LevelHigh
	case score >= t.Medium:
		return StatusPending, LevelMedium
	default:
		return StatusMissing, LevelLow
	}
}

// FindBestMatch scores every candidate and returns the best qualified one.
// Ties are broken by smaller date offset, then earlier scheduled date.
func FindBestMatch(imp Imported, candidates []Candidate, p Profile, t Thresholds) Result {
	res := Result{Status: StatusMissing, Level: LevelLow, Considered: len(candidates)}
	qualified := make([]Evaluation, 0, len(candidates))
	for _, c := range candidates {
		ev := Evaluate(imp, c, p)
		if ev.Disqualified {
			continue
		}
		qualified = append(qualified, ev)
	}
	res.Qualified = len(qualified)
	if len(qualified) == 0 {
		return res
	}
	slices.SortStableFunc(qualified, compareEvaluations)
	best := qualified[0]
	res.Best = &best
	res.Status, res.Level = Classify(best.Score, t)
	return res
}

func compareEvaluations(a, b Evaluation) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.DateOffsetDays, b.DateOffsetDays); c != 0 {
		return c
	}
	if c := a.Candidate.Instance.ScheduledDate.Compare(b.Candidate.Instance.ScheduledDate); c != 0 {
		return c
	}
	return strings.Compare(a.Candidate.Instance.SeriesID, b.Candidate.Instance.SeriesID)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
