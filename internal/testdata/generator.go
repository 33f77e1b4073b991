// Package testdata seeds a database with sample series and a synthetic bank
// statement that exercises every reconciliation outcome.
package testdata

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
	"github.com/jask/recurring/internal/service"
)

// statementDays is how far back the synthetic statement reaches.
const statementDays = 60

// Result reports what Seed created.
type Result struct {
	Series   []schedule.Series
	Imported service.IngestResult
}

type sample struct {
	in       service.CreateSeriesInput
	bankText string
	// jitter is the largest relative amount drift on the statement.
	jitter float64
	// lateDays is the largest posting delay on the statement.
	lateDays int
}

// Seed creates two accounts, a handful of series and a statement of imports
// covering the last statementDays before today. A nil rnd seeds from the clock.
func Seed(ctx context.Context, svc *service.Services, today date.Date, currency string, rnd *rand.Rand) (Result, error) {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	var res Result
	checking, err := svc.Series.EnsureAccount(ctx, "Sample Checking", currency)
	if err != nil {
		return res, err
	}
	savings, err := svc.Series.EnsureAccount(ctx, "Sample Savings", currency)
	if err != nil {
		return res, err
	}

	start := today.Add(-90)
	friday := time.Friday
	samples := []sample{
		{
			in:       seriesInput(checking.ID, "Rent", "-1500.00", currency, recurrence.Spec{Frequency: recurrence.Monthly, Interval: 1, DayOfMonth: 1}, start),
			bankText: "ACME PROPERTY MGMT RENT",
			lateDays: 1,
		},
		{
			in:       seriesInput(checking.ID, "Netflix", "-15.99", currency, recurrence.Spec{Frequency: recurrence.Monthly, Interval: 1, DayOfMonth: 15}, start),
			bankText: "NETFLIX.COM",
		},
		{
			in:       seriesInput(checking.ID, "Electric", "-100.00", currency, recurrence.Spec{Frequency: recurrence.Monthly, Interval: 1, DayOfMonth: 10}, start),
			bankText: "CITY POWER DD",
			jitter:   0.08,
			lateDays: 3,
		},
		{
			in:       seriesInput(checking.ID, "Salary", "2400.00", currency, recurrence.Spec{Frequency: recurrence.BiWeekly, Interval: 1, DayOfWeek: &friday}, start),
			bankText: "SALARY ACME",
		},
	}
	transfer := seriesInput(checking.ID, "Savings Transfer", "-200.00", currency, recurrence.Spec{Frequency: recurrence.Monthly, Interval: 1, DayOfMonth: 20}, start)
	transfer.Kind = schedule.KindTransfer
	transfer.ToAccountID = savings.ID
	samples = append(samples, sample{in: transfer, bankText: "TFR TO SAVINGS"})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"date", "description", "amount"})

	from, to := today.Add(-statementDays), today.Add(-1)
	for _, smp := range samples {
		s, err := svc.Series.Create(ctx, smp.in)
		if err != nil {
			return res, fmt.Errorf("seed series %s: %w", smp.in.Description, err)
		}
		res.Series = append(res.Series, s)

		instances, err := svc.Projector.SeriesInstances(ctx, s.ID, from, to)
		if err != nil {
			return res, err
		}
		for _, inst := range instances {
			// leave some occurrences without a statement line
			if rnd.Intn(10) == 0 {
				continue
			}
			posted := inst.Date
			if smp.lateDays > 0 {
				posted = posted.Add(rnd.Intn(smp.lateDays + 1))
			}
			if posted.After(to) {
				continue
			}
			_ = w.Write([]string{posted.String(), smp.bankText, drift(inst.Amount, smp.jitter, rnd).String()})
		}
	}

	// unrelated spending
	merchants := []string{"UBER EATS* SUSHI", "AMAZON.COM*XYZ", "WOOLWORTHS", "SHELL 4411"}
	for i := 0; i < 12; i++ {
		on := from.Add(rnd.Intn(statementDays))
		cents := decimal.New(int64(rnd.Intn(20000)+500), -2).Neg()
		_ = w.Write([]string{on.String(), merchants[rnd.Intn(len(merchants))], cents.StringFixed(2)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return res, err
	}

	res.Imported, err = svc.Ingest.ImportCSV(ctx, &buf, checking.Name, currency)
	return res, err
}

func seriesInput(accountID, desc, amount, currency string, spec recurrence.Spec, start date.Date) service.CreateSeriesInput {
	return service.CreateSeriesInput{
		Kind:        schedule.KindTransaction,
		AccountID:   accountID,
		Description: desc,
		Amount:      money.MustParse(amount, currency),
		Pattern:     spec,
		StartDate:   start,
	}
}

// drift moves the amount by up to jitter of its value, in cents.
func drift(a money.Amount, jitter float64, rnd *rand.Rand) decimal.Decimal {
	v := a.Decimal()
	if jitter <= 0 {
		return v.Round(2)
	}
	pct := decimal.NewFromFloat((rnd.Float64()*2 - 1) * jitter)
	return v.Add(v.Mul(pct)).Round(2)
}
