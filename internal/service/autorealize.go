package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/schedule"
)

// AutoRealizer catches up on occurrences that fell due in the recent past.
type AutoRealizer struct {
	Realizer *Realizer
	Matches  *repository.MatchRepo
}

// AutoRealizeResult summarizes one run. AwaitingReview counts occurrences
// an imported row holds through a pending match; confirming the match
// realizes them.
type AutoRealizeResult struct {
	Enabled         bool
	Window          date.Range
	Realized        []Realization
	AlreadyRealized int
	AwaitingReview  int
	Skipped         int
	Errors          []error
}

// Window returns the catch-up range for today: the lookback days before
// today, excluding today. It is empty when lookbackDays is not positive.
func Window(today date.Date, lookbackDays int) date.Range {
	if lookbackDays <= 0 {
		return date.NewRange(today, today.Add(-1))
	}
	return date.NewRange(today.Add(-lookbackDays), today.Add(-1))
}

// RunIfEnabled realizes every unrealized, non-skipped occurrence of the
// active series in the catch-up window that no pending match holds. It does
// nothing unless the settings enable it. An accountID limits the run to series touching that account.
// All rows are committed together; a failing item is recorded in Errors and
// leaves no rows behind.
func (a *AutoRealizer) RunIfEnabled(ctx context.Context, today date.Date, settings repository.Settings, accountID string) (AutoRealizeResult, error) {
	res := AutoRealizeResult{Enabled: settings.AutoRealizePastDueItems}
	if !res.Enabled {
		return res, nil
	}
	res.Window = Window(today, settings.PastDueLookbackDays)
	if res.Window.Empty() {
		return res, nil
	}
	ctx = logger.With(ctx, "window", res.Window.String())
	log := logger.FromContext(ctx)

	r := a.Realizer
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		rp := r.bind(tx)
		series, err := rp.series.ListActive(ctx, accountID)
		if err != nil {
			return fmt.Errorf("list series: %w", err)
		}
		claimed, err := a.Matches.WithTx(tx).Claimed(ctx, res.Window.From, res.Window.To)
		if err != nil {
			return fmt.Errorf("load claimed: %w", err)
		}
		for _, s := range series {
			if err := ctx.Err(); err != nil {
				return err
			}
			overlay, err := rp.exceptions.Overlay(ctx, s.ID, res.Window.From, res.Window.To)
			if err != nil {
				return fmt.Errorf("series %s exceptions: %w", s.ID, err)
			}
			realized, err := rp.transactions.Realized(ctx, s.ID, res.Window.From, res.Window.To)
			if err != nil {
				return fmt.Errorf("series %s realized: %w", s.ID, err)
			}
			for _, on := range s.OccurrencesBetween(res.Window.From, res.Window.To) {
				if err := ctx.Err(); err != nil {
					return err
				}
				if _, ok := realized.Lookup(s.ID, on); ok {
					res.AlreadyRealized++
					continue
				}
				if exc, ok := overlay.Lookup(s.ID, on); ok && exc.IsSkipped() {
					res.Skipped++
					continue
				}
				if _, ok := claimed[schedule.Key{SeriesID: s.ID, Date: on}]; ok {
					res.AwaitingReview++
					continue
				}
				var rz Realization
				err := database.Savepoint(ctx, tx, "auto_realize_item", func() error {
					var err error
					rz, err = r.realizeIn(ctx, rp, RealizeRequest{SeriesID: s.ID, Date: on})
					return err
				})
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					res.Errors = append(res.Errors, fmt.Errorf("series %s on %s: %w", s.ID, on, conflict(err)))
					continue
				}
				res.Realized = append(res.Realized, rz)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("auto-realize aborted", "error", err)
		return AutoRealizeResult{Enabled: true, Window: res.Window}, err
	}
	log.Info("auto-realize complete",
		"realized", len(res.Realized), "skipped", res.Skipped, "already_realized", res.AlreadyRealized, "awaiting_review", res.AwaitingReview, "errors", len(res.Errors))
	return res, nil
}
