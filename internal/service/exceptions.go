package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/schedule"
)

// ExceptionService edits single occurrences of a series.
type ExceptionService struct {
	DB           *sql.DB
	Series       *repository.SeriesRepo
	Exceptions   *repository.ExceptionRepo
	Transactions *repository.TransactionRepo
}

// Overrides are the per-occurrence replacements of a Modified exception.
type Overrides struct {
	Amount      *money.Amount `json:"amount,omitempty"`
	Description *string       `json:"description,omitempty"`
	Date        *date.Date    `json:"date,omitempty"`
}

// IsEmpty reports whether no field is overridden.
func (o Overrides) IsEmpty() bool {
	return o.Amount == nil && o.Description == nil && o.Date == nil
}

func (s *ExceptionService) bind(tx *sql.Tx) repos {
	return repos{
		series:       s.Series.WithTx(tx),
		exceptions:   s.Exceptions.WithTx(tx),
		transactions: s.Transactions.WithTx(tx),
	}
}

// editable loads the series and checks on is a scheduled, unrealized
// occurrence.
func editable(ctx context.Context, rp repos, seriesID string, on date.Date) (schedule.Series, error) {
	series, err := rp.series.Get(ctx, seriesID)
	if err != nil {
		return schedule.Series{}, err
	}
	if series == nil {
		return schedule.Series{}, notFound("series", seriesID)
	}
	if on.IsZero() || !series.Schedules(on) {
		return *series, fmt.Errorf("series %s on %s: %w", seriesID, on, ErrNotScheduled)
	}
	existing, err := rp.transactions.FindOccurrence(ctx, seriesID, on)
	if err != nil {
		return *series, err
	}
	if existing != nil {
		return *series, &AlreadyRealizedError{SeriesID: seriesID, Date: on, TransactionID: existing.ID}
	}
	return *series, nil
}

// Skip suppresses one occurrence.
func (s *ExceptionService) Skip(ctx context.Context, seriesID string, on date.Date) error {
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		rp := s.bind(tx)
		if _, err := editable(ctx, rp, seriesID, on); err != nil {
			return err
		}
		return rp.exceptions.Upsert(ctx, schedule.Exception{SeriesID: seriesID, OriginalDate: on, Type: schedule.ExceptionSkipped})
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("occurrence skipped", "series_id", seriesID, "date", on.String())
	return nil
}

// Modify overrides amount, description or date of one occurrence.
func (s *ExceptionService) Modify(ctx context.Context, seriesID string, on date.Date, o Overrides) error {
	if o.IsEmpty() {
		return invalid("at least one override is required")
	}
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		rp := s.bind(tx)
		series, err := editable(ctx, rp, seriesID, on)
		if err != nil {
			return err
		}
		if o.Amount != nil && !o.Amount.SameCurrency(series.Amount) {
			return invalid("amount currency %s does not match series currency %s", o.Amount.Currency(), series.Amount.Currency())
		}
		if o.Date != nil && o.Date.IsZero() {
			return invalid("override date must not be empty")
		}
		return rp.exceptions.Upsert(ctx, schedule.Exception{
			SeriesID:     seriesID,
			OriginalDate: on,
			Type:         schedule.ExceptionModified,
			Amount:       o.Amount,
			Description:  o.Description,
			Date:         o.Date,
		})
	})
	if err != nil {
		return err
	}
	logger.FromContext(ctx).Info("occurrence modified", "series_id", seriesID, "date", on.String())
	return nil
}

// Clear removes the exception of an occurrence, restoring the series defaults.
func (s *ExceptionService) Clear(ctx context.Context, seriesID string, on date.Date) error {
	deleted, err := s.Exceptions.Delete(ctx, seriesID, on)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("exception", fmt.Sprintf("%s@%s", seriesID, on))
	}
	return nil
}

// SkipNext skips the occurrence at the series' next-occurrence cursor and
// moves the cursor past it. It returns the skipped date.
func (s *ExceptionService) SkipNext(ctx context.Context, seriesID string) (date.Date, error) {
	var skipped date.Date
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		rp := s.bind(tx)
		series, err := rp.series.Get(ctx, seriesID)
		if err != nil {
			return err
		}
		if series == nil {
			return notFound("series", seriesID)
		}
		if !series.IsActive {
			return fmt.Errorf("series %s: %w", seriesID, ErrInactive)
		}
		cursor := series.NextOccurrence
		if !series.Schedules(cursor) {
			next, ok := series.Pattern.Next(series.StartDate, series.EndDate, cursor.Add(-1))
			if !ok {
				return fmt.Errorf("series %s has no further occurrences: %w", seriesID, ErrNotScheduled)
			}
			cursor = next
		}
		// already skipped or realized occurrences are stepped over
		for {
			exc, err := rp.exceptions.Get(ctx, seriesID, cursor)
			if err != nil {
				return err
			}
			existing, err := rp.transactions.FindOccurrence(ctx, seriesID, cursor)
			if err != nil {
				return err
			}
			if (exc == nil || !exc.IsSkipped()) && existing == nil {
				break
			}
			next, ok := series.Pattern.Next(series.StartDate, series.EndDate, cursor)
			if !ok {
				return fmt.Errorf("series %s has no further occurrences: %w", seriesID, ErrNotScheduled)
			}
			cursor = next
		}
		if err := rp.exceptions.Upsert(ctx, schedule.Exception{SeriesID: seriesID, OriginalDate: cursor, Type: schedule.ExceptionSkipped}); err != nil {
			return err
		}
		skipped = cursor
		advance := cursor
		if next, ok := series.Pattern.Next(series.StartDate, series.EndDate, cursor); ok {
			advance = next
		}
		return rp.series.UpdateNextOccurrence(ctx, seriesID, advance)
	})
	if err != nil {
		return date.Date{}, err
	}
	logger.FromContext(ctx).Info("next occurrence skipped", "series_id", seriesID, "date", skipped.String())
	return skipped, nil
}
