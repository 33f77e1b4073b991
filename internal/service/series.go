package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
)

// SeriesService manages series definitions.
type SeriesService struct {
	DB       *sql.DB
	Series   *repository.SeriesRepo
	Accounts *repository.AccountRepo
	Patterns *repository.ImportPatternRepo
}

// CreateSeriesInput describes a new series.
type CreateSeriesInput struct {
	Kind           schedule.Kind   `json:"kind"`
	AccountID      string          `json:"account_id"`
	ToAccountID    string          `json:"to_account_id,omitempty"`
	Description    string          `json:"description"`
	Amount         money.Amount    `json:"amount"`
	Pattern        recurrence.Spec `json:"pattern"`
	StartDate      date.Date       `json:"start_date"`
	EndDate        *date.Date      `json:"end_date,omitempty"`
	ImportPatterns []string        `json:"import_patterns,omitempty"`
}

// Create validates in and stores the series with its import patterns.
func (s *SeriesService) Create(ctx context.Context, in CreateSeriesInput) (schedule.Series, error) {
	if in.Kind == "" {
		in.Kind = schedule.KindTransaction
	}
	if in.Kind != schedule.KindTransaction && in.Kind != schedule.KindTransfer {
		return schedule.Series{}, invalid("unknown kind %q", in.Kind)
	}
	in.Description = strings.TrimSpace(in.Description)
	if in.Description == "" {
		return schedule.Series{}, invalid("description is required")
	}
	if in.Amount.Currency() == "" {
		return schedule.Series{}, invalid("amount currency is required")
	}
	if in.Amount.IsZero() {
		return schedule.Series{}, invalid("amount must not be zero")
	}
	if in.StartDate.IsZero() {
		return schedule.Series{}, invalid("start date is required")
	}
	if in.EndDate != nil && in.EndDate.Before(in.StartDate) {
		return schedule.Series{}, invalid("end date %s is before start date %s", in.EndDate, in.StartDate)
	}
	pattern, err := recurrence.New(in.Pattern)
	if err != nil {
		return schedule.Series{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if in.Kind == schedule.KindTransfer {
		if in.ToAccountID == "" {
			return schedule.Series{}, invalid("transfer needs a destination account")
		}
		if in.ToAccountID == in.AccountID {
			return schedule.Series{}, invalid("transfer source and destination must differ")
		}
		if err := s.requireAccount(ctx, in.ToAccountID); err != nil {
			return schedule.Series{}, err
		}
	} else {
		in.ToAccountID = ""
	}
	if err := s.requireAccount(ctx, in.AccountID); err != nil {
		return schedule.Series{}, err
	}
	first, ok := pattern.First(in.StartDate, in.EndDate)
	if !ok {
		return schedule.Series{}, invalid("series has no occurrence between %s and %s", in.StartDate, in.EndDate)
	}

	series := schedule.Series{
		ID:             uuid.NewString(),
		Kind:           in.Kind,
		AccountID:      in.AccountID,
		ToAccountID:    in.ToAccountID,
		Description:    in.Description,
		Amount:         in.Amount,
		Pattern:        pattern,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		IsActive:       true,
		NextOccurrence: first,
		CreatedAt:      database.Now(),
		UpdatedAt:      database.Now(),
	}
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := s.Series.WithTx(tx).Insert(ctx, series); err != nil {
			return fmt.Errorf("insert series: %w", err)
		}
		patterns := s.Patterns.WithTx(tx)
		for _, p := range in.ImportPatterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			added, err := patterns.Add(ctx, repository.ImportPattern{ID: uuid.NewString(), SeriesID: series.ID, Pattern: p})
			if err != nil {
				return fmt.Errorf("add import pattern: %w", err)
			}
			if added {
				series.ImportPatterns = append(series.ImportPatterns, p)
			}
		}
		return nil
	})
	if err != nil {
		return schedule.Series{}, conflict(err)
	}
	logger.FromContext(ctx).Info("series created", "series_id", series.ID, "kind", series.Kind, "frequency", pattern.Frequency().String())
	return series, nil
}

func (s *SeriesService) requireAccount(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return invalid("account is required")
	}
	a, err := s.Accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return notFound("account", id)
	}
	return nil
}

// Get returns a series or ErrNotFound.
func (s *SeriesService) Get(ctx context.Context, id string) (schedule.Series, error) {
	series, err := s.Series.Get(ctx, id)
	if err != nil {
		return schedule.Series{}, err
	}
	if series == nil {
		return schedule.Series{}, notFound("series", id)
	}
	return *series, nil
}

// List returns series matching f.
func (s *SeriesService) List(ctx context.Context, f repository.SeriesFilters) ([]schedule.Series, error) {
	return s.Series.List(ctx, f)
}

// Deactivate stops a series from producing further occurrences in
// projections and auto-realization. Realized rows are kept.
func (s *SeriesService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.Series.SetActive(ctx, id, false); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("series deactivated", "series_id", id)
	return nil
}

// EnsureAccount creates an account by name if it does not exist yet and
// returns it. The id is derived from the name so repeated calls agree.
func (s *SeriesService) EnsureAccount(ctx context.Context, name, currency string) (repository.Account, error) {
	return ensureAccount(ctx, s.Accounts, name, currency)
}

func ensureAccount(ctx context.Context, accounts *repository.AccountRepo, name, currency string) (repository.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return repository.Account{}, invalid("account name required")
	}
	existing, err := accounts.GetByName(ctx, name)
	if err != nil {
		return repository.Account{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	acct := repository.Account{
		ID:          deterministicAccountID(name),
		Name:        name,
		Institution: name,
		AccountType: "checking",
		Currency:    strings.ToUpper(currency),
		CreatedAt:   time.Now().UTC(),
	}
	if err := accounts.Upsert(ctx, acct); err != nil {
		return repository.Account{}, err
	}
	return acct, nil
}
