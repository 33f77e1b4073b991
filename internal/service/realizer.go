package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/logger"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/schedule"
)

// Realizer turns series occurrences into ledger rows, at most once per
// occurrence.
type Realizer struct {
	DB           *sql.DB
	Series       *repository.SeriesRepo
	Exceptions   *repository.ExceptionRepo
	Transactions *repository.TransactionRepo
}

// RealizeRequest identifies an occurrence by its original scheduled date.
// Overrides win over any stored exception.
type RealizeRequest struct {
	SeriesID    string        `json:"series_id"`
	Date        date.Date     `json:"date"`
	Amount      *money.Amount `json:"amount,omitempty"`
	Description *string       `json:"description,omitempty"`
	PostedDate  *date.Date    `json:"posted_date,omitempty"`
}

// Realization is the outcome of realizing one occurrence.
type Realization struct {
	SeriesID     string                   `json:"series_id"`
	InstanceDate date.Date                `json:"instance_date"`
	TransferID   string                   `json:"transfer_id,omitempty"`
	Transactions []repository.Transaction `json:"transactions"`
}

// BatchResult accumulates per-item outcomes.
type BatchResult struct {
	Realized []Realization
	Errors   []error
}

// repos is a set of repositories bound to one unit of work.
type repos struct {
	series       *repository.SeriesRepo
	exceptions   *repository.ExceptionRepo
	transactions *repository.TransactionRepo
}

func (r *Realizer) bind(tx *sql.Tx) repos {
	return repos{
		series:       r.Series.WithTx(tx),
		exceptions:   r.Exceptions.WithTx(tx),
		transactions: r.Transactions.WithTx(tx),
	}
}

// Realize persists the occurrence as one transaction, or two for a transfer,
// in a single unit of work.
func (r *Realizer) Realize(ctx context.Context, req RealizeRequest) (Realization, error) {
	var out Realization
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		out, err = r.realizeIn(ctx, r.bind(tx), req)
		return err
	})
	if err != nil {
		return Realization{}, conflict(err)
	}
	logger.FromContext(ctx).Info("occurrence realized",
		"series_id", out.SeriesID, "instance_date", out.InstanceDate.String(), "rows", len(out.Transactions))
	return out, nil
}

// RealizeBatch realizes each request in its own unit of work. A failing item
// does not affect the others.
func (r *Realizer) RealizeBatch(ctx context.Context, reqs []RealizeRequest) (BatchResult, error) {
	var res BatchResult
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rz, err := r.Realize(ctx, req)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("series %s on %s: %w", req.SeriesID, req.Date, err))
			continue
		}
		res.Realized = append(res.Realized, rz)
	}
	return res, nil
}

// occurrence loads the series and the effective instance for a scheduled
// date, refusing skipped and already realized occurrences.
func (r *Realizer) occurrence(ctx context.Context, rp repos, seriesID string, on date.Date, requireActive bool) (schedule.Series, schedule.Instance, error) {
	s, err := rp.series.Get(ctx, seriesID)
	if err != nil {
		return schedule.Series{}, schedule.Instance{}, err
	}
	if s == nil {
		return schedule.Series{}, schedule.Instance{}, notFound("series", seriesID)
	}
	if requireActive && !s.IsActive {
		return *s, schedule.Instance{}, fmt.Errorf("series %s: %w", seriesID, ErrInactive)
	}
	if on.IsZero() || !s.Schedules(on) {
		return *s, schedule.Instance{}, fmt.Errorf("series %s on %s: %w", seriesID, on, ErrNotScheduled)
	}
	overlay, err := rp.exceptions.Overlay(ctx, seriesID, on, on)
	if err != nil {
		return *s, schedule.Instance{}, err
	}
	existing, err := rp.transactions.FindOccurrence(ctx, seriesID, on)
	if err != nil {
		return *s, schedule.Instance{}, err
	}
	realized := schedule.Realized{}
	if existing != nil {
		realized[schedule.Key{SeriesID: seriesID, Date: on}] = existing.ID
	}
	instances := schedule.Expand(*s, overlay, realized, on, on)
	if len(instances) != 1 {
		return *s, schedule.Instance{}, fmt.Errorf("series %s on %s: %w", seriesID, on, ErrNotScheduled)
	}
	inst := instances[0]
	if inst.IsGenerated {
		return *s, inst, &AlreadyRealizedError{SeriesID: seriesID, Date: on, TransactionID: inst.TransactionID}
	}
	if inst.IsSkipped {
		return *s, inst, fmt.Errorf("series %s on %s: %w", seriesID, on, ErrSkipped)
	}
	return *s, inst, nil
}

func (r *Realizer) realizeIn(ctx context.Context, rp repos, req RealizeRequest) (Realization, error) {
	s, inst, err := r.occurrence(ctx, rp, req.SeriesID, req.Date, true)
	if err != nil {
		return Realization{}, err
	}
	if req.Amount != nil && !req.Amount.SameCurrency(s.Amount) {
		return Realization{}, invalid("amount currency %s does not match series currency %s", req.Amount.Currency(), s.Amount.Currency())
	}
	inst.Amount = schedule.Resolve(req.Amount, nil, inst.Amount)
	inst.Description = schedule.Resolve(req.Description, nil, inst.Description)
	inst.Date = schedule.Resolve(req.PostedDate, nil, inst.Date)

	rows := buildRows(s, inst)
	for _, t := range rows {
		if err := rp.transactions.Insert(ctx, t); err != nil {
			return Realization{}, fmt.Errorf("insert %s leg: %w", t.Leg, err)
		}
	}
	out := Realization{SeriesID: s.ID, InstanceDate: inst.ScheduledDate, Transactions: rows}
	if rows[0].TransferID != nil {
		out.TransferID = *rows[0].TransferID
	}
	return out, nil
}

// buildRows creates the ledger rows for an instance: one row, or a negative
// source leg and a positive destination leg sharing a transfer id.
func buildRows(s schedule.Series, inst schedule.Instance) []repository.Transaction {
	seriesID := s.ID
	instanceDate := inst.ScheduledDate
	base := repository.Transaction{
		AccountID:             s.AccountID,
		Date:                  inst.Date,
		Amount:                inst.Amount,
		Description:           inst.Description,
		Source:                repository.SourceRecurring,
		RecurringSeriesID:     &seriesID,
		RecurringInstanceDate: &instanceDate,
		Leg:                   repository.LegSingle,
	}
	if !s.IsTransfer() {
		base.ID = uuid.NewString()
		return []repository.Transaction{base}
	}
	transferID := uuid.NewString()
	src, dst := base, base
	src.ID, dst.ID = uuid.NewString(), uuid.NewString()
	src.TransferID, dst.TransferID = &transferID, &transferID
	src.Leg, dst.Leg = repository.LegSource, repository.LegDestination
	src.Amount = inst.Amount.Abs().Neg()
	dst.AccountID = s.ToAccountID
	dst.Amount = inst.Amount.Abs()
	return []repository.Transaction{src, dst}
}

// adoptIn ties an imported transaction to an occurrence instead of creating a
// new row, and returns the expected instance it was tied to. For a transfer
// the missing counterpart leg is inserted.
func (r *Realizer) adoptIn(ctx context.Context, rp repos, imported repository.Transaction, seriesID string, on date.Date) (Realization, schedule.Instance, error) {
	if imported.IsRecurring() {
		return Realization{}, schedule.Instance{}, &AlreadyRealizedError{SeriesID: *imported.RecurringSeriesID, Date: *imported.RecurringInstanceDate, TransactionID: imported.ID}
	}
	s, inst, err := r.occurrence(ctx, rp, seriesID, on, false)
	if err != nil {
		return Realization{}, inst, err
	}
	if !imported.Amount.SameCurrency(s.Amount) {
		return Realization{}, inst, invalid("imported currency %s does not match series currency %s", imported.Amount.Currency(), s.Amount.Currency())
	}

	out := Realization{SeriesID: s.ID, InstanceDate: on}
	if !s.IsTransfer() {
		if err := rp.transactions.Adopt(ctx, imported.ID, s.ID, on, repository.LegSingle, nil); err != nil {
			return Realization{}, inst, fmt.Errorf("adopt %s: %w", imported.ID, err)
		}
		imported.Leg = repository.LegSingle
	} else {
		transferID := uuid.NewString()
		leg, counterpart := repository.LegSource, repository.LegDestination
		counterAccount, counterAmount := s.ToAccountID, imported.Amount.Abs()
		if imported.AccountID == s.ToAccountID {
			leg, counterpart = repository.LegDestination, repository.LegSource
			counterAccount, counterAmount = s.AccountID, imported.Amount.Abs().Neg()
		}
		if err := rp.transactions.Adopt(ctx, imported.ID, s.ID, on, leg, &transferID); err != nil {
			return Realization{}, inst, fmt.Errorf("adopt %s: %w", imported.ID, err)
		}
		instanceDate := on
		other := repository.Transaction{
			ID:                    uuid.NewString(),
			AccountID:             counterAccount,
			Date:                  imported.Date,
			Amount:                counterAmount,
			Description:           inst.Description,
			Source:                repository.SourceRecurring,
			RecurringSeriesID:     &s.ID,
			RecurringInstanceDate: &instanceDate,
			Leg:                   counterpart,
			TransferID:            &transferID,
		}
		if err := rp.transactions.Insert(ctx, other); err != nil {
			return Realization{}, inst, fmt.Errorf("insert %s leg: %w", counterpart, err)
		}
		imported.Leg, imported.TransferID = leg, &transferID
		out.TransferID = transferID
		out.Transactions = append(out.Transactions, other)
	}
	imported.RecurringSeriesID, imported.RecurringInstanceDate = &s.ID, &on
	out.Transactions = append([]repository.Transaction{imported}, out.Transactions...)
	return out, inst, nil
}

// releaseIn reverses adoptIn for an imported transaction.
func (r *Realizer) releaseIn(ctx context.Context, rp repos, importedID string) error {
	t, err := rp.transactions.Get(ctx, importedID)
	if err != nil {
		return err
	}
	if t == nil {
		return notFound("transaction", importedID)
	}
	if !t.IsRecurring() {
		return nil
	}
	if t.TransferID != nil {
		if _, err := rp.transactions.DeleteCounterparts(ctx, *t.TransferID, t.ID); err != nil {
			return fmt.Errorf("delete transfer counterpart: %w", err)
		}
	}
	return rp.transactions.Release(ctx, t.ID)
}
