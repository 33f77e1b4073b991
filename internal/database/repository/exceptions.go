package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/schedule"
)

// ExceptionRepo stores per-occurrence overrides keyed by series and
// original scheduled date.
type ExceptionRepo struct{ db DBTX }

func NewExceptionRepo(db DBTX) *ExceptionRepo { return &ExceptionRepo{db: db} }

// WithTx returns a copy of the repo bound to tx.
func (r *ExceptionRepo) WithTx(tx *sql.Tx) *ExceptionRepo { return &ExceptionRepo{db: tx} }

const exceptionColumns = `series_id, original_date, type, amount, currency, description, date`

// Upsert stores e, replacing any exception for the same occurrence.
func (r *ExceptionRepo) Upsert(ctx context.Context, e schedule.Exception) error {
	var amount, currency sql.NullString
	if e.Amount != nil {
		amount = sql.NullString{String: e.Amount.Decimal().String(), Valid: true}
		currency = sql.NullString{String: e.Amount.Currency(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO series_exceptions(`+exceptionColumns+`, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(series_id, original_date) DO UPDATE SET
	 type=excluded.type,
	 amount=excluded.amount,
	 currency=excluded.currency,
	 description=excluded.description,
	 date=excluded.date,
	 updated_at=CURRENT_TIMESTAMP
	`, e.SeriesID, e.OriginalDate.String(), string(e.Type), amount, currency, nullableStr(e.Description), nullableDate(e.Date))
	return err
}

func (r *ExceptionRepo) Get(ctx context.Context, seriesID string, original date.Date) (*schedule.Exception, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+exceptionColumns+` FROM series_exceptions WHERE series_id = ? AND original_date = ?`,
		seriesID, original.String())
	e, err := scanException(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Delete removes the exception for an occurrence. It reports whether one existed.
func (r *ExceptionRepo) Delete(ctx context.Context, seriesID string, original date.Date) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM series_exceptions WHERE series_id = ? AND original_date = ?`, seriesID, original.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListRange returns exceptions whose original date lies in [from, to]. An
// empty seriesID lists all series.
func (r *ExceptionRepo) ListRange(ctx context.Context, seriesID string, from, to date.Date) ([]schedule.Exception, error) {
	query := `SELECT ` + exceptionColumns + ` FROM series_exceptions WHERE original_date >= ? AND original_date <= ?`
	args := []any{from.String(), to.String()}
	if seriesID != "" {
		query += ` AND series_id = ?`
		args = append(args, seriesID)
	}
	query += ` ORDER BY series_id, original_date`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Exception
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Overlay loads the exceptions in [from, to] keyed by occurrence.
func (r *ExceptionRepo) Overlay(ctx context.Context, seriesID string, from, to date.Date) (schedule.Overlay, error) {
	excs, err := r.ListRange(ctx, seriesID, from, to)
	if err != nil {
		return nil, err
	}
	return schedule.NewOverlay(excs...), nil
}

func scanException(row scanner) (schedule.Exception, error) {
	var (
		e                              schedule.Exception
		original, typ                  string
		amount, currency, desc, dateTo sql.NullString
	)
	if err := row.Scan(&e.SeriesID, &original, &typ, &amount, &currency, &desc, &dateTo); err != nil {
		return schedule.Exception{}, err
	}
	var err error
	if e.OriginalDate, err = date.Parse(original); err != nil {
		return schedule.Exception{}, fmt.Errorf("exception original_date: %w", err)
	}
	e.Type = schedule.ExceptionType(typ)
	if amount.Valid {
		a, err := money.Parse(amount.String, currency.String)
		if err != nil {
			return schedule.Exception{}, fmt.Errorf("exception amount: %w", err)
		}
		e.Amount = &a
	}
	e.Description = strPtr(desc)
	if e.Date, err = datePtr(dateTo); err != nil {
		return schedule.Exception{}, fmt.Errorf("exception date: %w", err)
	}
	return e, nil
}
