package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
)

// SeriesRepo stores recurring series definitions.
type SeriesRepo struct{ db DBTX }

func NewSeriesRepo(db DBTX) *SeriesRepo { return &SeriesRepo{db: db} }

// WithTx returns a copy of the repo bound to tx.
func (r *SeriesRepo) WithTx(tx *sql.Tx) *SeriesRepo { return &SeriesRepo{db: tx} }

const seriesColumns = `id, kind, account_id, to_account_id, description, amount, currency,
 frequency, recur_interval, day_of_week, day_of_month, month_of_year,
 start_date, end_date, next_occurrence, is_active, created_at, updated_at`

func (r *SeriesRepo) Insert(ctx context.Context, s schedule.Series) error {
	spec := s.Pattern.Spec()
	var toAccount sql.NullString
	if s.IsTransfer() {
		toAccount = sql.NullString{String: s.ToAccountID, Valid: true}
	}
	var dow, dom, moy sql.NullInt64
	if spec.DayOfWeek != nil {
		dow = sql.NullInt64{Int64: int64(*spec.DayOfWeek), Valid: true}
	}
	if spec.DayOfMonth != 0 {
		dom = sql.NullInt64{Int64: int64(spec.DayOfMonth), Valid: true}
	}
	if spec.MonthOfYear != 0 {
		moy = sql.NullInt64{Int64: int64(spec.MonthOfYear), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO series(`+seriesColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`,
		s.ID, string(s.Kind), s.AccountID, toAccount, s.Description, s.Amount.Decimal().String(), s.Amount.Currency(),
		spec.Frequency.String(), spec.Interval, dow, dom, moy,
		s.StartDate.String(), nullableDate(s.EndDate), s.NextOccurrence.String(), s.IsActive)
	return err
}

func (r *SeriesRepo) Get(ctx context.Context, id string) (*schedule.Series, error) {
	s, err := scanSeries(r.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	out := []schedule.Series{s}
	if err := r.attachPatterns(ctx, out); err != nil {
		return nil, err
	}
	return &out[0], nil
}

// SeriesFilters defines list filters.
type SeriesFilters struct {
	ActiveOnly bool
	AccountID  string // matches either leg of a transfer
}

func (r *SeriesRepo) List(ctx context.Context, f SeriesFilters) ([]schedule.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series WHERE 1=1`
	var args []any
	if f.ActiveOnly {
		query += ` AND is_active = 1`
	}
	if f.AccountID != "" {
		query += ` AND (account_id = ? OR to_account_id = ?)`
		args = append(args, f.AccountID, f.AccountID)
	}
	query += ` ORDER BY description, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachPatterns(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListActive returns active series, optionally limited to one account.
func (r *SeriesRepo) ListActive(ctx context.Context, accountID string) ([]schedule.Series, error) {
	return r.List(ctx, SeriesFilters{ActiveOnly: true, AccountID: accountID})
}

func (r *SeriesRepo) SetActive(ctx context.Context, id string, active bool) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE series SET is_active = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, active, id))
}

func (r *SeriesRepo) UpdateNextOccurrence(ctx context.Context, id string, next date.Date) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE series SET next_occurrence = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, next.String(), id))
}

func (r *SeriesRepo) attachPatterns(ctx context.Context, series []schedule.Series) error {
	if len(series) == 0 {
		return nil
	}
	idx := make(map[string]int, len(series))
	for i, s := range series {
		idx[s.ID] = i
	}
	rows, err := r.db.QueryContext(ctx, `SELECT series_id, pattern FROM import_patterns ORDER BY created_at, pattern`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var seriesID, pattern string
		if err := rows.Scan(&seriesID, &pattern); err != nil {
			return err
		}
		if i, ok := idx[seriesID]; ok {
			series[i].ImportPatterns = append(series[i].ImportPatterns, pattern)
		}
	}
	return rows.Err()
}

func scanSeries(row scanner) (schedule.Series, error) {
	var (
		s                      schedule.Series
		kind, amount, currency string
		freq                   string
		interval               int
		toAccount, endDate     sql.NullString
		dow, dom, moy          sql.NullInt64
		start, next            string
		created, updated       time.Time
	)
	if err := row.Scan(&s.ID, &kind, &s.AccountID, &toAccount, &s.Description, &amount, &currency,
		&freq, &interval, &dow, &dom, &moy, &start, &endDate, &next, &s.IsActive, &created, &updated); err != nil {
		return schedule.Series{}, err
	}
	s.Kind = schedule.Kind(kind)
	s.ToAccountID = toAccount.String
	s.CreatedAt, s.UpdatedAt = created, updated

	var err error
	if s.Amount, err = parseAmount(amount, currency); err != nil {
		return schedule.Series{}, fmt.Errorf("series %s: %w", s.ID, err)
	}
	f, err := recurrence.ParseFrequency(freq)
	if err != nil {
		return schedule.Series{}, fmt.Errorf("series %s: %w", s.ID, err)
	}
	spec := recurrence.Spec{Frequency: f, Interval: interval, DayOfMonth: int(dom.Int64), MonthOfYear: time.Month(moy.Int64)}
	if dow.Valid {
		wd := time.Weekday(dow.Int64)
		spec.DayOfWeek = &wd
	}
	if s.Pattern, err = recurrence.New(spec); err != nil {
		return schedule.Series{}, fmt.Errorf("series %s: %w", s.ID, err)
	}
	if s.StartDate, err = date.Parse(start); err != nil {
		return schedule.Series{}, fmt.Errorf("series %s start_date: %w", s.ID, err)
	}
	if s.NextOccurrence, err = date.Parse(next); err != nil {
		return schedule.Series{}, fmt.Errorf("series %s next_occurrence: %w", s.ID, err)
	}
	if s.EndDate, err = datePtr(endDate); err != nil {
		return schedule.Series{}, fmt.Errorf("series %s end_date: %w", s.ID, err)
	}
	return s, nil
}

// ErrNoRowsAffected is returned by updates that matched nothing.
var ErrNoRowsAffected = errors.New("no rows affected")

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRowsAffected
	}
	return nil
}
