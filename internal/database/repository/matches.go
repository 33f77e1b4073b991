package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/schedule"
)

// MatchRepo stores reconciliation matches.
type MatchRepo struct{ db DBTX }

func NewMatchRepo(db DBTX) *MatchRepo { return &MatchRepo{db: db} }

// WithTx returns a copy of the repo bound to tx.
func (r *MatchRepo) WithTx(tx *sql.Tx) *MatchRepo { return &MatchRepo{db: tx} }

const matchColumns = `id, imported_tx_id, series_id, instance_date, score, level, status, amount_variance,
 date_offset_days, source, rejected, created_at, updated_at`

func (r *MatchRepo) Add(ctx context.Context, m Match) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO matches(`+matchColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, m.ID, m.ImportedTxID, m.SeriesID, m.InstanceDate.String(), m.Score, string(m.Level), string(m.Status),
		m.AmountVariance.String(), m.DateOffsetDays, string(m.Source), m.Rejected)
	return err
}

func (r *MatchRepo) Get(ctx context.Context, id string) (*Match, error) {
	return r.one(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
}

// ListByStatus lists non-rejected matches with the given status, oldest
// first. An empty status lists every match.
func (r *MatchRepo) ListByStatus(ctx context.Context, status matching.Status) ([]Match, error) {
	if status == "" {
		return r.list(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY created_at ASC, id`)
	}
	if status == matching.StatusSkipped {
		return r.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE status = ? ORDER BY created_at ASC, id`, string(status))
	}
	return r.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE status = ? AND rejected = 0 ORDER BY created_at ASC, id`, string(status))
}

// ActiveForImport returns the open or confirmed match of an imported transaction.
func (r *MatchRepo) ActiveForImport(ctx context.Context, importedTxID string) (*Match, error) {
	return r.one(ctx, `
	SELECT `+matchColumns+` FROM matches
	WHERE imported_tx_id = ? AND rejected = 0 AND status IN ('matched', 'pending')
	ORDER BY created_at DESC LIMIT 1`, importedTxID)
}

// Claimed maps occurrences in [from, to] that carry an open or confirmed
// match to the imported transaction holding it.
func (r *MatchRepo) Claimed(ctx context.Context, from, to date.Date) (map[schedule.Key]string, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT series_id, instance_date, imported_tx_id FROM matches
	WHERE rejected = 0 AND status IN ('matched', 'pending') AND instance_date >= ? AND instance_date <= ?`,
		from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[schedule.Key]string{}
	for rows.Next() {
		var sid, on, imp string
		if err := rows.Scan(&sid, &on, &imp); err != nil {
			return nil, err
		}
		d, err := date.Parse(on)
		if err != nil {
			return nil, err
		}
		out[schedule.Key{SeriesID: sid, Date: d}] = imp
	}
	return out, rows.Err()
}

// Rejected returns the occurrences a user has rejected for importedTxID.
func (r *MatchRepo) Rejected(ctx context.Context, importedTxID string) (map[schedule.Key]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT series_id, instance_date FROM matches WHERE imported_tx_id = ? AND rejected = 1`, importedTxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[schedule.Key]bool{}
	for rows.Next() {
		var sid, on string
		if err := rows.Scan(&sid, &on); err != nil {
			return nil, err
		}
		d, err := date.Parse(on)
		if err != nil {
			return nil, err
		}
		out[schedule.Key{SeriesID: sid, Date: d}] = true
	}
	return out, rows.Err()
}

func (r *MatchRepo) UpdateStatus(ctx context.Context, id string, status matching.Status) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE matches SET status = ?, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, string(status), id))
}

// Reject marks the match skipped so the pair is never proposed again.
func (r *MatchRepo) Reject(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE matches SET status = 'skipped', rejected = 1, updated_at=CURRENT_TIMESTAMP WHERE id = ?`, id))
}

func (r *MatchRepo) Delete(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id))
}

func (r *MatchRepo) one(ctx context.Context, query string, args ...any) (*Match, error) {
	m, err := scanMatch(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepo) list(ctx context.Context, query string, args ...any) ([]Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMatch(row scanner) (Match, error) {
	var (
		m                                Match
		on, level, status, variance, src string
	)
	if err := row.Scan(&m.ID, &m.ImportedTxID, &m.SeriesID, &on, &m.Score, &level, &status, &variance,
		&m.DateOffsetDays, &src, &m.Rejected, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Match{}, err
	}
	var err error
	if m.InstanceDate, err = date.Parse(on); err != nil {
		return Match{}, fmt.Errorf("match %s instance date: %w", m.ID, err)
	}
	if m.AmountVariance, err = decimal.NewFromString(variance); err != nil {
		return Match{}, fmt.Errorf("match %s variance: %w", m.ID, err)
	}
	m.Level = matching.Level(level)
	m.Status = matching.Status(status)
	m.Source = matching.Source(src)
	return m, nil
}
