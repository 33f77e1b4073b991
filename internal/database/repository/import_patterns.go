package repository

import (
	"context"
	"database/sql"
	"strings"
)

// ImportPatternRepo stores the bank-statement texts learned for each series.
type ImportPatternRepo struct{ db DBTX }

func NewImportPatternRepo(db DBTX) *ImportPatternRepo { return &ImportPatternRepo{db: db} }

// WithTx returns a copy of the repo bound to tx.
func (r *ImportPatternRepo) WithTx(tx *sql.Tx) *ImportPatternRepo { return &ImportPatternRepo{db: tx} }

// Add records a pattern. Re-adding an existing pattern is a no-op and
// reports false.
func (r *ImportPatternRepo) Add(ctx context.Context, p ImportPattern) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
	INSERT OR IGNORE INTO import_patterns(id, series_id, pattern, created_at)
	VALUES(?, ?, ?, CURRENT_TIMESTAMP)
	`, p.ID, p.SeriesID, strings.TrimSpace(p.Pattern))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *ImportPatternRepo) ListForSeries(ctx context.Context, seriesID string) ([]ImportPattern, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, series_id, pattern, created_at FROM import_patterns WHERE series_id = ? ORDER BY created_at, pattern`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportPattern
	for rows.Next() {
		var p ImportPattern
		if err := rows.Scan(&p.ID, &p.SeriesID, &p.Pattern, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Match returns the series whose pattern is contained in description, if any.
func (r *ImportPatternRepo) Match(ctx context.Context, description string) (*ImportPattern, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, series_id, pattern, created_at FROM import_patterns
	WHERE upper(?) LIKE '%' || upper(pattern) || '%'
	ORDER BY length(pattern) DESC LIMIT 1
	`, description)
	var p ImportPattern
	if err := row.Scan(&p.ID, &p.SeriesID, &p.Pattern, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *ImportPatternRepo) Delete(ctx context.Context, seriesID, pattern string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM import_patterns WHERE series_id = ? AND pattern = ?`, seriesID, pattern))
}
