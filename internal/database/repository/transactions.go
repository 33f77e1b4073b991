package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/schedule"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	AccountID string
	Source    string
	SeriesID  string
	From      date.Date // zero = unbounded
	To        date.Date // zero = unbounded
	Search    string
}

// TransactionRepo handles ledger rows.
type TransactionRepo struct {
	db DBTX
}

func NewTransactionRepo(db DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

// WithTx returns a copy of the repo bound to tx.
func (r *TransactionRepo) WithTx(tx *sql.Tx) *TransactionRepo { return &TransactionRepo{db: tx} }

const transactionColumns = `id, account_id, external_id, date, amount, currency, description, source, source_hash,
 recurring_series_id, recurring_instance_date, leg, transfer_id, created_at, updated_at`

func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	if t.Leg == "" {
		t.Leg = LegSingle
	}
	if t.Source == "" {
		t.Source = SourceManual
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(`+transactionColumns+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.AccountID, nullableStr(t.ExternalID), t.Date.String(), t.Amount.Decimal().String(), t.Amount.Currency(),
		t.Description, t.Source, nullableStr(t.SourceHash),
		nullableStr(t.RecurringSeriesID), nullableDate(t.RecurringInstanceDate), string(t.Leg), nullableStr(t.TransferID))
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// legOrder sorts the representative leg of an occurrence first.
const legOrder = `CASE leg WHEN 'single' THEN 0 WHEN 'source' THEN 1 ELSE 2 END`

// FindOccurrence returns the representative row realized for a series
// occurrence: the single row, or the source leg of a transfer.
func (r *TransactionRepo) FindOccurrence(ctx context.Context, seriesID string, instance date.Date) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+transactionColumns+` FROM transactions
	WHERE recurring_series_id = ? AND recurring_instance_date = ?
	ORDER BY `+legOrder+` LIMIT 1`, seriesID, instance.String())
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// Realized maps occurrences with an instance date in [from, to] to their
// representative transaction id. An empty seriesID covers all series.
func (r *TransactionRepo) Realized(ctx context.Context, seriesID string, from, to date.Date) (schedule.Realized, error) {
	query := `SELECT recurring_series_id, recurring_instance_date, id FROM transactions
	WHERE recurring_series_id IS NOT NULL AND recurring_instance_date >= ? AND recurring_instance_date <= ?`
	args := []any{from.String(), to.String()}
	if seriesID != "" {
		query += ` AND recurring_series_id = ?`
		args = append(args, seriesID)
	}
	query += ` ORDER BY ` + legOrder + ` DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := schedule.Realized{}
	for rows.Next() {
		var sid, on, id string
		if err := rows.Scan(&sid, &on, &id); err != nil {
			return nil, err
		}
		d, err := date.Parse(on)
		if err != nil {
			return nil, fmt.Errorf("transaction %s instance date: %w", id, err)
		}
		// later rows have a better leg and overwrite
		out[schedule.Key{SeriesID: sid, Date: d}] = id
	}
	return out, rows.Err()
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []any

	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.SeriesID != "" {
		where = append(where, "recurring_series_id = ?")
		args = append(args, f.SeriesID)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.Search != "" {
		where = append(where, "description LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC, id"
	return r.query(ctx, query, args...)
}

// ListUnreconciledImports returns imported rows not yet tied to an
// occurrence and without an open or confirmed match.
func (r *TransactionRepo) ListUnreconciledImports(ctx context.Context) ([]Transaction, error) {
	return r.query(ctx, `
	SELECT `+transactionColumns+` FROM transactions t
	WHERE t.source = 'import' AND t.recurring_series_id IS NULL
	AND NOT EXISTS (
		SELECT 1 FROM matches m
		WHERE m.imported_tx_id = t.id AND m.rejected = 0 AND m.status IN ('matched', 'pending')
	)
	ORDER BY t.date, t.id`)
}

// Adopt tags an untagged row as the given leg of a series occurrence.
func (r *TransactionRepo) Adopt(ctx context.Context, id, seriesID string, instance date.Date, leg Leg, transferID *string) error {
	return expectOne(r.db.ExecContext(ctx, `
	UPDATE transactions SET recurring_series_id = ?, recurring_instance_date = ?, leg = ?, transfer_id = ?,
	 updated_at=CURRENT_TIMESTAMP
	WHERE id = ? AND recurring_series_id IS NULL`,
		seriesID, instance.String(), string(leg), nullableStr(transferID), id))
}

// Release clears the occurrence tags of a row.
func (r *TransactionRepo) Release(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `
	UPDATE transactions SET recurring_series_id = NULL, recurring_instance_date = NULL, leg = 'single',
	 transfer_id = NULL, updated_at=CURRENT_TIMESTAMP
	WHERE id = ?`, id))
}

// DeleteCounterparts removes the generated legs of a transfer other than keepID.
func (r *TransactionRepo) DeleteCounterparts(ctx context.Context, transferID, keepID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE transfer_id = ? AND id != ? AND source = 'recurring'`, transferID, keepID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TransactionRepo) Delete(ctx context.Context, id string) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id))
}

// Count returns the number of rows, for tests and status output.
func (r *TransactionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

func (r *TransactionRepo) query(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (Transaction, error) {
	var (
		t                                        Transaction
		on, amount, currency, leg                string
		external, source, seriesID, instance, tf sql.NullString
	)
	if err := row.Scan(&t.ID, &t.AccountID, &external, &on, &amount, &currency, &t.Description, &t.Source, &source,
		&seriesID, &instance, &leg, &tf, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	var err error
	if t.Date, err = date.Parse(on); err != nil {
		return Transaction{}, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	if t.Amount, err = parseAmount(amount, currency); err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	if t.RecurringInstanceDate, err = datePtr(instance); err != nil {
		return Transaction{}, fmt.Errorf("transaction %s instance date: %w", t.ID, err)
	}
	t.ExternalID = strPtr(external)
	t.SourceHash = strPtr(source)
	t.RecurringSeriesID = strPtr(seriesID)
	t.TransferID = strPtr(tf)
	t.Leg = Leg(leg)
	return t, nil
}
