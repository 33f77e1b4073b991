package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/money"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so a repo can be bound to a
// transaction with WithTx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableDate(d *date.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func datePtr(ns sql.NullString) (*date.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := date.Parse(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseAmount(value, currency string) (money.Amount, error) {
	a, err := money.Parse(value, currency)
	if err != nil {
		return money.Amount{}, fmt.Errorf("amount %q: %w", value, err)
	}
	return a, nil
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)
