package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/logger"
)

// resetOrder lists every data table, children before the rows they reference.
var resetOrder = []string{
	"matches",
	"import_patterns",
	"series_exceptions",
	"transactions",
	"series",
	"settings",
	"accounts",
}

// Cleared is how many rows Reset removed from one table.
type Cleared struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// MaintenanceService houses destructive actions surfaced through the CLI and
// the review screen.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset empties every data table in one unit of work and reports the rows
// removed per table. The schema and its migration version are kept.
func (s *MaintenanceService) Reset(ctx context.Context) ([]Cleared, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("maintenance: db not configured")
	}
	out := make([]Cleared, 0, len(resetOrder))
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, table := range resetOrder {
			res, err := tx.ExecContext(ctx, "DELETE FROM "+table)
			if err != nil {
				return fmt.Errorf("reset table %s: %w", table, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			out = append(out, Cleared{Table: table, Rows: n})
		}
		return nil
	})
	if err != nil {
		return nil, conflict(err)
	}
	var total int64
	for _, c := range out {
		total += c.Rows
	}
	if total > 0 {
		// reclaim pages; a failure here leaves a valid, empty database
		_, _ = s.DB.ExecContext(ctx, "VACUUM")
	}
	logger.FromContext(ctx).Warn("database reset", "rows", total)
	return out, nil
}
