package database

import (
	"context"
	"database/sql"

	"github.com/jask/recurring/internal/database/repository"
)

// SeedDefaults stores the given settings for any key not yet present. It is
// idempotent and safe to run on every startup; values a user changed are kept.
func SeedDefaults(ctx context.Context, db *sql.DB, defaults repository.Settings) error {
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		return repository.NewSettingsRepo(tx).SeedMissing(ctx, defaults)
	})
}
