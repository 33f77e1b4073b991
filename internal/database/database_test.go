package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/recurring/internal/database/repository"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(path))
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))

	v, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), v)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	boom := errors.New("boom")
	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO accounts(id, name) VALUES('a', 'Checking')`)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n))
	require.Zero(t, n)
}

func TestWithTxRollsBackWhenCancelled(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO accounts(id, name) VALUES('a', 'Checking')`); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.Error(t, err)

	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM accounts`).Scan(&n))
	require.Zero(t, n)
}

func TestSeedDefaultsKeepsUserValues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	repo := repository.NewSettingsRepo(db)

	require.NoError(t, SeedDefaults(ctx, db, repository.Settings{PastDueLookbackDays: 30}))
	require.NoError(t, repo.Save(ctx, repository.Settings{AutoRealizePastDueItems: true, PastDueLookbackDays: 7}))
	require.NoError(t, SeedDefaults(ctx, db, repository.Settings{PastDueLookbackDays: 30}))

	s, err := repo.Load(ctx)
	require.NoError(t, err)
	require.True(t, s.AutoRealizePastDueItems)
	require.Equal(t, 7, s.PastDueLookbackDays)
}

func TestSavepointUndoesOnlyFailedItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		require.NoError(t, Savepoint(ctx, tx, "item", func() error {
			_, err := tx.ExecContext(ctx, `INSERT INTO accounts(id, name) VALUES('a', 'Checking')`)
			return err
		}))
		err := Savepoint(ctx, tx, "item", func() error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO accounts(id, name) VALUES('b', 'Savings')`); err != nil {
				return err
			}
			return errors.New("boom")
		})
		require.Error(t, err)
		return nil
	})
	require.NoError(t, err)

	var names []string
	rows, err := db.QueryContext(ctx, `SELECT name FROM accounts ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"Checking"}, names)
}
