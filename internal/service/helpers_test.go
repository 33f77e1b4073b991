package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
)

func setupServiceTest(t *testing.T) (context.Context, *Services, *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	svc := New(db, matching.DefaultThresholds)
	require.NoError(t, svc.Accounts.Upsert(ctx, repository.Account{ID: "chk", Name: "Checking", AccountType: "checking", Currency: "USD"}))
	require.NoError(t, svc.Accounts.Upsert(ctx, repository.Account{ID: "sav", Name: "Savings", AccountType: "savings", Currency: "USD"}))
	return ctx, svc, db
}

func d(s string) date.Date { return date.MustParse(s) }

func usd(s string) money.Amount { return money.MustParse(s, "USD") }

func monthly(desc, amount string, day int, start string) CreateSeriesInput {
	return CreateSeriesInput{
		Kind:        schedule.KindTransaction,
		AccountID:   "chk",
		Description: desc,
		Amount:      usd(amount),
		Pattern:     recurrence.Spec{Frequency: recurrence.Monthly, Interval: 1, DayOfMonth: day},
		StartDate:   d(start),
	}
}

func daily(desc, amount, start string) CreateSeriesInput {
	return CreateSeriesInput{
		Kind:        schedule.KindTransaction,
		AccountID:   "chk",
		Description: desc,
		Amount:      usd(amount),
		Pattern:     recurrence.Spec{Frequency: recurrence.Daily, Interval: 1},
		StartDate:   d(start),
	}
}

func transfer(desc, amount string, day int, start string) CreateSeriesInput {
	in := monthly(desc, amount, day, start)
	in.Kind = schedule.KindTransfer
	in.ToAccountID = "sav"
	return in
}

func mustCreate(t *testing.T, ctx context.Context, svc *Services, in CreateSeriesInput) schedule.Series {
	t.Helper()
	s, err := svc.Series.Create(ctx, in)
	require.NoError(t, err)
	return s
}

func countRows(t *testing.T, ctx context.Context, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(ctx, query, args...).Scan(&n))
	return n
}

// failDestinationLegs makes every insert of a transfer destination leg fail,
// simulating a crash between the two inserts of a transfer.
func failDestinationLegs(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	_, err := db.ExecContext(ctx, `
	CREATE TRIGGER fail_destination_leg BEFORE INSERT ON transactions
	WHEN NEW.leg = 'destination'
	BEGIN
		SELECT RAISE(ABORT, 'simulated failure');
	END`)
	require.NoError(t, err)
}

func importRow(t *testing.T, ctx context.Context, svc *Services, id, account, on, amount, desc string) repository.Transaction {
	t.Helper()
	tx := repository.Transaction{
		ID:          id,
		AccountID:   account,
		Date:        d(on),
		Amount:      usd(amount),
		Description: desc,
		Source:      repository.SourceImport,
	}
	require.NoError(t, svc.Reconciler.Transactions.Insert(ctx, tx))
	return tx
}

func eurAmount() money.Amount { return money.MustParse("-100", "EUR") }

// racingWriter makes another writer slip in the same recurring row just
// before every recurring insert, as if a second process realized the
// occurrence between the realized check and the write.
func racingWriter(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	_, err := db.ExecContext(ctx, `
	CREATE TRIGGER racing_writer BEFORE INSERT ON transactions
	WHEN NEW.source = 'recurring' AND NEW.id <> 'racer'
	BEGIN
		INSERT INTO transactions(id, account_id, date, amount, currency, description, source,
			recurring_series_id, recurring_instance_date, leg)
		VALUES('racer', NEW.account_id, NEW.date, NEW.amount, NEW.currency, NEW.description, 'recurring',
			NEW.recurring_series_id, NEW.recurring_instance_date, NEW.leg);
	END`)
	require.NoError(t, err)
}

func databaseFile(t *testing.T, ctx context.Context, db *sql.DB) string {
	t.Helper()
	var path string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT file FROM pragma_database_list WHERE name = 'main'`).Scan(&path))
	return path
}
