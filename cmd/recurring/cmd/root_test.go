package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/service"
)

// The commands share package-level flag state, so these tests run serially.

func setupCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	dbPath := filepath.Join(home, "cli.db")
	t.Setenv("HOME", home)
	t.Setenv("RECURRING_CONFIG", "")
	t.Setenv("RECURRING_DATABASE_PATH", dbPath)
	t.Setenv("RECURRING_LOG_LEVEL", "error")
	return dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--today", "2025-03-10"}, args...))
	err := Execute()
	return out.String(), err
}

func openServices(t *testing.T, dbPath string) *service.Services {
	t.Helper()
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return service.New(db, matching.DefaultThresholds)
}

func TestSeriesLifecycleFromCLI(t *testing.T) {
	dbPath := setupCLI(t)

	out, err := run(t, "series", "add", "--desc", "Rent", "--amount", "-1500", "--day", "31", "--start", "2025-01-31")
	require.NoError(t, err, out)
	require.Contains(t, out, "Rent")
	require.Contains(t, out, "monthly day 31")

	svc := openServices(t, dbPath)
	list, err := svc.Series.List(context.Background(), repository.SeriesFilters{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	id := list[0].ID

	out, err = run(t, "project", "--from", "2025-02-01", "--to", "2025-04-30")
	require.NoError(t, err, out)
	require.Contains(t, out, "2025-02-28")
	require.Contains(t, out, "2025-04-30")

	out, err = run(t, "realize", id, "2025-02-28")
	require.NoError(t, err, out)
	require.Contains(t, out, "single")

	_, err = run(t, "realize", id, "2025-02-28")
	require.ErrorContains(t, err, "already realized")

	out, err = run(t, "skip", id, "2025-03-31")
	require.NoError(t, err, out)
	require.Contains(t, out, "skipped 2025-03-31")

	instances, err := svc.Projector.SeriesInstances(context.Background(), id, list[0].StartDate, list[0].StartDate.Add(89))
	require.NoError(t, err)
	var dates []string
	for _, inst := range instances {
		dates = append(dates, inst.Date.String())
	}
	require.Equal(t, "2025-01-31 2025-02-28 2025-04-30", strings.Join(dates, " "))

	out, err = run(t, "series", "deactivate", id)
	require.NoError(t, err, out)
	out, err = run(t, "series", "list")
	require.NoError(t, err)
	require.Contains(t, out, "(none)")
}

func TestImportAndReconcileFromCLI(t *testing.T) {
	dbPath := setupCLI(t)

	out, err := run(t, "series", "add", "--desc", "Netflix", "--amount", "-15.99", "--day", "15", "--start", "2025-01-15")
	require.NoError(t, err, out)

	csvPath := filepath.Join(t.TempDir(), "statement.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("date,description,amount\n2025-02-15,NETFLIX.COM,-15.99\n2025-02-20,WOOLWORTHS,-40.00\n"), 0o600))

	out, err = run(t, "import", csvPath, "--reconcile")
	require.NoError(t, err, out)
	require.Contains(t, out, "imported 2, skipped 0, errors 0")
	require.Contains(t, out, "matched")
	require.Contains(t, out, "missing")

	svc := openServices(t, dbPath)
	matched, err := svc.Reconciler.ListMatches(context.Background(), matching.StatusMatched)
	require.NoError(t, err)
	require.Len(t, matched, 1)

	out, err = run(t, "unlink", matched[0].ID)
	require.NoError(t, err, out)
	require.Contains(t, out, "unlinked")
}

func TestSettingsAndAutoRealizeFromCLI(t *testing.T) {
	setupCLI(t)

	out, err := run(t, "series", "add", "--desc", "Gym", "--amount", "-55", "--day", "5", "--start", "2025-02-05")
	require.NoError(t, err, out)

	out, err = run(t, "auto-realize")
	require.NoError(t, err, out)
	require.Contains(t, out, "disabled")

	out, err = run(t, "settings", "--auto", "--lookback", "40")
	require.NoError(t, err, out)
	require.Contains(t, out, "past_due_lookback_days = 40")

	out, err = run(t, "auto-realize")
	require.NoError(t, err, out)
	require.Contains(t, out, "window 2025-01-29..2025-03-09: realized 2")
}

func TestResetNeedsConfirmation(t *testing.T) {
	dbPath := setupCLI(t)
	out, err := run(t, "series", "add", "--desc", "Gym", "--amount", "-55", "--day", "5", "--start", "2025-02-05")
	require.NoError(t, err, out)

	_, err = run(t, "reset")
	require.ErrorContains(t, err, "--yes")

	out, err = run(t, "reset", "--yes")
	require.NoError(t, err, out)
	require.Contains(t, out, "series_exceptions")
	require.Contains(t, out, "database reset")

	svc := openServices(t, dbPath)
	list, err := svc.Series.List(context.Background(), repository.SeriesFilters{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestVersionReportsSchema(t *testing.T) {
	setupCLI(t)
	out, err := run(t, "version")
	require.NoError(t, err, out)
	require.Contains(t, out, "recurring dev")
	require.Contains(t, out, "schema 1 (clean)")
}
