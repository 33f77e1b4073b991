package tui

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/matching"
	"github.com/jask/recurring/internal/money"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
	"github.com/jask/recurring/internal/service"
)

func setupApp(t *testing.T) (*App, *service.Services, repository.Account) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tui.db")
	require.NoError(t, database.RunMigrations(dbPath))
	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	svc := service.New(db, matching.DefaultThresholds)
	acct, err := svc.Series.EnsureAccount(ctx, "Checking", "USD")
	require.NoError(t, err)

	a := New(ctx, svc, Options{Today: date.MustParse("2025-03-10"), Currency: "USD", Account: "Checking"})
	return a, svc, acct
}

func createMonthly(t *testing.T, svc *service.Services, accountID, desc, amount string, day int, start string) schedule.Series {
	t.Helper()
	s, err := svc.Series.Create(context.Background(), service.CreateSeriesInput{
		AccountID:   accountID,
		Description: desc,
		Amount:      money.MustParse(amount, "USD"),
		Pattern:     recurrence.Spec{Frequency: recurrence.Monthly, Interval: 1, DayOfMonth: day},
		StartDate:   date.MustParse(start),
	})
	require.NoError(t, err)
	return s
}

func keyMsg(k string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// drain runs cmd and feeds every resulting message back into the app,
// expanding batches, until no command remains.
func drain(t *testing.T, a *App, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		return
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			drain(t, a, c)
		}
		return
	}
	_, next := a.Update(msg)
	drain(t, a, next)
}

func press(t *testing.T, a *App, k string) {
	t.Helper()
	_, cmd := a.Update(keyMsg(k))
	drain(t, a, cmd)
}

func TestDashboardListsUpcoming(t *testing.T) {
	t.Parallel()
	a, svc, acct := setupApp(t)
	createMonthly(t, svc, acct.ID, "Rent", "-1500.00", 5, "2025-02-05")

	drain(t, a, a.Init())
	require.Len(t, a.upcoming, 1)
	require.Equal(t, "2025-04-05", a.upcoming[0].Date.String())

	view := a.View()
	require.Contains(t, view, "Upcoming 2025-03-10 to 2025-04-09")
	require.Contains(t, view, "Rent")
	require.Contains(t, view, "Pending review: 0")
}

func TestImportThenConfirmPendingMatch(t *testing.T) {
	t.Parallel()
	a, svc, acct := setupApp(t)
	power := createMonthly(t, svc, acct.ID, "Electric", "-100.00", 10, "2025-01-10")
	drain(t, a, a.Init())

	path := filepath.Join(t.TempDir(), "statement.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,description,amount\n2025-02-12,ELECTRIC,-102.00\n"), 0o600))

	press(t, a, "i")
	require.Equal(t, viewImport, a.state)
	_, cmd := a.Update(keyMsg(path))
	require.Nil(t, cmd)
	_, cmd = a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	drain(t, a, cmd)

	require.Equal(t, viewReconcile, a.state)
	require.NotNil(t, a.lastImport)
	require.Equal(t, 1, a.lastImport.Imported)
	require.Equal(t, "matched 0, pending 1, unmatched 0", a.status)
	require.Len(t, a.pending, 1)
	require.Equal(t, power.ID, a.pending[0].Match.SeriesID)
	require.NotNil(t, a.pending[0].Expected)
	require.Equal(t, "2025-02-10", a.pending[0].Expected.Date.String())

	view := a.View()
	require.Contains(t, view, "Match 1 of 1")
	require.Contains(t, view, "ELECTRIC")
	require.Contains(t, view, "Offset: 2d")

	press(t, a, "y")
	require.Equal(t, "confirmed", a.status)
	require.Empty(t, a.pending)

	matched, err := svc.Reconciler.ListMatches(context.Background(), matching.StatusMatched)
	require.NoError(t, err)
	require.Len(t, matched, 1)
}

func TestRejectAndLearnFromQueue(t *testing.T) {
	t.Parallel()
	a, svc, acct := setupApp(t)
	power := createMonthly(t, svc, acct.ID, "Electric", "-100.00", 10, "2025-01-10")
	ctx := context.Background()
	require.NoError(t, svc.Reconciler.Transactions.Insert(ctx, repository.Transaction{
		ID:          "imp-late",
		AccountID:   acct.ID,
		Date:        date.MustParse("2025-02-12"),
		Amount:      money.MustParse("-102.00", "USD"),
		Description: "ELECTRIC",
		Source:      repository.SourceImport,
	}))

	press(t, a, "r")
	press(t, a, "s")
	require.Len(t, a.pending, 1)

	press(t, a, "l")
	require.Equal(t, `learned "ELECTRIC"`, a.status)
	got, err := svc.Series.Get(ctx, power.ID)
	require.NoError(t, err)
	require.Contains(t, got.ImportPatterns, "ELECTRIC")

	press(t, a, "l")
	require.Equal(t, "pattern already known", a.status)

	press(t, a, "n")
	require.Equal(t, "rejected", a.status)
	require.Empty(t, a.pending)

	skipped, err := svc.Reconciler.ListMatches(ctx, matching.StatusSkipped)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
}

func TestSettingsToggleAndCatchUp(t *testing.T) {
	t.Parallel()
	a, svc, acct := setupApp(t)
	createMonthly(t, svc, acct.ID, "Rent", "-1500.00", 5, "2025-02-05")
	drain(t, a, a.Init())

	press(t, a, "p")
	require.Equal(t, viewSettings, a.state)
	press(t, a, "c")
	require.Equal(t, "auto-realize is disabled", a.status)

	press(t, a, "a")
	require.True(t, a.settings.AutoRealizePastDueItems)
	press(t, a, "-")
	require.Equal(t, 29, a.settings.PastDueLookbackDays)
	require.Contains(t, a.View(), "Look-back days: 29")

	press(t, a, "c")
	require.Equal(t, "auto-realized 1, skipped 0, errors 0", a.status)

	stored, err := svc.Settings.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, repository.Settings{AutoRealizePastDueItems: true, PastDueLookbackDays: 29}, stored)
}

func TestResetModal(t *testing.T) {
	t.Parallel()
	a, svc, acct := setupApp(t)
	createMonthly(t, svc, acct.ID, "Rent", "-1500.00", 5, "2025-02-05")
	drain(t, a, a.Init())

	press(t, a, "p")
	press(t, a, "x")
	require.Equal(t, modalConfirmReset, a.modal)
	require.Contains(t, a.View(), "Reset database?")

	press(t, a, "n")
	require.Equal(t, modalNone, a.modal)

	press(t, a, "x")
	press(t, a, "y")
	require.Regexp(t, `^database reset, [1-9]\d* rows removed$`, a.status)
	require.Empty(t, a.upcoming)

	list, err := svc.Series.List(context.Background(), repository.SeriesFilters{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestQuitKey(t *testing.T) {
	t.Parallel()
	a, _, _ := setupApp(t)
	_, cmd := a.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}
