package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/date"
	"github.com/jask/recurring/internal/matching"
)

func enabled(lookback int) repository.Settings {
	return repository.Settings{AutoRealizePastDueItems: true, PastDueLookbackDays: lookback}
}

func TestAutoRealizeWindow(t *testing.T) {
	t.Parallel()
	w := Window(d("2025-03-10"), 5)
	require.Equal(t, d("2025-03-05"), w.From)
	require.Equal(t, d("2025-03-09"), w.To)
	require.False(t, w.Contains(d("2025-03-10")), "today is excluded")

	require.True(t, Window(d("2025-03-10"), 0).Empty())
	require.True(t, Window(d("2025-03-10"), -3).Empty())
}

func TestAutoRealizeDisabledIsNoop(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	mustCreate(t, ctx, svc, daily("Coffee", "-4.50", "2025-03-01"))

	res, err := svc.AutoRealizer.RunIfEnabled(ctx, d("2025-03-10"), repository.DefaultSettings, "")
	require.NoError(t, err)
	require.False(t, res.Enabled)
	require.Empty(t, res.Realized)
	require.Zero(t, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))
}

func TestAutoRealizeCatchesUpWindowOnly(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	coffee := mustCreate(t, ctx, svc, daily("Coffee", "-4.50", "2025-03-01"))

	require.NoError(t, svc.Exceptions.Skip(ctx, coffee.ID, d("2025-03-07")))
	_, err := svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: coffee.ID, Date: d("2025-03-06")})
	require.NoError(t, err)

	res, err := svc.AutoRealizer.RunIfEnabled(ctx, d("2025-03-10"), enabled(5), "")
	require.NoError(t, err)
	require.True(t, res.Enabled)
	require.Empty(t, res.Errors)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 1, res.AlreadyRealized)

	var got []date.Date
	for _, rz := range res.Realized {
		got = append(got, rz.InstanceDate)
	}
	require.Equal(t, []date.Date{d("2025-03-05"), d("2025-03-08"), d("2025-03-09")}, got)

	require.Zero(t, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions WHERE date IN ('2025-03-04', '2025-03-10')`))
	require.Equal(t, 4, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))

	again, err := svc.AutoRealizer.RunIfEnabled(ctx, d("2025-03-10"), enabled(5), "")
	require.NoError(t, err)
	require.Empty(t, again.Realized)
	require.Equal(t, 4, again.AlreadyRealized)
}

func TestAutoRealizeFiltersByAccount(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	mustCreate(t, ctx, svc, monthly("Rent", "-1500", 1, "2025-01-01"))
	sweep := mustCreate(t, ctx, svc, transfer("Savings sweep", "200", 2, "2025-01-02"))

	res, err := svc.AutoRealizer.RunIfEnabled(ctx, d("2025-03-10"), enabled(30), "sav")
	require.NoError(t, err)
	require.Len(t, res.Realized, 1)
	require.Equal(t, sweep.ID, res.Realized[0].SeriesID)
	require.Equal(t, d("2025-03-02"), res.Realized[0].InstanceDate)
	require.Equal(t, 2, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))
}

func TestAutoRealizeRecordsItemFailuresWithoutPartialRows(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	mustCreate(t, ctx, svc, monthly("Rent", "-1500", 1, "2025-01-01"))
	mustCreate(t, ctx, svc, transfer("Savings sweep", "200", 2, "2025-01-02"))
	failDestinationLegs(t, ctx, db)

	res, err := svc.AutoRealizer.RunIfEnabled(ctx, d("2025-03-10"), enabled(30), "")
	require.NoError(t, err)
	require.Len(t, res.Realized, 1)
	require.Len(t, res.Errors, 1)
	require.Equal(t, 1, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))
	require.Zero(t, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions WHERE transfer_id IS NOT NULL`))
}

func TestAutoRealizeCancelledLeavesNothing(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	mustCreate(t, ctx, svc, daily("Coffee", "-4.50", "2025-03-01"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := svc.AutoRealizer.RunIfEnabled(cancelled, d("2025-03-10"), enabled(5), "")
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))
}

func TestAutoRealizeLeavesPendingMatchesForReview(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	power := mustCreate(t, ctx, svc, monthly("Electric", "-100.00", 10, "2025-01-10"))
	importRow(t, ctx, svc, "imp-late", "chk", "2025-02-12", "-102.00", "ELECTRIC")

	analyzed, err := svc.Reconciler.Analyze(ctx, "imp-late", matching.Moderate)
	require.NoError(t, err)
	require.Equal(t, matching.StatusPending, analyzed.Status)

	res, err := svc.AutoRealizer.RunIfEnabled(ctx, d("2025-02-20"), enabled(15), "")
	require.NoError(t, err)
	require.Empty(t, res.Realized)
	require.Empty(t, res.Errors)
	require.Equal(t, 1, res.AwaitingReview)
	require.Equal(t, 1, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`), "only the imported row")

	confirmed, err := svc.Reconciler.Confirm(ctx, analyzed.Match.ID)
	require.NoError(t, err)
	require.Equal(t, matching.StatusMatched, confirmed.Status)
	require.Equal(t, 1, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions WHERE recurring_series_id = ?`, power.ID))

	pending, err := svc.Reconciler.ListMatches(ctx, matching.StatusPending)
	require.NoError(t, err)
	require.Empty(t, pending)

	again, err := svc.AutoRealizer.RunIfEnabled(ctx, d("2025-02-20"), enabled(15), "")
	require.NoError(t, err)
	require.Zero(t, again.AwaitingReview)
	require.Equal(t, 1, again.AlreadyRealized)
}
