package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/recurring/internal/database/repository"
)

func TestRealizeIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	rent := mustCreate(t, ctx, svc, monthly("Rent", "-1500.00", 31, "2025-01-31"))

	first, err := svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-02-28")})
	require.NoError(t, err)
	require.Len(t, first.Transactions, 1)
	tx := first.Transactions[0]
	require.Equal(t, d("2025-02-28"), tx.Date)
	require.Equal(t, repository.SourceRecurring, tx.Source)
	require.Equal(t, rent.ID, *tx.RecurringSeriesID)
	require.True(t, usd("-1500").Equal(tx.Amount))

	_, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-02-28")})
	require.ErrorIs(t, err, ErrAlreadyRealized)
	var already *AlreadyRealizedError
	require.True(t, errors.As(err, &already))
	require.Equal(t, tx.ID, already.TransactionID)

	require.Equal(t, 1, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))
}

func TestRealizeRefusesInvalidOccurrences(t *testing.T) {
	t.Parallel()
	ctx, svc, _ := setupServiceTest(t)
	rent := mustCreate(t, ctx, svc, monthly("Rent", "-1500.00", 1, "2025-01-01"))

	_, err := svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: "missing", Date: d("2025-02-01")})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-02-02")})
	require.ErrorIs(t, err, ErrNotScheduled)

	_, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2024-12-01")})
	require.ErrorIs(t, err, ErrNotScheduled, "before start")

	require.NoError(t, svc.Exceptions.Skip(ctx, rent.ID, d("2025-03-01")))
	_, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-03-01")})
	require.ErrorIs(t, err, ErrSkipped)

	require.NoError(t, svc.Series.Deactivate(ctx, rent.ID))
	_, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-04-01")})
	require.ErrorIs(t, err, ErrInactive)
}

func TestRealizeResolvesOverrideThenExceptionThenDefault(t *testing.T) {
	t.Parallel()
	ctx, svc, _ := setupServiceTest(t)
	power := mustCreate(t, ctx, svc, monthly("Electric", "-100.00", 10, "2025-01-10"))

	exAmount := usd("-120.00")
	exDesc := "Electric (winter)"
	exDate := d("2025-02-12")
	require.NoError(t, svc.Exceptions.Modify(ctx, power.ID, d("2025-02-10"), Overrides{Amount: &exAmount, Description: &exDesc, Date: &exDate}))

	rz, err := svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: power.ID, Date: d("2025-02-10")})
	require.NoError(t, err)
	tx := rz.Transactions[0]
	require.True(t, exAmount.Equal(tx.Amount))
	require.Equal(t, exDesc, tx.Description)
	require.Equal(t, exDate, tx.Date)
	require.Equal(t, d("2025-02-10"), *tx.RecurringInstanceDate, "correlates by original date")

	require.NoError(t, svc.Exceptions.Modify(ctx, power.ID, d("2025-03-10"), Overrides{Amount: &exAmount}))
	override := usd("-130.00")
	rz, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: power.ID, Date: d("2025-03-10"), Amount: &override})
	require.NoError(t, err)
	tx = rz.Transactions[0]
	require.True(t, override.Equal(tx.Amount))
	require.Equal(t, "Electric", tx.Description)
	require.Equal(t, d("2025-03-10"), tx.Date)

	eur := eurAmount()
	_, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: power.ID, Date: d("2025-04-10"), Amount: &eur})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRealizeTransferCreatesBothLegs(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	sweep := mustCreate(t, ctx, svc, transfer("Savings sweep", "200", 15, "2025-01-15"))

	rz, err := svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: sweep.ID, Date: d("2025-01-15")})
	require.NoError(t, err)
	require.Len(t, rz.Transactions, 2)
	require.NotEmpty(t, rz.TransferID)

	src, dst := rz.Transactions[0], rz.Transactions[1]
	require.Equal(t, repository.LegSource, src.Leg)
	require.Equal(t, "chk", src.AccountID)
	require.True(t, usd("-200").Equal(src.Amount))
	require.Equal(t, repository.LegDestination, dst.Leg)
	require.Equal(t, "sav", dst.AccountID)
	require.True(t, usd("200").Equal(dst.Amount))
	require.Equal(t, *src.TransferID, *dst.TransferID)

	require.Equal(t, 2, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions WHERE transfer_id = ?`, rz.TransferID))

	_, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: sweep.ID, Date: d("2025-01-15")})
	var already *AlreadyRealizedError
	require.ErrorAs(t, err, &already)
	require.Equal(t, src.ID, already.TransactionID)
}

func TestRealizeTransferIsAtomic(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	sweep := mustCreate(t, ctx, svc, transfer("Savings sweep", "200", 15, "2025-01-15"))
	failDestinationLegs(t, ctx, db)

	_, err := svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: sweep.ID, Date: d("2025-01-15")})
	require.Error(t, err)
	require.Zero(t, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))

	_, err = db.ExecContext(ctx, `DROP TRIGGER fail_destination_leg`)
	require.NoError(t, err)
	_, err = svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: sweep.ID, Date: d("2025-01-15")})
	require.NoError(t, err)
	require.Equal(t, 2, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))
}

func TestRealizeBatchAccumulatesErrors(t *testing.T) {
	t.Parallel()
	ctx, svc, _ := setupServiceTest(t)
	rent := mustCreate(t, ctx, svc, monthly("Rent", "-1500.00", 1, "2025-01-01"))

	res, err := svc.Realizer.RealizeBatch(ctx, []RealizeRequest{
		{SeriesID: rent.ID, Date: d("2025-01-01")},
		{SeriesID: rent.ID, Date: d("2025-01-02")},
		{SeriesID: rent.ID, Date: d("2025-02-01")},
		{SeriesID: rent.ID, Date: d("2025-01-01")},
	})
	require.NoError(t, err)
	require.Len(t, res.Realized, 2)
	require.Len(t, res.Errors, 2)
	require.ErrorIs(t, res.Errors[0], ErrNotScheduled)
	require.ErrorIs(t, res.Errors[1], ErrAlreadyRealized)
}
