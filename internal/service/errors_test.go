package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/recurring/internal/database"
	"github.com/jask/recurring/internal/matching"
)

func TestRealizeLosingUniqueIndexRaceIsConflict(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	rent := mustCreate(t, ctx, svc, monthly("Rent", "-1500.00", 1, "2025-01-01"))
	racingWriter(t, ctx, db)

	_, err := svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-02-01")})
	require.ErrorIs(t, err, ErrConflict)
	require.NotErrorIs(t, err, ErrAlreadyRealized)
	require.Zero(t, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))
}

func TestRealizeWhileAnotherProcessHoldsTheWriteLockIsConflict(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	rent := mustCreate(t, ctx, svc, monthly("Rent", "-1500.00", 1, "2025-01-01"))

	other, err := database.Open(databaseFile(t, ctx, db), database.WithBusyTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })
	svc2 := New(other, matching.DefaultThresholds)

	held, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = svc2.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-02-01")})
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, held.Rollback())
	_, err = svc2.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-02-01")})
	require.NoError(t, err, "the write succeeds once the lock is released")
	require.Equal(t, 1, countRows(t, ctx, db, `SELECT COUNT(*) FROM transactions`))
}
