package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResetWipesDataAndReportsCounts(t *testing.T) {
	t.Parallel()
	ctx, svc, db := setupServiceTest(t)
	rent := mustCreate(t, ctx, svc, monthly("Rent", "-1500", 1, "2025-01-01"))
	_, err := svc.Realizer.Realize(ctx, RealizeRequest{SeriesID: rent.ID, Date: d("2025-01-01")})
	require.NoError(t, err)
	require.NoError(t, svc.Exceptions.Skip(ctx, rent.ID, d("2025-02-01")))

	cleared, err := svc.Maintenance.Reset(ctx)
	require.NoError(t, err)
	rows := map[string]int64{}
	var tables []string
	for _, c := range cleared {
		rows[c.Table] = c.Rows
		tables = append(tables, c.Table)
	}
	require.Equal(t, resetOrder, tables)
	require.Equal(t, int64(1), rows["transactions"])
	require.Equal(t, int64(1), rows["series"])
	require.Equal(t, int64(1), rows["series_exceptions"])
	require.Equal(t, int64(2), rows["accounts"])
	require.Zero(t, rows["matches"])

	for _, table := range resetOrder {
		require.Zero(t, countRows(t, ctx, db, `SELECT COUNT(*) FROM `+table), table)
	}

	again, err := svc.Maintenance.Reset(ctx)
	require.NoError(t, err)
	for _, c := range again {
		require.Zero(t, c.Rows, c.Table)
	}
}
