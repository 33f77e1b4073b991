package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/recurring/internal/database/repository"
	"github.com/jask/recurring/internal/recurrence"
	"github.com/jask/recurring/internal/schedule"
)

func TestCreateSeriesValidation(t *testing.T) {
	t.Parallel()
	ctx, svc, _ := setupServiceTest(t)

	tests := []struct {
		name   string
		mutate func(*CreateSeriesInput)
		want   error
	}{
		{"missing description", func(in *CreateSeriesInput) { in.Description = " " }, ErrValidation},
		{"zero amount", func(in *CreateSeriesInput) { in.Amount = usd("0") }, ErrValidation},
		{"bad interval", func(in *CreateSeriesInput) { in.Pattern.Interval = 0 }, ErrValidation},
		{"bad day", func(in *CreateSeriesInput) { in.Pattern.DayOfMonth = 32 }, ErrValidation},
		{"end before start", func(in *CreateSeriesInput) { end := d("2024-12-31"); in.EndDate = &end }, ErrValidation},
		{"unknown account", func(in *CreateSeriesInput) { in.AccountID = "nope" }, ErrNotFound},
		{"unknown kind", func(in *CreateSeriesInput) { in.Kind = "loan" }, ErrValidation},
		{"transfer without destination", func(in *CreateSeriesInput) { in.Kind = schedule.KindTransfer }, ErrValidation},
		{"transfer to itself", func(in *CreateSeriesInput) { in.Kind, in.ToAccountID = schedule.KindTransfer, "chk" }, ErrValidation},
	}
	for _, tc := range tests {
		in := monthly("Rent", "-1500", 1, "2025-01-01")
		tc.mutate(&in)
		_, err := svc.Series.Create(ctx, in)
		require.ErrorIs(t, err, tc.want, tc.name)
	}

	var verr *recurrence.ValidationError
	in := monthly("Rent", "-1500", 0, "2025-01-01")
	_, err := svc.Series.Create(ctx, in)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "day_of_month", verr.Field)
}

func TestCreateSeriesStoresPatternsAndCursor(t *testing.T) {
	t.Parallel()
	ctx, svc, _ := setupServiceTest(t)
	in := monthly("Rent", "-1500", 31, "2025-02-10")
	in.ImportPatterns = []string{"ACME PROPERTY", " ", "ACME PROPERTY"}
	rent := mustCreate(t, ctx, svc, in)
	require.Equal(t, d("2025-02-28"), rent.NextOccurrence)
	require.Equal(t, []string{"ACME PROPERTY"}, rent.ImportPatterns)

	got, err := svc.Series.Get(ctx, rent.ID)
	require.NoError(t, err)
	require.Equal(t, rent.Pattern, got.Pattern)
	require.Equal(t, []string{"ACME PROPERTY"}, got.ImportPatterns)

	require.NoError(t, svc.Series.Deactivate(ctx, rent.ID))
	active, err := svc.Series.List(ctx, repository.SeriesFilters{ActiveOnly: true})
	require.NoError(t, err)
	require.Empty(t, active)

	instances, err := svc.Projector.Instances(ctx, d("2025-01-01"), d("2025-12-31"), "")
	require.NoError(t, err)
	require.Empty(t, instances)

	_, err = svc.Series.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProjectionRangeLimits(t *testing.T) {
	t.Parallel()
	ctx, svc, _ := setupServiceTest(t)
	_, err := svc.Projector.Instances(ctx, d("2025-02-01"), d("2025-01-01"), "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Projector.Instances(ctx, d("2000-01-01"), d("2030-01-01"), "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Projector.SeriesInstances(ctx, "nope", d("2025-01-01"), d("2025-02-01"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureAccountIsStable(t *testing.T) {
	t.Parallel()
	ctx, svc, _ := setupServiceTest(t)
	a, err := svc.Series.EnsureAccount(ctx, "Credit Card", "usd")
	require.NoError(t, err)
	b, err := svc.Series.EnsureAccount(ctx, "credit card", "usd")
	require.NoError(t, err)
	require.Equal(t, a.ID, b.ID)
	require.Equal(t, "USD", a.Currency)
}
