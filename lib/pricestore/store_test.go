package pricestore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"allblue-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (Store, context.Context) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "pricestore",
		DbSchema: Schema,
	})
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	t.Cleanup(cancel)

	return NewStore(res.DB), ctx
}

func TestRecordIdempotent(t *testing.T) {
	store, ctx := setup(t)

	err := store.Record(ctx, KindCard, "OP09-118", "2026-08-29", 10, 12)
	require.NoError(t, err)
	// same day again, even with different values: first write wins
	err = store.Record(ctx, KindCard, "OP09-118", "2026-08-29", 99, 99)
	require.NoError(t, err)

	points, err := store.History(ctx, KindCard, "OP09-118", 0)
	require.NoError(t, err)
	require.Equal(t, []Point{{Date: "2026-08-29", EUR: 10, USD: 12}}, points)
}

func TestHistoryOrderingAndLimit(t *testing.T) {
	store, ctx := setup(t)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		date := start.AddDate(0, 0, i).Format(time.DateOnly)
		err := store.Record(ctx, KindCard, "OP01-001", date, float64(i), float64(i*2))
		require.NoError(t, err)
	}

	points, err := store.History(ctx, KindCard, "OP01-001", 0)
	require.NoError(t, err)
	require.Len(t, points, 10)
	for i := 1; i < len(points); i++ {
		require.Less(t, points[i-1].Date, points[i].Date)
	}

	// a limit keeps the most recent window, still oldest-first
	points, err = store.History(ctx, KindCard, "OP01-001", 3)
	require.NoError(t, err)
	require.Len(t, points, 3)
	require.Equal(t, "2026-01-08", points[0].Date)
	require.Equal(t, "2026-01-10", points[2].Date)
}

func TestHistoryLimitClamped(t *testing.T) {
	store, ctx := setup(t)

	err := store.Record(ctx, KindDon, "Don!! Card (Red)", "2026-08-29", 4, 5)
	require.NoError(t, err)

	points, err := store.History(ctx, KindDon, "Don!! Card (Red)", 1_000_000)
	require.NoError(t, err)
	require.Len(t, points, 1)
}

func TestSeriesAreIndependent(t *testing.T) {
	store, ctx := setup(t)

	require.NoError(t, store.Record(ctx, KindCard, "shared-key", "2026-08-29", 1, 1))
	require.NoError(t, store.Record(ctx, KindSealed, "shared-key", "2026-08-29", 2, 2))

	points, err := store.History(ctx, KindCard, "shared-key", 0)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, 1.0, points[0].EUR)

	points, err = store.History(ctx, KindSealed, "shared-key", 0)
	require.NoError(t, err)
	require.Equal(t, 2.0, points[0].EUR)
}

func TestBaselineAt(t *testing.T) {
	store, ctx := setup(t)

	require.NoError(t, store.Record(ctx, KindCard, "OP02-002", "2026-08-01", 100, 120))
	require.NoError(t, store.Record(ctx, KindCard, "OP02-002", "2026-08-15", 110, 130))
	require.NoError(t, store.Record(ctx, KindCard, "OP02-002", "2026-08-29", 120, 140))

	// exact match on the cutoff day
	p, ok, err := store.BaselineAt(ctx, KindCard, "OP02-002", "2026-08-15")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2026-08-15", p.Date)

	// gaps resolve to the nearest earlier day
	p, ok, err = store.BaselineAt(ctx, KindCard, "OP02-002", "2026-08-20")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2026-08-15", p.Date)

	// before the series starts there is no baseline
	_, ok, err = store.BaselineAt(ctx, KindCard, "OP02-002", "2026-07-01")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.BaselineAt(ctx, KindCard, "unknown", "2026-08-29")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeys(t *testing.T) {
	store, ctx := setup(t)

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("OP01-%03d", i+1)
		require.NoError(t, store.Record(ctx, KindCard, key, "2026-08-29", 1, 1))
		require.NoError(t, store.Record(ctx, KindCard, key, "2026-08-30", 1, 1))
	}

	keys, err := store.Keys(ctx, KindCard)
	require.NoError(t, err)
	require.Equal(t, []string{"OP01-001", "OP01-002", "OP01-003"}, keys)
}
