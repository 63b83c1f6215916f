package raw

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(storage.RawSchema))
	t.Cleanup(func() { _ = db.Close() })
	return New(db, zerolog.Nop())
}

func mkObservation(source, book, gameID string, collectedAt time.Time) model.Observation {
	moneyPct := 62.0
	return model.Observation{
		CollectedAt:    collectedAt,
		GameExternalID: gameID,
		Source:         source,
		Book:           book,
		Market:         model.MarketMoneyline,
		Endpoint:       "https://example.test/odds",
		SplitValue:     `{"home":-120,"away":110}`,
		MoneyPct:       &moneyPct,
	}
}

func TestAppend_IdempotentOnSecondaryKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	collectedAt := time.Now().Truncate(time.Second)

	obs := mkObservation("vsin", "Circa", "game-1", collectedAt)
	id1, err := store.Append(ctx, obs)
	require.NoError(t, err)

	id2, err := store.Append(ctx, obs)
	require.NoError(t, err)
	require.Equal(t, id1, id2, "re-appending the same secondary key must be a no-op")
}

func TestAppend_DistinctKeysGetDistinctIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	collectedAt := time.Now().Truncate(time.Second)

	obs1 := mkObservation("vsin", "Circa", "game-1", collectedAt)
	obs2 := mkObservation("vsin", "DK", "game-1", collectedAt)

	id1, err := store.Append(ctx, obs1)
	require.NoError(t, err)
	id2, err := store.Append(ctx, obs2)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestSince_ReturnsOnlyNewerRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	collectedAt := time.Now().Truncate(time.Second)

	id1, err := store.Append(ctx, mkObservation("vsin", "Circa", "game-1", collectedAt))
	require.NoError(t, err)
	_, err = store.Append(ctx, mkObservation("vsin", "Circa", "game-2", collectedAt.Add(time.Minute)))
	require.NoError(t, err)

	rows, err := store.Since(ctx, id1, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "game-2", rows[0].GameExternalID)
}

func TestSinceSource_FiltersByProvider(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	collectedAt := time.Now().Truncate(time.Second)

	_, err := store.Append(ctx, mkObservation("vsin", "Circa", "game-1", collectedAt))
	require.NoError(t, err)
	_, err = store.Append(ctx, mkObservation("sbd", "Circa", "game-1", collectedAt))
	require.NoError(t, err)

	rows, err := store.SinceSource(ctx, "sbd", 0, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "sbd", rows[0].Source)
}

func TestMaxIngestionID_ReflectsLatestAppend(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	collectedAt := time.Now().Truncate(time.Second)

	max0, err := store.MaxIngestionID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), max0)

	id, err := store.Append(ctx, mkObservation("vsin", "Circa", "game-1", collectedAt))
	require.NoError(t, err)

	max1, err := store.MaxIngestionID(ctx)
	require.NoError(t, err)
	require.Equal(t, id, max1)
}
