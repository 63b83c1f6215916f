package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/ratelimit"
	"github.com/aristath/sharpline/internal/storage"
	"github.com/aristath/sharpline/internal/storage/games"
)

func openTestGames(t *testing.T) *games.Store {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(storage.CuratedSchema))
	t.Cleanup(func() { _ = db.Close() })
	return games.New(db)
}

func TestLiveGameGuard_ActiveDuringProtectedWindow(t *testing.T) {
	gameStore := openTestGames(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	gameStart := now.Add(5 * time.Minute)

	_, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", gameStart, "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	guard := &LiveGameGuard{Games: gameStore, Clock: clock.Fixed{At: now}}
	require.NoError(t, guard.Run())
	require.True(t, guard.Active(), "now is within [game_start-10min, game_start+4h]")
}

func TestLiveGameGuard_InactiveOutsideWindow(t *testing.T) {
	gameStore := openTestGames(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	gameStart := now.Add(6 * time.Hour)

	_, err := gameStore.ResolveOrCreate(ctx, "HOME2", "AWAY2", "2025-07-01", gameStart, "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	guard := &LiveGameGuard{Games: gameStore, Clock: clock.Fixed{At: now}}
	require.NoError(t, guard.Run())
	require.False(t, guard.Active())
}

func TestQuietPeriod_FetchJobSkipsWhenActive(t *testing.T) {
	qp := &ratelimit.QuietPeriod{}
	qp.Set()
	job := &FetchJob{
		Clock:       clock.Fixed{At: time.Now()},
		FetchWindow: time.Minute,
		QuietPeriod: qp,
	}

	err := job.Run()
	require.NoError(t, err, "quiet period must short-circuit before touching any nil Sources/RawStore")
}
