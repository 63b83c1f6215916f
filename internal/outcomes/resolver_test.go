package outcomes

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/curated"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
	"github.com/aristath/sharpline/internal/storage/games"
	"github.com/aristath/sharpline/internal/storage/raw"
)

func openTestStores(t *testing.T) (*raw.Store, *games.Store, *curated.Reader) {
	t.Helper()
	rawDB, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "raw-test"})
	require.NoError(t, err)
	require.NoError(t, rawDB.Migrate(storage.RawSchema))
	t.Cleanup(func() { _ = rawDB.Close() })

	curatedDB, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "curated-test"})
	require.NoError(t, err)
	require.NoError(t, curatedDB.Migrate(storage.CuratedSchema))
	t.Cleanup(func() { _ = curatedDB.Close() })

	return raw.New(rawDB, zerolog.Nop()), games.New(curatedDB), curated.NewReader(curatedDB)
}

func mlbStatsPayload(t *testing.T, gameDate time.Time, state, homeName, awayName string, homeScore, awayScore *int) []byte {
	t.Helper()
	payload := map[string]interface{}{
		"gameDate": gameDate.Format(time.RFC3339),
		"status":   map[string]interface{}{"abstractGameState": state},
		"teams": map[string]interface{}{
			"home": map[string]interface{}{"score": homeScore, "team": map[string]interface{}{"name": homeName}},
			"away": map[string]interface{}{"score": awayScore, "team": map[string]interface{}{"name": awayName}},
		},
	}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return b
}

func scorePtr(v int) *int { return &v }

func TestRun_ResolvesFinishedGameAndFillsScores(t *testing.T) {
	rawStore, gameStore, curatedReader := openTestStores(t)
	ctx := context.Background()

	gameDateEastern := "2025-07-01"
	gameStart := time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)
	gameID, err := gameStore.ResolveOrCreate(ctx, "BOS", "NYY", gameDateEastern, gameStart, "Fenway Park", model.MarketSizeLarge, model.DaypartNight)
	require.NoError(t, err)

	payload := mlbStatsPayload(t, gameStart, "Final", "Boston Red Sox", "New York Yankees", scorePtr(5), scorePtr(3))
	_, err = rawStore.Append(ctx, model.Observation{
		Source: sourceMLBStats, Book: "UNKNOWN", GameExternalID: "g1", Market: model.MarketMoneyline,
		CollectedAt: gameStart, Endpoint: "mlb_stats", RawPayload: payload, IngestionSequence: 1,
	})
	require.NoError(t, err)

	fixedNow := time.Date(2025, 7, 2, 4, 0, 0, 0, time.UTC)
	resolver := New(rawStore, gameStore, curatedReader, func() time.Time { return fixedNow }, zerolog.Nop())

	result, err := resolver.Run(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, 1, result.Resolved)
	require.Equal(t, 0, result.Unmatched)

	g, err := gameStore.Get(ctx, gameID)
	require.NoError(t, err)
	require.NotNil(t, g.HomeScore)
	require.Equal(t, 5, *g.HomeScore)
	require.Equal(t, 3, *g.AwayScore)
	require.NotNil(t, g.HomeWin)
	require.True(t, *g.HomeWin)
	require.NotNil(t, g.OutcomeResolvedAt)
}

func TestRun_SkipsGamesNotYetFinal(t *testing.T) {
	rawStore, gameStore, curatedReader := openTestStores(t)
	ctx := context.Background()

	gameStart := time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)
	payload := mlbStatsPayload(t, gameStart, "Live", "Boston Red Sox", "New York Yankees", scorePtr(2), scorePtr(1))
	_, err := rawStore.Append(ctx, model.Observation{
		Source: sourceMLBStats, Book: "UNKNOWN", GameExternalID: "g2", Market: model.MarketMoneyline,
		CollectedAt: gameStart, Endpoint: "mlb_stats", RawPayload: payload, IngestionSequence: 1,
	})
	require.NoError(t, err)

	resolver := New(rawStore, gameStore, curatedReader, nil, zerolog.Nop())
	result, err := resolver.Run(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, 0, result.Resolved)
}

func TestRun_UnmatchedTeamCountsAsUnmatched(t *testing.T) {
	rawStore, gameStore, curatedReader := openTestStores(t)
	ctx := context.Background()

	gameStart := time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)
	payload := mlbStatsPayload(t, gameStart, "Final", "Totally Unknown Team", "New York Yankees", scorePtr(2), scorePtr(1))
	_, err := rawStore.Append(ctx, model.Observation{
		Source: sourceMLBStats, Book: "UNKNOWN", GameExternalID: "g3", Market: model.MarketMoneyline,
		CollectedAt: gameStart, Endpoint: "mlb_stats", RawPayload: payload, IngestionSequence: 1,
	})
	require.NoError(t, err)

	resolver := New(rawStore, gameStore, curatedReader, nil, zerolog.Nop())
	result, err := resolver.Run(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, 0, result.Resolved)
	require.Equal(t, 1, result.Unmatched)
}

func TestRun_NoMatchingGameRowCountsAsUnmatched(t *testing.T) {
	rawStore, gameStore, curatedReader := openTestStores(t)
	ctx := context.Background()

	gameStart := time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)
	payload := mlbStatsPayload(t, gameStart, "Final", "Boston Red Sox", "New York Yankees", scorePtr(5), scorePtr(3))
	_, err := rawStore.Append(ctx, model.Observation{
		Source: sourceMLBStats, Book: "UNKNOWN", GameExternalID: "g4", Market: model.MarketMoneyline,
		CollectedAt: gameStart, Endpoint: "mlb_stats", RawPayload: payload, IngestionSequence: 1,
	})
	require.NoError(t, err)

	resolver := New(rawStore, gameStore, curatedReader, nil, zerolog.Nop())
	result, err := resolver.Run(ctx, 0, 100)
	require.NoError(t, err)
	require.Equal(t, 0, result.Resolved)
	require.Equal(t, 1, result.Unmatched)
}
