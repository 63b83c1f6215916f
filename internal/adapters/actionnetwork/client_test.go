package actionnetwork

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/adapters"
	"github.com/aristath/sharpline/internal/model"
)

type stubDoer struct {
	status int
	body   string
	err    error
}

func (s stubDoer) Do(req *http.Request) (*http.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(bytes.NewBufferString(s.body)),
	}, nil
}

func gameJSON(collectedAt, gameStart time.Time) string {
	moneyPct := 62.0
	betPct := 40.0
	homeOdds, awayOdds := -150, 130
	payload := map[string]interface{}{
		"game_id": "1", "home_team": "BOS", "away_team": "NYY",
		"start_time": gameStart.Format(time.RFC3339), "book": "DraftKings",
		"markets": map[string]interface{}{
			"moneyline": map[string]interface{}{
				"home_money_pct": moneyPct, "home_bet_pct": betPct,
				"home_odds": homeOdds, "away_odds": awayOdds,
			},
		},
		"collected_at": collectedAt.Format(time.RFC3339),
	}
	wrapped := map[string]interface{}{"games": []interface{}{payload}}
	b, _ := json.Marshal(wrapped)
	return string(b)
}

func TestFetch_ParsesMoneylineObservation(t *testing.T) {
	gameStart := time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)
	collectedAt := gameStart.Add(-2 * time.Hour)
	doer := stubDoer{status: http.StatusOK, body: gameJSON(collectedAt, gameStart)}

	c := NewClient("https://example.test", "", doer, zerolog.Nop())
	obs, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, "action_network", obs[0].Source)
	require.Equal(t, "DraftKings", obs[0].Book)
	require.Equal(t, model.MarketMoneyline, obs[0].Market)
	require.Equal(t, "NYY@BOS", obs[0].GameExternalID)
	require.NotNil(t, obs[0].MoneyPct)
	require.Equal(t, 62.0, *obs[0].MoneyPct)
}

func TestFetch_DropsObservationsAtOrAfterGameStart(t *testing.T) {
	gameStart := time.Date(2025, 7, 1, 23, 0, 0, 0, time.UTC)
	doer := stubDoer{status: http.StatusOK, body: gameJSON(gameStart, gameStart)}

	c := NewClient("https://example.test", "", doer, zerolog.Nop())
	_, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.ErrorIs(t, err, model.ErrSourceEmpty)
}

func TestFetch_RateLimitedStatusMapsToSentinel(t *testing.T) {
	doer := stubDoer{status: http.StatusTooManyRequests, body: ""}
	c := NewClient("https://example.test", "", doer, zerolog.Nop())
	_, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.ErrorIs(t, err, model.ErrSourceRateLimited)

	_, failures := c.health.Snapshot()
	require.Equal(t, 1, failures)
}

func TestFetch_UnparseableBodyMapsToParseError(t *testing.T) {
	doer := stubDoer{status: http.StatusOK, body: "not json"}
	c := NewClient("https://example.test", "", doer, zerolog.Nop())
	_, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.ErrorIs(t, err, model.ErrSourceParseError)
}

func TestFetch_EmptyGamesListMapsToSourceEmptyAndRecordsSuccess(t *testing.T) {
	doer := stubDoer{status: http.StatusOK, body: `{"games": []}`}
	c := NewClient("https://example.test", "", doer, zerolog.Nop())
	_, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.ErrorIs(t, err, model.ErrSourceEmpty)

	lastSuccess, failures := c.health.Snapshot()
	require.Equal(t, 0, failures)
	require.False(t, lastSuccess.IsZero())
}
