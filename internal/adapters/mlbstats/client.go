// Package mlbstats implements the MLB Stats API source adapter, the
// authoritative feed for schedules and final scores rather than betting
// splits. Its observations carry no MoneyPct/BetPct — they exist only to
// seed game identity and, once final, the Game Outcome Resolver.
package mlbstats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/adapters"
	"github.com/aristath/sharpline/internal/model"
)

const source = "mlb_stats"

// Client fetches schedule and linescore data from the public MLB Stats API.
type Client struct {
	endpoint string
	http     adapters.HTTPDoer
	log      zerolog.Logger
	health   adapters.HealthTracker
	seq      adapters.SequenceCounter
}

// NewClient constructs an MLB Stats API adapter. No API key is required.
func NewClient(endpoint string, httpClient adapters.HTTPDoer, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: endpoint,
		http:     httpClient,
		log:      log.With().Str("source", source).Logger(),
	}
}

type scheduleResponse struct {
	Dates []struct {
		Games []wireGame `json:"games"`
	} `json:"dates"`
}

type wireGame struct {
	GamePk   int64     `json:"gamePk"`
	GameDate time.Time `json:"gameDate"`
	Status   struct {
		AbstractGameState string `json:"abstractGameState"`
	} `json:"status"`
	Teams struct {
		Home wireTeam `json:"home"`
		Away wireTeam `json:"away"`
	} `json:"teams"`
	Venue struct {
		Name string `json:"name"`
	} `json:"venue"`
}

type wireTeam struct {
	Score *int `json:"score"`
	Team  struct {
		Name string `json:"name"`
	} `json:"team"`
}

// Fetch retrieves the MLB schedule for the date range implied by window and
// emits one Observation per game carrying schedule/score state. Unlike the
// odds providers, there is no pre-game filter here: final scores are only
// meaningful once the game has ended.
func (c *Client) Fetch(ctx context.Context, window adapters.FetchWindow) ([]model.Observation, error) {
	url := fmt.Sprintf("%s/api/v1/schedule?sportId=1&startDate=%s&endDate=%s&hydrate=linescore",
		c.endpoint, window.Since.Format("2006-01-02"), window.Until.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", model.ErrSourceUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: read body: %v", model.ErrSourceUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.health.RecordFailure()
		return nil, model.ErrSourceRateLimited
	}
	if resp.StatusCode >= 400 {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: status %d", model.ErrSourceUnavailable, resp.StatusCode)
	}

	var parsed scheduleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: %v", model.ErrSourceParseError, err)
	}

	var out []model.Observation
	now := time.Now()
	for _, d := range parsed.Dates {
		for _, g := range d.Games {
			raw, _ := json.Marshal(g)
			splitValue, _ := json.Marshal(map[string]interface{}{
				"status":    g.Status.AbstractGameState,
				"home":      g.Teams.Home.Team.Name,
				"away":      g.Teams.Away.Team.Name,
				"home_score": g.Teams.Home.Score,
				"away_score": g.Teams.Away.Score,
				"venue":     g.Venue.Name,
			})
			out = append(out, model.Observation{
				Source:            source,
				Book:              "UNKNOWN",
				GameExternalID:    g.Teams.Away.Team.Name + "@" + g.Teams.Home.Team.Name,
				Market:            model.MarketMoneyline,
				CollectedAt:       now,
				Endpoint:          c.endpoint,
				SplitValue:        string(splitValue),
				RawPayload:        raw,
				IngestionSequence: c.seq.Next(),
			})
		}
	}

	c.health.RecordSuccess(now)
	if len(out) == 0 {
		return nil, model.ErrSourceEmpty
	}
	return out, nil
}

// Health reports this adapter's current condition.
func (c *Client) Health() adapters.Health {
	lastSuccess, failures := c.health.Snapshot()
	return adapters.Health{LastSuccessAt: lastSuccess, ConsecutiveFailures: failures}
}

// Identity describes this adapter's static capabilities.
func (c *Client) Identity() adapters.Identity {
	return adapters.Identity{
		Source:           adapters.MLBStats,
		BooksSupported:   []string{"UNKNOWN"},
		MarketsSupported: []model.Market{model.MarketMoneyline},
		CadenceSeconds:   600,
	}
}
