// Package actionnetwork implements the Action Network source adapter.
// Action Network exposes a JSON endpoint keyed by API key, one of the
// two authenticated providers this system polls (the other is Odds API).
package actionnetwork

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

const source = "action_network"

// Client fetches MLB betting-split data from Action Network's web API.
type Client struct {
	endpoint string
	apiKey   string
	http     adapters.HTTPDoer
	log      zerolog.Logger
	health   adapters.HealthTracker
	seq      adapters.SequenceCounter
}

// NewClient constructs an Action Network adapter.
func NewClient(endpoint, apiKey string, httpClient adapters.HTTPDoer, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     httpClient,
		log:      log.With().Str("source", source).Logger(),
	}
}

// wireGame is the shape of one game entry in Action Network's response.
// Only the fields this system needs are modeled; the rest of the payload
// is preserved verbatim in RawPayload for audit.
type wireGame struct {
	GameID    string    `json:"game_id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	GameStart time.Time `json:"start_time"`
	Book      string    `json:"book"`
	Markets   struct {
		Moneyline *wireSplit `json:"moneyline"`
		Spread    *wireSplit `json:"spread"`
		Total     *wireSplit `json:"total"`
	} `json:"markets"`
	CollectedAt time.Time `json:"collected_at"`
}

type wireSplit struct {
	HomeMoneyPct *float64 `json:"home_money_pct"`
	HomeBetPct   *float64 `json:"home_bet_pct"`
	HomeOdds     *int     `json:"home_odds"`
	AwayOdds     *int     `json:"away_odds"`
	Value        *float64 `json:"value"` // spread/total line
}

type wireResponse struct {
	Games []wireGame `json:"games"`
}

// Fetch retrieves all MLB games with splits collected within window.
func (c *Client) Fetch(ctx context.Context, window adapters.FetchWindow) ([]model.Observation, error) {
	url := fmt.Sprintf("%s/mlb/splits?since=%s&until=%s", c.endpoint,
		window.Since.UTC().Format(time.RFC3339), window.Until.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", model.ErrSourceUnavailable, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		c.health.RecordFailure()
		return nil, model.ErrSourceRateLimited
	default:
		if resp.StatusCode >= 500 {
			c.health.RecordFailure()
			return nil, fmt.Errorf("%w: status %d", model.ErrSourceUnavailable, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			c.health.RecordFailure()
			return nil, fmt.Errorf("%w: status %d", model.ErrSourceParseError, resp.StatusCode)
		}
	}

	var parsed wireResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: %v", model.ErrSourceParseError, err)
	}

	if len(parsed.Games) == 0 {
		c.health.RecordSuccess(time.Now())
		return nil, model.ErrSourceEmpty
	}

	var out []model.Observation
	for _, g := range parsed.Games {
		book := g.Book
		if book == "" {
			book = "UNKNOWN"
		}
		if adapters.DropPreGameOnly(g.CollectedAt, g.GameStart) {
			continue
		}
		raw, _ := json.Marshal(g)

		if g.Markets.Moneyline != nil {
			out = append(out, c.toObservation(g, book, model.MarketMoneyline, g.Markets.Moneyline, raw))
		}
		if g.Markets.Spread != nil {
			out = append(out, c.toObservation(g, book, model.MarketSpread, g.Markets.Spread, raw))
		}
		if g.Markets.Total != nil {
			out = append(out, c.toObservation(g, book, model.MarketTotal, g.Markets.Total, raw))
		}
	}

	c.health.RecordSuccess(time.Now())
	if len(out) == 0 {
		return nil, model.ErrSourceEmpty
	}
	return out, nil
}

func (c *Client) toObservation(g wireGame, book string, market model.Market, split *wireSplit, raw []byte) model.Observation {
	var moneyPct, betPct *float64
	if split.HomeMoneyPct != nil {
		moneyPct = adapters.ParsePercent(*split.HomeMoneyPct, true)
	}
	if split.HomeBetPct != nil {
		betPct = adapters.ParsePercent(*split.HomeBetPct, true)
	}

	splitValue := ""
	switch market {
	case model.MarketMoneyline:
		if split.HomeOdds != nil && split.AwayOdds != nil {
			b, _ := json.Marshal(map[string]int{"home": *split.HomeOdds, "away": *split.AwayOdds})
			splitValue = string(b)
		}
	default:
		if split.Value != nil {
			splitValue = fmt.Sprintf("%g", *split.Value)
		}
	}

	return model.Observation{
		Source:            source,
		Book:              book,
		GameExternalID:    g.AwayTeam + "@" + g.HomeTeam,
		Market:            market,
		CollectedAt:       g.CollectedAt,
		Endpoint:          c.endpoint,
		SplitValue:        splitValue,
		MoneyPct:          moneyPct,
		BetPct:            betPct,
		RawPayload:        raw,
		IngestionSequence: c.seq.Next(),
	}
}

// Health reports this adapter's current condition.
func (c *Client) Health() adapters.Health {
	lastSuccess, failures := c.health.Snapshot()
	return adapters.Health{LastSuccessAt: lastSuccess, ConsecutiveFailures: failures}
}

// Identity describes this adapter's static capabilities.
func (c *Client) Identity() adapters.Identity {
	return adapters.Identity{
		Source:           adapters.ActionNetwork,
		BooksSupported:   []string{"DraftKings", "FanDuel", "BetMGM", "Caesars", "PointsBet", "BetRivers"},
		MarketsSupported: []model.Market{model.MarketMoneyline, model.MarketSpread, model.MarketTotal},
		CadenceSeconds:   300,
	}
}
