// Package oddsapi implements the Odds API source adapter: a multi-book
// aggregator keyed by API key, covering moneyline, spread and total prices
// across a wider book panel than Action Network.
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/adapters"
	"github.com/aristath/sharpline/internal/model"
)

const source = "odds_api"

// Client fetches multi-book MLB prices from The Odds API.
type Client struct {
	endpoint string
	apiKey   string
	http     adapters.HTTPDoer
	log      zerolog.Logger
	health   adapters.HealthTracker
	seq      adapters.SequenceCounter
}

// NewClient constructs an Odds API adapter.
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

type wireOutcome struct {
	Name  string   `json:"name"`
	Price int      `json:"price"`
	Point *float64 `json:"point"`
}

type wireEvent struct {
	ID           string    `json:"id"`
	CommenceTime time.Time `json:"commence_time"`
	HomeTeam     string    `json:"home_team"`
	AwayTeam     string    `json:"away_team"`
	Bookmakers   []struct {
		Key        string    `json:"key"`
		LastUpdate time.Time `json:"last_update"`
		Markets    []struct {
			Key      string        `json:"key"` // "h2h", "spreads", "totals"
			Outcomes []wireOutcome `json:"outcomes"`
		} `json:"markets"`
	} `json:"bookmakers"`
}

var marketKeyToModel = map[string]model.Market{
	"h2h":     model.MarketMoneyline,
	"spreads": model.MarketSpread,
	"totals":  model.MarketTotal,
}

// formatSplitValue renders one market's outcomes into the split_value
// convention Staging expects: moneyline as JSON
// {"home":cents,"away":cents}, spread/total as a plain decimal string (the
// home side's point for spreads, the Over side's point for totals).
func formatSplitValue(market model.Market, homeTeam, awayTeam string, outcomes []wireOutcome) (string, bool) {
	switch market {
	case model.MarketMoneyline:
		var home, away int
		var haveHome, haveAway bool
		for _, o := range outcomes {
			switch o.Name {
			case homeTeam:
				home, haveHome = o.Price, true
			case awayTeam:
				away, haveAway = o.Price, true
			}
		}
		if !haveHome || !haveAway {
			return "", false
		}
		b, err := json.Marshal(struct {
			Home int `json:"home"`
			Away int `json:"away"`
		}{home, away})
		if err != nil {
			return "", false
		}
		return string(b), true
	case model.MarketSpread:
		for _, o := range outcomes {
			if o.Name == homeTeam && o.Point != nil {
				return strconv.FormatFloat(*o.Point, 'f', -1, 64), true
			}
		}
		return "", false
	case model.MarketTotal:
		for _, o := range outcomes {
			if o.Name == "Over" && o.Point != nil {
				return strconv.FormatFloat(*o.Point, 'f', -1, 64), true
			}
		}
		return "", false
	default:
		return "", false
	}
}

// Fetch retrieves current odds for all MLB events, one Observation per
// (event, bookmaker, market) triple.
func (c *Client) Fetch(ctx context.Context, window adapters.FetchWindow) ([]model.Observation, error) {
	url := fmt.Sprintf("%s/v4/sports/baseball_mlb/odds?apiKey=%s&regions=us&markets=h2h,spreads,totals",
		c.endpoint, c.apiKey)

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

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired {
		c.health.RecordFailure()
		return nil, model.ErrSourceRateLimited
	}
	if resp.StatusCode >= 400 {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: status %d", model.ErrSourceUnavailable, resp.StatusCode)
	}

	var events []wireEvent
	if err := json.Unmarshal(body, &events); err != nil {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: %v", model.ErrSourceParseError, err)
	}

	var out []model.Observation
	for _, ev := range events {
		for _, bm := range ev.Bookmakers {
			if adapters.DropPreGameOnly(bm.LastUpdate, ev.CommenceTime) {
				continue
			}
			raw, _ := json.Marshal(bm)
			for _, mk := range bm.Markets {
				market, ok := marketKeyToModel[mk.Key]
				if !ok {
					continue
				}
				splitValue, ok := formatSplitValue(market, ev.HomeTeam, ev.AwayTeam, mk.Outcomes)
				if !ok {
					continue
				}
				out = append(out, model.Observation{
					Source:            source,
					Book:              bm.Key,
					GameExternalID:    ev.AwayTeam + "@" + ev.HomeTeam,
					Market:            market,
					CollectedAt:       bm.LastUpdate,
					Endpoint:          c.endpoint,
					SplitValue:        splitValue,
					RawPayload:        raw,
					IngestionSequence: c.seq.Next(),
				})
			}
		}
	}

	c.health.RecordSuccess(time.Now())
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
		Source:           adapters.OddsAPI,
		BooksSupported:   []string{"draftkings", "fanduel", "betmgm", "caesars", "pointsbet", "betrivers", "wynnbet"},
		MarketsSupported: []model.Market{model.MarketMoneyline, model.MarketSpread, model.MarketTotal},
		CadenceSeconds:   300,
	}
}
