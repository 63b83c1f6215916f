// Package sbr implements the SportsBookReview source adapter, an
// HTML-table "consensus" provider similar in shape to SBD but with its own
// page structure and a single combined table rather than per-market
// sections.
package sbr

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/adapters"
	"github.com/aristath/sharpline/internal/model"
)

const source = "sbr"

// Client scrapes MLB consensus splits from SportsBookReview's public page.
type Client struct {
	endpoint string
	http     adapters.HTTPDoer
	log      zerolog.Logger
	health   adapters.HealthTracker
	seq      adapters.SequenceCounter
}

// NewClient constructs an SBR adapter. No API key required.
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

// marketFromSuffix maps SBR's per-market URL path suffixes to model.Market;
// SBR renders a single table per page load, selected by that suffix, so
// each market is fetched separately.
var marketFromSuffix = map[string]model.Market{
	"money-line": model.MarketMoneyline,
	"pointspread": model.MarketSpread,
	"totals":      model.MarketTotal,
}

// Fetch retrieves and parses SBR's consensus table for every market this
// adapter understands, issuing one request per market since SBR's page
// only renders one market at a time.
func (c *Client) Fetch(ctx context.Context, window adapters.FetchWindow) ([]model.Observation, error) {
	var out []model.Observation
	var lastErr error
	now := time.Now()

	for suffix, market := range marketFromSuffix {
		obs, err := c.fetchMarket(ctx, suffix, market, now)
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, obs...)
	}

	if len(out) == 0 {
		if lastErr != nil {
			c.health.RecordFailure()
			return nil, lastErr
		}
		return nil, model.ErrSourceEmpty
	}

	c.health.RecordSuccess(now)
	return out, nil
}

func (c *Client) fetchMarket(ctx context.Context, suffix string, market model.Market, now time.Time) ([]model.Observation, error) {
	url := fmt.Sprintf("%s/%s/", c.endpoint, suffix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", model.ErrSourceUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, model.ErrSourceRateLimited
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", model.ErrSourceUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", model.ErrSourceParseError, err)
	}

	table := doc.Find("table.consensus-table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: consensus table not found for %s", model.ErrSourceParseError, suffix)
	}

	var out []model.Observation
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}
		matchup := strings.TrimSpace(cells.Eq(0).Text())
		book := strings.TrimSpace(cells.Eq(1).Text())
		lineVal := strings.TrimSpace(cells.Eq(2).Text())
		betPct := parseConsensusPct(cells.Eq(3).Text())
		moneyPct := parseConsensusPct(cells.Eq(4).Text())
		if book == "" {
			book = "UNKNOWN"
		}

		out = append(out, model.Observation{
			Source:            source,
			Book:              book,
			GameExternalID:    matchup,
			Market:            market,
			CollectedAt:       now,
			Endpoint:          c.endpoint,
			SplitValue:        lineVal,
			MoneyPct:          adapters.ParsePercent(moneyPct.value, moneyPct.present),
			BetPct:            adapters.ParsePercent(betPct.value, betPct.present),
			RawPayload:        []byte(strings.TrimSpace(row.Text())),
			IngestionSequence: c.seq.Next(),
		})
	})

	return out, nil
}

type consensusPct struct {
	value   float64
	present bool
}

func parseConsensusPct(raw string) consensusPct {
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))
	if raw == "" || raw == "-" {
		return consensusPct{}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return consensusPct{}
	}
	return consensusPct{value: v, present: true}
}

// Health reports this adapter's current condition.
func (c *Client) Health() adapters.Health {
	lastSuccess, failures := c.health.Snapshot()
	return adapters.Health{LastSuccessAt: lastSuccess, ConsecutiveFailures: failures}
}

// Identity describes this adapter's static capabilities.
func (c *Client) Identity() adapters.Identity {
	return adapters.Identity{
		Source:           adapters.SBR,
		BooksSupported:   []string{"Pinnacle", "BookMaker", "DraftKings", "FanDuel"},
		MarketsSupported: []model.Market{model.MarketMoneyline, model.MarketSpread, model.MarketTotal},
		CadenceSeconds:   900,
	}
}
