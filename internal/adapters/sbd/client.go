// Package sbd implements the SportsBettingDime source adapter, an
// HTML-table provider covering moneyline, spread and total consensus
// splits across a wider book panel than VSIN.
package sbd

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

const source = "sbd"

// Client scrapes MLB consensus splits from SportsBettingDime's public page.
type Client struct {
	endpoint string
	http     adapters.HTTPDoer
	log      zerolog.Logger
	health   adapters.HealthTracker
	seq      adapters.SequenceCounter
}

// NewClient constructs an SBD adapter. No API key required.
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

// marketSections maps SBD's per-market table ids to model.Market, since
// SBD renders one table per market on the same page rather than one
// combined table.
var marketSections = map[string]model.Market{
	"consensus-moneyline": model.MarketMoneyline,
	"consensus-spread":    model.MarketSpread,
	"consensus-total":     model.MarketTotal,
}

// Fetch retrieves and parses SBD's consensus tables for all three markets.
func (c *Client) Fetch(ctx context.Context, window adapters.FetchWindow) ([]model.Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", model.ErrSourceUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: %v", model.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.health.RecordFailure()
		return nil, model.ErrSourceRateLimited
	}
	if resp.StatusCode >= 400 {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: status %d", model.ErrSourceUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: parse html: %v", model.ErrSourceParseError, err)
	}

	now := time.Now()
	var out []model.Observation
	found := false
	for tableID, market := range marketSections {
		table := doc.Find("#" + tableID)
		if table.Length() == 0 {
			continue
		}
		found = true
		table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 5 {
				return
			}
			matchup := strings.TrimSpace(cells.Eq(0).Text())
			book := strings.TrimSpace(cells.Eq(1).Text())
			lineVal := strings.TrimSpace(cells.Eq(2).Text())
			moneyPct := parsePct(cells.Eq(3).Text())
			betPct := parsePct(cells.Eq(4).Text())
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
	}

	if !found {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: no recognized consensus tables", model.ErrSourceParseError)
	}

	c.health.RecordSuccess(now)
	if len(out) == 0 {
		return nil, model.ErrSourceEmpty
	}
	return out, nil
}

type pctValue struct {
	value   float64
	present bool
}

func parsePct(raw string) pctValue {
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))
	if raw == "" || raw == "-" || raw == "N/A" {
		return pctValue{}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return pctValue{}
	}
	return pctValue{value: v, present: true}
}

// Health reports this adapter's current condition.
func (c *Client) Health() adapters.Health {
	lastSuccess, failures := c.health.Snapshot()
	return adapters.Health{LastSuccessAt: lastSuccess, ConsecutiveFailures: failures}
}

// Identity describes this adapter's static capabilities.
func (c *Client) Identity() adapters.Identity {
	return adapters.Identity{
		Source:           adapters.SBD,
		BooksSupported:   []string{"DraftKings", "FanDuel", "BetMGM", "Caesars", "BetRivers", "Barstool"},
		MarketsSupported: []model.Market{model.MarketMoneyline, model.MarketSpread, model.MarketTotal},
		CadenceSeconds:   900,
	}
}
