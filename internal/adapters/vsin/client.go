// Package vsin implements the VSIN source adapter. VSIN publishes its
// "Betting Splits" page as an HTML table rather than a JSON API, so this
// adapter scrapes and parses columns by header name using goquery.
package vsin

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

const source = "vsin"

// columnLayout documents the VSIN MLB splits table layout this adapter
// understands: Matchup | Book | Line | Handle % | Bets %. Column order is
// matched by header text, not position, so a reordering on the page is
// followed; a page missing the Matchup, Handle or Bets header is a parse
// error rather than a silent mis-mapping of fields.
type columnLayout struct {
	matchup, book, line, handlePct, betsPct int
}

// Client scrapes MLB betting splits from VSIN's public page.
type Client struct {
	endpoint string
	http     adapters.HTTPDoer
	log      zerolog.Logger
	health   adapters.HealthTracker
	seq      adapters.SequenceCounter
}

// NewClient constructs a VSIN adapter. VSIN requires no API key.
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

// Fetch retrieves and parses the current MLB splits table. VSIN's page does
// not expose a collected_at per row, so the whole page is stamped with the
// fetch time; game_start filtering happens downstream once the game is
// matched in Staging, since this adapter has no reliable start time either.
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

	table := doc.Find("table.betting-splits").First()
	if table.Length() == 0 {
		c.health.RecordFailure()
		return nil, fmt.Errorf("%w: splits table not found", model.ErrSourceParseError)
	}

	layout, err := resolveLayout(table)
	if err != nil {
		c.health.RecordFailure()
		return nil, err
	}

	now := time.Now()
	var out []model.Observation
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= layout.betsPct {
			return
		}
		matchup := strings.TrimSpace(cells.Eq(layout.matchup).Text())
		book := strings.TrimSpace(cells.Eq(layout.book).Text())
		line := strings.TrimSpace(cells.Eq(layout.line).Text())
		if book == "" {
			book = "UNKNOWN"
		}

		handlePct := parsePctCell(cells.Eq(layout.handlePct).Text())
		betsPct := parsePctCell(cells.Eq(layout.betsPct).Text())

		out = append(out, model.Observation{
			Source:            source,
			Book:              book,
			GameExternalID:    matchup,
			Market:            model.MarketMoneyline,
			CollectedAt:       now,
			Endpoint:          c.endpoint,
			SplitValue:        line,
			MoneyPct:          adapters.ParsePercent(handlePct.value, handlePct.present),
			BetPct:            adapters.ParsePercent(betsPct.value, betsPct.present),
			RawPayload:        []byte(strings.TrimSpace(row.Text())),
			IngestionSequence: c.seq.Next(),
		})
	})

	c.health.RecordSuccess(now)
	if len(out) == 0 {
		return nil, model.ErrSourceEmpty
	}
	return out, nil
}

func resolveLayout(table *goquery.Selection) (columnLayout, error) {
	layout := columnLayout{-1, -1, -1, -1, -1}
	table.Find("thead th").Each(func(i int, th *goquery.Selection) {
		switch strings.ToLower(strings.TrimSpace(th.Text())) {
		case "matchup", "game":
			layout.matchup = i
		case "book", "sportsbook":
			layout.book = i
		case "line", "odds":
			layout.line = i
		case "handle %", "handle%", "money %":
			layout.handlePct = i
		case "bets %", "bets%", "tickets %":
			layout.betsPct = i
		}
	})
	if layout.matchup < 0 || layout.handlePct < 0 || layout.betsPct < 0 {
		return layout, fmt.Errorf("%w: unrecognized column layout", model.ErrSourceParseError)
	}
	return layout, nil
}

type pctCell struct {
	value   float64
	present bool
}

func parsePctCell(raw string) pctCell {
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))
	if raw == "" || raw == "-" {
		return pctCell{}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return pctCell{}
	}
	return pctCell{value: v, present: true}
}

// Health reports this adapter's current condition.
func (c *Client) Health() adapters.Health {
	lastSuccess, failures := c.health.Snapshot()
	return adapters.Health{LastSuccessAt: lastSuccess, ConsecutiveFailures: failures}
}

// Identity describes this adapter's static capabilities.
func (c *Client) Identity() adapters.Identity {
	return adapters.Identity{
		Source:           adapters.VSIN,
		BooksSupported:   []string{"Circa", "DraftKings", "Westgate"},
		MarketsSupported: []model.Market{model.MarketMoneyline},
		CadenceSeconds:   900,
	}
}
