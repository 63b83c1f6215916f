package vsin

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/adapters"
	"github.com/aristath/sharpline/internal/model"
)

type stubDoer struct {
	status int
	body   string
}

func (s stubDoer) Do(req *http.Request) (*http.Response, error) {
	return &http.Response{StatusCode: s.status, Body: io.NopCloser(bytes.NewBufferString(s.body))}, nil
}

func TestParsePctCell_HandlesMissingValues(t *testing.T) {
	require.Equal(t, pctCell{}, parsePctCell(""))
	require.Equal(t, pctCell{}, parsePctCell("-"))
	require.Equal(t, pctCell{value: 71, present: true}, parsePctCell("71%"))
}

func TestResolveLayout_MatchesHeadersByNameNotPosition(t *testing.T) {
	html := `<table><thead><tr><th>Book</th><th>Matchup</th><th>Line</th><th>Handle %</th><th>Bets %</th></tr></thead></table>`
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(html))
	require.NoError(t, err)

	layout, err := resolveLayout(doc.Find("table"))
	require.NoError(t, err)
	require.Equal(t, 1, layout.matchup)
	require.Equal(t, 0, layout.book)
	require.Equal(t, 3, layout.handlePct)
	require.Equal(t, 4, layout.betsPct)
}

func TestResolveLayout_UnrecognizedHeadersFail(t *testing.T) {
	html := `<table><thead><tr><th>Foo</th><th>Bar</th></tr></thead></table>`
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(html))
	require.NoError(t, err)

	_, err = resolveLayout(doc.Find("table"))
	require.ErrorIs(t, err, model.ErrSourceParseError)
}

const sampleSplitsHTML = `
<html><body>
<table class="betting-splits">
<thead><tr><th>Matchup</th><th>Book</th><th>Line</th><th>Handle %</th><th>Bets %</th></tr></thead>
<tbody><tr><td>NYY @ BOS</td><td>Circa</td><td>-150</td><td>68%</td><td>45%</td></tr></tbody>
</table>
</body></html>
`

func TestFetch_ParsesSplitsTableIntoMoneylineObservations(t *testing.T) {
	doer := stubDoer{status: http.StatusOK, body: sampleSplitsHTML}
	c := NewClient("https://example.test", doer, zerolog.Nop())

	obs, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, "vsin", obs[0].Source)
	require.Equal(t, "Circa", obs[0].Book)
	require.Equal(t, model.MarketMoneyline, obs[0].Market)
	require.NotNil(t, obs[0].MoneyPct)
	require.Equal(t, 68.0, *obs[0].MoneyPct)
}

func TestFetch_MissingTableIsParseError(t *testing.T) {
	doer := stubDoer{status: http.StatusOK, body: "<html><body>nothing</body></html>"}
	c := NewClient("https://example.test", doer, zerolog.Nop())

	_, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.ErrorIs(t, err, model.ErrSourceParseError)
}
