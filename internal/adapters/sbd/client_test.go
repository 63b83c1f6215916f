package sbd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

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

func TestParsePct_HandlesMissingValues(t *testing.T) {
	require.Equal(t, pctValue{}, parsePct(""))
	require.Equal(t, pctValue{}, parsePct("-"))
	require.Equal(t, pctValue{}, parsePct("N/A"))
	require.Equal(t, pctValue{value: 62.5, present: true}, parsePct("62.5%"))
	require.Equal(t, pctValue{value: 40, present: true}, parsePct(" 40 "))
}

const sampleHTML = `
<html><body>
<table id="consensus-moneyline"><tbody>
<tr><td>NYY @ BOS</td><td>DraftKings</td><td>-150</td><td>62%</td><td>40%</td></tr>
</tbody></table>
</body></html>
`

func TestFetch_ParsesConsensusMoneylineTable(t *testing.T) {
	doer := stubDoer{status: http.StatusOK, body: sampleHTML}
	c := NewClient("https://example.test", doer, zerolog.Nop())

	obs, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	require.Equal(t, "sbd", obs[0].Source)
	require.Equal(t, "DraftKings", obs[0].Book)
	require.Equal(t, model.MarketMoneyline, obs[0].Market)
	require.Equal(t, "NYY @ BOS", obs[0].GameExternalID)
	require.Equal(t, "-150", obs[0].SplitValue)
	require.NotNil(t, obs[0].MoneyPct)
	require.Equal(t, 62.0, *obs[0].MoneyPct)
}

func TestFetch_NoRecognizedTablesIsParseError(t *testing.T) {
	doer := stubDoer{status: http.StatusOK, body: "<html><body>nothing here</body></html>"}
	c := NewClient("https://example.test", doer, zerolog.Nop())

	_, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.ErrorIs(t, err, model.ErrSourceParseError)
}

func TestFetch_RateLimitedMapsToSentinel(t *testing.T) {
	doer := stubDoer{status: http.StatusTooManyRequests}
	c := NewClient("https://example.test", doer, zerolog.Nop())

	_, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.ErrorIs(t, err, model.ErrSourceRateLimited)
}
