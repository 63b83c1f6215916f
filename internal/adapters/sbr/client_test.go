package sbr

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

func TestParseConsensusPct_HandlesMissingValues(t *testing.T) {
	require.Equal(t, consensusPct{}, parseConsensusPct(""))
	require.Equal(t, consensusPct{}, parseConsensusPct("-"))
	require.Equal(t, consensusPct{value: 55, present: true}, parseConsensusPct("55%"))
}

const sampleTable = `
<html><body>
<table class="consensus-table"><tbody>
<tr><td>NYY @ BOS</td><td>Pinnacle</td><td>-150</td><td>38%</td><td>60%</td></tr>
</tbody></table>
</body></html>
`

func TestFetch_IssuesOneRequestPerMarketAndAggregates(t *testing.T) {
	doer := stubDoer{status: http.StatusOK, body: sampleTable}
	c := NewClient("https://example.test", doer, zerolog.Nop())

	obs, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.NoError(t, err)
	require.Len(t, obs, 3, "one row fetched per of the three markets")

	markets := map[model.Market]bool{}
	for _, o := range obs {
		markets[o.Market] = true
		require.Equal(t, "Pinnacle", o.Book)
		require.Equal(t, "NYY @ BOS", o.GameExternalID)
	}
	require.True(t, markets[model.MarketMoneyline])
	require.True(t, markets[model.MarketSpread])
	require.True(t, markets[model.MarketTotal])
}

func TestFetch_AllMarketsFailingReturnsError(t *testing.T) {
	doer := stubDoer{status: http.StatusOK, body: "<html><body>no table</body></html>"}
	c := NewClient("https://example.test", doer, zerolog.Nop())

	_, err := c.Fetch(context.Background(), adapters.FetchWindow{})
	require.ErrorIs(t, err, model.ErrSourceParseError)
}
