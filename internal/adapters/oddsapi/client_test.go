package oddsapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/model"
)

func TestFormatSplitValue_Moneyline(t *testing.T) {
	outcomes := []wireOutcome{{Name: "Boston Red Sox", Price: -150}, {Name: "New York Yankees", Price: 130}}
	v, ok := formatSplitValue(model.MarketMoneyline, "Boston Red Sox", "New York Yankees", outcomes)
	require.True(t, ok)
	require.JSONEq(t, `{"home":-150,"away":130}`, v)
}

func TestFormatSplitValue_MoneylineMissingSideFails(t *testing.T) {
	outcomes := []wireOutcome{{Name: "Boston Red Sox", Price: -150}}
	_, ok := formatSplitValue(model.MarketMoneyline, "Boston Red Sox", "New York Yankees", outcomes)
	require.False(t, ok)
}

func TestFormatSplitValue_SpreadUsesHomePoint(t *testing.T) {
	point := -1.5
	outcomes := []wireOutcome{{Name: "Boston Red Sox", Price: -110, Point: &point}}
	v, ok := formatSplitValue(model.MarketSpread, "Boston Red Sox", "New York Yankees", outcomes)
	require.True(t, ok)
	require.Equal(t, "-1.5", v)
}

func TestFormatSplitValue_TotalUsesOverPoint(t *testing.T) {
	point := 8.5
	outcomes := []wireOutcome{{Name: "Over", Price: -110, Point: &point}, {Name: "Under", Price: -110, Point: &point}}
	v, ok := formatSplitValue(model.MarketTotal, "Boston Red Sox", "New York Yankees", outcomes)
	require.True(t, ok)
	require.Equal(t, "8.5", v)
}

func TestFormatSplitValue_UnknownMarketFails(t *testing.T) {
	_, ok := formatSplitValue(model.Market("unknown"), "Boston Red Sox", "New York Yankees", nil)
	require.False(t, ok)
}
