package staging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/model"
)

func TestCanonicalTeam_MatchesAcrossSpellings(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Yankees", "NYY"},
		{"new york yankees", "NYY"},
		{"NYY", "NYY"},
		{"  Red Sox  ", "BOS"},
		{"st. louis cardinals", "STL"},
	}
	for _, c := range cases {
		got, ok := CanonicalTeam(c.raw)
		require.True(t, ok, c.raw)
		require.Equal(t, c.want, got, c.raw)
	}
}

func TestCanonicalTeam_UnknownReturnsFalse(t *testing.T) {
	_, ok := CanonicalTeam("Montreal Expos")
	require.False(t, ok)
}

func TestMarketSizeFor_DefaultsToMedium(t *testing.T) {
	require.Equal(t, model.MarketSizeLarge, MarketSizeFor("NYY"))
	require.Equal(t, model.MarketSizeSmall, MarketSizeFor("TB"))
	require.Equal(t, model.MarketSizeMedium, MarketSizeFor("CLE"))
}
