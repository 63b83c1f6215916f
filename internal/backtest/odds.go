package backtest

import (
	"encoding/json"

	"github.com/aristath/sharpline/internal/model"
)

type moneylineOdds struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// actualOdds extracts the American odds for side from a moneyline
// CuratedPoint's split_value JSON, used to price ROI against the actual
// quoted line rather than a flat -110.
func actualOdds(side model.Side, rawSplitValue string) (int, bool) {
	var odds moneylineOdds
	if err := json.Unmarshal([]byte(rawSplitValue), &odds); err != nil {
		return 0, false
	}
	switch side {
	case model.SideHome:
		return odds.Home, true
	case model.SideAway:
		return odds.Away, true
	default:
		return 0, false
	}
}
