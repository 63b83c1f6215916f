package arbiter

import (
	"encoding/json"

	"github.com/aristath/sharpline/internal/model"
)

type moneylineOdds struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// passesJuiceFilter rejects moneyline picks on favorites priced worse than
// floor (e.g. -160). It is centralized here, once, instead of duplicated
// per detector, since every moneyline detector needs the same check.
// Non-moneyline markets and signals without a parsable moneyline snapshot
// always pass — the juice filter only constrains moneyline favorites.
func passesJuiceFilter(s model.CandidateSignal, floor int) (bool, int) {
	if s.Market != model.MarketMoneyline {
		return true, 0
	}
	if len(s.TriggeringPoints) == 0 {
		return true, 0
	}
	var odds moneylineOdds
	if err := json.Unmarshal([]byte(s.TriggeringPoints[0].SplitValue), &odds); err != nil {
		return true, 0
	}

	var sideOdds int
	switch s.Side {
	case model.SideHome:
		sideOdds = odds.Home
	case model.SideAway:
		sideOdds = odds.Away
	default:
		return true, 0
	}

	// Only favorites (negative American odds) can be "worse than -160";
	// any positive-odds underdog always passes.
	if sideOdds >= 0 {
		return true, sideOdds
	}
	return sideOdds >= floor, sideOdds
}
