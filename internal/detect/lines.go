package detect

import (
	"encoding/json"
	"strconv"

	"github.com/aristath/sharpline/internal/model"
)

type moneylineOdds struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

func parseMoneylineSplit(raw string) (moneylineOdds, bool) {
	var o moneylineOdds
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return moneylineOdds{}, false
	}
	return o, true
}

func parseDecimalSplit(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// lineMove returns the signed change in the home side's price (moneyline,
// cents) or line (spread/total, points) between two CuratedPoints of the
// same (game, source, book, market) partition.
func lineMove(market model.Market, opening, closing model.CuratedPoint) (float64, bool) {
	if market == model.MarketMoneyline {
		o, ok1 := parseMoneylineSplit(opening.SplitValue)
		c, ok2 := parseMoneylineSplit(closing.SplitValue)
		if !ok1 || !ok2 {
			return 0, false
		}
		return float64(c.Home - o.Home), true
	}
	o, ok1 := parseDecimalSplit(opening.SplitValue)
	c, ok2 := parseDecimalSplit(closing.SplitValue)
	if !ok1 || !ok2 {
		return 0, false
	}
	return c - o, true
}

func sideForDiff(market model.Market, diff float64) model.Side {
	positive := diff >= 0
	if market == model.MarketTotal {
		if positive {
			return model.SideOver
		}
		return model.SideUnder
	}
	if positive {
		return model.SideHome
	}
	return model.SideAway
}

func oppositeSide(s model.Side) model.Side {
	switch s {
	case model.SideHome:
		return model.SideAway
	case model.SideAway:
		return model.SideHome
	case model.SideOver:
		return model.SideUnder
	case model.SideUnder:
		return model.SideOver
	}
	return s
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func representativePoint(pts []model.CuratedPoint) (model.CuratedPoint, bool) {
	if len(pts) == 0 {
		return model.CuratedPoint{}, false
	}
	rep := pts[0]
	for _, p := range pts[1:] {
		if p.BookCredibility > rep.BookCredibility {
			rep = p
		}
	}
	return rep, true
}

func valueOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
