package detect

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/sharpline/internal/model"
)

// detectSharpAction implements STRONG/MODERATE/WEAK tiers:
// one variant per tier, each a differential-magnitude threshold on
// min_differential. min_volume cannot be enforced at this layer — CURATED
// carries percentages, not raw bet/money counts — so sample adequacy is
// deferred entirely to the backtest-derived SampleAdequacyFunc multiplier.
func detectSharpAction(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	threshold := variant.Thresholds["min_differential"]
	var out []model.CandidateSignal
	for key, p := range gctx.byPartition {
		if !variant.AppliesTo(key.Market) || p.MoneyMinusBet == nil {
			continue
		}
		diff := *p.MoneyMinusBet
		if math.Abs(diff) < threshold {
			continue
		}
		side := sideForDiff(key.Market, diff)
		out = append(out, e.buildSignal(gctx, p, variant, side, diff, nil))
	}
	return out, nil
}

// detectLineMovement compares each partition's opening and closing point.
// "follow" recommends the side the move favors; "fade" the opposite.
func detectLineMovement(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	fade := variant.Thresholds["fade"] != 0
	var out []model.CandidateSignal
	for key, closing := range gctx.byPartition {
		if !variant.AppliesTo(key.Market) {
			continue
		}
		opening, err := e.openingPoint(ctx, gctx.game.GameID, key.Source, key.Book, key.Market)
		if err != nil {
			return nil, fmt.Errorf("opening point for %s/%s/%s: %w", key.Source, key.Book, key.Market, err)
		}
		if opening == nil {
			continue
		}
		move, ok := lineMove(key.Market, *opening, closing)
		if !ok {
			continue
		}
		thresholdKey := "min_move_points"
		if key.Market == model.MarketMoneyline {
			thresholdKey = "min_move_ml_cents"
		}
		if math.Abs(move) < variant.Thresholds[thresholdKey] {
			continue
		}
		side := sideForDiff(key.Market, move)
		if fade {
			side = oppositeSide(side)
		}
		out = append(out, e.buildSignal(gctx, closing, variant, side, move, map[string]float64{"line_move": move}))
	}
	return out, nil
}

// detectBookConflicts flags a market where books disagree: ≥2 distinct
// sharp tags and a credibility-weighted differential stddev above
// threshold.
func detectBookConflicts(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minDistinctTags := variant.Thresholds["min_distinct_tags"]
	minStddev := variant.Thresholds["min_stddev"]
	var out []model.CandidateSignal
	for market, pts := range gctx.byMarket {
		if !variant.AppliesTo(market) || len(pts) < 2 {
			continue
		}
		tags := map[model.SharpTag]bool{}
		var diffs, weights []float64
		var rep model.CuratedPoint
		repSet := false
		for _, p := range pts {
			tags[p.SharpTag] = true
			if p.MoneyMinusBet == nil {
				continue
			}
			diffs = append(diffs, *p.MoneyMinusBet)
			weights = append(weights, p.BookCredibility)
			if !repSet || p.BookCredibility > rep.BookCredibility {
				rep = p
				repSet = true
			}
		}
		if float64(len(tags)) < minDistinctTags || len(diffs) < 2 {
			continue
		}
		sd := stat.StdDev(diffs, weights)
		if sd < minStddev {
			continue
		}
		side := sideForDiff(market, valueOrZero(rep.MoneyMinusBet))
		out = append(out, e.buildSignal(gctx, rep, variant, side, sd, map[string]float64{
			"stddev":        sd,
			"distinct_tags": float64(len(tags)),
		}))
	}
	return out, nil
}

// detectPublicFade fades heavy public money concentration (
// "Public Fade — heavy/moderate").
func detectPublicFade(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minAvg := variant.Thresholds["min_avg_money_pct"]
	minBooks := variant.Thresholds["min_books"]
	minBookPct := variant.Thresholds["min_book_money_pct"]
	var out []model.CandidateSignal
	for market, pts := range gctx.byMarket {
		if !variant.AppliesTo(market) {
			continue
		}
		var values []float64
		var rep model.CuratedPoint
		repSet := false
		for _, p := range pts {
			if p.MoneyPct == nil {
				continue
			}
			values = append(values, *p.MoneyPct)
			if !repSet || p.BookCredibility > rep.BookCredibility {
				rep = p
				repSet = true
			}
		}
		if float64(len(values)) < minBooks {
			continue
		}
		avg := mean(values)
		heavyHome := avg >= minAvg
		heavyAway := avg <= 100-minAvg
		if !heavyHome && !heavyAway {
			continue
		}
		if minBookPct > 0 {
			allMeet := true
			for _, v := range values {
				if heavyHome && v < minBookPct {
					allMeet = false
				}
				if heavyAway && v > 100-minBookPct {
					allMeet = false
				}
			}
			if !allMeet {
				continue
			}
		}
		publicSide := sideForDiff(market, avg-50)
		fadeSide := oppositeSide(publicSide)
		out = append(out, e.buildSignal(gctx, rep, variant, fadeSide, avg-50, map[string]float64{"avg_money_pct": avg}))
	}
	return out, nil
}

// detectConsensus flags money and bets aligning strongly on the same side.
func detectConsensus(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minMoney := variant.Thresholds["min_money_pct"]
	minBet := variant.Thresholds["min_bet_pct"]
	var out []model.CandidateSignal
	for market, pts := range gctx.byMarket {
		if !variant.AppliesTo(market) {
			continue
		}
		var moneyVals, betVals []float64
		var rep model.CuratedPoint
		repSet := false
		for _, p := range pts {
			if p.MoneyPct != nil {
				moneyVals = append(moneyVals, *p.MoneyPct)
			}
			if p.BetPct != nil {
				betVals = append(betVals, *p.BetPct)
			}
			if !repSet || p.BookCredibility > rep.BookCredibility {
				rep = p
				repSet = true
			}
		}
		if len(moneyVals) == 0 || len(betVals) == 0 {
			continue
		}
		avgMoney, avgBet := mean(moneyVals), mean(betVals)
		homeAligned := avgMoney >= minMoney && avgBet >= minBet
		awayAligned := avgMoney <= 100-minMoney && avgBet <= 100-minBet
		if !homeAligned && !awayAligned {
			continue
		}
		side := sideForDiff(market, avgMoney-50)
		out = append(out, e.buildSignal(gctx, rep, variant, side, avgMoney-50, map[string]float64{
			"avg_money_pct": avgMoney,
			"avg_bet_pct":   avgBet,
		}))
	}
	return out, nil
}

// detectOpposingMarkets flags a moneyline/spread sign disagreement.
func detectOpposingMarkets(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	threshold := variant.Thresholds["min_differential"]
	mlPts, okML := gctx.byMarket[model.MarketMoneyline]
	spPts, okSP := gctx.byMarket[model.MarketSpread]
	if !okML || !okSP {
		return nil, nil
	}
	var out []model.CandidateSignal
	for _, ml := range mlPts {
		if ml.MoneyMinusBet == nil || math.Abs(*ml.MoneyMinusBet) < threshold {
			continue
		}
		mlSide := sideForDiff(model.MarketMoneyline, *ml.MoneyMinusBet)
		for _, sp := range spPts {
			if sp.MoneyMinusBet == nil || math.Abs(*sp.MoneyMinusBet) < threshold {
				continue
			}
			spSide := sideForDiff(model.MarketSpread, *sp.MoneyMinusBet)
			if mlSide == spSide {
				continue
			}
			features := map[string]float64{"moneyline_diff": *ml.MoneyMinusBet, "spread_diff": *sp.MoneyMinusBet}
			out = append(out, e.buildSignal(gctx, ml, variant, mlSide, *ml.MoneyMinusBet, features))
			out = append(out, e.buildSignal(gctx, sp, variant, spSide, *sp.MoneyMinusBet, features))
		}
	}
	return out, nil
}

// detectLateSharpFlip implements "Flip — cross-market" rule, resolving a
// sharp action flip within the window by following the early side; the
// late contradiction is recorded as a feature, not followed.
func detectLateSharpFlip(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	earlyHours := variant.Thresholds["early_hours"]
	lateHours := variant.Thresholds["late_hours"]
	minDiff := variant.Thresholds["min_differential"]
	var out []model.CandidateSignal
	for key, closing := range gctx.byPartition {
		if !variant.AppliesTo(key.Market) || closing.MoneyMinusBet == nil {
			continue
		}
		if closing.HoursBeforeGame > lateHours {
			continue
		}
		opening, err := e.openingPoint(ctx, gctx.game.GameID, key.Source, key.Book, key.Market)
		if err != nil {
			return nil, fmt.Errorf("opening point: %w", err)
		}
		if opening == nil || opening.MoneyMinusBet == nil || opening.HoursBeforeGame < earlyHours {
			continue
		}
		if math.Abs(*opening.MoneyMinusBet) < minDiff {
			continue
		}
		earlySide := sideForDiff(key.Market, *opening.MoneyMinusBet)
		lateSide := sideForDiff(key.Market, *closing.MoneyMinusBet)
		if earlySide == lateSide {
			continue
		}
		features := map[string]float64{"early_diff": *opening.MoneyMinusBet, "late_diff": *closing.MoneyMinusBet}
		out = append(out, e.buildSignal(gctx, closing, variant, earlySide, *opening.MoneyMinusBet, features))
	}
	return out, nil
}

var sweetSpotLines = []float64{7.5, 8.5, 9.5}

func isSweetSpotLine(v float64) bool {
	for _, l := range sweetSpotLines {
		if math.Abs(v-l) < 0.01 {
			return true
		}
	}
	return false
}

// detectTotalSweetSpots implements key-number bias rule,
// scaled by the ballpark factor table.
func detectTotalSweetSpots(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minPublicPct := variant.Thresholds["min_public_pct"]
	pts, ok := gctx.byMarket[model.MarketTotal]
	if !ok {
		return nil, nil
	}
	var out []model.CandidateSignal
	for _, p := range pts {
		if p.BetPct == nil || p.MoneyMinusBet == nil {
			continue
		}
		line, ok := parseDecimalSplit(p.SplitValue)
		if !ok || !isSweetSpotLine(line) {
			continue
		}
		publicOver := *p.BetPct >= minPublicPct
		publicUnder := *p.BetPct <= 100-minPublicPct
		if !publicOver && !publicUnder {
			continue
		}
		sharpSide := sideForDiff(model.MarketTotal, *p.MoneyMinusBet)
		publicSide := model.SideOver
		if publicUnder {
			publicSide = model.SideUnder
		}
		if sharpSide == publicSide {
			continue
		}
		magnitude := *p.MoneyMinusBet * ballparkFactor(gctx.game.Park)
		out = append(out, e.buildSignal(gctx, p, variant, sharpSide, magnitude, map[string]float64{
			"total_line":     line,
			"public_bet_pct": *p.BetPct,
		}))
	}
	return out, nil
}

// detectUnderdogValue implements "Underdog value" rule.
func detectUnderdogValue(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minFavMoneyPct := variant.Thresholds["min_favorite_money_pct"]
	maxFavOdds := variant.Thresholds["max_favorite_odds"]
	pts, ok := gctx.byMarket[model.MarketMoneyline]
	if !ok {
		return nil, nil
	}
	var out []model.CandidateSignal
	for _, p := range pts {
		if p.MoneyPct == nil {
			continue
		}
		odds, ok := parseMoneylineSplit(p.SplitValue)
		if !ok {
			continue
		}
		favoriteHome := odds.Home < odds.Away
		favoriteOdds := odds.Home
		favoriteMoneyPct := *p.MoneyPct
		if !favoriteHome {
			favoriteOdds = odds.Away
			favoriteMoneyPct = 100 - *p.MoneyPct
		}
		if float64(favoriteOdds) >= maxFavOdds {
			continue
		}
		if favoriteMoneyPct < minFavMoneyPct {
			continue
		}
		dogSide := model.SideAway
		if !favoriteHome {
			dogSide = model.SideHome
		}
		out = append(out, e.buildSignal(gctx, p, variant, dogSide, favoriteMoneyPct-50, map[string]float64{
			"favorite_odds":      float64(favoriteOdds),
			"favorite_money_pct": favoriteMoneyPct,
		}))
	}
	return out, nil
}

// detectTeamMarketBias fades heavy public lean in large-market games.
func detectTeamMarketBias(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	if gctx.game.MarketSize != model.MarketSizeLarge {
		return nil, nil
	}
	threshold := variant.Thresholds["min_public_pct"]
	var out []model.CandidateSignal
	for market, pts := range gctx.byMarket {
		if !variant.AppliesTo(market) {
			continue
		}
		for _, p := range pts {
			if p.BetPct == nil {
				continue
			}
			if *p.BetPct < threshold && *p.BetPct > 100-threshold {
				continue
			}
			publicSide := sideForDiff(market, *p.BetPct-50)
			fadeSide := oppositeSide(publicSide)
			out = append(out, e.buildSignal(gctx, p, variant, fadeSide, *p.BetPct-50, map[string]float64{"public_bet_pct": *p.BetPct}))
		}
	}
	return out, nil
}

func detectTimingPatterns(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	switch int(variant.Thresholds["pattern"]) {
	case 0:
		return timingEarlyPersistent(ctx, e, gctx, variant)
	case 1:
		return timingLateDeveloping(ctx, e, gctx, variant)
	case 2:
		return timingSteam(ctx, e, gctx, variant)
	case 3:
		return timingReverseLineMovement(gctx, e, variant)
	default:
		return nil, nil
	}
}

func timingEarlyPersistent(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minDiff := variant.Thresholds["min_differential"]
	var out []model.CandidateSignal
	for key, closing := range gctx.byPartition {
		if !variant.AppliesTo(key.Market) || closing.MoneyMinusBet == nil {
			continue
		}
		opening, err := e.openingPoint(ctx, gctx.game.GameID, key.Source, key.Book, key.Market)
		if err != nil {
			return nil, err
		}
		if opening == nil || opening.MoneyMinusBet == nil {
			continue
		}
		if math.Abs(*opening.MoneyMinusBet) < minDiff || math.Abs(*closing.MoneyMinusBet) < minDiff {
			continue
		}
		openSide := sideForDiff(key.Market, *opening.MoneyMinusBet)
		closeSide := sideForDiff(key.Market, *closing.MoneyMinusBet)
		if openSide != closeSide {
			continue
		}
		out = append(out, e.buildSignal(gctx, closing, variant, closeSide, *closing.MoneyMinusBet, map[string]float64{"opening_diff": *opening.MoneyMinusBet}))
	}
	return out, nil
}

func timingLateDeveloping(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minDiff := variant.Thresholds["min_differential"]
	var out []model.CandidateSignal
	for key, closing := range gctx.byPartition {
		if !variant.AppliesTo(key.Market) || closing.MoneyMinusBet == nil {
			continue
		}
		if math.Abs(*closing.MoneyMinusBet) < minDiff {
			continue
		}
		opening, err := e.openingPoint(ctx, gctx.game.GameID, key.Source, key.Book, key.Market)
		if err != nil {
			return nil, err
		}
		if opening != nil && opening.MoneyMinusBet != nil && math.Abs(*opening.MoneyMinusBet) >= minDiff {
			continue
		}
		side := sideForDiff(key.Market, *closing.MoneyMinusBet)
		out = append(out, e.buildSignal(gctx, closing, variant, side, *closing.MoneyMinusBet, nil))
	}
	return out, nil
}

func timingSteam(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	maxHoursSpan := variant.Thresholds["max_hours_span"]
	var out []model.CandidateSignal
	for key, closing := range gctx.byPartition {
		if !variant.AppliesTo(key.Market) {
			continue
		}
		series, err := e.curated.SeriesFor(ctx, gctx.game.GameID, key.Source, key.Book, key.Market)
		if err != nil {
			return nil, err
		}
		if len(series) < 2 {
			continue
		}
		prev := series[len(series)-2]
		move, ok := lineMove(key.Market, prev, closing)
		if !ok {
			continue
		}
		span := prev.HoursBeforeGame - closing.HoursBeforeGame
		if span > maxHoursSpan || span < 0 {
			continue
		}
		thresholdKey := "min_move_points"
		if key.Market == model.MarketMoneyline {
			thresholdKey = "min_move_ml_cents"
		}
		if math.Abs(move) < variant.Thresholds[thresholdKey] {
			continue
		}
		side := sideForDiff(key.Market, move)
		out = append(out, e.buildSignal(gctx, closing, variant, side, move, map[string]float64{"hours_span": span}))
	}
	return out, nil
}

func timingReverseLineMovement(gctx *gameContext, e *Engine, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minDiff := variant.Thresholds["min_differential"]
	var out []model.CandidateSignal
	for key, p := range gctx.byPartition {
		if !variant.AppliesTo(key.Market) || p.LineMovementPrev == nil || p.BetPct == nil || p.MoneyMinusBet == nil {
			continue
		}
		if math.Abs(*p.MoneyMinusBet) < minDiff {
			continue
		}
		moveTowardHome := *p.LineMovementPrev > 0
		publicHome := *p.BetPct >= 50
		if moveTowardHome == publicHome {
			continue
		}
		side := sideForDiff(key.Market, *p.MoneyMinusBet)
		out = append(out, e.buildSignal(gctx, p, variant, side, *p.MoneyMinusBet, map[string]float64{"line_movement": *p.LineMovementPrev}))
	}
	return out, nil
}

func detectSignalCombinations(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	switch int(variant.Thresholds["mode"]) {
	case 0:
		return combinationsMultiMarketConsensus(e, gctx, variant)
	case 1:
		return combinationsFadeConflicts(e, gctx, variant)
	case 2:
		if len(gctx.byMarket) < 3 {
			return nil, nil
		}
		return combinationsMultiMarketConsensus(e, gctx, variant)
	default:
		return nil, nil
	}
}

func combinationsMultiMarketConsensus(e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minAgreeing := int(variant.Thresholds["min_markets_agreeing"])
	var positive, negative []model.CuratedPoint
	for _, pts := range gctx.byMarket {
		rep, ok := representativePoint(pts)
		if !ok || rep.MoneyMinusBet == nil {
			continue
		}
		if *rep.MoneyMinusBet >= 0 {
			positive = append(positive, rep)
		} else {
			negative = append(negative, rep)
		}
	}
	var out []model.CandidateSignal
	if len(positive) >= minAgreeing {
		rep := positive[0]
		out = append(out, e.buildSignal(gctx, rep, variant, sideForDiff(rep.Market, 1), float64(len(positive)), map[string]float64{"markets_agreeing": float64(len(positive))}))
	}
	if len(negative) >= minAgreeing {
		rep := negative[0]
		out = append(out, e.buildSignal(gctx, rep, variant, sideForDiff(rep.Market, -1), float64(len(negative)), map[string]float64{"markets_agreeing": float64(len(negative))}))
	}
	return out, nil
}

func combinationsFadeConflicts(e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error) {
	minDistinctTags := int(variant.Thresholds["min_distinct_tags"])
	tags := map[model.SharpTag]model.CuratedPoint{}
	for _, pts := range gctx.byMarket {
		rep, ok := representativePoint(pts)
		if !ok {
			continue
		}
		tags[rep.SharpTag] = rep
	}
	if len(tags) < minDistinctTags {
		return nil, nil
	}
	var rep model.CuratedPoint
	for _, p := range tags {
		rep = p
		break
	}
	side := oppositeSide(sideForDiff(rep.Market, valueOrZero(rep.MoneyMinusBet)))
	return []model.CandidateSignal{e.buildSignal(gctx, rep, variant, side, float64(len(tags)), map[string]float64{"distinct_tags": float64(len(tags))})}, nil
}
