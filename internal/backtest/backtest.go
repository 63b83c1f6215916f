// Package backtest implements the Backtester: it runs the
// Detector Engine over historical windows, joins fired CandidateSignals
// with resolved OutcomeRecords, and persists per-variant BacktestResults
// to the Strategy Catalog.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/detect"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage/games"
)

// Backtester joins Detector Engine output with OutcomeRecords over a
// historical window.
type Backtester struct {
	engine  *detect.Engine
	games   *games.Store
	catalog *catalog.Catalog
	log     zerolog.Logger
}

// New constructs a Backtester.
func New(engine *detect.Engine, gameStore *games.Store, cat *catalog.Catalog, log zerolog.Logger) *Backtester {
	return &Backtester{
		engine:  engine,
		games:   gameStore,
		catalog: cat,
		log:     log.With().Str("component", "backtester").Logger(),
	}
}

type groupKey struct {
	Strategy string
	Variant  string
	Market   model.Market
}

type betOutcome struct {
	won       bool
	roiAt110  float64
	roiActual float64
}

// Run evaluates variants over [windowStart, windowEnd), excludes games
// whose outcome did not resolve strictly after the signal's fired_at (the
// lookahead ban: a backtest must never score a signal against information
// that was not yet available when it fired), aggregates ROI/win-rate
// per (strategy, variant, market), and persists the results.
func (b *Backtester) Run(ctx context.Context, windowStart, windowEnd time.Time, variants []model.StrategyVariant) ([]model.BacktestResult, error) {
	signals, err := b.engine.Evaluate(ctx, windowStart, windowEnd, variants)
	if err != nil {
		return nil, fmt.Errorf("evaluate detector window: %w", err)
	}

	groups := map[groupKey][]betOutcome{}
	gameCache := map[int64]model.Game{}
	excludedMissingOutcome := 0

	for _, sig := range signals {
		g, cached := gameCache[sig.GameID]
		if !cached {
			g, err = b.games.Get(ctx, sig.GameID)
			if err != nil {
				return nil, fmt.Errorf("load game %d: %w", sig.GameID, err)
			}
			gameCache[sig.GameID] = g
		}
		if g.OutcomeResolvedAt == nil || !g.OutcomeResolvedAt.After(sig.FiredAt) {
			excludedMissingOutcome++
			continue
		}

		won := wonBet(sig.Market, sig.Side, g)
		actual := -110
		if sig.Market == model.MarketMoneyline && len(sig.TriggeringPoints) > 0 {
			if odds, ok := actualOdds(sig.Side, sig.TriggeringPoints[0].SplitValue); ok {
				actual = odds
			}
		}
		key := groupKey{Strategy: sig.StrategyName, Variant: sig.VariantName, Market: sig.Market}
		groups[key] = append(groups[key], betOutcome{
			won:       won,
			roiAt110:  betROI(won, -110),
			roiActual: betROI(won, actual),
		})
	}

	if excludedMissingOutcome > 0 {
		b.log.Info().Int("excluded", excludedMissingOutcome).Msg("candidate signals excluded: outcome missing or not yet resolved past fired_at")
	}

	var results []model.BacktestResult
	for key, bets := range groups {
		r := aggregate(key, bets)
		r.WindowStart = windowStart
		r.WindowEnd = windowEnd
		if err := b.catalog.RecordBacktestResult(ctx, r); err != nil {
			return nil, fmt.Errorf("record backtest result for %s/%s: %w", key.Strategy, key.Variant, err)
		}
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].StrategyName != results[j].StrategyName {
			return results[i].StrategyName < results[j].StrategyName
		}
		if results[i].VariantName != results[j].VariantName {
			return results[i].VariantName < results[j].VariantName
		}
		return results[i].Market < results[j].Market
	})
	return results, nil
}

func wonBet(market model.Market, side model.Side, g model.Game) bool {
	switch market {
	case model.MarketMoneyline:
		if g.HomeWin == nil {
			return false
		}
		if side == model.SideHome {
			return *g.HomeWin
		}
		return !*g.HomeWin
	case model.MarketSpread:
		if g.HomeCoverSpread == nil {
			return false
		}
		if side == model.SideHome {
			return *g.HomeCoverSpread
		}
		return !*g.HomeCoverSpread
	case model.MarketTotal:
		if g.Over == nil {
			return false
		}
		if side == model.SideOver {
			return *g.Over
		}
		return !*g.Over
	}
	return false
}

// betROI: moneyline uses the actual odds when present, else -110;
// spread/total are always -110.
func betROI(won bool, americanOdds int) float64 {
	if !won {
		return -1
	}
	if americanOdds > 0 {
		return float64(americanOdds) / 100.0
	}
	return 100.0 / float64(-americanOdds)
}

func aggregate(key groupKey, bets []betOutcome) model.BacktestResult {
	wins := 0
	var roi110Sum, roiActualSum float64
	var cumulative, peak, maxDrawdown float64
	for _, o := range bets {
		if o.won {
			wins++
		}
		roi110Sum += o.roiAt110
		roiActualSum += o.roiActual
		cumulative += o.roiAt110
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	n := len(bets)
	var winRate, roiAt110, roiActual float64
	if n > 0 {
		winRate = float64(wins) / float64(n)
		roiAt110 = roi110Sum / float64(n)
		roiActual = roiActualSum / float64(n)
	}
	return model.BacktestResult{
		StrategyName:       key.Strategy,
		VariantName:        key.Variant,
		Market:             key.Market,
		BetsCount:          n,
		Wins:               wins,
		WinRate:            winRate,
		ROIAt110:           roiAt110,
		ROIUsingActualOdds: roiActual,
		Drawdown:           maxDrawdown,
		ConfidenceTier:     confidenceTier(n),
		SampleSufficient:   n >= 10,
	}
}

func confidenceTier(n int) model.ConfidenceTier {
	switch {
	case n >= 50:
		return model.TierHigh
	case n >= 20:
		return model.TierMedium
	case n >= 10:
		return model.TierLow
	default:
		return model.TierVeryLow
	}
}
