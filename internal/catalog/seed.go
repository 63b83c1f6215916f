package catalog

import (
	"time"

	"github.com/aristath/sharpline/internal/model"
)

// Detector IDs identify which detector function in internal/detect
// evaluates a variant. One function per strategy, parameterized by
// thresholds: variants are rows in the catalog, not separate code paths.
const (
	DetectorSharpAction        = "sharp_action"
	DetectorLineMovement       = "line_movement"
	DetectorBookConflicts      = "book_conflicts"
	DetectorPublicFade         = "public_fade"
	DetectorConsensus          = "consensus"
	DetectorOpposingMarkets    = "opposing_markets"
	DetectorLateSharpFlip      = "late_sharp_flip"
	DetectorTotalSweetSpots    = "total_sweet_spots"
	DetectorUnderdogValue      = "underdog_ml_value"
	DetectorTeamMarketBias     = "team_market_bias"
	DetectorTimingPatterns     = "timing_patterns"
	DetectorSignalCombinations = "signal_combinations"
)

var allMarkets = []model.Market{model.MarketMoneyline, model.MarketSpread, model.MarketTotal}

// BuiltinVariants returns the default catalog seed: one StrategyVariant
// per tier/variant for each built-in strategy, with thresholds fixed to
// known-good defaults so a fresh catalog is usable without operator
// configuration.
func BuiltinVariants() []model.StrategyVariant {
	now := time.Now()
	mk := func(strategy, variant, detector string, markets []model.Market, thresholds map[string]float64, minSample int) model.StrategyVariant {
		return model.StrategyVariant{
			StrategyName:      strategy,
			VariantName:       variant,
			DetectorID:        detector,
			ApplicableMarkets: markets,
			Thresholds:        thresholds,
			MinSampleSize:     minSample,
			Status:            model.StatusActive,
			LastTuned:         now,
		}
	}

	return []model.StrategyVariant{
		// Sharp Action: STRONG >= 15, MODERATE >= 10, WEAK >= 5.
		// Monotonic by construction: a STRONG-tier differential also clears
		// the MODERATE and WEAK thresholds.
		mk("sharp_action", "strong", DetectorSharpAction, allMarkets,
			map[string]float64{"min_differential": 15, "min_volume": 100, "min_books": 1}, 10),
		mk("sharp_action", "moderate", DetectorSharpAction, allMarkets,
			map[string]float64{"min_differential": 10, "min_volume": 100, "min_books": 1}, 10),
		mk("sharp_action", "weak", DetectorSharpAction, allMarkets,
			map[string]float64{"min_differential": 5, "min_volume": 50, "min_books": 1}, 10),

		// Line Movement: opening-to-closing move, follow variant takes the
		// direction of the move; fade takes the opposite.
		mk("line_movement", "follow", DetectorLineMovement, allMarkets,
			map[string]float64{"min_move_ml_cents": 10, "min_move_points": 1.0, "fade": 0}, 10),
		mk("line_movement", "fade", DetectorLineMovement, allMarkets,
			map[string]float64{"min_move_ml_cents": 10, "min_move_points": 1.0, "fade": 1}, 10),

		// Book Conflicts: divergent sharp tags across books for one game/market.
		mk("book_conflicts", "high", DetectorBookConflicts, allMarkets,
			map[string]float64{"min_distinct_tags": 2, "min_stddev": 10, "min_book_volume": 100}, 10),

		// Public Fade: heavy (>=2 books, avg>=85) and moderate (>=3 books, avg>=75, min>=70).
		mk("public_fade", "heavy", DetectorPublicFade, allMarkets,
			map[string]float64{"min_avg_money_pct": 85, "min_books": 2}, 10),
		mk("public_fade", "moderate", DetectorPublicFade, allMarkets,
			map[string]float64{"min_avg_money_pct": 75, "min_books": 3, "min_book_money_pct": 70}, 10),

		// Consensus: heavy (90/90) and mixed (80 money / 60 bets).
		mk("consensus", "heavy", DetectorConsensus, allMarkets,
			map[string]float64{"min_money_pct": 90, "min_bet_pct": 90}, 10),
		mk("consensus", "mixed", DetectorConsensus, allMarkets,
			map[string]float64{"min_money_pct": 80, "min_bet_pct": 60}, 10),

		// Opposing Markets: moneyline and spread imply opposite teams.
		mk("opposing_markets", "ml_vs_spread", DetectorOpposingMarkets, []model.Market{model.MarketMoneyline, model.MarketSpread},
			map[string]float64{"min_differential": 5}, 10),

		// Late Sharp Flip: canonical "follow early" per Open Questions.
		mk("late_sharp_flip", "follow_early", DetectorLateSharpFlip, allMarkets,
			map[string]float64{"min_differential": 7, "early_hours": 6, "late_hours": 3}, 10),

		// Total Sweet Spots: 7.5/8.5/9.5 with public lean against sharp side.
		mk("total_sweet_spots", "key_numbers", DetectorTotalSweetSpots, []model.Market{model.MarketTotal},
			map[string]float64{"min_public_pct": 65}, 10),

		// Underdog ML Value: heavy public money on the favorite.
		mk("underdog_ml_value", "fade_favorite", DetectorUnderdogValue, []model.Market{model.MarketMoneyline},
			map[string]float64{"min_favorite_money_pct": 65, "max_favorite_odds": -100}, 10),

		// Team / Market Bias: large-market teams draw public overbetting.
		mk("team_market_bias", "large_market_fade", DetectorTeamMarketBias, allMarkets,
			map[string]float64{"min_public_pct": 70}, 10),

		// Timing Patterns: four named sub-behaviors over the same series.
		mk("timing_patterns", "early_persistent", DetectorTimingPatterns, allMarkets,
			map[string]float64{"pattern": 0, "min_differential": 10}, 10),
		mk("timing_patterns", "late_developing", DetectorTimingPatterns, allMarkets,
			map[string]float64{"pattern": 1, "min_differential": 10}, 10),
		mk("timing_patterns", "steam", DetectorTimingPatterns, allMarkets,
			map[string]float64{"pattern": 2, "min_move_points": 1.0, "max_hours_span": 1}, 10),
		mk("timing_patterns", "reverse_line_movement", DetectorTimingPatterns, allMarkets,
			map[string]float64{"pattern": 3, "min_differential": 10}, 10),

		// Signal Combinations: multi-market agreement/conflict meta-signals.
		mk("signal_combinations", "multi_market_consensus", DetectorSignalCombinations, allMarkets,
			map[string]float64{"mode": 0, "min_markets_agreeing": 2}, 10),
		mk("signal_combinations", "fade_conflicts", DetectorSignalCombinations, allMarkets,
			map[string]float64{"mode": 1, "min_distinct_tags": 2}, 10),
		mk("signal_combinations", "triple_alignment", DetectorSignalCombinations, allMarkets,
			map[string]float64{"mode": 2, "min_markets_agreeing": 3}, 10),
	}
}
