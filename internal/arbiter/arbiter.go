// Package arbiter implements the Arbiter: it takes one
// Detector Engine run's CandidateSignals, drops the ones whose variant is
// SHADOW or DISABLED, applies the juice filter, merges or resolves
// competing signals within each (game, market, book) group, and persists
// at most one ranked Recommendation per group.
package arbiter

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
	"github.com/aristath/sharpline/internal/storage/games"
)

// EdgeWeightFunc returns the historical-edge weight wi for one variant on
// one market, used in the merge formula. A nil func is treated as a
// uniform weight of 1.0.
type EdgeWeightFunc func(strategyName, variantName string, market model.Market) float64

// StatusFunc reports the current catalog status for a variant, so the
// Arbiter can drop SHADOW/DISABLED output even if it arrived from a stale
// Detector Engine snapshot. A nil entry is treated as ACTIVE.
type StatusFunc func(strategyName, variantName string) model.VariantStatus

// EdgeROIFunc returns the most recently backtested ROI for one variant on
// one market, used to populate Recommendation.ExpectedROI. ok is false
// when no BacktestResult exists yet for that variant.
type EdgeROIFunc func(strategyName, variantName string, market model.Market) (roi float64, ok bool)

// Config tunes the Arbiter's thresholds; zero values fall back to the
// defaults.
type Config struct {
	ConfidenceFloor     float64 // default 0.55
	AmbiguityMargin     float64 // default 0.1
	JuiceFloorMoneyline int     // default -160 (worse than this is rejected)
}

func (c Config) withDefaults() Config {
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = 0.55
	}
	if c.AmbiguityMargin <= 0 {
		c.AmbiguityMargin = 0.1
	}
	if c.JuiceFloorMoneyline == 0 {
		c.JuiceFloorMoneyline = -160
	}
	return c
}

// Arbiter owns signal_candidates (audit) and signal_recommendations
// (replaced-per-run), both in the signal database.
type Arbiter struct {
	db        *storage.DB
	games     *games.Store
	clock     clock.Clock
	cfg       Config
	log       zerolog.Logger
	roiLookup EdgeROIFunc
}

// New constructs an Arbiter against an already-migrated signal database.
// gameStore resolves game start times for the windowMinutes filter in
// LatestRecommendations — curated_games lives in a separate database file
// from signal_recommendations, so that filter cannot be a SQL join.
func New(db *storage.DB, gameStore *games.Store, clk clock.Clock, cfg Config, log zerolog.Logger) *Arbiter {
	return &Arbiter{
		db:    db,
		games: gameStore,
		clock: clk,
		cfg:   cfg.withDefaults(),
		log:   log.With().Str("component", "arbiter").Logger(),
	}
}

// SetROILookup wires a backtest-ROI lookup into the Arbiter, used to
// populate Recommendation.ExpectedROI on every future Run. Optional;
// ExpectedROI stays nil until this is called, e.g. before any nightly
// backtest has produced a result to look up.
func (a *Arbiter) SetROILookup(fn EdgeROIFunc) {
	a.roiLookup = fn
}

// RunSummary reports what one Arbiter run produced, for health/logging.
type RunSummary struct {
	RunID              int64
	CandidatesIn       int
	DroppedShadow      int
	DroppedJuice       int
	DroppedAmbiguous   int
	Recommendations    int
}

// Run is the Arbiter's sole public operation: it persists the audit trail
// for every candidate, then the final Recommendations, inside one new
// run id with a strictly increasing run id.
func (a *Arbiter) Run(ctx context.Context, signals []model.CandidateSignal, status StatusFunc, edgeWeight EdgeWeightFunc) (RunSummary, []model.Recommendation, error) {
	runID, err := a.newRunID(ctx)
	if err != nil {
		return RunSummary{}, nil, fmt.Errorf("allocate arbiter run id: %w", err)
	}
	summary := RunSummary{RunID: runID, CandidatesIn: len(signals)}

	if err := a.recordCandidates(ctx, signals); err != nil {
		return summary, nil, fmt.Errorf("record candidate signals: %w", err)
	}

	// Step 1: drop SHADOW/DISABLED.
	var active []model.CandidateSignal
	for _, s := range signals {
		st := model.StatusActive
		if status != nil {
			st = status(s.StrategyName, s.VariantName)
		}
		if st == model.StatusShadow || st == model.StatusDisabled {
			summary.DroppedShadow++
			continue
		}
		active = append(active, s)
	}

	// Step 2: juice filter.
	var passed []model.CandidateSignal
	for _, s := range active {
		ok, odds := passesJuiceFilter(s, a.cfg.JuiceFloorMoneyline)
		if !ok {
			summary.DroppedJuice++
			a.log.Info().Int64("game_id", s.GameID).Str("market", string(s.Market)).
				Str("book", s.Book).Str("side", string(s.Side)).Int("odds", odds).
				Msg("JuiceFilterReject")
			continue
		}
		passed = append(passed, s)
	}

	// Step 3: group by (game, market, book) and merge/resolve.
	groups := groupSignals(passed)
	var recs []model.Recommendation
	for key, group := range groups {
		rec, ambiguous := mergeGroup(key, group, edgeWeight, a.roiLookup, a.cfg.AmbiguityMargin)
		if ambiguous {
			summary.DroppedAmbiguous++
			a.log.Info().Int64("game_id", key.GameID).Str("market", string(key.Market)).
				Str("book", key.Book).Msg("AmbiguousArbitration")
			continue
		}
		if rec.FinalConfidence < a.cfg.ConfidenceFloor {
			continue
		}
		recs = append(recs, rec)
	}

	// Step 4: rank by final confidence desc.
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].FinalConfidence != recs[j].FinalConfidence {
			return recs[i].FinalConfidence > recs[j].FinalConfidence
		}
		if recs[i].GameID != recs[j].GameID {
			return recs[i].GameID < recs[j].GameID
		}
		if recs[i].Market != recs[j].Market {
			return recs[i].Market < recs[j].Market
		}
		return recs[i].Book < recs[j].Book
	})
	for i := range recs {
		recs[i].Rank = i + 1
		recs[i].RunID = fmt.Sprintf("%d", runID)
	}

	if err := a.recordRecommendations(ctx, runID, recs); err != nil {
		return summary, nil, fmt.Errorf("record recommendations: %w", err)
	}
	summary.Recommendations = len(recs)

	a.log.Info().Int64("run_id", runID).Int("candidates_in", summary.CandidatesIn).
		Int("dropped_shadow_disabled", summary.DroppedShadow).Int("dropped_juice", summary.DroppedJuice).
		Int("dropped_ambiguous", summary.DroppedAmbiguous).Int("recommendations", summary.Recommendations).
		Msg("arbiter run complete")
	return summary, recs, nil
}

type groupKey struct {
	GameID int64
	Market model.Market
	Book   string
}

func groupSignals(signals []model.CandidateSignal) map[groupKey][]model.CandidateSignal {
	groups := make(map[groupKey][]model.CandidateSignal)
	for _, s := range signals {
		key := groupKey{GameID: s.GameID, Market: s.Market, Book: s.Book}
		groups[key] = append(groups[key], s)
	}
	return groups
}

// mergeGroup resolves one (game, market, book) group: agreeing signals merge via
// 1 - Π(1 - cᵢwᵢ); disagreeing signals resolve to the side with the
// greater summed weighted confidence, dropping the group if the margin
// is below the ambiguity threshold.
func mergeGroup(key groupKey, signals []model.CandidateSignal, edgeWeight EdgeWeightFunc, roiLookup EdgeROIFunc, ambiguityMargin float64) (model.Recommendation, bool) {
	bySide := make(map[model.Side][]model.CandidateSignal)
	for _, s := range signals {
		bySide[s.Side] = append(bySide[s.Side], s)
	}

	if len(bySide) == 1 {
		for side, group := range bySide {
			return buildRecommendation(key, side, group, edgeWeight, roiLookup), false
		}
	}

	type sideTotal struct {
		side    model.Side
		summed  float64
		signals []model.CandidateSignal
	}
	var totals []sideTotal
	for side, group := range bySide {
		var sum float64
		for _, s := range group {
			sum += s.RawConfidence * weightOf(edgeWeight, s)
		}
		totals = append(totals, sideTotal{side: side, summed: sum, signals: group})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].summed > totals[j].summed })

	if len(totals) < 2 || totals[0].summed-totals[1].summed < ambiguityMargin {
		return model.Recommendation{}, true
	}
	winner := totals[0]
	return buildRecommendation(key, winner.side, winner.signals, edgeWeight, roiLookup), false
}

func weightOf(edgeWeight EdgeWeightFunc, s model.CandidateSignal) float64 {
	if edgeWeight == nil {
		return 1.0
	}
	return edgeWeight(s.StrategyName, s.VariantName, s.Market)
}

func buildRecommendation(key groupKey, side model.Side, signals []model.CandidateSignal, edgeWeight EdgeWeightFunc, roiLookup EdgeROIFunc) model.Recommendation {
	complement := 1.0
	contributing := make([]model.WeightedVariant, 0, len(signals))
	var roiWeightSum, roiSum float64
	for _, s := range signals {
		w := weightOf(edgeWeight, s)
		complement *= (1 - clamp01(s.RawConfidence*w))
		contributing = append(contributing, model.WeightedVariant{
			StrategyName: s.StrategyName,
			VariantName:  s.VariantName,
			Weight:       w,
			Confidence:   s.RawConfidence,
		})
		if roiLookup != nil {
			if roi, ok := roiLookup(s.StrategyName, s.VariantName, s.Market); ok {
				roiSum += roi * w
				roiWeightSum += w
			}
		}
	}
	sort.Slice(contributing, func(i, j int) bool {
		if contributing[i].StrategyName != contributing[j].StrategyName {
			return contributing[i].StrategyName < contributing[j].StrategyName
		}
		return contributing[i].VariantName < contributing[j].VariantName
	})

	rec := model.Recommendation{
		GameID:               key.GameID,
		Market:               key.Market,
		Book:                 key.Book,
		Side:                 side,
		FinalConfidence:      clamp01(1 - complement),
		ContributingVariants: contributing,
		JuiceCheckPassed:     true,
	}
	if roiWeightSum > 0 {
		avg := roiSum / roiWeightSum
		rec.ExpectedROI = &avg
	}
	return rec
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
