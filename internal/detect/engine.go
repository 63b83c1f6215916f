// Package detect implements the Detector Engine: a pure
// function of a CURATED snapshot and a Strategy Catalog slice, windowed by
// game start time, that emits CandidateSignals. The same Evaluate call
// path backs both live detection and the Backtester.
package detect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/curated"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage/games"
)

// SampleAdequacyFunc reports a [0,1] multiplier for how statistically
// trustworthy a variant's track record is for a given market, sourced from
// the latest BacktestResult's sample-size sufficiency. A nil func is
// treated as fully adequate — used before any backtest has run for a
// fresh catalog.
type SampleAdequacyFunc func(strategyName, variantName string, market model.Market) float64

type partitionKey struct {
	Source string
	Book   string
	Market model.Market
}

type gameContext struct {
	game        model.Game
	byPartition map[partitionKey]model.CuratedPoint
	byMarket    map[model.Market][]model.CuratedPoint
}

// detectorFunc evaluates one variant against one game's closing snapshots.
type detectorFunc func(ctx context.Context, e *Engine, gctx *gameContext, variant model.StrategyVariant) ([]model.CandidateSignal, error)

var dispatch = map[string]detectorFunc{
	catalog.DetectorSharpAction:        detectSharpAction,
	catalog.DetectorLineMovement:       detectLineMovement,
	catalog.DetectorBookConflicts:      detectBookConflicts,
	catalog.DetectorPublicFade:         detectPublicFade,
	catalog.DetectorConsensus:          detectConsensus,
	catalog.DetectorOpposingMarkets:    detectOpposingMarkets,
	catalog.DetectorLateSharpFlip:      detectLateSharpFlip,
	catalog.DetectorTotalSweetSpots:    detectTotalSweetSpots,
	catalog.DetectorUnderdogValue:      detectUnderdogValue,
	catalog.DetectorTeamMarketBias:     detectTeamMarketBias,
	catalog.DetectorTimingPatterns:     detectTimingPatterns,
	catalog.DetectorSignalCombinations: detectSignalCombinations,
}

// Engine evaluates a Strategy Catalog snapshot against a CURATED window.
type Engine struct {
	curated        *curated.Reader
	games          *games.Store
	clock          clock.Clock
	runTimeout     time.Duration
	sampleAdequacy SampleAdequacyFunc
	log            zerolog.Logger
}

// New constructs a Detector Engine. sampleAdequacy may be nil.
func New(curatedReader *curated.Reader, gameStore *games.Store, clk clock.Clock, runTimeout time.Duration, sampleAdequacy SampleAdequacyFunc, log zerolog.Logger) *Engine {
	if runTimeout <= 0 {
		runTimeout = 60 * time.Second
	}
	return &Engine{
		curated:        curatedReader,
		games:          gameStore,
		clock:          clk,
		runTimeout:     runTimeout,
		sampleAdequacy: sampleAdequacy,
		log:            log.With().Str("component", "detector_engine").Logger(),
	}
}

// Evaluate is the Detector Engine's sole public operation. Output is
// sorted by (game_id, market, book, strategy, variant) for determinism.
func (e *Engine) Evaluate(ctx context.Context, windowStart, windowEnd time.Time, variants []model.StrategyVariant) ([]model.CandidateSignal, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.runTimeout)
	defer cancel()

	gamesInWindow, err := e.games.ListInWindow(runCtx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list games in window: %w", err)
	}

	var signals []model.CandidateSignal
	for _, g := range gamesInWindow {
		points, err := e.curated.ClosingSnapshotsForGame(runCtx, g.GameID)
		if err != nil {
			return nil, fmt.Errorf("closing snapshots for game %d: %w", g.GameID, err)
		}
		if len(points) == 0 {
			continue
		}

		gctx := &gameContext{
			game:        g,
			byPartition: make(map[partitionKey]model.CuratedPoint, len(points)),
			byMarket:    make(map[model.Market][]model.CuratedPoint),
		}
		for _, p := range points {
			gctx.byPartition[partitionKey{p.Source, p.Book, p.Market}] = p
			gctx.byMarket[p.Market] = append(gctx.byMarket[p.Market], p)
		}

		for _, v := range variants {
			if v.Status == model.StatusDisabled {
				continue
			}
			fn, ok := dispatch[v.DetectorID]
			if !ok {
				e.log.Warn().Str("detector_id", v.DetectorID).Str("variant", v.Key()).Msg("unknown detector id, skipping")
				continue
			}
			out, err := fn(runCtx, e, gctx, v)
			if err != nil {
				e.log.Error().Err(err).Str("variant", v.Key()).Int64("game_id", g.GameID).Msg("detector evaluation failed")
				continue
			}
			signals = append(signals, out...)
		}
	}

	sort.Slice(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.GameID != b.GameID {
			return a.GameID < b.GameID
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		if a.Book != b.Book {
			return a.Book < b.Book
		}
		if a.StrategyName != b.StrategyName {
			return a.StrategyName < b.StrategyName
		}
		return a.VariantName < b.VariantName
	})
	return signals, nil
}

func (e *Engine) openingPoint(ctx context.Context, gameID int64, source, book string, market model.Market) (*model.CuratedPoint, error) {
	series, err := e.curated.SeriesFor(ctx, gameID, source, book, market)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, nil
	}
	p := series[0]
	return &p, nil
}

// buildSignal applies the standardized confidence pipeline
// to a detector's raw trigger and assembles the CandidateSignal.
func (e *Engine) buildSignal(gctx *gameContext, p model.CuratedPoint, variant model.StrategyVariant, side model.Side, magnitude float64, extraFeatures map[string]float64) model.CandidateSignal {
	consensusCount := len(gctx.byMarket[p.Market])

	conf := baseConfidence(magnitude)
	conf *= credibilityFactor(p.BookCredibility)
	if e.sampleAdequacy != nil {
		conf *= e.sampleAdequacy(variant.StrategyName, variant.VariantName, p.Market)
	}
	conf *= timingBoost(p.TimingBucket)
	conf *= consensusFactor(consensusCount)
	conf *= reverseLineMovementFactor(p)
	conf = clamp01(conf)

	features := map[string]float64{"magnitude": magnitude}
	for k, v := range extraFeatures {
		features[k] = v
	}

	return model.CandidateSignal{
		FiredAt:              e.clock.Now(),
		GameID:               gctx.game.GameID,
		Market:               p.Market,
		Book:                 p.Book,
		Source:               p.Source,
		StrategyName:         variant.StrategyName,
		VariantName:          variant.VariantName,
		Side:                 side,
		RawConfidence:        conf,
		ContributingFeatures: features,
		TriggeringPoints:     []model.CuratedPoint{p},
	}
}
