// Package tuner implements the Performance Tuner: it reads
// the latest BacktestResult for every catalog variant and promotes,
// tightens, shadows, or disables it according to realized ROI and
// confidence tier.
package tuner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/model"
)

// Tuner applies the promotion/demotion rules against the Strategy Catalog.
type Tuner struct {
	catalog *catalog.Catalog
	clock   clock.Clock
	log     zerolog.Logger
}

// New constructs a Tuner.
func New(cat *catalog.Catalog, clk clock.Clock, log zerolog.Logger) *Tuner {
	return &Tuner{catalog: cat, clock: clk, log: log.With().Str("component", "performance_tuner").Logger()}
}

// Result summarizes one Tune invocation.
type Result struct {
	Evaluated int
	Tuned     int
}

// Tune reads the latest BacktestResult for every catalog variant with a
// sufficient sample and applies the rules.
func (t *Tuner) Tune(ctx context.Context) (Result, error) {
	variants, err := t.catalog.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("snapshot catalog: %w", err)
	}

	var result Result
	for _, v := range variants {
		latest, ok, err := t.catalog.LatestBacktestResult(ctx, v.StrategyName, v.VariantName)
		if err != nil {
			return Result{}, fmt.Errorf("load latest backtest result for %s: %w", v.Key(), err)
		}
		if !ok || !latest.SampleSufficient {
			continue
		}
		result.Evaluated++

		newStatus, newThresholds, reason := decide(v, latest)
		if newStatus == v.Status && thresholdsEqual(newThresholds, v.Thresholds) {
			continue
		}
		if err := t.catalog.ApplyTuning(ctx, v.StrategyName, v.VariantName, newStatus, newThresholds, reason, t.clock.Now()); err != nil {
			return Result{}, fmt.Errorf("apply tuning for %s: %w", v.Key(), err)
		}
		result.Tuned++
		t.log.Info().Str("variant", v.Key()).
			Str("before_status", string(v.Status)).Str("after_status", string(newStatus)).
			Str("reason", reason).Msg("variant tuned")
	}
	return result, nil
}

func decide(v model.StrategyVariant, r model.BacktestResult) (model.VariantStatus, map[string]float64, string) {
	roi := r.ROIAt110
	thresholds := copyThresholds(v.Thresholds)

	switch {
	case roi >= 0.05 && r.ConfidenceTier == model.TierHigh:
		return model.StatusActive, thresholds, "roi >= 5% at HIGH confidence: thresholds unchanged"
	case roi > 0 && roi < 0.05:
		tighten(thresholds, v.StrategyName)
		return model.StatusActive, thresholds, "roi between 0% and 5%: tightened primary threshold"
	case roi <= -0.05:
		return model.StatusDisabled, thresholds, "roi <= -5%: disabled"
	case roi <= 0 && tierAtLeastMedium(r.ConfidenceTier):
		return model.StatusShadow, thresholds, "roi <= 0% at MEDIUM+ confidence: moved to shadow"
	default:
		return v.Status, thresholds, "no tuning rule matched: status unchanged"
	}
}

func tierAtLeastMedium(t model.ConfidenceTier) bool {
	return t == model.TierMedium || t == model.TierHigh
}

func copyThresholds(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func thresholdsEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// tighten makes a variant "more selective" by raising its primary
// threshold by 2.
func tighten(thresholds map[string]float64, strategyName string) {
	key := primaryThresholdKey(strategyName)
	if _, ok := thresholds[key]; ok {
		thresholds[key] += 2
	}
}

// primaryThresholdKey names the one threshold each strategy tightens when
// its ROI is marginally positive, following each strategy's own defining
// threshold rather than a single shared knob.
func primaryThresholdKey(strategyName string) string {
	switch strategyName {
	case "public_fade":
		return "min_avg_money_pct"
	case "consensus":
		return "min_money_pct"
	case "total_sweet_spots", "team_market_bias":
		return "min_public_pct"
	case "underdog_ml_value":
		return "min_favorite_money_pct"
	case "signal_combinations":
		return "min_markets_agreeing"
	default:
		return "min_differential"
	}
}
