package tuner

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(storage.StrategySchema))
	t.Cleanup(func() { _ = db.Close() })
	return catalog.New(db, zerolog.Nop())
}

func seedVariant(t *testing.T, cat *catalog.Catalog, strategy, variant string, thresholds map[string]float64) {
	t.Helper()
	v := model.StrategyVariant{
		StrategyName:      strategy,
		VariantName:       variant,
		DetectorID:        strategy,
		ApplicableMarkets: []model.Market{model.MarketMoneyline},
		Thresholds:        thresholds,
		MinSampleSize:     10,
		Status:            model.StatusActive,
		LastTuned:         time.Now(),
	}
	require.NoError(t, cat.Seed(context.Background(), []model.StrategyVariant{v}))
}

func recordResult(t *testing.T, cat *catalog.Catalog, strategy, variant string, roi float64, tier model.ConfidenceTier) {
	t.Helper()
	r := model.BacktestResult{
		WindowStart:      time.Now().Add(-90 * 24 * time.Hour),
		WindowEnd:        time.Now(),
		StrategyName:     strategy,
		VariantName:      variant,
		Market:           model.MarketMoneyline,
		BetsCount:        200,
		ROIAt110:         roi,
		ConfidenceTier:   tier,
		SampleSufficient: true,
	}
	require.NoError(t, cat.RecordBacktestResult(context.Background(), r))
}

func TestTune_HighROIAndHighConfidenceLeavesThresholdsUnchanged(t *testing.T) {
	cat := openTestCatalog(t)
	seedVariant(t, cat, "sharp_action", "strong", map[string]float64{"min_differential": 15})
	recordResult(t, cat, "sharp_action", "strong", 0.08, model.TierHigh)

	tu := New(cat, clock.Real{}, zerolog.Nop())
	result, err := tu.Tune(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Evaluated)
	require.Equal(t, 0, result.Tuned)

	v, err := cat.Get(context.Background(), "sharp_action", "strong")
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, v.Status)
	require.Equal(t, float64(15), v.Thresholds["min_differential"])
}

func TestTune_MarginalROITightens(t *testing.T) {
	cat := openTestCatalog(t)
	seedVariant(t, cat, "sharp_action", "moderate", map[string]float64{"min_differential": 10})
	recordResult(t, cat, "sharp_action", "moderate", 0.02, model.TierMedium)

	tu := New(cat, clock.Real{}, zerolog.Nop())
	result, err := tu.Tune(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Tuned)

	v, err := cat.Get(context.Background(), "sharp_action", "moderate")
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, v.Status)
	require.Equal(t, float64(12), v.Thresholds["min_differential"])
}

func TestTune_StronglyNegativeROIDisables(t *testing.T) {
	cat := openTestCatalog(t)
	seedVariant(t, cat, "consensus", "heavy", map[string]float64{"min_money_pct": 65})
	recordResult(t, cat, "consensus", "heavy", -0.10, model.TierLow)

	tu := New(cat, clock.Real{}, zerolog.Nop())
	_, err := tu.Tune(context.Background())
	require.NoError(t, err)

	v, err := cat.Get(context.Background(), "consensus", "heavy")
	require.NoError(t, err)
	require.Equal(t, model.StatusDisabled, v.Status)
}

func TestTune_InsufficientSampleSkipsEvaluation(t *testing.T) {
	cat := openTestCatalog(t)
	seedVariant(t, cat, "public_fade", "weak", map[string]float64{"min_avg_money_pct": 60})
	r := model.BacktestResult{
		StrategyName:     "public_fade",
		VariantName:      "weak",
		BetsCount:        5,
		ROIAt110:         -0.2,
		SampleSufficient: false,
	}
	require.NoError(t, cat.RecordBacktestResult(context.Background(), r))

	tu := New(cat, clock.Real{}, zerolog.Nop())
	result, err := tu.Tune(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Evaluated)
	require.Equal(t, 0, result.Tuned)
}
