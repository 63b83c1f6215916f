package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(storage.StrategySchema))
	t.Cleanup(func() { _ = db.Close() })
	return New(db, zerolog.Nop())
}

func TestSeed_DoesNotOverwriteExisting(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	v := model.StrategyVariant{
		StrategyName:      "sharp_action",
		VariantName:       "strong",
		DetectorID:        DetectorSharpAction,
		ApplicableMarkets: []model.Market{model.MarketMoneyline},
		Thresholds:        map[string]float64{"min_differential": 15},
		MinSampleSize:     10,
		Status:            model.StatusActive,
		LastTuned:         time.Now(),
	}
	require.NoError(t, cat.Seed(ctx, []model.StrategyVariant{v}))

	require.NoError(t, cat.ApplyTuning(ctx, "sharp_action", "strong", model.StatusShadow,
		map[string]float64{"min_differential": 17}, "roi marginal", time.Now()))

	require.NoError(t, cat.Seed(ctx, []model.StrategyVariant{v}))

	got, err := cat.Get(ctx, "sharp_action", "strong")
	require.NoError(t, err)
	require.Equal(t, model.StatusShadow, got.Status)
	require.Equal(t, float64(17), got.Thresholds["min_differential"])
}

func TestSnapshot_SortedDeterministically(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.Seed(ctx, BuiltinVariants()))

	snap1, err := cat.Snapshot(ctx)
	require.NoError(t, err)
	snap2, err := cat.Snapshot(ctx)
	require.NoError(t, err)

	require.Equal(t, len(snap1), len(snap2))
	for i := range snap1 {
		require.Equal(t, snap1[i].Key(), snap2[i].Key())
	}
	for i := 1; i < len(snap1); i++ {
		require.LessOrEqual(t, snap1[i-1].Key(), snap1[i].Key())
	}
}

func TestApplyTuning_RecordsHistory(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	v := model.StrategyVariant{
		StrategyName:      "consensus",
		VariantName:       "heavy",
		DetectorID:        DetectorConsensus,
		ApplicableMarkets: []model.Market{model.MarketTotal},
		Thresholds:        map[string]float64{"min_money_pct": 65, "min_bet_pct": 65},
		MinSampleSize:     10,
		Status:            model.StatusActive,
		LastTuned:         time.Now(),
	}
	require.NoError(t, cat.Seed(ctx, []model.StrategyVariant{v}))
	require.NoError(t, cat.ApplyTuning(ctx, "consensus", "heavy", model.StatusActive,
		map[string]float64{"min_money_pct": 67, "min_bet_pct": 67}, "roi positive, tighten", time.Now()))

	history, err := cat.TuningHistory(ctx, "consensus", "heavy")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "roi positive, tighten", history[0].Reason)
}

func TestRecordAndLatestBacktestResult(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	r := model.BacktestResult{
		WindowStart:        time.Now().Add(-90 * 24 * time.Hour),
		WindowEnd:           time.Now(),
		StrategyName:        "sharp_action",
		VariantName:         "strong",
		Market:               model.MarketMoneyline,
		BetsCount:            42,
		Wins:                 24,
		WinRate:              24.0 / 42.0,
		ROIAt110:             0.08,
		ROIUsingActualOdds:   0.06,
		ConfidenceTier:       model.TierHigh,
		SampleSufficient:     true,
	}
	require.NoError(t, cat.RecordBacktestResult(ctx, r))

	got, found, err := cat.LatestBacktestResult(ctx, "sharp_action", "strong")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 42, got.BetsCount)

	_, found, err = cat.LatestBacktestResult(ctx, "sharp_action", "nonexistent")
	require.NoError(t, err)
	require.False(t, found)
}
