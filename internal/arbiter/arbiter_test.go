package arbiter

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/catalog"
	"github.com/aristath/sharpline/internal/clock"
	"github.com/aristath/sharpline/internal/curated"
	"github.com/aristath/sharpline/internal/detect"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
	"github.com/aristath/sharpline/internal/storage/games"
)

const arbiterTestTimeLayout = "2006-01-02T15:04:05.000Z"

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: "file::memory:?cache=shared", Name: "test"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(storage.CuratedSchema))
	require.NoError(t, db.Migrate(storage.SignalSchema))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestArbiter(t *testing.T, db *storage.DB, cfg Config, now time.Time) (*Arbiter, *games.Store) {
	t.Helper()
	gameStore := games.New(db)
	a := New(db, gameStore, clock.Fixed{At: now}, cfg, zerolog.Nop())
	return a, gameStore
}

func mkSignal(gameID int64, market model.Market, book, strategy, variant string, side model.Side, conf float64, splitValue string) model.CandidateSignal {
	return model.CandidateSignal{
		GameID:        gameID,
		Market:        market,
		Book:          book,
		Source:        "vsin",
		StrategyName:  strategy,
		VariantName:   variant,
		Side:          side,
		RawConfidence: conf,
		FiredAt:       time.Now(),
		TriggeringPoints: []model.CuratedPoint{
			{SplitValue: splitValue},
		},
	}
}

// Scenario A — single Sharp Action STRONG signal, no conflict: one
// Recommendation with confidence >= 0.7.
func TestRun_SingleStrongSignal(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	sig := mkSignal(gameID, model.MarketMoneyline, "Circa", "sharp_action", "STRONG", model.SideHome, 0.75, `{"home":-120,"away":110}`)

	_, recs, err := a.Run(ctx, []model.CandidateSignal{sig}, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, model.SideHome, recs[0].Side)
	require.GreaterOrEqual(t, recs[0].FinalConfidence, 0.7)
	require.Equal(t, 1, recs[0].Rank)
}

// insertCuratedClosingPoint inserts one curated_points row and registers
// it as the closing snapshot for its partition, mirroring a real
// detect.Engine input rather than a hand-built CandidateSignal.
func insertCuratedClosingPoint(t *testing.T, db *storage.DB, gameID int64, source, book string, market model.Market, moneyPct, betPct, credibility float64, bucket model.TimingBucket) {
	t.Helper()
	moneyMinusBet := moneyPct - betPct
	res, err := db.Conn().Exec(`
		INSERT INTO curated_points
			(game_id, source, book, market, collected_at, money_pct, bet_pct, money_minus_bet,
			 split_value, sharp_tag, timing_bucket, quality_score, hours_before_game, book_credibility, line_movement_prev)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', 'NONE', ?, 0.9, 0.1, ?, NULL)
	`, gameID, source, book, string(market), time.Now().UTC().Format(arbiterTestTimeLayout),
		moneyPct, betPct, moneyMinusBet, string(bucket), credibility)
	require.NoError(t, err)
	pointID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = db.Conn().Exec(`
		INSERT INTO curated_closing_snapshots (game_id, source, book, market, point_id)
		VALUES (?, ?, ?, ?, ?)
	`, gameID, source, book, string(market), pointID)
	require.NoError(t, err)
}

// TestRun_SingleStrongSignalEndToEnd drives Scenario A's literal curated
// inputs (money_pct=72, bet_pct=55, money_minus_bet=17, CLOSING_HOUR, book
// Circa at its fixed credibility weight of 2.3) through the real
// detect.Engine before the Arbiter, instead of a hardcoded RawConfidence.
// With these inputs and no corroborating book, the confidence pipeline
// (base 17/30 * credibility ~0.883 * timing 1.3) lands at ~0.65: below the
// 0.7 bound asserted against a hand-fed 0.75 confidence in
// TestRun_SingleStrongSignal above. That test still documents the
// Arbiter's own merge formula in isolation; this one documents what the
// end-to-end pipeline actually produces for the same scenario, so a
// future change to the confidence constants is caught here rather than
// masked by a hardcoded input.
func TestRun_SingleStrongSignalEndToEnd(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	gameStore := games.New(db)
	gameStart := time.Now().Add(2 * time.Hour)
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", gameStart, "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	insertCuratedClosingPoint(t, db, gameID, "vsin", "Circa", model.MarketMoneyline, 72, 55, 2.3, model.TimingClosingHour)

	reader := curated.NewReader(db)
	engine := detect.New(reader, gameStore, clock.Real{}, 0, nil, zerolog.Nop())
	variant := model.StrategyVariant{
		StrategyName:      "sharp_action",
		VariantName:       "STRONG",
		DetectorID:        catalog.DetectorSharpAction,
		ApplicableMarkets: []model.Market{model.MarketMoneyline},
		Thresholds:        map[string]float64{"min_differential": 15},
		Status:            model.StatusActive,
	}

	signals, err := engine.Evaluate(ctx, time.Now(), gameStart.Add(time.Hour), []model.StrategyVariant{variant})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	require.Equal(t, model.SideHome, signals[0].Side)

	a, _ := newTestArbiter(t, db, Config{}, time.Now())
	_, recs, err := a.Run(ctx, signals, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, model.SideHome, recs[0].Side)
	require.InDelta(t, 0.6509, recs[0].FinalConfidence, 0.01,
		"documents the real pipeline's output for this scenario; it falls short of the 0.7 bound asserted in TestRun_SingleStrongSignal's hand-fed version")
}

// Scenario B — juice filter rejects a moneyline pick worse than -160.
func TestRun_JuiceFilterRejects(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	sig := mkSignal(gameID, model.MarketMoneyline, "Circa", "sharp_action", "STRONG", model.SideHome, 0.75, `{"home":-185,"away":155}`)

	summary, recs, err := a.Run(ctx, []model.CandidateSignal{sig}, nil, nil)
	require.NoError(t, err)
	require.Empty(t, recs)
	require.Equal(t, 1, summary.DroppedJuice)
}

// Scenario E — two disagreeing signals within margin are dropped as
// ambiguous.
func TestRun_AmbiguousGroupDropped(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	home := mkSignal(gameID, model.MarketSpread, "DK", "sharp_action", "MODERATE", model.SideHome, 0.62, "")
	away := mkSignal(gameID, model.MarketSpread, "DK", "consensus", "HEAVY", model.SideAway, 0.58, "")

	summary, recs, err := a.Run(ctx, []model.CandidateSignal{home, away}, nil, nil)
	require.NoError(t, err)
	require.Empty(t, recs)
	require.Equal(t, 1, summary.DroppedAmbiguous)
}

// Agreeing signals on the same side merge via 1 - prod(1 - c_i*w_i) and
// their confidence exceeds any single contributor's.
func TestRun_AgreeingSignalsMerge(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	s1 := mkSignal(gameID, model.MarketTotal, "DK", "sharp_action", "STRONG", model.SideOver, 0.6, "")
	s2 := mkSignal(gameID, model.MarketTotal, "DK", "consensus", "HEAVY", model.SideOver, 0.5, "")

	_, recs, err := a.Run(ctx, []model.CandidateSignal{s1, s2}, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.InDelta(t, 1-(1-0.6)*(1-0.5), recs[0].FinalConfidence, 1e-9)
	require.Len(t, recs[0].ContributingVariants, 2)
}

// SHADOW and DISABLED variants never produce a Recommendation even if
// they fired.
func TestRun_ShadowAndDisabledDropped(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	shadowSig := mkSignal(gameID, model.MarketMoneyline, "Circa", "sharp_action", "SHADOWED", model.SideHome, 0.9, `{"home":-120,"away":110}`)
	status := func(strategy, variant string) model.VariantStatus {
		return model.StatusShadow
	}

	summary, recs, err := a.Run(ctx, []model.CandidateSignal{shadowSig}, status, nil)
	require.NoError(t, err)
	require.Empty(t, recs)
	require.Equal(t, 1, summary.DroppedShadow)
}

// Recommendations within one run are ordered by non-increasing confidence
// and ranks are assigned 1..n in that order.
func TestRun_RankedByConfidenceDescending(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{ConfidenceFloor: 0.1}, time.Now())
	ctx := context.Background()
	g1, err := gameStore.ResolveOrCreate(ctx, "HOME1", "AWAY1", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)
	g2, err := gameStore.ResolveOrCreate(ctx, "HOME2", "AWAY2", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	lower := mkSignal(g1, model.MarketTotal, "DK", "sharp_action", "WEAK", model.SideOver, 0.2, "")
	higher := mkSignal(g2, model.MarketTotal, "DK", "sharp_action", "STRONG", model.SideOver, 0.9, "")

	_, recs, err := a.Run(ctx, []model.CandidateSignal{lower, higher}, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.GreaterOrEqual(t, recs[0].FinalConfidence, recs[1].FinalConfidence)
	require.Equal(t, 1, recs[0].Rank)
	require.Equal(t, 2, recs[1].Rank)
}

func TestRun_UniquePerGameMarketBook(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	s1 := mkSignal(gameID, model.MarketMoneyline, "DK", "sharp_action", "STRONG", model.SideHome, 0.8, `{"home":-120,"away":110}`)
	s2 := mkSignal(gameID, model.MarketSpread, "DK", "sharp_action", "STRONG", model.SideHome, 0.8, "")

	_, recs, err := a.Run(ctx, []model.CandidateSignal{s1, s2}, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	seen := map[string]bool{}
	for _, r := range recs {
		key := string(r.Market) + "|" + r.Book
		require.False(t, seen[key], "duplicate (market, book) group in one run")
		seen[key] = true
	}
}

// ExpectedROI is populated from a wired EdgeROIFunc, weighted the same
// way as the merged confidence, and left nil when no lookup is wired.
func TestRun_ExpectedROIPopulatedFromEdgeROIFunc(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	sig := mkSignal(gameID, model.MarketMoneyline, "Circa", "sharp_action", "STRONG", model.SideHome, 0.75, `{"home":-120,"away":110}`)

	a.SetROILookup(func(strategyName, variantName string, market model.Market) (float64, bool) {
		require.Equal(t, "sharp_action", strategyName)
		require.Equal(t, "STRONG", variantName)
		require.Equal(t, model.MarketMoneyline, market)
		return 0.08, true
	})

	_, recs, err := a.Run(ctx, []model.CandidateSignal{sig}, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].ExpectedROI)
	require.InDelta(t, 0.08, *recs[0].ExpectedROI, 1e-9)
}

func TestRun_ExpectedROINilWithoutLookupWired(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	sig := mkSignal(gameID, model.MarketMoneyline, "Circa", "sharp_action", "STRONG", model.SideHome, 0.75, `{"home":-120,"away":110}`)

	_, recs, err := a.Run(ctx, []model.CandidateSignal{sig}, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Nil(t, recs[0].ExpectedROI)
}

func TestRun_ExpectedROIWeightedAcrossAgreeingVariants(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	s1 := mkSignal(gameID, model.MarketTotal, "DK", "sharp_action", "STRONG", model.SideOver, 0.6, "")
	s2 := mkSignal(gameID, model.MarketTotal, "DK", "consensus", "HEAVY", model.SideOver, 0.5, "")

	a.SetROILookup(func(strategyName, variantName string, market model.Market) (float64, bool) {
		if strategyName == "sharp_action" {
			return 0.10, true
		}
		return 0, false
	})

	_, recs, err := a.Run(ctx, []model.CandidateSignal{s1, s2}, nil, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].ExpectedROI)
	require.InDelta(t, 0.10, *recs[0].ExpectedROI, 1e-9)
}

func TestLatestRecommendations_FiltersByConfidenceFloor(t *testing.T) {
	db := openTestDB(t)
	a, gameStore := newTestArbiter(t, db, Config{ConfidenceFloor: 0.1}, time.Now())
	ctx := context.Background()
	gameID, err := gameStore.ResolveOrCreate(ctx, "HOME", "AWAY", "2025-07-01", time.Now().Add(2*time.Hour), "", model.MarketSizeMedium, model.DaypartNight)
	require.NoError(t, err)

	sig := mkSignal(gameID, model.MarketTotal, "DK", "sharp_action", "STRONG", model.SideOver, 0.8, "")
	_, _, err = a.Run(ctx, []model.CandidateSignal{sig}, nil, nil)
	require.NoError(t, err)

	high, err := a.LatestRecommendations(ctx, 0.9, 0)
	require.NoError(t, err)
	require.Empty(t, high)

	low, err := a.LatestRecommendations(ctx, 0.1, 0)
	require.NoError(t, err)
	require.Len(t, low, 1)
}
