package detect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aristath/sharpline/internal/model"
)

func TestBaseConfidence_SaturatesAtOne(t *testing.T) {
	require.InDelta(t, 0.5, baseConfidence(15), 1e-9)
	require.InDelta(t, 1.0, baseConfidence(30), 1e-9)
	require.Equal(t, 1.0, baseConfidence(90), "magnitudes above 30 must saturate, not exceed 1")
	require.InDelta(t, 0.5, baseConfidence(-15), 1e-9, "magnitude is direction-agnostic")
}

func TestTimingBoost_OnlyLateBucketsBoost(t *testing.T) {
	require.Equal(t, 1.0, timingBoost(model.TimingOpening))
	require.Equal(t, 1.0, timingBoost(model.TimingEarly))
	require.Equal(t, 1.2, timingBoost(model.TimingClosing2H))
	require.Equal(t, 1.3, timingBoost(model.TimingClosingHour))
	require.Equal(t, 1.5, timingBoost(model.TimingUltraLate))
}

func TestCredibilityFactor_Bounded(t *testing.T) {
	require.Equal(t, 0.5, credibilityFactor(0))
	require.Equal(t, 1.2, credibilityFactor(100))
	require.InDelta(t, 0.5+0.5*(2.0/3.0), credibilityFactor(2.0), 1e-9)
}

func TestConsensusFactor_MonotonicInBookCount(t *testing.T) {
	require.Equal(t, 1.0, consensusFactor(1))
	require.Greater(t, consensusFactor(3), consensusFactor(1))
	require.Equal(t, 1.3, consensusFactor(100), "must cap at 1.3")
}

func TestReverseLineMovementFactor_RewardsAgreementPenalizesContradiction(t *testing.T) {
	move := 1.5
	betPct := 40.0 // public minority on home
	moneyMinusBet := 5.0
	agree := model.CuratedPoint{LineMovementPrev: &move, BetPct: &betPct, MoneyMinusBet: &moneyMinusBet}
	require.Equal(t, 1.2, reverseLineMovementFactor(agree))

	betPctMajority := 60.0
	moneyMinusBetAway := -5.0
	contradict := model.CuratedPoint{LineMovementPrev: &move, BetPct: &betPctMajority, MoneyMinusBet: &moneyMinusBetAway}
	require.Equal(t, 0.8, reverseLineMovementFactor(contradict))

	neutral := model.CuratedPoint{}
	require.Equal(t, 1.0, reverseLineMovementFactor(neutral))
}

func TestBallparkFactor_UnknownParkIsNeutral(t *testing.T) {
	require.Equal(t, 1.3, ballparkFactor("Coors Field"))
	require.Equal(t, 0.85, ballparkFactor("Oracle Park"))
	require.Equal(t, 1.0, ballparkFactor("Some New Stadium"))
}
