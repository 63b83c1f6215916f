package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStrategyVariant_Key(t *testing.T) {
	v := StrategyVariant{StrategyName: "sharp_action", VariantName: "strong"}
	require.Equal(t, "sharp_action/strong", v.Key())
}

func TestStrategyVariant_AppliesTo(t *testing.T) {
	v := StrategyVariant{ApplicableMarkets: []Market{MarketMoneyline, MarketTotal}}
	require.True(t, v.AppliesTo(MarketMoneyline))
	require.True(t, v.AppliesTo(MarketTotal))
	require.False(t, v.AppliesTo(MarketSpread))
}

func TestStagingReject_Error(t *testing.T) {
	r := StagingReject{Reason: "unknown_team", Detail: "Bosox"}
	require.Equal(t, "staging reject: unknown_team: Bosox", r.Error())
}

func TestCredibilityWeight_KnownBookReturnsTableValue(t *testing.T) {
	require.Equal(t, 1.5, CredibilityWeight("DraftKings"))
}

func TestCredibilityWeight_UnknownBookDefaultsToOne(t *testing.T) {
	require.Equal(t, 1.0, CredibilityWeight("SomeObscureBook"))
}
