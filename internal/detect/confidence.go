package detect

import "github.com/aristath/sharpline/internal/model"

// baseConfidence normalizes a differential/move magnitude to [0,1]. 30
// points is treated as a maximal observed differential for MLB money/bet
// splits; larger magnitudes saturate rather than exceed 1.
func baseConfidence(magnitude float64) float64 {
	v := magnitude
	if v < 0 {
		v = -v
	}
	v /= 30.0
	return clamp01(v)
}

// timingBoost applies the fixed timing-bucket multipliers.
func timingBoost(bucket model.TimingBucket) float64 {
	switch bucket {
	case model.TimingClosing2H:
		return 1.2
	case model.TimingClosingHour:
		return 1.3
	case model.TimingUltraLate:
		return 1.5
	default:
		return 1.0
	}
}

// credibilityFactor maps a book's fixed credibility weight (range roughly
// [1.0, 3.0]) into a bounded confidence multiplier.
func credibilityFactor(weight float64) float64 {
	f := 0.5 + 0.5*(weight/3.0)
	if f > 1.2 {
		f = 1.2
	}
	if f < 0.5 {
		f = 0.5
	}
	return f
}

// consensusFactor rewards agreement across more books for the same market.
func consensusFactor(bookCount int) float64 {
	f := 1.0 + 0.05*float64(bookCount-1)
	if f > 1.3 {
		f = 1.3
	}
	if f < 1.0 {
		f = 1.0
	}
	return f
}

// reverseLineMovementFactor implements reverse-line-movement validation:
// a line move against the public that agrees with the sharp side earns
// ×1.2; a move with the public despite an opposing sharp tag earns ×0.8.
func reverseLineMovementFactor(p model.CuratedPoint) float64 {
	if p.LineMovementPrev == nil || p.BetPct == nil || p.MoneyMinusBet == nil {
		return 1.0
	}
	moveTowardHome := *p.LineMovementPrev > 0
	publicHome := *p.BetPct >= 50
	sharpHome := *p.MoneyMinusBet >= 0

	if moveTowardHome != publicHome && sharpHome == moveTowardHome {
		return 1.2
	}
	if moveTowardHome == publicHome && sharpHome != moveTowardHome {
		return 0.8
	}
	return 1.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
