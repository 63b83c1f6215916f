package outbound

import (
	"time"

	"github.com/aristath/sharpline/internal/model"
)

// recommendationDTO is the wire shape for one Recommendation, kept
// separate from model.Recommendation so the core package never carries
// JSON tags for a format only this interface cares about.
type recommendationDTO struct {
	RunID                string               `json:"run_id"`
	GameID               int64                `json:"game_id"`
	Market               string               `json:"market"`
	Book                 string               `json:"book"`
	Side                 string               `json:"side"`
	FinalConfidence      float64              `json:"final_confidence"`
	ContributingVariants []weightedVariantDTO `json:"contributing_variants"`
	JuiceCheckPassed     bool                 `json:"juice_check_passed"`
	ExpectedROI          *float64             `json:"expected_roi,omitempty"`
	Rank                 int                  `json:"rank"`
}

type weightedVariantDTO struct {
	StrategyName string  `json:"strategy_name"`
	VariantName  string  `json:"variant_name"`
	Weight       float64 `json:"weight"`
	Confidence   float64 `json:"confidence"`
}

func toRecommendationDTO(r model.Recommendation) recommendationDTO {
	variants := make([]weightedVariantDTO, 0, len(r.ContributingVariants))
	for _, v := range r.ContributingVariants {
		variants = append(variants, weightedVariantDTO{
			StrategyName: v.StrategyName,
			VariantName:  v.VariantName,
			Weight:       v.Weight,
			Confidence:   v.Confidence,
		})
	}
	return recommendationDTO{
		RunID:                r.RunID,
		GameID:               r.GameID,
		Market:               string(r.Market),
		Book:                 r.Book,
		Side:                 string(r.Side),
		FinalConfidence:      r.FinalConfidence,
		ContributingVariants: variants,
		JuiceCheckPassed:     r.JuiceCheckPassed,
		ExpectedROI:          r.ExpectedROI,
		Rank:                 r.Rank,
	}
}

// strategyDTO pairs a catalog variant with its most recent backtest
// result.
type strategyDTO struct {
	StrategyName      string             `json:"strategy_name"`
	VariantName       string             `json:"variant_name"`
	DetectorID        string             `json:"detector_id"`
	ApplicableMarkets []string           `json:"applicable_markets"`
	Thresholds        map[string]float64 `json:"thresholds"`
	MinSampleSize     int                `json:"min_sample_size"`
	Status            string             `json:"status"`
	LastTuned         time.Time          `json:"last_tuned"`
	LatestBacktest    *backtestResultDTO `json:"latest_backtest,omitempty"`
}

type backtestResultDTO struct {
	WindowStart        time.Time `json:"window_start"`
	WindowEnd          time.Time `json:"window_end"`
	Market             string    `json:"market"`
	BetsCount          int       `json:"bets_count"`
	Wins               int       `json:"wins"`
	WinRate            float64   `json:"win_rate"`
	ROIAt110           float64   `json:"roi_at_110"`
	ROIUsingActualOdds float64   `json:"roi_using_actual_odds"`
	Drawdown           float64   `json:"drawdown"`
	ConfidenceTier     string    `json:"confidence_tier"`
	SampleSufficient   bool      `json:"sample_sufficient"`
}

func toBacktestResultDTO(r model.BacktestResult) backtestResultDTO {
	return backtestResultDTO{
		WindowStart:        r.WindowStart,
		WindowEnd:          r.WindowEnd,
		Market:             string(r.Market),
		BetsCount:          r.BetsCount,
		Wins:               r.Wins,
		WinRate:            r.WinRate,
		ROIAt110:           r.ROIAt110,
		ROIUsingActualOdds: r.ROIUsingActualOdds,
		Drawdown:           r.Drawdown,
		ConfidenceTier:     string(r.ConfidenceTier),
		SampleSufficient:   r.SampleSufficient,
	}
}

func toMarketStrings(markets []model.Market) []string {
	out := make([]string, 0, len(markets))
	for _, m := range markets {
		out = append(out, string(m))
	}
	return out
}

// healthDTO is the wire shape for GET /healthz.
type healthDTO struct {
	Status            string         `json:"status"`
	Sources           []sourceDTO    `json:"sources"`
	PipelineLagSec    float64        `json:"pipeline_lag_seconds"`
	ArbiterLastRunAt  *time.Time     `json:"arbiter_last_run_at,omitempty"`
}

type sourceDTO struct {
	Name            string    `json:"name"`
	CircuitState    string    `json:"circuit_state"`
	LastSuccessAt   time.Time `json:"last_success_at"`
	BudgetRemaining int       `json:"budget_remaining"`
}

// backtestRequestDTO is the POST /api/backtest request body:
// window_start, window_end, and an optional variant_ids filter.
type backtestRequestDTO struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	VariantIDs  []string  `json:"variant_ids,omitempty"`
}
