package model

import "time"

// Observation is one raw measurement from one source for one market of one
// game at one moment. Identity is (Source, Book, GameExternalID, Market,
// CollectedAt).
type Observation struct {
	CollectedAt       time.Time
	GameExternalID    string
	Source            string
	Book              string // "UNKNOWN" when the source does not disclose a book
	Market            Market
	Endpoint          string // URL or endpoint the adapter fetched
	SplitValue        string // JSON for moneyline odds, decimal string for spread/total
	RawPayload        []byte // byte-for-byte preserved verbatim payload
	MoneyPct          *float64
	BetPct            *float64
	MoneyBetCount     *int
	BetTicketCount    *int
	IngestionSequence int64 // monotonically increasing per-source sequence, for tie-breaking
	IngestionID       int64 // assigned by the RAW store on write
}

// Game is one scheduled MLB contest.
type Game struct {
	GameStartUTC         time.Time
	GameID               int64
	HomeTeamCanonical    string
	AwayTeamCanonical    string
	GameDateEastern      string // YYYY-MM-DD in America/New_York, part of the natural key
	Park                 string
	MarketSize           MarketSizeTag
	Daypart              Daypart
	HomeScore            *int
	AwayScore            *int
	HomeWin              *bool
	HomeCoverSpread      *bool
	Over                 *bool
	OutcomeResolvedAt    *time.Time
}

// CuratedPoint is the deduplicated, normalized time point for one
// (game, source, book, market).
type CuratedPoint struct {
	CollectedAt       time.Time
	GameID            int64
	Source            string
	Book              string
	Market            Market
	MoneyPct          *float64
	BetPct            *float64
	MoneyMinusBet     *float64
	SplitValue        string
	SharpTag          SharpTag
	TimingBucket      TimingBucket
	QualityScore      float64
	LineMovementPrev  *float64 // line_movement_from_prev, staging-computed
	HoursBeforeGame   float64
	BookCredibility   float64
	IsClosingSnapshot bool
}

// StrategyVariant is one rule configuration in the catalog.
type StrategyVariant struct {
	LastTuned         time.Time
	StrategyName      string
	VariantName       string
	DetectorID        string // detector function identifier, e.g. "sharp_action"
	ApplicableMarkets []Market
	Thresholds        map[string]float64
	MinSampleSize     int
	Status            VariantStatus
}

// Key returns the (strategy_name, variant_name) identity pair as a single
// comparable string, used as a map key throughout the catalog and engine.
func (v StrategyVariant) Key() string {
	return v.StrategyName + "/" + v.VariantName
}

// AppliesTo reports whether the variant is declared for the given market.
func (v StrategyVariant) AppliesTo(m Market) bool {
	for _, applicable := range v.ApplicableMarkets {
		if applicable == m {
			return true
		}
	}
	return false
}

// CandidateSignal is one fired detector output.
type CandidateSignal struct {
	FiredAt             time.Time
	GameID              int64
	Market              Market
	Book                string
	Source              string
	StrategyName        string
	VariantName         string
	Side                Side
	RawConfidence       float64
	ContributingFeatures map[string]float64
	TriggeringPoints    []CuratedPoint
}

// Recommendation is the arbitrated, final output for one (game, market,
// book).
type Recommendation struct {
	RunID              string
	GameID             int64
	Market             Market
	Book               string
	Side               Side
	FinalConfidence    float64
	ContributingVariants []WeightedVariant
	JuiceCheckPassed   bool
	ExpectedROI        *float64
	Rank               int
}

// WeightedVariant names one variant's contribution to a Recommendation's
// merged confidence, along with the historical-edge weight applied.
type WeightedVariant struct {
	StrategyName string
	VariantName  string
	Weight       float64
	Confidence   float64
}

// OutcomeRecord is a completed game's result.
type OutcomeRecord struct {
	ResolvedAt      time.Time
	GameID          int64
	HomeScore       int
	AwayScore       int
	HomeWin         bool
	HomeCoverSpread bool
	Over            bool
}

// BacktestResult is aggregated performance per variant over a window.
type BacktestResult struct {
	WindowStart          time.Time
	WindowEnd            time.Time
	StrategyName         string
	VariantName          string
	Market               Market
	BetsCount            int
	Wins                 int
	WinRate              float64
	ROIAt110             float64
	ROIUsingActualOdds   float64
	Drawdown             float64
	ConfidenceTier       ConfidenceTier
	SampleSufficient     bool
}
