// Package adapters defines the Source Adapter contract and
// the registry that resolves a closed set of provider variants. Each
// provider lives in its own subpackage (actionnetwork, vsin, sbd, sbr,
// mlbstats, oddsapi) and is added to the registry without any other
// component changing — the "dynamic dispatch over string-typed source
// names" anti-pattern is replaced by this closed
// SourceName enum plus registry, with alias resolution handled once at
// the registry boundary.
package adapters

import (
	"context"
	"time"

	"github.com/aristath/sharpline/internal/model"
)

// SourceName is the closed set of provider variants this system supports.
type SourceName string

const (
	ActionNetwork SourceName = "action_network"
	VSIN          SourceName = "vsin"
	SBD           SourceName = "sbd"
	SBR           SourceName = "sbr"
	MLBStats      SourceName = "mlb_stats"
	OddsAPI       SourceName = "odds_api"
)

// aliases resolves historical/alternate spellings to a canonical
// SourceName, entirely at this boundary — detectors and downstream code
// never need to know an alias existed.
var aliases = map[string]SourceName{
	"sportsbookreview": SBR,
	"sbr":              SBR,
	"sportsbettingdime": SBD,
	"sbd":               SBD,
	"vsin":              VSIN,
	"action_network":    ActionNetwork,
	"actionnetwork":     ActionNetwork,
	"mlb_stats":         MLBStats,
	"mlbstats":          MLBStats,
	"odds_api":          OddsAPI,
	"oddsapi":           OddsAPI,
}

// ResolveSourceName canonicalizes an arbitrary string (as might arrive
// from configuration or an operator control request) into a SourceName.
func ResolveSourceName(raw string) (SourceName, bool) {
	name, ok := aliases[raw]
	return name, ok
}

// Health reports a source's current operating condition.
type Health struct {
	LastSuccessAt      time.Time
	ConsecutiveFailures int
	BudgetRemaining    int
	CircuitState       string
}

// Identity describes a source's static capabilities.
type Identity struct {
	Source           SourceName
	BooksSupported   []string
	MarketsSupported []model.Market
	CadenceSeconds   int
}

// Adapter is the contract every per-provider implementation satisfies.
// Fetch never blocks indefinitely and never returns a wrapped panic: all
// failure modes are one of the model.ErrSource* sentinels, consumed by
// the Circuit Breaker rather than propagated upward.
type Adapter interface {
	Fetch(ctx context.Context, window FetchWindow) ([]model.Observation, error)
	Health() Health
	Identity() Identity
}

// FetchWindow bounds one collection pass. It carries no per-game start
// times: an adapter whose payload includes a game's start drops any
// observation collected at or after it, and the Staging Transformer
// rejects any such row that reaches it.
type FetchWindow struct {
	Since time.Time
	Until time.Time
}
