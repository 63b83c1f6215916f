package model

import "errors"

// Sentinel errors used across the ingestion and pipeline layers. Each maps
// directly to the error taxonomy. Adapters and the circuit
// breaker type-switch or errors.Is against these; none of them propagate
// past the Source Adapter / Circuit Breaker boundary except as counters
// surfaced through health().
var (
	// ErrSourceUnavailable signals a network/HTTP failure reaching the
	// provider.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSourceRateLimited signals the provider itself signaled a
	// throttle (as opposed to our own token bucket refusing the call).
	ErrSourceRateLimited = errors.New("source rate limited")
	// ErrSourceParseError signals a response was received but its payload
	// could not be recognized.
	ErrSourceParseError = errors.New("source parse error")
	// ErrSourceEmpty signals a valid response with no data to emit.
	ErrSourceEmpty = errors.New("source empty")

	// ErrOutcomeMissing signals a game has no resolved OutcomeRecord yet;
	// the backtester excludes it from the sample rather than halting.
	ErrOutcomeMissing = errors.New("outcome missing")

	// ErrAmbiguousArbitration signals a (game, market, book) group whose
	// competing sides did not clear the arbitration margin; the group is
	// dropped rather than guessed.
	ErrAmbiguousArbitration = errors.New("ambiguous arbitration")

	// ErrJuiceFilterReject signals a Recommendation was dropped because
	// its moneyline odds were worse than the configured floor.
	ErrJuiceFilterReject = errors.New("juice filter reject")
)

// StagingReject records why one normalized row was quarantined instead of
// promoted to curated.
type StagingReject struct {
	Reason      string // e.g. "unknown_team", "unparseable_odds"
	Source      string
	Book        string
	RawPayload  []byte
	Detail      string
	IngestionID int64
}

func (r StagingReject) Error() string {
	return "staging reject: " + r.Reason + ": " + r.Detail
}
