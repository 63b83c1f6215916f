// Package outcomes implements the Game Outcome Resolver:
// polling the MLB Stats source's RAW rows for final scores and filling
// each Game's OutcomeRecord fields.
package outcomes

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/curated"
	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/staging"
	"github.com/aristath/sharpline/internal/storage/games"
	"github.com/aristath/sharpline/internal/storage/raw"
)

const sourceMLBStats = "mlb_stats"

var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// rawGame mirrors the fields the mlbstats adapter marshals into
// RawPayload, just enough of it for outcome resolution.
type rawGame struct {
	GameDate time.Time `json:"gameDate"`
	Status   struct {
		AbstractGameState string `json:"abstractGameState"`
	} `json:"status"`
	Teams struct {
		Home wireTeam `json:"home"`
		Away wireTeam `json:"away"`
	} `json:"teams"`
}

type wireTeam struct {
	Score *int `json:"score"`
	Team  struct {
		Name string `json:"name"`
	} `json:"team"`
}

// Resolver polls mlb_stats RAW rows for completed games and fills
// OutcomeRecord fields on the matching Game.
type Resolver struct {
	rawStore *raw.Store
	games    *games.Store
	curated  *curated.Reader
	clock    clockFunc
	log      zerolog.Logger
}

type clockFunc func() time.Time

// New constructs a Resolver.
func New(rawStore *raw.Store, gameStore *games.Store, curatedReader *curated.Reader, now func() time.Time, log zerolog.Logger) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		rawStore: rawStore,
		games:    gameStore,
		curated:  curatedReader,
		clock:    now,
		log:      log.With().Str("component", "outcome_resolver").Logger(),
	}
}

// Result summarizes one Run invocation.
type Result struct {
	Resolved        int
	Unmatched       int
	LastIngestionID int64
}

// Run scans mlb_stats RAW rows with ingestion_id > afterIngestionID for
// finished games and fills their OutcomeRecord.
func (r *Resolver) Run(ctx context.Context, afterIngestionID int64, limit int) (Result, error) {
	observations, err := r.rawStore.SinceSource(ctx, sourceMLBStats, afterIngestionID, limit)
	if err != nil {
		return Result{}, fmt.Errorf("read mlb_stats raw window: %w", err)
	}
	if len(observations) == 0 {
		return Result{LastIngestionID: afterIngestionID}, nil
	}

	var result Result
	for _, obs := range observations {
		result.LastIngestionID = obs.IngestionID

		var g rawGame
		if err := json.Unmarshal(obs.RawPayload, &g); err != nil {
			r.log.Warn().Err(err).Int64("ingestion_id", obs.IngestionID).Msg("unparseable mlb_stats payload")
			continue
		}
		if g.Status.AbstractGameState != "Final" {
			continue
		}
		if g.Teams.Home.Score == nil || g.Teams.Away.Score == nil {
			continue
		}

		homeCanon, ok := staging.CanonicalTeam(g.Teams.Home.Team.Name)
		if !ok {
			result.Unmatched++
			continue
		}
		awayCanon, ok := staging.CanonicalTeam(g.Teams.Away.Team.Name)
		if !ok {
			result.Unmatched++
			continue
		}
		gameDateEastern := g.GameDate.In(eastern).Format("2006-01-02")

		gameID, found, err := r.games.FindByNaturalKey(ctx, homeCanon, awayCanon, gameDateEastern)
		if err != nil {
			return Result{}, fmt.Errorf("find game by natural key: %w", err)
		}
		if !found {
			result.Unmatched++
			continue
		}

		rec, err := r.buildOutcome(ctx, gameID, *g.Teams.Home.Score, *g.Teams.Away.Score)
		if err != nil {
			return Result{}, fmt.Errorf("build outcome for game %d: %w", gameID, err)
		}
		if err := r.games.FillOutcome(ctx, gameID, rec); err != nil {
			return Result{}, fmt.Errorf("fill outcome for game %d: %w", gameID, err)
		}
		result.Resolved++
	}

	r.log.Info().Int("resolved", result.Resolved).Int("unmatched", result.Unmatched).
		Int64("through_ingestion_id", result.LastIngestionID).Msg("outcome resolver run complete")
	return result, nil
}

// buildOutcome derives home_win/home_cover_spread/over from final scores
// and the game's closing spread/total lines, averaged across whichever
// books carried a closing snapshot for those markets. The spread/total
// line used for grading isn't pinned to one book; consensus across
// books is used here rather than picking a single book.
func (r *Resolver) buildOutcome(ctx context.Context, gameID int64, homeScore, awayScore int) (model.OutcomeRecord, error) {
	rec := model.OutcomeRecord{
		GameID:     gameID,
		HomeScore:  homeScore,
		AwayScore:  awayScore,
		HomeWin:    homeScore > awayScore,
		ResolvedAt: r.clock(),
	}

	points, err := r.curated.ClosingSnapshotsForGame(ctx, gameID)
	if err != nil {
		return model.OutcomeRecord{}, err
	}

	var spreadSum, totalSum float64
	var spreadN, totalN int
	for _, p := range points {
		v, ok := parseDecimal(p.SplitValue)
		if !ok {
			continue
		}
		switch p.Market {
		case model.MarketSpread:
			spreadSum += v
			spreadN++
		case model.MarketTotal:
			totalSum += v
			totalN++
		}
	}

	if spreadN > 0 {
		homeSpread := spreadSum / float64(spreadN)
		rec.HomeCoverSpread = float64(homeScore-awayScore)+homeSpread > 0
	}
	if totalN > 0 {
		totalLine := totalSum / float64(totalN)
		rec.Over = float64(homeScore+awayScore) > totalLine
	}

	return rec, nil
}

func parseDecimal(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
