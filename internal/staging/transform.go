// Package staging implements the Staging Transformer:
// team canonicalization, timezone normalization, odds parsing, derived
// fields, and per-batch deduplication over newly written RAW rows.
package staging

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
	"github.com/aristath/sharpline/internal/storage/games"
	"github.com/aristath/sharpline/internal/storage/raw"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Transformer consumes new RAW rows and produces normalized Staging rows,
// quarantining anything it cannot make sense of.
type Transformer struct {
	rawStore    *raw.Store
	stagingDB   *storage.DB
	games       *games.Store
	log         zerolog.Logger
}

// New constructs a Transformer.
func New(rawStore *raw.Store, stagingDB *storage.DB, gameStore *games.Store, log zerolog.Logger) *Transformer {
	return &Transformer{
		rawStore:  rawStore,
		stagingDB: stagingDB,
		games:     gameStore,
		log:       log.With().Str("component", "staging_transformer").Logger(),
	}
}

// Result summarizes one Run invocation.
type Result struct {
	Accepted        int
	Rejected        int
	LastIngestionID int64
}

// Run transforms every RAW row with ingestion_id > afterIngestionID, up to
// limit rows, and returns the high-water mark to resume from next time.
func (t *Transformer) Run(ctx context.Context, afterIngestionID int64, limit int) (Result, error) {
	observations, err := t.rawStore.Since(ctx, afterIngestionID, limit)
	if err != nil {
		return Result{}, fmt.Errorf("read raw window: %w", err)
	}
	if len(observations) == 0 {
		return Result{LastIngestionID: afterIngestionID}, nil
	}

	normalized, rejects, err := t.normalizeAll(ctx, observations)
	if err != nil {
		return Result{}, err
	}

	deduped := dedupeBatch(normalized)

	var result Result
	for _, row := range deduped {
		if err := t.insert(ctx, row); err != nil {
			return Result{}, fmt.Errorf("insert staging row: %w", err)
		}
		result.Accepted++
	}
	for _, rej := range rejects {
		if err := t.insertReject(ctx, rej); err != nil {
			return Result{}, fmt.Errorf("insert staging reject: %w", err)
		}
		result.Rejected++
	}

	result.LastIngestionID = observations[len(observations)-1].IngestionID
	t.log.Info().Int("accepted", result.Accepted).Int("rejected", result.Rejected).
		Int64("through_ingestion_id", result.LastIngestionID).Msg("staging run complete")
	return result, nil
}

// stagingRow is the normalized, not-yet-deduplicated output row, carrying
// enough context (ingestion_sequence) for the dedup pass.
type stagingRow struct {
	point             model.CuratedPoint
	gameID            int64
	ingestionSequence int64
	lineValue         float64
	hasLineValue      bool
}

func (t *Transformer) normalizeAll(ctx context.Context, observations []model.Observation) ([]stagingRow, []model.StagingReject, error) {
	var rows []stagingRow
	var rejects []model.StagingReject

	for _, obs := range observations {
		row, rej, err := t.normalizeOne(ctx, obs)
		if err != nil {
			return nil, nil, err
		}
		if rej != nil {
			rejects = append(rejects, *rej)
			continue
		}
		rows = append(rows, *row)
	}
	return rows, rejects, nil
}

func (t *Transformer) normalizeOne(ctx context.Context, obs model.Observation) (*stagingRow, *model.StagingReject, error) {
	away, home, ok := splitMatchup(obs.GameExternalID)
	if !ok {
		return nil, &model.StagingReject{
			Reason: "unknown_team", Source: obs.Source, Book: obs.Book,
			Detail: fmt.Sprintf("unparseable matchup %q", obs.GameExternalID), IngestionID: obs.IngestionID,
		}, nil
	}
	awayCanon, ok := CanonicalTeam(away)
	if !ok {
		return nil, &model.StagingReject{
			Reason: "unknown_team", Source: obs.Source, Book: obs.Book,
			Detail: fmt.Sprintf("unrecognized away team %q", away), IngestionID: obs.IngestionID,
		}, nil
	}
	homeCanon, ok := CanonicalTeam(home)
	if !ok {
		return nil, &model.StagingReject{
			Reason: "unknown_team", Source: obs.Source, Book: obs.Book,
			Detail: fmt.Sprintf("unrecognized home team %q", home), IngestionID: obs.IngestionID,
		}, nil
	}

	collectedAt := obs.CollectedAt.UTC()
	gameDateEastern := collectedAt.In(eastern).Format("2006-01-02")

	gameID, err := t.games.ResolveOrCreate(ctx, homeCanon, awayCanon, gameDateEastern,
		collectedAt.Add(3*time.Hour), "", MarketSizeFor(homeCanon), dayOfWeekDaypart(collectedAt))
	if err != nil {
		return nil, nil, fmt.Errorf("resolve game: %w", err)
	}

	game, err := t.games.Get(ctx, gameID)
	if err != nil {
		return nil, nil, fmt.Errorf("load game %d: %w", gameID, err)
	}

	hoursBefore := HoursBeforeGame(collectedAt, game.GameStartUTC)
	if hoursBefore <= 0 {
		return nil, &model.StagingReject{
			Reason: "post_game_start", Source: obs.Source, Book: obs.Book,
			Detail: "collected_at at or after game_start", IngestionID: obs.IngestionID,
		}, nil
	}

	splitValue, lineValue, hasLineValue, parseOK := parseSplit(obs.Market, obs.SplitValue)
	if !parseOK {
		return nil, &model.StagingReject{
			Reason: "unparseable_odds", Source: obs.Source, Book: obs.Book,
			Detail: fmt.Sprintf("market=%s split_value=%q", obs.Market, obs.SplitValue), IngestionID: obs.IngestionID,
		}, nil
	}

	var moneyMinusBet *float64
	if obs.MoneyPct != nil && obs.BetPct != nil {
		diff := *obs.MoneyPct - *obs.BetPct
		moneyMinusBet = &diff
	}

	point := model.CuratedPoint{
		CollectedAt:     collectedAt,
		GameID:          gameID,
		Source:          obs.Source,
		Book:            obs.Book,
		Market:          obs.Market,
		MoneyPct:        obs.MoneyPct,
		BetPct:          obs.BetPct,
		MoneyMinusBet:   moneyMinusBet,
		SplitValue:      splitValue,
		TimingBucket:    TimingBucketFor(hoursBefore),
		HoursBeforeGame: hoursBefore,
		BookCredibility: model.CredibilityWeight(obs.Book),
	}

	return &stagingRow{
		point:             point,
		gameID:            gameID,
		ingestionSequence: obs.IngestionSequence,
		lineValue:         lineValue,
		hasLineValue:      hasLineValue,
	}, nil, nil
}

func dayOfWeekDaypart(t time.Time) model.Daypart {
	hour := t.In(eastern).Hour()
	switch {
	case hour < 16:
		return model.DaypartDay
	case hour < 18:
		return model.DaypartTwilight
	case hour < 22:
		return model.DaypartNight
	default:
		return model.DaypartPrimetime
	}
}

func splitMatchup(externalID string) (away, home string, ok bool) {
	for i := 0; i+1 < len(externalID); i++ {
		if externalID[i] == '@' {
			return externalID[:i], externalID[i+1:], true
		}
	}
	return "", "", false
}

func parseSplit(market model.Market, raw string) (splitValue string, lineValue float64, hasLineValue bool, ok bool) {
	switch market {
	case model.MarketMoneyline:
		homeOdds, _, parsed := ParseMoneylineSplit(raw)
		if !parsed {
			return "", 0, false, false
		}
		return raw, float64(homeOdds), true, true
	default:
		v, parsed := ParseLineValue(raw)
		if !parsed {
			return "", 0, false, false
		}
		return raw, v, true, true
	}
}

// dedupeBatch retains, per (game, source, book, market, collected_at)
// equivalence class, only the row with the greatest ingestion_sequence
// ( step 5; collected_at is already part of the key, so ties
// only arise from a re-delivered duplicate within the same batch).
func dedupeBatch(rows []stagingRow) []stagingRow {
	type key struct {
		gameID  int64
		source  string
		book    string
		market  model.Market
		at      int64
	}
	best := make(map[key]stagingRow, len(rows))
	for _, r := range rows {
		k := key{r.gameID, r.point.Source, r.point.Book, r.point.Market, r.point.CollectedAt.UnixNano()}
		existing, seen := best[k]
		if !seen || r.ingestionSequence > existing.ingestionSequence {
			best[k] = r
		}
	}

	out := make([]stagingRow, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].gameID != out[j].gameID {
			return out[i].gameID < out[j].gameID
		}
		return out[i].point.CollectedAt.Before(out[j].point.CollectedAt)
	})
	return out
}

func (t *Transformer) insert(ctx context.Context, row stagingRow) error {
	prevLine, hasPrev, err := t.previousLineValue(ctx, row)
	if err != nil {
		return err
	}
	var lineMovement *float64
	if hasPrev && row.hasLineValue {
		diff := row.lineValue - prevLine
		lineMovement = &diff
	}

	_, err = t.stagingDB.Conn().ExecContext(ctx, `
		INSERT INTO staging_observations
			(ingestion_id, source, book, game_id, market, collected_at, money_pct, bet_pct,
			 money_minus_bet, split_value, hours_before_game, timing_bucket,
			 line_movement_from_prev, book_credibility_weight, ingestion_sequence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id, source, book, market, collected_at) DO NOTHING
	`,
		0, row.point.Source, row.point.Book, row.gameID, string(row.point.Market), row.point.CollectedAt.Format(timeLayout),
		nullableFloat(row.point.MoneyPct), nullableFloat(row.point.BetPct), nullableFloat(row.point.MoneyMinusBet),
		row.point.SplitValue, row.point.HoursBeforeGame, string(row.point.TimingBucket),
		nullableFloat(lineMovement), row.point.BookCredibility, row.ingestionSequence,
	)
	return err
}

func (t *Transformer) previousLineValue(ctx context.Context, row stagingRow) (float64, bool, error) {
	rowRes := t.stagingDB.Conn().QueryRowContext(ctx, `
		SELECT split_value, market FROM staging_observations
		WHERE game_id = ? AND source = ? AND book = ? AND market = ? AND collected_at < ?
		ORDER BY collected_at DESC LIMIT 1
	`, row.gameID, row.point.Source, row.point.Book, string(row.point.Market), row.point.CollectedAt.Format(timeLayout))

	var splitValue, market string
	if err := rowRes.Scan(&splitValue, &market); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}

	_, v, has, ok := parseSplit(model.Market(market), splitValue)
	if !ok || !has {
		return 0, false, nil
	}
	return v, true, nil
}

func (t *Transformer) insertReject(ctx context.Context, rej model.StagingReject) error {
	_, err := t.stagingDB.Conn().ExecContext(ctx, `
		INSERT INTO staging_rejects (ingestion_id, reason, source, book, detail)
		VALUES (?, ?, ?, ?, ?)
	`, rej.IngestionID, rej.Reason, rej.Source, rej.Book, rej.Detail)
	return err
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
