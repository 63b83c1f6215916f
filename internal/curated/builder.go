// Package curated implements the Curated Builder: the
// authoritative per-(game, source, book, market) time series, sharp tags,
// quality score, and closing snapshot selection.
package curated

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
	"github.com/aristath/sharpline/internal/storage/games"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// closingTargetMinutes is the target offset before game start that
// defines the closing snapshot, per the GLOSSARY.
const closingTargetMinutes = 5

// expectedFieldsPerMarket is the denominator for quality_score: the
// fields this system expects a well-formed point to carry.
const expectedFieldsPerMarket = 3 // money_pct, bet_pct, split_value

// Builder reads newly staged rows and maintains curated_points,
// curated_closing_snapshots, and curated_games.
type Builder struct {
	stagingDB *storage.DB
	curatedDB *storage.DB
	games     *games.Store
	log       zerolog.Logger
}

// New constructs a Builder.
func New(stagingDB, curatedDB *storage.DB, gameStore *games.Store, log zerolog.Logger) *Builder {
	return &Builder{
		stagingDB: stagingDB,
		curatedDB: curatedDB,
		games:     gameStore,
		log:       log.With().Str("component", "curated_builder").Logger(),
	}
}

// Result summarizes one Run invocation.
type Result struct {
	PointsWritten   int
	LastStagingID   int64
}

// Run promotes staging_observations rows with id > afterStagingID into
// curated_points, recomputing sharp_tag, quality_score, and the closing
// snapshot for every (game, source, book, market) partition touched.
func (b *Builder) Run(ctx context.Context, afterStagingID int64, limit int) (Result, error) {
	rows, err := b.readStaging(ctx, afterStagingID, limit)
	if err != nil {
		return Result{}, fmt.Errorf("read staging window: %w", err)
	}
	if len(rows) == 0 {
		return Result{LastStagingID: afterStagingID}, nil
	}

	touched := make(map[partitionKey]bool)
	touchedBooks := make(map[bookKey]bool)
	var lastID int64
	for _, row := range rows {
		if err := b.upsertPoint(ctx, row); err != nil {
			return Result{}, fmt.Errorf("upsert curated point: %w", err)
		}
		touched[partitionKey{row.GameID, row.Source, row.Book, row.Market}] = true
		touchedBooks[bookKey{row.GameID, row.Source, row.Book}] = true
		lastID = row.stagingID
	}

	for book := range touchedBooks {
		if err := b.recomputeQualityScores(ctx, book); err != nil {
			return Result{}, fmt.Errorf("recompute quality scores: %w", err)
		}
	}
	for part := range touched {
		if err := b.recomputeClosingSnapshot(ctx, part); err != nil {
			return Result{}, fmt.Errorf("recompute closing snapshot: %w", err)
		}
	}

	return Result{PointsWritten: len(rows), LastStagingID: lastID}, nil
}

type partitionKey struct {
	gameID int64
	source string
	book   string
	market model.Market
}

// bookKey identifies a (game, source, book) tuple spanning every market,
// the scope quality_score is defined over.
type bookKey struct {
	gameID int64
	source string
	book   string
}

type stagingOutputRow struct {
	model.CuratedPoint
	stagingID int64
}

func (b *Builder) readStaging(ctx context.Context, afterID int64, limit int) ([]stagingOutputRow, error) {
	rows, err := b.stagingDB.Conn().QueryContext(ctx, `
		SELECT id, game_id, source, book, market, collected_at, money_pct, bet_pct, money_minus_bet,
		       split_value, hours_before_game, timing_bucket, line_movement_from_prev, book_credibility_weight
		FROM staging_observations
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stagingOutputRow
	for rows.Next() {
		var r stagingOutputRow
		var market, collectedAt, timingBucket string
		var moneyPct, betPct, moneyMinusBet, lineMovement sql.NullFloat64
		if err := rows.Scan(&r.stagingID, &r.GameID, &r.Source, &r.Book, &market, &collectedAt,
			&moneyPct, &betPct, &moneyMinusBet, &r.SplitValue, &r.HoursBeforeGame, &timingBucket,
			&lineMovement, &r.BookCredibility); err != nil {
			return nil, err
		}
		r.Market = model.Market(market)
		r.TimingBucket = model.TimingBucket(timingBucket)
		t, err := time.Parse(timeLayout, collectedAt)
		if err != nil {
			return nil, fmt.Errorf("parse collected_at: %w", err)
		}
		r.CollectedAt = t
		if moneyPct.Valid {
			v := moneyPct.Float64
			r.MoneyPct = &v
		}
		if betPct.Valid {
			v := betPct.Float64
			r.BetPct = &v
		}
		if moneyMinusBet.Valid {
			v := moneyMinusBet.Float64
			r.MoneyMinusBet = &v
		}
		if lineMovement.Valid {
			v := lineMovement.Float64
			r.LineMovementPrev = &v
		}
		r.SharpTag = SharpTagFor(r.MoneyMinusBet)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SharpTagFor classifies a money_minus_bet differential.
func SharpTagFor(diff *float64) model.SharpTag {
	if diff == nil {
		return model.SharpNone
	}
	d := *diff
	mag := math.Abs(d)
	switch {
	case mag >= 15 && d > 0:
		return model.SharpStrongHome
	case mag >= 15 && d < 0:
		return model.SharpStrongAway
	case mag >= 10 && d > 0:
		return model.SharpModerateHome
	case mag >= 10 && d < 0:
		return model.SharpModerateAway
	case mag >= 5 && d > 0:
		return model.SharpWeakHome
	case mag >= 5 && d < 0:
		return model.SharpWeakAway
	default:
		return model.SharpNone
	}
}

func (b *Builder) upsertPoint(ctx context.Context, row stagingOutputRow) error {
	_, err := b.curatedDB.Conn().ExecContext(ctx, `
		INSERT INTO curated_points
			(game_id, source, book, market, collected_at, money_pct, bet_pct, money_minus_bet,
			 split_value, sharp_tag, timing_bucket, quality_score, hours_before_game,
			 book_credibility, line_movement_prev)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id, source, book, market, collected_at) DO NOTHING
	`,
		row.GameID, row.Source, row.Book, string(row.Market), row.CollectedAt.Format(timeLayout),
		nullableFloat(row.MoneyPct), nullableFloat(row.BetPct), nullableFloat(row.MoneyMinusBet),
		row.SplitValue, string(row.SharpTag), string(row.TimingBucket), 0.0, row.HoursBeforeGame,
		row.BookCredibility, nullableFloat(row.LineMovementPrev),
	)
	return err
}

// recomputeQualityScores sets quality_score for every point belonging to
// a (game, source, book) to the fraction of expected fields present
// across all markets that source/book has reported for that game, not
// just the market the triggering point belongs to: a book's splits feed
// is one collection effort spanning moneyline/spread/total, and a gap in
// one market degrades trust in the whole feed for that game.
func (b *Builder) recomputeQualityScores(ctx context.Context, book bookKey) error {
	rows, err := b.curatedDB.Conn().QueryContext(ctx, `
		SELECT id, money_pct, bet_pct, split_value FROM curated_points
		WHERE game_id = ? AND source = ? AND book = ?
	`, book.gameID, book.source, book.book)
	if err != nil {
		return err
	}
	defer rows.Close()

	var ids []int64
	var present, expected int
	for rows.Next() {
		var id int64
		var moneyPct, betPct sql.NullFloat64
		var splitValue string
		if err := rows.Scan(&id, &moneyPct, &betPct, &splitValue); err != nil {
			return err
		}
		ids = append(ids, id)
		expected += expectedFieldsPerMarket
		if moneyPct.Valid {
			present++
		}
		if betPct.Valid {
			present++
		}
		if splitValue != "" {
			present++
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if expected == 0 {
		return nil
	}

	score := float64(present) / float64(expected)
	for _, id := range ids {
		if _, err := b.curatedDB.Conn().ExecContext(ctx, `
			UPDATE curated_points SET quality_score = ? WHERE id = ?
		`, score, id); err != nil {
			return err
		}
	}
	return nil
}

// recomputeClosingSnapshot selects the point nearest to 5 minutes before
// game start for the partition, tie-breaking to the latest, per the
// GLOSSARY's "Closing snapshot" definition.
func (b *Builder) recomputeClosingSnapshot(ctx context.Context, part partitionKey) error {
	game, err := b.games.Get(ctx, part.gameID)
	if err != nil {
		return err
	}
	target := game.GameStartUTC.Add(-closingTargetMinutes * time.Minute)

	rows, err := b.curatedDB.Conn().QueryContext(ctx, `
		SELECT id, collected_at FROM curated_points
		WHERE game_id = ? AND source = ? AND book = ? AND market = ?
	`, part.gameID, part.source, part.book, string(part.market))
	if err != nil {
		return err
	}
	defer rows.Close()

	var bestID int64
	var bestDelta time.Duration = -1
	var bestAt time.Time
	for rows.Next() {
		var id int64
		var collectedAtRaw string
		if err := rows.Scan(&id, &collectedAtRaw); err != nil {
			return err
		}
		at, err := time.Parse(timeLayout, collectedAtRaw)
		if err != nil {
			return err
		}
		delta := at.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if bestDelta < 0 || delta < bestDelta || (delta == bestDelta && at.After(bestAt)) {
			bestID, bestDelta, bestAt = id, delta, at
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if bestID == 0 {
		return nil
	}

	_, err = b.curatedDB.Conn().ExecContext(ctx, `
		INSERT INTO curated_closing_snapshots (game_id, source, book, market, point_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game_id, source, book, market) DO UPDATE SET point_id = excluded.point_id
	`, part.gameID, part.source, part.book, string(part.market), bestID)
	return err
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
