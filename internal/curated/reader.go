package curated

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
)

// Reader is the read-only query surface the Detector Engine and Backtester
// use against CURATED. Kept separate from Builder so components that only
// ever read never import write paths.
type Reader struct {
	db *storage.DB
}

// NewReader wraps an already-opened CURATED database for read access.
func NewReader(db *storage.DB) *Reader {
	return &Reader{db: db}
}

// ClosingSnapshotsInWindow returns, for every (game, source, book, market)
// partition whose game starts within [windowStart, windowEnd], the
// partition's closing snapshot CuratedPoint.
func (r *Reader) ClosingSnapshotsInWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]model.CuratedPoint, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT cp.game_id, cp.source, cp.book, cp.market, cp.collected_at, cp.money_pct, cp.bet_pct,
		       cp.money_minus_bet, cp.split_value, cp.sharp_tag, cp.timing_bucket, cp.quality_score,
		       cp.hours_before_game, cp.book_credibility, cp.line_movement_prev
		FROM curated_closing_snapshots ccs
		JOIN curated_points cp ON cp.id = ccs.point_id
		JOIN curated_games g ON g.game_id = ccs.game_id
		WHERE g.game_start_utc >= ? AND g.game_start_utc <= ?
	`, windowStart.UTC().Format(timeLayout), windowEnd.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("query closing snapshots: %w", err)
	}
	defer rows.Close()
	return scanPoints(rows)
}

// ClosingSnapshotsForGame returns every partition's closing snapshot for a
// single game, one CuratedPoint per (source, book, market) — the input
// the Detector Engine groups by market and book for a single game.
func (r *Reader) ClosingSnapshotsForGame(ctx context.Context, gameID int64) ([]model.CuratedPoint, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT cp.game_id, cp.source, cp.book, cp.market, cp.collected_at, cp.money_pct, cp.bet_pct,
		       cp.money_minus_bet, cp.split_value, cp.sharp_tag, cp.timing_bucket, cp.quality_score,
		       cp.hours_before_game, cp.book_credibility, cp.line_movement_prev
		FROM curated_closing_snapshots ccs
		JOIN curated_points cp ON cp.id = ccs.point_id
		WHERE ccs.game_id = ?
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query closing snapshots for game: %w", err)
	}
	defer rows.Close()
	return scanPoints(rows)
}

// SeriesFor returns every CuratedPoint for one (game, source, book, market)
// partition, ordered by collected_at ascending — the full line-movement
// history, not just the closing snapshot.
func (r *Reader) SeriesFor(ctx context.Context, gameID int64, source, book string, market model.Market) ([]model.CuratedPoint, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT game_id, source, book, market, collected_at, money_pct, bet_pct, money_minus_bet,
		       split_value, sharp_tag, timing_bucket, quality_score, hours_before_game,
		       book_credibility, line_movement_prev
		FROM curated_points
		WHERE game_id = ? AND source = ? AND book = ? AND market = ?
		ORDER BY collected_at ASC
	`, gameID, source, book, string(market))
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()
	return scanPoints(rows)
}

// PartitionsForGame lists every distinct (source, book, market) partition
// recorded for gameID.
func (r *Reader) PartitionsForGame(ctx context.Context, gameID int64) ([]Partition, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT DISTINCT source, book, market FROM curated_points WHERE game_id = ?
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Partition
	for rows.Next() {
		var source, book, market string
		if err := rows.Scan(&source, &book, &market); err != nil {
			return nil, err
		}
		out = append(out, Partition{Source: source, Book: book, Market: model.Market(market)})
	}
	return out, rows.Err()
}

// Partition identifies one (source, book, market) time series for a game.
type Partition struct {
	Source string
	Book   string
	Market model.Market
}

func scanPoints(rows *sql.Rows) ([]model.CuratedPoint, error) {
	var out []model.CuratedPoint
	for rows.Next() {
		var p model.CuratedPoint
		var market, collectedAt, sharpTag, timingBucket string
		var moneyPct, betPct, moneyMinusBet, lineMovement sql.NullFloat64
		if err := rows.Scan(&p.GameID, &p.Source, &p.Book, &market, &collectedAt, &moneyPct, &betPct,
			&moneyMinusBet, &p.SplitValue, &sharpTag, &timingBucket, &p.QualityScore,
			&p.HoursBeforeGame, &p.BookCredibility, &lineMovement); err != nil {
			return nil, err
		}
		p.Market = model.Market(market)
		p.SharpTag = model.SharpTag(sharpTag)
		p.TimingBucket = model.TimingBucket(timingBucket)
		t, err := time.Parse(timeLayout, collectedAt)
		if err != nil {
			return nil, fmt.Errorf("parse collected_at: %w", err)
		}
		p.CollectedAt = t
		if moneyPct.Valid {
			v := moneyPct.Float64
			p.MoneyPct = &v
		}
		if betPct.Valid {
			v := betPct.Float64
			p.BetPct = &v
		}
		if moneyMinusBet.Valid {
			v := moneyMinusBet.Float64
			p.MoneyMinusBet = &v
		}
		if lineMovement.Valid {
			v := lineMovement.Float64
			p.LineMovementPrev = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
