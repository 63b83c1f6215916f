// Package games owns the curated_games table: resolving or creating a
// Game by its natural key and filling outcome fields once known. Both the
// Staging Transformer (to assign a game_id to each normalized row) and the
// Curated Builder (to read game start for closing-snapshot selection) depend on this package,
// which keeps Game identity resolution in one place rather than
// duplicated at each pipeline boundary.
package games

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
)

// Store resolves and persists Game rows in curated_games.
type Store struct {
	db *storage.DB
}

// New wraps an already-opened CURATED database.
func New(db *storage.DB) *Store {
	return &Store{db: db}
}

const timeLayout = "2006-01-02T15:04:05.000Z"

// ResolveOrCreate finds the Game for (homeTeam, awayTeam, gameDateEastern),
// creating it on first mention ("created on first
// observation mentioning it; never deleted").
func (s *Store) ResolveOrCreate(ctx context.Context, homeTeam, awayTeam, gameDateEastern string, gameStartUTC time.Time, park string, size model.MarketSizeTag, daypart model.Daypart) (int64, error) {
	var id int64
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT game_id FROM curated_games
		WHERE home_team_canonical = ? AND away_team_canonical = ? AND game_date_eastern = ?
	`, homeTeam, awayTeam, gameDateEastern).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("resolve game: %w", err)
	}

	res, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO curated_games
			(home_team_canonical, away_team_canonical, game_date_eastern, game_start_utc, park, market_size, daypart)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(home_team_canonical, away_team_canonical, game_date_eastern) DO NOTHING
	`, homeTeam, awayTeam, gameDateEastern, gameStartUTC.UTC().Format(timeLayout), park, string(size), string(daypart))
	if err != nil {
		return 0, fmt.Errorf("create game: %w", err)
	}
	if id64, err := res.LastInsertId(); err == nil && id64 != 0 {
		return id64, nil
	}

	// Lost a race with a concurrent Staging worker on another partition;
	// re-read the row the other writer just inserted.
	err = s.db.Conn().QueryRowContext(ctx, `
		SELECT game_id FROM curated_games
		WHERE home_team_canonical = ? AND away_team_canonical = ? AND game_date_eastern = ?
	`, homeTeam, awayTeam, gameDateEastern).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve game after insert race: %w", err)
	}
	return id, nil
}

// FindByNaturalKey looks up a Game without creating one, used by readers
// that must not fabricate a Game row for data they cannot otherwise place
// (the Game Outcome Resolver).
func (s *Store) FindByNaturalKey(ctx context.Context, homeTeam, awayTeam, gameDateEastern string) (int64, bool, error) {
	var id int64
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT game_id FROM curated_games
		WHERE home_team_canonical = ? AND away_team_canonical = ? AND game_date_eastern = ?
	`, homeTeam, awayTeam, gameDateEastern).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find game by natural key: %w", err)
	}
	return id, true, nil
}

// Get loads a Game by its internal id.
func (s *Store) Get(ctx context.Context, gameID int64) (model.Game, error) {
	var g model.Game
	var startRaw string
	var resolvedRaw sql.NullString
	err := s.db.Conn().QueryRowContext(ctx, `
		SELECT game_id, home_team_canonical, away_team_canonical, game_date_eastern, game_start_utc,
		       park, market_size, daypart, home_score, away_score, home_win, home_cover_spread, over, outcome_resolved_at
		FROM curated_games WHERE game_id = ?
	`, gameID).Scan(&g.GameID, &g.HomeTeamCanonical, &g.AwayTeamCanonical, &g.GameDateEastern, &startRaw,
		&g.Park, &g.MarketSize, &g.Daypart, &g.HomeScore, &g.AwayScore, &g.HomeWin, &g.HomeCoverSpread, &g.Over, &resolvedRaw)
	if err != nil {
		return model.Game{}, fmt.Errorf("get game %d: %w", gameID, err)
	}
	g.GameStartUTC, _ = time.Parse(timeLayout, startRaw)
	if resolvedRaw.Valid {
		t, _ := time.Parse(timeLayout, resolvedRaw.String)
		g.OutcomeResolvedAt = &t
	}
	return g, nil
}

// FillOutcome records a completed game's result. Called only by the Game
// Outcome Resolver, never by Staging or Curated.
func (s *Store) FillOutcome(ctx context.Context, gameID int64, rec model.OutcomeRecord) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		UPDATE curated_games
		SET home_score = ?, away_score = ?, home_win = ?, home_cover_spread = ?, over = ?, outcome_resolved_at = ?
		WHERE game_id = ?
	`, rec.HomeScore, rec.AwayScore, rec.HomeWin, rec.HomeCoverSpread, rec.Over, rec.ResolvedAt.UTC().Format(timeLayout), gameID)
	if err != nil {
		return fmt.Errorf("fill outcome for game %d: %w", gameID, err)
	}
	return nil
}

// UnresolvedBefore returns games whose start time is before cutoff and
// that have no outcome yet, candidates for the next Outcome Resolver poll.
func (s *Store) UnresolvedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT game_id FROM curated_games
		WHERE outcome_resolved_at IS NULL AND game_start_utc < ?
	`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list unresolved games: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListInWindow returns every Game whose start time falls within
// [windowStart, windowEnd), used by the Detector Engine and Backtester to
// scope a run to a time-bounded slice of games.
func (s *Store) ListInWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]model.Game, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT game_id, home_team_canonical, away_team_canonical, game_date_eastern, game_start_utc,
		       park, market_size, daypart, home_score, away_score, home_win, home_cover_spread, over, outcome_resolved_at
		FROM curated_games
		WHERE game_start_utc >= ? AND game_start_utc < ?
		ORDER BY game_start_utc ASC
	`, windowStart.UTC().Format(timeLayout), windowEnd.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("list games in window: %w", err)
	}
	defer rows.Close()

	var out []model.Game
	for rows.Next() {
		var g model.Game
		var startRaw string
		var resolvedRaw sql.NullString
		if err := rows.Scan(&g.GameID, &g.HomeTeamCanonical, &g.AwayTeamCanonical, &g.GameDateEastern, &startRaw,
			&g.Park, &g.MarketSize, &g.Daypart, &g.HomeScore, &g.AwayScore, &g.HomeWin, &g.HomeCoverSpread, &g.Over, &resolvedRaw); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		g.GameStartUTC, _ = time.Parse(timeLayout, startRaw)
		if resolvedRaw.Valid {
			t, _ := time.Parse(timeLayout, resolvedRaw.String)
			g.OutcomeResolvedAt = &t
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
