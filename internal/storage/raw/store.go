// Package raw implements the RAW Store: append-only,
// idempotent-on-write persistence of every Observation verbatim.
package raw

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
)

// Store is the RAW zone repository. Writes are idempotent on the
// secondary key (source, book, game_external_id, market, collected_at);
// nothing is ever updated or deleted once written.
type Store struct {
	db  *storage.DB
	log zerolog.Logger
}

// New wraps an already-opened RAW database.
func New(db *storage.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "raw_store").Logger()}
}

// Append inserts obs, returning its ingestion ID. If an Observation with
// the same secondary key already exists, Append is a no-op and returns
// the existing row's ingestion ID — this is what makes RAW writes
// idempotent.
func (s *Store) Append(ctx context.Context, obs model.Observation) (int64, error) {
	res, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO raw_observations
			(source, book, game_external_id, market, collected_at, endpoint,
			 split_value, money_pct, bet_pct, money_bet_count, bet_ticket_count,
			 ingestion_sequence, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, book, game_external_id, market, collected_at) DO NOTHING
	`,
		obs.Source, obs.Book, obs.GameExternalID, string(obs.Market), formatTime(obs.CollectedAt), obs.Endpoint,
		obs.SplitValue, nullableFloat(obs.MoneyPct), nullableFloat(obs.BetPct), nullableInt(obs.MoneyBetCount), nullableInt(obs.BetTicketCount),
		obs.IngestionSequence, obs.RawPayload,
	)
	if err != nil {
		return 0, fmt.Errorf("append raw observation: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		// Already present; look up the existing ingestion id so callers
		// (e.g. the adapter sequence tracker) can still reference it.
		var id int64
		err := s.db.Conn().QueryRowContext(ctx, `
			SELECT ingestion_id FROM raw_observations
			WHERE source = ? AND book = ? AND game_external_id = ? AND market = ? AND collected_at = ?
		`, obs.Source, obs.Book, obs.GameExternalID, string(obs.Market), formatTime(obs.CollectedAt)).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("look up existing raw observation: %w", err)
		}
		return id, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read last insert id: %w", err)
	}
	return id, nil
}

// Since returns every Observation inserted after (not including) a given
// ingestion id, in ascending ingestion order. Staging uses this to
// incrementally pick up new RAW rows.
func (s *Store) Since(ctx context.Context, afterIngestionID int64, limit int) ([]model.Observation, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT ingestion_id, source, book, game_external_id, market, collected_at, endpoint,
		       split_value, money_pct, bet_pct, money_bet_count, bet_ticket_count,
		       ingestion_sequence, raw_payload
		FROM raw_observations
		WHERE ingestion_id > ?
		ORDER BY ingestion_id ASC
		LIMIT ?
	`, afterIngestionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query raw observations since %d: %w", afterIngestionID, err)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// SinceSource is Since scoped to one source, used by the Game Outcome
// Resolver to poll only the results-feed source instead of
// scanning every provider's rows.
func (s *Store) SinceSource(ctx context.Context, source string, afterIngestionID int64, limit int) ([]model.Observation, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT ingestion_id, source, book, game_external_id, market, collected_at, endpoint,
		       split_value, money_pct, bet_pct, money_bet_count, bet_ticket_count,
		       ingestion_sequence, raw_payload
		FROM raw_observations
		WHERE ingestion_id > ? AND source = ?
		ORDER BY ingestion_id ASC
		LIMIT ?
	`, afterIngestionID, source, limit)
	if err != nil {
		return nil, fmt.Errorf("query raw observations for source %s since %d: %w", source, afterIngestionID, err)
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// MaxIngestionID returns the highest ingestion id present, or 0 if RAW is
// empty. No pipeline component calls it.
func (s *Store) MaxIngestionID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := s.db.Conn().QueryRowContext(ctx, `SELECT MAX(ingestion_id) FROM raw_observations`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read max ingestion id: %w", err)
	}
	return id.Int64, nil
}

func scanObservation(rows *sql.Rows) (model.Observation, error) {
	var (
		obs                         model.Observation
		market, collectedAt         string
		moneyPct, betPct            sql.NullFloat64
		moneyBetCount, betTickets   sql.NullInt64
	)
	if err := rows.Scan(
		&obs.IngestionID, &obs.Source, &obs.Book, &obs.GameExternalID, &market, &collectedAt, &obs.Endpoint,
		&obs.SplitValue, &moneyPct, &betPct, &moneyBetCount, &betTickets,
		&obs.IngestionSequence, &obs.RawPayload,
	); err != nil {
		return model.Observation{}, fmt.Errorf("scan raw observation: %w", err)
	}
	obs.Market = model.Market(market)
	t, err := time.Parse(time.RFC3339Nano, collectedAt)
	if err != nil {
		return model.Observation{}, fmt.Errorf("parse collected_at: %w", err)
	}
	obs.CollectedAt = t
	if moneyPct.Valid {
		v := moneyPct.Float64
		obs.MoneyPct = &v
	}
	if betPct.Valid {
		v := betPct.Float64
		obs.BetPct = &v
	}
	if moneyBetCount.Valid {
		v := int(moneyBetCount.Int64)
		obs.MoneyBetCount = &v
	}
	if betTickets.Valid {
		v := int(betTickets.Int64)
		obs.BetTicketCount = &v
	}
	return obs, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func nullableInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

// MarshalFeatures encodes a named numeric map as JSON text ("{}" for a
// nil map). No other package calls it.
func MarshalFeatures(m map[string]float64) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal features: %w", err)
	}
	return string(b), nil
}
