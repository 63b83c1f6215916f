package arbiter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

func (a *Arbiter) newRunID(ctx context.Context) (int64, error) {
	res, err := a.db.Conn().ExecContext(ctx, `INSERT INTO arbiter_runs (started_at) VALUES (?)`,
		a.clock.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert arbiter run: %w", err)
	}
	return res.LastInsertId()
}

func (a *Arbiter) recordCandidates(ctx context.Context, signals []model.CandidateSignal) error {
	if len(signals) == 0 {
		return nil
	}
	return storage.WithTransaction(a.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO signal_candidates
				(game_id, market, book, source, strategy_name, variant_name, fired_at, side, raw_confidence, contributing_features)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare candidate insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range signals {
			featuresJSON, err := json.Marshal(s.ContributingFeatures)
			if err != nil {
				return fmt.Errorf("marshal contributing features: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, s.GameID, string(s.Market), s.Book, s.Source,
				s.StrategyName, s.VariantName, s.FiredAt.UTC().Format(timeLayout), string(s.Side),
				s.RawConfidence, string(featuresJSON)); err != nil {
				return fmt.Errorf("insert candidate signal: %w", err)
			}
		}
		return nil
	})
}

func (a *Arbiter) recordRecommendations(ctx context.Context, runID int64, recs []model.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	return storage.WithTransaction(a.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO signal_recommendations
				(run_id, game_id, market, book, side, final_confidence, contributing_variants, juice_check_passed, expected_roi, rank)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, game_id, market, book) DO UPDATE SET
				side = excluded.side, final_confidence = excluded.final_confidence,
				contributing_variants = excluded.contributing_variants,
				juice_check_passed = excluded.juice_check_passed,
				expected_roi = excluded.expected_roi, rank = excluded.rank
		`)
		if err != nil {
			return fmt.Errorf("prepare recommendation insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range recs {
			variantsJSON, err := json.Marshal(r.ContributingVariants)
			if err != nil {
				return fmt.Errorf("marshal contributing variants: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, fmt.Sprintf("%d", runID), r.GameID, string(r.Market), r.Book,
				string(r.Side), r.FinalConfidence, string(variantsJSON), r.JuiceCheckPassed, r.ExpectedROI, r.Rank); err != nil {
				return fmt.Errorf("insert recommendation: %w", err)
			}
		}
		return nil
	})
}

// LatestRecommendations returns the most recent Arbiter run's
// Recommendations, filtered by minConfidence and optionally restricted to
// games starting within the next windowMinutes
// "list_recommendations"). windowMinutes <= 0 means no window filter.
func (a *Arbiter) LatestRecommendations(ctx context.Context, minConfidence float64, windowMinutes int) ([]model.Recommendation, error) {
	var latestRunID sql.NullInt64
	if err := a.db.Conn().QueryRowContext(ctx, `SELECT MAX(CAST(run_id AS INTEGER)) FROM signal_recommendations`).Scan(&latestRunID); err != nil {
		return nil, fmt.Errorf("find latest arbiter run: %w", err)
	}
	if !latestRunID.Valid {
		return nil, nil
	}

	rows, err := a.db.Conn().QueryContext(ctx, `
		SELECT game_id, market, book, side, final_confidence, contributing_variants, juice_check_passed, expected_roi, rank
		FROM signal_recommendations
		WHERE run_id = ? AND final_confidence >= ?
		ORDER BY rank ASC
	`, fmt.Sprintf("%d", latestRunID.Int64), minConfidence)
	if err != nil {
		return nil, fmt.Errorf("query latest recommendations: %w", err)
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		var r model.Recommendation
		var market, side, variantsJSON string
		var expectedROI sql.NullFloat64
		if err := rows.Scan(&r.GameID, &market, &r.Book, &side, &r.FinalConfidence, &variantsJSON,
			&r.JuiceCheckPassed, &expectedROI, &r.Rank); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		r.RunID = fmt.Sprintf("%d", latestRunID.Int64)
		r.Market = model.Market(market)
		r.Side = model.Side(side)
		if expectedROI.Valid {
			v := expectedROI.Float64
			r.ExpectedROI = &v
		}
		if err := json.Unmarshal([]byte(variantsJSON), &r.ContributingVariants); err != nil {
			return nil, fmt.Errorf("unmarshal contributing variants: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if windowMinutes <= 0 || a.games == nil {
		return out, nil
	}

	cutoff := a.clock.Now().Add(time.Duration(windowMinutes) * time.Minute)
	filtered := out[:0]
	for _, r := range out {
		g, err := a.games.Get(ctx, r.GameID)
		if err != nil {
			return nil, fmt.Errorf("load game %d for window filter: %w", r.GameID, err)
		}
		if g.GameStartUTC.Before(cutoff) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// LastRunAt returns the start time of the most recent Arbiter run, used
// by the Outbound Interface's health() to report arbiter_last_run_at.
func (a *Arbiter) LastRunAt(ctx context.Context) (time.Time, bool, error) {
	var startedAt sql.NullString
	if err := a.db.Conn().QueryRowContext(ctx, `
		SELECT started_at FROM arbiter_runs ORDER BY run_id DESC LIMIT 1
	`).Scan(&startedAt); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("query last arbiter run: %w", err)
	}
	if !startedAt.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(timeLayout, startedAt.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last run started_at: %w", err)
	}
	return t, true, nil
}
