// Package catalog implements the Strategy Catalog: the
// persisted registry of detector variants, their thresholds, market
// applicability, and lifecycle status. Mutated only by the Performance
// Tuner; read by the Detector Engine as a point-in-time snapshot.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sharpline/internal/model"
	"github.com/aristath/sharpline/internal/storage"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// Catalog owns strategy_variants, strategy_backtest_results, and
// strategy_tuning_log. Writes (Performance Tuner) hold mu as an exclusive
// lock on the catalog during an update; reads take the snapshot at call
// time without blocking on it for longer than the copy itself.
type Catalog struct {
	mu  sync.Mutex
	db  *storage.DB
	log zerolog.Logger
}

// New wraps an already-opened strategy database.
func New(db *storage.DB, log zerolog.Logger) *Catalog {
	return &Catalog{db: db, log: log.With().Str("component", "strategy_catalog").Logger()}
}

// Seed inserts the given variants if they do not already exist. Existing
// rows (e.g. after a restart) are left untouched — Seed never overwrites
// a variant the Performance Tuner has already adjusted.
func (c *Catalog) Seed(ctx context.Context, variants []model.StrategyVariant) error {
	for _, v := range variants {
		if v.LastTuned.IsZero() {
			v.LastTuned = time.Now()
		}
		if err := c.insertIfAbsent(ctx, v); err != nil {
			return fmt.Errorf("seed variant %s: %w", v.Key(), err)
		}
	}
	return nil
}

func (c *Catalog) insertIfAbsent(ctx context.Context, v model.StrategyVariant) error {
	marketsJSON, err := marshalMarkets(v.ApplicableMarkets)
	if err != nil {
		return err
	}
	thresholdsJSON, err := marshalThresholds(v.Thresholds)
	if err != nil {
		return err
	}
	_, err = c.db.Conn().ExecContext(ctx, `
		INSERT INTO strategy_variants
			(strategy_name, variant_name, detector_id, applicable_markets, thresholds, min_sample_size, status, last_tuned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_name, variant_name) DO NOTHING
	`, v.StrategyName, v.VariantName, v.DetectorID, marketsJSON, thresholdsJSON, v.MinSampleSize,
		string(v.Status), v.LastTuned.UTC().Format(timeLayout))
	return err
}

// Snapshot returns every variant in the catalog, sorted by
// (strategy_name, variant_name) for deterministic iteration — a
// consistent snapshot taken at run start for the Detector Engine to read.
func (c *Catalog) Snapshot(ctx context.Context) ([]model.StrategyVariant, error) {
	rows, err := c.db.Conn().QueryContext(ctx, `
		SELECT strategy_name, variant_name, detector_id, applicable_markets, thresholds, min_sample_size, status, last_tuned
		FROM strategy_variants
	`)
	if err != nil {
		return nil, fmt.Errorf("snapshot catalog: %w", err)
	}
	defer rows.Close()

	var out []model.StrategyVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StrategyName != out[j].StrategyName {
			return out[i].StrategyName < out[j].StrategyName
		}
		return out[i].VariantName < out[j].VariantName
	})
	return out, nil
}

// Get loads a single variant by its (strategy_name, variant_name) key.
func (c *Catalog) Get(ctx context.Context, strategyName, variantName string) (model.StrategyVariant, error) {
	row := c.db.Conn().QueryRowContext(ctx, `
		SELECT strategy_name, variant_name, detector_id, applicable_markets, thresholds, min_sample_size, status, last_tuned
		FROM strategy_variants WHERE strategy_name = ? AND variant_name = ?
	`, strategyName, variantName)
	return scanVariant(row)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVariant(row rowScanner) (model.StrategyVariant, error) {
	var v model.StrategyVariant
	var marketsJSON, thresholdsJSON, status, lastTuned string
	if err := row.Scan(&v.StrategyName, &v.VariantName, &v.DetectorID, &marketsJSON, &thresholdsJSON,
		&v.MinSampleSize, &status, &lastTuned); err != nil {
		return model.StrategyVariant{}, fmt.Errorf("scan variant: %w", err)
	}
	v.Status = model.VariantStatus(status)
	t, err := time.Parse(timeLayout, lastTuned)
	if err != nil {
		return model.StrategyVariant{}, fmt.Errorf("parse last_tuned: %w", err)
	}
	v.LastTuned = t

	var markets []string
	if err := json.Unmarshal([]byte(marketsJSON), &markets); err != nil {
		return model.StrategyVariant{}, fmt.Errorf("unmarshal applicable_markets: %w", err)
	}
	for _, m := range markets {
		v.ApplicableMarkets = append(v.ApplicableMarkets, model.Market(m))
	}
	if err := json.Unmarshal([]byte(thresholdsJSON), &v.Thresholds); err != nil {
		return model.StrategyVariant{}, fmt.Errorf("unmarshal thresholds: %w", err)
	}
	return v, nil
}

// TuningEntry is one row of strategy_tuning_log.
type TuningEntry struct {
	StrategyName     string
	VariantName      string
	BeforeStatus     model.VariantStatus
	AfterStatus      model.VariantStatus
	BeforeThresholds map[string]float64
	AfterThresholds  map[string]float64
	Reason           string
	TunedAt          time.Time
}

// ApplyTuning updates a variant's status/thresholds and appends a
// tuning-log entry in one locked section, implementing the Performance
// Tuner's exclusive-lock write.
func (c *Catalog) ApplyTuning(ctx context.Context, strategyName, variantName string, newStatus model.VariantStatus, newThresholds map[string]float64, reason string, tunedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	before, err := c.Get(ctx, strategyName, variantName)
	if err != nil {
		return fmt.Errorf("load variant before tuning: %w", err)
	}

	return storage.WithTransaction(c.db.Conn(), func(tx *sql.Tx) error {
		thresholdsJSON, err := marshalThresholds(newThresholds)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE strategy_variants SET status = ?, thresholds = ?, last_tuned = ?
			WHERE strategy_name = ? AND variant_name = ?
		`, string(newStatus), thresholdsJSON, tunedAt.UTC().Format(timeLayout), strategyName, variantName); err != nil {
			return fmt.Errorf("update variant: %w", err)
		}

		beforeThresholdsJSON, err := marshalThresholds(before.Thresholds)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO strategy_tuning_log
				(strategy_name, variant_name, before_status, after_status, before_thresholds, after_thresholds, reason, tuned_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, strategyName, variantName, string(before.Status), string(newStatus),
			beforeThresholdsJSON, thresholdsJSON, reason, tunedAt.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("insert tuning log: %w", err)
		}
		return nil
	})
}

// TuningHistory returns every logged transition for one variant, oldest
// first — supplements named `strategy.tuning_log` table with
// a query surface an operator-facing collaborator can read (
// "Tuning log query surface").
func (c *Catalog) TuningHistory(ctx context.Context, strategyName, variantName string) ([]TuningEntry, error) {
	rows, err := c.db.Conn().QueryContext(ctx, `
		SELECT strategy_name, variant_name, before_status, after_status, before_thresholds, after_thresholds, reason, tuned_at
		FROM strategy_tuning_log
		WHERE strategy_name = ? AND variant_name = ?
		ORDER BY tuned_at ASC
	`, strategyName, variantName)
	if err != nil {
		return nil, fmt.Errorf("query tuning history: %w", err)
	}
	defer rows.Close()

	var out []TuningEntry
	for rows.Next() {
		var e TuningEntry
		var beforeStatus, afterStatus, beforeJSON, afterJSON, tunedAt string
		if err := rows.Scan(&e.StrategyName, &e.VariantName, &beforeStatus, &afterStatus, &beforeJSON, &afterJSON, &e.Reason, &tunedAt); err != nil {
			return nil, err
		}
		e.BeforeStatus = model.VariantStatus(beforeStatus)
		e.AfterStatus = model.VariantStatus(afterStatus)
		if err := json.Unmarshal([]byte(beforeJSON), &e.BeforeThresholds); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(afterJSON), &e.AfterThresholds); err != nil {
			return nil, err
		}
		t, err := time.Parse(timeLayout, tunedAt)
		if err != nil {
			return nil, err
		}
		e.TunedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordBacktestResult upserts one BacktestResult row, keyed by
// (strategy, variant, market, window_start, window_end).
func (c *Catalog) RecordBacktestResult(ctx context.Context, r model.BacktestResult) error {
	_, err := c.db.Conn().ExecContext(ctx, `
		INSERT INTO strategy_backtest_results
			(strategy_name, variant_name, market, window_start, window_end, bets_count, wins, win_rate,
			 roi_at_110, roi_using_actual_odds, drawdown, confidence_tier, sample_sufficient)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_name, variant_name, market, window_start, window_end) DO UPDATE SET
			bets_count = excluded.bets_count, wins = excluded.wins, win_rate = excluded.win_rate,
			roi_at_110 = excluded.roi_at_110, roi_using_actual_odds = excluded.roi_using_actual_odds,
			drawdown = excluded.drawdown, confidence_tier = excluded.confidence_tier,
			sample_sufficient = excluded.sample_sufficient
	`, r.StrategyName, r.VariantName, string(r.Market), r.WindowStart.UTC().Format(timeLayout), r.WindowEnd.UTC().Format(timeLayout),
		r.BetsCount, r.Wins, r.WinRate, r.ROIAt110, r.ROIUsingActualOdds, r.Drawdown, string(r.ConfidenceTier), r.SampleSufficient)
	if err != nil {
		return fmt.Errorf("record backtest result: %w", err)
	}
	return nil
}

// LatestBacktestResult returns the most recent BacktestResult recorded
// for a variant across any market/window, or ok=false if none exists.
func (c *Catalog) LatestBacktestResult(ctx context.Context, strategyName, variantName string) (model.BacktestResult, bool, error) {
	row := c.db.Conn().QueryRowContext(ctx, `
		SELECT strategy_name, variant_name, market, window_start, window_end, bets_count, wins, win_rate,
		       roi_at_110, roi_using_actual_odds, drawdown, confidence_tier, sample_sufficient
		FROM strategy_backtest_results
		WHERE strategy_name = ? AND variant_name = ?
		ORDER BY window_end DESC LIMIT 1
	`, strategyName, variantName)
	r, err := scanBacktestResult(row)
	if err == sql.ErrNoRows {
		return model.BacktestResult{}, false, nil
	}
	if err != nil {
		return model.BacktestResult{}, false, fmt.Errorf("latest backtest result: %w", err)
	}
	return r, true, nil
}

func scanBacktestResult(row rowScanner) (model.BacktestResult, error) {
	var r model.BacktestResult
	var market, start, end, tier string
	var sufficient int
	if err := row.Scan(&r.StrategyName, &r.VariantName, &market, &start, &end, &r.BetsCount, &r.Wins, &r.WinRate,
		&r.ROIAt110, &r.ROIUsingActualOdds, &r.Drawdown, &tier, &sufficient); err != nil {
		return model.BacktestResult{}, err
	}
	r.Market = model.Market(market)
	r.ConfidenceTier = model.ConfidenceTier(tier)
	r.SampleSufficient = sufficient != 0
	var err error
	if r.WindowStart, err = time.Parse(timeLayout, start); err != nil {
		return model.BacktestResult{}, err
	}
	if r.WindowEnd, err = time.Parse(timeLayout, end); err != nil {
		return model.BacktestResult{}, err
	}
	return r, nil
}

func marshalMarkets(markets []model.Market) (string, error) {
	strs := make([]string, len(markets))
	for i, m := range markets {
		strs[i] = string(m)
	}
	b, err := json.Marshal(strs)
	if err != nil {
		return "", fmt.Errorf("marshal applicable markets: %w", err)
	}
	return string(b), nil
}

func marshalThresholds(thresholds map[string]float64) (string, error) {
	if thresholds == nil {
		thresholds = map[string]float64{}
	}
	b, err := json.Marshal(thresholds)
	if err != nil {
		return "", fmt.Errorf("marshal thresholds: %w", err)
	}
	return string(b), nil
}
