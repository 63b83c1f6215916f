package storage

// RawSchema creates the append-only per-source observation table plus its
// secondary dedup index. One physical table covers all sources; the
// source column discriminates, which keeps adding a new provider a
// data-only change.
const RawSchema = `
CREATE TABLE IF NOT EXISTS raw_observations (
	ingestion_id        INTEGER PRIMARY KEY AUTOINCREMENT,
	source              TEXT NOT NULL,
	book                TEXT NOT NULL,
	game_external_id    TEXT NOT NULL,
	market              TEXT NOT NULL,
	collected_at        TEXT NOT NULL,
	endpoint            TEXT NOT NULL,
	split_value         TEXT,
	money_pct           REAL,
	bet_pct             REAL,
	money_bet_count     INTEGER,
	bet_ticket_count    INTEGER,
	ingestion_sequence  INTEGER NOT NULL,
	raw_payload         BLOB NOT NULL,
	inserted_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_observations_identity
	ON raw_observations(source, book, game_external_id, market, collected_at);
`

// StagingSchema creates the normalized observation table and the
// quarantine table for rejected rows.
const StagingSchema = `
CREATE TABLE IF NOT EXISTS staging_observations (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	ingestion_id             INTEGER NOT NULL,
	source                   TEXT NOT NULL,
	book                     TEXT NOT NULL,
	game_id                  INTEGER NOT NULL,
	market                   TEXT NOT NULL,
	collected_at             TEXT NOT NULL,
	money_pct                REAL,
	bet_pct                  REAL,
	money_minus_bet          REAL,
	split_value              TEXT,
	hours_before_game        REAL,
	timing_bucket            TEXT,
	line_movement_from_prev  REAL,
	book_credibility_weight  REAL NOT NULL,
	ingestion_sequence       INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_staging_observations_identity
	ON staging_observations(game_id, source, book, market, collected_at);

CREATE TABLE IF NOT EXISTS staging_rejects (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ingestion_id INTEGER NOT NULL,
	reason       TEXT NOT NULL,
	source       TEXT NOT NULL,
	book         TEXT NOT NULL,
	detail       TEXT NOT NULL,
	rejected_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
`

// CuratedSchema creates the authoritative points/snapshots/games tables;
// game outcomes are columns of curated_games.
const CuratedSchema = `
CREATE TABLE IF NOT EXISTS curated_games (
	game_id               INTEGER PRIMARY KEY AUTOINCREMENT,
	home_team_canonical   TEXT NOT NULL,
	away_team_canonical   TEXT NOT NULL,
	game_date_eastern     TEXT NOT NULL,
	game_start_utc        TEXT NOT NULL,
	park                  TEXT,
	market_size           TEXT,
	daypart               TEXT,
	home_score            INTEGER,
	away_score            INTEGER,
	home_win              INTEGER,
	home_cover_spread     INTEGER,
	over                  INTEGER,
	outcome_resolved_at   TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_curated_games_natural_key
	ON curated_games(home_team_canonical, away_team_canonical, game_date_eastern);

CREATE TABLE IF NOT EXISTS curated_points (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id            INTEGER NOT NULL,
	source             TEXT NOT NULL,
	book               TEXT NOT NULL,
	market             TEXT NOT NULL,
	collected_at       TEXT NOT NULL,
	money_pct          REAL,
	bet_pct            REAL,
	money_minus_bet    REAL,
	split_value        TEXT,
	sharp_tag          TEXT NOT NULL,
	timing_bucket      TEXT NOT NULL,
	quality_score      REAL NOT NULL,
	hours_before_game  REAL NOT NULL,
	book_credibility   REAL NOT NULL,
	line_movement_prev REAL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_curated_points_identity
	ON curated_points(game_id, source, book, market, collected_at);
CREATE INDEX IF NOT EXISTS idx_curated_points_series
	ON curated_points(game_id, source, book, market, collected_at);

CREATE TABLE IF NOT EXISTS curated_closing_snapshots (
	game_id      INTEGER NOT NULL,
	source       TEXT NOT NULL,
	book         TEXT NOT NULL,
	market       TEXT NOT NULL,
	point_id     INTEGER NOT NULL,
	PRIMARY KEY (game_id, source, book, market)
);
`

// StrategySchema creates the catalog, backtest result, and tuning-log
// tables.
const StrategySchema = `
CREATE TABLE IF NOT EXISTS strategy_variants (
	strategy_name       TEXT NOT NULL,
	variant_name        TEXT NOT NULL,
	detector_id         TEXT NOT NULL,
	applicable_markets  TEXT NOT NULL,
	thresholds          TEXT NOT NULL,
	min_sample_size     INTEGER NOT NULL,
	status              TEXT NOT NULL,
	last_tuned          TEXT NOT NULL,
	PRIMARY KEY (strategy_name, variant_name)
);

CREATE TABLE IF NOT EXISTS strategy_backtest_results (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_name          TEXT NOT NULL,
	variant_name           TEXT NOT NULL,
	market                 TEXT NOT NULL,
	window_start           TEXT NOT NULL,
	window_end             TEXT NOT NULL,
	bets_count             INTEGER NOT NULL,
	wins                   INTEGER NOT NULL,
	win_rate               REAL NOT NULL,
	roi_at_110             REAL NOT NULL,
	roi_using_actual_odds  REAL NOT NULL,
	drawdown               REAL NOT NULL,
	confidence_tier        TEXT NOT NULL,
	sample_sufficient      INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_backtest_results_identity
	ON strategy_backtest_results(strategy_name, variant_name, market, window_start, window_end);

CREATE TABLE IF NOT EXISTS strategy_tuning_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_name    TEXT NOT NULL,
	variant_name     TEXT NOT NULL,
	before_status    TEXT NOT NULL,
	after_status     TEXT NOT NULL,
	before_thresholds TEXT NOT NULL,
	after_thresholds  TEXT NOT NULL,
	reason           TEXT NOT NULL,
	tuned_at         TEXT NOT NULL
);
`

// SignalSchema creates the candidate-signal audit log and the
// replaced-per-run recommendations table.
const SignalSchema = `
CREATE TABLE IF NOT EXISTS arbiter_runs (
	run_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS signal_candidates (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id               INTEGER NOT NULL,
	market                TEXT NOT NULL,
	book                  TEXT NOT NULL,
	source                TEXT NOT NULL,
	strategy_name         TEXT NOT NULL,
	variant_name          TEXT NOT NULL,
	fired_at              TEXT NOT NULL,
	side                  TEXT NOT NULL,
	raw_confidence        REAL NOT NULL,
	contributing_features TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signal_candidates_game
	ON signal_candidates(game_id, market, book, fired_at);

CREATE TABLE IF NOT EXISTS signal_recommendations (
	run_id                 TEXT NOT NULL,
	game_id                INTEGER NOT NULL,
	market                 TEXT NOT NULL,
	book                   TEXT NOT NULL,
	side                   TEXT NOT NULL,
	final_confidence       REAL NOT NULL,
	contributing_variants  TEXT NOT NULL,
	juice_check_passed     INTEGER NOT NULL,
	expected_roi           REAL,
	rank                   INTEGER NOT NULL,
	PRIMARY KEY (run_id, game_id, market, book)
);
`
