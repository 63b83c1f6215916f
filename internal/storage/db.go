// Package storage provides the SQLite connection and schema management
// shared by the RAW, STAGING, and CURATED zones, plus the strategy and
// signal tables. Each zone gets its own *DB so that profile-specific
// durability tuning (RAW is append-only and favors safety; CURATED is
// rebuilt from STAGING and can favor speed) is tunable independently.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Profile selects the PRAGMA tuning applied to a database file.
type Profile string

const (
	// ProfileAppendOnly favors durability for RAW, which is never
	// updated or deleted once written.
	ProfileAppendOnly Profile = "append_only"
	// ProfileStandard balances durability and speed for STAGING,
	// CURATED, and the strategy/signal tables.
	ProfileStandard Profile = "standard"
)

// DB wraps a single SQLite connection with production-style PRAGMA
// configuration and a name used in logging and error messages.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// Config describes how to open one zone's database file.
type Config struct {
	Path    string
	Profile Profile
	Name    string
}

// Open creates (or attaches to) a SQLite database file with WAL mode and
// profile-appropriate PRAGMAs.
func Open(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		cfg.Path = absPath
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Name, err)
	}
	configurePool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}, nil
}

func buildConnString(path string, profile Profile) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	connStr := path + sep + "_pragma=journal_mode(WAL)"
	switch profile {
	case ProfileAppendOnly:
		connStr += "&_pragma=synchronous(FULL)"
		connStr += "&_pragma=auto_vacuum(NONE)"
	default:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

func configurePool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
	if profile == ProfileAppendOnly {
		// Append-only writers are typically single-threaded per source;
		// keep the pool small so WAL contention stays low.
		conn.SetMaxOpenConns(10)
	}
}

// Conn returns the underlying *sql.DB for repositories to use directly.
func (db *DB) Conn() *sql.DB { return db.conn }

// Name returns the zone name used for logging.
func (db *DB) Name() string { return db.name }

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Migrate executes the given schema DDL within a transaction. Errors that
// indicate the schema was already applied (duplicate column/table) are
// swallowed so Migrate is safe to call on every startup.
func (db *DB) Migrate(schemaSQL string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin schema migration for %s: %w", db.name, err)
	}
	if _, err := tx.Exec(schemaSQL); err != nil {
		_ = tx.Rollback()
		msg := err.Error()
		if strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists") {
			return nil
		}
		return fmt.Errorf("apply schema for %s: %w", db.name, err)
	}
	return tx.Commit()
}

// WithTransaction runs fn inside a transaction, rolling back on error or
// panic and committing otherwise. Panics are converted to errors rather
// than propagated.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
			return
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rbErr)
			}
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}

// HealthCheck pings the connection and runs a quick integrity check.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check failed for %s: %s", db.name, result)
	}
	return nil
}
