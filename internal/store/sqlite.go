// Package store provides persistent chat storage backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/logging"
)

const (
	defaultCallTimeout = 5 * time.Second
	busyTimeoutMs      = 5000
)

// DB wraps a SQLite database connection with migration support.
type DB struct {
	sql         *sql.DB
	log         *logging.Logger
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithCallTimeout bounds every store operation. A stalled call fails with
// a storage error instead of hanging the caller.
func WithCallTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.callTimeout = d
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// Open opens (or creates) a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for tests).
func Open(path string, log *logging.Logger, opts ...Option) (*DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
		// Pragmas in the DSN apply to every pooled connection. Transactions
		// begin IMMEDIATE so they take the write lock up front and wait on
		// busy_timeout; a deferred read-then-write upgrade fails with
		// SQLITE_BUSY at once under WAL.
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate", path, busyTimeoutMs)
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	if path == ":memory:" {
		// Each connection to :memory: is its own database.
		sqlDB.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys=ON", fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)} {
			if _, err := sqlDB.Exec(pragma); err != nil {
				sqlDB.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	db := &DB{
		sql:         sqlDB,
		log:         log.Sub("store"),
		callTimeout: defaultCallTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	db.log.Info().Str("path", path).Msg("database opened")
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.log.Info().Msg("closing database")
	return db.sql.Close()
}

// SQL returns the underlying *sql.DB for direct queries.
func (db *DB) SQL() *sql.DB {
	return db.sql
}

// Ping checks that the database answers within the call timeout.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.op(ctx)
	defer cancel()
	if err := db.sql.PingContext(ctx); err != nil {
		return domain.Storage("ping", err)
	}
	return nil
}

func (db *DB) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.callTimeout)
}

func (db *DB) stamp() string {
	return formatTime(db.now())
}

// inTx runs fn inside a write transaction bounded by the call timeout.
func (db *DB) inTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	ctx, cancel := db.op(ctx)
	defer cancel()

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return domain.Storage(name, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Storage(name, err)
	}
	return nil
}

// migrate runs all pending migrations.
func (db *DB) migrate() error {
	if _, err := db.sql.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.sql.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := db.sql.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.DateTime, s)
	}
	return t
}

func nullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
