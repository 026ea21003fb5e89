// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary
// builds without a C toolchain. Use ":memory:" for tests.
//
// LAYOUT:
//
//	users        accounts (GitHub or email)
//	streaks      one row per streak, scoped by user_id
//	streak_days  (streak_id, day) primary key; a day can only be stored once
//	badges       UNIQUE(user_id, streak_id); at most one badge per streak
//
// Every committed write publishes on the in-process feed.Hub so live
// subscriptions re-read the affected collection.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/feed"
	"github.com/sakif/streakme/internal/repository"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and hands out the per-collection stores.
type DB struct {
	conn *sql.DB
	hub  *feed.Hub
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/streakme.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite serialises writers. One connection also keeps a ":memory:"
	// database from being split across pooled connections.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn, hub: feed.NewHub()}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Streaks returns the streak store.
func (db *DB) Streaks() repository.StreakRepository { return &StreakDB{db: db} }

// Badges returns the badge store.
func (db *DB) Badges() repository.BadgeRepository { return &BadgeDB{db: db} }

// Users returns the user store.
func (db *DB) Users() repository.UserRepository { return &UserDB{db: db} }

// Subscribe listens for committed writes to a user's collection.
func (db *DB) Subscribe(userID string, c feed.Collection) *feed.Listener {
	return db.hub.Subscribe(userID, c)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to
// run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			github_id  INTEGER,
			login      TEXT NOT NULL DEFAULT '',
			email      TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id ON users(github_id) WHERE github_id IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// email/password accounts arrived after the GitHub-only schema
	for _, col := range []struct{ name, def string }{
		{"password_hash", "TEXT NOT NULL DEFAULT ''"},
		{"email_verified", "INTEGER NOT NULL DEFAULT 0"},
		{"verify_token", "TEXT NOT NULL DEFAULT ''"},
		{"reset_token", "TEXT NOT NULL DEFAULT ''"},
		{"reset_expires_at", "DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00'"},
	} {
		if err := db.addColumnIfNotExists("users", col.name, col.def); err != nil {
			return fmt.Errorf("adding %s to users: %w", col.name, err)
		}
	}

	_, err = db.conn.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '' AND github_id IS NULL;
		CREATE INDEX IF NOT EXISTS idx_users_verify_token ON users(verify_token) WHERE verify_token <> '';
		CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token) WHERE reset_token <> '';
	`)
	if err != nil {
		return fmt.Errorf("creating users indexes: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS streaks (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			name        TEXT NOT NULL,
			target_days INTEGER NOT NULL,
			start_date  TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'active',
			color       TEXT NOT NULL,
			notes       TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_streaks_user_id ON streaks(user_id);
		CREATE INDEX IF NOT EXISTS idx_streaks_status ON streaks(status);

		CREATE TABLE IF NOT EXISTS streak_days (
			streak_id TEXT NOT NULL REFERENCES streaks(id) ON DELETE CASCADE,
			day       TEXT NOT NULL,
			PRIMARY KEY (streak_id, day)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating streaks tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS badges (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			streak_id      TEXT NOT NULL,
			streak_name    TEXT NOT NULL,
			days_completed INTEGER NOT NULL,
			date_earned    DATETIME NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_badges_user_streak ON badges(user_id, streak_id);
	`)
	if err != nil {
		return fmt.Errorf("creating badges table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent — safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// withTx runs fn inside a transaction. Only tx may be used inside fn: the
// pool holds a single connection.
func (db *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(op, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(op, err)
	}
	return nil
}

// unavailable converts a driver error into apperror.ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return apperror.StoreUnavailable("sqlite: "+op, err)
}
