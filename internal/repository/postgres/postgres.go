// Package postgres implements the repository interfaces on PostgreSQL.
//
// The schema mirrors the sqlite package. The difference is the change
// feed: every write transaction also runs pg_notify on ChangeChannel, and
// each process LISTENs on it and relays into its own feed.Hub, so live
// subscriptions converge across server instances.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/feed"
	"github.com/sakif/streakme/internal/repository"
)

// ChangeChannel is the LISTEN/NOTIFY channel carrying change signals.
// Payloads are "<collection>:<userID>".
const ChangeChannel = "streakme_changes"

// uniqueViolation is the SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

var _ repository.Store = (*DB)(nil)

// DB is a PostgreSQL-backed store.
type DB struct {
	conn     *sql.DB
	hub      *feed.Hub
	listener *pq.Listener
	logger   *slog.Logger
	done     chan struct{}
	relayed  chan struct{}
}

// New connects to dsn, runs migrations and starts relaying notifications.
func New(dsn string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "SSL is not enabled on the server") {
			return nil, fmt.Errorf("postgres: connecting: %w (hint: add sslmode=disable to DATABASE_URL)", err)
		}
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	db := &DB{
		conn:    conn,
		hub:     feed.NewHub(),
		logger:  logger,
		done:    make(chan struct{}),
		relayed: make(chan struct{}),
	}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	db.listener = pq.NewListener(dsn, 2*time.Second, time.Minute, db.listenerEvent)
	if err := db.listener.Listen(ChangeChannel); err != nil {
		db.listener.Close()
		conn.Close()
		return nil, fmt.Errorf("postgres: listening on %s: %w", ChangeChannel, err)
	}
	go db.relay()

	return db, nil
}

// Close stops the relay and closes the pool.
func (db *DB) Close() error {
	close(db.done)
	<-db.relayed
	lerr := db.listener.Close()
	return errors.Join(lerr, db.conn.Close())
}

func (db *DB) Streaks() repository.StreakRepository { return &StreakDB{db: db} }
func (db *DB) Badges() repository.BadgeRepository   { return &BadgeDB{db: db} }
func (db *DB) Users() repository.UserRepository     { return &UserDB{db: db} }

// Subscribe listens for committed writes to a user's collection, from
// this process or any other sharing the database.
func (db *DB) Subscribe(userID string, c feed.Collection) *feed.Listener {
	return db.hub.Subscribe(userID, c)
}

func (db *DB) relay() {
	defer close(db.relayed)
	for {
		select {
		case <-db.done:
			return
		case n := <-db.listener.Notify:
			if n == nil {
				// reconnected: anything sent meanwhile is lost
				db.hub.Broadcast()
				continue
			}
			c, userID, ok := decodeChange(n.Extra)
			if !ok {
				db.logger.Warn("ignoring malformed change notification", slog.String("payload", n.Extra))
				continue
			}
			db.hub.Publish(userID, c)
		case <-time.After(90 * time.Second):
			go db.listener.Ping()
		}
	}
}

func (db *DB) listenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		db.logger.Warn("change listener connection failed", slog.String("error", errString(err)))
	case pq.ListenerEventDisconnected:
		db.logger.Warn("change listener disconnected", slog.String("error", errString(err)))
	case pq.ListenerEventReconnected:
		db.logger.Info("change listener reconnected")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func encodeChange(c feed.Collection, userID string) string {
	return string(c) + ":" + userID
}

func decodeChange(payload string) (feed.Collection, string, bool) {
	c, userID, ok := strings.Cut(payload, ":")
	if !ok || userID == "" {
		return "", "", false
	}
	switch feed.Collection(c) {
	case feed.Streaks, feed.Badges:
		return feed.Collection(c), userID, true
	}
	return "", "", false
}

// notify queues a change signal; Postgres delivers it on commit.
func notify(ctx context.Context, tx *sql.Tx, userID string, c feed.Collection) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, ChangeChannel, encodeChange(c, userID)); err != nil {
		return unavailable("notifying "+string(c), err)
	}
	return nil
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id               TEXT PRIMARY KEY,
			github_id        BIGINT,
			login            TEXT NOT NULL DEFAULT '',
			email            TEXT NOT NULL DEFAULT '',
			avatar_url       TEXT NOT NULL DEFAULT '',
			password_hash    TEXT NOT NULL DEFAULT '',
			email_verified   BOOLEAN NOT NULL DEFAULT FALSE,
			verify_token     TEXT NOT NULL DEFAULT '',
			reset_token      TEXT NOT NULL DEFAULT '',
			reset_expires_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id ON users(github_id) WHERE github_id IS NOT NULL;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '' AND github_id IS NULL;
		CREATE INDEX IF NOT EXISTS idx_users_verify_token ON users(verify_token) WHERE verify_token <> '';
		CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token) WHERE reset_token <> '';

		CREATE TABLE IF NOT EXISTS streaks (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			name        TEXT NOT NULL,
			target_days INTEGER NOT NULL,
			start_date  TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'active',
			color       TEXT NOT NULL,
			notes       TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_streaks_user_id ON streaks(user_id);
		CREATE INDEX IF NOT EXISTS idx_streaks_status ON streaks(status);

		CREATE TABLE IF NOT EXISTS streak_days (
			streak_id TEXT NOT NULL REFERENCES streaks(id) ON DELETE CASCADE,
			day       TEXT NOT NULL,
			PRIMARY KEY (streak_id, day)
		);

		CREATE TABLE IF NOT EXISTS badges (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			streak_id      TEXT NOT NULL,
			streak_name    TEXT NOT NULL,
			days_completed INTEGER NOT NULL,
			date_earned    TIMESTAMPTZ NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_badges_user_streak ON badges(user_id, streak_id);
	`)
	return err
}

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

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func unavailable(op string, err error) error {
	return apperror.StoreUnavailable("postgres: "+op, err)
}
