package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/feed"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/repository"
)

var _ repository.BadgeRepository = (*BadgeDB)(nil)

type BadgeDB struct {
	db *DB
}

const badgeColumns = `id, user_id, streak_id, streak_name, days_completed, date_earned`

// CreateIfAbsent inserts b unless a badge for the same streak exists.
func (s *BadgeDB) CreateIfAbsent(ctx context.Context, b *model.Badge) (bool, error) {
	b.ID = xid.New().String()
	if b.DateEarned.IsZero() {
		b.DateEarned = time.Now()
	}
	b.DateEarned = b.DateEarned.UTC()

	var created bool
	err := s.db.withTx(ctx, "creating badge", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO badges (`+badgeColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id, streak_id) DO NOTHING`,
			b.ID, b.UserID, b.StreakID, b.StreakName, b.DaysCompleted, b.DateEarned,
		)
		if err != nil {
			return unavailable("creating badge", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable("checking rows affected", err)
		}
		if n == 0 {
			return nil
		}
		created = true
		return notify(ctx, tx, b.UserID, feed.Badges)
	})
	if err != nil || !created {
		b.ID = ""
		return false, err
	}
	return true, nil
}

func (s *BadgeDB) GetByStreakID(ctx context.Context, userID, streakID string) (*model.Badge, error) {
	var b model.Badge
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT `+badgeColumns+` FROM badges WHERE user_id = $1 AND streak_id = $2`,
		userID, streakID,
	).Scan(&b.ID, &b.UserID, &b.StreakID, &b.StreakName, &b.DaysCompleted, &b.DateEarned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("badge for streak", streakID)
		}
		return nil, unavailable("getting badge", err)
	}
	return &b, nil
}

// List returns the user's badges, newest first.
func (s *BadgeDB) List(ctx context.Context, userID string) ([]model.Badge, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+badgeColumns+` FROM badges
		 WHERE user_id = $1
		 ORDER BY date_earned DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, unavailable("listing badges", err)
	}
	defer rows.Close()

	badges := make([]model.Badge, 0)
	for rows.Next() {
		var b model.Badge
		if err := rows.Scan(&b.ID, &b.UserID, &b.StreakID, &b.StreakName, &b.DaysCompleted, &b.DateEarned); err != nil {
			return nil, unavailable("scanning badge row", err)
		}
		badges = append(badges, b)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating badges", err)
	}
	return badges, nil
}

func (s *BadgeDB) Delete(ctx context.Context, userID, id string) error {
	return s.db.withTx(ctx, "deleting badge", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM badges WHERE id = $1 AND user_id = $2`, id, userID)
		if err != nil {
			return unavailable("deleting badge", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable("checking rows affected", err)
		}
		if n == 0 {
			return apperror.NotFound("badge", id)
		}
		return notify(ctx, tx, userID, feed.Badges)
	})
}
