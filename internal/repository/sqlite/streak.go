package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/feed"
	"github.com/sakif/streakme/internal/lifecycle"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/repository"
)

var _ repository.StreakRepository = (*StreakDB)(nil)

// StreakDB is the streaks collection.
type StreakDB struct {
	db *DB
}

// querier is the part of *sql.DB and *sql.Tx the read helpers need.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const streakColumns = `id, user_id, name, target_days, start_date, status, color, notes, created_at, updated_at`

// Create inserts a new streak and its initial days in one transaction.
func (s *StreakDB) Create(ctx context.Context, streak *model.Streak) error {
	streak.ID = xid.New().String()
	now := time.Now()
	streak.CreatedAt = now
	streak.UpdatedAt = now
	streak.CompletedDays = lifecycle.MergeDays(streak.CompletedDays, nil)

	err := s.db.withTx(ctx, "creating streak", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO streaks (`+streakColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			streak.ID,
			streak.UserID,
			streak.Name,
			streak.TargetDays,
			string(streak.StartDate),
			string(streak.Status),
			streak.Color,
			streak.Notes,
			streak.CreatedAt,
			streak.UpdatedAt,
		)
		if err != nil {
			return unavailable("creating streak", err)
		}
		return insertDays(ctx, tx, streak.ID, streak.CompletedDays)
	})
	if err != nil {
		return err
	}

	s.db.hub.Publish(streak.UserID, feed.Streaks)
	return nil
}

// GetByID returns the user's streak with the given id.
func (s *StreakDB) GetByID(ctx context.Context, userID, id string) (*model.Streak, error) {
	return getStreak(ctx, s.db.conn, userID, id)
}

// List returns every streak of the user, oldest first, days included.
func (s *StreakDB) List(ctx context.Context, userID string) ([]model.Streak, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+streakColumns+` FROM streaks
		 WHERE user_id = ?
		 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, unavailable("listing streaks", err)
	}
	defer rows.Close()

	streaks := make([]model.Streak, 0)
	index := make(map[string]int)
	for rows.Next() {
		st, err := scanStreak(rows)
		if err != nil {
			return nil, unavailable("scanning streak row", err)
		}
		index[st.ID] = len(streaks)
		streaks = append(streaks, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating streaks", err)
	}
	rows.Close()

	// one query for all days of the user's streaks
	dayRows, err := s.db.conn.QueryContext(ctx,
		`SELECT d.streak_id, d.day FROM streak_days d
		 JOIN streaks s ON s.id = d.streak_id
		 WHERE s.user_id = ?
		 ORDER BY d.day`,
		userID,
	)
	if err != nil {
		return nil, unavailable("listing streak days", err)
	}
	defer dayRows.Close()

	for dayRows.Next() {
		var streakID, day string
		if err := dayRows.Scan(&streakID, &day); err != nil {
			return nil, unavailable("scanning streak day", err)
		}
		if i, ok := index[streakID]; ok {
			streaks[i].CompletedDays = append(streaks[i].CompletedDays, civil.Date(day))
		}
	}
	if err := dayRows.Err(); err != nil {
		return nil, unavailable("iterating streak days", err)
	}

	for i := range streaks {
		if streaks[i].CompletedDays == nil {
			streaks[i].CompletedDays = []civil.Date{}
		}
	}
	return streaks, nil
}

// Update is a transactional read-modify-write. See repository.StreakRepository.
func (s *StreakDB) Update(ctx context.Context, userID, id string, fn func(*model.Streak) error) (*model.Streak, error) {
	var (
		saved   *model.Streak
		changed bool
	)
	err := s.db.withTx(ctx, "updating streak", func(tx *sql.Tx) error {
		current, err := getStreak(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}

		added := lifecycle.AddedDays(current.CompletedDays, next.CompletedDays)
		next.CompletedDays = lifecycle.MergeDays(current.CompletedDays, added)
		changed = len(added) > 0 ||
			next.Name != current.Name ||
			next.Notes != current.Notes ||
			next.Status != current.Status
		if !changed {
			saved = current
			return nil
		}

		next.UpdatedAt = time.Now()
		_, err = tx.ExecContext(ctx,
			`UPDATE streaks SET name = ?, notes = ?, status = ?, updated_at = ?
			 WHERE id = ? AND user_id = ?`,
			next.Name, next.Notes, string(next.Status), next.UpdatedAt, id, userID,
		)
		if err != nil {
			return unavailable("updating streak", err)
		}
		if err := insertDays(ctx, tx, id, added); err != nil {
			return err
		}
		saved = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.db.hub.Publish(userID, feed.Streaks)
	}
	return saved, nil
}

// Delete removes the streak, its days and its badges.
func (s *StreakDB) Delete(ctx context.Context, userID, id string) error {
	var badgesRemoved int64
	err := s.db.withTx(ctx, "deleting streak", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM badges WHERE user_id = ? AND streak_id = ?`, userID, id)
		if err != nil {
			return unavailable("deleting streak badges", err)
		}
		badgesRemoved, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx,
			`DELETE FROM streaks WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return unavailable("deleting streak", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable("checking rows affected", err)
		}
		if n == 0 {
			return apperror.NotFound("streak", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.db.hub.Publish(userID, feed.Streaks)
	if badgesRemoved > 0 {
		s.db.hub.Publish(userID, feed.Badges)
	}
	return nil
}

// ListOwners returns the users that hold at least one active streak.
func (s *StreakDB) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM streaks WHERE status = ? ORDER BY user_id`,
		string(model.StatusActive),
	)
	if err != nil {
		return nil, unavailable("listing streak owners", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scanning streak owner", err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating streak owners", err)
	}
	return owners, nil
}

func getStreak(ctx context.Context, q querier, userID, id string) (*model.Streak, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+streakColumns+` FROM streaks WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	st, err := scanStreak(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("streak", id)
		}
		return nil, unavailable("getting streak "+id, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT day FROM streak_days WHERE streak_id = ? ORDER BY day`, id)
	if err != nil {
		return nil, unavailable("getting streak days", err)
	}
	defer rows.Close()

	st.CompletedDays = []civil.Date{}
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, unavailable("scanning streak day", err)
		}
		st.CompletedDays = append(st.CompletedDays, civil.Date(day))
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating streak days", err)
	}
	return st, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStreak(sc scanner) (*model.Streak, error) {
	var (
		st     model.Streak
		start  string
		status string
	)
	err := sc.Scan(
		&st.ID, &st.UserID, &st.Name, &st.TargetDays, &start, &status,
		&st.Color, &st.Notes, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.StartDate = civil.Date(start)
	st.Status = model.Status(status)
	return &st, nil
}

// insertDays adds days to a streak. Days already present are skipped,
// which makes concurrent check-ins for the same day collapse to one row.
func insertDays(ctx context.Context, tx *sql.Tx, streakID string, days []civil.Date) error {
	for _, d := range days {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO streak_days (streak_id, day) VALUES (?, ?)
			 ON CONFLICT (streak_id, day) DO NOTHING`,
			streakID, string(d),
		); err != nil {
			return unavailable("inserting streak day", err)
		}
	}
	return nil
}
