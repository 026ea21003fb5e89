package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/rs/xid"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/feed"
	"github.com/sakif/streakme/internal/lifecycle"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/repository"
)

var _ repository.StreakRepository = (*StreakDB)(nil)

type StreakDB struct {
	db *DB
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const streakColumns = `id, user_id, name, target_days, start_date, status, color, notes, created_at, updated_at`

func (s *StreakDB) Create(ctx context.Context, streak *model.Streak) error {
	streak.ID = xid.New().String()
	now := time.Now().UTC()
	streak.CreatedAt = now
	streak.UpdatedAt = now
	streak.CompletedDays = lifecycle.MergeDays(streak.CompletedDays, nil)

	return s.db.withTx(ctx, "creating streak", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO streaks (`+streakColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			streak.ID, streak.UserID, streak.Name, streak.TargetDays,
			string(streak.StartDate), string(streak.Status), streak.Color, streak.Notes,
			streak.CreatedAt, streak.UpdatedAt,
		)
		if err != nil {
			return unavailable("creating streak", err)
		}
		if err := insertDays(ctx, tx, streak.ID, streak.CompletedDays); err != nil {
			return err
		}
		return notify(ctx, tx, streak.UserID, feed.Streaks)
	})
}

func (s *StreakDB) GetByID(ctx context.Context, userID, id string) (*model.Streak, error) {
	return getStreak(ctx, s.db.conn, userID, id, false)
}

// List returns every streak of the user, oldest first, days included.
func (s *StreakDB) List(ctx context.Context, userID string) ([]model.Streak, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+streakColumns+` FROM streaks
		 WHERE user_id = $1
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

	dayRows, err := s.db.conn.QueryContext(ctx,
		`SELECT d.streak_id, d.day FROM streak_days d
		 JOIN streaks s ON s.id = d.streak_id
		 WHERE s.user_id = $1
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

// Update locks the streak row for the length of the transaction, so
// concurrent updates of one streak run one after the other.
func (s *StreakDB) Update(ctx context.Context, userID, id string, fn func(*model.Streak) error) (*model.Streak, error) {
	var saved *model.Streak
	err := s.db.withTx(ctx, "updating streak", func(tx *sql.Tx) error {
		current, err := getStreak(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(&next); err != nil {
			return err
		}

		added := lifecycle.AddedDays(current.CompletedDays, next.CompletedDays)
		next.CompletedDays = lifecycle.MergeDays(current.CompletedDays, added)
		if len(added) == 0 &&
			next.Name == current.Name &&
			next.Notes == current.Notes &&
			next.Status == current.Status {
			saved = current
			return nil
		}

		next.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE streaks SET name = $1, notes = $2, status = $3, updated_at = $4
			 WHERE id = $5 AND user_id = $6`,
			next.Name, next.Notes, string(next.Status), next.UpdatedAt, id, userID,
		)
		if err != nil {
			return unavailable("updating streak", err)
		}
		if err := insertDays(ctx, tx, id, added); err != nil {
			return err
		}
		saved = &next
		return notify(ctx, tx, userID, feed.Streaks)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete removes the streak, its days and its badges.
func (s *StreakDB) Delete(ctx context.Context, userID, id string) error {
	return s.db.withTx(ctx, "deleting streak", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM badges WHERE user_id = $1 AND streak_id = $2`, userID, id)
		if err != nil {
			return unavailable("deleting streak badges", err)
		}
		badgesRemoved, _ := res.RowsAffected()

		res, err = tx.ExecContext(ctx,
			`DELETE FROM streaks WHERE id = $1 AND user_id = $2`, id, userID)
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

		if err := notify(ctx, tx, userID, feed.Streaks); err != nil {
			return err
		}
		if badgesRemoved > 0 {
			return notify(ctx, tx, userID, feed.Badges)
		}
		return nil
	})
}

func (s *StreakDB) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM streaks WHERE status = $1 ORDER BY user_id`,
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

func getStreak(ctx context.Context, q querier, userID, id string, lock bool) (*model.Streak, error) {
	query := `SELECT ` + streakColumns + ` FROM streaks WHERE id = $1 AND user_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	st, err := scanStreak(q.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("streak", id)
		}
		return nil, unavailable("getting streak "+id, err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT day FROM streak_days WHERE streak_id = $1 ORDER BY day`, id)
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

func insertDays(ctx context.Context, tx *sql.Tx, streakID string, days []civil.Date) error {
	if len(days) == 0 {
		return nil
	}
	strs := make([]string, len(days))
	for i, d := range days {
		strs[i] = string(d)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO streak_days (streak_id, day)
		 SELECT $1, unnest($2::text[])
		 ON CONFLICT (streak_id, day) DO NOTHING`,
		streakID, pq.Array(strs),
	)
	if err != nil {
		return unavailable("inserting streak days", err)
	}
	return nil
}
