package sqlite

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/feed"
	"github.com/sakif/streakme/internal/model"
)

// newTestDB opens a fresh in-memory database that is closed when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestStreak(t *testing.T, db *DB, userID, name string, days ...civil.Date) *model.Streak {
	t.Helper()
	if len(days) == 0 {
		days = []civil.Date{"2025-06-01"}
	}
	s := &model.Streak{
		UserID:        userID,
		Name:          name,
		TargetDays:    5,
		StartDate:     days[0],
		CompletedDays: days,
		Status:        model.StatusActive,
		Color:         "#4A6CF7",
		Notes:         "before breakfast",
	}
	if err := db.Streaks().Create(context.Background(), s); err != nil {
		t.Fatalf("failed to create test streak: %v", err)
	}
	return s
}

func signalled(l *feed.Listener) bool {
	select {
	case <-l.C():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

// =========================================================================
// CREATE / GET TESTS
// =========================================================================

func TestStreakCreate_VerifyPersistence(t *testing.T) {
	db := newTestDB(t)
	created := createTestStreak(t, db, "u1", "Read", "2025-06-02", "2025-06-01")

	if created.ID == "" {
		t.Fatal("Create() did not set ID")
	}

	found, err := db.Streaks().GetByID(context.Background(), "u1", created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Name != "Read" || found.TargetDays != 5 || found.Color != "#4A6CF7" || found.Notes != "before breakfast" {
		t.Errorf("GetByID() = %+v", found)
	}
	if found.StartDate != "2025-06-02" {
		t.Errorf("StartDate = %q", found.StartDate)
	}
	want := []civil.Date{"2025-06-01", "2025-06-02"}
	if !reflect.DeepEqual(found.CompletedDays, want) {
		t.Errorf("CompletedDays = %v, want %v", found.CompletedDays, want)
	}
	if found.Status != model.StatusActive {
		t.Errorf("Status = %q", found.Status)
	}
}

func TestStreakGetByID_OtherUserIsNotFound(t *testing.T) {
	db := newTestDB(t)
	created := createTestStreak(t, db, "u1", "Read")

	_, err := db.Streaks().GetByID(context.Background(), "u2", created.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() for another user error = %v, want ErrNotFound", err)
	}
}

func TestStreakList(t *testing.T) {
	db := newTestDB(t)
	createTestStreak(t, db, "u1", "Read", "2025-06-01", "2025-06-02")
	createTestStreak(t, db, "u1", "Run", "2025-06-03")
	createTestStreak(t, db, "u2", "Swim")

	list, err := db.Streaks().List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d streaks, want 2", len(list))
	}
	byName := map[string]model.Streak{}
	for _, s := range list {
		byName[s.Name] = s
	}
	if got := len(byName["Read"].CompletedDays); got != 2 {
		t.Errorf("Read has %d days, want 2", got)
	}
	if got := len(byName["Run"].CompletedDays); got != 1 {
		t.Errorf("Run has %d days, want 1", got)
	}

	empty, err := db.Streaks().List(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("List() for unknown user = %v, want empty non-nil slice", empty)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestStreakUpdate_MergesDaysAsSet(t *testing.T) {
	db := newTestDB(t)
	created := createTestStreak(t, db, "u1", "Read", "2025-06-01")

	saved, err := db.Streaks().Update(context.Background(), "u1", created.ID, func(s *model.Streak) error {
		// a duplicate, a new day, and a dropped original
		s.CompletedDays = []civil.Date{"2025-06-02", "2025-06-02"}
		s.Name = "Read more"
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []civil.Date{"2025-06-01", "2025-06-02"}
	if !reflect.DeepEqual(saved.CompletedDays, want) {
		t.Errorf("saved days = %v, want %v", saved.CompletedDays, want)
	}
	found, _ := db.Streaks().GetByID(context.Background(), "u1", created.ID)
	if !reflect.DeepEqual(found.CompletedDays, want) || found.Name != "Read more" {
		t.Errorf("persisted = %+v", found)
	}
}

func TestStreakUpdate_FnErrorWritesNothing(t *testing.T) {
	db := newTestDB(t)
	created := createTestStreak(t, db, "u1", "Read")
	boom := errors.New("boom")

	_, err := db.Streaks().Update(context.Background(), "u1", created.ID, func(s *model.Streak) error {
		s.Status = model.StatusBroken
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	found, _ := db.Streaks().GetByID(context.Background(), "u1", created.ID)
	if found.Status != model.StatusActive {
		t.Errorf("Status = %q, want active", found.Status)
	}
}

func TestStreakUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Streaks().Update(context.Background(), "u1", "missing", func(*model.Streak) error { return nil })
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestStreakUpdate_ConcurrentSameDay(t *testing.T) {
	db := newTestDB(t)
	created := createTestStreak(t, db, "u1", "Read", "2025-06-01")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Streaks().Update(context.Background(), "u1", created.ID, func(s *model.Streak) error {
				s.CompletedDays = append(s.CompletedDays, "2025-06-02")
				return nil
			})
			if err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}()
	}
	wg.Wait()

	found, _ := db.Streaks().GetByID(context.Background(), "u1", created.ID)
	if len(found.CompletedDays) != 2 {
		t.Errorf("CompletedDays = %v, want two distinct days", found.CompletedDays)
	}
}

func TestStreakUpdate_PublishesOnlyOnChange(t *testing.T) {
	db := newTestDB(t)
	created := createTestStreak(t, db, "u1", "Read")
	l := db.Subscribe("u1", feed.Streaks)
	defer l.Close()

	_, err := db.Streaks().Update(context.Background(), "u1", created.ID, func(*model.Streak) error { return nil })
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if signalled(l) {
		t.Error("no-op update published a change")
	}

	_, err = db.Streaks().Update(context.Background(), "u1", created.ID, func(s *model.Streak) error {
		s.Notes = "after lunch"
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !signalled(l) {
		t.Error("update did not publish a change")
	}
}

// =========================================================================
// DELETE / OWNERS TESTS
// =========================================================================

func TestStreakDelete_CascadesBadges(t *testing.T) {
	db := newTestDB(t)
	keep := createTestStreak(t, db, "u1", "Keep")
	drop := createTestStreak(t, db, "u1", "Drop")

	for _, s := range []*model.Streak{keep, drop} {
		if _, err := db.Badges().CreateIfAbsent(context.Background(), &model.Badge{
			UserID: "u1", StreakID: s.ID, StreakName: s.Name, DaysCompleted: 5,
		}); err != nil {
			t.Fatalf("CreateIfAbsent() error = %v", err)
		}
	}
	badges := db.Subscribe("u1", feed.Badges)
	defer badges.Close()

	if err := db.Streaks().Delete(context.Background(), "u1", drop.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := db.Streaks().GetByID(context.Background(), "u1", drop.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("deleted streak still readable: %v", err)
	}
	list, _ := db.Badges().List(context.Background(), "u1")
	if len(list) != 1 || list[0].StreakID != keep.ID {
		t.Errorf("badges after delete = %+v", list)
	}
	if !signalled(badges) {
		t.Error("badge subscribers were not told about the cascade")
	}

	var dayRows int
	db.conn.QueryRow(`SELECT COUNT(*) FROM streak_days WHERE streak_id = ?`, drop.ID).Scan(&dayRows)
	if dayRows != 0 {
		t.Errorf("%d streak_days rows left behind", dayRows)
	}
}

func TestStreakDelete_NotFound(t *testing.T) {
	db := newTestDB(t)
	created := createTestStreak(t, db, "u1", "Read")

	if err := db.Streaks().Delete(context.Background(), "u2", created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() by another user error = %v, want ErrNotFound", err)
	}
}

func TestListOwners(t *testing.T) {
	db := newTestDB(t)
	createTestStreak(t, db, "u1", "Read")
	createTestStreak(t, db, "u1", "Run")
	s := createTestStreak(t, db, "u2", "Swim")
	db.Streaks().Update(context.Background(), "u2", s.ID, func(s *model.Streak) error {
		s.Status = model.StatusBroken
		return nil
	})
	createTestStreak(t, db, "u3", "Walk")

	owners, err := db.Streaks().ListOwners(context.Background())
	if err != nil {
		t.Fatalf("ListOwners() error = %v", err)
	}
	if !reflect.DeepEqual(owners, []string{"u1", "u3"}) {
		t.Errorf("ListOwners() = %v, want [u1 u3]", owners)
	}
}
