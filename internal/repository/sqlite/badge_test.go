package sqlite

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/model"
)

func TestBadgeCreateIfAbsent_OncePerStreak(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.Badge{UserID: "u1", StreakID: "s1", StreakName: "Read", DaysCompleted: 3}
	created, err := db.Badges().CreateIfAbsent(ctx, first)
	if err != nil || !created {
		t.Fatalf("first CreateIfAbsent() = (%v, %v), want (true, nil)", created, err)
	}
	if first.ID == "" || first.DateEarned.IsZero() {
		t.Errorf("CreateIfAbsent() did not fill ID/DateEarned: %+v", first)
	}

	second := &model.Badge{UserID: "u1", StreakID: "s1", StreakName: "Renamed", DaysCompleted: 4}
	created, err = db.Badges().CreateIfAbsent(ctx, second)
	if err != nil || created {
		t.Fatalf("second CreateIfAbsent() = (%v, %v), want (false, nil)", created, err)
	}

	got, err := db.Badges().GetByStreakID(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GetByStreakID() error = %v", err)
	}
	if got.StreakName != "Read" || got.DaysCompleted != 3 {
		t.Errorf("stored badge = %+v, want the first snapshot", got)
	}
}

func TestBadgeCreateIfAbsent_ConcurrentCompletions(t *testing.T) {
	db := newTestDB(t)

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.Badges().CreateIfAbsent(context.Background(),
				&model.Badge{UserID: "u1", StreakID: "s1", StreakName: "Read", DaysCompleted: 3})
			if err != nil {
				t.Errorf("CreateIfAbsent() error = %v", err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d inserts won, want exactly 1", wins.Load())
	}
}

func TestBadgeList_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	db.Badges().CreateIfAbsent(ctx, &model.Badge{UserID: "u1", StreakID: "a", StreakName: "A", DaysCompleted: 3, DateEarned: base})
	db.Badges().CreateIfAbsent(ctx, &model.Badge{UserID: "u1", StreakID: "b", StreakName: "B", DaysCompleted: 3, DateEarned: base.Add(time.Hour)})
	db.Badges().CreateIfAbsent(ctx, &model.Badge{UserID: "u2", StreakID: "c", StreakName: "C", DaysCompleted: 3})

	list, err := db.Badges().List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].StreakID != "b" || list[1].StreakID != "a" {
		t.Errorf("List() = %+v", list)
	}
}

func TestBadgeGetAndDelete_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.Badges().GetByStreakID(ctx, "u1", "none"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByStreakID() error = %v, want ErrNotFound", err)
	}
	if err := db.Badges().Delete(ctx, "u1", "none"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}
