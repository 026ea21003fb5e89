package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/lifecycle"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/palette"
)

// =========================================================================
// IN-MEMORY REPOSITORIES
// =========================================================================

// fakeStreakRepo keeps streaks in a map and mirrors the store contract:
// Update runs fn on a copy and merges days as a set union.
type fakeStreakRepo struct {
	mu      sync.Mutex
	streaks map[string]*model.Streak
	order   []string
	nextID  int

	listErr   error
	updateErr error // returned by Update before fn runs
	updates   int   // successful Update calls
}

func newFakeStreakRepo() *fakeStreakRepo {
	return &fakeStreakRepo{streaks: make(map[string]*model.Streak)}
}

func (f *fakeStreakRepo) Create(_ context.Context, s *model.Streak) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = fmt.Sprintf("streak-%d", f.nextID)
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	copied := s.Clone()
	f.streaks[s.ID] = &copied
	f.order = append(f.order, s.ID)
	return nil
}

func (f *fakeStreakRepo) GetByID(_ context.Context, userID, id string) (*model.Streak, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streaks[id]
	if !ok || s.UserID != userID {
		return nil, apperror.NotFound("streak", id)
	}
	copied := s.Clone()
	return &copied, nil
}

func (f *fakeStreakRepo) List(_ context.Context, userID string) ([]model.Streak, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Streak, 0)
	for _, id := range f.order {
		if s, ok := f.streaks[id]; ok && s.UserID == userID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (f *fakeStreakRepo) Update(_ context.Context, userID, id string, fn func(*model.Streak) error) (*model.Streak, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	current, ok := f.streaks[id]
	if !ok || current.UserID != userID {
		return nil, apperror.NotFound("streak", id)
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.CompletedDays = lifecycle.MergeDays(current.CompletedDays, next.CompletedDays)
	f.streaks[id] = &next
	f.updates++
	saved := next.Clone()
	return &saved, nil
}

func (f *fakeStreakRepo) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streaks[id]
	if !ok || s.UserID != userID {
		return apperror.NotFound("streak", id)
	}
	delete(f.streaks, id)
	f.order = slices.DeleteFunc(f.order, func(x string) bool { return x == id })
	return nil
}

func (f *fakeStreakRepo) ListOwners(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owners []string
	for _, id := range f.order {
		s := f.streaks[id]
		if s.Status == model.StatusActive && !slices.Contains(owners, s.UserID) {
			owners = append(owners, s.UserID)
		}
	}
	return owners, nil
}

// put stores s as-is, bypassing Create, for tests that need a history.
func (f *fakeStreakRepo) put(s model.Streak) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := s.Clone()
	if _, ok := f.streaks[s.ID]; !ok {
		f.order = append(f.order, s.ID)
	}
	f.streaks[s.ID] = &copied
}

func (f *fakeStreakRepo) get(id string) model.Streak {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaks[id].Clone()
}

type fakeBadgeRepo struct {
	mu       sync.Mutex
	badges   []model.Badge
	nextID   int
	inserts  int
	createFn func() error // consulted before every insert when set
}

func newFakeBadgeRepo() *fakeBadgeRepo { return &fakeBadgeRepo{} }

func (f *fakeBadgeRepo) CreateIfAbsent(_ context.Context, b *model.Badge) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createFn != nil {
		if err := f.createFn(); err != nil {
			return false, err
		}
	}
	for _, existing := range f.badges {
		if existing.UserID == b.UserID && existing.StreakID == b.StreakID {
			return false, nil
		}
	}
	f.nextID++
	b.ID = fmt.Sprintf("badge-%d", f.nextID)
	f.badges = append(f.badges, *b)
	f.inserts++
	return true, nil
}

func (f *fakeBadgeRepo) GetByStreakID(_ context.Context, userID, streakID string) (*model.Badge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.badges {
		if b.UserID == userID && b.StreakID == streakID {
			copied := b
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("badge for streak", streakID)
}

func (f *fakeBadgeRepo) List(_ context.Context, userID string) ([]model.Badge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Badge, 0)
	for i := len(f.badges) - 1; i >= 0; i-- {
		if f.badges[i].UserID == userID {
			out = append(out, f.badges[i])
		}
	}
	return out, nil
}

func (f *fakeBadgeRepo) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.badges {
		if b.ID == id && b.UserID == userID {
			f.badges = slices.Delete(f.badges, i, i+1)
			return nil
		}
	}
	return apperror.NotFound("badge", id)
}

// =========================================================================
// HELPERS
// =========================================================================

type streakFixture struct {
	svc     *StreakService
	badges  *BadgeService
	streaks *fakeStreakRepo
	badgeDB *fakeBadgeRepo
	clock   *civil.FixedClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStreakFixture wires services over fakes with the clock on today.
func newStreakFixture(t *testing.T, today string) *streakFixture {
	t.Helper()
	clock := civil.NewFixedClockOn(civil.MustParse(today))
	dates := civil.NewNormalizer(clock)
	streaks := newFakeStreakRepo()
	badgeDB := newFakeBadgeRepo()
	badges := NewBadgeService(badgeDB, dates, discardLogger())
	svc := NewStreakService(streaks, badges, palette.New(), dates, discardLogger())
	return &streakFixture{svc: svc, badges: badges, streaks: streaks, badgeDB: badgeDB, clock: clock}
}

func days(ds ...string) []civil.Date {
	out := make([]civil.Date, len(ds))
	for i, d := range ds {
		out[i] = civil.MustParse(d)
	}
	return out
}
