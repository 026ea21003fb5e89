// Package service contains the business logic layer of the application.
//
//	Handler / CLI / live  → parse input, present output
//	Service               → validate, apply the streak lifecycle, orchestrate
//	Repository            → read/write the store
//
// Services take repository interfaces, never a concrete store, and report
// failures as apperror kinds. Every operation on user data requires a
// non-empty userID and fails with apperror.ErrNotAuthenticated otherwise.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/lifecycle"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/palette"
	"github.com/sakif/streakme/internal/repository"
)

// Validation limits.
const (
	MaxStreakNameLength = 15
	MaxNotesLength      = 100
	MinTargetDays       = 3
)

// CreateStreakInput is what a user supplies for a new streak.
type CreateStreakInput struct {
	Name       string `json:"name"       validate:"required,max=15"`
	TargetDays int    `json:"targetDays" validate:"min=3"`
	Notes      string `json:"notes"      validate:"max=100"`
}

// UpdateStreakInput changes the editable fields. Nil means unchanged.
type UpdateStreakInput struct {
	Name  *string `json:"name"  validate:"omitnil,max=15"`
	Notes *string `json:"notes" validate:"omitnil,max=100"`
}

// CheckInResult describes the outcome of a check-in.
type CheckInResult struct {
	Streak    *model.Streak `json:"streak"`
	CheckedIn bool          `json:"checkedIn"` // today was added
	Completed bool          `json:"completed"` // this check-in reached the target
	Badge     *model.Badge  `json:"badge,omitempty"`
}

// DeleteResult describes the outcome of a delete.
type DeleteResult struct {
	ColorRecycled bool `json:"colorRecycled"`
}

// StreakService runs the streak lifecycle against a repository.
type StreakService struct {
	streaks repository.StreakRepository
	badges  *BadgeService
	colors  *palette.Allocator
	dates   *civil.Normalizer
	logger  *slog.Logger
}

// NewStreakService wires a StreakService. dates decides what "today" is.
func NewStreakService(
	streaks repository.StreakRepository,
	badges *BadgeService,
	colors *palette.Allocator,
	dates *civil.Normalizer,
	logger *slog.Logger,
) *StreakService {
	return &StreakService{
		streaks: streaks,
		badges:  badges,
		colors:  colors,
		dates:   dates,
		logger:  logger,
	}
}

// Create validates in and stores a new active streak. Creation counts as
// the first completed day, and the streak gets the next free palette color.
func (s *StreakService) Create(ctx context.Context, userID string, in CreateStreakInput) (*model.Streak, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Notes = strings.TrimSpace(in.Notes)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	existing, err := s.streaks.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("creating streak: %w", err)
	}

	streak := &model.Streak{
		UserID:     userID,
		Name:       in.Name,
		TargetDays: in.TargetDays,
		Notes:      in.Notes,
		Color:      s.colors.Next(model.Colors(existing)),
	}
	lifecycle.Start(streak, s.dates.Today())

	if err := s.streaks.Create(ctx, streak); err != nil {
		s.logger.Error("failed to create streak",
			slog.String("userID", userID),
			slog.String("name", in.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating streak: %w", err)
	}

	s.logger.Info("streak created",
		slog.String("id", streak.ID),
		slog.String("userID", userID),
		slog.String("color", streak.Color),
		slog.Int("targetDays", streak.TargetDays),
	)
	return streak, nil
}

// Get returns one streak, revalidated like List.
func (s *StreakService) Get(ctx context.Context, userID, id string) (*model.Streak, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	streak, err := s.streaks.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	today := s.dates.Today()
	if streak.Status == model.StatusActive && lifecycle.IsBroken(*streak, today) {
		streak.Status = model.StatusBroken
		if _, err := s.streaks.Update(ctx, userID, id, breakIfMissed(today)); err != nil {
			s.logger.Error("failed to persist broken streak",
				slog.String("id", id),
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("streak broken", slog.String("id", id), slog.String("userID", userID))
		}
	}
	return streak, nil
}

// List returns the user's streaks after revalidation.
func (s *StreakService) List(ctx context.Context, userID string) ([]model.Streak, error) {
	return s.Revalidate(ctx, userID)
}

// Revalidate breaks every active streak that missed yesterday and returns
// the resulting view.
//
// The returned slice always reflects today's statuses. Persisting a break
// that fails is logged and left for the next pass; it does not fail the call.
func (s *StreakService) Revalidate(ctx context.Context, userID string) ([]model.Streak, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	view, _, err := s.revalidate(ctx, userID)
	return view, err
}

// RevalidateAll revalidates every user with an active streak and returns
// how many breaks were persisted.
func (s *StreakService) RevalidateAll(ctx context.Context) (int, error) {
	owners, err := s.streaks.ListOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing streak owners: %w", err)
	}
	total := 0
	for _, userID := range owners {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		_, persisted, err := s.revalidate(ctx, userID)
		if err != nil {
			s.logger.Error("revalidation skipped user",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		total += persisted
	}
	return total, nil
}

func (s *StreakService) revalidate(ctx context.Context, userID string) ([]model.Streak, int, error) {
	current, err := s.streaks.List(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("listing streaks: %w", err)
	}

	today := s.dates.Today()
	view, broken := lifecycle.Revalidate(current, today)
	persisted := 0
	for _, id := range broken {
		if _, err := s.streaks.Update(ctx, userID, id, breakIfMissed(today)); err != nil {
			s.logger.Error("failed to persist broken streak",
				slog.String("id", id),
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
			continue
		}
		persisted++
		s.logger.Info("streak broken", slog.String("id", id), slog.String("userID", userID))
	}
	return view, persisted, nil
}

// Update renames a streak or edits its notes.
func (s *StreakService) Update(ctx context.Context, userID, id string, in UpdateStreakInput) (*model.Streak, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if in.Notes != nil {
		trimmed := strings.TrimSpace(*in.Notes)
		in.Notes = &trimmed
	}
	if in.Name != nil && *in.Name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	saved, err := s.streaks.Update(ctx, userID, id, func(st *model.Streak) error {
		if in.Name != nil {
			st.Name = *in.Name
		}
		if in.Notes != nil {
			st.Notes = *in.Notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("streak updated", slog.String("id", id), slog.String("name", saved.Name))
	return saved, nil
}

// Delete removes a streak and its badges, and reports whether its color
// went back into the palette.
func (s *StreakService) Delete(ctx context.Context, userID, id string) (*DeleteResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}

	streak, err := s.streaks.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.streaks.Delete(ctx, userID, id); err != nil {
		return nil, err
	}

	result := &DeleteResult{}
	remaining, err := s.streaks.List(ctx, userID)
	if err != nil {
		// the delete went through; only the recycle report is unknown
		s.logger.Warn("could not list streaks after delete", slog.String("error", err.Error()))
	} else {
		result.ColorRecycled = palette.Recyclable(streak.Color, model.Colors(remaining))
	}

	s.logger.Info("streak deleted",
		slog.String("id", id),
		slog.String("userID", userID),
		slog.Bool("colorRecycled", result.ColorRecycled),
	)
	return result, nil
}

// CheckIn marks today completed.
//
// Check-ins on broken or completed streaks and repeats on the same day are
// no-ops that still succeed. An active streak always takes today's day;
// a missed yesterday is left for revalidation to break. Reaching the target
// completes the streak and issues its badge; retrying after a failed
// issuance issues it then.
func (s *StreakService) CheckIn(ctx context.Context, userID, id string) (*CheckInResult, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}

	today := s.dates.Today()
	var outcome lifecycle.Outcome
	saved, err := s.streaks.Update(ctx, userID, id, func(st *model.Streak) error {
		outcome = lifecycle.CheckIn(st, today)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CheckInResult{
		Streak:    saved,
		CheckedIn: outcome.Applied,
		Completed: outcome.Completed,
	}
	if outcome.Applied {
		s.logger.Info("streak checked in",
			slog.String("id", id),
			slog.String("day", string(today)),
			slog.Int("count", saved.Count()),
		)
	}

	if saved.Status == model.StatusCompleted {
		badge, err := s.badges.Issue(ctx, *saved)
		if err != nil {
			return nil, fmt.Errorf("issuing badge: %w", err)
		}
		if outcome.Completed {
			s.logger.Info("streak completed", slog.String("id", id), slog.String("userID", userID))
		}
		result.Badge = badge
	}
	return result, nil
}

// Break marks an active streak broken. Other statuses are left alone.
func (s *StreakService) Break(ctx context.Context, userID, id string) (*model.Streak, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireID(id); err != nil {
		return nil, err
	}
	flipped := false
	saved, err := s.streaks.Update(ctx, userID, id, func(st *model.Streak) error {
		flipped = st.Status == model.StatusActive
		if flipped {
			st.Status = model.StatusBroken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if flipped {
		s.logger.Info("streak broken", slog.String("id", id), slog.String("userID", userID))
	}
	return saved, nil
}

// CompletedDaysInMonth lists the days of month on which the streak was
// checked in.
func (s *StreakService) CompletedDaysInMonth(ctx context.Context, userID, id string, year int, month time.Month) ([]int, error) {
	if month < time.January || month > time.December {
		return nil, apperror.ValidationFailed("month", "month must be between 1 and 12")
	}
	if year < 1 || year > 9999 {
		return nil, apperror.ValidationFailed("year", "year is out of range")
	}
	streak, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return lifecycle.DaysInMonth(*streak, year, month), nil
}

// breakIfMissed re-checks the predicate against the row read inside the
// transaction, so a check-in that landed since the list was read wins.
func breakIfMissed(today civil.Date) func(*model.Streak) error {
	return func(st *model.Streak) error {
		if st.Status == model.StatusActive && lifecycle.IsBroken(*st, today) {
			st.Status = model.StatusBroken
		}
		return nil
	}
}
