package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/repository"
)

// BadgeService issues and lists badges. A streak earns at most one.
type BadgeService struct {
	badges repository.BadgeRepository
	dates  *civil.Normalizer
	logger *slog.Logger
}

func NewBadgeService(badges repository.BadgeRepository, dates *civil.Normalizer, logger *slog.Logger) *BadgeService {
	return &BadgeService{badges: badges, dates: dates, logger: logger}
}

// Issue returns the badge for a completed streak, creating it on first call.
// Concurrent callers all get the same badge.
func (s *BadgeService) Issue(ctx context.Context, streak model.Streak) (*model.Badge, error) {
	if streak.Status != model.StatusCompleted {
		return nil, apperror.ValidationFailed("status", "only completed streaks earn a badge")
	}

	existing, err := s.badges.GetByStreakID(ctx, streak.UserID, streak.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	badge := &model.Badge{
		UserID:        streak.UserID,
		StreakID:      streak.ID,
		StreakName:    streak.Name,
		DaysCompleted: streak.Count(),
		DateEarned:    s.dates.Now(),
	}
	created, err := s.badges.CreateIfAbsent(ctx, badge)
	if err != nil {
		s.logger.Error("failed to issue badge",
			slog.String("streakID", streak.ID),
			slog.String("userID", streak.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating badge: %w", err)
	}
	if !created {
		// another check-in won the insert
		return s.badges.GetByStreakID(ctx, streak.UserID, streak.ID)
	}

	s.logger.Info("badge issued",
		slog.String("id", badge.ID),
		slog.String("streakID", streak.ID),
		slog.String("userID", streak.UserID),
		slog.Int("daysCompleted", badge.DaysCompleted),
	)
	return badge, nil
}

// List returns the user's badges, newest first.
func (s *BadgeService) List(ctx context.Context, userID string) ([]model.Badge, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.badges.List(ctx, userID)
}

// GetByStreak returns the badge earned from streakID.
func (s *BadgeService) GetByStreak(ctx context.Context, userID, streakID string) (*model.Badge, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := requireID(streakID); err != nil {
		return nil, err
	}
	return s.badges.GetByStreakID(ctx, userID, streakID)
}
