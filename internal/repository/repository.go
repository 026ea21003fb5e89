// Package repository declares the storage contracts the services depend on.
//
// Every collection is partitioned by user: a streak or badge id is only
// meaningful together with the userID that owns it. Implementations live
// in the sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/sakif/streakme/internal/feed"
	"github.com/sakif/streakme/internal/model"
)

// StreakRepository stores streaks and their completed days.
type StreakRepository interface {
	// Create assigns ID and timestamps and inserts s with its days.
	Create(ctx context.Context, s *model.Streak) error
	GetByID(ctx context.Context, userID, id string) (*model.Streak, error)
	// List returns all of the user's streaks, oldest first.
	List(ctx context.Context, userID string) ([]model.Streak, error)
	// Update runs fn on the current streak inside a transaction and saves
	// what it changed. Name, Notes and Status are overwritten; days are
	// merged as a set union, so days fn removes are kept. If fn returns an
	// error nothing is written. The saved streak is returned.
	Update(ctx context.Context, userID, id string, fn func(*model.Streak) error) (*model.Streak, error)
	// Delete removes the streak and every badge earned from it.
	Delete(ctx context.Context, userID, id string) error
	// ListOwners returns the ids of users holding at least one active streak.
	ListOwners(ctx context.Context) ([]string, error)
}

// BadgeRepository stores badges.
type BadgeRepository interface {
	// CreateIfAbsent inserts b unless the user already has a badge for
	// b.StreakID. It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, b *model.Badge) (bool, error)
	GetByStreakID(ctx context.Context, userID, streakID string) (*model.Badge, error)
	// List returns the user's badges, most recently earned first.
	List(ctx context.Context, userID string) ([]model.Badge, error)
	Delete(ctx context.Context, userID, id string) error
}

// UserRepository stores accounts.
type UserRepository interface {
	// Upsert inserts or refreshes a GitHub account keyed by GitHubID.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// CreateLocal inserts an email account. Returns apperror.ErrConflict
	// when the email is taken.
	CreateLocal(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByVerifyToken(ctx context.Context, token string) (*model.User, error)
	GetByResetToken(ctx context.Context, token string) (*model.User, error)
	// Save overwrites the mutable account fields of an existing user.
	Save(ctx context.Context, user *model.User) error
}

// ChangeFeed notifies listeners when a user's collection changes.
type ChangeFeed interface {
	Subscribe(userID string, c feed.Collection) *feed.Listener
}

// Store is everything a backend provides.
type Store interface {
	Streaks() StreakRepository
	Badges() BadgeRepository
	Users() UserRepository
	ChangeFeed
	Close() error
}
