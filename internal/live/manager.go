// Package live keeps a session's view of its streaks and badges current.
//
// A Manager belongs to one signed-in session. Each subscription reads the
// current state once, then re-reads whenever the store signals a change
// to the user's collection. Streak snapshots come from the service's
// List, so every push is already revalidated.
package live

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/feed"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/repository"
)

// RetryDelay is how long a subscription waits before re-reading after a
// failed read.
var RetryDelay = 2 * time.Second

// ErrClosed is returned when subscribing on a closed Manager.
var ErrClosed = errors.New("live: manager closed")

// StreakLister returns a user's revalidated streaks.
type StreakLister interface {
	List(ctx context.Context, userID string) ([]model.Streak, error)
}

// BadgeLister returns a user's badges.
type BadgeLister interface {
	List(ctx context.Context, userID string) ([]model.Badge, error)
}

// Manager owns the subscriptions of one session.
type Manager struct {
	userID  string
	streaks StreakLister
	badges  BadgeLister
	feed    repository.ChangeFeed
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewManager starts a session for userID.
func NewManager(userID string, streaks StreakLister, badges BadgeLister, changes repository.ChangeFeed, logger *slog.Logger) (*Manager, error) {
	if userID == "" {
		return nil, apperror.NotAuthenticated()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		userID:  userID,
		streaks: streaks,
		badges:  badges,
		feed:    changes,
		logger:  logger.With(slog.String("userID", userID)),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Close cancels every subscription and waits for them to stop.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

// SubscribeStreaks streams the user's streaks. It ends when ctx is done,
// on Cancel, or when the Manager closes.
func (m *Manager) SubscribeStreaks(ctx context.Context) (*Subscription[[]model.Streak], error) {
	return subscribe(ctx, m, feed.Streaks, func(ctx context.Context) ([]model.Streak, error) {
		return m.streaks.List(ctx, m.userID)
	})
}

// SubscribeBadges streams the user's badges, newest first.
func (m *Manager) SubscribeBadges(ctx context.Context) (*Subscription[[]model.Badge], error) {
	return subscribe(ctx, m, feed.Badges, func(ctx context.Context) ([]model.Badge, error) {
		return m.badges.List(ctx, m.userID)
	})
}

// SubscribeStreak streams one streak. Deleting it ends the subscription
// with Err reporting apperror.ErrNotFound.
func (m *Manager) SubscribeStreak(ctx context.Context, id string) (*Subscription[model.Streak], error) {
	return subscribe(ctx, m, feed.Streaks, func(ctx context.Context) (model.Streak, error) {
		all, err := m.streaks.List(ctx, m.userID)
		if err != nil {
			return model.Streak{}, err
		}
		i := slices.IndexFunc(all, func(s model.Streak) bool { return s.ID == id })
		if i < 0 {
			return model.Streak{}, apperror.NotFound("streak", id)
		}
		return all[i], nil
	})
}

func subscribe[T any](parent context.Context, m *Manager, c feed.Collection, fetch func(context.Context) (T, error)) (*Subscription[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(m.ctx, cancel)
	sub := newSubscription[T](cancel)

	// listen before the first read so no change slips between them
	listener := m.feed.Subscribe(m.userID, c)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer stop()
		defer cancel()
		defer sub.finish()
		defer listener.Close()
		loop(ctx, m.logger, c, listener, fetch, sub.offer, sub.fail)
	}()
	return sub, nil
}

// loop pushes the current state, then a fresh read after every signal.
// Identical consecutive snapshots are pushed once.
func loop[T any](
	ctx context.Context,
	logger *slog.Logger,
	c feed.Collection,
	listener *feed.Listener,
	fetch func(context.Context) (T, error),
	offer func(T),
	fail func(error),
) {
	var (
		last  uint64
		seen  bool
		retry <-chan time.Time
	)

	// refresh reads and pushes; false ends the subscription.
	refresh := func() bool {
		retry = nil
		v, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrNotAuthenticated) {
				fail(err)
				return false
			}
			logger.Warn("live: refresh failed",
				slog.String("collection", string(c)),
				slog.String("error", err.Error()),
			)
			retry = time.After(RetryDelay)
			return true
		}

		h, herr := hashstructure.Hash(v, hashstructure.FormatV2, nil)
		if herr == nil && seen && h == last {
			return true
		}
		last, seen = h, herr == nil
		offer(v)
		return true
	}

	if !refresh() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.C():
		case <-retry:
		}
		if !refresh() {
			return
		}
	}
}
