// Package worker runs background maintenance for the server.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Revalidator breaks every overdue streak in the store.
type Revalidator interface {
	RevalidateAll(ctx context.Context) (int, error)
}

// Midnight reports the time left before the civil date changes.
type Midnight interface {
	UntilTomorrow() time.Duration
}

// sweepTimeout bounds one pass.
const sweepTimeout = 2 * time.Minute

// Sweeper revalidates all streaks on an interval and right after each
// civil midnight, so stored statuses stay current for users who are not
// online to trigger revalidation themselves.
type Sweeper struct {
	target   Revalidator
	midnight Midnight
	interval time.Duration
	logger   *slog.Logger

	done      chan struct{}
	kick      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSweeper returns a stopped Sweeper. An interval of zero disables the
// periodic pass; midnight passes still run when midnight is non-nil.
func NewSweeper(target Revalidator, midnight Midnight, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		target:   target,
		midnight: midnight,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
		kick:     make(chan struct{}, 1),
	}
}

// Start runs one pass immediately and then schedules the rest.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting streak sweeper", slog.Duration("interval", s.interval))
		s.wg.Add(1)
		go s.loop()
	})
}

// Stop ends the loop and waits for an in-flight pass.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping streak sweeper")
		close(s.done)
	})
	s.wg.Wait()
}

// Kick requests a pass as soon as possible. Repeated kicks coalesce.
func (s *Sweeper) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.sweep("startup")
	for {
		var midnight <-chan time.Time
		var timer *time.Timer
		if s.midnight != nil {
			// a second past the boundary so Today has moved on
			timer = time.NewTimer(s.midnight.UntilTomorrow() + time.Second)
			midnight = timer.C
		}

		reason := ""
		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-tick:
			reason = "interval"
		case <-midnight:
			reason = "midnight"
		case <-s.kick:
			reason = "kick"
		}
		if timer != nil {
			timer.Stop()
		}
		s.sweep(reason)
	}
}

func (s *Sweeper) sweep(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	n, err := s.target.RevalidateAll(ctx)
	if err != nil {
		s.logger.Error("streak sweep failed",
			slog.String("reason", reason),
			slog.Int("broken", n),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("streak sweep finished",
		slog.String("reason", reason),
		slog.Int("broken", n),
		slog.Duration("duration", time.Since(start)),
	)
}
