package live

import (
	"context"
	"sync"
)

// Subscription is a stream of snapshots. Updates holds at most one
// pending value: a reader that falls behind sees the latest snapshot,
// not every intermediate one.
type Subscription[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

func newSubscription[T any](cancel context.CancelFunc) *Subscription[T] {
	return &Subscription[T]{
		updates: make(chan T, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Updates delivers snapshots. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan T { return s.updates }

// Done is closed when the subscription has fully stopped.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended on its own, for example
// apperror.ErrNotFound when a watched streak was deleted. It is nil after
// Cancel or while the subscription is running.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops the subscription and waits for it to wind down. Once it
// returns, Updates is closed and yields no further snapshot. Safe to call
// more than once and from several goroutines.
func (s *Subscription[T]) Cancel() {
	s.cancel()
	<-s.done
}

func (s *Subscription[T]) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// offer replaces any pending snapshot with v. Only the run loop sends, so
// after the drain the buffer has room.
func (s *Subscription[T]) offer(v T) {
	select {
	case s.updates <- v:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- v
}

// finish drops an unread snapshot and closes the stream.
func (s *Subscription[T]) finish() {
	select {
	case <-s.updates:
	default:
	}
	close(s.updates)
	close(s.done)
}
