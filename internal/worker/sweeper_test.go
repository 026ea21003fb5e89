package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRevalidator struct {
	calls atomic.Int32
	err   error
	block chan struct{} // when set, RevalidateAll waits on it or ctx
}

func (c *countingRevalidator) RevalidateAll(ctx context.Context) (int, error) {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 1, c.err
}

type fixedMidnight time.Duration

func (m fixedMidnight) UntilTomorrow() time.Duration { return time.Duration(m) }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSweeper_RunsAtStartupAndOnInterval(t *testing.T) {
	rv := &countingRevalidator{}
	s := NewSweeper(rv, nil, 10*time.Millisecond, quietLogger())
	s.Start()
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return rv.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestSweeper_KickWithoutInterval(t *testing.T) {
	rv := &countingRevalidator{}
	s := NewSweeper(rv, nil, 0, quietLogger())
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return rv.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	s.Kick()
	require.Eventually(t, func() bool { return rv.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestSweeper_MidnightPass(t *testing.T) {
	rv := &countingRevalidator{}
	// the sweeper adds a second past the boundary
	s := NewSweeper(rv, fixedMidnight(-time.Second+5*time.Millisecond), 0, quietLogger())
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return rv.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestSweeper_FailuresKeepLoopAlive(t *testing.T) {
	rv := &countingRevalidator{err: errors.New("store down")}
	s := NewSweeper(rv, nil, 10*time.Millisecond, quietLogger())
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return rv.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestSweeper_StopCancelsInFlightPass(t *testing.T) {
	rv := &countingRevalidator{block: make(chan struct{})}
	s := NewSweeper(rv, nil, 0, quietLogger())
	s.Start()
	require.Eventually(t, func() bool { return rv.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel the running pass")
	}
	s.Stop()
	assert.Equal(t, int32(1), rv.calls.Load())
}
