package civil

import (
	"sync"
	"time"
)

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is deterministic and test-friendly.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(start time.Time) *FixedClock {
	return &FixedClock{t: start}
}

// NewFixedClockOn starts the clock at noon of d in Zone.
func NewFixedClockOn(d Date) *FixedClock {
	return NewFixedClock(d.Time().Add(12 * time.Hour))
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// AdvanceDays moves the clock forward n whole days.
func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	c.t = c.t.AddDate(0, 0, n)
	c.mu.Unlock()
}
