package civil

import "time"

// Normalizer answers "what day is it" in Zone for a given Clock.
type Normalizer struct {
	clock Clock
}

// NewNormalizer returns a Normalizer reading from clock. A nil clock
// means SystemClock.
func NewNormalizer(clock Clock) *Normalizer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Normalizer{clock: clock}
}

// Today returns the current civil date.
func (n *Normalizer) Today() Date {
	return Of(n.clock.Now())
}

// Yesterday returns the civil date before Today.
func (n *Normalizer) Yesterday() Date {
	return n.Today().AddDays(-1)
}

// DateOf returns the civil date of t.
func (n *Normalizer) DateOf(t time.Time) Date {
	return Of(t)
}

// Now returns the clock's current time. Used for server-assigned timestamps.
func (n *Normalizer) Now() time.Time {
	return n.clock.Now()
}

// UntilTomorrow returns the time left before the civil date changes.
func (n *Normalizer) UntilTomorrow() time.Duration {
	now := n.clock.Now()
	return Of(now).AddDays(1).Time().Sub(now)
}
