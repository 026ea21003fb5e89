package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func received(l *Listener) bool {
	select {
	case <-l.C():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

func TestPublish_OnlyMatchingTopic(t *testing.T) {
	h := NewHub()
	streaks := h.Subscribe("u1", Streaks)
	badges := h.Subscribe("u1", Badges)
	other := h.Subscribe("u2", Streaks)
	t.Cleanup(func() { streaks.Close(); badges.Close(); other.Close() })

	h.Publish("u1", Streaks)

	assert.True(t, received(streaks))
	assert.False(t, received(badges))
	assert.False(t, received(other))
}

func TestPublish_Coalesces(t *testing.T) {
	h := NewHub()
	l := h.Subscribe("u1", Streaks)
	defer l.Close()

	for i := 0; i < 10; i++ {
		h.Publish("u1", Streaks)
	}

	assert.True(t, received(l))
	assert.False(t, received(l), "ten publishes should leave one pending signal")
}

func TestClose_Unregisters(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("u1", Streaks)
	b := h.Subscribe("u1", Streaks)
	assert.Equal(t, 2, h.Count("u1", Streaks))

	a.Close()
	a.Close()
	assert.Equal(t, 1, h.Count("u1", Streaks))

	h.Publish("u1", Streaks)
	assert.False(t, received(a))
	assert.True(t, received(b))

	b.Close()
	assert.Equal(t, 0, h.Count("u1", Streaks))
}

func TestBroadcast_ReachesEveryTopic(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("u1", Streaks)
	b := h.Subscribe("u2", Badges)
	t.Cleanup(func() { a.Close(); b.Close() })

	h.Broadcast()
	h.Broadcast()

	assert.True(t, received(a))
	assert.True(t, received(b))
	assert.False(t, received(a))
}
