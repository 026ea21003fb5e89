package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/streakme/internal/handler"
	"github.com/sakif/streakme/internal/live"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/service"
)

type sseEvent struct {
	name string
	data string
}

// openStream connects to path and parses events off the body until it
// closes.
func openStream(t *testing.T, srv *httptest.Server, path string) (<-chan sseEvent, *http.Response) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.name != "":
				events <- ev
				ev = sseEvent{}
			}
		}
	}()
	return events, resp
}

func next(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event")
		return sseEvent{}
	}
}

func newEventsServer(t *testing.T, env *testEnv, keepAlive time.Duration) (*httptest.Server, *handler.EventsHandler) {
	t.Helper()
	h := handler.NewEventsHandler(env.live, keepAlive, env.logger)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /streaks/events", withUser(h.HandleStreaks, "u1"))
	mux.HandleFunc("GET /streaks/{id}/events", withUser(h.HandleStreak, "u1"))
	mux.HandleFunc("GET /badges/events", withUser(h.HandleBadges, "u1"))
	srv := httptest.NewServer(mux)
	// registered first so it runs last, after the client bodies are closed
	t.Cleanup(srv.Close)
	t.Cleanup(h.Shutdown)
	return srv, h
}

func TestEventsHandler_StreaksFollowWrites(t *testing.T) {
	env := newTestEnv(t)
	srv, _ := newEventsServer(t, env, time.Minute)
	ctx := context.Background()

	events, resp := openStream(t, srv, "/streaks/events")
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	first := next(t, events)
	assert.Equal(t, "streaks", first.name)
	assert.Equal(t, "[]", first.data)

	_, err := env.streaks.Create(ctx, "u1", service.CreateStreakInput{Name: "Run", TargetDays: 3})
	require.NoError(t, err)

	ev := next(t, events)
	var list []handler.StreakResponse
	require.NoError(t, json.Unmarshal([]byte(ev.data), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Run", list[0].Name)
	assert.Equal(t, 1, list[0].Count)

	// another user's writes never reach this stream
	_, err = env.streaks.Create(ctx, "u2", service.CreateStreakInput{Name: "Swim", TargetDays: 3})
	require.NoError(t, err)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %q: %s", ev.name, ev.data)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestEventsHandler_StreakEndsOnDelete(t *testing.T) {
	env := newTestEnv(t)
	srv, _ := newEventsServer(t, env, time.Minute)
	ctx := context.Background()

	s, err := env.streaks.Create(ctx, "u1", service.CreateStreakInput{Name: "Run", TargetDays: 3})
	require.NoError(t, err)

	events, _ := openStream(t, srv, "/streaks/"+s.ID+"/events")
	first := next(t, events)
	assert.Equal(t, "streak", first.name)
	var got handler.StreakResponse
	require.NoError(t, json.Unmarshal([]byte(first.data), &got))
	assert.Equal(t, s.ID, got.ID)

	_, err = env.streaks.Delete(ctx, "u1", s.ID)
	require.NoError(t, err)

	last := next(t, events)
	assert.Equal(t, "error", last.name)
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(last.data), &resp))
	assert.Equal(t, "not_found", resp.Error)

	_, open := <-events
	assert.False(t, open, "stream should end after the error event")
}

func TestEventsHandler_Badges(t *testing.T) {
	env := newTestEnv(t)
	srv, _ := newEventsServer(t, env, time.Minute)
	ctx := context.Background()

	s, err := env.streaks.Create(ctx, "u1", service.CreateStreakInput{Name: "Run", TargetDays: 3})
	require.NoError(t, err)

	events, _ := openStream(t, srv, "/badges/events")
	assert.Equal(t, "[]", next(t, events).data)

	for range 2 {
		env.clock.AdvanceDays(1)
		_, err := env.streaks.CheckIn(ctx, "u1", s.ID)
		require.NoError(t, err)
	}

	ev := next(t, events)
	assert.Equal(t, "badges", ev.name)
	var badges []model.Badge
	require.NoError(t, json.Unmarshal([]byte(ev.data), &badges))
	require.Len(t, badges, 1)
	assert.Equal(t, s.ID, badges[0].StreakID)
}

func TestEventsHandler_KeepAliveAndShutdown(t *testing.T) {
	env := newTestEnv(t)
	srv, h := newEventsServer(t, env, 20*time.Millisecond)

	resp, err := srv.Client().Get(srv.URL + "/streaks/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	timeout := time.After(3 * time.Second)
	for sawKeepAlive := false; !sawKeepAlive; {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			sawKeepAlive = line == ": keep-alive"
		case <-timeout:
			t.Fatal("no keep-alive comment")
		}
	}

	h.Shutdown()
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream still open after Shutdown")
		}
	}
}

func TestEventsHandler_SessionError(t *testing.T) {
	env := newTestEnv(t)
	h := handler.NewEventsHandler(func(string) (*live.Manager, error) {
		return nil, live.ErrClosed
	}, time.Minute, env.logger)

	rr := call(h.HandleStreaks, http.MethodGet, "/api/streaks/events", "u1", "", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal_error", decode[handler.ErrorResponse](t, rr).Error)
}
