package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/streakme/internal/app"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/config"
	"github.com/sakif/streakme/internal/repository/sqlite"
)

func newTestServer(t *testing.T, cfg config.Config) (*Server, *app.App) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "server-test-secret"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.NewWithStore(cfg, store, civil.NewFixedClockOn(civil.MustParse("2025-06-10")), logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return New(a), a
}

func request(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRoutes_Health(t *testing.T) {
	s, _ := newTestServer(t, config.Config{})
	rr := request(t, s.Handler(), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestRoutes_RequireAuth(t *testing.T) {
	s, _ := newTestServer(t, config.Config{})

	for _, path := range []string{"/api/me", "/api/streaks", "/api/badges", "/api/streaks/events"} {
		rr := request(t, s.Handler(), http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	rr := request(t, s.Handler(), http.MethodGet, "/api/streaks", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRoutes_StreakFlow(t *testing.T) {
	s, a := newTestServer(t, config.Config{})
	token, err := a.Tokens.Generate("u1")
	require.NoError(t, err)
	h := s.Handler()

	rr := request(t, h, http.MethodPost, "/api/streaks", token, `{"name":"Run","targetDays":3}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Equal(t, 1, created.Count)

	rr = request(t, h, http.MethodGet, "/api/streaks/"+created.ID, token, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = request(t, h, http.MethodPatch, "/api/streaks/"+created.ID, token, `{"name":"Morning run"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Morning run")

	rr = request(t, h, http.MethodPost, "/api/streaks/"+created.ID+"/check-in", token, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = request(t, h, http.MethodGet, "/api/streaks/"+created.ID+"/days?year=2025&month=6", token, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"year":2025,"month":6,"days":[10]}`, rr.Body.String())

	rr = request(t, h, http.MethodGet, "/api/streaks/"+created.ID+"/badge", token, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// streaks are scoped to their owner
	other, err := a.Tokens.Generate("u2")
	require.NoError(t, err)
	rr = request(t, h, http.MethodGet, "/api/streaks/"+created.ID, other, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = request(t, h, http.MethodPost, "/api/streaks/"+created.ID+"/break", token, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"broken"`)

	rr = request(t, h, http.MethodDelete, "/api/streaks/"+created.ID, token, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = request(t, h, http.MethodGet, "/api/streaks", token, "")
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestRoutes_GitHubOnlyWhenConfigured(t *testing.T) {
	s, _ := newTestServer(t, config.Config{})
	rr := request(t, s.Handler(), http.MethodGet, "/auth/github", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	s, _ = newTestServer(t, config.Config{
		GitHubClientID:     "id",
		GitHubClientSecret: "secret",
		GitHubCallbackURL:  "http://localhost:8080/auth/github/callback",
	})
	rr = request(t, s.Handler(), http.MethodGet, "/auth/github", "", "")
	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
}

func TestRoutes_EventStreamThroughMiddleware(t *testing.T) {
	s, a := newTestServer(t, config.Config{})
	token, err := a.Tokens.Generate("u1")
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(s.events.Shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/streaks/events", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	select {
	case line := <-lines:
		assert.True(t, strings.HasPrefix(line, "event: streaks"), line)
	case <-time.After(3 * time.Second):
		t.Fatal("no event through the router")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, config.Config{Port: 0})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
