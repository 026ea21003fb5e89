package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/streakme/internal/auth"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/live"
	"github.com/sakif/streakme/internal/palette"
	"github.com/sakif/streakme/internal/repository/sqlite"
	"github.com/sakif/streakme/internal/service"
)

// testEnv is a full service stack over an in-memory database and a clock
// the test controls.
type testEnv struct {
	store    *sqlite.DB
	clock    *civil.FixedClock
	dates    *civil.Normalizer
	tokens   *auth.TokenService
	streaks  *service.StreakService
	badges   *service.BadgeService
	accounts *service.AuthService
	logger   *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := civil.NewFixedClockOn(civil.MustParse("2025-06-10"))
	dates := civil.NewNormalizer(clock)
	tokens, err := auth.NewTokenService("handler-test-secret")
	require.NoError(t, err)

	badges := service.NewBadgeService(store.Badges(), dates, logger)
	return &testEnv{
		store:    store,
		clock:    clock,
		dates:    dates,
		tokens:   tokens,
		badges:   badges,
		streaks:  service.NewStreakService(store.Streaks(), badges, palette.New(), dates, logger),
		accounts: service.NewAuthService(store.Users(), tokens, auth.NewPasswordServiceForTest(4), service.LogMailer{Logger: logger}, logger),
		logger:   logger,
	}
}

func (e *testEnv) live(userID string) (*live.Manager, error) {
	return live.NewManager(userID, e.streaks, e.badges, e.store, e.logger)
}

// call runs h as userID with the {id} path value set, the way the router
// would after RequireAuth.
func call(h http.HandlerFunc, method, target, userID, id, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	if id != "" {
		req.SetPathValue("id", id)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func withUser(h http.HandlerFunc, userID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	}
}
