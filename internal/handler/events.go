package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sakif/streakme/internal/live"
	"github.com/sakif/streakme/internal/model"
)

// SessionFunc opens a live session for a user.
type SessionFunc func(userID string) (*live.Manager, error)

// EventsHandler streams live snapshots as server-sent events. Each
// connection gets its own live session, closed when the client goes away.
//
// Wire format, one event per snapshot:
//
//	event: streaks
//	data: [{"id":"...","name":"Run",...}]
//
// A subscription that ends on its own (a watched streak was deleted) sends
// a final "error" event carrying an ErrorResponse.
type EventsHandler struct {
	sessions  SessionFunc
	keepAlive time.Duration
	logger    *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// DefaultKeepAlive is the comment-line interval that keeps proxies from
// dropping idle streams.
const DefaultKeepAlive = 25 * time.Second

func NewEventsHandler(sessions SessionFunc, keepAlive time.Duration, logger *slog.Logger) *EventsHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &EventsHandler{
		sessions:  sessions,
		keepAlive: keepAlive,
		logger:    logger,
		closing:   make(chan struct{}),
	}
}

// Shutdown ends every open stream. http.Server.Shutdown waits for
// requests to finish, and a stream never does on its own.
func (h *EventsHandler) Shutdown() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// HandleStreaks streams the user's streak list.
//
// HTTP: GET /api/streaks/events
func (h *EventsHandler) HandleStreaks(w http.ResponseWriter, r *http.Request) {
	m, err := h.sessions(currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	defer m.Close()

	sub, err := m.SubscribeStreaks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Cancel()
	stream(w, r, h, "streaks", sub, streakResponses)
}

// HandleStreak streams one streak until it is deleted.
//
// HTTP: GET /api/streaks/{id}/events
func (h *EventsHandler) HandleStreak(w http.ResponseWriter, r *http.Request) {
	m, err := h.sessions(currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	defer m.Close()

	sub, err := m.SubscribeStreak(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Cancel()
	stream(w, r, h, "streak", sub, streakResponse)
}

// HandleBadges streams the user's badges.
//
// HTTP: GET /api/badges/events
func (h *EventsHandler) HandleBadges(w http.ResponseWriter, r *http.Request) {
	m, err := h.sessions(currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	defer m.Close()

	sub, err := m.SubscribeBadges(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Cancel()
	stream(w, r, h, "badges", sub, func(b []model.Badge) []model.Badge { return b })
}

func stream[T, R any](w http.ResponseWriter, r *http.Request, h *EventsHandler, event string, sub *live.Subscription[T], render func(T) R) {
	rc := http.NewResponseController(w)
	// streams outlive the server's WriteTimeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("event stream cannot flush", slog.String("error", err.Error()))
		return
	}

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.closing:
			return
		case v, ok := <-sub.Updates():
			if !ok {
				if err := sub.Err(); err != nil {
					_, resp := errorResponse(err)
					writeEvent(w, "error", resp)
					rc.Flush()
				}
				return
			}
			if err := writeEvent(w, event, render(v)); err != nil {
				h.logger.Error("failed to write event", slog.String("event", event), slog.String("error", err.Error()))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}
