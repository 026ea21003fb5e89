package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/streakme/internal/service"
)

// BadgeHandler serves the read-only badge routes. Badges are only ever
// issued by a completing check-in.
type BadgeHandler struct {
	badges *service.BadgeService
	logger *slog.Logger
}

func NewBadgeHandler(badges *service.BadgeService, logger *slog.Logger) *BadgeHandler {
	return &BadgeHandler{badges: badges, logger: logger}
}

// HandleList returns the user's badges, most recent first.
//
// HTTP: GET /api/badges
func (h *BadgeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	badges, err := h.badges.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

// HandleGetForStreak returns the badge earned from one streak.
//
// HTTP: GET /api/streaks/{id}/badge
func (h *BadgeHandler) HandleGetForStreak(w http.ResponseWriter, r *http.Request) {
	b, err := h.badges.GetByStreak(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
