package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/lifecycle"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/service"
)

// StreakHandler serves /api/streaks. Every route sits behind RequireAuth;
// the user comes from the request context, never from the body.
type StreakHandler struct {
	streaks *service.StreakService
	dates   *civil.Normalizer
	logger  *slog.Logger
}

func NewStreakHandler(streaks *service.StreakService, dates *civil.Normalizer, logger *slog.Logger) *StreakHandler {
	return &StreakHandler{streaks: streaks, dates: dates, logger: logger}
}

// StreakResponse is a streak plus its derived progress.
type StreakResponse struct {
	model.Streak
	Count   int `json:"count"`
	Percent int `json:"percent"`
}

func streakResponse(s model.Streak) StreakResponse {
	count, percent := lifecycle.Progress(s)
	return StreakResponse{Streak: s, Count: count, Percent: percent}
}

func streakResponses(streaks []model.Streak) []StreakResponse {
	out := make([]StreakResponse, 0, len(streaks))
	for _, s := range streaks {
		out = append(out, streakResponse(s))
	}
	return out
}

// HandleList returns the user's streaks with today's statuses.
//
// HTTP: GET /api/streaks
func (h *StreakHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	streaks, err := h.streaks.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streakResponses(streaks))
}

// HandleCreate starts a streak.
//
// HTTP: POST /api/streaks
// REQUEST BODY: {"name": "Run", "targetDays": 30, "notes": "before work"}
func (h *StreakHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateStreakInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.streaks.Create(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, streakResponse(*s))
}

// HandleGet returns one streak.
//
// HTTP: GET /api/streaks/{id}
func (h *StreakHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.streaks.Get(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streakResponse(*s))
}

// HandleUpdate renames a streak or edits its notes. Omitted fields keep
// their values.
//
// HTTP: PATCH /api/streaks/{id}
// REQUEST BODY: {"name": "Morning run"}
func (h *StreakHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateStreakInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	s, err := h.streaks.Update(r.Context(), currentUser(r), r.PathValue("id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streakResponse(*s))
}

// HandleDelete removes a streak and its badge.
//
// HTTP: DELETE /api/streaks/{id}
// RESPONSE: {"colorRecycled": true}
func (h *StreakHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	res, err := h.streaks.Delete(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CheckInResponse reports a check-in.
type CheckInResponse struct {
	Streak    StreakResponse `json:"streak"`
	CheckedIn bool           `json:"checkedIn"`
	Completed bool           `json:"completed"`
	Badge     *model.Badge   `json:"badge,omitempty"`
}

// HandleCheckIn marks today completed. Repeats are no-ops reported with
// checkedIn=false.
//
// HTTP: POST /api/streaks/{id}/check-in
func (h *StreakHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	res, err := h.streaks.CheckIn(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckInResponse{
		Streak:    streakResponse(*res.Streak),
		CheckedIn: res.CheckedIn,
		Completed: res.Completed,
		Badge:     res.Badge,
	})
}

// HandleBreak gives up on an active streak.
//
// HTTP: POST /api/streaks/{id}/break
func (h *StreakHandler) HandleBreak(w http.ResponseWriter, r *http.Request) {
	s, err := h.streaks.Break(r.Context(), currentUser(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, streakResponse(*s))
}

// DaysResponse lists the checked-in days of one month.
type DaysResponse struct {
	Year  int   `json:"year"`
	Month int   `json:"month"`
	Days  []int `json:"days"`
}

// HandleDays lists the days of a month on which the streak was checked
// in. year and month default to the current civil month.
//
// HTTP: GET /api/streaks/{id}/days?year=2025&month=6
func (h *StreakHandler) HandleDays(w http.ResponseWriter, r *http.Request) {
	today := h.dates.Today().Time()
	year, err := intQuery(r, "year", today.Year())
	if err != nil {
		writeError(w, err)
		return
	}
	month, err := intQuery(r, "month", int(today.Month()))
	if err != nil {
		writeError(w, err)
		return
	}

	days, err := h.streaks.CompletedDaysInMonth(r.Context(), currentUser(r), r.PathValue("id"), year, time.Month(month))
	if err != nil {
		writeError(w, err)
		return
	}
	if days == nil {
		days = []int{}
	}
	writeJSON(w, http.StatusOK, DaysResponse{Year: year, Month: month, Days: days})
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.ValidationFailed(key, key+" must be a number")
	}
	return n, nil
}
