package model

import (
	"slices"
	"time"

	"github.com/sakif/streakme/internal/civil"
)

// Status is a streak's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusBroken    Status = "broken"
	StatusCompleted Status = "completed"
)

// Terminal reports whether no automatic transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusBroken || s == StatusCompleted
}

// Streak is a named habit tracked toward TargetDays check-ins.
//
// CompletedDays is a set: no date appears twice, and order carries no
// meaning. Stores return it sorted ascending.
type Streak struct {
	ID            string       `json:"id"            db:"id"`
	UserID        string       `json:"userId"        db:"user_id"`
	Name          string       `json:"name"          db:"name"`
	TargetDays    int          `json:"targetDays"    db:"target_days"`
	StartDate     civil.Date   `json:"startDate"     db:"start_date"`
	CompletedDays []civil.Date `json:"completedDays"`
	Status        Status       `json:"status"        db:"status"`
	Color         string       `json:"color"         db:"color"`
	Notes         string       `json:"notes"         db:"notes"`
	CreatedAt     time.Time    `json:"createdAt"     db:"created_at" hash:"ignore"`
	UpdatedAt     time.Time    `json:"updatedAt"     db:"updated_at" hash:"ignore"`
}

// HasDay reports whether d is among the completed days.
func (s Streak) HasDay(d civil.Date) bool {
	return slices.Contains(s.CompletedDays, d)
}

// Count is the number of completed days.
func (s Streak) Count() int {
	return len(s.CompletedDays)
}

// Clone returns a deep copy.
func (s Streak) Clone() Streak {
	s.CompletedDays = slices.Clone(s.CompletedDays)
	return s
}

// Colors returns the colors of streaks, in order.
func Colors(streaks []Streak) []string {
	out := make([]string, 0, len(streaks))
	for _, s := range streaks {
		out = append(out, s.Color)
	}
	return out
}
