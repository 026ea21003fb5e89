// Package lifecycle is the streak state machine.
//
//	active --check-in (count < target)--> active
//	active --check-in (count == target)--> completed
//	active --revalidate (IsBroken)--> broken
//
// broken and completed are terminal. Every function here is pure: callers
// pass "today" explicitly and persist the result themselves.
package lifecycle

import (
	"slices"
	"time"

	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/model"
)

// Outcome reports what CheckIn did.
type Outcome struct {
	Applied   bool // today was appended
	Completed bool // the streak just reached its target
}

// Start prepares a new streak created on today. Creation counts as day one.
func Start(s *model.Streak, today civil.Date) {
	s.StartDate = today
	s.CompletedDays = []civil.Date{today}
	s.Status = model.StatusActive
}

// CheckIn marks today completed on s.
//
// A check-in on a broken or completed streak, or a second one on the same
// day, leaves s untouched and returns the zero Outcome.
func CheckIn(s *model.Streak, today civil.Date) Outcome {
	if s.Status != model.StatusActive || s.HasDay(today) {
		return Outcome{}
	}
	if s.Count() >= s.TargetDays {
		// already at target but never flipped; settle the status only
		s.Status = model.StatusCompleted
		return Outcome{Completed: true}
	}
	s.CompletedDays = append(s.CompletedDays, today)
	if s.Count() == s.TargetDays {
		s.Status = model.StatusCompleted
		return Outcome{Applied: true, Completed: true}
	}
	return Outcome{Applied: true}
}

// IsBroken reports whether s has missed a day.
//
// The whole of CompletedDays is scanned for yesterday, so the answer does
// not depend on the order days were stored in.
func IsBroken(s model.Streak, today civil.Date) bool {
	if s.Status == model.StatusCompleted {
		return false
	}
	if len(s.CompletedDays) == 0 {
		return false
	}
	if s.StartDate == today {
		return false
	}
	if len(s.CompletedDays) == 1 && s.CompletedDays[0] == today {
		return false
	}
	return !s.HasDay(today.AddDays(-1))
}

// Revalidate breaks every active streak for which IsBroken holds.
// It returns a new slice and the ids that changed; the input is not modified.
func Revalidate(streaks []model.Streak, today civil.Date) ([]model.Streak, []string) {
	out := make([]model.Streak, len(streaks))
	var broken []string
	for i, s := range streaks {
		out[i] = s.Clone()
		if s.Status == model.StatusActive && IsBroken(s, today) {
			out[i].Status = model.StatusBroken
			broken = append(broken, s.ID)
		}
	}
	return out, broken
}

// DaysInMonth returns the sorted days of the month on which s was checked in.
func DaysInMonth(s model.Streak, year int, month time.Month) []int {
	days := make([]int, 0, len(s.CompletedDays))
	for _, d := range s.CompletedDays {
		if d.In(year, month) {
			days = append(days, d.Day())
		}
	}
	slices.Sort(days)
	return slices.Compact(days)
}

// Progress returns the completed day count and the percentage of the target.
func Progress(s model.Streak) (count int, percent int) {
	count = s.Count()
	if s.TargetDays <= 0 {
		return count, 0
	}
	percent = count * 100 / s.TargetDays
	if percent > 100 {
		percent = 100
	}
	return count, percent
}

// MergeDays returns the set union of a and b, sorted ascending.
func MergeDays(a, b []civil.Date) []civil.Date {
	out := make([]civil.Date, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

// AddedDays returns the days of next missing from current, without
// duplicates, in the order they appear in next.
func AddedDays(current, next []civil.Date) []civil.Date {
	var added []civil.Date
	for _, d := range next {
		if !slices.Contains(current, d) && !slices.Contains(added, d) {
			added = append(added, d)
		}
	}
	return added
}
