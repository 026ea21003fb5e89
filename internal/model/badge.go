package model

import "time"

// Badge is issued once per streak when it reaches its target.
//
// StreakName and DaysCompleted are snapshots taken at issuance; renaming
// the streak later does not change them.
type Badge struct {
	ID            string    `json:"id"            db:"id"`
	UserID        string    `json:"userId"        db:"user_id"`
	StreakID      string    `json:"streakId"      db:"streak_id"`
	StreakName    string    `json:"streakName"    db:"streak_name"`
	DaysCompleted int       `json:"daysCompleted" db:"days_completed"`
	DateEarned    time.Time `json:"dateEarned"    db:"date_earned" hash:"ignore"`
}
