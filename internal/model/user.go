// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an account that owns streaks and badges.
//
// Accounts come from one of two identity sources: GitHub OAuth (GitHubID
// set, always verified) or email and password (PasswordHash set, verified
// once the emailed token is redeemed). Only verified users get a session.
type User struct {
	ID            string    `json:"id"            db:"id"`
	GitHubID      int64     `json:"githubId"      db:"github_id"` // 0 for email accounts
	Login         string    `json:"login"         db:"login"`
	Email         string    `json:"email"         db:"email"`
	AvatarURL     string    `json:"avatarUrl"     db:"avatar_url"`
	PasswordHash  string    `json:"-"             db:"password_hash"`
	EmailVerified bool      `json:"emailVerified" db:"email_verified"`
	VerifyToken   string    `json:"-"             db:"verify_token"`
	ResetToken    string    `json:"-"             db:"reset_token"`
	ResetExpires  time.Time `json:"-"             db:"reset_expires_at"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}
