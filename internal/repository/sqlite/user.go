package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table.
type UserDB struct {
	db *DB
}

const userColumns = `id, COALESCE(github_id, 0), login, email, avatar_url,
	password_hash, email_verified, verify_token, reset_token, reset_expires_at,
	created_at, updated_at`

// Upsert inserts or updates a user based on their GitHub ID.
//
// Existing rows keep their internal ID; only the profile fields GitHub
// reports (login, email, avatar) are refreshed.
func (u *UserDB) Upsert(ctx context.Context, user *model.User) error {
	var (
		existingID string
		createdAt  time.Time
	)
	err := u.db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID, &createdAt)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return unavailable(fmt.Sprintf("looking up user by github_id %d", user.GitHubID), err)
	}

	user.EmailVerified = true
	if existingID != "" {
		user.ID = existingID
		user.CreatedAt = createdAt
		user.UpdatedAt = time.Now()
		_, err = u.db.conn.ExecContext(ctx,
			`UPDATE users SET login = ?, email = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			user.Login,
			user.Email,
			user.AvatarURL,
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			return unavailable("updating user "+user.ID, err)
		}
		return nil
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = u.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, email_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.Login,
		user.Email,
		user.AvatarURL,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return unavailable(fmt.Sprintf("inserting user (githubID=%d)", user.GitHubID), err)
	}
	return nil
}

// CreateLocal inserts an email/password account.
func (u *UserDB) CreateLocal(ctx context.Context, user *model.User) error {
	var taken int
	err := u.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ? AND github_id IS NULL`, user.Email,
	).Scan(&taken)
	if err != nil {
		return unavailable("checking email", err)
	}
	if taken > 0 {
		return apperror.Conflict("user", user.Email)
	}

	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = u.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, password_hash,
		                    email_verified, verify_token, created_at, updated_at)
		 VALUES (?, NULL, ?, ?, '', ?, ?, ?, ?, ?)`,
		user.ID,
		user.Login,
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		user.VerifyToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return apperror.Conflict("user", user.Email)
		}
		return unavailable("inserting user", err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id", id,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail returns the email/password account for email.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email", email,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND github_id IS NULL`, email)
}

// GetByVerifyToken returns the account holding an outstanding token.
func (u *UserDB) GetByVerifyToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user with token", "(empty)")
	}
	return u.getOne(ctx, "token", token,
		`SELECT `+userColumns+` FROM users WHERE verify_token = ?`, token)
}

// GetByResetToken returns the account holding an outstanding password
// reset token. Expiry is checked by the caller.
func (u *UserDB) GetByResetToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user with reset token", "(empty)")
	}
	return u.getOne(ctx, "reset token", token,
		`SELECT `+userColumns+` FROM users WHERE reset_token = ?`, token)
}

// Save writes back the mutable account fields.
func (u *UserDB) Save(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users SET login = ?, password_hash = ?, email_verified = ?, verify_token = ?,
		                  reset_token = ?, reset_expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		user.Login, user.PasswordHash, user.EmailVerified, user.VerifyToken,
		user.ResetToken, user.ResetExpires.UTC(), user.UpdatedAt, user.ID,
	)
	if err != nil {
		return unavailable("saving user "+user.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("checking rows affected", err)
	}
	if n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

func (u *UserDB) getOne(ctx context.Context, key, value, query string, args ...any) (*model.User, error) {
	var usr model.User
	err := u.db.conn.QueryRowContext(ctx, query, args...).Scan(
		&usr.ID,
		&usr.GitHubID,
		&usr.Login,
		&usr.Email,
		&usr.AvatarURL,
		&usr.PasswordHash,
		&usr.EmailVerified,
		&usr.VerifyToken,
		&usr.ResetToken,
		&usr.ResetExpires,
		&usr.CreatedAt,
		&usr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, unavailable("getting user by "+key, err)
	}
	return &usr, nil
}
