package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

type UserDB struct {
	db *DB
}

const userColumns = `id, COALESCE(github_id, 0), login, email, avatar_url,
	password_hash, email_verified, verify_token, reset_token, reset_expires_at,
	created_at, updated_at`

// Upsert inserts a GitHub account or refreshes its profile fields. The
// internal id and created_at of an existing row are kept.
func (u *UserDB) Upsert(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.EmailVerified = true
	err := u.db.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, github_id, login, email, avatar_url, email_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
		 ON CONFLICT (github_id) WHERE github_id IS NOT NULL DO UPDATE
		 SET login = EXCLUDED.login, email = EXCLUDED.email,
		     avatar_url = EXCLUDED.avatar_url, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		xid.New().String(), user.GitHubID, user.Login, user.Email, user.AvatarURL, now,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return unavailable(fmt.Sprintf("upserting user (githubID=%d)", user.GitHubID), err)
	}
	return nil
}

// CreateLocal inserts an email/password account.
func (u *UserDB) CreateLocal(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, github_id, login, email, password_hash,
		                    email_verified, verify_token, created_at, updated_at)
		 VALUES ($1, NULL, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Login, user.Email, user.PasswordHash,
		user.EmailVerified, user.VerifyToken, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		user.ID = ""
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return unavailable("inserting user", err)
	}
	return nil
}

func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id", id,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email", email,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND github_id IS NULL`, email)
}

func (u *UserDB) GetByVerifyToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user with token", "(empty)")
	}
	return u.getOne(ctx, "token", token,
		`SELECT `+userColumns+` FROM users WHERE verify_token = $1`, token)
}

func (u *UserDB) GetByResetToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user with reset token", "(empty)")
	}
	return u.getOne(ctx, "reset token", token,
		`SELECT `+userColumns+` FROM users WHERE reset_token = $1`, token)
}

func (u *UserDB) Save(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users SET login = $1, password_hash = $2, email_verified = $3, verify_token = $4,
		                  reset_token = $5, reset_expires_at = $6, updated_at = $7
		 WHERE id = $8`,
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
