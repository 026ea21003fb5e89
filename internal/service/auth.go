package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/streakme/internal/apperror"
	"github.com/sakif/streakme/internal/auth"
	"github.com/sakif/streakme/internal/model"
	"github.com/sakif/streakme/internal/repository"
)

// resetTokenTTL bounds how long a password reset link stays valid.
const resetTokenTTL = time.Hour

// Mailer delivers account emails (verification, password reset).
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.Logger.Info("email", slog.String("to", to), slog.String("subject", subject), slog.String("body", body))
	return nil
}

// AuthService owns accounts and sessions. Sessions are JWTs carrying the
// user ID; the HTTP layer decides how to transport them.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mailer    Mailer
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer Mailer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthResult is a user together with a freshly issued session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// CredentialsInput is an email and password pair.
type CredentialsInput struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginOrRegisterGitHub upserts the GitHub account and opens a session.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
	)
	return s.session(user)
}

// Register creates an unverified email account and mails its verification
// token. Registering again with an unverified email and the same password
// re-sends the token instead of failing.
func (s *AuthService) Register(ctx context.Context, in CredentialsInput) (*model.User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if existing.EmailVerified || s.passwords.Verify(existing.PasswordHash, in.Password) != nil {
			return nil, apperror.Conflict("user", in.Email)
		}
		existing.VerifyToken = uuid.NewString()
		if err := s.users.Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("service/auth: saving verify token: %w", err)
		}
		s.logger.Info("verification re-sent", slog.String("userID", existing.ID))
		return existing, s.sendVerification(ctx, existing)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}
	user := &model.User{
		Login:        strings.SplitN(in.Email, "@", 2)[0],
		Email:        in.Email,
		PasswordHash: hash,
		VerifyToken:  uuid.NewString(),
	}
	if err := s.users.CreateLocal(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, s.sendVerification(ctx, user)
}

// VerifyEmail redeems a verification token and opens a session.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*AuthResult, error) {
	user, err := s.users.GetByVerifyToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("token", "verification link is invalid or already used")
		}
		return nil, fmt.Errorf("service/auth: looking up token: %w", err)
	}

	user.EmailVerified = true
	user.VerifyToken = ""
	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: verifying user: %w", err)
	}

	s.logger.Info("email verified", slog.String("userID", user.ID))
	return s.session(user)
}

// Login checks an email and password. Unknown emails and wrong passwords
// are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in CredentialsInput) (*AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotAuthenticated()
		}
		return nil, fmt.Errorf("service/auth: looking up email: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		s.logger.Warn("login failed", slog.String("userID", user.ID))
		return nil, apperror.NotAuthenticated()
	}
	if !user.EmailVerified {
		return nil, apperror.Forbidden("verify your email before logging in")
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.session(user)
}

// RequestPasswordReset mails a reset token to a verified email account.
// It succeeds silently for unknown emails.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("service/auth: looking up email: %w", err)
	}

	user.ResetToken = uuid.NewString()
	user.ResetExpires = s.now().Add(resetTokenTTL)
	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving reset token: %w", err)
	}
	return s.mailer.Send(ctx, user.Email, "Reset your password",
		"Use this code to choose a new password: "+user.ResetToken)
}

// ResetPassword redeems a reset token. A reset also proves ownership of
// the email, so the account becomes verified.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validateInput(struct {
		Password string `json:"password" validate:"required,min=8,max=72"`
	}{newPassword}); err != nil {
		return err
	}

	user, err := s.users.GetByResetToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("token", "reset link is invalid or already used")
		}
		return fmt.Errorf("service/auth: looking up reset token: %w", err)
	}
	if s.now().After(user.ResetExpires) {
		return apperror.ValidationFailed("token", "reset link has expired")
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return apperror.ValidationFailed("password", err.Error())
	}
	user.PasswordHash = hash
	user.ResetToken = ""
	user.ResetExpires = time.Time{}
	user.EmailVerified = true
	user.VerifyToken = ""
	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving password: %w", err)
	}

	s.logger.Info("password reset", slog.String("userID", user.ID))
	return nil
}

// GetUserByID returns the user behind a session.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if err := requireUser(id); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken returns the user ID a session token was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", errors.Join(apperror.NotAuthenticated(), err)
	}
	return userID, nil
}

func (s *AuthService) session(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *model.User) error {
	err := s.mailer.Send(ctx, user.Email, "Verify your email",
		"Use this code to verify your streakme account: "+user.VerifyToken)
	if err != nil {
		return fmt.Errorf("service/auth: sending verification: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
