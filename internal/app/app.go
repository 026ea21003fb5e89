// Package app wires the store, the services and the identity providers
// from a config.Config. cmd/server and cmd/streakctl both start here.
package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/streakme/internal/auth"
	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/config"
	"github.com/sakif/streakme/internal/live"
	"github.com/sakif/streakme/internal/palette"
	"github.com/sakif/streakme/internal/repository"
	"github.com/sakif/streakme/internal/repository/postgres"
	"github.com/sakif/streakme/internal/repository/sqlite"
	"github.com/sakif/streakme/internal/service"
)

// App holds the long-lived dependencies.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Store   repository.Store
	Dates   *civil.Normalizer
	Tokens  *auth.TokenService
	Streaks *service.StreakService
	Badges  *service.BadgeService
	Auth    *service.AuthService
	GitHub  *auth.GitHubProvider // nil when GitHub sign-in is not configured
}

// OpenStore opens the backend named by cfg.DBDriver.
func OpenStore(cfg config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(cfg.DatabaseURL, logger)
	case config.DriverSQLite, "":
		if cfg.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		return sqlite.New(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// New opens the configured store and builds everything on top of it.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := NewWithStore(cfg, store, civil.SystemClock{}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore builds the services over an open store. The App takes
// ownership of store.
func NewWithStore(cfg config.Config, store repository.Store, clock civil.Clock, logger *slog.Logger) (*App, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		var err error
		if secret, err = randomSecret(); err != nil {
			return nil, err
		}
		logger.Warn("JWT_SECRET not set, using a random secret; sessions end when the process exits")
	}
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	dates := civil.NewNormalizer(clock)
	badges := service.NewBadgeService(store.Badges(), dates, logger)
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Dates:   dates,
		Tokens:  tokens,
		Badges:  badges,
		Streaks: service.NewStreakService(store.Streaks(), badges, palette.New(), dates, logger),
		Auth: service.NewAuthService(store.Users(), tokens, auth.NewPasswordService(),
			service.LogMailer{Logger: logger}, logger),
	}
	if cfg.GitHubEnabled() {
		a.GitHub = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	}
	return a, nil
}

// Live returns a session for userID's subscriptions. Close it when the
// session ends.
func (a *App) Live(userID string) (*live.Manager, error) {
	return live.NewManager(userID, a.Streaks, a.Badges, a.Store, a.Logger)
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
