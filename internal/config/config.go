// Package config reads server settings from the environment.
//
// A .env file in the working directory is loaded first when present;
// variables already set in the process win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port int

	DBDriver    string
	DBPath      string // sqlite file, or ":memory:"
	DatabaseURL string // postgres DSN

	JWTSecret          string // empty: a random per-process secret is used
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	LogLevel slog.Level
	LogFile  string // empty logs to stdout only

	SweepInterval  time.Duration // 0 disables interval sweeps
	RequestTimeout time.Duration
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults and validating.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	cfg := Config{
		DBDriver:           strings.ToLower(get("DB_DRIVER", DriverSQLite)),
		DBPath:             get("DB_PATH", "data/streakme.db"),
		DatabaseURL:        get("DATABASE_URL", ""),
		JWTSecret:          get("JWT_SECRET", ""),
		GitHubClientID:     get("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: get("GITHUB_CLIENT_SECRET", ""),
		LogFile:            get("LOG_FILE", ""),
	}

	port, err := strconv.Atoi(get("PORT", "8080"))
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT: %q is not a valid port", get("PORT", "")))
	}
	cfg.Port = port
	cfg.GitHubCallbackURL = get("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port))

	switch cfg.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL: required when DB_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER: unknown driver %q (want sqlite or postgres)", cfg.DBDriver))
	}

	if cfg.JWTSecret != "" && len(cfg.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET: must be at least 16 characters"))
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	cfg.SweepInterval, err = duration(get("SWEEP_INTERVAL", "15m"))
	if err != nil {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL: %w", err))
	}
	cfg.RequestTimeout, err = duration(get("REQUEST_TIMEOUT", "10s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT: %w", err))
	} else if cfg.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT: must be positive"))
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// duration accepts Go durations and a bare "0".
func duration(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("%q is negative", s)
	}
	return d, nil
}
