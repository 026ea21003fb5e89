// Package main is the entry point for the streakme HTTP server.
//
// main stays minimal: read configuration, build the logger and the app,
// start the server. All actual logic lives in internal/.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/streakme/internal/app"
	"github.com/sakif/streakme/internal/config"
	"github.com/sakif/streakme/internal/logger"
	"github.com/sakif/streakme/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. CONFIGURATION ===
	// .env first, then the process environment. See internal/config for
	// every variable and its default.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// === 2. LOGGING ===
	log, closer, err := logger.New(os.Stdout, logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(log)

	// === 3. STORE AND SERVICES ===
	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("starting app: %w", err)
	}
	defer a.Close()

	if a.GitHub == nil {
		log.Info("GitHub sign-in disabled (GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET not set)")
	}

	// === 4. SERVE ===
	// Start blocks until SIGINT or SIGTERM.
	return server.New(a).Start()
}
