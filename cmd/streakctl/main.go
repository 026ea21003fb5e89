// Command streakctl inspects and edits streaks directly against the
// configured store, without going through the HTTP server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/sakif/streakme/internal/app"
	"github.com/sakif/streakme/internal/cli"
	"github.com/sakif/streakme/internal/config"
	"github.com/sakif/streakme/internal/logger"
)

var CLI struct {
	Version kong.VersionFlag
	User    string `short:"u" help:"User ID to act as." env:"STREAKME_USER"`
	Verbose bool   `short:"v" help:"Log debug output."`

	Streaks struct {
		List    cli.StreaksListCmd    `cmd:"" default:"1" help:"List streaks with today's statuses."`
		Create  cli.StreaksCreateCmd  `cmd:"" help:"Start a streak."`
		CheckIn cli.StreaksCheckInCmd `cmd:"" name:"check-in" help:"Check in for today."`
		Rename  cli.StreaksRenameCmd  `cmd:"" help:"Rename a streak."`
		Break   cli.StreaksBreakCmd   `cmd:"" help:"Give up on a streak."`
		Delete  cli.StreaksDeleteCmd  `cmd:"" help:"Delete a streak and its badge."`
		Days    cli.StreaksDaysCmd    `cmd:"" help:"Show a month of check-ins."`
	} `cmd:"" help:"Manage streaks."`
	Badges struct {
		List cli.BadgesListCmd `cmd:"" default:"1" help:"List earned badges."`
	} `cmd:"" help:"Show badges."`
	Revalidate cli.RevalidateCmd `cmd:"" help:"Break overdue streaks (all users unless --user is set)."`
	Watch      cli.WatchCmd      `cmd:"" help:"Print streaks as they change."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("streakctl"),
		kong.Description("Streak tracker administration"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		// streakctl never issues sessions
		cfg.JWTSecret = "streakctl-issues-no-sessions"
	}
	level := slog.LevelWarn
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	log := logger.NewCLI(os.Stderr, level)

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("could not open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = kctx.Run(&cli.Context{App: a, Out: os.Stdout, User: CLI.User})
	a.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
