package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/model"
)

// WatchCmd prints the user's streaks every time they change, until
// interrupted.
type WatchCmd struct {
	Badges bool `help:"Watch badges instead of streaks."`
}

func (c *WatchCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return c.watch(sigCtx, ctx, userID)
}

func (c *WatchCmd) watch(runCtx context.Context, ctx *Context, userID string) error {
	m, err := ctx.App.Live(userID)
	if err != nil {
		return err
	}
	defer m.Close()

	ctx.App.Logger.Info("watching", slog.String("userID", userID), slog.Bool("badges", c.Badges))
	if c.Badges {
		sub, err := m.SubscribeBadges(runCtx)
		if err != nil {
			return err
		}
		defer sub.Cancel()
		for badges := range sub.Updates() {
			fmt.Fprintln(ctx.Out, titleStyle.Render(fmt.Sprintf("%s  %d badge(s)", ctx.App.Dates.Now().In(civil.Zone).Format("15:04:05"), len(badges))))
			for _, b := range badges {
				fmt.Fprintf(ctx.Out, "%s %d days\n", nameStyle.Render(b.StreakName), b.DaysCompleted)
			}
		}
		return sub.Err()
	}

	sub, err := m.SubscribeStreaks(runCtx)
	if err != nil {
		return err
	}
	defer sub.Cancel()
	for streaks := range sub.Updates() {
		printSnapshot(ctx, streaks)
	}
	return sub.Err()
}

func printSnapshot(ctx *Context, streaks []model.Streak) {
	fmt.Fprintln(ctx.Out, titleStyle.Render(ctx.App.Dates.Now().In(civil.Zone).Format("15:04:05")))
	printStreaks(ctx.Out, streaks)
}
