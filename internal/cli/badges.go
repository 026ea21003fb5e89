package cli

import (
	"context"
	"fmt"
)

type BadgesListCmd struct{}

func (c *BadgesListCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}
	badges, err := ctx.App.Badges.List(context.Background(), userID)
	if err != nil {
		return err
	}
	if len(badges) == 0 {
		fmt.Fprintln(ctx.Out, "No badges yet")
		return nil
	}
	for _, b := range badges {
		fmt.Fprintf(ctx.Out, "%s %s  %d days  %s\n",
			nameStyle.Render(b.StreakName),
			ctx.App.Dates.DateOf(b.DateEarned),
			b.DaysCompleted,
			mutedStyle.Render(b.StreakID),
		)
	}
	return nil
}
