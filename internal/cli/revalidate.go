package cli

import (
	"context"
	"fmt"
)

// RevalidateCmd runs the sweep the server runs at midnight.
type RevalidateCmd struct{}

func (c *RevalidateCmd) Run(ctx *Context) error {
	bg := context.Background()
	if ctx.User == "" {
		n, err := ctx.App.Streaks.RevalidateAll(bg)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.Out, "%d streak(s) broken\n", n)
		return nil
	}

	streaks, err := ctx.App.Streaks.Revalidate(bg, ctx.User)
	if err != nil {
		return err
	}
	printStreaks(ctx.Out, streaks)
	return nil
}
