package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sakif/streakme/internal/civil"
	"github.com/sakif/streakme/internal/service"
)

type StreaksListCmd struct{}

func (c *StreaksListCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}
	streaks, err := ctx.App.Streaks.List(context.Background(), userID)
	if err != nil {
		return err
	}
	printStreaks(ctx.Out, streaks)
	return nil
}

type StreaksCreateCmd struct {
	Name   string `arg:"" help:"Streak name (up to 15 characters)."`
	Target int    `short:"t" help:"Days to complete." default:"30"`
	Notes  string `short:"n" help:"Optional notes."`
}

func (c *StreaksCreateCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}
	s, err := ctx.App.Streaks.Create(context.Background(), userID, service.CreateStreakInput{
		Name:       c.Name,
		TargetDays: c.Target,
		Notes:      c.Notes,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, "Created")
	fmt.Fprintln(ctx.Out, formatStreak(*s))
	return nil
}

type StreaksCheckInCmd struct {
	ID string `arg:"" help:"Streak ID."`
}

func (c *StreaksCheckInCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}
	res, err := ctx.App.Streaks.CheckIn(context.Background(), userID, c.ID)
	if err != nil {
		return err
	}
	switch {
	case res.Completed:
		fmt.Fprintln(ctx.Out, "Streak completed!")
	case res.CheckedIn:
		fmt.Fprintln(ctx.Out, "Checked in for", ctx.App.Dates.Today())
	default:
		fmt.Fprintf(ctx.Out, "Nothing to do: streak is %s or already checked in today\n", res.Streak.Status)
	}
	fmt.Fprintln(ctx.Out, formatStreak(*res.Streak))
	if res.Badge != nil {
		fmt.Fprintf(ctx.Out, "Badge earned: %s (%d days)\n", res.Badge.StreakName, res.Badge.DaysCompleted)
	}
	return nil
}

type StreaksRenameCmd struct {
	ID   string `arg:"" help:"Streak ID."`
	Name string `arg:"" help:"New name."`
}

func (c *StreaksRenameCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}
	s, err := ctx.App.Streaks.Update(context.Background(), userID, c.ID, service.UpdateStreakInput{Name: &c.Name})
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, formatStreak(*s))
	return nil
}

type StreaksBreakCmd struct {
	ID string `arg:"" help:"Streak ID."`
}

func (c *StreaksBreakCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}
	s, err := ctx.App.Streaks.Break(context.Background(), userID, c.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, formatStreak(*s))
	return nil
}

type StreaksDeleteCmd struct {
	ID string `arg:"" help:"Streak ID."`
}

func (c *StreaksDeleteCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}
	res, err := ctx.App.Streaks.Delete(context.Background(), userID, c.ID)
	if err != nil {
		return err
	}
	msg := "Deleted"
	if res.ColorRecycled {
		msg += "; its color is free again"
	}
	fmt.Fprintln(ctx.Out, msg)
	return nil
}

type StreaksDaysCmd struct {
	ID    string `arg:"" help:"Streak ID."`
	Month string `short:"m" help:"Month as YYYY-MM. Defaults to the current month."`
}

func (c *StreaksDaysCmd) Run(ctx *Context) error {
	userID, err := ctx.userID()
	if err != nil {
		return err
	}

	first := ctx.App.Dates.Today().Time()
	if c.Month != "" {
		first, err = time.ParseInLocation("2006-01", c.Month, civil.Zone)
		if err != nil {
			return fmt.Errorf("--month must look like 2025-06")
		}
	}
	year, month := first.Year(), first.Month()

	bg := context.Background()
	s, err := ctx.App.Streaks.Get(bg, userID, c.ID)
	if err != nil {
		return err
	}
	days, err := ctx.App.Streaks.CompletedDaysInMonth(bg, userID, c.ID, year, month)
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.Out, titleStyle.Render(fmt.Sprintf("%s  %s %d", s.Name, month, year)))
	fmt.Fprint(ctx.Out, calendar(year, month, days, s.Color))
	fmt.Fprintf(ctx.Out, "%d day(s) checked in\n", len(days))
	return nil
}

// calendar renders a Monday-first month grid with the given days marked.
func calendar(year int, month time.Month, marked []int, color string) string {
	done := make(map[int]bool, len(marked))
	for _, d := range marked {
		done[d] = true
	}
	hit := lipgloss.NewStyle().Background(lipgloss.Color(color)).Foreground(lipgloss.Color("0"))

	var b strings.Builder
	b.WriteString(mutedStyle.Render("Mo Tu We Th Fr Sa Su") + "\n")

	first := time.Date(year, month, 1, 0, 0, 0, 0, civil.Zone)
	offset := (int(first.Weekday()) + 6) % 7
	b.WriteString(strings.Repeat("   ", offset))

	last := first.AddDate(0, 1, -1).Day()
	for d := 1; d <= last; d++ {
		cell := fmt.Sprintf("%2d", d)
		if done[d] {
			cell = hit.Render(cell)
		}
		b.WriteString(cell)
		if (offset+d)%7 == 0 || d == last {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}
