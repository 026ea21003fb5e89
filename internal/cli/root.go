// Package cli implements the streakctl commands. Each command is a kong
// struct with a Run(*Context) method; main binds the Context.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sakif/streakme/internal/app"
	"github.com/sakif/streakme/internal/lifecycle"
	"github.com/sakif/streakme/internal/model"
)

// Context is what every command runs against.
type Context struct {
	App  *app.App
	Out  io.Writer
	User string // --user; empty when not given
}

func (c *Context) userID() (string, error) {
	if strings.TrimSpace(c.User) == "" {
		return "", fmt.Errorf("--user is required for this command")
	}
	return c.User, nil
}

var (
	nameStyle  = lipgloss.NewStyle().Bold(true).Width(16)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)

	statusStyles = map[model.Status]lipgloss.Style{
		model.StatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Width(10),
		model.StatusBroken:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Width(10),
		model.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Width(10),
	}
)

// swatch is a two-cell block in the streak's color.
func swatch(color string) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(color)).Render("  ")
}

func formatStreak(s model.Streak) string {
	count, percent := lifecycle.Progress(s)
	status, ok := statusStyles[s.Status]
	if !ok {
		status = lipgloss.NewStyle().Width(10)
	}
	return fmt.Sprintf("%s %s %s %3d/%-3d %3d%%  %s",
		swatch(s.Color),
		nameStyle.Render(s.Name),
		status.Render(string(s.Status)),
		count, s.TargetDays, percent,
		mutedStyle.Render(s.ID),
	)
}

func printStreaks(out io.Writer, streaks []model.Streak) {
	if len(streaks) == 0 {
		fmt.Fprintln(out, "No streaks yet")
		return
	}
	for _, s := range streaks {
		fmt.Fprintln(out, formatStreak(s))
	}
}
