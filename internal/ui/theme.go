// Package ui holds the lipgloss styles shared by the CLI and the terminal timer.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	IconTomato   = "🍅"
	IconActivity = "🗂️"
	IconProject  = "📁"
	IconTask     = "📝"
	IconDone     = "✅"
	IconTimer    = "⏱️"
	IconChart    = "📊"
	IconBell     = "🔔"
	IconError    = "🧨"
)

var (
	cPrimary = lipgloss.Color("63")  // blue
	cAccent  = lipgloss.Color("205") // magenta
	cGood    = lipgloss.Color("42")  // green
	cWarn    = lipgloss.Color("214") // orange
	cBad     = lipgloss.Color("196") // red
	cMuted   = lipgloss.Color("244") // gray
)

var (
	Title = lipgloss.NewStyle().Bold(true).Foreground(cAccent)
	H2    = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Muted = lipgloss.NewStyle().Foreground(cMuted)
	Key   = lipgloss.NewStyle().Bold(true).Foreground(cPrimary)
	Good  = lipgloss.NewStyle().Bold(true).Foreground(cGood)
	Warn  = lipgloss.NewStyle().Bold(true).Foreground(cWarn)
	Bad   = lipgloss.NewStyle().Bold(true).Foreground(cBad)

	Panel = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 2)
	Clock = lipgloss.NewStyle().Bold(true).Foreground(cAccent).Padding(1, 4)
)

func Heading(icon string, title string) string {
	icon = strings.TrimSpace(icon)
	if icon != "" {
		icon += " "
	}
	return Title.Render(icon + title)
}

func LabelValue(label string, value any) string {
	return fmt.Sprintf("%s %v", Key.Render(label+":"), value)
}

// StatusText colours a task status.
func StatusText(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed":
		return Good.Render("completed")
	case "active":
		return H2.Render("active")
	default:
		return Muted.Render(status)
	}
}

// ProgressText colours a progress label.
func ProgressText(progress string) string {
	switch progress {
	case "Completed":
		return Good.Render(progress)
	case "Started":
		return H2.Render(progress)
	case "On ice":
		return Warn.Render(progress)
	default:
		return Muted.Render(progress)
	}
}

// Pending marks an optimistic placeholder that has not been confirmed yet.
func Pending(title string) string {
	return Muted.Render(title + " (saving…)")
}

// GoalBar renders rounds against a goal as a fixed-width bar.
func GoalBar(rounds, goal, width int) string {
	if goal <= 0 {
		return Muted.Render(fmt.Sprintf("%d rounds", rounds))
	}
	if width < 3 {
		width = 3
	}
	filled := rounds * width / goal
	if filled > width {
		filled = width
	}
	bar := "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
	label := fmt.Sprintf("%s %d/%d", bar, rounds, goal)
	if rounds >= goal {
		return Good.Render(label)
	}
	return label
}

// Seconds renders a tracked duration in seconds as 1h02m03s.
func Seconds(secs int64) string {
	return (time.Duration(secs) * time.Second).String()
}
