package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hasangilak/taskengine/internal/scheduler"
)

// Border styles
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// Status styles
var (
	StyleStatusRunning = lipgloss.NewStyle().
				Foreground(lipgloss.Color("yellow")).
				Bold(true)

	StyleStatusComplete = lipgloss.NewStyle().
				Foreground(lipgloss.Color("green")).
				Bold(true)

	StyleStatusFailed = lipgloss.NewStyle().
				Foreground(lipgloss.Color("red")).
				Bold(true)

	StyleStatusPending = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	StyleStatusRetry = lipgloss.NewStyle().
				Foreground(lipgloss.Color("208"))
)

// UI element styles
var (
	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	StyleSelected = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))
)

// StatusIcon returns a styled status indicator.
func StatusIcon(status scheduler.TaskStatus) string {
	switch status {
	case scheduler.TaskRunning:
		return StyleStatusRunning.Render("●")
	case scheduler.TaskCompleted:
		return StyleStatusComplete.Render("✓")
	case scheduler.TaskFailed:
		return StyleStatusFailed.Render("✗")
	case scheduler.TaskCancelled:
		return StyleStatusPending.Render("⊘")
	case scheduler.TaskScheduled:
		return StyleStatusRetry.Render("◷")
	default:
		return StyleStatusPending.Render("○")
	}
}
