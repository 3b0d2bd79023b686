package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/litscreen/internal/models"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")
	cyanColor    = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true)

	labelStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(cyanColor)
	helpStyle   = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
	errorStyle  = lipgloss.NewStyle().Foreground(errorColor)

	statusQueued     = lipgloss.NewStyle().Foreground(warningColor)
	statusProcessing = lipgloss.NewStyle().Foreground(cyanColor)
	statusCompleted  = lipgloss.NewStyle().Foreground(successColor)
	statusError      = lipgloss.NewStyle().Foreground(errorColor)
)

func formatStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusQueued:
		return statusQueued.Render("● queued")
	case models.TaskStatusProcessing:
		return statusProcessing.Render("● processing")
	case models.TaskStatusCompleted:
		return statusCompleted.Render("● completed")
	case models.TaskStatusError:
		return statusError.Render("● error")
	default:
		return string(status)
	}
}
