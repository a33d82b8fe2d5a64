package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA")
	okColor      = lipgloss.Color("#10B981")
	warnColor    = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#F87171")
	mutedColor   = lipgloss.Color("#9CA3AF")
	textColor    = lipgloss.Color("#F9FAFB")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)

	tabActive = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor).
			Padding(0, 2)

	tabInactive = lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 2)

	tabFailed = tabInactive.Foreground(errorColor)

	errorStyle  = lipgloss.NewStyle().Foreground(errorColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warnColor)
	okStyle     = lipgloss.NewStyle().Foreground(okColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	spinnerTint = lipgloss.NewStyle().Foreground(primaryColor)
)
