package tui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorWarning   = lipgloss.Color("#F59E0B") // Amber
	colorError     = lipgloss.Color("#EF4444") // Red
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorHighlight = lipgloss.Color("#374151") // Highlight bg

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Background(colorHighlight).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			PaddingLeft(1).
			PaddingRight(1)

	normalStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			PaddingRight(1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D1D5DB"))

	dateStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(12)

	regionStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Width(14)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#111827")).
			Foreground(lipgloss.Color("#9CA3AF")).
			PaddingLeft(1).
			PaddingRight(1)

	tabActiveStyle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			PaddingLeft(1).
			PaddingRight(1)

	tabInactiveStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#374151")).
				Foreground(lipgloss.Color("#9CA3AF")).
				PaddingLeft(1).
				PaddingRight(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	countBadge = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	filterPromptStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true).
			Width(10)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			PaddingLeft(1).
			PaddingRight(1)
)
