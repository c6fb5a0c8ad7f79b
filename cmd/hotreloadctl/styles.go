package main

import "github.com/charmbracelet/lipgloss"

// Styles holds the dashboard's rendering primitives. Scaled down from the
// teacher's TUI stack to the handful of panels a dev console needs: a
// header, a stats row, a scrolling broadcast log, and a footer.
type Styles struct {
	Header   lipgloss.Style
	Footer   lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	LogPane  lipgloss.Style
	Full     lipgloss.Style
	Delta    lipgloss.Style
	Reload   lipgloss.Style
}

func newStyles() Styles {
	accent := lipgloss.Color("#8BC34A")
	muted := lipgloss.Color("#6b7280")

	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(lipgloss.Color("#101F38")).
			Padding(0, 1),

		Footer: lipgloss.NewStyle().
			Foreground(muted),

		Label: lipgloss.NewStyle().
			Foreground(muted),

		Value: lipgloss.NewStyle().
			Foreground(accent).
			Bold(true),

		LogPane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1),

		Full: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e53935")).
			Bold(true),

		Delta: lipgloss.NewStyle().
			Foreground(accent),

		Reload: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2196F3")),
	}
}
