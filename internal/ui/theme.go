package ui

import "github.com/charmbracelet/lipgloss"

var (
	Night    = lipgloss.Color("#1e1e2e")
	Surface  = lipgloss.Color("#45475a")
	Text     = lipgloss.Color("#cdd6f4")
	Subtext  = lipgloss.Color("#a6adc8")
	Lavender = lipgloss.Color("#b4befe")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Red      = lipgloss.Color("#f38ba8")
	Peach    = lipgloss.Color("#fab387")

	Pane = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Surface).
		Foreground(Text).
		Padding(1, 2)

	Title = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Clock = lipgloss.NewStyle().Foreground(Lavender).Bold(true)
	Muted = lipgloss.NewStyle().Foreground(Subtext)
	Good  = lipgloss.NewStyle().Foreground(Green)
	Bad   = lipgloss.NewStyle().Foreground(Red)
	Hot   = lipgloss.NewStyle().Foreground(Peach).Bold(true)

	BarFull  = lipgloss.NewStyle().Foreground(Lavender)
	BarEmpty = lipgloss.NewStyle().Foreground(Surface)
)
