package console

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorGood    = lipgloss.Color("#10B981")
	colorBad     = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
	colorBorder  = lipgloss.Color("#374151")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorPrimary).
			Padding(0, 2)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	labelStyle    = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
	positiveStyle = lipgloss.NewStyle().Foreground(colorGood)
	negativeStyle = lipgloss.NewStyle().Foreground(colorBad)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
)
