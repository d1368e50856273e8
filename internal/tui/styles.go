package tui

import (
	"github.com/charmbracelet/lipgloss"

	"codeberg.org/coursepilot/server/internal/authoring"
)

var (
	colorWhite     = lipgloss.Color("#FFFFFF")
	colorLightGray = lipgloss.Color("#CCCCCC")
	colorGray      = lipgloss.Color("#888888")
	colorDarkGray  = lipgloss.Color("#444444")
	colorGreen     = lipgloss.Color("#00C853")
	colorYellow    = lipgloss.Color("#FFD600")
	colorRed       = lipgloss.Color("#FF5252")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	userStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Bold(true)

	lessonStyle = lipgloss.NewStyle().
			Foreground(colorLightGray).
			PaddingLeft(2)

	draftMarkStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorDarkGray).
			Italic(true)

	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)
)

// renders the always-on save indicator
func indicator(state authoring.SaveState) string {
	switch state {
	case authoring.StateDirty:
		return lipgloss.NewStyle().Foreground(colorYellow).Render("● unsaved")
	case authoring.StateSaving:
		return lipgloss.NewStyle().Foreground(colorLightGray).Render("◌ saving")
	case authoring.StateError:
		return lipgloss.NewStyle().Foreground(colorRed).Render("✗ not saved")
	default:
		return lipgloss.NewStyle().Foreground(colorGreen).Render("● saved")
	}
}
