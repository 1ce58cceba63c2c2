package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles shared by the configure menu and the watch view
var (
	// Header style for the logo and view titles
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	// Label style for field names in the settings summary
	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	// Success style for confirmations
	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// Error style for failed messages and API errors
	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	// Warning style for the live transcript cursor
	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// Muted style for timestamps and secondary text
	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// Subtle style for hints and loading placeholders
	StyleSubtle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Italic(true)

	// Box style for the rendered summary report
	StyleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSubtle).
			Padding(0, 1)

	// Clinician style for messages the doctor sent
	StyleClinician = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	// Agent style for transcripts, reports and assistant replies
	StyleAgent = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	// Patient style for seeded patient messages
	StylePatient = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	// Recording badge shown while the microphone is live
	StyleRecording = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorRecording).
			Bold(true).
			Padding(0, 1)

	// Idle badge shown when no session is running
	StyleIdle = lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorSubtle).
			Padding(0, 1)
)

const logoASCII = `
                   _                   _ _
 _ __ ___   ___  __| |___  ___ _ __(_) |__   ___
| '_ ` + "`" + ` _ \ / _ \/ _` + "`" + ` / __|/ __| '__| | '_ \ / _ \
| | | | | |  __/ (_| \__ \ (__| |  | | |_) |  __/
|_| |_| |_|\___|\__,_|___/\___|_|  |_|_.__/ \___|`

// Logo returns the medscribe ASCII art
func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
