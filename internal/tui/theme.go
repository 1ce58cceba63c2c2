package tui

import "github.com/charmbracelet/lipgloss"

// Color palette for the medscribe terminal views
var (
	ColorPrimary   = lipgloss.Color("#0EA5E9") // Sky - main accent
	ColorSecondary = lipgloss.Color("#14B8A6") // Teal - secondary accent

	ColorSuccess = lipgloss.Color("#22C55E")
	ColorError   = lipgloss.Color("#EF4444")
	ColorWarning = lipgloss.Color("#F59E0B")

	ColorText   = lipgloss.Color("#F8FAFC")
	ColorMuted  = lipgloss.Color("#94A3B8")
	ColorSubtle = lipgloss.Color("#64748B")

	ColorRecording = lipgloss.Color("#DC2626")
)
