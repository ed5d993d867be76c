package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette for the watch UI
var (
	PrimaryColor = lipgloss.Color("#7D56F4") // Purple - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - connected, heating
	ErrorColor   = lipgloss.Color("#FF5555") // Red - errors, faults
	WarningColor = lipgloss.Color("#FFA500") // Orange - connecting, transitions
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60 // Minimum supported terminal width
	MaxContentWidth  = 90 // Maximum content width before capping
)

// Shared styles for the watch UI
var (
	// TitleStyle is for the device header line
	TitleStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true).
			PaddingLeft(2)

	// AddressStyle is for the device address next to the title
	AddressStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// FieldKeyStyle is for field labels (e.g., "Room:")
	FieldKeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(12).
			PaddingLeft(2)

	// FieldValueStyle is for field values
	FieldValueStyle = lipgloss.NewStyle().
			Foreground(TextColor)

	// StateOnStyle is for the heating/running state
	StateOnStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	// StateOffStyle is for the off/standby state
	StateOffStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	// StateTransitionStyle is for starting/ignition/shutdown phases
	StateTransitionStyle = lipgloss.NewStyle().
				Foreground(WarningColor)

	// ErrorStyle is for error annotations and fault codes
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// PendingStyle is for in-flight command notes
	PendingStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Italic(true)
)

// BoxStyle returns the bordered container for the watch display
func BoxStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Padding(1, 0)
}

// GetTerminalWidth returns the current terminal width, with fallback
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}
