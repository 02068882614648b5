package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	Primary   = lipgloss.Color("#38bdf8") // sky
	Secondary = lipgloss.Color("#a78bfa") // violet
	Success   = lipgloss.Color("#34d399") // emerald
	Warning   = lipgloss.Color("#fbbf24") // amber
	Error     = lipgloss.Color("#f87171") // red
	Muted     = lipgloss.Color("#9ca3af") // gray
)

// Text styles.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)
)

// SpinnerStyle colors the spinner frames.
var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

// Iconography.
const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconRoom    = "🚪"
	IconWeb     = "🌐"
	IconCopy    = "📋"
)

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintErrorf(format string, args ...any) {
	PrintError(fmt.Sprintf(format, args...))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintSuccessf(format string, args ...any) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", IconInfo, msg)
}

// RenderRoomInfo prints the box a sender shares with its peer: the
// 4-digit code and the browser link.
func RenderRoomInfo(code, link string) {
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room ready!\n\n%s Code:  %s\n%s Link:  %s",
		IconRoom,
		IconCopy, BoldStyle.Foreground(Primary).Render(code),
		IconWeb, MutedStyle.Render(link),
	)
	fmt.Println(box.Render(content))
}
