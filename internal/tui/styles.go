// Package tui implements the interactive surfaces from spec §6.2/§7: a
// trust-on-first-run prompt, a live job/step progress tracker for
// run/watch, and the `doctor` pre-flight display, all built on the
// teacher's lipgloss/bubbletea styling conventions.
package tui

import "github.com/charmbracelet/lipgloss"

// Semantic color palette, reused across every rendered surface so a dry
// run, a live run and `doctor` all look like one product.
const (
	ColorPrimary   = "255" // White - main text, emphasis
	ColorSecondary = "245" // Light gray - supporting text
	ColorMuted     = "240" // Dark gray - hints, less important info
	ColorSuccess   = "42"  // Green - operations succeeded
	ColorError     = "203" // Red - errors, failures
	ColorWarning   = "214" // Orange - cautions, attention needed
	ColorAccent    = "45"  // Cyan - highlights, links (use sparingly)
)

var (
	PrimaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrimary))
	SecondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondary))
	MutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted))
	HintStyle      = MutedStyle.Italic(true)

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarning))
	AccentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	BoldStyle        = lipgloss.NewStyle().Bold(true)
	BoldPrimaryStyle = PrimaryStyle.Bold(true)
)

// StatusIcon returns a check or cross glyph colored for success/failure.
func StatusIcon(success bool) string {
	if success {
		return SuccessStyle.Render("✓")
	}
	return ErrorStyle.Render("✗")
}

// Bullet returns a muted bullet point.
func Bullet() string {
	return MutedStyle.Render("·")
}

// Arrow returns a muted arrow.
func Arrow() string {
	return MutedStyle.Render("→")
}
