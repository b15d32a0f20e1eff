// Package theme holds the colors, styles and glyphs shared by the CLI
// tables and the chat TUI. lipgloss drops color when NO_COLOR is set.
package theme

import "github.com/charmbracelet/lipgloss"

// MaxContentWidth caps rendered answer width in the chat view and `ask`.
const MaxContentWidth = 100

// Palette, light/dark.
var (
	green  = lipgloss.AdaptiveColor{Light: "#1b5e20", Dark: "#81c784"}
	amber  = lipgloss.AdaptiveColor{Light: "#ef6c00", Dark: "#ffb74d"}
	red    = lipgloss.AdaptiveColor{Light: "#b71c1c", Dark: "#e57373"}
	blue   = lipgloss.AdaptiveColor{Light: "#01579b", Dark: "#81d4fa"}
	violet = lipgloss.AdaptiveColor{Light: "#4a148c", Dark: "#ba68c8"}
	grey   = lipgloss.AdaptiveColor{Light: "#8a8a8a", Dark: "#7a7a7a"}
	panel  = lipgloss.AdaptiveColor{Light: "#eeeeee", Dark: "#262626"}

	ColorBorder = lipgloss.AdaptiveColor{Light: "#c0c0c0", Dark: "#5a5a5a"}
)

var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)

	TextSuccess = Bold.Foreground(green)
	TextWarning = Bold.Foreground(amber)
	TextError   = Bold.Foreground(red)

	// Chat transcript.
	UserLabel  = Bold.Foreground(blue)
	TutorLabel = Bold.Foreground(violet)
	ErrorLabel = TextError
	Meta       = Dim.Foreground(grey)
	Spinner    = lipgloss.NewStyle().Foreground(blue)

	StatusBar = lipgloss.NewStyle().Foreground(grey).Background(panel).Padding(0, 1)
	StatusKey = Bold.Foreground(blue)

	// Tables printed by `agents`, `scores` and `doctor`.
	Header = Bold.Foreground(violet).Padding(0, 1)
	Cell   = lipgloss.NewStyle().Padding(0, 1)
)

// ConfidenceStyle colors a confidence score: green from 0.8, amber from 0.5,
// red below.
func ConfidenceStyle(c float64) lipgloss.Style {
	switch {
	case c >= 0.8:
		return TextSuccess
	case c >= 0.5:
		return TextWarning
	}
	return TextError
}
