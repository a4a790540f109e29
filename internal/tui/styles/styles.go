package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/reel/internal/core"
)

// Colors - a pleasant color palette
var (
	// Primary colors
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#10B981") // Green
	Accent    = lipgloss.Color("#F59E0B") // Amber

	// Status colors
	Success = lipgloss.Color("#10B981") // Green
	Warning = lipgloss.Color("#F59E0B") // Amber
	Error   = lipgloss.Color("#EF4444") // Red
	Info    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	Border    = lipgloss.Color("#4B5563") // Light gray
	Text      = lipgloss.Color("#F9FAFB") // White
	TextMuted = lipgloss.Color("#9CA3AF") // Gray
	TextDim   = lipgloss.Color("#6B7280") // Darker gray

	// Player red
	PlayerRed = lipgloss.Color("#FF0033")
)

// Text styles
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Text)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextMuted)

	Label = lipgloss.NewStyle().
		Foreground(TextDim)

	Highlight = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	Dim = lipgloss.NewStyle().
		Foreground(TextDim)

	Playing = lipgloss.NewStyle().
		Foreground(Success)

	Paused = lipgloss.NewStyle().
		Foreground(Warning)

	Failed = lipgloss.NewStyle().
		Foreground(Error)

	Pending = lipgloss.NewStyle().
		Foreground(Info)
)

// Border styles
var (
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Border)

	FocusedBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary)
)

// Panel creates a styled panel with optional focus
func Panel(focused bool) lipgloss.Style {
	if focused {
		return FocusedBorder.Padding(0, 1)
	}
	return BorderStyle.Padding(0, 1)
}

// PanelTitle creates a styled panel title
func PanelTitle(title string, focused bool) string {
	style := Label
	if focused {
		style = Highlight
	}
	return style.Render(" " + title + " ")
}

// Bar renders a filled/empty bar of the given width. fraction is clamped to
// [0, 1]. dimmed draws both halves in the dim color.
func Bar(fraction float64, width int, fill lipgloss.Color, dimmed bool) string {
	if width <= 0 {
		return ""
	}
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	filledStyle := lipgloss.NewStyle().Foreground(fill)
	emptyStyle := lipgloss.NewStyle().Foreground(Border)
	if dimmed {
		filledStyle = Dim
		emptyStyle = Dim
	}

	return filledStyle.Render(strings.Repeat("━", filled)) +
		emptyStyle.Render(strings.Repeat("─", width-filled))
}

// SeekBar renders playback progress.
func SeekBar(percent float64, width int, dimmed bool) string {
	return Bar(percent/100, width, PlayerRed, dimmed)
}

// VolumeBar renders the volume level. A muted player draws an empty bar.
func VolumeBar(volume int, muted bool, width int, dimmed bool) string {
	if muted {
		volume = 0
	}
	return Bar(float64(volume)/100, width, Primary, dimmed)
}

// StateIcon returns an icon for a lifecycle state
func StateIcon(s core.State) string {
	switch s {
	case core.StatePlaying:
		return Playing.Render("▶")
	case core.StatePaused, core.StateReady:
		return Paused.Render("⏸")
	case core.StateEnded:
		return Muted.Render("■")
	case core.StateError:
		return Failed.Render("✗")
	case core.StateDestroyed:
		return Dim.Render("○")
	default:
		return Pending.Render("…")
	}
}

// StateStyle returns the style used to print a lifecycle state's name
func StateStyle(s core.State) lipgloss.Style {
	switch s {
	case core.StatePlaying:
		return Playing
	case core.StatePaused, core.StateReady:
		return Paused
	case core.StateError:
		return Failed
	case core.StateDestroyed, core.StateEnded:
		return Muted
	default:
		return Pending
	}
}
