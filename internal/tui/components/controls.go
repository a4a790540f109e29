package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/reel/internal/core"
	rerrors "github.com/tessro/reel/internal/errors"
	"github.com/tessro/reel/internal/tail"
	"github.com/tessro/reel/internal/tui/autohide"
	"github.com/tessro/reel/internal/tui/styles"
)

// PanelHeight is the rendered height of one controls panel, borders included.
const PanelHeight = 10

const (
	// content rows, counted from the first line inside the top border
	titleLine   = 0
	stateLine   = 1
	seekLine    = 3
	volumeLine  = 5
	messageLine = 7
	lineCount   = 8

	// border plus horizontal padding
	inset      = 2
	labelWidth = 8
	minSeek    = 10
	maxVolume  = 20
)

// Geometry locates the clickable bars inside a panel. Coordinates are
// relative to the panel's top-left corner.
type Geometry struct {
	SeekRow     int
	SeekStart   int
	SeekWidth   int
	VolumeRow   int
	VolumeStart int
	VolumeWidth int
}

// Layout computes the bar positions for a panel of the given total width.
func Layout(width int) Geometry {
	inner := width - 2*inset
	seek := inner - 2*labelWidth
	if seek < minSeek {
		seek = minSeek
	}
	volume := seek
	if volume > maxVolume {
		volume = maxVolume
	}
	return Geometry{
		SeekRow:     1 + seekLine,
		SeekStart:   inset + labelWidth,
		SeekWidth:   seek,
		VolumeRow:   1 + volumeLine,
		VolumeStart: inset + labelWidth,
		VolumeWidth: volume,
	}
}

// SeekAt returns the playback fraction under (x, y), if it is on the seek bar.
func (g Geometry) SeekAt(x, y int) (float64, bool) {
	return barFraction(x, y, g.SeekRow, g.SeekStart, g.SeekWidth)
}

// VolumeAt returns the volume under (x, y), if it is on the volume bar.
func (g Geometry) VolumeAt(x, y int) (int, bool) {
	f, ok := barFraction(x, y, g.VolumeRow, g.VolumeStart, g.VolumeWidth)
	if !ok {
		return 0, false
	}
	return int(math.Round(f * 100)), true
}

func barFraction(x, y, row, start, width int) (float64, bool) {
	if y != row || x < start || x >= start+width {
		return 0, false
	}
	if width == 1 {
		return 0, true
	}
	return float64(x-start) / float64(width-1), true
}

// Controls renders one player's control overlay
type Controls struct{}

// NewControls creates a new Controls component
func NewControls() *Controls {
	return &Controls{}
}

// Render renders the panel for a snapshot at the given total width.
func (c *Controls) Render(snap core.Snapshot, vis autohide.Visibility, width int, focused bool) string {
	g := Layout(width)
	inner := width - 2*inset

	lines := make([]string, lineCount)
	lines[titleLine] = styles.PanelTitle(snap.ContainerID+" · "+snap.VideoID, focused)
	lines[stateLine] = c.renderState(snap)

	if vis != autohide.Hidden {
		dimmed := vis == autohide.Hiding
		lines[seekLine] = c.renderSeek(snap, g.SeekWidth, dimmed)
		lines[volumeLine] = c.renderVolume(snap, g.VolumeWidth, dimmed)
	}
	lines[messageLine] = c.renderMessage(snap)

	clip := lipgloss.NewStyle().MaxWidth(inner)
	for i, l := range lines {
		lines[i] = clip.Render(l)
	}

	return styles.Panel(focused).
		Width(width - 2).
		Height(lineCount).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (c *Controls) renderState(snap core.Snapshot) string {
	line := styles.StateIcon(snap.State) + " " + styles.StateStyle(snap.State).Render(snap.State.String())
	if snap.Fullscreen {
		line += styles.Muted.Render("  [fullscreen]")
	}
	return line
}

func (c *Controls) renderSeek(snap core.Snapshot, width int, dimmed bool) string {
	current := fmt.Sprintf("%*s ", labelWidth-1, tail.FormatSeconds(snap.CurrentTime))
	total := " " + tail.FormatSeconds(snap.Duration)
	return styles.Dim.Render(current) + styles.SeekBar(snap.ProgressPercent(), width, dimmed) + styles.Dim.Render(total)
}

func (c *Controls) renderVolume(snap core.Snapshot, width int, dimmed bool) string {
	label, level := "vol", fmt.Sprintf(" %d%%", snap.Volume)
	if snap.Muted {
		label, level = "muted", " muted"
	}
	return styles.Dim.Render(fmt.Sprintf("%*s ", labelWidth-1, label)) +
		styles.VolumeBar(snap.Volume, snap.Muted, width, dimmed) +
		styles.Dim.Render(level)
}

func (c *Controls) renderMessage(snap core.Snapshot) string {
	if snap.LastError == nil {
		return ""
	}
	msg := styles.Failed.Render(snap.LastError.Error())
	if s := rerrors.GetSuggestion(snap.LastError); s != "" {
		msg += styles.Muted.Render(" · " + s)
	}
	return msg
}
