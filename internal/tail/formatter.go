package tail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	rerrors "github.com/tessro/reel/internal/errors"
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithTemplate sets a custom format template. An invalid template is ignored.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if tmpl != "" {
			t, err := template.New("format").Parse(tmpl)
			if err == nil {
				f.template = t
			}
		}
	}
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		showEmoji: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format formats an event as a string.
func (f *Formatter) Format(e Event) string {
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

func (f *Formatter) formatLine(e Event) string {
	var parts []string

	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}
	if f.showEmoji {
		parts = append(parts, eventEmoji(e.Type))
	}
	parts = append(parts, eventDescription(e))

	return strings.Join(parts, " ")
}

func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:      eventTypeName(e.Type),
		Emoji:     eventEmoji(e.Type),
		Timestamp: e.Timestamp,
		Time:      e.Timestamp.Format("15:04:05"),
	}

	if c := e.Current; c != nil {
		data.Video = c.VideoID
		data.Container = c.ContainerID
		data.State = c.State.String()
		data.Position = FormatSeconds(c.CurrentTime)
		data.Duration = FormatSeconds(c.Duration)
		data.Volume = c.Volume
		data.Muted = c.Muted
		if c.LastError != nil {
			data.Error = c.LastError.Error()
		}
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

type templateData struct {
	Type      string
	Emoji     string
	Timestamp time.Time
	Time      string
	Video     string
	Container string
	State     string
	Position  string
	Duration  string
	Volume    int
	Muted     bool
	Error     string
}

func eventDescription(e Event) string {
	c := e.Current
	switch e.Type {
	case EventState:
		if c != nil {
			return fmt.Sprintf("[%s] %s", c.ContainerID, c.State)
		}
		return "State changed"

	case EventPlay:
		if c != nil {
			return fmt.Sprintf("[%s] Playing at %s", c.ContainerID, FormatSeconds(c.CurrentTime))
		}
		return "Playing"

	case EventPause:
		if c != nil {
			return fmt.Sprintf("[%s] Paused at %s", c.ContainerID, FormatSeconds(c.CurrentTime))
		}
		return "Paused"

	case EventEnded:
		return "Ended"

	case EventSeek:
		if c != nil && e.Previous != nil {
			return fmt.Sprintf("Seeked %s → %s",
				FormatSeconds(e.Previous.CurrentTime),
				FormatSeconds(c.CurrentTime))
		}
		return "Seeked"

	case EventVolume:
		if c != nil {
			return fmt.Sprintf("Volume: %d%%", c.Volume)
		}
		return "Volume changed"

	case EventMute:
		if c != nil && c.Muted {
			return "Muted"
		}
		return "Unmuted"

	case EventError:
		if c != nil && c.LastError != nil {
			msg := c.LastError.Error()
			if s := rerrors.GetSuggestion(c.LastError); s != "" {
				msg += " (" + s + ")"
			}
			return msg
		}
		return "Error"

	case EventDestroyed:
		return "Destroyed"

	default:
		return "Unknown event"
	}
}

func eventEmoji(t EventType) string {
	switch t {
	case EventState:
		return "🔄"
	case EventPlay:
		return "▶️"
	case EventPause:
		return "⏸️"
	case EventEnded:
		return "🏁"
	case EventSeek:
		return "⏩"
	case EventVolume:
		return "🔊"
	case EventMute:
		return "🔇"
	case EventError:
		return "❌"
	case EventDestroyed:
		return "🗑️"
	default:
		return "❓"
	}
}

// String returns the event's short name.
func (t EventType) String() string {
	return eventTypeName(t)
}

func eventTypeName(t EventType) string {
	switch t {
	case EventState:
		return "state"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventEnded:
		return "ended"
	case EventSeek:
		return "seek"
	case EventVolume:
		return "volume"
	case EventMute:
		return "mute"
	case EventError:
		return "error"
	case EventDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// FormatSeconds renders a position as m:ss, or h:mm:ss past an hour.
func FormatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	total := int(s)
	h, m, sec := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
