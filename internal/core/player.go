package core

import (
	"context"
	"fmt"
)

// ProviderState is the play state reported by the embedded widget.
type ProviderState int

const (
	ProviderUnstarted ProviderState = -1
	ProviderEnded     ProviderState = 0
	ProviderPlaying   ProviderState = 1
	ProviderPaused    ProviderState = 2
	ProviderBuffering ProviderState = 3
	ProviderCued      ProviderState = 5
)

func (s ProviderState) String() string {
	switch s {
	case ProviderUnstarted:
		return "unstarted"
	case ProviderEnded:
		return "ended"
	case ProviderPlaying:
		return "playing"
	case ProviderPaused:
		return "paused"
	case ProviderBuffering:
		return "buffering"
	case ProviderCued:
		return "cued"
	default:
		return fmt.Sprintf("provider(%d)", int(s))
	}
}

// Provider is the method surface of one constructed widget player.
// Implementations must be safe for concurrent use and must tolerate calls
// after Destroy by returning an error.
type Provider interface {
	PlayVideo() error
	PauseVideo() error
	SeekTo(seconds float64, allowSeekAhead bool) error
	SetVolume(volume int) error
	Mute() error
	UnMute() error

	CurrentTime() (float64, error)
	Duration() (float64, error)
	Volume() (int, error)
	IsMuted() (bool, error)
	PlayerState() (ProviderState, error)

	Destroy() error
}

// Fullscreener is implemented by providers that can take their container fullscreen.
type Fullscreener interface {
	SetFullscreen(on bool) error
}

// Events are the widget callbacks. Any of them may fire from any goroutine,
// including after the consumer has discarded the player.
type Events struct {
	OnReady       func()
	OnStateChange func(ProviderState)
	OnError       func(code int)
}

// PlayerVars are the widget's construction-time parameters.
type PlayerVars struct {
	Autoplay    bool
	Mute        bool
	Controls    bool
	Loop        bool
	PlaysInline bool
	Start       int
}

// Map returns the vars in the widget's wire format. Looping a single video
// requires it to be its own playlist.
func (v PlayerVars) Map(videoID string) map[string]any {
	m := map[string]any{
		"autoplay":       boolInt(v.Autoplay),
		"mute":           boolInt(v.Mute),
		"controls":       boolInt(v.Controls),
		"playsinline":    boolInt(v.PlaysInline),
		"rel":            0,
		"modestbranding": 1,
	}
	if v.Loop {
		m["loop"] = 1
		m["playlist"] = videoID
	}
	if v.Start > 0 {
		m["start"] = v.Start
	}
	return m
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// PlayerConfig is what a Factory needs to construct a widget player.
type PlayerConfig struct {
	VideoID     string
	ContainerID string
	Width       int
	Height      int
	Vars        PlayerVars
	Events      Events
}

// Factory constructs widget players inside containers.
type Factory interface {
	NewPlayer(ctx context.Context, cfg PlayerConfig) (Provider, error)
}

// WatchURL returns the public watch page for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
