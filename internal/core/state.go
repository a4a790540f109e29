package core

import (
	"fmt"

	rerrors "github.com/tessro/reel/internal/errors"
)

// State is the lifecycle state of a player instance.
type State int

const (
	StateUninitialized State = iota
	StateAwaitingScript
	StateAwaitingContainer
	StateConstructing
	StateReady
	StatePlaying
	StatePaused
	StateEnded
	StateError
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAwaitingScript:
		return "awaiting-script"
	case StateAwaitingContainer:
		return "awaiting-container"
	case StateConstructing:
		return "constructing"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateError || s == StateDestroyed
}

// Initializing reports whether initialization is in progress.
func (s State) Initializing() bool {
	return s == StateAwaitingScript || s == StateAwaitingContainer || s == StateConstructing
}

// Trusted reports whether polled position data is current in this state.
func (s State) Trusted() bool {
	return s == StateReady || s == StatePlaying || s == StatePaused
}

// Commandable reports whether playback commands are forwarded to the provider.
func (s State) Commandable() bool {
	return s.Trusted() || s == StateEnded
}

// Snapshot is a point-in-time copy of a player instance's observable state.
type Snapshot struct {
	VideoID     string          `json:"video_id"`
	ContainerID string          `json:"container_id"`
	State       State           `json:"state"`
	CurrentTime float64         `json:"current_time"`
	Duration    float64         `json:"duration"`
	Volume      int             `json:"volume"`
	Muted       bool            `json:"muted"`
	Fullscreen  bool            `json:"fullscreen"`
	LastError   *rerrors.Record `json:"last_error,omitempty"`
}

// IsPlaying returns true if the instance is playing.
func (s Snapshot) IsPlaying() bool {
	return s.State == StatePlaying
}

// ProgressPercent returns playback progress as a percentage (0-100).
func (s Snapshot) ProgressPercent() float64 {
	if s.Duration <= 0 {
		return 0
	}
	p := s.CurrentTime / s.Duration * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// Dimensions is the rendered size of a container, in CSS pixels.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether either side is zero, which makes the container unusable.
func (d Dimensions) Empty() bool {
	return d.Width <= 0 || d.Height <= 0
}
