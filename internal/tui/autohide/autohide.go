// Package autohide implements the control overlay's Visible → Hiding → Hidden
// timer machine. It knows nothing about the player beyond the events it is fed.
package autohide

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Default timings.
const (
	DefaultDelay = 3 * time.Second
	DefaultFade  = 300 * time.Millisecond
)

// Visibility is the overlay's visibility.
type Visibility int

const (
	Visible Visibility = iota
	Hiding
	Hidden
)

func (v Visibility) String() string {
	switch v {
	case Visible:
		return "visible"
	case Hiding:
		return "hiding"
	case Hidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// Machine hides the overlay after a period without activity, but only while
// playing in an autoplay-started session and with no pointer over the player.
type Machine struct {
	clock clockwork.Clock
	delay time.Duration
	fade  time.Duration

	mu       sync.Mutex
	vis      Visibility
	playing  bool
	autoplay bool
	hovering bool
	closed   bool
	gen      uint64
	timer    clockwork.Timer
	changes  chan Visibility
}

// New creates a machine in the Visible state. Non-positive timings use the
// defaults.
func New(clock clockwork.Clock, delay, fade time.Duration) *Machine {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if fade <= 0 {
		fade = DefaultFade
	}
	return &Machine{
		clock:   clock,
		delay:   delay,
		fade:    fade,
		changes: make(chan Visibility, 8),
	}
}

// Visibility returns the current visibility.
func (m *Machine) Visibility() Visibility {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vis
}

// Changes delivers every visibility change. It is closed by Close.
func (m *Machine) Changes() <-chan Visibility {
	return m.changes
}

// SetPlaying reports a playback state change.
func (m *Machine) SetPlaying(playing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing == playing {
		return
	}
	m.playing = playing
	m.restartLocked()
}

// SetAutoplay marks whether the session was started by autoplay.
func (m *Machine) SetAutoplay(autoplay bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.autoplay == autoplay {
		return
	}
	m.autoplay = autoplay
	m.restartLocked()
}

// PointerEnter reports the pointer moving over the player.
func (m *Machine) PointerEnter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hovering {
		return
	}
	m.hovering = true
	m.restartLocked()
}

// PointerLeave reports the pointer leaving the player.
func (m *Machine) PointerLeave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hovering {
		return
	}
	m.hovering = false
	m.restartLocked()
}

// Activity reports user input. It reveals the overlay and restarts the delay.
func (m *Machine) Activity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restartLocked()
}

// Close stops the machine. No timer fires afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	m.stopLocked()
	close(m.changes)
}

func (m *Machine) eligibleLocked() bool {
	return m.playing && m.autoplay && !m.hovering
}

// restartLocked shows the overlay, cancels any pending timer and starts a
// fresh one if the overlay may hide.
func (m *Machine) restartLocked() {
	if m.closed {
		return
	}
	m.gen++
	m.stopLocked()
	m.setLocked(Visible)

	if m.eligibleLocked() {
		m.scheduleLocked(m.delay, Hiding)
	}
}

func (m *Machine) scheduleLocked(d time.Duration, next Visibility) {
	gen := m.gen
	m.timer = m.clock.AfterFunc(d, func() {
		m.fire(gen, next)
	})
}

func (m *Machine) fire(gen uint64, next Visibility) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen || !m.eligibleLocked() {
		return
	}

	m.setLocked(next)
	if next == Hiding {
		m.scheduleLocked(m.fade, Hidden)
	} else {
		m.timer = nil
	}
}

func (m *Machine) stopLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) setLocked(v Visibility) {
	if m.vis == v {
		return
	}
	m.vis = v
	select {
	case m.changes <- v:
	default:
	}
}
