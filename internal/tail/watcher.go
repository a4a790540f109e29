package tail

import (
	"context"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tessro/reel/internal/core"
)

// seekSlack is how far the position may drift from where steady playback
// would have put it before the change counts as a seek.
const seekSlack = 2.0

// EventType represents the type of playback event.
type EventType int

const (
	EventState EventType = iota
	EventPlay
	EventPause
	EventEnded
	EventSeek
	EventVolume
	EventMute
	EventError
	EventDestroyed
)

// Event represents a playback state change.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Previous  *core.Snapshot
	Current   *core.Snapshot
}

// Source is anything that can report a player snapshot.
type Source interface {
	Snapshot() core.Snapshot
}

// Watcher polls a player for state changes and emits events.
type Watcher struct {
	source   Source
	interval time.Duration
	clock    clockwork.Clock
	events   chan Event
	done     chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithClock sets the clock that drives polling.
func WithClock(c clockwork.Clock) WatcherOption {
	return func(w *Watcher) {
		w.clock = c
	}
}

// NewWatcher creates a new state watcher.
func NewWatcher(source Source, interval time.Duration, opts ...WatcherOption) *Watcher {
	if interval == 0 {
		interval = 250 * time.Millisecond
	}
	w := &Watcher{
		source:   source,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events returns the channel of playback events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins polling for state changes. It returns once the source is
// destroyed, the context ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.events)

	prev := w.source.Snapshot()
	prevAt := w.clock.Now()
	first := prev
	w.send(Event{Type: EventState, Timestamp: prevAt, Current: &first})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.Chan():
			curr := w.source.Snapshot()
			now := w.clock.Now()

			last := prev
			for _, e := range diffSnapshots(&last, &curr, now.Sub(prevAt), now) {
				w.send(e)
			}
			prev, prevAt = curr, now

			if curr.State == core.StateDestroyed {
				return nil
			}
		}
	}
}

func (w *Watcher) send(e Event) {
	select {
	case w.events <- e:
	default:
		// Drop event if channel is full
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
}

// diffSnapshots compares two snapshots taken elapsed apart.
func diffSnapshots(prev, curr *core.Snapshot, elapsed time.Duration, now time.Time) []Event {
	var events []Event
	add := func(t EventType) {
		events = append(events, Event{Type: t, Timestamp: now, Previous: prev, Current: curr})
	}

	if prev.State != curr.State {
		switch curr.State {
		case core.StatePlaying:
			add(EventPlay)
		case core.StatePaused:
			add(EventPause)
		case core.StateEnded:
			add(EventEnded)
		case core.StateError:
			add(EventError)
		case core.StateDestroyed:
			add(EventDestroyed)
		default:
			add(EventState)
		}
	}

	if seeked(prev, curr, elapsed) {
		add(EventSeek)
	}

	if prev.Volume != curr.Volume {
		add(EventVolume)
	}

	if prev.Muted != curr.Muted {
		add(EventMute)
	}

	return events
}

// seeked reports whether the position jumped rather than played through.
func seeked(prev, curr *core.Snapshot, elapsed time.Duration) bool {
	if !prev.State.Trusted() || !curr.State.Trusted() {
		return false
	}
	expected := prev.CurrentTime
	if prev.State == core.StatePlaying {
		expected += elapsed.Seconds()
	}
	return math.Abs(curr.CurrentTime-expected) > seekSlack
}
