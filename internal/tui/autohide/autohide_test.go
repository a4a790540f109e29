package autohide

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playingMachine(t *testing.T) (*Machine, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	m := New(clock, 3*time.Second, 300*time.Millisecond)
	t.Cleanup(m.Close)

	m.SetAutoplay(true)
	m.SetPlaying(true)
	return m, clock
}

func eventually(t *testing.T, m *Machine, want Visibility) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Visibility() == want }, time.Second, time.Millisecond)
}

// settle gives AfterFunc goroutines a chance to run.
func settle() {
	time.Sleep(20 * time.Millisecond)
}

func TestHidesAfterDelayThenFades(t *testing.T) {
	m, clock := playingMachine(t)

	clock.Advance(2999 * time.Millisecond)
	settle()
	assert.Equal(t, Visible, m.Visibility())

	clock.Advance(time.Millisecond)
	eventually(t, m, Hiding)

	clock.Advance(300 * time.Millisecond)
	eventually(t, m, Hidden)
}

func TestPausedStaysVisible(t *testing.T) {
	m, clock := playingMachine(t)
	m.SetPlaying(false)

	clock.Advance(10 * time.Second)
	settle()
	assert.Equal(t, Visible, m.Visibility())
}

func TestManualSessionStaysVisible(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := New(clock, time.Second, 0)
	defer m.Close()
	m.SetPlaying(true)

	clock.Advance(10 * time.Second)
	settle()
	assert.Equal(t, Visible, m.Visibility())
}

func TestHoverBlocksHiding(t *testing.T) {
	m, clock := playingMachine(t)
	m.PointerEnter()

	clock.Advance(10 * time.Second)
	settle()
	assert.Equal(t, Visible, m.Visibility())

	m.PointerLeave()
	clock.Advance(2 * time.Second)
	settle()
	assert.Equal(t, Visible, m.Visibility(), "leave restarts the full delay")

	clock.Advance(time.Second)
	eventually(t, m, Hiding)
}

func TestActivityRevealsAndRestarts(t *testing.T) {
	m, clock := playingMachine(t)

	clock.Advance(3 * time.Second)
	eventually(t, m, Hiding)
	clock.Advance(300 * time.Millisecond)
	eventually(t, m, Hidden)

	m.Activity()
	assert.Equal(t, Visible, m.Visibility())

	clock.Advance(2 * time.Second)
	settle()
	assert.Equal(t, Visible, m.Visibility())
}

func TestPauseDuringFadeShows(t *testing.T) {
	m, clock := playingMachine(t)

	clock.Advance(3 * time.Second)
	eventually(t, m, Hiding)

	m.SetPlaying(false)
	assert.Equal(t, Visible, m.Visibility())

	clock.Advance(time.Second)
	settle()
	assert.Equal(t, Visible, m.Visibility())
}

func TestNoTimerAfterClose(t *testing.T) {
	m, clock := playingMachine(t)
	m.Close()
	m.Close()

	clock.Advance(10 * time.Second)
	settle()
	assert.Equal(t, Visible, m.Visibility())

	m.Activity()
	m.SetPlaying(false)

	_, open := <-drain(m.Changes())
	assert.False(t, open)
}

func TestChangesReported(t *testing.T) {
	m, clock := playingMachine(t)

	clock.Advance(3 * time.Second)
	assert.Equal(t, Hiding, <-m.Changes())
	clock.BlockUntil(1)
	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, Hidden, <-m.Changes())
	m.Activity()
	assert.Equal(t, Visible, <-m.Changes())
}

// drain discards buffered values and returns the channel.
func drain(ch <-chan Visibility) <-chan Visibility {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return ch
			}
		default:
			return ch
		}
	}
}
