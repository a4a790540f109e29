package tui

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/layout"
	"github.com/tessro/reel/internal/loader"
	"github.com/tessro/reel/internal/player"
	"github.com/tessro/reel/internal/provider/sim"
	"github.com/tessro/reel/internal/registry"
	"github.com/tessro/reel/internal/tui/autohide"
	"github.com/tessro/reel/internal/tui/components"
)

const video = "dQw4w9WgXcQ"

type harness struct {
	clock   clockwork.FakeClock
	factory *sim.Factory
	manager *registry.Manager
	app     *App
	copied  []string
}

func newHarness(t *testing.T, settings Settings, containers ...string) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := clockwork.NewFakeClock()
	script := sim.NewScript(clock, 0)
	script.Preload()
	host := sim.NewHost(clock)
	factory := sim.NewFactory(clock)

	manager := registry.New(factory,
		loader.New(script, loader.WithClock(clock)),
		layout.NewProber(host, layout.WithClock(clock)),
		logrus.NewEntry(logger),
		player.WithClock(clock),
	)
	t.Cleanup(manager.Close)

	h := &harness{clock: clock, factory: factory, manager: manager}
	for _, id := range containers {
		host.Mount(id, core.Dimensions{Width: 640, Height: 360}, true)
		h.initialize(t, id)
	}

	h.app = NewApp(manager, settings, WithClock(clock))
	h.app.copyText = func(s string) error {
		h.copied = append(h.copied, s)
		return nil
	}
	h.app.openURL = func(string) error { return errors.New("no browser") }
	return h
}

func (h *harness) initialize(t *testing.T, container string) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, err := h.manager.Initialize(context.Background(), video, container, player.InitOptions{})
		done <- err
	}()

	var err error
	require.Eventually(t, func() bool {
		select {
		case err = <-done:
			return true
		default:
			h.clock.Advance(10 * time.Millisecond)
			return false
		}
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, err)
}

func (h *harness) commands(t *testing.T, container string) []string {
	t.Helper()
	for _, p := range h.factory.Players() {
		if p.Config().ContainerID == container {
			return p.Commands()
		}
	}
	t.Fatalf("no player in %q", container)
	return nil
}

func (h *harness) model(t *testing.T) Model {
	t.Helper()
	m, _ := update(NewModel(h.app), tea.WindowSizeMsg{Width: 80, Height: 40})
	t.Cleanup(func() {
		for _, p := range m.panels {
			p.hide.Close()
		}
	})
	return m
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// send delivers msg and feeds the result of any command back in.
func send(m Model, msg tea.Msg) Model {
	m, cmd := update(m, msg)
	if cmd == nil {
		return m
	}
	if out := cmd(); out != nil {
		m, _ = update(m, out)
	}
	return m
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func click(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}
}

func motion(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionMotion}
}

func last(cmds []string) string {
	if len(cmds) == 0 {
		return ""
	}
	return cmds[len(cmds)-1]
}

func TestModelHasPanelPerInstance(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1", "c2")
	m := h.model(t)

	require.Len(t, m.panels, 2)
	assert.Equal(t, "c1", m.panels[0].snap.ContainerID)
	assert.Equal(t, "c2", m.panels[1].snap.ContainerID)
	assert.Equal(t, core.StateReady, m.panels[0].snap.State)

	view := m.View()
	assert.Contains(t, view, "c1 · "+video)
	assert.Contains(t, view, "c2 · "+video)
}

func TestTabCyclesFocus(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1", "c2")
	m := h.model(t)

	m = send(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 1, m.focused)
	m = send(m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 0, m.focused)
	m = send(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, 1, m.focused)
}

func TestKeysDriveFocusedInstance(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1", "c2")
	m := h.model(t)

	m = send(m, keyPress("k"))
	assert.Equal(t, core.StatePlaying, m.panels[0].snap.State)
	assert.Equal(t, core.StateReady, m.panels[1].snap.State, "other instance untouched")

	m = send(m, keyPress("k"))
	assert.Equal(t, core.StatePaused, m.panels[0].snap.State)

	m = send(m, keyPress("5"))
	assert.Equal(t, "seek 60", last(h.commands(t, "c1")))

	m = send(m, keyPress("l"))
	assert.Equal(t, "seek 65", last(h.commands(t, "c1")))

	m = send(m, keyPress("j"))
	assert.Equal(t, "seek 55", last(h.commands(t, "c1")))

	m = send(m, keyPress("-"))
	assert.Equal(t, "volume 95", last(h.commands(t, "c1")))
	assert.Equal(t, 95, m.panels[0].snap.Volume)

	m = send(m, keyPress("m"))
	assert.Equal(t, "mute", last(h.commands(t, "c1")))
	assert.True(t, m.panels[0].snap.Muted)

	m = send(m, keyPress("f"))
	assert.True(t, m.panels[0].snap.Fullscreen)

	assert.Empty(t, h.commands(t, "c2"))
}

func TestCommandErrorShownThenExpires(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1")
	m := h.model(t)

	c, ok := h.manager.Get("c1")
	require.True(t, ok)
	c.Destroy()

	m = send(m, keyPress("k"))
	require.Error(t, m.lastError)
	assert.Contains(t, m.renderStatusBar(), "Error: [c1]")
	assert.Contains(t, m.renderStatusBar(), "This player was closed")

	h.clock.Advance(errorExpiry + time.Second)
	m, _ = update(m, tickMsg(time.Now()))
	assert.NoError(t, m.lastError)
}

func TestCopyAndOpenURL(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1")
	m := h.model(t)

	m = send(m, keyPress("y"))
	assert.Equal(t, []string{core.WatchURL(video)}, h.copied)
	assert.Equal(t, "Copied "+core.WatchURL(video), m.notice)

	m = send(m, keyPress("o"))
	assert.EqualError(t, m.lastError, "no browser")
}

func TestClickSeekBarAndVolumeBar(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1", "c2")
	m := h.model(t)
	g := components.Layout(80)

	m = send(m, click(g.SeekStart+g.SeekWidth-1, components.PanelHeight+g.SeekRow))
	assert.Equal(t, 1, m.focused, "click focuses the panel")
	assert.Equal(t, "seek 120", last(h.commands(t, "c2")))

	m = send(m, click(g.VolumeStart, g.VolumeRow))
	assert.Equal(t, 0, m.focused)
	assert.Equal(t, "volume 0", last(h.commands(t, "c1")))

	send(m, click(g.VolumeStart+g.VolumeWidth-1, g.VolumeRow))
	assert.Equal(t, "volume 100", last(h.commands(t, "c1")))
}

func TestHoverTracksPointer(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1", "c2")
	m := h.model(t)

	m = send(m, motion(5, 2))
	assert.Equal(t, 0, m.hovered)

	m = send(m, motion(5, components.PanelHeight+2))
	assert.Equal(t, 1, m.hovered)

	m = send(m, motion(5, 3*components.PanelHeight))
	assert.Equal(t, -1, m.hovered)
}

func TestControlsHideDuringAutoplayPlayback(t *testing.T) {
	settings := DefaultSettings()
	settings.Autoplay = true
	h := newHarness(t, settings, "c1")
	m := h.model(t)

	m = send(m, keyPress("k"))
	require.Equal(t, core.StatePlaying, m.panels[0].snap.State)

	hide := m.panels[0].hide
	h.clock.Advance(settings.AutoHideDelay)
	require.Eventually(t, func() bool { return hide.Visibility() == autohide.Hiding }, time.Second, time.Millisecond)
	h.clock.Advance(settings.FadeDuration)
	require.Eventually(t, func() bool { return hide.Visibility() == autohide.Hidden }, time.Second, time.Millisecond)

	m, _ = update(m, refreshMsg{})
	assert.NotContains(t, m.View(), "vol ")

	before := len(h.commands(t, "c1"))
	g := components.Layout(80)
	m, cmd := update(m, click(g.SeekStart, g.SeekRow))
	assert.Nil(t, cmd, "a click on hidden controls only reveals them")
	assert.Equal(t, before, len(h.commands(t, "c1")))
	assert.Equal(t, autohide.Visible, m.panels[0].vis)
}

func TestHelpOverlay(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1")
	m := h.model(t)

	m = send(m, keyPress("?"))
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	m = send(m, keyPress("k"))
	assert.True(t, m.showHelp, "keys are swallowed while help is open")
	assert.Equal(t, core.StateReady, m.panels[0].ctrl.State())

	m = send(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.showHelp)
}

func TestQuitDestroysInstances(t *testing.T) {
	h := newHarness(t, DefaultSettings(), "c1", "c2")
	m := h.model(t)

	m, cmd := update(m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
	require.Eventually(t, func() bool { return len(h.factory.Live()) == 0 }, time.Second, time.Millisecond)

	for _, p := range m.panels {
		assert.Equal(t, core.StateDestroyed, p.ctrl.State())
	}
}

func TestNoPlayers(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	m := h.model(t)

	assert.Contains(t, m.View(), "No players")
	m = send(m, keyPress("k"))
	assert.Nil(t, m.lastError)
}
