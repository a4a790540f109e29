package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jonboulle/clockwork"

	"github.com/tessro/reel/internal/browser"
	"github.com/tessro/reel/internal/core"
	rerrors "github.com/tessro/reel/internal/errors"
	"github.com/tessro/reel/internal/player"
	"github.com/tessro/reel/internal/registry"
	"github.com/tessro/reel/internal/tui/autohide"
	"github.com/tessro/reel/internal/tui/components"
	"github.com/tessro/reel/internal/tui/styles"
)

// errorExpiry is how long a command error stays in the status bar.
const errorExpiry = 5 * time.Second

// Settings tune the control surface.
type Settings struct {
	RefreshInterval time.Duration
	AutoHideDelay   time.Duration
	FadeDuration    time.Duration
	SeekStep        float64
	VolumeStep      int

	// Autoplay marks the session as autoplay-started, which lets the
	// controls hide during playback.
	Autoplay bool
}

// DefaultSettings returns the stock control surface settings.
func DefaultSettings() Settings {
	return Settings{
		RefreshInterval: 100 * time.Millisecond,
		AutoHideDelay:   autohide.DefaultDelay,
		FadeDuration:    autohide.DefaultFade,
		SeekStep:        5,
		VolumeStep:      5,
	}
}

// App holds the TUI application state
type App struct {
	manager  *registry.Manager
	settings Settings
	clock    clockwork.Clock

	copyText func(string) error
	openURL  func(string) error
}

// AppOption configures an App.
type AppOption func(*App)

// WithClock sets the clock that drives auto-hide and error expiry.
func WithClock(c clockwork.Clock) AppOption {
	return func(a *App) {
		a.clock = c
	}
}

// NewApp creates a control surface over every instance in manager.
func NewApp(manager *registry.Manager, settings Settings, opts ...AppOption) *App {
	def := DefaultSettings()
	if settings.RefreshInterval <= 0 {
		settings.RefreshInterval = def.RefreshInterval
	}
	if settings.SeekStep <= 0 {
		settings.SeekStep = def.SeekStep
	}
	if settings.VolumeStep <= 0 {
		settings.VolumeStep = def.VolumeStep
	}

	a := &App{
		manager:  manager,
		settings: settings,
		clock:    clockwork.NewRealClock(),
		copyText: clipboard.WriteAll,
		openURL:  browser.Open,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// panel is one instance on screen.
type panel struct {
	ctrl *player.Controller
	hide *autohide.Machine
	snap core.Snapshot
	vis  autohide.Visibility
}

// Model is the main TUI model
type Model struct {
	app     *App
	width   int
	height  int
	panels  []*panel
	focused int
	hovered int

	controls *components.Controls
	keys     keyMap
	help     help.Model

	// Overlays
	showHelp bool

	// Status bar
	lastError   error
	errorScope  string
	notice      string
	errorExpiry time.Time

	quitting bool
}

// NewModel creates a new TUI model
func NewModel(app *App) Model {
	m := Model{
		app:      app,
		hovered:  -1,
		controls: components.NewControls(),
		keys:     newKeyMap(),
		help:     help.New(),
	}

	for _, c := range app.manager.Controllers() {
		hide := autohide.New(app.clock, app.settings.AutoHideDelay, app.settings.FadeDuration)
		hide.SetAutoplay(app.settings.Autoplay)
		m.panels = append(m.panels, &panel{ctrl: c, hide: hide})
	}
	m.refresh()
	return m
}

// Messages
type tickMsg time.Time

type refreshMsg struct{}

type visibilityMsg struct {
	index int
	vis   autohide.Visibility
}

type errMsg struct {
	container string
	err       error
}

type noticeMsg string

// Commands
func (m Model) tick() tea.Cmd {
	return tea.Tick(m.app.settings.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitVisibility(index int, ch <-chan autohide.Visibility) tea.Cmd {
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return visibilityMsg{index: index, vis: v}
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.tick()}
	for i, p := range m.panels {
		cmds = append(cmds, waitVisibility(i, p.hide.Changes()))
	}
	return tea.Batch(cmds...)
}

// refresh pulls a fresh snapshot for every panel and feeds playback state to
// its auto-hide machine.
func (m *Model) refresh() {
	for _, p := range m.panels {
		p.snap = p.ctrl.Snapshot()
		p.hide.SetPlaying(p.snap.State == core.StatePlaying)
		p.vis = p.hide.Visibility()
	}
	if m.app.clock.Now().After(m.errorExpiry) {
		m.lastError = nil
		m.errorScope = ""
		m.notice = ""
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.refresh()
		return m, m.tick()

	case refreshMsg:
		m.refresh()
		return m, nil

	case visibilityMsg:
		if msg.index < 0 || msg.index >= len(m.panels) {
			return m, nil
		}
		p := m.panels[msg.index]
		p.vis = msg.vis
		return m, waitVisibility(msg.index, p.hide.Changes())

	case errMsg:
		m.lastError = msg.err
		m.errorScope = msg.container
		m.notice = ""
		m.errorExpiry = m.app.clock.Now().Add(errorExpiry)
		m.refresh()
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		m.lastError = nil
		m.errorExpiry = m.app.clock.Now().Add(errorExpiry)
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys (always work)
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	// Help overlay
	if m.showHelp {
		switch msg.String() {
		case "?", "esc":
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m.quit()

	case key.Matches(msg, m.keys.help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.nextPanel):
		if n := len(m.panels); n > 0 {
			m.focused = (m.focused + 1) % n
		}
		return m, nil

	case key.Matches(msg, m.keys.prevPanel):
		if n := len(m.panels); n > 0 {
			m.focused = (m.focused + n - 1) % n
		}
		return m, nil
	}

	p := m.focusedPanel()
	if p == nil {
		return m, nil
	}
	p.hide.Activity()
	p.vis = p.hide.Visibility()

	step := m.app.settings.SeekStep
	vol := m.app.settings.VolumeStep

	switch {
	case key.Matches(msg, m.keys.playPause):
		return m, m.command(p, (*player.Controller).TogglePlay)
	case key.Matches(msg, m.keys.seekBack):
		return m, m.command(p, func(c *player.Controller) error { return c.SeekBy(-step) })
	case key.Matches(msg, m.keys.seekForward):
		return m, m.command(p, func(c *player.Controller) error { return c.SeekBy(step) })
	case key.Matches(msg, m.keys.jumpBack):
		return m, m.command(p, func(c *player.Controller) error { return c.SeekBy(-2 * step) })
	case key.Matches(msg, m.keys.jumpForward):
		return m, m.command(p, func(c *player.Controller) error { return c.SeekBy(2 * step) })
	case key.Matches(msg, m.keys.seekPercent):
		f := float64(msg.String()[0]-'0') / 10
		return m, m.command(p, func(c *player.Controller) error { return c.SeekFraction(f) })
	case key.Matches(msg, m.keys.volumeUp):
		return m, m.command(p, func(c *player.Controller) error { return c.StepVolume(vol) })
	case key.Matches(msg, m.keys.volumeDown):
		return m, m.command(p, func(c *player.Controller) error { return c.StepVolume(-vol) })
	case key.Matches(msg, m.keys.mute):
		return m, m.command(p, (*player.Controller).ToggleMute)
	case key.Matches(msg, m.keys.fullscreen):
		return m, m.command(p, (*player.Controller).ToggleFullscreen)
	case key.Matches(msg, m.keys.copyURL):
		return m, m.copyURL(p)
	case key.Matches(msg, m.keys.openURL):
		return m, m.openURL(p)
	}

	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	idx := m.panelAt(msg.Y)
	wasHidden := idx >= 0 && m.panels[idx].hide.Visibility() == autohide.Hidden
	m.setHover(idx)
	if idx < 0 {
		return m, nil
	}

	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	p := m.panels[idx]
	m.focused = idx
	p.hide.Activity()
	p.vis = p.hide.Visibility()
	if wasHidden {
		// The click only reveals the controls.
		return m, nil
	}

	g := components.Layout(m.panelWidth())
	y := msg.Y - idx*components.PanelHeight
	if f, ok := g.SeekAt(msg.X, y); ok {
		return m, m.command(p, func(c *player.Controller) error { return c.SeekFraction(f) })
	}
	if v, ok := g.VolumeAt(msg.X, y); ok {
		return m, m.command(p, func(c *player.Controller) error { return c.SetVolume(v) })
	}
	return m, nil
}

// setHover moves pointer-over from the previous panel to idx, which may be -1.
func (m *Model) setHover(idx int) {
	if idx == m.hovered {
		return
	}
	if m.hovered >= 0 && m.hovered < len(m.panels) {
		m.panels[m.hovered].hide.PointerLeave()
	}
	if idx >= 0 {
		m.panels[idx].hide.PointerEnter()
	}
	m.hovered = idx
}

func (m Model) panelAt(y int) int {
	if y < 0 {
		return -1
	}
	idx := y / components.PanelHeight
	if idx >= len(m.panels) {
		return -1
	}
	return idx
}

func (m Model) panelWidth() int {
	if m.width == 0 {
		return 80
	}
	return m.width
}

func (m Model) focusedPanel() *panel {
	if m.focused < 0 || m.focused >= len(m.panels) {
		return nil
	}
	return m.panels[m.focused]
}

func (m Model) command(p *panel, fn func(*player.Controller) error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(p.ctrl); err != nil {
			return errMsg{container: p.ctrl.ContainerID(), err: err}
		}
		return refreshMsg{}
	}
}

func (m Model) copyURL(p *panel) tea.Cmd {
	url := core.WatchURL(p.ctrl.VideoID())
	return func() tea.Msg {
		if err := m.app.copyText(url); err != nil {
			return errMsg{container: p.ctrl.ContainerID(), err: err}
		}
		return noticeMsg("Copied " + url)
	}
}

func (m Model) openURL(p *panel) tea.Cmd {
	url := core.WatchURL(p.ctrl.VideoID())
	return func() tea.Msg {
		if err := m.app.openURL(url); err != nil {
			return errMsg{container: p.ctrl.ContainerID(), err: err}
		}
		return noticeMsg("Opened " + url)
	}
}

// quit stops every auto-hide timer and destroys every instance.
func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	for _, p := range m.panels {
		p.hide.Close()
	}
	m.app.manager.Close()
	return m, tea.Quit
}

// View renders the UI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	var rows []string
	for i, p := range m.panels {
		rows = append(rows, m.controls.Render(p.snap, p.vis, m.width, i == m.focused))
	}
	if len(rows) == 0 {
		rows = append(rows, styles.Muted.Render("No players"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, append(rows, m.renderStatusBar())...)
}

func (m Model) renderStatusBar() string {
	status := m.help.ShortHelpView(m.keys.ShortHelp())

	switch {
	case m.lastError != nil:
		text := fmt.Sprintf("Error: [%s] %s", m.errorScope, m.lastError.Error())
		if s := rerrors.GetSuggestion(m.lastError); s != "" {
			text += " (" + s + ")"
		}
		status = styles.Paused.Render(text)
	case m.notice != "":
		status = styles.Playing.Render(m.notice)
	}

	return lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 1).
		Render(status)
}

func (m Model) renderHelp() string {
	title := "Reel - Keyboard Shortcuts"

	body := lipgloss.JoinVertical(lipgloss.Left,
		styles.Title.Render(title),
		styles.Dim.Render(strings.Repeat("═", len(title))),
		m.help.FullHelpView(m.keys.FullHelp()),
		"",
		styles.Muted.Render("Mouse: hover shows controls, click the bars to seek or set volume"),
		styles.Muted.Render("Press ? or Esc to close"),
	)

	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(styles.BorderStyle.Padding(1, 2).Render(body))
}

// Run starts the TUI application
func Run(app *App) error {
	model := NewModel(app)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseAllMotion())

	_, err := p.Run()
	app.manager.Close()
	return err
}
