package sim

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tessro/reel/internal/core"
)

// ErrDestroyed is returned by every call on a destroyed player.
var ErrDestroyed = errors.New("sim: player destroyed")

// DefaultDuration is the length of every simulated video unless overridden.
const DefaultDuration = 120.0

// Factory builds simulated players.
type Factory struct {
	clock clockwork.Clock

	mu         sync.Mutex
	readyDelay time.Duration
	noReady    bool
	duration   float64
	rejections int
	failNext   error
	players    []*Player
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithReadyDelay sets how long after construction onReady fires.
func WithReadyDelay(d time.Duration) FactoryOption {
	return func(f *Factory) {
		f.readyDelay = d
	}
}

// WithoutReady makes players never fire onReady on their own.
func WithoutReady() FactoryOption {
	return func(f *Factory) {
		f.noReady = true
	}
}

// WithDuration sets the simulated video length in seconds.
func WithDuration(seconds float64) FactoryOption {
	return func(f *Factory) {
		f.duration = seconds
	}
}

// WithAutoplayRejections makes the first n play commands of each player be
// silently ignored, the way browsers reject unmuted autoplay.
func WithAutoplayRejections(n int) FactoryOption {
	return func(f *Factory) {
		f.rejections = n
	}
}

// NewFactory returns a factory of simulated players.
func NewFactory(clock clockwork.Clock, opts ...FactoryOption) *Factory {
	f := &Factory{
		clock:    clock,
		duration: DefaultDuration,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FailNext makes the next construction fail with err.
func (f *Factory) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// NewPlayer implements core.Factory.
func (f *Factory) NewPlayer(ctx context.Context, cfg core.PlayerConfig) (core.Provider, error) {
	f.mu.Lock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		f.mu.Unlock()
		return nil, err
	}

	p := &Player{
		clock:      f.clock,
		cfg:        cfg,
		state:      core.ProviderUnstarted,
		duration:   f.duration,
		volume:     100,
		muted:      cfg.Vars.Mute,
		position:   float64(cfg.Vars.Start),
		rejections: f.rejections,
		failures:   make(map[string]error),
	}
	f.players = append(f.players, p)
	readyDelay, noReady := f.readyDelay, f.noReady
	f.mu.Unlock()

	if !noReady {
		f.clock.AfterFunc(readyDelay, p.FireReady)
	}
	return p, nil
}

// Players returns every player constructed so far.
func (f *Factory) Players() []*Player {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Player(nil), f.players...)
}

// Live returns the players that have not been destroyed.
func (f *Factory) Live() []*Player {
	var live []*Player
	for _, p := range f.Players() {
		if !p.Destroyed() {
			live = append(live, p)
		}
	}
	return live
}

// Player is a simulated widget. Playback position advances with the clock
// while playing.
type Player struct {
	clock clockwork.Clock
	cfg   core.PlayerConfig

	mu         sync.Mutex
	state      core.ProviderState
	position   float64
	since      time.Time
	duration   float64
	volume     int
	muted      bool
	fullscreen bool
	destroyed  bool
	rejections int
	failures   map[string]error
	commands   []string
}

// Config returns the construction parameters.
func (p *Player) Config() core.PlayerConfig {
	return p.cfg
}

// Commands returns the command log.
func (p *Player) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

// Destroyed reports whether Destroy was called.
func (p *Player) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// Fail makes the next call of the named command (play, pause, seek, volume,
// mute, unmute, fullscreen, destroy) return err.
func (p *Player) Fail(command string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[command] = err
}

// FireReady invokes onReady. Like the real widget's queued callbacks, it runs
// even after the player was destroyed.
func (p *Player) FireReady() {
	if fn := p.cfg.Events.OnReady; fn != nil {
		fn()
	}
}

// FireError invokes onError with a widget error code.
func (p *Player) FireError(code int) {
	if fn := p.cfg.Events.OnError; fn != nil {
		fn(code)
	}
}

// Stop simulates the playback being halted from outside the controller.
func (p *Player) Stop() {
	p.mu.Lock()
	p.freezeLocked()
	p.state = core.ProviderPaused
	p.mu.Unlock()

	p.emit(core.ProviderPaused)
}

func (p *Player) emit(s core.ProviderState) {
	if fn := p.cfg.Events.OnStateChange; fn != nil {
		fn(s)
	}
}

// begin logs a command and reports whether it may proceed.
func (p *Player) begin(command string) error {
	p.commands = append(p.commands, command)
	if p.destroyed {
		return ErrDestroyed
	}
	verb, _, _ := strings.Cut(command, " ")
	if err, ok := p.failures[verb]; ok {
		delete(p.failures, verb)
		return err
	}
	return nil
}

func (p *Player) positionLocked() float64 {
	if p.state != core.ProviderPlaying {
		return p.position
	}
	pos := p.position + p.clock.Since(p.since).Seconds()
	if pos > p.duration {
		pos = p.duration
	}
	return pos
}

func (p *Player) freezeLocked() {
	p.position = p.positionLocked()
	p.since = p.clock.Now()
}

// checkEndedLocked reports whether playback just ran off the end.
func (p *Player) checkEndedLocked() bool {
	if p.state == core.ProviderPlaying && p.positionLocked() >= p.duration {
		p.position = p.duration
		p.state = core.ProviderEnded
		return true
	}
	return false
}

func (p *Player) PlayVideo() error {
	p.mu.Lock()
	if err := p.begin("play"); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.rejections > 0 {
		p.rejections--
		p.mu.Unlock()
		return nil
	}
	if p.state == core.ProviderEnded {
		p.position = 0
	}
	p.since = p.clock.Now()
	p.state = core.ProviderPlaying
	p.mu.Unlock()

	p.emit(core.ProviderPlaying)
	return nil
}

func (p *Player) PauseVideo() error {
	p.mu.Lock()
	if err := p.begin("pause"); err != nil {
		p.mu.Unlock()
		return err
	}
	p.freezeLocked()
	p.state = core.ProviderPaused
	p.mu.Unlock()

	p.emit(core.ProviderPaused)
	return nil
}

func (p *Player) SeekTo(seconds float64, allowSeekAhead bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(fmt.Sprintf("seek %g", seconds)); err != nil {
		return err
	}
	p.position = seconds
	p.since = p.clock.Now()
	if p.state == core.ProviderEnded && seconds < p.duration {
		p.state = core.ProviderPaused
	}
	return nil
}

func (p *Player) SetVolume(volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(fmt.Sprintf("volume %d", volume)); err != nil {
		return err
	}
	p.volume = volume
	return nil
}

func (p *Player) Mute() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("mute"); err != nil {
		return err
	}
	p.muted = true
	return nil
}

func (p *Player) UnMute() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("unmute"); err != nil {
		return err
	}
	p.muted = false
	return nil
}

// SetFullscreen implements core.Fullscreener.
func (p *Player) SetFullscreen(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(fmt.Sprintf("fullscreen %t", on)); err != nil {
		return err
	}
	p.fullscreen = on
	return nil
}

func (p *Player) CurrentTime() (float64, error) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return 0, ErrDestroyed
	}
	ended := p.checkEndedLocked()
	pos := p.positionLocked()
	p.mu.Unlock()

	if ended {
		p.emit(core.ProviderEnded)
	}
	return pos, nil
}

func (p *Player) Duration() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return 0, ErrDestroyed
	}
	return p.duration, nil
}

func (p *Player) Volume() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return 0, ErrDestroyed
	}
	return p.volume, nil
}

func (p *Player) IsMuted() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return false, ErrDestroyed
	}
	return p.muted, nil
}

func (p *Player) PlayerState() (core.ProviderState, error) {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return core.ProviderUnstarted, ErrDestroyed
	}
	ended := p.checkEndedLocked()
	s := p.state
	p.mu.Unlock()

	if ended {
		p.emit(core.ProviderEnded)
	}
	return s, nil
}

func (p *Player) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin("destroy"); err != nil {
		return err
	}
	p.destroyed = true
	return nil
}
