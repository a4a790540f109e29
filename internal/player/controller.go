// Package player drives one embedded widget player through its lifecycle and
// exposes its playback controls.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/tessro/reel/internal/core"
	rerrors "github.com/tessro/reel/internal/errors"
	"github.com/tessro/reel/internal/layout"
	"github.com/tessro/reel/internal/loader"
)

// Timing holds the controller's intervals and budgets.
type Timing struct {
	PollInterval        time.Duration
	ContainerTimeout    time.Duration
	ReadyTimeout        time.Duration
	AutoplayVerifyDelay time.Duration
	AutoplayRetries     int
}

// DefaultTiming returns the standard timing.
func DefaultTiming() Timing {
	return Timing{
		PollInterval:        100 * time.Millisecond,
		ContainerTimeout:    5 * time.Second,
		ReadyTimeout:        5 * time.Second,
		AutoplayVerifyDelay: time.Second,
		AutoplayRetries:     1,
	}
}

// InitOptions are the per-instance playback options.
type InitOptions struct {
	Autoplay bool
	Muted    bool
	Loop     bool
	Controls bool
	Start    int
}

// Controller owns one provider player for a (video, container) pair.
type Controller struct {
	id          string
	videoID     string
	containerID string

	factory core.Factory
	loader  *loader.Loader
	prober  *layout.Prober
	timing  Timing
	clock   clockwork.Clock
	log     *logrus.Entry

	// cmdMu serializes provider commands so they apply in call order.
	cmdMu sync.Mutex

	mu          sync.Mutex
	state       core.State
	currentTime float64
	duration    float64
	volume      int
	muted       bool
	fullscreen  bool
	lastErr     *rerrors.Record

	// gen is the liveness token. Every async continuation captures it and
	// does nothing once it has moved on.
	gen uint64

	provider      core.Provider
	watch         *layout.Watch
	cancelInit    context.CancelFunc
	pollTicker    clockwork.Ticker
	stopPoll      chan struct{}
	autoplayTimer clockwork.Timer
	started       bool
	autoplay      bool
	loop          bool
	userPaused    bool

	subs    map[int]chan core.Snapshot
	nextSub int
	last    core.Snapshot
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock for every timer the controller starts.
func WithClock(c clockwork.Clock) Option {
	return func(ctl *Controller) {
		ctl.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(ctl *Controller) {
		ctl.log = log
	}
}

// WithTiming overrides the default timing.
func WithTiming(t Timing) Option {
	return func(ctl *Controller) {
		ctl.timing = t
	}
}

// New creates an uninitialized controller.
func New(videoID, containerID string, factory core.Factory, ld *loader.Loader, prober *layout.Prober, opts ...Option) *Controller {
	c := &Controller{
		id:          uuid.NewString(),
		videoID:     videoID,
		containerID: containerID,
		factory:     factory,
		loader:      ld,
		prober:      prober,
		timing:      DefaultTiming(),
		clock:       clockwork.NewRealClock(),
		log:         logrus.NewEntry(logrus.StandardLogger()),
		volume:      100,
		subs:        make(map[int]chan core.Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithFields(logrus.Fields{
		"component": "player",
		"instance":  c.id[:8],
		"video":     videoID,
		"container": containerID,
	})
	c.last = c.snapshotLocked()
	return c
}

// ID returns the instance id used in logs.
func (c *Controller) ID() string { return c.id }

// VideoID returns the video this instance plays.
func (c *Controller) VideoID() string { return c.videoID }

// ContainerID returns the container this instance attaches to.
func (c *Controller) ContainerID() string { return c.containerID }

// State returns the current lifecycle state.
func (c *Controller) State() core.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() core.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() core.Snapshot {
	return core.Snapshot{
		VideoID:     c.videoID,
		ContainerID: c.containerID,
		State:       c.state,
		CurrentTime: c.currentTime,
		Duration:    c.duration,
		Volume:      c.volume,
		Muted:       c.muted,
		Fullscreen:  c.fullscreen,
		LastError:   c.lastErr,
	}
}

// Subscribe returns a channel that receives a snapshot on every change,
// starting with the current one. Slow receivers miss intermediate snapshots.
// The channel is closed by cancel or when the controller is destroyed.
func (c *Controller) Subscribe(buffer int) (<-chan core.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan core.Snapshot, buffer)

	c.mu.Lock()
	defer c.mu.Unlock()

	ch <- c.snapshotLocked()
	if c.state == core.StateDestroyed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// emitLocked publishes the snapshot if it changed.
func (c *Controller) emitLocked() {
	snap := c.snapshotLocked()
	if snap == c.last {
		return
	}
	c.last = snap
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Controller) setStateLocked(s core.State) {
	if c.state == s {
		return
	}
	c.log.WithField("from", c.state).WithField("to", s).Debug("state change")
	c.state = s
	c.emitLocked()
}

// advance moves to s if the instance is still the one that started the
// continuation holding gen.
func (c *Controller) advance(gen uint64, s core.State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state.Terminal() {
		return false
	}
	c.setStateLocked(s)
	return true
}

// Initialize loads the provider API, waits for the container and constructs
// the provider player. Calling it again while initializing or live is a
// no-op; after a failure it returns the recorded error.
func (c *Controller) Initialize(ctx context.Context, opts InitOptions) error {
	c.mu.Lock()
	switch {
	case c.state == core.StateDestroyed:
		c.mu.Unlock()
		return rerrors.ErrDestroyed
	case c.state == core.StateError:
		err := c.lastErr
		c.mu.Unlock()
		return err
	case c.state != core.StateUninitialized || c.started:
		c.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gen := c.gen
	c.started = true
	c.cancelInit = cancel
	c.autoplay = opts.Autoplay
	c.loop = opts.Loop
	c.muted = opts.Muted
	c.mu.Unlock()

	c.log.WithField("autoplay", opts.Autoplay).Info("initializing player")

	if !c.loader.Loaded() {
		if !c.advance(gen, core.StateAwaitingScript) {
			return c.staleErr()
		}
		if err := c.loader.Ensure(ctx); err != nil {
			return c.abort(ctx, gen, rerrors.KindScriptLoad, err)
		}
	}

	if !c.advance(gen, core.StateAwaitingContainer) {
		return c.staleErr()
	}
	dims, err := c.awaitContainer(ctx, gen)
	if err != nil {
		return c.abort(ctx, gen, rerrors.KindContainerNotFound, err)
	}

	if !c.advance(gen, core.StateConstructing) {
		return c.staleErr()
	}
	if err := c.construct(ctx, gen, dims, opts); err != nil {
		return c.abort(ctx, gen, rerrors.KindInitialization, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return c.staleErr()
	}
	c.cancelInit = nil
	c.setStateLocked(core.StateReady)
	c.startPollLocked(gen)
	c.mu.Unlock()

	c.log.WithField("width", dims.Width).WithField("height", dims.Height).Info("player ready")

	if opts.Autoplay {
		c.startAutoplay(gen)
	}
	return nil
}

func (c *Controller) awaitContainer(ctx context.Context, gen uint64) (core.Dimensions, error) {
	w := c.prober.Watch(c.containerID)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		w.Close()
		return core.Dimensions{}, rerrors.ErrDestroyed
	}
	c.watch = w
	c.mu.Unlock()

	dims, err := w.Wait(ctx, c.timing.ContainerTimeout)
	w.Close()

	c.mu.Lock()
	if c.watch == w {
		c.watch = nil
	}
	c.mu.Unlock()
	return dims, err
}

func (c *Controller) construct(ctx context.Context, gen uint64, dims core.Dimensions, opts InitOptions) error {
	ready := make(chan struct{})
	var readyOnce sync.Once

	cfg := core.PlayerConfig{
		VideoID:     c.videoID,
		ContainerID: c.containerID,
		Width:       int(dims.Width),
		Height:      int(dims.Height),
		Vars: core.PlayerVars{
			Autoplay:    opts.Autoplay,
			Mute:        opts.Muted || opts.Autoplay,
			Controls:    opts.Controls,
			Loop:        opts.Loop,
			PlaysInline: true,
			Start:       opts.Start,
		},
		Events: core.Events{
			OnReady: func() {
				c.mu.Lock()
				defer c.mu.Unlock()
				if gen != c.gen || c.state != core.StateConstructing {
					return
				}
				readyOnce.Do(func() { close(ready) })
			},
			OnStateChange: func(s core.ProviderState) {
				c.reconcile(gen, s)
			},
			OnError: func(code int) {
				c.providerError(gen, code)
			},
		},
	}

	prov, err := c.factory.NewPlayer(ctx, cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.release(prov)
		return rerrors.ErrDestroyed
	}
	c.provider = prov
	c.mu.Unlock()

	timer := c.clock.NewTimer(c.timing.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-ready:
	case <-timer.Chan():
		return fmt.Errorf("provider never signalled ready within %s", c.timing.ReadyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()
	vol, verr := prov.Volume()
	muted, merr := prov.IsMuted()
	dur, derr := prov.Duration()

	c.mu.Lock()
	defer c.mu.Unlock()
	if verr == nil {
		c.volume = vol
	}
	if merr == nil {
		c.muted = muted
	}
	if derr == nil && dur > 0 {
		c.duration = dur
	}
	return nil
}

// abort records an initialization failure unless the instance was torn down
// in the meantime, in which case nothing changes.
func (c *Controller) abort(ctx context.Context, gen uint64, kind rerrors.Kind, err error) error {
	c.mu.Lock()
	stale := gen != c.gen || c.state.Terminal()
	stage := c.state.String()
	c.mu.Unlock()
	if stale {
		return c.staleErr()
	}

	var rec *rerrors.Record
	switch {
	case errors.As(err, &rec):
	case ctx.Err() != nil:
		rec = rerrors.New(rerrors.KindInitialization, stage, err)
	default:
		rec = rerrors.New(kind, stage, err)
	}
	c.fail(gen, rec)
	return rec
}

func (c *Controller) staleErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == core.StateError && c.lastErr != nil {
		return c.lastErr
	}
	return rerrors.ErrDestroyed
}

// fail moves the instance to Error and tears down everything it started.
func (c *Controller) fail(gen uint64, rec *rerrors.Record) bool {
	c.mu.Lock()
	if gen != c.gen || c.state.Terminal() {
		c.mu.Unlock()
		return false
	}
	if rec.At.IsZero() {
		rec.At = c.clock.Now()
	}
	c.lastErr = rec
	c.gen++
	c.setStateLocked(core.StateError)
	prov, watch := c.teardownLocked()
	c.mu.Unlock()

	c.log.WithError(rec).Error("player failed")

	if watch != nil {
		watch.Close()
	}
	if prov != nil {
		// Failures can be reported from inside a provider callback that runs
		// while a command holds cmdMu.
		go func() {
			c.cmdMu.Lock()
			defer c.cmdMu.Unlock()
			c.release(prov)
		}()
	}
	return true
}

// teardownLocked detaches everything the instance started and returns what
// must be released outside the lock.
func (c *Controller) teardownLocked() (core.Provider, *layout.Watch) {
	if c.cancelInit != nil {
		c.cancelInit()
		c.cancelInit = nil
	}
	c.stopPollLocked()
	if c.autoplayTimer != nil {
		c.autoplayTimer.Stop()
		c.autoplayTimer = nil
	}

	prov, watch := c.provider, c.watch
	c.provider, c.watch = nil, nil
	return prov, watch
}

func (c *Controller) release(prov core.Provider) {
	if err := prov.Destroy(); err != nil {
		c.log.WithError(err).Debug("provider destroy failed")
	}
}

// Destroy tears the instance down. It is idempotent; afterwards every other
// operation is a no-op that returns ErrDestroyed. It never waits for a
// provider call in flight: the provider is released once that call returns.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if c.state == core.StateDestroyed {
		c.mu.Unlock()
		return
	}
	c.gen++
	prov, watch := c.teardownLocked()
	if c.state != core.StateError {
		c.setStateLocked(core.StateDestroyed)
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	if watch != nil {
		watch.Close()
	}
	if prov != nil {
		if c.cmdMu.TryLock() {
			c.release(prov)
			c.cmdMu.Unlock()
		} else {
			go func() {
				c.cmdMu.Lock()
				defer c.cmdMu.Unlock()
				c.release(prov)
			}()
		}
	}
	c.log.Info("player destroyed")
}

// providerError records an asynchronous widget error.
func (c *Controller) providerError(gen uint64, code int) {
	c.mu.Lock()
	stage := c.state.String()
	c.mu.Unlock()

	rec := rerrors.New(rerrors.KindProviderRuntime, stage, errors.New(rerrors.DescribeProviderCode(code)))
	rec.Code = code
	c.fail(gen, rec)
}

// reconcile mirrors a provider-reported play state into the lifecycle state.
func (c *Controller) reconcile(gen uint64, ps core.ProviderState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.reconcileLocked(gen, ps)
}

func (c *Controller) reconcileLocked(gen uint64, ps core.ProviderState) {
	if !c.state.Commandable() {
		return
	}

	var next core.State
	switch ps {
	case core.ProviderPlaying:
		next = core.StatePlaying
	case core.ProviderPaused:
		next = core.StatePaused
	case core.ProviderEnded:
		next = core.StateEnded
	case core.ProviderUnstarted, core.ProviderCued:
		// Startup noise. It never moves an instance back to Ready.
		return
	default:
		return
	}
	if next == c.state {
		return
	}

	if next == core.StateEnded && c.duration > 0 {
		c.currentTime = c.duration
	}
	c.setStateLocked(next)
	if next == core.StateEnded && c.loop {
		go c.replay(gen)
	}
}

func (c *Controller) replay(gen uint64) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	if gen != c.gen || c.state != core.StateEnded {
		c.mu.Unlock()
		return
	}
	prov := c.provider
	c.mu.Unlock()

	if err := prov.SeekTo(0, true); err != nil {
		c.log.WithError(err).Warn("loop seek failed")
		return
	}
	if err := prov.PlayVideo(); err != nil {
		c.log.WithError(err).Warn("loop play failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.currentTime = 0
	c.setStateLocked(core.StatePlaying)
}

// acquire returns the live provider for a command. The caller holds cmdMu.
func (c *Controller) acquire() (core.Provider, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == core.StateDestroyed:
		return nil, 0, rerrors.ErrDestroyed
	case c.state == core.StateError:
		return nil, 0, rerrors.ErrFailed
	case !c.state.Commandable() || c.provider == nil:
		return nil, 0, rerrors.ErrNotReady
	}
	return c.provider, c.gen, nil
}

// commit applies fn if the instance is still live.
func (c *Controller) commit(gen uint64, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	fn()
	c.emitLocked()
}

// rejected logs a transient command failure. The instance stays as it was.
func (c *Controller) rejected(op string, err error) error {
	c.log.WithError(err).WithField("op", op).Warn("provider rejected command")
	c.mu.Lock()
	stage := c.state.String()
	c.mu.Unlock()
	return rerrors.New(rerrors.KindPlayback, stage, fmt.Errorf("%s: %w", op, err))
}

// Play starts or resumes playback. From Ended it replays.
func (c *Controller) Play() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	prov, gen, err := c.acquire()
	if err != nil {
		return err
	}
	// The provider may report Playing before PlayVideo returns.
	replay := c.State() == core.StateEnded
	if err := prov.PlayVideo(); err != nil {
		return c.rejected("play", err)
	}
	c.commit(gen, func() {
		c.userPaused = false
		if replay {
			c.currentTime = 0
		}
		c.setStateLocked(core.StatePlaying)
	})
	return nil
}

// Pause pauses playback.
func (c *Controller) Pause() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	prov, gen, err := c.acquire()
	if err != nil {
		return err
	}
	if err := prov.PauseVideo(); err != nil {
		return c.rejected("pause", err)
	}
	c.commit(gen, func() {
		c.userPaused = true
		if c.state != core.StateEnded {
			c.setStateLocked(core.StatePaused)
		}
	})
	return nil
}

// TogglePlay pauses a playing instance and plays any other.
func (c *Controller) TogglePlay() error {
	if c.State() == core.StatePlaying {
		return c.Pause()
	}
	return c.Play()
}

// SeekTo seeks to seconds, clamped to [0, duration]. The upper bound is
// only applied once the duration is known.
func (c *Controller) SeekTo(seconds float64) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	prov, gen, err := c.acquire()
	if err != nil {
		return err
	}

	c.mu.Lock()
	duration := c.duration
	c.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	if duration > 0 && seconds > duration {
		seconds = duration
	}

	if err := prov.SeekTo(seconds, true); err != nil {
		return c.rejected("seek", err)
	}
	c.commit(gen, func() {
		if c.state.Trusted() {
			c.currentTime = seconds
		}
	})
	return nil
}

// SeekBy seeks relative to the current position.
func (c *Controller) SeekBy(delta float64) error {
	return c.SeekTo(c.Snapshot().CurrentTime + delta)
}

// SeekFraction seeks to a fraction of the duration.
func (c *Controller) SeekFraction(f float64) error {
	snap := c.Snapshot()
	if snap.Duration <= 0 {
		return nil
	}
	return c.SeekTo(lo.Clamp(f, 0, 1) * snap.Duration)
}

// SetVolume sets the volume, clamped to [0, 100]. A positive volume while
// muted also unmutes.
func (c *Controller) SetVolume(v int) error {
	v = lo.Clamp(v, 0, 100)

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	prov, gen, err := c.acquire()
	if err != nil {
		return err
	}

	c.mu.Lock()
	unmute := v > 0 && c.muted
	c.mu.Unlock()

	if err := prov.SetVolume(v); err != nil {
		return c.rejected("volume", err)
	}
	if unmute {
		if err := prov.UnMute(); err != nil {
			c.commit(gen, func() { c.volume = v })
			return c.rejected("unmute", err)
		}
	}
	c.commit(gen, func() {
		c.volume = v
		if unmute {
			c.muted = false
		}
	})
	return nil
}

// StepVolume changes the volume by delta.
func (c *Controller) StepVolume(delta int) error {
	return c.SetVolume(c.Snapshot().Volume + delta)
}

// ToggleMute flips the mute flag. The stored volume is left alone.
func (c *Controller) ToggleMute() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	prov, gen, err := c.acquire()
	if err != nil {
		return err
	}

	c.mu.Lock()
	muted := c.muted
	c.mu.Unlock()

	if muted {
		err = prov.UnMute()
	} else {
		err = prov.Mute()
	}
	if err != nil {
		return c.rejected("mute", err)
	}
	c.commit(gen, func() { c.muted = !muted })
	return nil
}

// ToggleFullscreen flips fullscreen when the provider supports it.
func (c *Controller) ToggleFullscreen() error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	prov, gen, err := c.acquire()
	if err != nil {
		return err
	}
	fs, ok := prov.(core.Fullscreener)
	if !ok {
		return rerrors.ErrUnsupported
	}

	c.mu.Lock()
	on := !c.fullscreen
	c.mu.Unlock()

	if err := fs.SetFullscreen(on); err != nil {
		return c.rejected("fullscreen", err)
	}
	c.commit(gen, func() { c.fullscreen = on })
	return nil
}
