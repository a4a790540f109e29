package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessro/reel/internal/core"
	rerrors "github.com/tessro/reel/internal/errors"
	"github.com/tessro/reel/internal/layout"
	"github.com/tessro/reel/internal/loader"
	"github.com/tessro/reel/internal/provider/sim"
)

const video = "dQw4w9WgXcQ"

var sized = core.Dimensions{Width: 640, Height: 360}

type rig struct {
	clock   clockwork.FakeClock
	script  *sim.Script
	host    *sim.Host
	factory *sim.Factory
	loader  *loader.Loader
	prober  *layout.Prober
	log     *logrus.Entry
}

func newRig(opts ...sim.FactoryOption) *rig {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	log := logrus.NewEntry(logger)

	clock := clockwork.NewFakeClock()
	script := sim.NewScript(clock, 50*time.Millisecond)
	host := sim.NewHost(clock)

	return &rig{
		clock:   clock,
		script:  script,
		host:    host,
		factory: sim.NewFactory(clock, opts...),
		loader:  loader.New(script, loader.WithClock(clock), loader.WithLogger(log)),
		prober:  layout.NewProber(host, layout.WithClock(clock), layout.WithLogger(log)),
		log:     log,
	}
}

func (r *rig) controller(containerID string) *Controller {
	return New(video, containerID, r.factory, r.loader, r.prober, WithClock(r.clock), WithLogger(r.log))
}

// pumpUntil advances the fake clock in small steps until cond holds.
func (r *rig) pumpUntil(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		r.clock.Advance(10 * time.Millisecond)
		return false
	}, 5*time.Second, time.Millisecond)
}

// pumpFor advances the fake clock by d in small steps.
func (r *rig) pumpFor(d time.Duration) {
	for step := time.Duration(0); step < d; step += 10 * time.Millisecond {
		r.clock.Advance(10 * time.Millisecond)
		time.Sleep(200 * time.Microsecond)
	}
}

// run calls fn in the background and pumps the clock until it returns.
func (r *rig) run(t *testing.T, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	var err error
	r.pumpUntil(t, func() bool {
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	})
	return err
}

func (r *rig) ready(t *testing.T, containerID string, opts InitOptions) *Controller {
	t.Helper()
	if _, ok := r.host.Container(containerID); !ok {
		r.host.Mount(containerID, sized, true)
	}
	c := r.controller(containerID)
	require.NoError(t, r.run(t, func() error {
		return c.Initialize(context.Background(), opts)
	}))
	return c
}

func (r *rig) provider(t *testing.T, c *Controller) *sim.Player {
	t.Helper()
	for _, p := range r.factory.Players() {
		if p.Config().ContainerID == c.ContainerID() {
			return p
		}
	}
	t.Fatalf("no provider for container %q", c.ContainerID())
	return nil
}

func states(ch <-chan core.Snapshot) []core.State {
	var out []core.State
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return out
			}
			if len(out) == 0 || out[len(out)-1] != snap.State {
				out = append(out, snap.State)
			}
		default:
			return out
		}
	}
}

func TestInitializeReachesReady(t *testing.T) {
	r := newRig()
	r.host.Mount("c1", sized, true)
	c := r.controller("c1")

	start := r.clock.Now()
	err := r.run(t, func() error {
		return c.Initialize(context.Background(), InitOptions{})
	})
	require.NoError(t, err)

	assert.Equal(t, core.StateReady, c.State())
	assert.Less(t, r.clock.Since(start), 5*time.Second)
	assert.Len(t, r.factory.Live(), 1)

	cfg := r.provider(t, c).Config()
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
	assert.Equal(t, video, cfg.VideoID)
	assert.Equal(t, int64(1), r.loader.Requests())

	r.pumpUntil(t, func() bool { return c.Snapshot().Duration == sim.DefaultDuration })
}

func TestInitializeTwiceIsNoop(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})

	require.NoError(t, c.Initialize(context.Background(), InitOptions{}))
	assert.Len(t, r.factory.Players(), 1)
	assert.Equal(t, core.StateReady, c.State())
}

func TestSeekClamps(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})
	r.pumpUntil(t, func() bool { return c.Snapshot().Duration == 120 })
	p := r.provider(t, c)

	require.NoError(t, c.SeekTo(-5))
	assert.Equal(t, "seek 0", last(p.Commands()))
	assert.Equal(t, 0.0, c.Snapshot().CurrentTime)

	require.NoError(t, c.SeekTo(200))
	assert.Equal(t, "seek 120", last(p.Commands()))
	assert.Equal(t, 120.0, c.Snapshot().CurrentTime)
}

func TestSeekWithoutDurationOnlyClampsLowerBound(t *testing.T) {
	r := newRig(sim.WithDuration(0))
	c := r.ready(t, "c1", InitOptions{})
	p := r.provider(t, c)
	r.pumpFor(300 * time.Millisecond)
	require.Zero(t, c.Snapshot().Duration)

	require.NoError(t, c.SeekTo(500))
	assert.Equal(t, "seek 500", last(p.Commands()))
	require.NoError(t, c.SeekTo(-1))
	assert.Equal(t, "seek 0", last(p.Commands()))
}

func TestSetVolumeUnmutes(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{Muted: true})
	require.True(t, c.Snapshot().Muted)

	require.NoError(t, c.SetVolume(30))

	snap := c.Snapshot()
	assert.False(t, snap.Muted)
	assert.Equal(t, 30, snap.Volume)
	assert.Equal(t, []string{"volume 30", "unmute"}, r.provider(t, c).Commands())
}

func TestSetVolumeClamps(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})

	require.NoError(t, c.SetVolume(150))
	assert.Equal(t, 100, c.Snapshot().Volume)
	require.NoError(t, c.SetVolume(-10))
	assert.Equal(t, 0, c.Snapshot().Volume)
	require.NoError(t, c.StepVolume(5))
	assert.Equal(t, 5, c.Snapshot().Volume)
}

func TestSetVolumeZeroKeepsMute(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{Muted: true})

	require.NoError(t, c.SetVolume(0))
	assert.True(t, c.Snapshot().Muted)
	assert.Equal(t, []string{"volume 0"}, r.provider(t, c).Commands())
}

func TestToggleMuteTwice(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})
	require.NoError(t, c.SetVolume(40))
	before := c.Snapshot()

	require.NoError(t, c.ToggleMute())
	mid := c.Snapshot()
	assert.NotEqual(t, before.Muted, mid.Muted)
	assert.Equal(t, 40, mid.Volume)

	require.NoError(t, c.ToggleMute())
	after := c.Snapshot()
	assert.Equal(t, before.Muted, after.Muted)
	assert.Equal(t, 40, after.Volume)
}

func TestInstancesAreIsolated(t *testing.T) {
	r := newRig()
	a := r.ready(t, "desktop", InitOptions{})
	b := r.ready(t, "mobile", InitOptions{})

	require.NoError(t, a.Play())
	require.NoError(t, b.Play())
	require.NoError(t, a.Pause())

	assert.Equal(t, core.StatePaused, a.State())
	assert.Equal(t, core.StatePlaying, b.State())

	r.pumpFor(300 * time.Millisecond)
	assert.Equal(t, core.StatePaused, a.State())
	assert.Equal(t, core.StatePlaying, b.State())
	assert.NotContains(t, r.provider(t, b).Commands(), "pause")
}

func TestCommandsAfterDestroy(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})
	p := r.provider(t, c)

	c.Destroy()
	c.Destroy()
	require.Eventually(t, p.Destroyed, time.Second, time.Millisecond)
	frozen := c.Snapshot()
	logged := len(p.Commands())

	ops := map[string]func() error{
		"play":       c.Play,
		"pause":      c.Pause,
		"seek":       func() error { return c.SeekTo(10) },
		"volume":     func() error { return c.SetVolume(30) },
		"mute":       c.ToggleMute,
		"fullscreen": c.ToggleFullscreen,
	}
	for name, op := range ops {
		assert.ErrorIs(t, op(), rerrors.ErrDestroyed, name)
	}
	assert.ErrorIs(t, c.Initialize(context.Background(), InitOptions{}), rerrors.ErrDestroyed)

	r.pumpFor(500 * time.Millisecond)
	assert.Equal(t, frozen, c.Snapshot())
	assert.Equal(t, core.StateDestroyed, c.State())
	assert.Equal(t, logged, len(p.Commands()))
	assert.Empty(t, r.factory.Live())
}

func TestCommandsBeforeReady(t *testing.T) {
	r := newRig()
	c := r.controller("c1")

	assert.ErrorIs(t, c.Play(), rerrors.ErrNotReady)
	assert.ErrorIs(t, c.SetVolume(10), rerrors.ErrNotReady)
	assert.Equal(t, core.StateUninitialized, c.State())
}

func TestConcurrentInitializeLoadsScriptOnce(t *testing.T) {
	r := newRig()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	controllers := make([]*Controller, 5)
	for i := range controllers {
		id := fmt.Sprintf("c%d", i+1)
		r.host.Mount(id, sized, true)
		controllers[i] = r.controller(id)
	}

	done := make(chan struct{})
	for _, c := range controllers {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			errs <- c.Initialize(context.Background(), InitOptions{})
		}(c)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	r.pumpUntil(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	for _, c := range controllers {
		assert.Equal(t, core.StateReady, c.State())
	}
	assert.Equal(t, 1, r.script.Injects())
	assert.Equal(t, int64(1), r.loader.Requests())
}

// Scenario: autoplay with the script already loaded and a container that is
// laid out 200ms after the player asks for it.
func TestAutoplayScenario(t *testing.T) {
	r := newRig()
	r.script.Preload()
	container := r.host.Mount("c1", core.Dimensions{}, true)
	r.clock.AfterFunc(200*time.Millisecond, func() { container.Resize(sized) })

	c := r.controller("c1")
	updates, cancel := c.Subscribe(512)
	defer cancel()

	err := r.run(t, func() error {
		return c.Initialize(context.Background(), InitOptions{Autoplay: true, Muted: true})
	})
	require.NoError(t, err)
	r.pumpUntil(t, func() bool { return c.State() == core.StatePlaying })

	assert.Equal(t, []core.State{
		core.StateUninitialized,
		core.StateAwaitingContainer,
		core.StateConstructing,
		core.StateReady,
		core.StatePlaying,
	}, states(updates))

	p := r.provider(t, c)
	assert.Equal(t, []string{"mute", "play"}, p.Commands())
	assert.True(t, c.Snapshot().Muted)
	assert.Equal(t, 0, r.script.Injects())

	// The verification pass finds playback running and changes nothing.
	r.pumpFor(1500 * time.Millisecond)
	assert.Equal(t, core.StatePlaying, c.State())
	assert.Equal(t, []string{"mute", "play"}, p.Commands())
	assert.Nil(t, c.Snapshot().LastError)
	assert.Greater(t, c.Snapshot().CurrentTime, 0.0)
}

// Scenario: the container never gains a size.
func TestContainerSizeTimeoutScenario(t *testing.T) {
	r := newRig()
	container := r.host.Mount("c2", core.Dimensions{}, true)
	c := r.controller("c2")

	start := r.clock.Now()
	err := r.run(t, func() error {
		return c.Initialize(context.Background(), InitOptions{})
	})
	elapsed := r.clock.Since(start)

	require.Error(t, err)
	assert.Equal(t, rerrors.KindContainerSizeTimeout, rerrors.KindOf(err))

	snap := c.Snapshot()
	assert.Equal(t, core.StateError, snap.State)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, rerrors.KindContainerSizeTimeout, snap.LastError.Kind)
	assert.GreaterOrEqual(t, elapsed, 5*time.Second)
	assert.Less(t, elapsed, 6*time.Second)

	assert.Empty(t, r.factory.Players(), "no provider, so no polling loop")
	assert.Equal(t, 0, container.Observers())

	c.mu.Lock()
	assert.Nil(t, c.pollTicker)
	c.mu.Unlock()
}

// Scenario: destroy lands while construction waits for the widget's ready
// callback, which then arrives late.
func TestLateReadyAfterDestroyScenario(t *testing.T) {
	r := newRig(sim.WithoutReady())
	r.script.Preload()
	r.host.Mount("c1", sized, true)
	c := r.controller("c1")

	initErr := make(chan error, 1)
	go func() {
		initErr <- c.Initialize(context.Background(), InitOptions{})
	}()
	r.pumpUntil(t, func() bool {
		return c.State() == core.StateConstructing && len(r.factory.Players()) == 1
	})
	p := r.factory.Players()[0]

	assert.ErrorIs(t, c.Play(), rerrors.ErrNotReady)
	r.clock.Advance(50 * time.Millisecond)

	c.Destroy()
	frozen := c.Snapshot()
	require.Equal(t, core.StateDestroyed, frozen.State)

	r.clock.Advance(200 * time.Millisecond)
	assert.NotPanics(t, p.FireReady)
	assert.NotPanics(t, func() { p.FireError(150) })

	select {
	case err := <-initErr:
		assert.ErrorIs(t, err, rerrors.ErrDestroyed)
	case <-time.After(time.Second):
		t.Fatal("Initialize did not return after Destroy")
	}

	r.pumpFor(500 * time.Millisecond)
	assert.Equal(t, frozen, c.Snapshot())
	require.Eventually(t, p.Destroyed, time.Second, time.Millisecond)
}

func TestAutoplayRetrySucceeds(t *testing.T) {
	r := newRig(sim.WithAutoplayRejections(1))
	c := r.ready(t, "c1", InitOptions{Autoplay: true})
	p := r.provider(t, c)

	r.pumpUntil(t, func() bool {
		return len(p.Commands()) == 4 && c.State() == core.StatePlaying
	})
	assert.Equal(t, []string{"mute", "play", "mute", "play"}, p.Commands())

	r.pumpFor(1500 * time.Millisecond)
	assert.Equal(t, core.StatePlaying, c.State())
	assert.Nil(t, c.Snapshot().LastError)
}

func TestAutoplayRejectedTwiceFails(t *testing.T) {
	r := newRig(sim.WithAutoplayRejections(2))
	c := r.ready(t, "c1", InitOptions{Autoplay: true})
	p := r.provider(t, c)

	r.pumpUntil(t, func() bool { return c.State() == core.StateError })

	snap := c.Snapshot()
	require.NotNil(t, snap.LastError)
	assert.Equal(t, rerrors.KindPlayback, snap.LastError.Kind)

	require.Eventually(t, p.Destroyed, time.Second, time.Millisecond)
	assert.Equal(t, []string{"mute", "play", "mute", "play", "destroy"}, p.Commands())
	assert.ErrorIs(t, c.Play(), rerrors.ErrFailed)
}

func TestAutoplayCheckSkippedAfterPause(t *testing.T) {
	r := newRig(sim.WithAutoplayRejections(1))
	c := r.ready(t, "c1", InitOptions{Autoplay: true})

	require.NoError(t, c.Pause())
	r.pumpFor(2500 * time.Millisecond)

	assert.Equal(t, core.StatePaused, c.State())
	assert.Nil(t, c.Snapshot().LastError)
	assert.Equal(t, []string{"mute", "play", "pause"}, r.provider(t, c).Commands())
}

func TestProviderRuntimeError(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})
	other := r.ready(t, "c2", InitOptions{})
	p := r.provider(t, c)

	p.FireError(150)

	snap := c.Snapshot()
	assert.Equal(t, core.StateError, snap.State)
	require.NotNil(t, snap.LastError)
	assert.Equal(t, rerrors.KindProviderRuntime, snap.LastError.Kind)
	assert.Equal(t, 150, snap.LastError.Code)
	assert.Equal(t, core.StateReady, other.State())

	require.Eventually(t, p.Destroyed, time.Second, time.Millisecond)
	assert.ErrorIs(t, c.SeekTo(1), rerrors.ErrFailed)
	assert.Equal(t, snap.LastError, c.Initialize(context.Background(), InitOptions{}))
}

func TestTransientCommandFailure(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})
	r.provider(t, c).Fail("seek", errors.New("busy"))

	err := c.SeekTo(10)
	require.Error(t, err)
	assert.Equal(t, rerrors.KindPlayback, rerrors.KindOf(err))
	assert.Equal(t, core.StateReady, c.State())
	assert.Nil(t, c.Snapshot().LastError)

	require.NoError(t, c.SeekTo(10))
}

func TestScriptLoadFailure(t *testing.T) {
	r := newRig()
	r.script.Block()
	r.host.Mount("c1", sized, true)
	c := r.controller("c1")

	err := r.run(t, func() error {
		return c.Initialize(context.Background(), InitOptions{})
	})
	assert.ErrorIs(t, err, rerrors.ErrScriptLoad)
	assert.Equal(t, core.StateError, c.State())
	assert.Empty(t, r.factory.Players())
}

func TestConstructionFailure(t *testing.T) {
	r := newRig()
	r.factory.FailNext(errors.New("YT.Player is not a constructor"))
	r.host.Mount("c1", sized, true)
	c := r.controller("c1")

	err := r.run(t, func() error {
		return c.Initialize(context.Background(), InitOptions{})
	})
	assert.Equal(t, rerrors.KindInitialization, rerrors.KindOf(err))
	assert.Equal(t, core.StateError, c.State())
}

func TestReadyTimeout(t *testing.T) {
	r := newRig(sim.WithoutReady())
	r.host.Mount("c1", sized, true)
	c := r.controller("c1")

	err := r.run(t, func() error {
		return c.Initialize(context.Background(), InitOptions{})
	})
	assert.Equal(t, rerrors.KindInitialization, rerrors.KindOf(err))
	assert.Equal(t, core.StateError, c.State())

	p := r.factory.Players()[0]
	require.Eventually(t, p.Destroyed, time.Second, time.Millisecond)
}

func TestEndedAndReplay(t *testing.T) {
	r := newRig(sim.WithDuration(1))
	c := r.ready(t, "c1", InitOptions{})

	require.NoError(t, c.Play())
	r.pumpUntil(t, func() bool { return c.State() == core.StateEnded })
	assert.Equal(t, 1.0, c.Snapshot().CurrentTime)

	require.NoError(t, c.Play())
	assert.Equal(t, core.StatePlaying, c.State())
	assert.Equal(t, 0.0, c.Snapshot().CurrentTime)
}

func TestLoopReplaysOnEnd(t *testing.T) {
	r := newRig(sim.WithDuration(1))
	c := r.ready(t, "c1", InitOptions{Loop: true})
	p := r.provider(t, c)
	assert.True(t, p.Config().Vars.Loop)

	require.NoError(t, c.Play())
	r.pumpUntil(t, func() bool {
		for _, cmd := range p.Commands() {
			if cmd == "seek 0" {
				return true
			}
		}
		return false
	})
	r.pumpUntil(t, func() bool { return c.State() == core.StatePlaying })
}

func TestToggleFullscreen(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})

	require.NoError(t, c.ToggleFullscreen())
	assert.True(t, c.Snapshot().Fullscreen)
	require.NoError(t, c.ToggleFullscreen())
	assert.False(t, c.Snapshot().Fullscreen)
}

func TestSubscribeClosedOnDestroy(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})
	updates, _ := c.Subscribe(4)

	c.Destroy()
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, time.Millisecond)
}

func last(cmds []string) string {
	if len(cmds) == 0 {
		return ""
	}
	return cmds[len(cmds)-1]
}

// stallingFactory hands out players whose PlayVideo blocks until released.
type stallingFactory struct {
	*sim.Factory
	entered chan struct{}
	release chan struct{}
}

func (f *stallingFactory) NewPlayer(ctx context.Context, cfg core.PlayerConfig) (core.Provider, error) {
	p, err := f.Factory.NewPlayer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &stallingPlayer{Provider: p, f: f}, nil
}

type stallingPlayer struct {
	core.Provider
	f *stallingFactory
}

func (p *stallingPlayer) PlayVideo() error {
	p.f.entered <- struct{}{}
	<-p.f.release
	return p.Provider.PlayVideo()
}

func TestDestroyDoesNotWaitForStalledCommand(t *testing.T) {
	r := newRig()
	r.host.Mount("c1", sized, true)
	f := &stallingFactory{Factory: r.factory, entered: make(chan struct{}, 1), release: make(chan struct{})}
	c := New(video, "c1", f, r.loader, r.prober, WithClock(r.clock), WithLogger(r.log))
	require.NoError(t, r.run(t, func() error {
		return c.Initialize(context.Background(), InitOptions{})
	}))
	p := r.factory.Players()[0]

	played := make(chan error, 1)
	go func() { played <- c.Play() }()
	<-f.entered

	destroyed := make(chan struct{})
	go func() {
		c.Destroy()
		close(destroyed)
	}()
	select {
	case <-destroyed:
	case <-time.After(time.Second):
		t.Fatal("Destroy waited for the stalled command")
	}
	assert.Equal(t, core.StateDestroyed, c.State())
	assert.False(t, p.Destroyed(), "provider is released after the command returns")

	close(f.release)
	require.NoError(t, <-played)
	require.Eventually(t, p.Destroyed, time.Second, time.Millisecond)
	assert.Equal(t, core.StateDestroyed, c.State())
}

func TestStartupStatesDoNotUndoPlaying(t *testing.T) {
	r := newRig()
	c := r.ready(t, "c1", InitOptions{})
	require.NoError(t, c.Play())

	ev := r.provider(t, c).Config().Events
	ev.OnStateChange(core.ProviderUnstarted)
	ev.OnStateChange(core.ProviderCued)
	assert.Equal(t, core.StatePlaying, c.State())

	ev.OnStateChange(core.ProviderPaused)
	assert.Equal(t, core.StatePaused, c.State())
}
