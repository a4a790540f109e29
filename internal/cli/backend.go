package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/tessro/reel/internal/config"
	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/layout"
	"github.com/tessro/reel/internal/loader"
	"github.com/tessro/reel/internal/player"
	"github.com/tessro/reel/internal/provider/sim"
	"github.com/tessro/reel/internal/provider/youtube"
	"github.com/tessro/reel/internal/registry"
)

// simScriptDelay is how long the simulated API script takes to arrive.
const simScriptDelay = 300 * time.Millisecond

// backend is a provider wired up with its loader and prober.
type backend struct {
	factory core.Factory
	loader  *loader.Loader
	prober  *layout.Prober
	close   func() error
}

// openBackend starts the configured provider and mounts one container per id.
func openBackend(ctx context.Context, c *config.Config, containers []string, log *logrus.Entry) (*backend, error) {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	size := core.Dimensions{Width: float64(c.Provider.Width), Height: float64(c.Provider.Height)}

	switch c.Provider.Name {
	case "sim":
		clock := clockwork.NewRealClock()
		script := sim.NewScript(clock, simScriptDelay)
		host := sim.NewHost(clock)
		for _, id := range containers {
			host.Mount(id, size, true)
		}
		return &backend{
			factory: sim.NewFactory(clock),
			loader:  loader.New(script, loader.WithTimeout(ms(c.Player.ScriptTimeout)), loader.WithLogger(log)),
			prober:  layout.NewProber(host, layout.WithLogger(log)),
			close:   func() error { return nil },
		}, nil

	case "youtube":
		session, err := youtube.Launch(ctx, youtube.Options{
			BrowserBin: c.Provider.BrowserBin,
			Headless:   c.Provider.Headless,
			Log:        log,
		})
		if err != nil {
			return nil, err
		}
		for _, id := range containers {
			if err := session.Mount(id, c.Provider.Width, c.Provider.Height); err != nil {
				_ = session.Close()
				return nil, fmt.Errorf("mount container %q: %w", id, err)
			}
		}
		return &backend{
			factory: session.Factory(),
			loader:  loader.New(session.Script(), loader.WithTimeout(ms(c.Player.ScriptTimeout)), loader.WithLogger(log)),
			prober:  layout.NewProber(session.Host(), layout.WithLogger(log)),
			close:   session.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
}

// manager builds the instance registry on top of the backend.
func (b *backend) manager(c *config.Config, log *logrus.Entry) *registry.Manager {
	return registry.New(b.factory, b.loader, b.prober, log, player.WithTiming(timing(c.Player)))
}

// timing converts the millisecond config into controller timing.
func timing(p config.PlayerConfig) player.Timing {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return player.Timing{
		PollInterval:        ms(p.PollInterval),
		ContainerTimeout:    ms(p.ContainerTimeout),
		ReadyTimeout:        ms(p.ReadyTimeout),
		AutoplayVerifyDelay: ms(p.AutoplayVerifyDelay),
		AutoplayRetries:     p.AutoplayRetries,
	}
}

// initOptions are the per-instance options from config.
func initOptions(p config.PlayerConfig) player.InitOptions {
	return player.InitOptions{
		Autoplay: p.Autoplay,
		Muted:    p.Muted,
		Loop:     p.Loop,
		Controls: true,
	}
}
