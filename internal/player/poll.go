package player

import (
	"github.com/jonboulle/clockwork"

	"github.com/tessro/reel/internal/core"
)

// startPollLocked starts mirroring provider state for the given generation.
func (c *Controller) startPollLocked(gen uint64) {
	c.stopPollLocked()

	ticker := c.clock.NewTicker(c.timing.PollInterval)
	stop := make(chan struct{})
	c.pollTicker = ticker
	c.stopPoll = stop

	go c.poll(gen, ticker, stop)
}

// stopPollLocked stops the ticker right away. A read already in flight
// finishes but its result is discarded by the generation check.
func (c *Controller) stopPollLocked() {
	if c.pollTicker != nil {
		c.pollTicker.Stop()
		c.pollTicker = nil
	}
	if c.stopPoll != nil {
		close(c.stopPoll)
		c.stopPoll = nil
	}
}

func (c *Controller) poll(gen uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
		}

		// A tick and a stop can be ready together.
		select {
		case <-stop:
			return
		default:
		}

		c.refresh(gen)
	}
}

type reading struct {
	time     float64
	duration float64
	volume   int
	muted    bool
	state    core.ProviderState

	timeOK, durationOK, volumeOK, mutedOK, stateOK bool
}

// refresh reads the provider once and mirrors the result.
func (c *Controller) refresh(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.provider == nil {
		c.mu.Unlock()
		return
	}
	prov := c.provider
	c.mu.Unlock()

	r := c.read(prov)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}

	if r.stateOK {
		c.reconcileLocked(gen, r.state)
	}
	if c.state.Trusted() {
		if r.timeOK {
			c.currentTime = r.time
		}
		if r.durationOK && r.duration > 0 {
			c.duration = r.duration
		}
	}
	if c.state.Commandable() {
		if r.volumeOK {
			c.volume = r.volume
		}
		if r.mutedOK {
			c.muted = r.muted
		}
	}
	c.emitLocked()
}

func (c *Controller) read(prov core.Provider) reading {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	var (
		r   reading
		err error
	)
	r.time, err = prov.CurrentTime()
	r.timeOK = err == nil
	r.duration, err = prov.Duration()
	r.durationOK = err == nil
	r.volume, err = prov.Volume()
	r.volumeOK = err == nil
	r.muted, err = prov.IsMuted()
	r.mutedOK = err == nil
	r.state, err = prov.PlayerState()
	r.stateOK = err == nil
	if err != nil {
		c.log.WithError(err).Debug("poll read failed")
	}
	return r
}
