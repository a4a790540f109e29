package player

import (
	"fmt"

	"github.com/tessro/reel/internal/core"
	rerrors "github.com/tessro/reel/internal/errors"
)

// startAutoplay issues the first autoplay attempt and schedules its check.
func (c *Controller) startAutoplay(gen uint64) {
	if c.autoplayAttempt(gen) {
		c.scheduleVerify(gen, 0)
	}
}

// autoplayAttempt mutes and then plays. Hosts only allow autoplay of muted
// media, so the mute has to land right before the play command.
func (c *Controller) autoplayAttempt(gen uint64) bool {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	c.mu.Lock()
	if gen != c.gen || !c.state.Commandable() || c.provider == nil {
		c.mu.Unlock()
		return false
	}
	prov := c.provider
	c.mu.Unlock()

	if err := prov.Mute(); err != nil {
		c.log.WithError(err).Warn("autoplay mute failed")
	} else {
		c.commit(gen, func() { c.muted = true })
	}

	if err := prov.PlayVideo(); err != nil {
		c.log.WithError(err).Warn("autoplay play failed")
		return true
	}
	c.commit(gen, func() { c.setStateLocked(core.StatePlaying) })
	return true
}

func (c *Controller) scheduleVerify(gen uint64, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.autoplayTimer = c.clock.AfterFunc(c.timing.AutoplayVerifyDelay, func() {
		c.verifyAutoplay(gen, attempt)
	})
}

// verifyAutoplay checks that playback actually started. It retries up to
// AutoplayRetries times and then records a PlaybackError.
func (c *Controller) verifyAutoplay(gen uint64, attempt int) {
	c.mu.Lock()
	if gen != c.gen || !c.state.Commandable() || c.provider == nil {
		c.mu.Unlock()
		return
	}
	c.autoplayTimer = nil
	if c.userPaused {
		c.mu.Unlock()
		c.log.Debug("paused before autoplay check; skipping")
		return
	}
	prov := c.provider
	c.mu.Unlock()

	c.cmdMu.Lock()
	ps, err := prov.PlayerState()
	c.cmdMu.Unlock()

	if err == nil {
		switch ps {
		case core.ProviderPlaying, core.ProviderBuffering, core.ProviderEnded:
			c.reconcile(gen, ps)
			c.log.WithField("attempt", attempt+1).Debug("autoplay verified")
			return
		}
	}

	if attempt < c.timing.AutoplayRetries {
		c.log.WithField("provider_state", ps).Warn("autoplay did not start; retrying")
		if c.autoplayAttempt(gen) {
			c.scheduleVerify(gen, attempt+1)
		}
		return
	}

	cause := fmt.Errorf("playback did not start after %d attempts (provider %s)", attempt+1, ps)
	if err != nil {
		cause = fmt.Errorf("playback state unreadable after %d attempts: %w", attempt+1, err)
	}
	c.fail(gen, rerrors.New(rerrors.KindPlayback, "autoplay", cause))
}
