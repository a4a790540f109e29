package youtube

import (
	"fmt"
	"sync"

	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/layout"
)

// Host resolves containers by element id.
type Host struct {
	s *Session
}

// Lookup implements layout.Host.
func (h *Host) Lookup(id string) (layout.Container, bool) {
	v, err := h.s.eval(`id => reel.exists(id)`, id)
	if err != nil || !v.Bool() {
		return nil, false
	}
	return &Container{s: h.s, id: id}, true
}

// Container is one element on the page. It reports layout changes through
// a ResizeObserver bridged back to Go.
type Container struct {
	s  *Session
	id string
}

// Size implements layout.Container.
func (c *Container) Size() (core.Dimensions, error) {
	v, err := c.s.eval(`id => reel.size(id)`, c.id)
	if err != nil {
		return core.Dimensions{}, err
	}
	if v.Nil() {
		return core.Dimensions{}, fmt.Errorf("container %q was removed", c.id)
	}
	return core.Dimensions{
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}, nil
}

// ObserveResize implements layout.Observable.
func (c *Container) ObserveResize(fn func(core.Dimensions)) func() {
	key, first := c.s.addObserver(c.id, fn)
	if first {
		if _, err := c.s.eval(`id => reel.observe(id)`, c.id); err != nil {
			c.s.log.WithError(err).WithField("container", c.id).Debug("observe failed")
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if c.s.removeObserver(c.id, key) {
				_, _ = c.s.eval(`id => reel.unobserve(id)`, c.id)
			}
		})
	}
}
