package sim

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/layout"
)

// Host is a simulated page holding named containers.
type Host struct {
	clock clockwork.Clock

	mu         sync.Mutex
	containers map[string]*Container
	lookups    map[string]int
}

// NewHost returns an empty page.
func NewHost(clock clockwork.Clock) *Host {
	return &Host{
		clock:      clock,
		containers: make(map[string]*Container),
		lookups:    make(map[string]int),
	}
}

// Mount adds a container. Observable containers report resizes; the rest
// can only be polled.
func (h *Host) Mount(id string, size core.Dimensions, observable bool) *Container {
	c := &Container{
		id:         id,
		size:       size,
		observable: observable,
		observers:  make(map[int]func(core.Dimensions)),
	}

	h.mu.Lock()
	h.containers[id] = c
	h.mu.Unlock()
	return c
}

// MountAfter mounts a container once delay has passed on the host's clock.
func (h *Host) MountAfter(delay time.Duration, id string, size core.Dimensions, observable bool) {
	h.clock.AfterFunc(delay, func() {
		h.Mount(id, size, observable)
	})
}

// Unmount removes a container.
func (h *Host) Unmount(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.containers, id)
}

// Container returns a mounted container by id.
func (h *Host) Container(id string) (*Container, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.containers[id]
	return c, ok
}

// IDs returns the mounted container ids in order.
func (h *Host) IDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.containers))
	for id := range h.containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookups returns how many times id was looked up.
func (h *Host) Lookups(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookups[id]
}

// Lookup implements layout.Host.
func (h *Host) Lookup(id string) (layout.Container, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lookups[id]++
	c, ok := h.containers[id]
	if !ok {
		return nil, false
	}
	if !c.observable {
		return pollOnly{c}, true
	}
	return c, true
}

// Container is a simulated page element.
type Container struct {
	id         string
	observable bool

	mu        sync.Mutex
	size      core.Dimensions
	observers map[int]func(core.Dimensions)
	nextID    int
}

// Size implements layout.Container.
func (c *Container) Size() (core.Dimensions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size, nil
}

// Resize changes the rendered size and notifies observers.
func (c *Container) Resize(size core.Dimensions) {
	c.mu.Lock()
	c.size = size
	fns := make([]func(core.Dimensions), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(size)
	}
}

// ObserveResize implements layout.Observable.
func (c *Container) ObserveResize(fn func(core.Dimensions)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Observers returns the number of attached resize observers.
func (c *Container) Observers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

// pollOnly hides ObserveResize so the prober has to fall back to polling.
type pollOnly struct {
	c *Container
}

func (p pollOnly) Size() (core.Dimensions, error) {
	return p.c.Size()
}
