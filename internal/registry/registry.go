// Package registry tracks live player instances by container.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/layout"
	"github.com/tessro/reel/internal/loader"
	"github.com/tessro/reel/internal/player"
)

// Manager hands out one controller per container. All controllers share the
// manager's script loader.
type Manager struct {
	factory core.Factory
	loader  *loader.Loader
	prober  *layout.Prober
	opts    []player.Option
	log     *logrus.Entry

	mu        sync.Mutex
	instances map[string]*player.Controller
}

// New creates a manager. opts are applied to every controller it creates.
func New(factory core.Factory, ld *loader.Loader, prober *layout.Prober, log *logrus.Entry, opts ...player.Option) *Manager {
	return &Manager{
		factory:   factory,
		loader:    ld,
		prober:    prober,
		opts:      append([]player.Option{player.WithLogger(log)}, opts...),
		log:       log.WithField("component", "registry"),
		instances: make(map[string]*player.Controller),
	}
}

// Open returns the controller for the pair. A live controller for the same
// pair is reused; any other controller on the container is destroyed first.
func (m *Manager) Open(videoID, containerID string) *player.Controller {
	m.mu.Lock()
	prev, ok := m.instances[containerID]
	if ok && prev.VideoID() == videoID && !prev.State().Terminal() {
		m.mu.Unlock()
		return prev
	}

	c := player.New(videoID, containerID, m.factory, m.loader, m.prober, m.opts...)
	m.instances[containerID] = c
	m.mu.Unlock()

	if ok {
		m.log.WithField("container", containerID).WithField("video", prev.VideoID()).Debug("replacing instance")
		prev.Destroy()
	}
	return c
}

// Initialize opens the pair and initializes it.
func (m *Manager) Initialize(ctx context.Context, videoID, containerID string, opts player.InitOptions) (*player.Controller, error) {
	c := m.Open(videoID, containerID)
	return c, c.Initialize(ctx, opts)
}

// InitializeAll initializes videoID on every container concurrently. One
// failure never cancels the others, so every container ends up with a final
// state. The first error is returned once all of them have settled.
func (m *Manager) InitializeAll(ctx context.Context, videoID string, containerIDs []string, opts player.InitOptions) error {
	var g errgroup.Group
	for _, id := range containerIDs {
		id := id
		g.Go(func() error {
			_, err := m.Initialize(ctx, videoID, id, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Get returns the controller attached to a container.
func (m *Manager) Get(containerID string) (*player.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.instances[containerID]
	return c, ok
}

// Controllers returns every controller ordered by container id.
func (m *Manager) Controllers() []*player.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := lo.Keys(m.instances)
	sort.Strings(ids)
	return lo.Map(ids, func(id string, _ int) *player.Controller {
		return m.instances[id]
	})
}

// Snapshots returns a snapshot of every instance ordered by container id.
func (m *Manager) Snapshots() []core.Snapshot {
	return lo.Map(m.Controllers(), func(c *player.Controller, _ int) core.Snapshot {
		return c.Snapshot()
	})
}

// Release destroys and forgets the controller attached to a container.
func (m *Manager) Release(containerID string) {
	m.mu.Lock()
	c, ok := m.instances[containerID]
	delete(m.instances, containerID)
	m.mu.Unlock()

	if ok {
		c.Destroy()
	}
}

// Close destroys every instance.
func (m *Manager) Close() {
	m.mu.Lock()
	all := lo.Values(m.instances)
	m.instances = make(map[string]*player.Controller)
	m.mu.Unlock()

	for _, c := range all {
		c.Destroy()
	}
}
