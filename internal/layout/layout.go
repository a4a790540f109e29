// Package layout waits for a named container to be mounted and sized before
// a player attaches to it.
package layout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/tessro/reel/internal/core"
	rerrors "github.com/tessro/reel/internal/errors"
)

// Default probing parameters.
const (
	DefaultTimeout        = 5 * time.Second
	DefaultLookupDelay    = 100 * time.Millisecond
	DefaultLookupAttempts = 20
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultPollAttempts   = 10
)

// ErrClosed is returned by Wait after the watch was closed.
var ErrClosed = errors.New("watch closed")

// Container is a mounted visual container.
type Container interface {
	Size() (core.Dimensions, error)
}

// Observable is implemented by containers that can report layout changes.
// The returned function removes the observer and must be safe to call twice.
type Observable interface {
	ObserveResize(fn func(core.Dimensions)) (unsubscribe func())
}

// Host resolves container ids on a page.
type Host interface {
	Lookup(id string) (Container, bool)
}

// Prober waits for containers to become usable.
type Prober struct {
	host  Host
	clock clockwork.Clock
	log   *logrus.Entry

	lookupDelay    time.Duration
	lookupAttempts int
	pollInterval   time.Duration
	pollAttempts   int
}

// Option configures a Prober.
type Option func(*Prober)

// WithClock sets the clock used for retries and timeouts.
func WithClock(c clockwork.Clock) Option {
	return func(p *Prober) {
		p.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(p *Prober) {
		p.log = log
	}
}

// WithLookup sets the lookup retry delay and attempt count.
func WithLookup(delay time.Duration, attempts int) Option {
	return func(p *Prober) {
		if delay > 0 {
			p.lookupDelay = delay
		}
		if attempts > 0 {
			p.lookupAttempts = attempts
		}
	}
}

// WithPolling sets the fallback polling interval and attempt count.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(p *Prober) {
		if interval > 0 {
			p.pollInterval = interval
		}
		if attempts > 0 {
			p.pollAttempts = attempts
		}
	}
}

// NewProber creates a prober for containers on host.
func NewProber(host Host, opts ...Option) *Prober {
	p := &Prober{
		host:           host,
		clock:          clockwork.NewRealClock(),
		log:            logrus.NewEntry(logrus.StandardLogger()),
		lookupDelay:    DefaultLookupDelay,
		lookupAttempts: DefaultLookupAttempts,
		pollInterval:   DefaultPollInterval,
		pollAttempts:   DefaultPollAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithField("component", "layout")
	return p
}

// Watch starts a watch on the container with the given id. Call Wait to
// block for it and Close to release it.
func (p *Prober) Watch(id string) *Watch {
	return &Watch{
		prober: p,
		id:     id,
		closed: make(chan struct{}),
		log:    p.log.WithField("container", id),
	}
}

// Await waits for the container to become usable and releases everything it
// set up before returning.
func (p *Prober) Await(ctx context.Context, id string, timeout time.Duration) (core.Dimensions, error) {
	w := p.Watch(id)
	defer w.Close()
	return w.Wait(ctx, timeout)
}

// Watch is a single pending wait for one container.
type Watch struct {
	prober *Prober
	id     string
	log    *logrus.Entry

	mu          sync.Mutex
	unsubscribe func()
	closeOnce   sync.Once
	closed      chan struct{}
}

// Close releases the observer subscription, if any, and makes a pending
// Wait return ErrClosed. It is safe to call more than once.
func (w *Watch) Close() {
	w.closeOnce.Do(func() {
		close(w.closed)
	})
	w.release()
}

func (w *Watch) release() {
	w.mu.Lock()
	unsub := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Wait blocks until the container exists and has non-zero width and height.
// A non-positive timeout uses DefaultTimeout.
func (w *Watch) Wait(ctx context.Context, timeout time.Duration) (core.Dimensions, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := w.prober

	deadline := p.clock.NewTimer(timeout)
	defer deadline.Stop()
	defer w.release()

	c, err := w.lookup(ctx, deadline.Chan())
	if err != nil {
		return core.Dimensions{}, err
	}

	if d, ok := w.usable(c); ok {
		return d, nil
	}

	if obs, ok := c.(Observable); ok {
		return w.observe(ctx, c, obs, deadline.Chan(), timeout)
	}
	return w.poll(ctx, c, deadline.Chan(), timeout)
}

func (w *Watch) lookup(ctx context.Context, deadline <-chan time.Time) (Container, error) {
	p := w.prober
	for attempt := 1; ; attempt++ {
		if c, ok := p.host.Lookup(w.id); ok {
			return c, nil
		}
		if attempt >= p.lookupAttempts {
			break
		}

		w.log.WithField("attempt", attempt).Debug("container not mounted yet")
		retry := p.clock.NewTimer(p.lookupDelay)
		select {
		case <-retry.Chan():
		case <-deadline:
			retry.Stop()
			return nil, w.notFound(attempt)
		case <-ctx.Done():
			retry.Stop()
			return nil, ctx.Err()
		case <-w.closed:
			retry.Stop()
			return nil, ErrClosed
		}
	}
	return nil, w.notFound(p.lookupAttempts)
}

func (w *Watch) observe(ctx context.Context, c Container, obs Observable, deadline <-chan time.Time, timeout time.Duration) (core.Dimensions, error) {
	sized := make(chan core.Dimensions, 1)
	unsub := obs.ObserveResize(func(d core.Dimensions) {
		if d.Empty() {
			return
		}
		select {
		case sized <- d:
		default:
		}
	})

	w.mu.Lock()
	w.unsubscribe = unsub
	w.mu.Unlock()

	select {
	case <-w.closed:
		return core.Dimensions{}, ErrClosed
	default:
	}

	// A resize may have landed before the observer was attached.
	if d, ok := w.usable(c); ok {
		return d, nil
	}

	select {
	case d := <-sized:
		w.log.WithField("width", d.Width).WithField("height", d.Height).Debug("container sized")
		return d, nil
	case <-deadline:
		return core.Dimensions{}, w.sizeTimeout(timeout)
	case <-ctx.Done():
		return core.Dimensions{}, ctx.Err()
	case <-w.closed:
		return core.Dimensions{}, ErrClosed
	}
}

func (w *Watch) poll(ctx context.Context, c Container, deadline <-chan time.Time, timeout time.Duration) (core.Dimensions, error) {
	p := w.prober
	ticker := p.clock.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		select {
		case <-ticker.Chan():
			if d, ok := w.usable(c); ok {
				return d, nil
			}
		case <-deadline:
			return core.Dimensions{}, w.sizeTimeout(timeout)
		case <-ctx.Done():
			return core.Dimensions{}, ctx.Err()
		case <-w.closed:
			return core.Dimensions{}, ErrClosed
		}
	}
	return core.Dimensions{}, w.sizeTimeout(timeout)
}

func (w *Watch) usable(c Container) (core.Dimensions, bool) {
	d, err := c.Size()
	if err != nil {
		w.log.WithError(err).Debug("size read failed")
		return core.Dimensions{}, false
	}
	return d, !d.Empty()
}

func (w *Watch) notFound(attempts int) error {
	return rerrors.New(rerrors.KindContainerNotFound, core.StateAwaitingContainer.String(),
		fmt.Errorf("container %q not found after %d lookups", w.id, attempts))
}

func (w *Watch) sizeTimeout(timeout time.Duration) error {
	return rerrors.New(rerrors.KindContainerSizeTimeout, core.StateAwaitingContainer.String(),
		fmt.Errorf("container %q still zero-sized after %s", w.id, timeout))
}
