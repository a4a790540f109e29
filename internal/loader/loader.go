// Package loader loads the provider's player API exactly once per process.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	rerrors "github.com/tessro/reel/internal/errors"
)

// DefaultTimeout bounds a load, measured from the first request.
const DefaultTimeout = 5 * time.Second

// Script is the provider's globally shared API resource.
type Script interface {
	// Ready reports whether the global API object exists and is usable.
	Ready() bool
	// Pending reports whether a load request is already in flight.
	Pending() bool
	// Inject issues one load request.
	Inject(ctx context.Context) error
	// ChainReady installs fn on the global ready slot, calling any
	// previously installed hook first.
	ChainReady(fn func()) error
}

// Loader ensures the provider API is loaded. It is safe for concurrent use
// and is meant to be shared by every player that uses the same Script.
type Loader struct {
	script  Script
	timeout time.Duration
	clock   clockwork.Clock
	log     *logrus.Entry

	claimed  atomic.Bool
	done     atomic.Bool
	requests atomic.Int64

	group     singleflight.Group
	readyOnce sync.Once
	ready     chan struct{}
}

// Option configures a Loader.
type Option func(*Loader)

// WithTimeout sets the load timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithClock sets the clock used for the timeout.
func WithClock(c clockwork.Clock) Option {
	return func(l *Loader) {
		l.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// New creates a loader for the given script.
func New(script Script, opts ...Option) *Loader {
	l := &Loader{
		script:  script,
		timeout: DefaultTimeout,
		clock:   clockwork.NewRealClock(),
		log:     logrus.NewEntry(logrus.StandardLogger()),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithField("component", "loader")
	return l
}

// Loaded reports whether the API is known to be usable.
func (l *Loader) Loaded() bool {
	if l.done.Load() {
		return true
	}
	if l.script.Ready() {
		l.markReady()
		return true
	}
	return false
}

// Requests returns how many load requests this loader has issued.
func (l *Loader) Requests() int64 {
	return l.requests.Load()
}

// Ensure blocks until the API is usable, the load times out, or ctx ends.
// Concurrent callers share one in-flight load.
func (l *Loader) Ensure(ctx context.Context) error {
	if l.Loaded() {
		return nil
	}

	ch := l.group.DoChan("load", func() (interface{}, error) {
		return nil, l.load()
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// load runs at most once at a time. The ready hook is installed once per
// loader; a retry after a timeout reattaches to the same ready signal.
func (l *Loader) load() error {
	if l.claimed.CompareAndSwap(false, true) {
		if err := l.script.ChainReady(l.markReady); err != nil {
			l.claimed.Store(false)
			return rerrors.New(rerrors.KindScriptLoad, "install ready hook", err)
		}
	}

	// The API may have come up between the Loaded check and installing the hook.
	if l.script.Ready() {
		l.markReady()
		return nil
	}

	timer := l.clock.NewTimer(l.timeout)
	defer timer.Stop()

	if l.script.Pending() {
		l.log.Debug("attaching to in-flight script load")
	} else {
		l.requests.Add(1)
		l.log.Debug("injecting provider script")
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		err := l.script.Inject(ctx)
		cancel()
		if err != nil {
			l.log.WithError(err).Warn("script injection failed")
			return rerrors.New(rerrors.KindScriptLoad, "inject", err)
		}
	}

	select {
	case <-l.ready:
		l.log.Debug("provider API ready")
		return nil
	case <-timer.Chan():
		l.log.WithField("timeout", l.timeout).Warn("provider API never became ready")
		return rerrors.New(rerrors.KindScriptLoad, "await ready",
			fmt.Errorf("no ready signal within %s: %w", l.timeout, errTimeout))
	}
}

var errTimeout = errors.New("timeout")

func (l *Loader) markReady() {
	l.readyOnce.Do(func() {
		l.done.Store(true)
		close(l.ready)
	})
}

// Slot is a chainable ready-callback slot. Installing a hook wraps whatever
// hook was installed before it so independent loaders never clobber each other.
type Slot struct {
	mu sync.Mutex
	fn func()
}

// Chain installs fn after the current hook.
func (s *Slot) Chain(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.fn
	s.fn = func() {
		if prev != nil {
			prev()
		}
		fn()
	}
}

// Fire invokes the installed hook chain, if any.
func (s *Slot) Fire() {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
