// Package sim is an in-process stand-in for the embedded video widget. All of
// its timing runs on an injectable clock so tests can drive it precisely.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tessro/reel/internal/loader"
)

// Script simulates the provider's API script and its global ready slot.
type Script struct {
	clock clockwork.Clock
	delay time.Duration

	mu      sync.Mutex
	ready   bool
	pending bool
	blocked bool
	injects int

	slot loader.Slot
}

// NewScript returns a script that becomes ready delay after it is injected.
func NewScript(clock clockwork.Clock, delay time.Duration) *Script {
	return &Script{clock: clock, delay: delay}
}

// Preload marks the API as already present on the page.
func (s *Script) Preload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
}

// Block makes injected requests hang forever, as a blocked network would.
func (s *Script) Block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = true
}

// Ready implements loader.Script.
func (s *Script) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Pending implements loader.Script.
func (s *Script) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Inject implements loader.Script.
func (s *Script) Inject(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.injects++
	s.pending = true
	if !s.blocked {
		s.clock.AfterFunc(s.delay, s.arrive)
	}
	return nil
}

// ChainReady implements loader.Script.
func (s *Script) ChainReady(fn func()) error {
	s.slot.Chain(fn)
	return nil
}

// Injects returns how many script requests were issued.
func (s *Script) Injects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injects
}

func (s *Script) arrive() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	s.slot.Fire()
}
