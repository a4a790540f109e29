package youtube

import (
	"context"
)

// Script is the IFrame API script on a session's page.
type Script struct {
	s *Session
}

// Ready implements loader.Script.
func (x *Script) Ready() bool {
	v, err := x.s.eval(`() => reel.apiReady()`)
	return err == nil && v.Bool()
}

// Pending implements loader.Script. A script tag that has not produced the
// API object yet counts as in flight.
func (x *Script) Pending() bool {
	v, err := x.s.eval(`() => reel.scriptPending() && !reel.apiReady()`)
	return err == nil && v.Bool()
}

// Inject implements loader.Script.
func (x *Script) Inject(ctx context.Context) error {
	_, err := x.s.evalCtx(ctx, `() => reel.injectScript()`)
	return err
}

// ChainReady implements loader.Script. The page keeps any ready hook it
// already had and calls it before notifying Go.
func (x *Script) ChainReady(fn func()) error {
	x.s.slot.Chain(fn)
	_, err := x.s.eval(`() => reel.chainReady()`)
	return err
}
