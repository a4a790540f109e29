// Package youtube drives the real IFrame widget inside a Chromium page. The
// page is served from a loopback router and every container is a sized div
// on it.
package youtube

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
	"github.com/ysmood/gson"

	"github.com/tessro/reel/internal/core"
	"github.com/tessro/reel/internal/loader"
)

//go:embed host.html
var hostPage []byte

// binding is the page-to-Go callback every widget event goes through.
const binding = "reelEvent"

// CallTimeout bounds every page evaluation that has no caller deadline.
const CallTimeout = 5 * time.Second

// Options configure a Session.
type Options struct {
	// BrowserBin is the Chromium binary. Empty means look one up, or
	// download one when none is installed.
	BrowserBin string
	Headless   bool
	Log        *logrus.Entry
}

// Session is one browser page hosting any number of containers.
type Session struct {
	log *logrus.Entry

	server   *http.Server
	url      string
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	unexpose func() error

	slot loader.Slot

	mu        sync.Mutex
	events    map[string]registration
	observers map[string]map[int]func(core.Dimensions)
	nextKey   int

	closeOnce sync.Once
	closeErr  error
}

func newSession(log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		log:       log.WithField("component", "youtube"),
		events:    make(map[string]registration),
		observers: make(map[string]map[int]func(core.Dimensions)),
	}
}

// Launch serves the host page, starts Chromium and opens the page.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	s := newSession(opts.Log)

	if err := s.serve(); err != nil {
		return nil, err
	}

	l := launcher.New().Context(ctx).Headless(opts.Headless)
	switch {
	case opts.BrowserBin != "":
		l = l.Bin(opts.BrowserBin)
	default:
		if path, ok := launcher.LookPath(); ok {
			l = l.Bin(path)
		}
	}
	s.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page

	stop, err := page.Expose(binding, s.dispatch)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("expose %s: %w", binding, err)
	}
	s.unexpose = stop

	if err := page.Context(ctx).Navigate(s.url); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("navigate to host page: %w", err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("load host page: %w", err)
	}

	s.log.WithField("url", s.url).Debug("session ready")
	return s, nil
}

// routes builds the host page router.
func (s *Session) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(hostPage)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (s *Session) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("host page request")
	})
}

func (s *Session) serve() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.url = "http://" + ln.Addr().String() + "/"
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Warn("host page server stopped")
		}
	}()
	return nil
}

// URL returns the host page address.
func (s *Session) URL() string {
	return s.url
}

// Script returns the widget API script on this page.
func (s *Session) Script() *Script {
	return &Script{s: s}
}

// Host resolves containers on this page.
func (s *Session) Host() *Host {
	return &Host{s: s}
}

// Factory constructs widget players on this page.
func (s *Session) Factory() *Factory {
	return &Factory{s: s}
}

// Mount adds a container of the given size, or resizes an existing one.
func (s *Session) Mount(id string, width, height int) error {
	_, err := s.eval(`(id, w, h) => reel.mount(id, w, h)`, id, width, height)
	return err
}

// Unmount removes a container.
func (s *Session) Unmount(id string) error {
	_, err := s.eval(`id => reel.unmount(id)`, id)
	return err
}

// Close shuts the browser and the host page server down.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.unexpose != nil {
			errs = append(errs, s.unexpose())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		if s.launcher != nil {
			s.launcher.Kill()
		}
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			errs = append(errs, s.server.Shutdown(ctx))
			cancel()
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Session) eval(js string, args ...interface{}) (gson.JSON, error) {
	return s.evalCtx(context.Background(), js, args...)
}

// evalCtx evaluates js on the page, giving up after CallTimeout at most.
func (s *Session) evalCtx(ctx context.Context, js string, args ...interface{}) (gson.JSON, error) {
	if s.page == nil {
		return gson.JSON{}, errors.New("session has no page")
	}
	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()
	res, err := s.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

// dispatch receives every event the page reports.
func (s *Session) dispatch(payload gson.JSON) (interface{}, error) {
	kind := payload.Get("kind").Str()
	id := payload.Get("id").Str()

	switch kind {
	case "apiReady":
		s.slot.Fire()

	case "ready":
		if ev := s.eventsFor(id); ev.OnReady != nil {
			ev.OnReady()
		}

	case "state":
		if ev := s.eventsFor(id); ev.OnStateChange != nil {
			ev.OnStateChange(core.ProviderState(payload.Get("state").Int()))
		}

	case "error":
		if ev := s.eventsFor(id); ev.OnError != nil {
			ev.OnError(payload.Get("code").Int())
		}

	case "resize":
		dims := core.Dimensions{
			Width:  payload.Get("width").Num(),
			Height: payload.Get("height").Num(),
		}
		for _, fn := range s.observersFor(id) {
			fn(dims)
		}

	default:
		s.log.WithField("kind", kind).Debug("unknown page event")
	}
	return nil, nil
}

// registration ties a container's callbacks to the player that set them.
type registration struct {
	token int
	ev    core.Events
}

// setEvents routes the container's widget events to ev and returns a token
// for clearEvents.
func (s *Session) setEvents(id string, ev core.Events) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextKey++
	s.events[id] = registration{token: s.nextKey, ev: ev}
	return s.nextKey
}

// clearEvents drops the container's callbacks unless a newer player has
// replaced them.
func (s *Session) clearEvents(id string, token int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.events[id]; ok && reg.token == token {
		delete(s.events, id)
	}
}

func (s *Session) eventsFor(id string) core.Events {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[id].ev
}

// addObserver registers fn and reports whether it is the first for id.
func (s *Session) addObserver(id string, fn func(core.Dimensions)) (key int, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, ok := s.observers[id]
	if !ok {
		obs = make(map[int]func(core.Dimensions))
		s.observers[id] = obs
	}
	s.nextKey++
	obs[s.nextKey] = fn
	return s.nextKey, len(obs) == 1
}

// removeObserver drops an observer and reports whether none remain for id.
func (s *Session) removeObserver(id string, key int) (last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, ok := s.observers[id]
	if !ok {
		return false
	}
	delete(obs, key)
	if len(obs) == 0 {
		delete(s.observers, id)
		return true
	}
	return false
}

func (s *Session) observersFor(id string) []func(core.Dimensions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]func(core.Dimensions), 0, len(s.observers[id]))
	for _, fn := range s.observers[id] {
		out = append(out, fn)
	}
	return out
}
