package youtube

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/tessro/reel/internal/core"
)

// Factory constructs YT.Player objects.
type Factory struct {
	s *Session
}

// NewPlayer implements core.Factory.
func (f *Factory) NewPlayer(ctx context.Context, cfg core.PlayerConfig) (core.Provider, error) {
	token := f.s.setEvents(cfg.ContainerID, cfg.Events)

	opts := map[string]interface{}{
		"videoId":    cfg.VideoID,
		"width":      cfg.Width,
		"height":     cfg.Height,
		"playerVars": cfg.Vars.Map(cfg.VideoID),
	}
	if _, err := f.s.evalCtx(ctx, `(id, opts) => reel.create(id, opts)`, cfg.ContainerID, opts); err != nil {
		f.s.clearEvents(cfg.ContainerID, token)
		return nil, fmt.Errorf("construct player in %q: %w", cfg.ContainerID, err)
	}
	return &Player{s: f.s, id: cfg.ContainerID, token: token}, nil
}

// Player forwards every call to the page's player object for one container.
type Player struct {
	s     *Session
	id    string
	token int
}

func (p *Player) call(method string, args ...interface{}) (gson.JSON, error) {
	if args == nil {
		args = []interface{}{}
	}
	v, err := p.s.eval(`(id, method, args) => reel.call(id, method, args)`, p.id, method, args)
	if err != nil {
		return gson.JSON{}, fmt.Errorf("%s: %w", method, err)
	}
	return v, nil
}

func (p *Player) PlayVideo() error {
	_, err := p.call("playVideo")
	return err
}

func (p *Player) PauseVideo() error {
	_, err := p.call("pauseVideo")
	return err
}

func (p *Player) SeekTo(seconds float64, allowSeekAhead bool) error {
	_, err := p.call("seekTo", seconds, allowSeekAhead)
	return err
}

func (p *Player) SetVolume(volume int) error {
	_, err := p.call("setVolume", volume)
	return err
}

func (p *Player) Mute() error {
	_, err := p.call("mute")
	return err
}

func (p *Player) UnMute() error {
	_, err := p.call("unMute")
	return err
}

func (p *Player) CurrentTime() (float64, error) {
	v, err := p.call("getCurrentTime")
	if err != nil {
		return 0, err
	}
	return v.Num(), nil
}

func (p *Player) Duration() (float64, error) {
	v, err := p.call("getDuration")
	if err != nil {
		return 0, err
	}
	return v.Num(), nil
}

func (p *Player) Volume() (int, error) {
	v, err := p.call("getVolume")
	if err != nil {
		return 0, err
	}
	return v.Int(), nil
}

func (p *Player) IsMuted() (bool, error) {
	v, err := p.call("isMuted")
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}

func (p *Player) PlayerState() (core.ProviderState, error) {
	v, err := p.call("getPlayerState")
	if err != nil {
		return core.ProviderUnstarted, err
	}
	return core.ProviderState(v.Int()), nil
}

// SetFullscreen implements core.Fullscreener. Browsers only honour
// fullscreen requests made during a user gesture.
func (p *Player) SetFullscreen(on bool) error {
	if p.s.page == nil {
		return errors.New("session has no page")
	}
	_, err := p.s.page.Timeout(CallTimeout).Evaluate(rod.Eval(`(id, on) => reel.fullscreen(id, on)`, p.id, on).ByUser().ByPromise())
	return err
}

func (p *Player) Destroy() error {
	p.s.clearEvents(p.id, p.token)
	_, err := p.s.eval(`id => reel.destroy(id)`, p.id)
	return err
}
