package config

import (
	"errors"
	"fmt"

	rerrors "github.com/tessro/reel/internal/errors"
)

// Validate checks the configuration for errors. The returned error matches
// ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Player.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("player: %w", err))
	}
	if err := c.Provider.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("provider: %w", err))
	}
	if err := c.Controls.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("controls: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", rerrors.ErrInvalidConfig, errors.Join(errs...))
}

// Validate checks PlayerConfig for errors.
func (c *PlayerConfig) Validate() error {
	fields := []struct {
		name  string
		value int
	}{
		{"poll_interval", c.PollInterval},
		{"script_timeout", c.ScriptTimeout},
		{"container_timeout", c.ContainerTimeout},
		{"ready_timeout", c.ReadyTimeout},
		{"autoplay_verify_delay", c.AutoplayVerifyDelay},
	}
	for _, f := range fields {
		if f.value < 0 {
			return fmt.Errorf("%s must be non-negative", f.name)
		}
	}
	return nil
}

// Validate checks ProviderConfig for errors.
func (c *ProviderConfig) Validate() error {
	switch c.Name {
	case "", "youtube", "sim":
		// valid
	default:
		return fmt.Errorf("invalid provider: %s (must be youtube or sim)", c.Name)
	}
	if c.Width < 0 || c.Height < 0 {
		return errors.New("width and height must be non-negative")
	}
	return nil
}

// Validate checks ControlsConfig for errors.
func (c *ControlsConfig) Validate() error {
	if c.AutoHideDelay < 0 || c.FadeDuration < 0 || c.RefreshInterval < 0 {
		return errors.New("durations must be non-negative")
	}
	if c.SeekStep < 0 {
		return errors.New("seek_step must be non-negative")
	}
	if c.VolumeStep < 0 || c.VolumeStep > 100 {
		return errors.New("volume_step must be between 0 and 100")
	}
	return nil
}

// Validate checks LogConfig for errors.
func (c *LogConfig) Validate() error {
	switch c.Level {
	case "", "trace", "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", c.Level)
	}
	return nil
}
