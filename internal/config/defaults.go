package config

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Player: PlayerConfig{
			PollInterval:        100,
			ScriptTimeout:       5000,
			ContainerTimeout:    5000,
			ReadyTimeout:        5000,
			AutoplayVerifyDelay: 1000,
			AutoplayRetries:     1,
		},
		Provider: ProviderConfig{
			Name:   "youtube",
			Width:  640,
			Height: 360,
		},
		Controls: ControlsConfig{
			AutoHideDelay:   3000,
			FadeDuration:    300,
			SeekStep:        5,
			VolumeStep:      5,
			RefreshInterval: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *Config) ApplyDefaults() {
	d := Default()

	// Player
	if c.Player.PollInterval == 0 {
		c.Player.PollInterval = d.Player.PollInterval
	}
	if c.Player.ScriptTimeout == 0 {
		c.Player.ScriptTimeout = d.Player.ScriptTimeout
	}
	if c.Player.ContainerTimeout == 0 {
		c.Player.ContainerTimeout = d.Player.ContainerTimeout
	}
	if c.Player.ReadyTimeout == 0 {
		c.Player.ReadyTimeout = d.Player.ReadyTimeout
	}
	if c.Player.AutoplayVerifyDelay == 0 {
		c.Player.AutoplayVerifyDelay = d.Player.AutoplayVerifyDelay
	}
	if c.Player.AutoplayRetries == 0 {
		c.Player.AutoplayRetries = d.Player.AutoplayRetries
	}

	// Provider
	if c.Provider.Name == "" {
		c.Provider.Name = d.Provider.Name
	}
	if c.Provider.Width == 0 {
		c.Provider.Width = d.Provider.Width
	}
	if c.Provider.Height == 0 {
		c.Provider.Height = d.Provider.Height
	}

	// Controls
	if c.Controls.AutoHideDelay == 0 {
		c.Controls.AutoHideDelay = d.Controls.AutoHideDelay
	}
	if c.Controls.FadeDuration == 0 {
		c.Controls.FadeDuration = d.Controls.FadeDuration
	}
	if c.Controls.SeekStep == 0 {
		c.Controls.SeekStep = d.Controls.SeekStep
	}
	if c.Controls.VolumeStep == 0 {
		c.Controls.VolumeStep = d.Controls.VolumeStep
	}
	if c.Controls.RefreshInterval == 0 {
		c.Controls.RefreshInterval = d.Controls.RefreshInterval
	}

	// Log
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}
