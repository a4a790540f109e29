package config

// Config is the root configuration structure.
type Config struct {
	Player   PlayerConfig   `toml:"player" json:"player"`
	Provider ProviderConfig `toml:"provider" json:"provider"`
	Controls ControlsConfig `toml:"controls" json:"controls"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// PlayerConfig holds lifecycle timings and the default init options.
// Durations are in milliseconds.
type PlayerConfig struct {
	PollInterval        int `toml:"poll_interval" json:"poll_interval"`
	ScriptTimeout       int `toml:"script_timeout" json:"script_timeout"`
	ContainerTimeout    int `toml:"container_timeout" json:"container_timeout"`
	ReadyTimeout        int `toml:"ready_timeout" json:"ready_timeout"`
	AutoplayVerifyDelay int `toml:"autoplay_verify_delay" json:"autoplay_verify_delay"`
	// AutoplayRetries of zero means the default; a negative value disables retries.
	AutoplayRetries int `toml:"autoplay_retries" json:"autoplay_retries"`

	Autoplay bool `toml:"autoplay" json:"autoplay"`
	Muted    bool `toml:"muted" json:"muted"`
	Loop     bool `toml:"loop" json:"loop"`
}

// ProviderConfig selects and tunes the widget provider.
type ProviderConfig struct {
	Name       string `toml:"name" json:"name"`
	BrowserBin string `toml:"browser_bin" json:"browser_bin"`
	Headless   bool   `toml:"headless" json:"headless"`
	Width      int    `toml:"width" json:"width"`
	Height     int    `toml:"height" json:"height"`
}

// ControlsConfig holds control surface settings.
type ControlsConfig struct {
	AutoHideDelay   int `toml:"auto_hide_delay" json:"auto_hide_delay"`
	FadeDuration    int `toml:"fade_duration" json:"fade_duration"`
	SeekStep        int `toml:"seek_step" json:"seek_step"`
	VolumeStep      int `toml:"volume_step" json:"volume_step"`
	RefreshInterval int `toml:"refresh_interval" json:"refresh_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level" json:"level"`
	File  string `toml:"file" json:"file"`
	JSON  bool   `toml:"json" json:"json"`
}
