package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	rerrors "github.com/tessro/reel/internal/errors"
)

// Load reads configuration from standard locations with environment overrides.
// Search order: ~/.reelrc, $XDG_CONFIG_HOME/reel/config.toml, ~/.config/reel/config.toml
// No file at all yields the defaults.
func Load() (*Config, error) {
	path := findConfigFile()
	if path == "" {
		return finish(&Config{}), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", rerrors.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %w", rerrors.ErrInvalidConfig, path, err)
	}
	return finish(cfg), nil
}

// finish fills defaults, then lets REEL_* variables win.
func finish(cfg *Config) *Config {
	cfg.ApplyDefaults()
	applyEnvOverrides(cfg)
	return cfg
}

// Path returns where a new config file is written: ~/.reelrc.
func Path() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".reelrc"
	}
	return filepath.Join(home, ".reelrc")
}

// findConfigFile returns the first existing config file path.
func findConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	paths := []string{
		filepath.Join(home, ".reelrc"),
	}

	// XDG_CONFIG_HOME or default
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	paths = append(paths, filepath.Join(xdgConfig, "reel", "config.toml"))

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Player
	envInt("REEL_PLAYER_POLL_INTERVAL", &cfg.Player.PollInterval)
	envInt("REEL_PLAYER_SCRIPT_TIMEOUT", &cfg.Player.ScriptTimeout)
	envInt("REEL_PLAYER_CONTAINER_TIMEOUT", &cfg.Player.ContainerTimeout)
	envInt("REEL_PLAYER_READY_TIMEOUT", &cfg.Player.ReadyTimeout)
	envBool("REEL_PLAYER_AUTOPLAY", &cfg.Player.Autoplay)
	envBool("REEL_PLAYER_MUTED", &cfg.Player.Muted)
	envBool("REEL_PLAYER_LOOP", &cfg.Player.Loop)

	// Provider
	if v := os.Getenv("REEL_PROVIDER_NAME"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("REEL_PROVIDER_BROWSER_BIN"); v != "" {
		cfg.Provider.BrowserBin = v
	}
	envBool("REEL_PROVIDER_HEADLESS", &cfg.Provider.Headless)

	// Controls
	envInt("REEL_CONTROLS_AUTO_HIDE_DELAY", &cfg.Controls.AutoHideDelay)
	envInt("REEL_CONTROLS_REFRESH_INTERVAL", &cfg.Controls.RefreshInterval)

	// Log
	if v := os.Getenv("REEL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REEL_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	envBool("REEL_LOG_JSON", &cfg.Log.JSON)
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
