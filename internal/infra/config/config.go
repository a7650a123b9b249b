// Package config provides configuration loading from YAML or TOML files.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/ubiquity/internal/domain/playlist"
)

// Remember-last-position modes.
const (
	RememberYes  = "yes"
	RememberNo   = "no"
	RememberAuto = "auto"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Library  LibraryConfig  `yaml:"library" toml:"library"`
	Playback PlaybackConfig `yaml:"playback" toml:"playback"`
	Backend  BackendConfig  `yaml:"backend" toml:"backend"`
	Store    StoreConfig    `yaml:"store" toml:"store"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" toml:"addr" default:":7019"`
	Token string      `yaml:"token" toml:"token" validate:"required"`
	Hooks HooksConfig `yaml:"hooks" toml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started" toml:"on_started"`
	OnStopped []string `yaml:"on_stopped" toml:"on_stopped"`
}

// LibraryConfig represents the music library configuration.
type LibraryConfig struct {
	MusicDirs  []string                `yaml:"music_dirs" toml:"music_dirs" validate:"required,min=1,dive,required"`
	Watch      *bool                   `yaml:"watch" toml:"watch" default:"true"`
	DebounceMs int                     `yaml:"debounce_ms" toml:"debounce_ms" default:"500" validate:"gte=0,lte=60000"`
	Filters    map[string]FilterConfig `yaml:"filters" toml:"filters"`
}

// FilterConfig represents a scan filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled" toml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty" toml:"settings"`
}

// PlaybackConfig represents playback configuration.
type PlaybackConfig struct {
	LoopMode             string `yaml:"loop_mode" toml:"loop_mode" default:"queue" validate:"oneof=single queue playlist"`
	Gapless              *bool  `yaml:"gapless" toml:"gapless" default:"true"`
	Volume               int    `yaml:"volume" toml:"volume" default:"70" validate:"gte=0,lte=100"`
	Speed                int    `yaml:"speed" toml:"speed" default:"10" validate:"gte=1,lte=30"`
	VolumeStep           int    `yaml:"volume_step" toml:"volume_step" default:"5" validate:"gte=1,lte=100"`
	SpeedStep            int    `yaml:"speed_step" toml:"speed_step" default:"1" validate:"gte=1,lte=10"`
	RememberLastPosition string `yaml:"remember_last_position" toml:"remember_last_position" default:"auto" validate:"oneof=yes no auto"`
	Autoplay             bool   `yaml:"autoplay" toml:"autoplay"`
}

// BackendConfig selects the audio backend.
type BackendConfig struct {
	Type               string         `yaml:"type" toml:"type" default:"beep" validate:"oneof=beep process clock"`
	AboutToFinishMs    int            `yaml:"about_to_finish_ms" toml:"about_to_finish_ms" default:"2000" validate:"gte=100,lte=30000"`
	ProgressIntervalMs int            `yaml:"progress_interval_ms" toml:"progress_interval_ms" default:"1000" validate:"gte=100,lte=60000"`
	Settings           map[string]any `yaml:"settings" toml:"settings"`
}

// StoreConfig represents session store configuration.
type StoreConfig struct {
	Path string `yaml:"path" toml:"path" default:"ubiquity.db"`
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("UBIQUITY_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("UBIQUITY_MUSIC_DIRS"); v != "" {
		c.Library.MusicDirs = filepath.SplitList(v)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// LoopMode returns the configured loop mode.
func (c *Config) LoopMode() playlist.LoopMode {
	mode, err := playlist.ParseLoopMode(c.Playback.LoopMode)
	if err != nil {
		return playlist.LoopQueue
	}
	return mode
}

// Gapless reports whether gapless playback is enabled.
func (c *Config) Gapless() bool {
	return c.Playback.Gapless == nil || *c.Playback.Gapless
}

// WatchEnabled reports whether the music folders are watched.
func (c *Config) WatchEnabled() bool {
	return c.Library.Watch == nil || *c.Library.Watch
}

// Debounce returns the watcher debounce period.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Library.DebounceMs) * time.Millisecond
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Library.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}
