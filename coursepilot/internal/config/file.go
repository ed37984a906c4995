// CLAUDE:SUMMARY coursepilot YAML configuration: browser, pages, loop timings, default settings, gate heuristics, classifier profiles, store, HTTP, sinks; defaults and env overrides.
// Package config handles coursepilot configuration from YAML files and
// COURSEPILOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/browser"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/classify"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/gate"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

// Config is the top-level coursepilot configuration.
type Config struct {
	Browser  browser.Config `yaml:"browser"`
	Pages    []PageConfig   `yaml:"pages"`
	Loop     LoopConfig     `yaml:"loop"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Gate     GateConfig     `yaml:"gate"`
	Profiles ProfilesConfig `yaml:"profiles"`
	Store    StoreConfig    `yaml:"store"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	Log      LogConfig      `yaml:"log"`
}

// PageConfig is a course page to drive.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
	// StartEnabled forces the monitoring flag at startup. Nil keeps the
	// persisted flag.
	StartEnabled *bool `yaml:"start_enabled"`
}

// LoopConfig holds the activation loop timings.
type LoopConfig struct {
	WarmUp    time.Duration `yaml:"warm_up"`
	Cadence   time.Duration `yaml:"cadence"`
	MaxJitter time.Duration `yaml:"max_jitter"`
	Highlight time.Duration `yaml:"highlight"`
}

// DefaultsConfig seeds the settings of pages with nothing persisted.
type DefaultsConfig struct {
	ClickDelay     *time.Duration `yaml:"click_delay"`
	MarkAsComplete *bool          `yaml:"mark_as_complete"`
}

// Settings resolves the defaults.
func (d DefaultsConfig) Settings() state.Settings {
	s := state.DefaultSettings()
	if d.ClickDelay != nil {
		s.ClickDelay = d.ClickDelay.Milliseconds()
	}
	if d.MarkAsComplete != nil {
		s.MarkAsComplete = *d.MarkAsComplete
	}
	return s
}

// GateConfig toggles the clickability heuristics. Unset means on.
type GateConfig struct {
	RejectOffscreen    *bool `yaml:"reject_offscreen"`
	RequireFullOpacity *bool `yaml:"require_full_opacity"`
}

// Heuristics resolves the gate configuration.
func (g GateConfig) Heuristics() gate.Heuristics {
	h := gate.DefaultHeuristics()
	if g.RejectOffscreen != nil {
		h.RejectOffscreen = *g.RejectOffscreen
	}
	if g.RequireFullOpacity != nil {
		h.RequireFullOpacity = *g.RequireFullOpacity
	}
	return h
}

// ProfilesConfig replaces the built-in classifier profiles.
type ProfilesConfig struct {
	Complete *classify.Profile `yaml:"complete"`
	Next     *classify.Profile `yaml:"next"`
}

// CompleteProfile returns the configured or built-in complete profile.
func (p ProfilesConfig) CompleteProfile() classify.Profile {
	if p.Complete != nil {
		prof := *p.Complete
		prof.Kind = classify.KindComplete
		if prof.Label == "" {
			prof.Label = classify.CompleteProfile().Label
		}
		return prof
	}
	return classify.CompleteProfile()
}

// NextProfile returns the configured or built-in next profile.
func (p ProfilesConfig) NextProfile() classify.Profile {
	if p.Next != nil {
		prof := *p.Next
		prof.Kind = classify.KindNext
		if prof.Label == "" {
			prof.Label = classify.NextProfile().Label
		}
		return prof
	}
	return classify.NextProfile()
}

// StoreConfig locates the state database.
type StoreConfig struct {
	Path          string        `yaml:"path"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	// WatchDebounce waits for external writes to settle before reloading.
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	// BusyTimeout is how long a write waits for a lock held by another
	// process (the CLI in --db mode).
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// HTTPConfig controls the control API listener. Empty Addr disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// AllowedOrigins may open the event websocket besides the API's own host.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = browser.ModeHeadless
	}
	if c.Loop.WarmUp <= 0 {
		c.Loop.WarmUp = time.Second
	}
	if c.Loop.Cadence <= 0 {
		c.Loop.Cadence = 5 * time.Second
	}
	if c.Loop.MaxJitter <= 0 {
		c.Loop.MaxJitter = 3 * time.Second
	}
	if c.Loop.Highlight <= 0 {
		c.Loop.Highlight = 2 * time.Second
	}
	if c.Store.Path == "" {
		c.Store.Path = "coursepilot.db"
	}
	if c.Store.WatchInterval <= 0 {
		c.Store.WatchInterval = time.Second
	}
	if c.Store.BusyTimeout <= 0 {
		c.Store.BusyTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks pages and settings.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Pages))
	for i, p := range c.Pages {
		if p.ID == "" || p.URL == "" {
			return fmt.Errorf("config: page %d: id and url are required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate page id %q", p.ID)
		}
		seen[p.ID] = true
	}
	if err := c.Defaults.Settings().Validate(); err != nil {
		return fmt.Errorf("config: defaults: %w", err)
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink needs a url")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}

// ApplyEnv overrides fields from COURSEPILOT_* variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.HTTP.Addr, "COURSEPILOT_HTTP_ADDR")
	set(&c.Store.Path, "COURSEPILOT_DB")
	set(&c.Browser.RemoteURL, "COURSEPILOT_CHROME_URL")
	set(&c.Browser.Bin, "COURSEPILOT_CHROME_BIN")
	set(&c.Browser.UserDataDir, "COURSEPILOT_USER_DATA_DIR")
	set(&c.Log.Level, "COURSEPILOT_LOG_LEVEL")
	if v := getenv("COURSEPILOT_BROWSER_MODE"); v != "" {
		c.Browser.Mode = browser.Mode(v)
	}
}
