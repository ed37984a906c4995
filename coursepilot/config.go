package coursepilot

import (
	"github.com/hazyhaar/coursepilot/coursepilot/internal/browser"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/config"
)

// Config is the top-level coursepilot configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = browser.Config

// BrowserMode selects headless, headful (under Xvfb) or visible Chrome.
type BrowserMode = browser.Mode

const (
	BrowserHeadless = browser.ModeHeadless
	BrowserHeadful  = browser.ModeHeadful
	BrowserVisible  = browser.ModeVisible
)

// PageConfig defines a course page to drive.
type PageConfig = config.PageConfig

// LoopConfig holds the activation loop timings.
type LoopConfig = config.LoopConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes a YAML document.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}

// DefaultConfig returns a configuration with every default applied and no pages.
func DefaultConfig() *Config {
	return config.Default()
}
