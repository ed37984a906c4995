package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/browser"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/classify"
)

const sample = `
browser:
  mode: visible
  user_data_dir: /home/me/.config/coursepilot-chrome
  resource_blocking: [images, fonts]
  recycle_interval: 2h
pages:
  - id: algebra
    url: https://lms.example.edu/course/42
    start_enabled: true
  - id: history
    url: https://lms.example.edu/course/7
loop:
  cadence: 3s
defaults:
  click_delay: 15s
  mark_as_complete: false
gate:
  reject_offscreen: false
profiles:
  next:
    text_keywords: [weiter, next]
    selectors: [".weiter"]
store:
  path: /var/lib/coursepilot/state.db
  watch_debounce: 250ms
  busy_timeout: 3s
http:
  addr: 127.0.0.1:8787
sinks:
  - type: stdout
  - type: webhook
    url: https://hooks.example.com/cp
log:
  level: debug
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Browser.Mode != browser.ModeVisible || cfg.Browser.RecycleInterval != 2*time.Hour {
		t.Fatalf("browser: %+v", cfg.Browser)
	}
	if len(cfg.Pages) != 2 || cfg.Pages[0].StartEnabled == nil || !*cfg.Pages[0].StartEnabled || cfg.Pages[1].StartEnabled != nil {
		t.Fatalf("pages: %+v", cfg.Pages)
	}
	if cfg.Store.WatchDebounce != 250*time.Millisecond || cfg.Store.BusyTimeout != 3*time.Second {
		t.Fatalf("store: %+v", cfg.Store)
	}
	if cfg.Loop.Cadence != 3*time.Second || cfg.Loop.WarmUp != time.Second || cfg.Loop.MaxJitter != 3*time.Second {
		t.Fatalf("loop: %+v", cfg.Loop)
	}

	s := cfg.Defaults.Settings()
	if s.ClickDelay != 15000 || s.MarkAsComplete {
		t.Fatalf("defaults: %+v", s)
	}

	h := cfg.Gate.Heuristics()
	if h.RejectOffscreen || !h.RequireFullOpacity {
		t.Fatalf("gate: %+v", h)
	}

	next := cfg.Profiles.NextProfile()
	if next.Kind != classify.KindNext || next.Label != "Next" || len(next.Selectors) != 1 {
		t.Fatalf("next profile: %+v", next)
	}
	if cfg.Profiles.CompleteProfile().Label != "Mark as Complete" {
		t.Fatal("complete profile should be the built-in one")
	}

	if cfg.HTTP.Addr != "127.0.0.1:8787" || cfg.Store.Path != "/var/lib/coursepilot/state.db" || cfg.Log.Level != "debug" {
		t.Fatalf("misc: %+v %+v %+v", cfg.HTTP, cfg.Store, cfg.Log)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Store.Path != "coursepilot.db" || cfg.Store.WatchInterval != time.Second || cfg.Store.BusyTimeout != 10*time.Second {
		t.Fatalf("store: %+v", cfg.Store)
	}
	if cfg.Defaults.Settings().ClickDelay != 10000 || !cfg.Defaults.Settings().MarkAsComplete {
		t.Fatalf("settings: %+v", cfg.Defaults.Settings())
	}
	if h := cfg.Gate.Heuristics(); !h.RejectOffscreen || !h.RequireFullOpacity {
		t.Fatalf("gate: %+v", h)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing url", "pages: [{id: a}]", "id and url are required"},
		{"duplicate", "pages: [{id: a, url: 'http://x'}, {id: a, url: 'http://y'}]", "duplicate page id"},
		{"negative delay", "defaults: {click_delay: -1s}", "defaults"},
		{"webhook url", "sinks: [{type: webhook}]", "needs a url"},
		{"bad sink", "sinks: [{type: nats}]", "unknown sink type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coursepilot.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Pages) != 2 {
		t.Fatalf("pages: %d", len(cfg.Pages))
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"COURSEPILOT_HTTP_ADDR":    ":9000",
		"COURSEPILOT_DB":           "/tmp/cp.db",
		"COURSEPILOT_CHROME_URL":   "ws://127.0.0.1:9222/devtools/browser/x",
		"COURSEPILOT_BROWSER_MODE": "headful",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.HTTP.Addr != ":9000" || cfg.Store.Path != "/tmp/cp.db" {
		t.Fatalf("env: %+v %+v", cfg.HTTP, cfg.Store)
	}
	if cfg.Browser.RemoteURL == "" || cfg.Browser.Mode != browser.ModeHeadful {
		t.Fatalf("browser: %+v", cfg.Browser)
	}
	if cfg.Log.Level != "info" {
		t.Fatal("unset variables must not override")
	}
}
