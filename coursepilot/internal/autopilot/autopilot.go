// CLAUDE:SUMMARY Activation loop for one page: IDLE/MONITORING state machine, scan ticks with the minimum-delay gate, classify, clear, click, record, follow-up rescan.
// Package autopilot drives the scan-and-activate loop of one page. A
// Controller is not safe for concurrent use: every method and every task it
// schedules must run on the goroutine of its Scheduler.
package autopilot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/classify"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/dom"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/gate"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/sched"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/store"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

// Status strings pushed to observers.
const (
	StatusStarted  = "Monitoring started"
	StatusStopped  = "Monitoring stopped"
	StatusNoTarget = "No buttons found"
)

// Store persists what the loop mutates.
type Store interface {
	SaveEnabled(ctx context.Context, enabled bool) error
	SaveSettings(ctx context.Context, s state.Settings) error
	SaveStats(ctx context.Context, s state.Stats) error
}

// Notifier pushes to whoever observes the page. Delivery is best-effort.
type Notifier interface {
	Notify(status string)
	NotifyStats(stats state.Stats)
}

// TickResult is the outcome of one scan.
type TickResult int

const (
	TickIdle TickResult = iota
	TickWaiting
	TickActivated
	TickNoTarget
	TickFailed
)

func (r TickResult) String() string {
	switch r {
	case TickIdle:
		return "idle"
	case TickWaiting:
		return "waiting"
	case TickActivated:
		return "activated"
	case TickNoTarget:
		return "no-target"
	case TickFailed:
		return "failed"
	}
	return fmt.Sprintf("TickResult(%d)", int(r))
}

// Config holds the loop timings.
type Config struct {
	WarmUp    time.Duration
	Cadence   time.Duration
	MaxJitter time.Duration
	Highlight time.Duration
	// Rand returns a value in [0, n). Default: math/rand/v2.
	Rand func(n int64) int64
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		WarmUp:    time.Second,
		Cadence:   5 * time.Second,
		MaxJitter: 3 * time.Second,
		Highlight: 2 * time.Second,
	}
}

func (c *Config) defaults() {
	d := DefaultConfig()
	if c.WarmUp <= 0 {
		c.WarmUp = d.WarmUp
	}
	if c.Cadence <= 0 {
		c.Cadence = d.Cadence
	}
	if c.MaxJitter < 0 {
		c.MaxJitter = 0
	}
	if c.Highlight <= 0 {
		c.Highlight = d.Highlight
	}
	if c.Rand == nil {
		c.Rand = rand.Int64N
	}
}

// Deps are the collaborators of a Controller.
type Deps struct {
	PageID    string
	Scheduler *sched.Scheduler
	Document  dom.Document
	Complete  *classify.Classifier
	Next      *classify.Classifier
	Gate      *gate.Gate
	Store     Store
	Notifier  Notifier
	Config    Config
	Logger    *slog.Logger
}

// Controller is the per-page loop state.
type Controller struct {
	page     string
	sched    *sched.Scheduler
	doc      dom.Document
	complete *classify.Classifier
	next     *classify.Classifier
	gate     *gate.Gate
	store    Store
	notify   Notifier
	cfg      Config
	logger   *slog.Logger

	mode      state.Mode
	settings  state.Settings
	stats     state.Stats
	lastClick time.Time

	warmup   sched.TaskID
	cadence  sched.TaskID
	followUp sched.TaskID
}

// New creates an idle Controller with default settings.
func New(d Deps) *Controller {
	d.Config.defaults()
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Complete == nil {
		d.Complete = classify.New(classify.CompleteProfile(), d.Logger)
	}
	if d.Next == nil {
		d.Next = classify.New(classify.NextProfile(), d.Logger)
	}
	if d.Gate == nil {
		d.Gate = gate.New(gate.DefaultHeuristics(), d.Logger)
	}
	return &Controller{
		page:     d.PageID,
		sched:    d.Scheduler,
		doc:      d.Document,
		complete: d.Complete,
		next:     d.Next,
		gate:     d.Gate,
		store:    d.Store,
		notify:   d.Notifier,
		cfg:      d.Config,
		logger:   d.Logger.With("page", d.PageID),
		mode:     state.Idle,
		settings: state.DefaultSettings(),
	}
}

// Restore loads persisted settings and stats. The last click instant is
// taken from the stats so the minimum delay survives restarts.
func (c *Controller) Restore(snap state.Snapshot) {
	c.settings = snap.Settings
	c.stats = snap.Stats
	c.lastClick = snap.Stats.LastClick()
}

// SetDocument rebinds the page document, e.g. after the tab was reopened.
func (c *Controller) SetDocument(doc dom.Document) { c.doc = doc }

// Mode reports IDLE or MONITORING.
func (c *Controller) Mode() state.Mode { return c.mode }

// Settings returns the current settings.
func (c *Controller) Settings() state.Settings { return c.settings }

// Stats returns the current stats.
func (c *Controller) Stats() state.Stats { return c.stats }

// Enable enters MONITORING: a warm-up scan and the recurring scan are
// armed. Enabling while monitoring restarts both timers.
func (c *Controller) Enable(ctx context.Context) {
	c.cancelTasks()
	c.mode = state.Monitoring
	c.warmup = c.sched.After(c.cfg.WarmUp, func() {
		c.warmup = 0
		c.Tick(ctx)
	})
	c.cadence = c.sched.Every(c.cfg.Cadence, func() { c.Tick(ctx) })
	c.logger.Info("autopilot: monitoring started")
	c.push(StatusStarted)
}

// Disable returns to IDLE and cancels every pending scan.
func (c *Controller) Disable() {
	wasMonitoring := c.mode == state.Monitoring
	c.cancelTasks()
	c.mode = state.Idle
	if wasMonitoring {
		c.logger.Info("autopilot: monitoring stopped")
		c.push(StatusStopped)
	}
}

// Toggle persists the flag then enables or disables.
func (c *Controller) Toggle(ctx context.Context, enabled bool) error {
	if err := c.store.SaveEnabled(ctx, enabled); err != nil {
		return err
	}
	if enabled {
		c.Enable(ctx)
	} else {
		c.Disable()
	}
	return nil
}

func (c *Controller) cancelTasks() {
	for _, id := range []*sched.TaskID{&c.warmup, &c.cadence, &c.followUp} {
		if *id != 0 {
			c.sched.Cancel(*id)
			*id = 0
		}
	}
}

// Tick runs one scan.
func (c *Controller) Tick(ctx context.Context) TickResult {
	if c.mode != state.Monitoring {
		return TickIdle
	}
	now := c.sched.Now()
	if wait := c.remaining(now); wait > 0 {
		c.push(fmt.Sprintf("Waiting %ds...", ceilSeconds(wait)))
		return TickWaiting
	}
	if c.doc == nil {
		c.push(StatusNoTarget)
		return TickNoTarget
	}

	targets := make([]*classify.Classifier, 0, 2)
	if c.settings.MarkAsComplete {
		targets = append(targets, c.complete)
	}
	targets = append(targets, c.next)

	for _, cl := range targets {
		m, ok := cl.Find(ctx, c.doc)
		if !ok {
			continue
		}
		el, ok := c.gate.Clear(ctx, m.Element)
		if !ok {
			continue
		}
		return c.activate(ctx, el, cl.Profile().Label, now)
	}

	c.push(StatusNoTarget)
	return TickNoTarget
}

// ForceScan runs a scan out of band. The minimum delay still applies and
// an idle loop does nothing.
func (c *Controller) ForceScan(ctx context.Context) TickResult {
	return c.Tick(ctx)
}

func (c *Controller) activate(ctx context.Context, el dom.Element, label string, now time.Time) TickResult {
	if err := el.Focus(ctx); err != nil {
		c.logger.Debug("autopilot: focus", "label", label, "error", err)
	}
	if err := el.Click(ctx); err != nil {
		return c.fail(err)
	}

	c.lastClick = now
	c.stats = c.stats.Record(label+" button clicked", now)
	if err := c.store.SaveStats(ctx, c.stats); err != nil {
		c.logger.Warn("autopilot: persist stats", "error", err)
	}
	c.logger.Info("autopilot: clicked", "label", label, "clicks_today", c.stats.ClicksToday)
	c.push("Clicked " + label)
	if c.notify != nil {
		c.notify.NotifyStats(c.stats)
	}

	if err := el.Highlight(ctx, label); err == nil {
		c.sched.After(c.cfg.Highlight, func() { el.Unhighlight(ctx) })
	}

	if c.followUp != 0 {
		c.sched.Cancel(c.followUp)
	}
	var jitter time.Duration
	if c.cfg.MaxJitter > 0 {
		jitter = time.Duration(c.cfg.Rand(int64(c.cfg.MaxJitter)))
	}
	c.followUp = c.sched.After(c.settings.Delay()+jitter, func() {
		c.followUp = 0
		c.Tick(ctx)
	})
	return TickActivated
}

func (c *Controller) fail(err error) TickResult {
	c.logger.Warn("autopilot: activation failed", "error", err)
	c.push("Error: " + err.Error())
	return TickFailed
}

// UpdateSettings resolves and persists a partial update.
func (c *Controller) UpdateSettings(ctx context.Context, u state.SettingsUpdate) (state.Settings, error) {
	next, err := u.Apply(c.settings)
	if err != nil {
		return c.settings, err
	}
	if err := c.store.SaveSettings(ctx, next); err != nil {
		return c.settings, err
	}
	c.settings = next
	return next, nil
}

// ApplyExternal folds in state written by another process.
func (c *Controller) ApplyExternal(ctx context.Context, ch store.Change) {
	if ch.Settings != nil {
		c.settings = *ch.Settings
	}
	if ch.Stats != nil {
		c.stats = *ch.Stats
		c.lastClick = ch.Stats.LastClick()
	}
	if ch.Enabled != nil && *ch.Enabled != (c.mode == state.Monitoring) {
		if *ch.Enabled {
			c.Enable(ctx)
		} else {
			c.Disable()
		}
	}
}

// Status builds the status report.
func (c *Controller) Status() state.Report {
	now := c.sched.Now()
	last := "Never"
	if !c.lastClick.IsZero() {
		last = c.lastClick.Format(state.ClockLayout)
	}
	return state.Report{
		PageID:           c.page,
		Enabled:          c.mode == state.Monitoring,
		State:            c.mode,
		SecondsUntilNext: ceilSeconds(c.remaining(now)),
		Settings:         c.settings,
		LastClick:        last,
		Stats:            c.stats,
	}
}

func (c *Controller) remaining(now time.Time) time.Duration {
	if c.lastClick.IsZero() {
		return 0
	}
	return c.settings.Delay() - now.Sub(c.lastClick)
}

func (c *Controller) push(status string) {
	if c.notify != nil {
		c.notify.Notify(status)
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
