// CLAUDE:SUMMARY Pilot orchestrator: owns the state DB, browser manager, relay and one scheduler+controller session per page; exposes the status/toggle/settings/scan commands.
// Package coursepilot drives course pages in Chrome: it scans each page for
// "mark as complete" and "next" controls, makes them clickable when the page
// disables them, activates them no faster than the configured delay and
// records statistics.
//
// Each page gets its own single-goroutine scheduler. Commands coming from
// HTTP, MCP or the connectivity router are submitted to that goroutine, so
// the activation loop never runs concurrently with itself.
package coursepilot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/autopilot"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/browser"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/classify"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/dom"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/gate"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/sched"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/sink"
	"github.com/hazyhaar/coursepilot/coursepilot/internal/store"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
	"github.com/hazyhaar/coursepilot/dbopen"
	"github.com/hazyhaar/coursepilot/idgen"
	"github.com/hazyhaar/coursepilot/watch"
)

// StatusReady is pushed once a page is opened and its state restored.
const StatusReady = "Ready"

var (
	// ErrNotStarted is returned by page commands before Start.
	ErrNotStarted = errors.New("coursepilot: pilot not started")
	// ErrPageExists is returned when opening a page id twice.
	ErrPageExists = errors.New("coursepilot: page already open")
	// ErrPageNotFound is returned when a command targets an unknown page id.
	ErrPageNotFound = state.ErrPageNotFound
	// ErrInvalidSettings is returned when a settings update is out of range.
	ErrInvalidSettings = state.ErrInvalidSettings
)

// Document is the view of a page the classifier and the gate work on.
type Document = dom.Document

// Opener opens the document of a page. The returned func releases it.
type Opener func(ctx context.Context, page PageConfig) (Document, func() error, error)

// Clock is the time source of every page scheduler.
type Clock = sched.Clock

// Option configures a Pilot.
type Option func(*Pilot)

// WithDB uses an existing database instead of opening cfg.Store.Path.
// The schema is applied on Start; the caller keeps ownership.
func WithDB(db *sql.DB) Option { return func(p *Pilot) { p.db = db } }

// WithOpener replaces the Chrome-backed opener. No browser is launched.
func WithOpener(o Opener) Option { return func(p *Pilot) { p.opener = o } }

// WithClock sets the clock used by page schedulers.
func WithClock(c Clock) Option { return func(p *Pilot) { p.clock = c } }

// WithSinks adds event sinks next to those built from the config.
func WithSinks(s ...Sink) Option { return func(p *Pilot) { p.extra = append(p.extra, s...) } }

// Pilot manages the browser, the state store and one session per page.
type Pilot struct {
	cfg    *Config
	logger *slog.Logger

	db     *sql.DB
	ownDB  bool
	opener Opener
	mgr    *browser.Manager
	clock  Clock
	extra  []Sink

	hub   *sink.Hub
	relay *sink.Relay

	complete classify.Profile
	next     classify.Profile
	pageIDs  idgen.Generator

	mu       sync.Mutex
	sessions map[string]*session
	opening  map[string]bool
	stopped  bool
	runCtx   context.Context
	cancel   context.CancelFunc
}

// session is one open page. Everything in ctrl runs on sched's goroutine.
type session struct {
	page     PageConfig
	sched    *sched.Scheduler
	ctrl     *autopilot.Controller
	store    *store.Store
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	closeMu  sync.Mutex
	closeDoc func() error
}

// New creates a Pilot from configuration. Nothing runs until Start.
func New(cfg *Config, logger *slog.Logger, opts ...Option) *Pilot {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pilot{
		cfg:      cfg,
		logger:   logger,
		clock:    sched.System,
		hub:      sink.NewHub(logger, cfg.HTTP.AllowedOrigins...),
		complete: cfg.Profiles.CompleteProfile(),
		next:     cfg.Profiles.NextProfile(),
		pageIDs:  idgen.Prefixed("page_", idgen.UUIDv7()),
		sessions: make(map[string]*session),
		opening:  make(map[string]bool),
	}
	for _, o := range opts {
		o(p)
	}
	sinks := append([]Sink{p.hub}, SinksFromConfig(cfg, logger)...)
	sinks = append(sinks, p.extra...)
	p.relay = sink.NewRelay(sink.NewRouter(logger, sinks...), sink.WithRelayLogger(logger))
	return p
}

// Start opens the state database, launches the browser unless an Opener was
// given, and opens every configured page. A page that fails to open is
// logged and skipped.
func (p *Pilot) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.runCtx != nil {
		p.mu.Unlock()
		return fmt.Errorf("coursepilot: already started")
	}
	if p.db == nil {
		db, err := dbopen.Open(p.cfg.Store.Path,
			dbopen.WithSchema(store.Schema),
			dbopen.WithMkdirAll(),
			dbopen.WithBusyTimeout(int(p.cfg.Store.BusyTimeout.Milliseconds())))
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("coursepilot: open store: %w", err)
		}
		p.db, p.ownDB = db, true
	} else if _, err := p.db.ExecContext(ctx, store.Schema); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("coursepilot: apply schema: %w", err)
	}

	if p.opener == nil {
		cfg := p.cfg.Browser
		cfg.Logger = p.logger
		p.mgr = browser.NewManager(cfg)
		if _, err := p.mgr.Start(ctx); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("coursepilot: start browser: %w", err)
		}
		p.opener = p.openTab
	}
	p.runCtx, p.cancel = context.WithCancel(ctx)
	runCtx := p.runCtx
	p.mu.Unlock()

	go p.relay.Run(runCtx)

	if p.mgr != nil {
		p.mgr.SetRecycleCallback(&browser.RecycleCallback{
			AfterRecycle: func(*rod.Browser) { p.reopenAll(runCtx) },
		})
	}

	for _, page := range p.cfg.Pages {
		if _, err := p.OpenPage(ctx, page); err != nil {
			p.logger.Error("coursepilot: failed to open page", "page", page.ID, "url", page.URL, "error", err)
		}
	}
	return nil
}

func (p *Pilot) openTab(ctx context.Context, page PageConfig) (Document, func() error, error) {
	tab, err := browser.OpenTab(ctx, p.mgr, page.URL, page.ID)
	if err != nil {
		return nil, nil, err
	}
	return tab.Document(), tab.Close, nil
}

// OpenPage opens a page, restores its persisted state and starts its loop.
// An empty ID gets a generated one, which is returned. The id is reserved
// while the document loads; other pages stay reachable meanwhile.
func (p *Pilot) OpenPage(ctx context.Context, page PageConfig) (string, error) {
	if page.URL == "" {
		return "", fmt.Errorf("coursepilot: open page: url is required")
	}
	if page.ID == "" {
		page.ID = p.pageIDs()
	}

	runCtx, err := p.reserve(page.ID)
	if err != nil {
		return "", err
	}
	defer p.release(page.ID)

	logger := p.logger.With("page", page.ID)
	st := store.New(p.db, page.ID, logger).WithDefaults(p.cfg.Defaults.Settings())
	snap, err := st.LoadInitial(ctx)
	if err != nil {
		return "", err
	}

	doc, closeDoc, err := p.opener(ctx, page)
	if err != nil {
		return "", fmt.Errorf("coursepilot: open %s: %w", page.ID, err)
	}

	s := sched.New(sched.WithClock(p.clock), sched.WithLogger(logger))
	ctrl := autopilot.New(autopilot.Deps{
		PageID:    page.ID,
		Scheduler: s,
		Document:  doc,
		Complete:  classify.New(p.complete, logger),
		Next:      classify.New(p.next, logger),
		Gate:      gate.New(p.cfg.Gate.Heuristics(), logger),
		Store:     st,
		Notifier:  p.relay.ForPage(page.ID),
		Config: autopilot.Config{
			WarmUp:    p.cfg.Loop.WarmUp,
			Cadence:   p.cfg.Loop.Cadence,
			MaxJitter: p.cfg.Loop.MaxJitter,
			Highlight: p.cfg.Loop.Highlight,
		},
		Logger: logger,
	})
	ctrl.Restore(snap)

	enabled := snap.Enabled
	if page.StartEnabled != nil && *page.StartEnabled != enabled {
		enabled = *page.StartEnabled
		if err := st.SaveEnabled(ctx, enabled); err != nil {
			logger.Warn("coursepilot: persist start flag", "error", err)
		}
	}

	sessCtx, cancel := context.WithCancel(runCtx)
	sess := &session{
		page:     page,
		sched:    s,
		ctrl:     ctrl,
		store:    st,
		ctx:      sessCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		closeDoc: closeDoc,
	}
	go func() {
		defer close(sess.done)
		s.Run(sessCtx)
	}()

	p.relay.Status(page.ID, StatusReady)
	if enabled {
		if err := s.Do(ctx, func() { ctrl.Enable(sessCtx) }); err != nil {
			cancel()
			<-sess.done
			closeDoc()
			return "", err
		}
	}

	go st.Watch(sessCtx, watch.Options{
		Interval: p.cfg.Store.WatchInterval,
		Debounce: p.cfg.Store.WatchDebounce,
		Logger:   logger,
	}, func(ch store.Change) {
		if err := s.Do(sessCtx, func() { ctrl.ApplyExternal(sessCtx, ch) }); err != nil && sessCtx.Err() == nil {
			logger.Warn("coursepilot: apply external change", "error", err)
		}
	})

	p.mu.Lock()
	stopped := p.stopped
	if !stopped {
		p.sessions[page.ID] = sess
	}
	p.mu.Unlock()
	if stopped {
		p.shutdown(context.Background(), sess)
		return "", ErrNotStarted
	}
	logger.Info("coursepilot: page open", "url", page.URL, "enabled", enabled)
	return page.ID, nil
}

// reserve claims id for an OpenPage in progress.
func (p *Pilot) reserve(id string) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runCtx == nil || p.stopped {
		return nil, ErrNotStarted
	}
	if _, ok := p.sessions[id]; ok || p.opening[id] {
		return nil, fmt.Errorf("%w: %s", ErrPageExists, id)
	}
	p.opening[id] = true
	return p.runCtx, nil
}

func (p *Pilot) release(id string) {
	p.mu.Lock()
	delete(p.opening, id)
	p.mu.Unlock()
}

// ClosePage stops the loop of a page and closes its document. The
// persisted state is left untouched.
func (p *Pilot) ClosePage(ctx context.Context, id string) error {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	if ok {
		delete(p.sessions, id)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	p.shutdown(ctx, sess)
	return nil
}

func (p *Pilot) shutdown(ctx context.Context, sess *session) {
	_ = sess.sched.Do(ctx, func() { sess.ctrl.Disable() })
	sess.cancel()
	<-sess.done

	sess.closeMu.Lock()
	defer sess.closeMu.Unlock()
	if sess.closeDoc != nil {
		if err := sess.closeDoc(); err != nil {
			p.logger.Debug("coursepilot: close document", "page", sess.page.ID, "error", err)
		}
		sess.closeDoc = nil
	}
	p.logger.Info("coursepilot: page closed", "page", sess.page.ID)
}

// reopenAll gives every session a fresh document after Chrome was recycled.
func (p *Pilot) reopenAll(ctx context.Context) {
	p.mu.Lock()
	sessions := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	for _, sess := range sessions {
		doc, closeDoc, err := p.opener(ctx, sess.page)
		if err != nil {
			p.logger.Error("coursepilot: reopen page failed", "page", sess.page.ID, "error", err)
			continue
		}
		if err := sess.sched.Do(ctx, func() { sess.ctrl.SetDocument(doc) }); err != nil {
			closeDoc()
			continue
		}
		sess.closeMu.Lock()
		sess.closeDoc = closeDoc
		sess.closeMu.Unlock()
		p.logger.Info("coursepilot: page reopened", "page", sess.page.ID)
	}
}

func (p *Pilot) session(id string) (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runCtx == nil {
		return nil, ErrNotStarted
	}
	s, ok := p.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	return s, nil
}

// SetMonitoring persists the monitoring flag of a page and starts or stops
// its loop.
func (p *Pilot) SetMonitoring(ctx context.Context, id string, enabled bool) error {
	sess, err := p.session(id)
	if err != nil {
		return err
	}
	var toggleErr error
	if err := sess.sched.Do(ctx, func() { toggleErr = sess.ctrl.Toggle(sess.ctx, enabled) }); err != nil {
		return err
	}
	return toggleErr
}

// Status reports the state of a page.
func (p *Pilot) Status(ctx context.Context, id string) (state.Report, error) {
	sess, err := p.session(id)
	if err != nil {
		return state.Report{}, err
	}
	var r state.Report
	if err := sess.sched.Do(ctx, func() { r = sess.ctrl.Status() }); err != nil {
		return state.Report{}, err
	}
	return r, nil
}

// UpdateSettings applies a partial settings change and returns the result.
// Nothing changes when the update is invalid or cannot be persisted.
func (p *Pilot) UpdateSettings(ctx context.Context, id string, u state.SettingsUpdate) (state.Settings, error) {
	sess, err := p.session(id)
	if err != nil {
		return state.Settings{}, err
	}
	var (
		out    state.Settings
		updErr error
	)
	if err := sess.sched.Do(ctx, func() { out, updErr = sess.ctrl.UpdateSettings(sess.ctx, u) }); err != nil {
		return state.Settings{}, err
	}
	return out, updErr
}

// ForceScan runs one scan immediately and returns its outcome: idle,
// waiting, activated, no-target or failed.
func (p *Pilot) ForceScan(ctx context.Context, id string) (string, error) {
	sess, err := p.session(id)
	if err != nil {
		return "", err
	}
	var res autopilot.TickResult
	if err := sess.sched.Do(ctx, func() { res = sess.ctrl.ForceScan(sess.ctx) }); err != nil {
		return "", err
	}
	return res.String(), nil
}

// PageInfo summarises an open page.
type PageInfo struct {
	ID    string     `json:"id"`
	URL   string     `json:"url"`
	State state.Mode `json:"state"`
}

// Pages lists open pages sorted by id.
func (p *Pilot) Pages(ctx context.Context) []PageInfo {
	p.mu.Lock()
	sessions := make([]*session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	out := make([]PageInfo, 0, len(sessions))
	for _, s := range sessions {
		info := PageInfo{ID: s.page.ID, URL: s.page.URL, State: state.Idle}
		_ = s.sched.Do(ctx, func() { info.State = s.ctrl.Mode() })
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Observers returns the number of connected websocket observers.
func (p *Pilot) Observers() int { return p.hub.Observers() }

// Dropped returns how many events were dropped because the relay was full.
func (p *Pilot) Dropped() int64 { return p.relay.Dropped() }

// Stop closes every page, the relay, the browser and the database if the
// Pilot opened it.
func (p *Pilot) Stop() {
	p.mu.Lock()
	p.stopped = true
	sessions := p.sessions
	p.sessions = make(map[string]*session)
	cancel := p.cancel
	p.mu.Unlock()

	ctx := context.Background()
	for _, s := range sessions {
		p.shutdown(ctx, s)
	}
	if cancel != nil {
		cancel()
	}
	p.relay.Close()
	if p.mgr != nil {
		p.mgr.Close()
	}
	if p.ownDB && p.db != nil {
		p.db.Close()
	}
}
