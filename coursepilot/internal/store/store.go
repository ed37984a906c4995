// CLAUDE:SUMMARY SQLite-backed per-page state (enabled flag, settings, stats) with upserts, defaults merge and external change detection.
// Package store persists the state of one page under a scope in the
// pilot_state table and reports changes written by anyone else.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/coursepilot/coursepilot/state"
	"github.com/hazyhaar/coursepilot/dbopen"
	"github.com/hazyhaar/coursepilot/watch"
)

// Schema creates the state table.
const Schema = `
CREATE TABLE IF NOT EXISTS pilot_state (
	scope      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (scope, key)
);`

// Persisted keys.
const (
	KeyEnabled  = "autoClickEnabled"
	KeySettings = "settings"
	KeyStats    = "stats"
)

// Change lists the fields that moved since the store last looked.
type Change struct {
	Enabled  *bool
	Settings *state.Settings
	Stats    *state.Stats
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return c.Enabled == nil && c.Settings == nil && c.Stats == nil
}

// Store reads and writes one scope. Its own writes are remembered so
// Refresh only reports what someone else wrote.
type Store struct {
	db       *sql.DB
	scope    string
	logger   *slog.Logger
	defaults state.Settings

	// ioMu orders each write with its known update against Refresh's
	// read and compare, so a row this store wrote is never reported back.
	ioMu sync.Mutex

	mu    sync.Mutex
	known state.Snapshot
}

// New creates a Store for scope. The schema must already exist.
func New(db *sql.DB, scope string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:       db,
		scope:    scope,
		logger:   logger,
		defaults: state.DefaultSettings(),
		known:    state.Snapshot{Settings: state.DefaultSettings()},
	}
}

// WithDefaults sets the settings used for a scope that has none persisted.
// An invalid value is ignored. Call before LoadInitial.
func (s *Store) WithDefaults(d state.Settings) *Store {
	if d.Validate() != nil {
		return s
	}
	s.mu.Lock()
	s.defaults = d
	s.known.Settings = d
	s.mu.Unlock()
	return s
}

// Scope returns the scope this store writes under.
func (s *Store) Scope() string { return s.scope }

// LoadInitial reads the persisted snapshot. Missing keys take their
// defaults; a partial settings object is merged over the defaults.
func (s *Store) LoadInitial(ctx context.Context) (state.Snapshot, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	snap, err := s.read(ctx)
	if err != nil {
		return state.Snapshot{}, err
	}
	s.mu.Lock()
	s.known = snap
	s.mu.Unlock()
	return snap, nil
}

func (s *Store) read(ctx context.Context) (state.Snapshot, error) {
	s.mu.Lock()
	defaults := s.defaults
	s.mu.Unlock()
	snap := state.Snapshot{Settings: defaults}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM pilot_state WHERE scope = ?`, s.scope)
	if err != nil {
		return snap, fmt.Errorf("store: load %s: %w", s.scope, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return snap, fmt.Errorf("store: scan: %w", err)
		}
		var target any
		switch key {
		case KeyEnabled:
			target = &snap.Enabled
		case KeySettings:
			target = &snap.Settings
		case KeyStats:
			target = &snap.Stats
		default:
			continue
		}
		if err := json.Unmarshal([]byte(value), target); err != nil {
			s.logger.Warn("store: ignoring corrupt value", "scope", s.scope, "key", key, "error", err)
		}
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("store: rows: %w", err)
	}
	if snap.Settings.ClickDelay < 0 {
		snap.Settings.ClickDelay = defaults.ClickDelay
	}
	return snap, nil
}

// SaveEnabled persists the monitoring flag.
func (s *Store) SaveEnabled(ctx context.Context, enabled bool) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if err := s.put(ctx, KeyEnabled, enabled); err != nil {
		return err
	}
	s.mu.Lock()
	s.known.Enabled = enabled
	s.mu.Unlock()
	return nil
}

// SaveSettings persists settings.
func (s *Store) SaveSettings(ctx context.Context, v state.Settings) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if err := s.put(ctx, KeySettings, v); err != nil {
		return err
	}
	s.mu.Lock()
	s.known.Settings = v
	s.mu.Unlock()
	return nil
}

// SaveStats persists stats.
func (s *Store) SaveStats(ctx context.Context, v state.Stats) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	if err := s.put(ctx, KeyStats, v); err != nil {
		return err
	}
	s.mu.Lock()
	s.known.Stats = v
	s.mu.Unlock()
	return nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", key, err)
	}
	_, err = dbopen.Exec(ctx, s.db, `
		INSERT INTO pilot_state (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.scope, key, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: save %s/%s: %w", s.scope, key, err)
	}
	return nil
}

// Refresh rereads the scope and returns what differs from the last values
// this store wrote or saw.
func (s *Store) Refresh(ctx context.Context) (Change, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	snap, err := s.read(ctx)
	if err != nil {
		return Change{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var c Change
	if snap.Enabled != s.known.Enabled {
		v := snap.Enabled
		c.Enabled = &v
	}
	if snap.Settings != s.known.Settings {
		v := snap.Settings
		c.Settings = &v
	}
	if snap.Stats != s.known.Stats {
		v := snap.Stats
		c.Stats = &v
	}
	s.known = snap
	return c, nil
}

// Watch polls for commits from other connections until ctx is done and
// calls handler with every non-empty Change.
func (s *Store) Watch(ctx context.Context, opts watch.Options, handler func(Change)) {
	if opts.Logger == nil {
		opts.Logger = s.logger
	}
	w := watch.New(s.db, opts)
	w.OnChange(ctx, func() error {
		c, err := s.Refresh(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if !c.Empty() {
			s.logger.Debug("store: external change", "scope", s.scope,
				"enabled", c.Enabled != nil, "settings", c.Settings != nil, "stats", c.Stats != nil)
			handler(c)
		}
		return nil
	})
}

// Scopes lists every scope with persisted state.
func Scopes(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT scope FROM pilot_state ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("store: scopes: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sc string
		if err := rows.Scan(&sc); err != nil {
			return nil, fmt.Errorf("store: scopes: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
