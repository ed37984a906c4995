// Package watch polls an SQLite database for a version token and runs an
// action when it moves. coursepilot uses it to notice state written by
// another process (a second daemon, the CLI in --db mode, a manual edit).
//
//	w := watch.New(db, watch.Options{Interval: 200 * time.Millisecond})
//	go w.OnChange(ctx, func() error { return store.reload(ctx) })
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Querier is satisfied by *sql.DB and *sql.Conn.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ChangeDetector reads a version token. Two different values mean
// something changed in between.
type ChangeDetector func(ctx context.Context, q Querier) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// 0 fires on the poll that saw the change.
	Debounce time.Duration
	// Detector defaults to PragmaDataVersion.
	Detector ChangeDetector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = PragmaDataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a database and runs an action on change.
type Watcher struct {
	db      *sql.DB
	opts    Options
	version int64
}

// New creates a Watcher. Call OnChange to start polling.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// OnChange blocks until ctx is cancelled. When the detector reports a new
// version and the debounce window passes quietly, action runs. A failing
// action leaves the version untouched so the next poll retries it.
//
// data_version is per connection, so the detector runs on one connection
// held for the whole watch. A pool capped at one connection is queried
// directly instead, since holding its only connection would block every
// other caller.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	var q Querier = w.db
	if w.db.Stats().MaxOpenConnections != 1 {
		conn, err := w.db.Conn(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("watch: reserve connection", "error", err)
			}
			return
		}
		defer conn.Close()
		q = conn
	}

	if v, err := w.opts.Detector(ctx, q); err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version = v
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var debounce *time.Timer
	var debounceC <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case <-ticker.C:
			cur, err := w.opts.Detector(ctx, q)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("watch: version check failed", "error", err)
				}
				continue
			}
			if cur == w.version || cur == pending {
				continue
			}
			pending = cur
			if w.opts.Debounce <= 0 {
				w.fire(log, action, pending)
				pending = -1
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.opts.Debounce)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			if pending >= 0 {
				w.fire(log, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) fire(log *slog.Logger, action func() error, ver int64) {
	if err := action(); err != nil {
		log.Error("watch: action failed", "error", err, "version", ver)
		return
	}
	w.version = ver
	log.Debug("watch: change applied", "version", ver)
}

// PragmaDataVersion changes whenever another connection commits to the
// same database file.
func PragmaDataVersion(ctx context.Context, q Querier) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}
