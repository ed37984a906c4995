package coursepilot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/coursepilot/coursepilot/internal/store"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
	"github.com/hazyhaar/coursepilot/dbopen"

	_ "modernc.org/sqlite"
)

// StateDB edits persisted page state directly, without a running Pilot.
// A Pilot sharing the same file picks the changes up through its watcher.
type StateDB struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStateDB opens (and if needed creates) the state database at path.
func OpenStateDB(path string, logger *slog.Logger) (*StateDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := dbopen.Open(path, dbopen.WithSchema(store.Schema), dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("coursepilot: open state db: %w", err)
	}
	return &StateDB{db: db, logger: logger}, nil
}

// Close closes the database.
func (d *StateDB) Close() error { return d.db.Close() }

// Pages lists page ids with persisted state.
func (d *StateDB) Pages(ctx context.Context) ([]string, error) {
	return store.Scopes(ctx, d.db)
}

// Snapshot reads the persisted state of a page, defaults included.
func (d *StateDB) Snapshot(ctx context.Context, id string) (state.Snapshot, error) {
	return store.New(d.db, id, d.logger).LoadInitial(ctx)
}

// SetEnabled writes the monitoring flag of a page.
func (d *StateDB) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return store.New(d.db, id, d.logger).SaveEnabled(ctx, enabled)
}

// UpdateSettings resolves u over the persisted settings and writes the result.
func (d *StateDB) UpdateSettings(ctx context.Context, id string, u state.SettingsUpdate) (state.Settings, error) {
	st := store.New(d.db, id, d.logger)
	snap, err := st.LoadInitial(ctx)
	if err != nil {
		return state.Settings{}, err
	}
	next, err := u.Apply(snap.Settings)
	if err != nil {
		return snap.Settings, err
	}
	if err := st.SaveSettings(ctx, next); err != nil {
		return snap.Settings, err
	}
	return next, nil
}
