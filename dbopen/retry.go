package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const maxRetries = 3

// IsBusy reports whether err is an SQLite BUSY or locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec executes a statement, retrying up to three times while the
// database reports BUSY.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	for i := range maxRetries {
		res, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !IsBusy(err) || i == maxRetries-1 {
			return nil, err
		}
		if werr := wait(ctx, i); werr != nil {
			return nil, werr
		}
	}
	return nil, fmt.Errorf("dbopen: exec: retries exhausted")
}

// wait sleeps 100ms, 200ms, ... for attempt i, or until ctx is done.
func wait(ctx context.Context, i int) error {
	t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("dbopen: retry cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
