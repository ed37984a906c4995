package sink

import (
	"context"

	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

// EventFunc receives events in-process.
type EventFunc func(ctx context.Context, ev state.Event) error

// Callback delivers events via a Go function call. Embedders use it to
// observe a pilot living in the same binary.
type Callback struct {
	fn EventFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn EventFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, ev state.Event) error {
	if c.fn != nil {
		return c.fn(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
