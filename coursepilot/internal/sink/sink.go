// Package sink defines where pilot events go: stdout, webhooks, in-process
// callbacks, websocket observers.
package sink

import (
	"context"

	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

// Sink delivers events to one backend.
type Sink interface {
	Send(ctx context.Context, ev state.Event) error
	Close() error
}
