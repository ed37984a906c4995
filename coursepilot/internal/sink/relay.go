package sink

import (
	"context"
	"html"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/coursepilot/coursepilot/state"
	"github.com/hazyhaar/coursepilot/idgen"
)

// Relay turns pushes into events and hands them to a Sink from its own
// goroutine. Pushes never block: when the queue is full the event is
// dropped, and delivery errors are swallowed.
type Relay struct {
	sink   Sink
	queue  chan state.Event
	ids    idgen.Generator
	policy *bluemonday.Policy
	logger *slog.Logger

	dropped atomic.Int64
	once    sync.Once
	done    chan struct{}
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithQueueSize sets the queue capacity. Default: 256.
func WithQueueSize(n int) RelayOption {
	return func(r *Relay) { r.queue = make(chan state.Event, n) }
}

// WithRelayLogger sets the logger.
func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = l }
}

// NewRelay creates a Relay delivering to s. Call Run to start delivery.
func NewRelay(s Sink, opts ...RelayOption) *Relay {
	r := &Relay{
		sink:   s,
		queue:  make(chan state.Event, 256),
		ids:    idgen.Prefixed("evt_", idgen.Default),
		policy: bluemonday.StrictPolicy(),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dropped counts events lost to a full queue.
func (r *Relay) Dropped() int64 { return r.dropped.Load() }

// Status pushes a status string for page. Markup is stripped; the rest
// stays plain text, quotes and ampersands included.
func (r *Relay) Status(pageID, status string) {
	r.push(state.Event{Type: state.EventStatus, PageID: pageID, Status: r.plain(status)})
}

func (r *Relay) plain(s string) string {
	return html.UnescapeString(r.policy.Sanitize(s))
}

// Stats pushes a stats snapshot for page.
func (r *Relay) Stats(pageID string, s state.Stats) {
	r.push(state.Event{Type: state.EventStats, PageID: pageID, Stats: &s})
}

// ForPage binds the relay to one page.
func (r *Relay) ForPage(pageID string) *PageRelay {
	return &PageRelay{relay: r, page: pageID}
}

func (r *Relay) push(ev state.Event) {
	ev.ID = r.ids()
	ev.Timestamp = time.Now().UnixMilli()
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Run delivers queued events until ctx is done or Close is called.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case ev := <-r.queue:
			if err := r.sink.Send(ctx, ev); err != nil {
				r.logger.Debug("relay: delivery failed", "type", ev.Type, "page", ev.PageID, "error", err)
			}
		}
	}
}

// Close stops delivery and closes the sink.
func (r *Relay) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.sink.Close()
	})
	return err
}

// PageRelay pushes for one page.
type PageRelay struct {
	relay *Relay
	page  string
}

func (p *PageRelay) Notify(status string)          { p.relay.Status(p.page, status) }
func (p *PageRelay) NotifyStats(stats state.Stats) { p.relay.Stats(p.page, stats) }
