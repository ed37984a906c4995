// Package connectivity dispatches named service calls either to an
// in-process handler or to a remote coursepilot daemon over HTTP. The
// daemon registers its control commands locally; the CLI registers the
// same names as remote routes and calls them without knowing the difference.
//
//	router := connectivity.New()
//	router.RegisterLocal("coursepilot_status", pilot.handleStatus)
//	resp, err := router.Call(ctx, "coursepilot_status", payload)
package connectivity

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Router maps service names to handlers. Safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	local  map[string]Handler
	remote map[string]Handler
	mws    []HandlerMiddleware
	logger *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every registered handler, outermost first.
func WithMiddleware(mws ...HandlerMiddleware) Option {
	return func(r *Router) { r.mws = append(r.mws, mws...) }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		local:  make(map[string]Handler),
		remote: make(map[string]Handler),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.local[service] = Chain(r.mws...)(h)
	r.mu.Unlock()
}

// RegisterRemote routes service to a handler built by a transport,
// typically HTTPClient. Remote routes take priority over local ones.
func (r *Router) RegisterRemote(service string, h Handler) {
	r.mu.Lock()
	r.remote[service] = Chain(r.mws...)(h)
	r.mu.Unlock()
}

// Call dispatches a call: remote route first, then local handler.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	remote, hasRemote := r.remote[service]
	local := r.local[service]
	r.mu.RUnlock()

	if hasRemote {
		r.logger.DebugContext(ctx, "connectivity: routing remote", "service", service)
		return remote(ctx, payload)
	}
	if local != nil {
		r.logger.DebugContext(ctx, "connectivity: routing local", "service", service)
		return local(ctx, payload)
	}
	return nil, &ErrServiceNotFound{Service: service}
}

// Services lists every routable service name, sorted.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.local)+len(r.remote))
	for s := range r.local {
		seen[s] = struct{}{}
	}
	for s := range r.remote {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
