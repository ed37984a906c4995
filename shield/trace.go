package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/coursepilot/idgen"
	"github.com/hazyhaar/coursepilot/kit"
)

var requestIDs = idgen.Prefixed("req_", idgen.UUIDv7())

// RequestID tags each request with an ID, reusing an incoming X-Request-ID
// when the caller supplies one. The ID goes into the context (kit), the
// response headers and a per-request logger stored under LoggerKey.
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 64 {
				id = requestIDs()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")

			reqLog := logger.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			ctx = context.WithValue(ctx, LoggerKey, reqLog)
			reqLog.Debug("shield: request", "remote_addr", r.RemoteAddr)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
