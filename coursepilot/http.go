// CLAUDE:SUMMARY chi control API: health, page lifecycle, status/monitoring/settings/scan per page, websocket events, MCP streamable endpoint, connectivity /rpc bridge.
package coursepilot

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/coursepilot/connectivity"
	"github.com/hazyhaar/coursepilot/coursepilot/state"
	"github.com/hazyhaar/coursepilot/kit"
	"github.com/hazyhaar/coursepilot/shield"
)

// Handler returns the HTTP control API.
//
//	GET    /health
//	GET    /api/pages
//	POST   /api/pages                    {"id","url","startEnabled"}
//	DELETE /api/pages/{id}
//	GET    /api/pages/{id}/status
//	POST   /api/pages/{id}/monitoring    {"enabled": bool}
//	PUT    /api/pages/{id}/settings      {"delaySeconds", "markAsComplete"}
//	POST   /api/pages/{id}/scan
//	GET    /api/events[?page=id]         websocket push
//	       /mcp                          MCP streamable HTTP
//	GET    /rpc/                         connectivity service names
//	POST   /rpc/{service}                connectivity bridge (JSON only)
func (p *Pilot) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(p.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"pages":     len(p.Pages(r.Context())),
			"observers": p.Observers(),
			"dropped":   p.Dropped(),
		})
	})

	r.Route("/api/pages", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, p.Pages(r.Context()))
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID           string `json:"id"`
				URL          string `json:"url"`
				StartEnabled *bool  `json:"startEnabled"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, r, http.StatusBadRequest, err)
				return
			}
			if req.URL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
				return
			}
			id, err := p.OpenPage(r.Context(), PageConfig{ID: req.ID, URL: req.URL, StartEnabled: req.StartEnabled})
			if err != nil {
				writeError(w, r, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"id": id, "url": req.URL})
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Use(pageContext)

			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				if err := p.ClosePage(r.Context(), chi.URLParam(r, "id")); err != nil {
					writeError(w, r, statusFor(err), err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
			})

			r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
				rep, err := p.Status(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeError(w, r, statusFor(err), err)
					return
				}
				writeJSON(w, http.StatusOK, rep)
			})

			r.Post("/monitoring", func(w http.ResponseWriter, r *http.Request) {
				var req struct {
					Enabled *bool `json:"enabled"`
				}
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					writeError(w, r, http.StatusBadRequest, err)
					return
				}
				if req.Enabled == nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "enabled is required"})
					return
				}
				if err := p.SetMonitoring(r.Context(), chi.URLParam(r, "id"), *req.Enabled); err != nil {
					writeError(w, r, statusFor(err), err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]bool{"success": true, "enabled": *req.Enabled})
			})

			r.Put("/settings", func(w http.ResponseWriter, r *http.Request) {
				var u state.SettingsUpdate
				if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
					writeError(w, r, http.StatusBadRequest, err)
					return
				}
				s, err := p.UpdateSettings(r.Context(), chi.URLParam(r, "id"), u)
				if err != nil {
					writeError(w, r, statusFor(err), err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": s})
			})

			r.Post("/scan", func(w http.ResponseWriter, r *http.Request) {
				res, err := p.ForceScan(r.Context(), chi.URLParam(r, "id"))
				if err != nil {
					writeError(w, r, statusFor(err), err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
			})
		})
	})

	r.Handle("/api/events", p.hub)

	srv := p.NewMCPServer()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))

	rpc := connectivity.New(
		connectivity.WithLogger(p.logger),
		connectivity.WithMiddleware(
			connectivity.Logging(p.logger),
			connectivity.Recovery(p.logger),
			connectivity.Timeout(rpcCallTimeout),
		),
	)
	p.RegisterConnectivity(rpc)
	r.Handle("/rpc/*", http.StripPrefix("/rpc", rpc))

	return r
}

const rpcCallTimeout = 30 * time.Second

func pageContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithPageID(r.Context(), chi.URLParam(r, "id"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrPageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, ErrPageExists):
		return http.StatusConflict
	case errors.Is(err, ErrNotStarted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		shield.GetLogger(r.Context()).Error("coursepilot: request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
