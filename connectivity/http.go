package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// maxBody caps request and response bodies on the HTTP bridge.
const maxBody int64 = 1 << 20

// ServeHTTP exposes the router as POST /{service} with a JSON body, and
// GET / listing the service names. The caller strips any mount prefix.
// Unknown services answer 404, handler errors 422.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	service := strings.Trim(req.URL.Path, "/")
	if req.Method == http.MethodGet && service == "" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(r.Services())
		return
	}
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// A JSON content type cannot be sent cross-origin without a preflight.
	if mt, _, err := mime.ParseMediaType(req.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		http.Error(w, "content type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(req.Body, maxBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	resp, err := r.Call(req.Context(), service, payload)
	if err != nil {
		var nf *ErrServiceNotFound
		if errors.As(err, &nf) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

// HTTPClient returns a Handler that POSTs the payload to baseURL/service.
func HTTPClient(baseURL, service string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	endpoint := strings.TrimRight(baseURL, "/") + "/" + service

	return func(ctx context.Context, payload []byte) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: do request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("connectivity/http: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &ErrRemote{Service: service, Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return body, nil
	}
}
