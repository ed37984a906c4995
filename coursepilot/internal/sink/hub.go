// CLAUDE:SUMMARY Websocket broadcast hub: observers connect over HTTP, every event is pushed to them; slow or absent observers lose events.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/coursepilot/coursepilot/state"
)

const clientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
	page string
}

// Hub is a Sink broadcasting to websocket observers and an http.Handler
// accepting them. ?page=<id> restricts an observer to one page.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	logger   *slog.Logger
	origins  map[string]bool
	upgrader websocket.Upgrader
}

// NewHub creates an empty Hub. Browsers may connect from the hub's own
// host or from one of origins; clients sending no Origin are accepted.
func NewHub(logger *slog.Logger, origins ...string) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
		origins: make(map[string]bool, len(origins)),
	}
	for _, o := range origins {
		h.origins[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	h.upgrader.CheckOrigin = h.checkOrigin
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return h.origins[strings.ToLower(origin)]
}

// Observers counts connected observers.
func (h *Hub) Observers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("hub: upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer), page: r.URL.Query().Get("page")}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Send implements Sink. Nobody listening is not an error.
func (h *Hub) Send(_ context.Context, ev state.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("hub: marshal: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.page != "" && c.page != ev.PageID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.drop(c)
		}
	}
	return nil
}

// Close disconnects every observer.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.drop(c)
	}
	return nil
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.drop(c)
		h.mu.Unlock()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("hub: read error", "error", err)
			}
			return
		}
	}
}
