package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/Dacada/simple-monitor/internal/monitor"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// Hub manages WebSocket connections and pushes status updates to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	last    []byte
	reg     chan *wsClient
	unreg   chan *wsClient
	log     *slog.Logger
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		reg:     make(chan *wsClient, 16),
		unreg:   make(chan *wsClient, 16),
		log:     logger,
	}
}

// Run processes register/unregister events until ctx is cancelled, then
// closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
				c.conn.Close(websocket.StatusGoingAway, "shutting down")
			}
			h.mu.Unlock()
			return
		case c := <-h.reg:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			// Replay the latest broadcast so a fresh client does not
			// sit empty until the next sampling tick.
			if h.last != nil {
				select {
				case c.send <- h.last:
				default:
				}
			}
			h.mu.Unlock()
		case c := <-h.unreg:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastStatus sends the current snapshots to all connected clients.
func (h *Hub) BroadcastStatus(statuses []monitor.Status) {
	data, err := json.Marshal(map[string]any{
		"type":     "status",
		"monitors": statuses,
	})
	if err != nil {
		h.log.Error("marshal status broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// client too slow, skip
		}
	}
}

func (c *wsClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

// HandleWS handles WebSocket upgrade and manages the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for local tool
	})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.reg <- client

	ctx := r.Context()
	go client.pingLoop(ctx)
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump drains inbound frames so pongs and close frames are processed.
// Clients have nothing to say to us; anything they send is discarded.
func (c *wsClient) readPump(ctx context.Context) {
	defer func() {
		c.hub.unreg <- c
		c.conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		_, _, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}
	}
}

func (c *wsClient) writePump(ctx context.Context) {
	for data := range c.send {
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
}
