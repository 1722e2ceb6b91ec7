package apihttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"radiostream/internal/metrics"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsOutbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type wsClient struct {
	hub  *wsHub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(hub *wsHub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// close signals writePump to shut the connection down. The send channel is
// never closed: the arbiter holds client references past unregistration and
// sendEvent must stay safe to call on a dead client.
func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// sendEvent queues a typed message for this client. The per-client channel
// preserves emission order; a full buffer or a dead client reports false.
func (c *wsClient) sendEvent(event string, data any) bool {
	payload, err := json.Marshal(wsOutbound{Type: event, Data: data})
	if err != nil {
		c.hub.logger.Error("ws marshal failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
		return true
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// wsHub fans events out to every live connection. Unlike a channel-based
// run loop, sends happen under the lock directly into per-client buffers,
// so the order clients observe is exactly the emission order.
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
	closed  bool
	logger  *slog.Logger

	commands *wsCommandRouter
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients: make(map[*wsClient]bool),
		logger:  logger,
	}
}

func (h *wsHub) register(client *wsClient) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.close()
		return
	}
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.ListenersConnected.Set(float64(total))
	h.logger.Debug("ws client connected", slog.Int("total", total))
}

func (h *wsHub) unregister(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	client.close()
	metrics.ListenersConnected.Set(float64(total))
	h.logger.Debug("ws client disconnected", slog.Int("total", total))
	if h.commands != nil {
		h.commands.onDisconnect(client)
	}
}

// Broadcast sends a typed JSON message to every connected client, in
// emission order per client. Clients too slow to drain their buffer are
// disconnected through the same path as a closed socket, so the arbiter
// learns about them.
func (h *wsHub) Broadcast(event string, data any) {
	payload, err := json.Marshal(wsOutbound{Type: event, Data: data})
	if err != nil {
		h.logger.Error("ws marshal failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
		return
	}
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()

	var dropped []*wsClient
	h.mu.Lock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			delete(h.clients, client)
			dropped = append(dropped, client)
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	if len(dropped) == 0 {
		return
	}
	metrics.ListenersConnected.Set(float64(total))
	for _, client := range dropped {
		client.close()
		h.logger.Warn("ws client dropped, send buffer full", slog.String("event", event))
		if h.commands != nil {
			h.commands.onDisconnect(client)
		}
	}
}

func (h *wsHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *wsHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		_ = client.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(2*time.Second),
		)
		client.close()
	}
	h.logger.Debug("ws hub stopped, all clients disconnected")
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.logger.Debug("ws message parse failed", slog.String("error", err.Error()))
			continue
		}
		if c.hub.commands != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			c.hub.commands.dispatch(ctx, c, msg)
			cancel()
		}
	}
}
