package broadcast

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/spacesedan/ariss/internal/metrics"
	"github.com/spacesedan/ariss/internal/models"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
	maxReadSize       = 512
)

// Hub streams score events to WebSocket clients. A client may pass
// ?subject= to receive a single subject's updates. Clients whose buffer is
// full are disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	clock    clockwork.Clock
	metrics  *metrics.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub(m *metrics.Metrics, clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clock:   clock,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and blocks until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[Hub] WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn, strings.TrimSpace(r.URL.Query().Get("subject")), h.clock)
	h.add(c)
	slog.Debug("[Hub] Client connected", slog.String("subject", c.subject))

	c.readLoop()

	h.remove(c)
	c.stop()
}

func (h *Hub) Publish(_ context.Context, record models.ScoreRecord) error {
	msg, err := encodeEvent(record)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(record.Subject) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slog.Warn("[Hub] Evicting slow client", slog.String("subject", c.subject))
			delete(h.clients, c)
			h.metrics.ClientDisconnected()
			go c.stop()
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		h.metrics.ClientDisconnected()
		c.stop()
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.metrics.ClientConnected()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.metrics.ClientDisconnected()
	}
}

type client struct {
	conn     *websocket.Conn
	subject  string
	clock    clockwork.Clock
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newClient(conn *websocket.Conn, subject string, clock clockwork.Clock) *client {
	c := &client{
		conn:    conn,
		subject: subject,
		clock:   clock,
		send:    make(chan []byte, messageBufferSize),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.writeLoop()
	return c
}

func (c *client) wants(subject string) bool {
	return c.subject == "" || strings.EqualFold(c.subject, subject)
}

func (c *client) writeLoop() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.Chan():
			_ = c.conn.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop discards client messages; it only exists to process pongs and
// notice disconnects.
func (c *client) readLoop() {
	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(c.clock.Now().Add(pongDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(c.clock.Now().Add(pongDeadline))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
	c.wg.Wait()
}
