package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"chameleon/internal/metrics"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Heartbeat interval for version checks; clients refetch the
	// leaderboard only when the version changes
	versionHeartbeatInterval = 2 * time.Second

	// Time allowed to hand the initial version to a new client
	initialSendWait = 2 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// VersionSource reports the leaderboard change counter
type VersionSource interface {
	LeaderboardVersion(ctx context.Context) (int64, error)
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts version changes to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	versions VersionSource
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu sync.RWMutex

	// Last known version, only touched by Run
	lastVersion int64
}

// VersionUpdate represents the version heartbeat message
type VersionUpdate struct {
	Type    string `json:"type"`
	Version int64  `json:"version"`
}

// NewHub creates a new WebSocket hub
func NewHub(versions VersionSource, logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		versions:   versions,
		interval:   versionHeartbeatInterval,
		logger:     logger.Named("websocket"),
		metrics:    m,
	}
}

// Run starts the WebSocket hub and blocks until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.metrics.ClientConnected(1)
			h.logger.Debug("client connected", zap.Int("clients", total))

			h.sendInitialVersion(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.ClientConnected(-1)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", zap.Int("clients", total))

		case <-ticker.C:
			h.checkAndBroadcastVersion(ctx)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// checkAndBroadcastVersion broadcasts the version to every client when it changed
func (h *Hub) checkAndBroadcastVersion(ctx context.Context) {
	current, err := h.versions.LeaderboardVersion(ctx)
	if err != nil {
		h.logger.Warn("failed to get leaderboard version", zap.Error(err))
		return
	}
	if current == h.lastVersion {
		return
	}
	h.lastVersion = current

	message, err := encodeVersion(current)
	if err != nil {
		h.logger.Error("failed to marshal version update", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Client's send buffer is full, skip this client
			h.logger.Debug("client send buffer full, skipping")
		}
	}
}

// sendInitialVersion sends the current version to a newly connected client
func (h *Hub) sendInitialVersion(ctx context.Context, client *Client) {
	current, err := h.versions.LeaderboardVersion(ctx)
	if err != nil {
		h.logger.Warn("failed to get initial version", zap.Error(err))
		return
	}
	if h.lastVersion == 0 {
		h.lastVersion = current
	}

	message, err := encodeVersion(current)
	if err != nil {
		return
	}

	timer := time.NewTimer(initialSendWait)
	defer timer.Stop()
	select {
	case client.send <- message:
	case <-timer.C:
		h.logger.Debug("timeout sending initial version")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		h.metrics.ClientConnected(-1)
	}
}

func encodeVersion(version int64) ([]byte, error) {
	return json.Marshal(VersionUpdate{Type: "VERSION_UPDATE", Version: version})
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains the connection until the peer goes away
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket unexpected close", zap.Error(err))
			}
			return
		}
		// Messages from clients are ignored
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		_, _ = w.Write(message)

		// Add queued messages to the current websocket message
		n := len(c.send)
		for range n {
			_, _ = w.Write([]byte{'\n'})
			_, _ = w.Write(<-c.send)
		}

		if err := w.Close(); err != nil {
			return
		}
	}

	// The hub closed the channel
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeWS handles a WebSocket connection until the client disconnects or
// ctx is cancelled
func ServeWS(ctx context.Context, hub *Hub, conn *websocket.Conn) {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case hub.register <- client:
	case <-ctx.Done():
		return
	}

	go client.writePump()

	// Run read pump in current goroutine (blocks until disconnect)
	client.readPump(ctx)
}
