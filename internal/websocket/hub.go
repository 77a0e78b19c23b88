package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/roster-sim/internal/optimizer"
)

const sendBuffer = 64

// Progress message types
const (
	MessageStarted   = "optimization_started"
	MessageProgress  = "optimization_progress"
	MessageCompleted = "optimization_completed"
	MessageFailed    = "optimization_failed"
)

// ProgressMessage is pushed to every connection watching a session
type ProgressMessage struct {
	Type           string    `json:"type"`
	SessionID      string    `json:"session_id"`
	OptimizationID string    `json:"optimization_id,omitempty"`
	ExpectedWinPct float64   `json:"expected_win_pct,omitempty"`
	Message        string    `json:"message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Client represents a WebSocket client
type Client struct {
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub
}

// Hub maintains active WebSocket connections keyed by optimization session
type Hub struct {
	clients        map[*Client]bool
	sessionClients map[string][]*Client
	register       chan *Client
	unregister     chan *Client
	done           chan struct{}
	upgrader       websocket.Upgrader
	logger         *logrus.Logger
	mutex          sync.RWMutex
	onSend         func()
}

// NewHub creates a new WebSocket hub. An empty origin list allows any origin.
func NewHub(logger *logrus.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Hub{
		clients:        make(map[*Client]bool),
		sessionClients: make(map[string][]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		logger:         logger,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// OnSend registers a callback run for each progress message queued to a client.
func (h *Hub) OnSend(fn func()) {
	h.onSend = fn
}

// Run handles client registration until ctx is done, then closes every connection
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.sessionClients[client.SessionID] = append(h.sessionClients[client.SessionID], client)
			total := len(h.clients)
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"session_id":    client.SessionID,
				"total_clients": total,
			}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				h.removeLocked(client)
			}
			total := len(h.clients)
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"session_id":    client.SessionID,
				"total_clients": total,
			}).Info("WebSocket client disconnected")

		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client)
	close(client.Send)

	sessionClients := h.sessionClients[client.SessionID]
	for i, c := range sessionClients {
		if c == client {
			h.sessionClients[client.SessionID] = append(sessionClients[:i], sessionClients[i+1:]...)
			break
		}
	}
	if len(h.sessionClients[client.SessionID]) == 0 {
		delete(h.sessionClients, client.SessionID)
	}
}

// HandleWebSocket upgrades the request and subscribes it to :session_id
func (h *Hub) HandleWebSocket(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		SessionID: sessionID,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		Hub:       h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-c.Request.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// BroadcastToSession queues message for every connection on the session.
// Full client buffers drop the message instead of blocking the caller.
func (h *Hub) BroadcastToSession(sessionID string, message ProgressMessage) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := h.sessionClients[sessionID]
	if len(clients) == 0 {
		return
	}

	if message.SessionID == "" {
		message.SessionID = sessionID
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	for _, client := range clients {
		select {
		case client.Send <- data:
			if h.onSend != nil {
				h.onSend()
			}
		default:
			h.logger.WithField("session_id", sessionID).Debug("Dropping progress message for slow client")
		}
	}
}

// Observer forwards incumbent improvements for one optimization to its session
func (h *Hub) Observer(sessionID string) optimizer.Observer {
	return optimizer.ProgressFunc(func(value float64) {
		h.BroadcastToSession(sessionID, ProgressMessage{
			Type:           MessageProgress,
			ExpectedWinPct: value,
		})
	})
}

// GetConnectedSessions returns the sessions that currently have a listener
func (h *Hub) GetConnectedSessions() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sessions := make([]string, 0, len(h.sessionClients))
	for sessionID := range h.sessionClients {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// GetConnectionCount returns the total number of active connections
func (h *Hub) GetConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// readPump drains the connection until the peer goes away
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Error("WebSocket error")
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.Hub.logger.WithError(err).Error("Failed to write WebSocket message")
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
