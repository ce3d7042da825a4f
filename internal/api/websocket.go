package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshboard/meshboard-core/internal/broadcast"
	"github.com/meshboard/meshboard-core/internal/infrastructure/config"
	"github.com/meshboard/meshboard-core/internal/infrastructure/logging"
	"github.com/meshboard/meshboard-core/internal/message"
)

// Frame types sent to WebSocket clients.
const (
	wsTypeWelcome      = "welcome"
	wsTypeMessageBatch = "message_batch"
)

// Fallbacks for unset WebSocket timing config.
const (
	defaultPingInterval = 30 * time.Second
	defaultWriteWait    = 10 * time.Second
)

// welcomeFrame is the first frame after a successful upgrade.
type welcomeFrame struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	Session string `json:"session"`
}

// batchFrame carries one ordered batch of records.
type batchFrame struct {
	Type string           `json:"type"`
	Data []message.Record `json:"data"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// handleWebSocket upgrades the connection and streams message batches
// from the broadcast hub.
//
// Authentication is a single-use ticket query parameter obtained from
// POST /auth/ws-ticket; a replayed or expired ticket is rejected before
// the upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	username, err := s.tickets.Redeem(ticket)
	if err != nil {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := s.hub.Subscribe()
	client := &wsClient{
		conn:   conn,
		sub:    sub,
		cfg:    s.wsCfg,
		logger: s.logger,
	}

	if err := client.writeJSON(welcomeFrame{
		Type:    wsTypeWelcome,
		User:    username,
		Session: sub.ID(),
	}); err != nil {
		s.logger.Warn("websocket welcome failed", "error", err)
		sub.Close()
		conn.Close()
		return
	}

	s.logger.Info("websocket client connected", "user", username, "session", sub.ID())

	go client.writePump()
	go client.readPump()
}

// wsClient bridges one WebSocket connection to a hub subscription.
type wsClient struct {
	conn   *websocket.Conn
	sub    *broadcast.Subscription
	cfg    config.WebSocketConfig
	logger *logging.Logger
}

// writePump streams batch frames and protocol pings until the
// subscription ends or a write fails.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case batch := <-c.sub.Frames():
			if err := c.writeJSON(batchFrame{Type: wsTypeMessageBatch, Data: batch}); err != nil {
				c.sub.Close()
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.sub.Close()
				return
			}
		case <-c.sub.Done():
			// Hub dropped us: buffer overflow, missed heartbeats, or shutdown.
			//nolint:errcheck // Best-effort close message
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// readPump consumes client frames until the connection drops. Pongs and
// any other inbound traffic count as heartbeat acks; the hub reaps
// subscribers that stay silent for two ping intervals.
func (c *wsClient) readPump() {
	defer func() {
		c.sub.Close()
		c.conn.Close()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(c.cfg.MaxMessageSize))
	}

	readWait := c.pingInterval() + c.writeWait()
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		c.sub.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "session", c.sub.ID(), "error", err)
			} else {
				c.logger.Debug("websocket closed", "session", c.sub.ID())
			}
			return
		}
		c.sub.Touch()
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(readWait))
	}
}

// writeJSON writes one JSON frame under the write deadline.
func (c *wsClient) writeJSON(v any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait())); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsClient) pingInterval() time.Duration {
	if c.cfg.PingInterval <= 0 {
		return defaultPingInterval
	}
	return time.Duration(c.cfg.PingInterval) * time.Second
}

func (c *wsClient) writeWait() time.Duration {
	if c.cfg.PongTimeout <= 0 {
		return defaultWriteWait
	}
	return time.Duration(c.cfg.PongTimeout) * time.Second
}
