package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rhino-signals/backend/internal/logger"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// client is one WebSocket viewer. updates is its SignalHub subscription.
type client struct {
	server  *Server
	conn    *websocket.Conn
	updates <-chan []byte
	cancel  func()
}

// readPump only watches the connection. Viewers do not send commands; any
// inbound frame is discarded and a read error ends the session.
func (c *client) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("Realtime: websocket read error: %v", err)
			}
			return
		}
	}
}

// writePump forwards hub updates and keeps the connection alive with pings.
// It returns when the hub closes the subscription or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
		c.server.disconnected()
	}()

	for {
		select {
		case msg, ok := <-c.updates:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription ended"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("Realtime: websocket write error: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
