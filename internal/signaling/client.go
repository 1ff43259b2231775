package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openmeet/roomrelay/internal/ratelimit"
	"github.com/openmeet/roomrelay/internal/room"
)

const writeWait = 10 * time.Second

// client pairs one websocket connection with its session. readLoop is the
// only reader and writeLoop the only writer on the connection, per
// gorilla/websocket's concurrency rules.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	sess *room.Session
	log  *slog.Logger

	limiter *ratelimit.TokenBucket

	maxMessageBytes int64
	pongTimeout     time.Duration
	pingInterval    time.Duration
}

// readLoop pumps inbound frames into the hub until the connection dies, the
// rate limit trips, or the hub asks for a close (explicit leave). The
// deferred disconnect runs the leave sequence even on abrupt closes.
func (c *client) readLoop() {
	defer func() {
		c.hub.HandleDisconnect(c.sess)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read failed", "session_id", c.sess.ID(), "err", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.writeClose(websocket.ClosePolicyViolation, "message rate exceeded")
			return
		}

		if c.hub.HandleMessage(c.sess, raw) {
			c.writeClose(websocket.CloseNormalClosure, "left")
			return
		}
	}
}

// writeLoop drains the session's outbound queue and keeps the connection
// alive with pings. It exits when the hub closes the queue or a write
// fails; closing the connection then unblocks readLoop.
func (c *client) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.sess.Outbound():
			if !ok {
				c.writeClose(websocket.CloseNormalClosure, "")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("websocket write failed", "session_id", c.sess.ID(), "err", err)
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

func (c *client) writeClose(code int, reason string) {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}
