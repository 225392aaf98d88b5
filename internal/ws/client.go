package ws

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/manpreetbhatti/inkwell/internal/protocol"
	"github.com/manpreetbhatti/inkwell/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 512
	defaultRoom    = "default"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	roomID      string
	peerID      string
	rateLimiter *ratelimit.Limiter
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		roomID = defaultRoom
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("Upgrade error: %v", err)
		return
	}

	peerID := uuid.NewString()

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		roomID:      roomID,
		peerID:      peerID,
		rateLimiter: hub.limiters.Get(peerID),
	}

	hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				glog.Warningf("WebSocket error: %v", err)
			}
			break
		}

		if !c.rateLimiter.Allow() {
			violations := c.rateLimiter.Violations()
			if violations%100 == 1 {
				glog.Warningf("Rate limit exceeded for peer %s in room %s (warning #%d)",
					c.peerID, c.roomID, violations)
			}
			if violations > c.hub.limits.MaxViolations {
				glog.Warningf("Disconnecting peer %s for excessive rate limit violations", c.peerID)
				return
			}
			continue
		}

		// the sender id is always the relay's, whatever the peer claimed
		stamped, err := protocol.Stamp(message, c.peerID)
		if err != nil {
			glog.Warningf("Invalid message from peer %s: %v", c.peerID, err)
			continue
		}

		if err := c.hub.Publish(c.roomID, stamped); err != nil {
			glog.Errorf("Failed to publish to room %s: %v", c.roomID, err)
			continue
		}
		glog.V(2).Infof("Relayed %d bytes from peer %s in room %s", len(stamped), c.peerID, c.roomID)

		if c.hub.database != nil {
			if err := c.hub.database.RecordMessage(c.peerID, c.roomID); err != nil {
				glog.Warningf("Failed to count message from peer %s: %v", c.peerID, err)
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
