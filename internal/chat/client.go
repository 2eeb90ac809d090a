package chat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket chat connection. The hub owns its lifetime: done
// is closed by the hub exactly once when the client is unregistered or
// evicted, and the send channel is never closed, so the read pump can queue
// replies without racing the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	caller Caller
	router *Router
}

// close is called by the hub, exactly once, when the client is removed.
func (c *Client) close() {
	close(c.done)
	_ = c.conn.Close()
}

// queueReply hands a reply frame to the write pump. Replies are dropped when
// the client is gone or its buffer is backed up; a late reply must never
// block or panic the read loop.
func (c *Client) queueReply(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// readPump feeds inbound frames through the router and queues replies back
// on this client's send channel.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("chat: read from %s: %v", c.caller.ID, err)
			}
			return
		}

		reply := c.router.HandleMessage(context.Background(), c.caller, string(message))
		if reply == "" {
			continue
		}
		data, err := json.Marshal(map[string]string{"type": "reply", "text": reply})
		if err != nil {
			continue
		}
		c.queueReply(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
