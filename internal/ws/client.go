package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/ratelimit"
	"github.com/manpreetbhatti/codetogether/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBufferSize = 512
)

// Client is the websocket side of one connection. It implements room.Sink.
type Client struct {
	hub     *Hub
	manager *session.Manager
	conn    *websocket.Conn
	session *session.Conn
	logger  logging.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	rateLimiter   *ratelimit.Limiter
	maxViolations int64
}

// Send queues frame for the write pump without blocking. A client whose
// buffer is full is disconnected.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warnf("send buffer full for client %s, disconnecting", c.session.ID)
		c.shutdown()
		return false
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.manager.Leave(c.session)
		c.shutdown()
		c.hub.unregister(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warnf("websocket error for client %s: %v", c.session.ID, err)
			}
			return
		}

		if !c.rateLimiter.Allow() {
			violations := c.rateLimiter.Violations()
			if violations%100 == 1 {
				c.logger.Warnf("rate limit exceeded for client %s (warning #%d)", c.session.ID, violations)
				c.manager.Reject(c.session, session.ReasonRateLimited, session.MsgRateLimited)
			}
			if violations > c.maxViolations {
				c.logger.Warnf("disconnecting client %s for excessive rate limit violations", c.session.ID)
				return
			}
			continue
		}

		_ = c.manager.Handle(ctx, c.session, message)
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
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
