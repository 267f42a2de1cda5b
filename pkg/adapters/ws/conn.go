package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aretw0/revisit/pkg/domain"
	"github.com/gorilla/websocket"
)

type conn struct {
	hub    *Hub
	ws     *websocket.Conn
	id     string
	origin string
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *conn) run() {
	defer c.close()
	go c.writeLoop()
	c.readLoop()
}

func (c *conn) close() {
	c.cancel()
	c.hub.remove(c)
	_ = c.ws.Close()
}

// readLoop delivers envelopes to the hub handlers in arrival order.
func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxPayloadBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.hub.logger.Warn("ws: invalid envelope", "conn_id", c.id, "err", err)
			continue
		}
		c.hub.dispatch(c.ctx, domain.Inbound{Origin: c.origin, ConnID: c.id, Envelope: env})
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}
