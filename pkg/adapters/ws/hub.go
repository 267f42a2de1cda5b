// Package ws carries bridge envelopes over WebSocket connections opened by the embedded frame.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/revisit/pkg/bridge"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxPayloadBytes = 8 << 20
	pongWait        = 45 * time.Second
	pingInterval    = 15 * time.Second
	writeWait       = 10 * time.Second
	sendBuffer      = 16
)

// ErrNoDestination is returned by Send when no connection from the destination origin is open.
var ErrNoDestination = errors.New("no connection from destination")

// Hub accepts frame connections and implements ports.Sender and ports.Receiver.
// Outbound envelopes go only to connections whose Origin matches the fixed destination.
type Hub struct {
	destination string
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	mu       sync.RWMutex
	conns    map[string]*conn
	handlers map[int]ports.InboundHandler
	nextID   int
}

var (
	_ ports.Sender   = (*Hub)(nil)
	_ ports.Receiver = (*Hub)(nil)
)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates a hub whose sends are addressed to destination (scheme://host:port).
func NewHub(destination string, opts ...Option) (*Hub, error) {
	norm, err := bridge.NormalizeOrigin(destination)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	h := &Hub{
		destination: norm,
		logger:      slog.New(slog.DiscardHandler),
		conns:       make(map[string]*conn),
		handlers:    make(map[int]ports.InboundHandler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			// Origin is verified per message by the bridge so rejections are observable.
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Destination returns the normalized destination origin.
func (h *Hub) Destination() string {
	return h.destination
}

// Subscribe registers an inbound handler.
func (h *Hub) Subscribe(handler ports.InboundHandler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.handlers, id)
		})
	}
}

// Send queues env on every open connection from the destination origin.
func (h *Hub) Send(ctx context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, c := range h.conns {
		if c.origin != h.destination {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("ws: client buffer full, dropping message", "conn_id", c.id, "type", env.Type)
		}
	}
	if delivered == 0 {
		return ErrNoDestination
	}
	return nil
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", "err", err)
		return
	}

	origin := r.Header.Get("Origin")
	if norm, err := bridge.NormalizeOrigin(origin); err == nil {
		origin = norm
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{
		hub:    h,
		ws:     wsConn,
		id:     uuid.NewString(),
		origin: origin,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	h.logger.Info("ws: frame connected", "conn_id", c.id, "origin", origin)

	c.run()
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	h.logger.Info("ws: frame disconnected", "conn_id", c.id)
}

func (h *Hub) dispatch(ctx context.Context, msg domain.Inbound) {
	h.mu.RLock()
	handlers := make([]ports.InboundHandler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ctx, msg)
	}
}

// Close terminates every open connection.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.cancel()
		_ = c.ws.Close()
	}
}
