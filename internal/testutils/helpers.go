// Package testutils holds fakes shared by package tests.
package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/pkg/adapters/memory"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/stretchr/testify/require"
)

// FrameOrigin is the destination of the Loopback transport.
const FrameOrigin = "http://localhost:8080"

// Loopback is an in-process transport: it records sends and delivers inbound
// envelopes synchronously to its subscribers.
type Loopback struct {
	mu       sync.Mutex
	sent     []domain.Envelope
	handlers map[int]ports.InboundHandler
	next     int
}

func NewLoopback() *Loopback {
	return &Loopback{handlers: make(map[int]ports.InboundHandler)}
}

func (l *Loopback) Send(ctx context.Context, env domain.Envelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, env)
	return nil
}

func (l *Loopback) Destination() string { return FrameOrigin }

func (l *Loopback) Subscribe(h ports.InboundHandler) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.next
	l.next++
	l.handlers[id] = h
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.handlers, id)
	}
}

// Deliver hands an envelope from FrameOrigin to every subscriber.
func (l *Loopback) Deliver(t domain.MessageType, payload string) {
	l.DeliverFrom(FrameOrigin, t, payload)
}

// DeliverFrom hands an envelope from origin to every subscriber.
func (l *Loopback) DeliverFrom(origin string, t domain.MessageType, payload string) {
	env := domain.Envelope{Type: t}
	if payload != "" {
		env.Payload = json.RawMessage(payload)
	}
	l.mu.Lock()
	hs := make([]ports.InboundHandler, 0, len(l.handlers))
	for _, h := range l.handlers {
		hs = append(hs, h)
	}
	l.mu.Unlock()
	for _, h := range hs {
		h(context.Background(), domain.Inbound{Origin: origin, Envelope: env})
	}
}

// Sent returns a copy of every envelope sent so far.
func (l *Loopback) Sent() []domain.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Envelope(nil), l.sent...)
}

// ConfigSends counts the CONFIG envelopes sent so far.
func (l *Loopback) ConfigSends() int {
	n := 0
	for _, env := range l.Sent() {
		if env.Type == domain.MessageConfig {
			n++
		}
	}
	return n
}

// StartWidget runs a widget over a fresh memory store and loopback transport.
// The widget is stopped when the test ends.
func StartWidget(t *testing.T, opts ...revisit.Option) (*revisit.Widget, *memory.Store, *Loopback) {
	t.Helper()
	return StartWidgetWithStore(t, memory.NewStore(), opts...)
}

// StartWidgetWithStore is StartWidget over an existing store.
func StartWidgetWithStore(t *testing.T, store *memory.Store, opts ...revisit.Option) (*revisit.Widget, *memory.Store, *Loopback) {
	t.Helper()
	lb := NewLoopback()

	w, err := revisit.New(store, lb, opts...)
	require.NoError(t, err, "Failed to create widget")
	stop, err := w.Start(context.Background(), lb)
	require.NoError(t, err, "Failed to start widget")
	t.Cleanup(stop)
	return w, store, lb
}

// RacingStore is a memory store whose first Get of Field returns the value it read
// before Write, while Write has already been stored and is being delivered to
// subscribers. It reproduces a write landing between a load and its use.
type RacingStore struct {
	*memory.Store
	Field ports.Field
	Write json.RawMessage

	once sync.Once
}

func (s *RacingStore) Get(ctx context.Context, field ports.Field) (json.RawMessage, error) {
	value, err := s.Store.Get(ctx, field)
	if field != s.Field {
		return value, err
	}
	s.once.Do(func() {
		go func() { _ = s.Store.Set(context.Background(), s.Field, s.Write) }()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if cur, err := s.Store.Get(ctx, field); err == nil && bytes.Equal(cur, s.Write) {
				return
			}
			time.Sleep(time.Millisecond)
		}
	})
	return value, err
}
