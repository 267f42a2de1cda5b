package bridge_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/revisit/internal/testutils"
	"github.com/aretw0/revisit/pkg/adapters/memory"
	"github.com/aretw0/revisit/pkg/bridge"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameOrigin = "http://localhost:8080"

const testConfig = `{"studyMetadata":{"title":"demo"},"sequence":{"components":["A","B"]}}`

type recordingSender struct {
	mu   sync.Mutex
	sent []domain.Envelope
	err  error
}

func (s *recordingSender) Send(ctx context.Context, env domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *recordingSender) Destination() string { return frameOrigin }

func (s *recordingSender) Sent() []domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Envelope(nil), s.sent...)
}

type fakeReceiver struct {
	mu       sync.Mutex
	handlers map[int]ports.InboundHandler
	next     int
}

func (r *fakeReceiver) Subscribe(h ports.InboundHandler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[int]ports.InboundHandler)
	}
	id := r.next
	r.next++
	r.handlers[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, id)
	}
}

func (r *fakeReceiver) Deliver(ctx context.Context, msg domain.Inbound) {
	r.mu.Lock()
	hs := make([]ports.InboundHandler, 0, len(r.handlers))
	for _, h := range r.handlers {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	for _, h := range hs {
		h(ctx, msg)
	}
}

func (r *fakeReceiver) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

func inbound(t domain.MessageType, payload string) domain.Inbound {
	env := domain.Envelope{Type: t}
	if payload != "" {
		env.Payload = json.RawMessage(payload)
	}
	return domain.Inbound{Origin: frameOrigin, Envelope: env}
}

func setup(t *testing.T) (*bridge.Bridge, *memory.Store, *recordingSender, *fakeReceiver, func()) {
	t.Helper()
	store := memory.NewStore()
	sender := &recordingSender{}
	receiver := &fakeReceiver{}

	b, err := bridge.New(store, sender)
	require.NoError(t, err)

	release, err := b.Start(context.Background(), receiver)
	require.NoError(t, err)
	t.Cleanup(release)
	return b, store, sender, receiver, release
}

func TestBridge_TwoReadyThenUnchangedConfig(t *testing.T) {
	b, store, sender, receiver, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(testConfig)))
	assert.Empty(t, sender.Sent(), "no CONFIG before READY")

	receiver.Deliver(ctx, inbound(domain.MessageReady, ""))
	receiver.Deliver(ctx, inbound(domain.MessageReady, ""))

	// Re-writing an identical configuration is not a change.
	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(testConfig)))

	sent := sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, 2, b.Readiness())
	assert.Equal(t, 2, b.ConfigSent())
	for _, env := range sent {
		assert.Equal(t, domain.MessageConfig, env.Type)
		var inner string
		require.NoError(t, json.Unmarshal(env.Payload, &inner))
		assert.JSONEq(t, testConfig, inner)
	}
}

func TestBridge_ConfigChangeWhileReadyResends(t *testing.T) {
	_, store, sender, receiver, _ := setup(t)
	ctx := context.Background()

	receiver.Deliver(ctx, inbound(domain.MessageReady, ""))
	assert.Empty(t, sender.Sent(), "no configuration available yet")

	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(testConfig)))
	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(`{"sequence":{"components":["C"]}}`)))

	sent := sender.Sent()
	require.Len(t, sent, 2)
	var inner string
	require.NoError(t, json.Unmarshal(sent[1].Payload, &inner))
	assert.JSONEq(t, `{"sequence":{"components":["C"]}}`, inner)
}

func TestBridge_InvalidConfigIsNotSent(t *testing.T) {
	_, store, sender, receiver, _ := setup(t)
	ctx := context.Background()

	receiver.Deliver(ctx, inbound(domain.MessageReady, ""))
	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(`{"sequence":{"components":[1]}}`)))
	assert.Empty(t, sender.Sent())
}

func TestBridge_InitialConfigFromStore(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(testConfig)))

	sender := &recordingSender{}
	b, err := bridge.New(store, sender)
	require.NoError(t, err)
	release, err := b.Start(ctx, &fakeReceiver{})
	require.NoError(t, err)
	defer release()

	require.NoError(t, b.Handle(ctx, inbound(domain.MessageReady, "")))
	assert.Len(t, sender.Sent(), 1)
}

func TestBridge_ConfigWriteDuringStartIsObserved(t *testing.T) {
	ctx := context.Background()
	const newer = `{"sequence":{"components":["C"]}}`
	store := &testutils.RacingStore{Store: memory.NewStore(), Field: ports.FieldConfig, Write: json.RawMessage(newer)}
	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(testConfig)))

	sender := &recordingSender{}
	b, err := bridge.New(store, sender)
	require.NoError(t, err)
	release, err := b.Start(ctx, &fakeReceiver{})
	require.NoError(t, err)
	defer release()

	require.NoError(t, b.Handle(ctx, inbound(domain.MessageReady, "")))

	assert.Eventually(t, func() bool {
		sent := sender.Sent()
		if len(sent) == 0 {
			return false
		}
		var inner string
		if err := json.Unmarshal(sent[len(sent)-1].Payload, &inner); err != nil {
			return false
		}
		return inner == newer
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBridge_SequenceBeforeReady(t *testing.T) {
	b, store, sender, receiver, _ := setup(t)
	ctx := context.Background()

	receiver.Deliver(ctx, inbound(domain.MessageSequenceArray, `[["A","B"]]`))

	got, err := store.Get(ctx, ports.FieldSequence)
	require.NoError(t, err)
	assert.JSONEq(t, `[["A","B"]]`, string(got))
	assert.Equal(t, 0, b.Readiness())
	assert.Empty(t, sender.Sent())

	// Last write wins.
	receiver.Deliver(ctx, inbound(domain.MessageSequenceArray, `[["C"]]`))
	got, err = store.Get(ctx, ports.FieldSequence)
	require.NoError(t, err)
	assert.JSONEq(t, `[["C"]]`, string(got))
}

func TestBridge_ExportsIndependentSlots(t *testing.T) {
	b, store, _, _, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, b.Handle(ctx, inbound(domain.MessageExportJSON, `[{"participantId":"p1"}]`)))
	require.NoError(t, b.Handle(ctx, inbound(domain.MessageExportTidy, `{"header":["id"],"rows":[["p1"]]}`)))

	j, err := store.Get(ctx, ports.FieldExportJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"participantId":"p1"}]`, string(j))

	tidy, err := store.Get(ctx, ports.FieldExportTidy)
	require.NoError(t, err)
	assert.JSONEq(t, `{"header":["id"],"rows":[["p1"]]}`, string(tidy))

	_, err = store.Get(ctx, ports.FieldSequence)
	assert.ErrorIs(t, err, domain.ErrFieldNotFound)
}

func TestBridge_RejectsUntrustedOrigin(t *testing.T) {
	var rejected int
	store := memory.NewStore()
	b, err := bridge.New(store, &recordingSender{}, bridge.WithHooks(bridge.Hooks{
		OnRejected: func(ctx context.Context, msg domain.Inbound, err error) { rejected++ },
	}))
	require.NoError(t, err)

	msg := inbound(domain.MessageSequenceArray, `[["A"]]`)
	msg.Origin = "https://evil.example"
	err = b.Handle(context.Background(), msg)
	assert.ErrorIs(t, err, domain.ErrUntrustedOrigin)
	assert.Equal(t, 1, rejected)

	_, err = store.Get(context.Background(), ports.FieldSequence)
	assert.ErrorIs(t, err, domain.ErrFieldNotFound)
}

func TestBridge_AnyOriginPolicy(t *testing.T) {
	policy, err := bridge.NewOriginPolicy("*")
	require.NoError(t, err)
	b, err := bridge.New(memory.NewStore(), &recordingSender{}, bridge.WithOrigins(policy))
	require.NoError(t, err)

	msg := inbound(domain.MessageReady, "")
	msg.Origin = ""
	assert.NoError(t, b.Handle(context.Background(), msg))
}

func TestBridge_UnknownAndOutboundTypes(t *testing.T) {
	b, _, _, _, _ := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, b.Handle(ctx, inbound("revisitWidget/NOPE", "")), domain.ErrUnknownMessage)
	assert.ErrorIs(t, b.Handle(ctx, inbound(domain.MessageConfig, `"{}"`)), domain.ErrUnknownMessage)
}

func TestBridge_SendErrorSurfaces(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(testConfig)))

	boom := errors.New("socket closed")
	b, err := bridge.New(store, &recordingSender{err: boom})
	require.NoError(t, err)
	release, err := b.Start(ctx, &fakeReceiver{})
	require.NoError(t, err)
	defer release()

	err = b.Handle(ctx, inbound(domain.MessageReady, ""))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, b.ConfigSent())
}

func TestBridge_ReleaseDeregisters(t *testing.T) {
	_, store, sender, receiver, release := setup(t)
	ctx := context.Background()
	require.Equal(t, 1, receiver.Count())

	release()
	assert.Equal(t, 0, receiver.Count())

	receiver.Deliver(ctx, inbound(domain.MessageReady, ""))
	require.NoError(t, store.Set(ctx, ports.FieldConfig, json.RawMessage(testConfig)))
	assert.Empty(t, sender.Sent())
}

func TestNormalizeOrigin(t *testing.T) {
	got, err := bridge.NormalizeOrigin("HTTP://LocalHost:8080/revisit-widget?x=1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", got)

	_, err = bridge.NormalizeOrigin("localhost")
	assert.Error(t, err)
}
