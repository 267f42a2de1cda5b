package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/ports"
)

// Bridge synchronizes configuration out to the embedded frame and participant
// sequences and exports back into the model state.
type Bridge struct {
	store   ports.ModelStore
	sender  ports.Sender
	origins OriginPolicy
	hooks   Hooks
	logger  *slog.Logger

	// configMu orders config updates, so the value loaded at start cannot overwrite
	// a newer notification.
	configMu sync.Mutex

	mu         sync.Mutex
	readiness  int
	config     domain.Config
	hasConfig  bool
	configSent int
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithOrigins replaces the trusted origin policy. By default only the sender's
// destination is trusted.
func WithOrigins(policy OriginPolicy) Option {
	return func(b *Bridge) {
		b.origins = policy
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks Hooks) Option {
	return func(b *Bridge) {
		b.hooks = hooks
	}
}

// New creates a Bridge writing into store and sending through sender.
func New(store ports.ModelStore, sender ports.Sender, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		store:  store,
		sender: sender,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.origins.allowed == nil && !b.origins.any {
		policy, err := NewOriginPolicy(sender.Destination())
		if err != nil {
			return nil, fmt.Errorf("default origin policy: %w", err)
		}
		b.origins = policy
	}
	return b, nil
}

// Start subscribes to configuration changes, loads the current configuration and
// subscribes to inbound envelopes. The returned release function deregisters both
// subscriptions and must be called on teardown.
func (b *Bridge) Start(ctx context.Context, receiver ports.Receiver) (release func(), err error) {
	// Notifications outlive the caller's request scope; release is the only teardown.
	subCtx := context.WithoutCancel(ctx)
	unsubscribeConfig, err := b.store.Subscribe(ctx, ports.FieldConfig, func(value json.RawMessage) {
		b.configChanged(subCtx, value)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe config: %w", err)
	}

	if err := b.loadConfig(ctx); err != nil {
		unsubscribeConfig()
		return nil, err
	}

	unsubscribeInbound := receiver.Subscribe(func(ctx context.Context, msg domain.Inbound) {
		if err := b.Handle(ctx, msg); err != nil {
			b.logger.Warn("bridge: inbound message dropped", "type", msg.Envelope.Type, "origin", msg.Origin, "err", err)
		}
	})

	return func() {
		unsubscribeInbound()
		unsubscribeConfig()
	}, nil
}

// Handle processes one inbound envelope.
func (b *Bridge) Handle(ctx context.Context, msg domain.Inbound) error {
	if err := b.origins.Verify(msg.Origin); err != nil {
		b.hooks.rejected(ctx, msg, err)
		return err
	}
	b.hooks.inbound(ctx, msg)

	switch msg.Envelope.Type {
	case domain.MessageReady:
		b.mu.Lock()
		b.readiness++
		readiness := b.readiness
		b.mu.Unlock()

		b.logger.Debug("bridge: frame ready", "readiness", readiness, "conn_id", msg.ConnID)
		return b.sendConfig(ctx)

	case domain.MessageSequenceArray:
		payload := msg.Envelope.Payload
		if len(bytes.TrimSpace(payload)) == 0 {
			payload = json.RawMessage("[]")
		}
		return b.store.Set(ctx, ports.FieldSequence, payload)

	case domain.MessageExportJSON:
		return b.store.Set(ctx, ports.FieldExportJSON, nullIfEmpty(msg.Envelope.Payload))

	case domain.MessageExportTidy:
		return b.store.Set(ctx, ports.FieldExportTidy, nullIfEmpty(msg.Envelope.Payload))

	case domain.MessageConfig:
		return fmt.Errorf("%w: %s is host-to-frame only", domain.ErrUnknownMessage, msg.Envelope.Type)

	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownMessage, msg.Envelope.Type)
	}
}

// Readiness returns how many READY envelopes have been received.
func (b *Bridge) Readiness() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readiness
}

// ConfigSent returns how many CONFIG envelopes were delivered to the sender.
func (b *Bridge) ConfigSent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.configSent
}

// loadConfig reads the stored configuration. The read happens under configMu so a
// notification delivered meanwhile is applied after it.
func (b *Bridge) loadConfig(ctx context.Context) error {
	b.configMu.Lock()
	defer b.configMu.Unlock()

	raw, err := b.store.Get(ctx, ports.FieldConfig)
	switch {
	case err == nil:
		b.updateConfig(ctx, raw)
		return nil
	case errors.Is(err, domain.ErrFieldNotFound):
		return nil
	default:
		return fmt.Errorf("load config: %w", err)
	}
}

// configChanged records a new configuration value and re-sends it when the frame is
// ready. A write that leaves the value unchanged is not a change.
func (b *Bridge) configChanged(ctx context.Context, raw json.RawMessage) {
	b.configMu.Lock()
	defer b.configMu.Unlock()
	b.updateConfig(ctx, raw)
}

func (b *Bridge) updateConfig(ctx context.Context, raw json.RawMessage) {
	cfg, err := domain.ParseConfig(raw)
	if err != nil {
		b.logger.Error("bridge: ignoring invalid config", "err", err)
		return
	}

	b.mu.Lock()
	if b.hasConfig && jsonEqual(b.config.Raw, cfg.Raw) {
		b.mu.Unlock()
		return
	}
	b.config, b.hasConfig = cfg, true
	b.mu.Unlock()

	if err := b.sendConfig(ctx); err != nil {
		b.logger.Error("bridge: config send failed", "err", err)
	}
}

func (b *Bridge) sendConfig(ctx context.Context) error {
	b.mu.Lock()
	readiness, cfg, ok := b.readiness, b.config, b.hasConfig
	b.mu.Unlock()

	if readiness == 0 || !ok {
		return nil
	}

	payload, err := cfg.Stringified()
	if err != nil {
		b.hooks.sendError(ctx, err)
		return err
	}
	if err := b.sender.Send(ctx, domain.Envelope{Type: domain.MessageConfig, Payload: payload}); err != nil {
		err = fmt.Errorf("send config to %s: %w", b.sender.Destination(), err)
		b.hooks.sendError(ctx, err)
		return err
	}

	b.mu.Lock()
	b.configSent++
	b.mu.Unlock()
	b.hooks.configSent(ctx, readiness)
	return nil
}

func nullIfEmpty(payload json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(payload)) == 0 {
		return json.RawMessage("null")
	}
	return payload
}

func jsonEqual(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
