package revisit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/revisit/pkg/bridge"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/frequency"
	"github.com/aretw0/revisit/pkg/ports"
)

// Version is the release of the widget host.
const Version = "0.3.0"

// DefaultFrameURL is where the external application serves the embedded widget page.
const DefaultFrameURL = "http://localhost:8080/revisit-widget"

// Snapshot is the derived view state of the widget at one point in time.
type Snapshot struct {
	Design       domain.Node      `json:"design"`
	HasDesign    bool             `json:"has_design"`
	Aggregate    domain.Aggregate `json:"aggregate"`
	Participants int              `json:"participants"`
	// Err is the last structural error. The Aggregate keeps the last valid value.
	Err error `json:"-"`
}

// MarshalJSON adds the last error as a string and omits the design when absent.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type view struct {
		Design       *domain.Node     `json:"design,omitempty"`
		Aggregate    domain.Aggregate `json:"aggregate"`
		Participants int              `json:"participants"`
		Error        string           `json:"error,omitempty"`
	}
	v := view{Aggregate: s.Aggregate, Participants: s.Participants}
	if s.HasDesign {
		v.Design = &s.Design
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	return json.Marshal(v)
}

// Hooks observe widget recomputation. Any hook may be nil.
type Hooks struct {
	OnAggregate func(ctx context.Context, snap Snapshot)
	OnError     func(ctx context.Context, err error)
}

// Widget owns the model state of one widget instance: it keeps the design from the
// configuration, recomputes the frequency aggregate whenever the participant sequences
// change, and runs the message bridge to the embedded frame.
type Widget struct {
	store      ports.ModelStore
	sender     ports.Sender
	bridge     *bridge.Bridge
	bridgeOpts []bridge.Option
	memo       *frequency.Memo
	hooks      Hooks
	logger     *slog.Logger

	mu        sync.Mutex
	snap      Snapshot
	sequences []domain.Node
	watchers  map[int]func(Snapshot)
	nextWatch int
}

// Option defines a functional option for configuring the Widget.
type Option func(*Widget)

// WithLogger sets a custom structured logger for the widget and its bridge.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Widget) {
		w.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks Hooks) Option {
	return func(w *Widget) {
		w.hooks = hooks
	}
}

// WithBridgeOptions passes options through to the message bridge.
func WithBridgeOptions(opts ...bridge.Option) Option {
	return func(w *Widget) {
		w.bridgeOpts = append(w.bridgeOpts, opts...)
	}
}

// New creates a Widget over the given model store, sending to the embedded frame through sender.
func New(store ports.ModelStore, sender ports.Sender, opts ...Option) (*Widget, error) {
	w := &Widget{
		store:    store,
		sender:   sender,
		memo:     frequency.NewMemo(),
		watchers: make(map[int]func(Snapshot)),
		snap:     Snapshot{Aggregate: domain.EmptyAggregate()},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.New(slog.DiscardHandler)
	}

	bridgeOpts := append([]bridge.Option{bridge.WithLogger(w.logger)}, w.bridgeOpts...)
	b, err := bridge.New(store, sender, bridgeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}
	w.bridge = b
	return w, nil
}

// Start subscribes to configuration and sequence changes, loads their current values
// and starts the bridge on receiver. The returned stop function releases every
// subscription; call it on teardown.
func (w *Widget) Start(ctx context.Context, receiver ports.Receiver) (stop func(), err error) {
	var releases []func()
	stop = func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	// Subscribe before loading so a write landing in between is still observed.
	subCtx := context.WithoutCancel(ctx)
	for _, f := range []ports.Field{ports.FieldConfig, ports.FieldSequence} {
		field := f
		unsubscribe, err := w.store.Subscribe(ctx, field, func(value json.RawMessage) {
			_ = w.apply(subCtx, field, func() (json.RawMessage, error) { return value, nil })
		})
		if err != nil {
			stop()
			return nil, fmt.Errorf("subscribe %s: %w", field, err)
		}
		releases = append(releases, unsubscribe)
	}

	for _, f := range []ports.Field{ports.FieldConfig, ports.FieldSequence} {
		field := f
		err := w.apply(ctx, field, func() (json.RawMessage, error) { return w.store.Get(ctx, field) })
		if err != nil && !errors.Is(err, domain.ErrFieldNotFound) {
			stop()
			return nil, fmt.Errorf("load %s: %w", field, err)
		}
	}

	release, err := w.bridge.Start(ctx, receiver)
	if err != nil {
		stop()
		return nil, err
	}
	releases = append(releases, release)

	w.logger.Info("widget started", "destination", w.sender.Destination())
	return stop, nil
}

// SetConfig validates a configuration and writes it to the model state.
func (w *Widget) SetConfig(ctx context.Context, raw json.RawMessage) error {
	if _, err := domain.ParseConfig(raw); err != nil {
		return err
	}
	return w.store.Set(ctx, ports.FieldConfig, raw)
}

// Snapshot returns the current derived state.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

// Bridge exposes the underlying message bridge.
func (w *Widget) Bridge() *bridge.Bridge {
	return w.bridge
}

// Store exposes the model state store.
func (w *Widget) Store() ports.ModelStore {
	return w.store
}

// Watch registers fn to be called after every recomputation that changes the aggregate
// or records an error. The returned function deregisters it.
func (w *Widget) Watch(fn func(Snapshot)) (unwatch func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextWatch
	w.nextWatch++
	w.watchers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			delete(w.watchers, id)
		})
	}
}

// apply runs one change to completion. Handlers are serialized, and read runs under
// the same lock so a value read from the store cannot overwrite a newer notification.
// Only an error from read is returned.
func (w *Widget) apply(ctx context.Context, field ports.Field, read func() (json.RawMessage, error)) error {
	w.mu.Lock()
	raw, err := read()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	changed, err := w.applyLocked(field, raw)
	if err != nil {
		w.snap.Err = err
		changed = true
	}
	snap := w.snap
	watchers := make([]func(Snapshot), 0, len(w.watchers))
	for _, fn := range w.watchers {
		watchers = append(watchers, fn)
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("widget: keeping last valid aggregate", "field", field, "err", err)
		if w.hooks.OnError != nil {
			w.hooks.OnError(ctx, err)
		}
	}
	if !changed {
		return nil
	}
	if err == nil {
		w.logger.Debug("widget: aggregate updated", "sum", snap.Aggregate.Sum, "max", snap.Aggregate.Max.String(), "participants", snap.Participants)
		if w.hooks.OnAggregate != nil {
			w.hooks.OnAggregate(ctx, snap)
		}
	}
	for _, fn := range watchers {
		fn(snap)
	}
	return nil
}

func (w *Widget) applyLocked(field ports.Field, raw json.RawMessage) (bool, error) {
	switch field {
	case ports.FieldConfig:
		cfg, err := domain.ParseConfig(raw)
		if err != nil {
			return false, fmt.Errorf("config: %w", err)
		}
		w.snap.Design, w.snap.HasDesign = cfg.Design, true
	case ports.FieldSequence:
		sequences, err := domain.DecodeNodes(raw)
		if err != nil {
			return false, fmt.Errorf("sequence: %w", err)
		}
		w.sequences = sequences
	default:
		return false, nil
	}
	return w.recomputeLocked()
}

func (w *Widget) recomputeLocked() (bool, error) {
	design := w.snap.Design
	if !w.snap.HasDesign {
		design = domain.Composite()
	}

	agg, recomputed, err := w.memo.Compute(design, w.sequences)
	if err != nil {
		return false, err
	}
	hadErr := w.snap.Err != nil
	w.snap.Aggregate = agg
	w.snap.Participants = len(w.sequences)
	w.snap.Err = nil
	return recomputed || hadErr, nil
}
