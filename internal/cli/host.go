// Package cli wires settings into a running widget host for the revisit commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/internal/config"
	"github.com/aretw0/revisit/internal/metrics"
	httpAdapter "github.com/aretw0/revisit/pkg/adapters/http"
	"github.com/aretw0/revisit/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/revisit/pkg/adapters/redis"
	"github.com/aretw0/revisit/pkg/adapters/ws"
	"github.com/aretw0/revisit/pkg/bridge"
	"github.com/aretw0/revisit/pkg/persistence/middleware"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/aretw0/revisit/pkg/study"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Host is one running widget: its store, frame transport, metrics and HTTP API.
type Host struct {
	Settings config.Settings
	Store    ports.ModelStore
	Hub      *ws.Hub
	Widget   *revisit.Widget
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	API      *httpAdapter.Server

	logger  *slog.Logger
	closers []func()
}

// NewHost builds and starts a widget host from settings. If settings name a study it
// is loaded into the config field. Close releases everything.
func NewHost(ctx context.Context, settings config.Settings, logger *slog.Logger) (*Host, error) {
	h := &Host{Settings: settings, logger: logger, Registry: prometheus.NewRegistry()}

	ok := false
	defer func() {
		if !ok {
			h.Close()
		}
	}()

	store, err := NewStore(settings.Store, logger)
	if err != nil {
		return nil, err
	}
	h.Store = store
	if c, isCloser := store.(interface{ Close() error }); isCloser {
		h.closers = append(h.closers, func() { _ = c.Close() })
	}

	dest, err := settings.Destination()
	if err != nil {
		return nil, err
	}
	hub, err := ws.NewHub(dest, ws.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	h.Hub = hub
	h.closers = append(h.closers, hub.Close)

	policy, err := settings.OriginPolicy()
	if err != nil {
		return nil, err
	}

	m, err := metrics.New(h.Registry)
	if err != nil {
		return nil, err
	}
	h.Metrics = m

	widget, err := revisit.New(store, hub,
		revisit.WithLogger(logger),
		revisit.WithHooks(m.WidgetHooks()),
		revisit.WithBridgeOptions(bridge.WithOrigins(policy), bridge.WithHooks(m.BridgeHooks())),
	)
	if err != nil {
		return nil, err
	}
	h.Widget = widget

	stop, err := widget.Start(ctx, hub)
	if err != nil {
		return nil, fmt.Errorf("failed to start widget: %w", err)
	}
	h.closers = append(h.closers, stop)

	if settings.Study != "" {
		raw, err := study.Load(settings.Study)
		if err != nil {
			return nil, err
		}
		if err := widget.SetConfig(ctx, raw); err != nil {
			return nil, fmt.Errorf("study %s: %w", settings.Study, err)
		}
		logger.Info("study loaded", "path", settings.Study)
	}

	api, err := httpAdapter.NewServer(ctx, widget,
		httpAdapter.WithLogger(logger),
		httpAdapter.WithBridge(hub),
		httpAdapter.WithMetrics(promhttp.HandlerFor(h.Registry, promhttp.HandlerOpts{})),
	)
	if err != nil {
		return nil, err
	}
	h.API = api
	h.closers = append(h.closers, api.Close)

	ok = true
	return h, nil
}

// NewStore creates the configured model store, wrapped with export masking and
// encryption when the settings ask for them.
func NewStore(s config.StoreSettings, logger *slog.Logger) (ports.ModelStore, error) {
	backend, err := newBackend(s, logger)
	if err != nil {
		return nil, err
	}

	var mws []middleware.Middleware
	if len(s.MaskPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(s.MaskPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	active, fallback, err := s.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	if len(mws) == 0 {
		return backend, nil
	}
	return closingStore{ModelStore: middleware.Chain(backend, mws...), backend: backend}, nil
}

// closingStore keeps the backend's Close reachable through the middleware chain.
type closingStore struct {
	ports.ModelStore
	backend ports.ModelStore
}

func (c closingStore) Close() error {
	if closer, ok := c.backend.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func newBackend(s config.StoreSettings, logger *slog.Logger) (ports.ModelStore, error) {
	switch s.Backend {
	case config.BackendMemory, "":
		return memory.NewStore(), nil
	case config.BackendRedis:
		opts := []redisAdapter.Option{redisAdapter.WithLogger(logger)}
		if s.Redis.Prefix != "" {
			opts = append(opts, redisAdapter.WithPrefix(s.Redis.Prefix))
		}
		if s.Redis.TTL > 0 {
			opts = append(opts, redisAdapter.WithTTL(s.Redis.TTL))
		}
		return redisAdapter.New(s.Redis.Addr, s.Redis.Password, s.Redis.DB, opts...), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}
}

// WatchStudy reloads the study into the widget on every change until ctx is done.
func (h *Host) WatchStudy(ctx context.Context) error {
	if h.Settings.Study == "" {
		return errors.New("no study configured")
	}
	return study.Watch(ctx, h.Settings.Study, func(raw json.RawMessage) {
		if err := h.Widget.SetConfig(ctx, raw); err != nil {
			h.logger.Warn("study change rejected", "path", h.Settings.Study, "error", err)
		}
	}, study.WithWatchLogger(h.logger))
}

// Serve runs the HTTP API on the configured address until ctx is done, then shuts down gracefully.
func (h *Host) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.Settings.Listen,
		Handler:           h.API,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		h.logger.Info("widget host listening", "addr", srv.Addr, "destination", h.Hub.Destination())
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		h.Hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("graceful shutdown did not complete in %v: %w", shutdownTimeout, err)
		}
		h.logger.Info("widget host stopped gracefully")
		return nil
	}
}

// Close releases every resource in reverse order of acquisition.
func (h *Host) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		h.closers[i]()
	}
	h.closers = nil
}
