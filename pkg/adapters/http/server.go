// Package http exposes a widget over HTTP: its snapshot, configuration and exports,
// a server-sent event stream of recomputations, and optional bridge and metrics mounts.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/internal/logging"
	"github.com/aretw0/revisit/internal/presentation/graph"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/export"
	"github.com/aretw0/revisit/pkg/frequency"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

const maxConfigBytes = 4 << 20

// Widget is the part of the widget host the API serves.
type Widget interface {
	Snapshot() revisit.Snapshot
	Watch(fn func(revisit.Snapshot)) (unwatch func())
	SetConfig(ctx context.Context, raw json.RawMessage) error
	Store() ports.ModelStore
}

// Server serves the widget API.
type Server struct {
	Widget  Widget
	Streams *StreamManager

	spec    *openapi3.T
	logger  *slog.Logger
	bridge  http.Handler
	metrics http.Handler
	router  chi.Router
	unwatch func()
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBridge mounts the frame transport (a WebSocket upgrade handler) on /bridge.
func WithBridge(h http.Handler) Option {
	return func(s *Server) {
		s.bridge = h
	}
}

// WithMetrics mounts a Prometheus handler on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer builds the router and starts forwarding widget recomputations to SSE clients.
// Call Close to stop forwarding.
func NewServer(ctx context.Context, w Widget, opts ...Option) (*Server, error) {
	s := &Server{Widget: w, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)

	spec, err := LoadSpec(ctx)
	if err != nil {
		return nil, err
	}
	s.spec = spec

	s.unwatch = w.Watch(func(snap revisit.Snapshot) {
		data, err := json.Marshal(snap)
		if err != nil {
			s.logger.Error("SSE: snapshot encode failed", "error", err)
			return
		}
		s.Streams.Broadcast(string(data))
	})

	r := chi.NewRouter()
	r.Use(enableCORS)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	r.Get("/aggregate", s.GetAggregate)
	r.Get("/aggregate/events", s.SubscribeAggregate)
	r.Get("/design", s.GetDesign)
	r.Get("/interruptions", s.GetInterruptions)
	r.Get("/config", s.GetConfig)
	r.Put("/config", s.PutConfig)
	r.Get("/exports/json", s.GetExportJSON)
	r.Get("/exports/tidy", s.GetExportTidy)
	if s.bridge != nil {
		r.Handle("/bridge", s.bridge)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops forwarding recomputations to event streams.
func (s *Server) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>reVISit Widget API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if s.spec != nil && s.spec.Info != nil {
		apiVersion = s.spec.Info.Version
	}
	writeJSON(w, s.logger, map[string]string{
		"app":         "revisit-http",
		"version":     strings.TrimSpace(revisit.Version),
		"api_version": apiVersion,
	})
}

// GetAggregate handles the GET /aggregate request.
func (s *Server) GetAggregate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, s.Widget.Snapshot())
}

// GetDesign handles the GET /design request. format=mermaid renders the design as a
// flowchart shaded by the current aggregate.
func (s *Server) GetDesign(w http.ResponseWriter, r *http.Request) {
	snap := s.Widget.Snapshot()
	if !snap.HasDesign {
		http.Error(w, "No configuration set", http.StatusNotFound)
		return
	}
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, s.logger, snap.Design)
	case "mermaid":
		w.Header().Set("Content-Type", "text/vnd.mermaid; charset=utf-8")
		_, _ = io.WriteString(w, graph.GenerateMermaid(snap.Design, &snap.Aggregate))
	default:
		http.Error(w, fmt.Sprintf("Unsupported format %q", format), http.StatusBadRequest)
	}
}

// GetInterruptions handles the GET /interruptions request.
func (s *Server) GetInterruptions(w http.ResponseWriter, r *http.Request) {
	ids := []string{}
	if snap := s.Widget.Snapshot(); snap.HasDesign {
		ids = append(ids, frequency.ExtractInterruptions(snap.Design)...)
	}
	writeJSON(w, s.logger, ids)
}

// GetConfig handles the GET /config request.
func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeField(w, r, ports.FieldConfig)
}

// PutConfig handles the PUT /config request.
func (s *Server) PutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Config exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.Widget.SetConfig(r.Context(), body); err != nil {
		if errors.Is(err, domain.ErrStructural) || errors.Is(err, domain.ErrSerialization) {
			http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
			s.logger.Warn("PutConfig: rejected", "error", err)
			return
		}
		http.Error(w, fmt.Sprintf("Store error: %v", err), http.StatusInternalServerError)
		s.logger.Error("PutConfig failed", "error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetExportJSON handles the GET /exports/json request.
func (s *Server) GetExportJSON(w http.ResponseWriter, r *http.Request) {
	s.writeField(w, r, ports.FieldExportJSON)
}

// GetExportTidy handles the GET /exports/tidy request. format=csv renders the table as CSV.
func (s *Server) GetExportTidy(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		s.writeField(w, r, ports.FieldExportTidy)
		return
	case "csv":
	default:
		http.Error(w, fmt.Sprintf("Unsupported format %q", format), http.StatusBadRequest)
		return
	}

	raw, ok := s.readField(w, r, ports.FieldExportTidy)
	if !ok {
		return
	}
	table, err := export.ParseTidy(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="participants.csv"`)
	if err := table.WriteCSV(w); err != nil {
		s.logger.Error("GetExportTidy: csv write failed", "error", err)
	}
}

// SubscribeAggregate handles the GET /aggregate/events request (SSE).
func (s *Server) SubscribeAggregate(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := s.Streams.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
	if data, err := json.Marshal(s.Widget.Snapshot()); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) readField(w http.ResponseWriter, r *http.Request, field ports.Field) (json.RawMessage, bool) {
	raw, err := s.Widget.Store().Get(r.Context(), field)
	if errors.Is(err, domain.ErrFieldNotFound) {
		http.Error(w, fmt.Sprintf("%s not set", field), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Store error: %v", err), http.StatusInternalServerError)
		s.logger.Error("store read failed", "field", field, "error", err)
		return nil, false
	}
	return raw, true
}

func (s *Server) writeField(w http.ResponseWriter, r *http.Request, field ports.Field) {
	raw, ok := s.readField(w, r, field)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}
