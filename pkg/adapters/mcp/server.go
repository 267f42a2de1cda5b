// Package mcp exposes the frequency aggregate and the design tools over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/frequency"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const aggregateURI = "revisit://aggregate"

// Snapshotter is the part of the widget the MCP server reads.
type Snapshotter interface {
	Snapshot() revisit.Snapshot
}

// FrequenciesResponse is the structured result of get_frequencies and compute_frequencies.
type FrequenciesResponse struct {
	Table        domain.FrequencyTable `json:"table" jsonschema_description:"Times each stimulus was shown, interruptions excluded"`
	Sum          int                   `json:"sum" jsonschema_description:"Total of all counts"`
	Max          *int                  `json:"max" jsonschema_description:"Largest count, null when there is no data"`
	Participants int                   `json:"participants,omitempty" jsonschema_description:"Number of participant sequences"`
	Error        string                `json:"error,omitempty" jsonschema_description:"Last structural error; the table is the last valid one"`
}

// IDsResponse wraps a list of stimulus ids.
type IDsResponse struct {
	IDs []string `json:"ids" jsonschema_description:"Stimulus ids in order"`
}

type flattenArgs struct {
	Sequence string `json:"sequence"`
}

type interruptionsArgs struct {
	Design string `json:"design"`
}

type computeArgs struct {
	Design    string `json:"design"`
	Sequences string `json:"sequences"`
}

// Server exposes a widget as an MCP server.
type Server struct {
	widget    Snapshotter
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(widget Snapshotter) *Server {
	s := &Server{
		widget:    widget,
		mcpServer: server.NewMCPServer("revisit-mcp", strings.TrimSpace(revisit.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP server over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_frequencies",
		mcp.WithDescription("Get how often each stimulus of the current design was shown to participants."),
		mcp.WithOutputSchema[FrequenciesResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetFrequencies))

	s.mcpServer.AddTool(mcp.NewTool("get_interruptions",
		mcp.WithDescription("List the interruption stimulus ids declared by a design. Uses the current design when none is given."),
		mcp.WithString("design", mcp.Description("JSON design node (optional)")),
		mcp.WithOutputSchema[IDsResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetInterruptions))

	s.mcpServer.AddTool(mcp.NewTool("flatten_sequence",
		mcp.WithDescription("Flatten a nested sequence into the ordered list of stimulus ids it shows."),
		mcp.WithString("sequence", mcp.Required(), mcp.Description("JSON sequence: a node or an array of nodes")),
		mcp.WithOutputSchema[IDsResponse](),
	), mcp.NewStructuredToolHandler(s.handleFlatten))

	s.mcpServer.AddTool(mcp.NewTool("compute_frequencies",
		mcp.WithDescription("Compute a frequency table for an arbitrary design and participant sequences without touching the widget."),
		mcp.WithString("design", mcp.Required(), mcp.Description("JSON root design node")),
		mcp.WithString("sequences", mcp.Required(), mcp.Description("JSON array of participant sequences")),
		mcp.WithOutputSchema[FrequenciesResponse](),
	), mcp.NewStructuredToolHandler(s.handleCompute))
}

func (s *Server) handleGetFrequencies(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (FrequenciesResponse, error) {
	snap := s.widget.Snapshot()
	resp := toResponse(snap.Aggregate)
	resp.Participants = snap.Participants
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp, nil
}

func (s *Server) handleGetInterruptions(ctx context.Context, request mcp.CallToolRequest, args interruptionsArgs) (IDsResponse, error) {
	var design domain.Node
	if args.Design != "" {
		n, err := domain.DecodeNode([]byte(args.Design), "$")
		if err != nil {
			return IDsResponse{}, err
		}
		design = n
	} else {
		snap := s.widget.Snapshot()
		if !snap.HasDesign {
			return IDsResponse{}, fmt.Errorf("no design configured")
		}
		design = snap.Design
	}
	return IDsResponse{IDs: nonNil(frequency.ExtractInterruptions(design))}, nil
}

func (s *Server) handleFlatten(ctx context.Context, request mcp.CallToolRequest, args flattenArgs) (IDsResponse, error) {
	nodes, err := decodeSequence([]byte(args.Sequence))
	if err != nil {
		return IDsResponse{}, err
	}
	ids, err := frequency.FlattenChecked(nodes)
	if err != nil {
		return IDsResponse{}, err
	}
	return IDsResponse{IDs: nonNil(ids)}, nil
}

func (s *Server) handleCompute(ctx context.Context, request mcp.CallToolRequest, args computeArgs) (FrequenciesResponse, error) {
	design, err := domain.DecodeNode([]byte(args.Design), "$")
	if err != nil {
		return FrequenciesResponse{}, err
	}
	sequences, err := domain.DecodeNodes([]byte(args.Sequences))
	if err != nil {
		return FrequenciesResponse{}, err
	}
	agg, err := frequency.Aggregate(design, sequences)
	if err != nil {
		return FrequenciesResponse{}, err
	}
	resp := toResponse(agg)
	resp.Participants = len(sequences)
	return resp, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(aggregateURI, "Current Frequency Aggregate",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.widget.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      aggregateURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

// decodeSequence accepts a single node or an array of nodes.
func decodeSequence(raw []byte) ([]domain.Node, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		return domain.DecodeNodes([]byte(trimmed))
	}
	n, err := domain.DecodeNode([]byte(trimmed), "$")
	if err != nil {
		return nil, err
	}
	return []domain.Node{n}, nil
}

func toResponse(agg domain.Aggregate) FrequenciesResponse {
	resp := FrequenciesResponse{Table: agg.Table, Sum: agg.Sum}
	if resp.Table == nil {
		resp.Table = domain.FrequencyTable{}
	}
	if agg.Max.Valid {
		v := agg.Max.Value
		resp.Max = &v
	}
	return resp
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
