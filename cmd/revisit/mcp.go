package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/aretw0/revisit/internal/cli"
	"github.com/aretw0/revisit/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the widget's frequencies and design tools to MCP clients.
With the redis store the server reads the same model state as a running 'revisit serve'.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, logger, err := settingsFromFlags(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		ctx, cancel := cli.SignalContext(context.Background())
		defer cancel()

		host, err := cli.NewHost(ctx, settings, logger)
		if err != nil {
			return err
		}
		defer host.Close()

		srv := mcp.NewServer(host.Widget)

		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting revisit MCP Server (Stdio)...")
			return srv.ServeStdio()
		case "sse":
			logger.Info("Starting revisit MCP Server (SSE)", "port", port)
			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return errors.New("unknown transport " + transport + ". Supported: stdio, sse")
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	addHostFlags(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8766, "Port to listen on (only for SSE)")
}
