package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/revisit/internal/config"
	"github.com/aretw0/revisit/internal/logging"
)

// LoadSettings reads the settings file at path, or returns the defaults when path is empty.
func LoadSettings(path string) (config.Settings, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// NewLogger builds the process logger from the log settings. Logs always go to stderr
// so that stdout stays clean for reports and MCP stdio.
func NewLogger(s config.LogSettings) (*slog.Logger, error) {
	level, err := logging.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	switch s.Format {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("unknown log format %q", s.Format)
	}
	return logging.NewWithWriter(os.Stderr, level, s.Format), nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
