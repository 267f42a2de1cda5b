package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/revisit/internal/cli"
	"github.com/aretw0/revisit/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "revisit",
	Short: "revisit hosts a reVISit study widget",
	Long: `revisit keeps the model state of a reVISit study widget, talks to the embedded
study frame over a WebSocket bridge and reports how often each stimulus was shown.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Settings file (YAML or JSON)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
}

// settingsFromFlags loads the settings file and applies the flags the user set.
func settingsFromFlags(cmd *cobra.Command) (config.Settings, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	settings, err := cli.LoadSettings(path)
	if err != nil {
		return config.Settings{}, nil, err
	}

	overrides := map[string]any{}
	flagKeys := map[string]string{
		"listen":          "listen",
		"frame-url":       "frame_url",
		"trusted-origins": "trusted_origins",
		"study":           "study",
		"watch":           "watch",
	}
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	store := map[string]any{}
	if f := cmd.Flags().Lookup("store"); f != nil && f.Changed {
		store["backend"] = f.Value.String()
	}
	if f := cmd.Flags().Lookup("redis-addr"); f != nil && f.Changed {
		store["redis"] = map[string]any{"addr": f.Value.String()}
	}
	if len(store) > 0 {
		overrides["store"] = store
	}
	logSection := map[string]any{}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		logSection["level"] = f.Value.String()
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		logSection["format"] = f.Value.String()
	}
	if len(logSection) > 0 {
		overrides["log"] = logSection
	}

	if len(overrides) > 0 {
		if err := config.Decode(overrides, &settings); err != nil {
			return config.Settings{}, nil, err
		}
		if err := settings.Validate(); err != nil {
			return config.Settings{}, nil, err
		}
	}

	logger, err := cli.NewLogger(settings.Log)
	if err != nil {
		return config.Settings{}, nil, err
	}
	return settings, logger, nil
}

// addHostFlags registers the flags shared by commands that run a widget host.
func addHostFlags(cmd *cobra.Command) {
	cmd.Flags().String("study", "", "Study configuration to load (JSON or YAML)")
	cmd.Flags().String("frame-url", "", "URL of the embedded study frame; its origin is the send destination")
	cmd.Flags().String("trusted-origins", "", "Comma-separated origins accepted from the frame (* for any)")
	cmd.Flags().String("store", "", "Model store backend: memory or redis")
	cmd.Flags().String("redis-addr", "", "Redis address for the redis store")
}
