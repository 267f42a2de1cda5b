package main

import (
	"context"
	"os"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/internal/cli"
	"github.com/aretw0/revisit/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the widget host",
	Long: `Starts the widget host: the study frame connects to /bridge, the aggregate is served
over HTTP (see /openapi.yaml) and Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, logger, err := settingsFromFlags(cmd)
		if err != nil {
			return err
		}
		present, _ := cmd.Flags().GetBool("present")

		ctx, cancel := cli.SignalContext(context.Background())
		defer cancel()

		host, err := cli.NewHost(ctx, settings, logger)
		if err != nil {
			return err
		}
		defer host.Close()

		if settings.Watch && settings.Study != "" {
			go func() {
				if err := host.WatchStudy(ctx); err != nil {
					logger.Error("study watcher stopped", "error", err)
				}
			}()
		}

		if present {
			p, err := tui.New(os.Stdout)
			if err != nil {
				return err
			}
			p.Banner()
			unwatch := host.Widget.Watch(func(snap revisit.Snapshot) {
				if err := p.Present(snap); err != nil {
					logger.Warn("present failed", "error", err)
				}
			})
			defer unwatch()
		}

		return host.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addHostFlags(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (default :8765)")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload the study when its file changes")
	serveCmd.Flags().Bool("present", false, "Print the shaded design tree to stdout on every update")
}
