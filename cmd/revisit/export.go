package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/revisit/internal/cli"
	"github.com/aretw0/revisit/pkg/export"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write participant exports as CSV, SQLite or JSON",
	Long: `Reads the latest tidy export (or, with --format json, the JSON export) either from a
file given with --input or from the configured model store, and writes it out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		input, _ := cmd.Flags().GetString("input")
		out, _ := cmd.Flags().GetString("out")
		table, _ := cmd.Flags().GetString("table")

		field := ports.FieldExportTidy
		if format == "json" {
			field = ports.FieldExportJSON
		}

		raw, err := readExport(cmd, input, field)
		if err != nil {
			return err
		}

		switch format {
		case "json":
			return writeOut(cmd, out, func(w io.Writer) error {
				_, err := w.Write(append(raw, '\n'))
				return err
			})
		case "csv":
			t, err := export.ParseTidy(raw)
			if err != nil {
				return err
			}
			return writeOut(cmd, out, t.WriteCSV)
		case "sqlite":
			if out == "" {
				return fmt.Errorf("--out is required for sqlite")
			}
			t, err := export.ParseTidy(raw)
			if err != nil {
				return err
			}
			db, err := export.OpenSQLite(out)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := export.WriteSQLite(cmd.Context(), db, table, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d rows to %s (table %s)\n", len(t.Rows), out, table)
			return nil
		default:
			return fmt.Errorf("unknown format %q: use csv, sqlite or json", format)
		}
	},
}

func readExport(cmd *cobra.Command, input string, field ports.Field) (json.RawMessage, error) {
	if input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", input, err)
		}
		return data, nil
	}

	settings, logger, err := settingsFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	store, err := cli.NewStore(settings.Store, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return store.Get(ctx, field)
}

func writeOut(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("format", "csv", "Output format: csv, sqlite or json")
	exportCmd.Flags().StringP("input", "i", "", "Read the export from this file instead of the model store")
	exportCmd.Flags().StringP("out", "o", "", "Output file (stdout when empty; required for sqlite)")
	exportCmd.Flags().String("table", "participants", "SQLite table name")
	exportCmd.Flags().String("store", "", "Model store backend: memory or redis")
	exportCmd.Flags().String("redis-addr", "", "Redis address for the redis store")
}
