package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/internal/presentation/graph"
	"github.com/aretw0/revisit/internal/presentation/tui"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/frequency"
	"github.com/aretw0/revisit/pkg/study"
	"github.com/spf13/cobra"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <study> <sequences.json>",
	Short: "Compute stimulus frequencies offline",
	Long: `Reads a study and a JSON array of participant sequences and prints how often each
stimulus was shown, excluding interruptions.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := study.Load(args[0])
		if err != nil {
			return err
		}
		cfg, err := domain.ParseConfig(raw)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read sequences: %w", err)
		}
		sequences, err := domain.DecodeNodes(data)
		if err != nil {
			return err
		}
		agg, err := frequency.Aggregate(cfg.Design, sequences)
		if err != nil {
			return err
		}

		snap := revisit.Snapshot{Design: cfg.Design, HasDesign: true, Aggregate: agg, Participants: len(sequences)}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		if asMermaid, _ := cmd.Flags().GetBool("mermaid"); asMermaid {
			_, err := fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(cfg.Design, &agg))
			return err
		}

		p, err := tui.New(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return p.Present(snap)
	},
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateCmd.Flags().Bool("json", false, "Print the snapshot as JSON")
	aggregateCmd.Flags().Bool("mermaid", false, "Print the design as a Mermaid flowchart shaded by frequency")
}
