package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/revisit/internal/presentation/graph"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/frequency"
	"github.com/aretw0/revisit/pkg/study"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <study>",
	Short: "Check a study configuration",
	Long:  `Parses the study and its sequence design and reports the stimuli and interruptions it declares.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := study.Load(args[0])
		if err != nil {
			return err
		}
		cfg, err := domain.ParseConfig(raw)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		if _, err := cfg.Stringified(); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		leaves := frequency.Flatten([]domain.Node{cfg.Design})
		interruptions := frequency.ExtractInterruptions(cfg.Design)

		out := cmd.OutOrStdout()
		if asMermaid, _ := cmd.Flags().GetBool("mermaid"); asMermaid {
			fmt.Fprint(out, graph.GenerateMermaid(cfg.Design, nil))
			return nil
		}
		fmt.Fprintf(out, "Stimuli (%d): %s\n", len(leaves), strings.Join(leaves, ", "))
		fmt.Fprintf(out, "Interruptions (%d): %s\n", len(interruptions), strings.Join(interruptions, ", "))
		fmt.Fprintln(out, "Study is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("mermaid", false, "Print the design as a Mermaid flowchart instead")
}
