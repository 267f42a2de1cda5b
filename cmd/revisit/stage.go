package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/revisit/pkg/study"
	"github.com/spf13/cobra"
)

var stageCmd = &cobra.Command{
	Use:   "stage <study> <revisit-checkout>",
	Short: "Copy study assets into a reVISit checkout",
	Long: `Copies every component file, the help text and the logo referenced by the study into
the checkout's __revisit-widget/assets directories and prints the study with rewritten paths.
Relative asset paths resolve against the study file's directory unless --base is given.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := study.Load(args[0])
		if err != nil {
			return err
		}
		base, _ := cmd.Flags().GetString("base")
		if base == "" {
			base = filepath.Dir(args[0])
		}

		staged, assets, err := study.Stager{Root: args[1], Base: base}.Stage(raw)
		if err != nil {
			return err
		}
		for _, a := range assets {
			fmt.Fprintf(cmd.ErrOrStderr(), "staged %s -> %s\n", a.Src, a.Dest)
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(staged))
			return err
		}
		return os.WriteFile(out, append(staged, '\n'), 0o644)
	},
}

func init() {
	rootCmd.AddCommand(stageCmd)
	stageCmd.Flags().String("base", "", "Directory relative asset paths resolve against")
	stageCmd.Flags().StringP("out", "o", "", "Write the rewritten study here instead of stdout")
}
