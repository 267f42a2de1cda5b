package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/revisit"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of revisit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "revisit version %s\n", strings.TrimSpace(revisit.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
