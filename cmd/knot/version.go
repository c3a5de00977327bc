package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/knot"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of knot",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "knot version %s\n", strings.TrimSpace(knot.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
