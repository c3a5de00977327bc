package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/knot/internal/presentation/graph"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph [bindings-file]",
	Short: "Export the binding topology visualization",
	Long:  `Compiles the bindings file and outputs a Mermaid diagram (graph LR) of the entities and the clauses tying them.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, _, err := compileBindings(args)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(plan.Bindings, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
