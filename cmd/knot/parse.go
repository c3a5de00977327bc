package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/knot/internal/presentation/tui"
	"github.com/aretw0/knot/pkg/adapters/lua"
	"github.com/aretw0/knot/pkg/domain"
	"github.com/aretw0/knot/pkg/dsl"
	"github.com/aretw0/knot/pkg/symbols"
)

// parseOutput is the machine readable form of a parse result.
type parseOutput struct {
	Specs  []*domain.Spec `json:"specs" yaml:"specs"`
	Issues []string       `json:"issues,omitempty" yaml:"issues,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse <binding>...",
	Short: "Parse binding text and print the resulting clauses",
	Long:  `Parses the arguments as one binding text. Dropped clauses are reported and make the command exit with status 1.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		table := symbols.NewTable()
		symbols.RegisterBuiltins(table)
		res := dsl.NewParser(table, dsl.WithEvaluator(lua.New())).Parse(strings.Join(args, " "))

		out := parseOutput{Specs: res.Specs}
		for _, issue := range res.Issues {
			out.Issues = append(out.Issues, issue.Error())
		}

		w := cmd.OutOrStdout()
		switch output {
		case "json":
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
		case "yaml":
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
		case "table":
			markdown := tui.SpecsTable(res.Specs)
			if issues := tui.IssuesList(res.Issues); issues != "" {
				markdown += "\n" + issues
			}
			if tui.IsTerminal(w) {
				if rendered, err := tui.NewRenderer()(markdown); err == nil {
					markdown = rendered
				}
			}
			fmt.Fprint(w, markdown)
		default:
			return fmt.Errorf("unknown output %q (want yaml, json or table)", output)
		}

		if len(res.Issues) > 0 {
			return fmt.Errorf("%d clause(s) dropped", len(res.Issues))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().StringP("output", "o", "table", "Output format: yaml, json or table")
}
