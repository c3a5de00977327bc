package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/knot/internal/compiler"
	"github.com/aretw0/knot/internal/validator"
	"github.com/aretw0/knot/pkg/adapters/lua"
	"github.com/aretw0/knot/pkg/symbols"
)

var validateCmd = &cobra.Command{
	Use:   "validate [bindings-file]",
	Short: "Check a bindings file for consistency",
	Long:  `Compiles every transform, parses every binding and checks that each referenced transform exists.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, table, err := compileBindings(args)
		if err != nil {
			return err
		}
		if err := validator.ValidatePlan(plan, table); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Bindings are valid! ✅ (%d bindings, %d clauses)\n", len(plan.Bindings), plan.Specs())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// compileBindings compiles the bindings file named in args, or the configured one.
func compileBindings(args []string) (*compiler.Plan, *symbols.Table, error) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return nil, nil, err
		}
		path = cfg.Bindings
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	table := symbols.NewTable()
	symbols.RegisterBuiltins(table)
	plan, err := compiler.NewParser(table, compiler.WithEvaluator(lua.New())).Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return plan, table, nil
}
