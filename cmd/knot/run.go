package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/knot"
	"github.com/aretw0/knot/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Tie the bindings file between Redis entities",
	Long: `Connects to Redis, ties every binding of the bindings file between the named hashes,
serves the inspection API and unties everything on shutdown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return cli.Execute(cmd.Context(), cli.RunOptions{
			Config:  cfg,
			Debug:   debugEnabled(cmd),
			Version: knot.Version,
			Out:     cmd.OutOrStdout(),
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("bindings", "b", "", "Bindings file (default: bindings.yaml)")
	runCmd.Flags().BoolP("watch", "w", false, "Reload the bindings when the file changes")
	runCmd.Flags().String("redis-addr", "", "Redis address (default: localhost:6379)")
	runCmd.Flags().String("inspect-addr", "", "Inspection API address, empty string disables it (default: :8080)")

	_ = v.BindPFlag("bindings", runCmd.Flags().Lookup("bindings"))
	_ = v.BindPFlag("watch", runCmd.Flags().Lookup("watch"))
	_ = v.BindPFlag("redis.addr", runCmd.Flags().Lookup("redis-addr"))
	_ = v.BindPFlag("inspect.addr", runCmd.Flags().Lookup("inspect-addr"))
}
