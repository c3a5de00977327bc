package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aretw0/knot/internal/config"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "knot",
	Short: "Knot keeps pairs of entity properties in two-way sync",
	Long: `Knot ties access points of two entities together with a small binding language,
e.g. "text>trim : name" or "isEnabled : (isLogged & userId>trueWhenNot0) > trueWhenAllTrue".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./knot.yaml or ./.knot/knot.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")

	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig reads configuration from flags, KNOT_ environment variables and
// the config file, in that order of precedence.
func loadConfig() (config.Config, error) {
	return config.Load(v, cfgFile)
}

func debugEnabled(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}
