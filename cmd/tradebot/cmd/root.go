package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradebot",
	Short: "An automated binary options trading agent",
	Long: `Tradebot watches closed candles for one or more assets, scores them with
technical indicators, gates every candidate trade through daily risk limits,
and places fixed-amount binary options in PRACTICE (paper) or REAL mode.

Settings come from a YAML or JSON file (see "tradebot config init") and may be
overridden with TRADEBOT_* environment variables, e.g. TRADEBOT_BOT_ASSET.`,
	SilenceUsage: true,
}

var (
	cfgPath  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (YAML or JSON); defaults when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}
