package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage tradebot configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  tradebot config init -o tradebot.yaml
  tradebot config validate -f tradebot.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings. The format follows
the file extension: .json writes JSON, anything else YAML.

Example:
  tradebot config init -o tradebot.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  tradebot config validate -f tradebot.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "tradebot.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  tradebot run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Assets:   %s (%s, %d min options, amount %.2f)\n",
		strings.Join(cfg.AssetList(), ", "), cfg.Mode(), cfg.Bot.DurationMinutes, cfg.Bot.Amount)
	fmt.Fprintf(out, "  Strategy: %s on %s candles\n", cfg.Signal.Strategy, cfg.Bot.Timeframe)
	fmt.Fprintf(out, "  Risk:     max loss %.2f/day, %d trades/day, RR >= %.2f, strength >= %.2f (%s scope, %s on cap)\n",
		cfg.Risk.MaxDailyLoss, cfg.Risk.MaxTradesPerDay, cfg.Risk.MinRiskReward, cfg.Risk.MinSignalStrength,
		cfg.Risk.Scope, cfg.Risk.OnDailyLossCap)
	fmt.Fprintf(out, "  Feed:     %s\n", cfg.Feed.Type)
	fmt.Fprintf(out, "  Journal:  %s\n", cfg.Journal.Type)
	return nil
}
