package cmd

import (
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebot/feed"
	"github.com/rustyeddy/tradebot/logging"
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Work with candle feeds",
}

var feedPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish candles from a CSV file to the Redis stream",
	Long: `Publish pushes candles from a CSV file onto the configured Redis stream in
the format "tradebot run" consumes, optionally paced to imitate a live feed.

Example:
  tradebot feed publish -c tradebot.yaml --data data/eurusd-m1.csv --pace 1s`,
	RunE: runFeedPublish,
}

var (
	pubData  string
	pubAsset string
	pubPace  time.Duration
)

func init() {
	rootCmd.AddCommand(feedCmd)
	feedCmd.AddCommand(feedPublishCmd)

	feedPublishCmd.Flags().StringVarP(&pubData, "data", "d", "", "candle CSV (required)")
	feedPublishCmd.Flags().StringVarP(&pubAsset, "asset", "a", "", "asset stream to publish to (default bot.asset)")
	feedPublishCmd.Flags().DurationVar(&pubPace, "pace", 0, "delay between candles")
	feedPublishCmd.MarkFlagRequired("data")
}

func runFeedPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx, envconfig.OsLookuper())
	if err != nil {
		return err
	}
	log, cleanup, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer cleanup()

	asset := pubAsset
	if asset == "" {
		asset = cfg.Bot.Asset
	}
	candles, err := feed.LoadCSV(pubData, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}

	r, err := feed.NewRedis(ctx, cfg.RedisFeed(asset), log)
	if err != nil {
		return err
	}
	defer r.Close()

	for i, c := range candles {
		if err := r.Publish(ctx, c); err != nil {
			return fmt.Errorf("publish candle %d: %w", i, err)
		}
		if pubPace > 0 && i < len(candles)-1 {
			select {
			case <-time.After(pubPace):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %d candles to %s\n", len(candles), cfg.RedisFeed(asset).Stream)
	return nil
}
