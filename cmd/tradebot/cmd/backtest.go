package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/feed"
	"github.com/rustyeddy/tradebot/logging"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/performance"
	"github.com/rustyeddy/tradebot/session"
	"github.com/rustyeddy/tradebot/sim"
	"github.com/rustyeddy/tradebot/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical candles through the trading session",
	Long: `Backtest replays a candle CSV through the same session, strategy and risk
gates used live, with the paper simulator settling every option from the
replayed candles. Backtests always run in PRACTICE mode.

Accepted CSV layouts:
  time,instrument,granularity,complete,volume,o,h,l,c
  time,open,high,low,close,volume

Example:
  tradebot backtest -c tradebot.yaml --data data/eurusd-m1.csv --from 2024-01-01T00:00:00Z`,
	RunE: runBacktest,
}

var (
	btData     string
	btAsset    string
	btFrom     string
	btTo       string
	btStrategy string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btData, "data", "d", "", "candle CSV (default feed.csv.path)")
	backtestCmd.Flags().StringVarP(&btAsset, "asset", "a", "", "asset to trade (default bot.asset)")
	backtestCmd.Flags().StringVar(&btFrom, "from", "", "first candle time, RFC3339 (inclusive)")
	backtestCmd.Flags().StringVar(&btTo, "to", "", "last candle time, RFC3339 (exclusive)")
	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "", "strategy name (default signal.strategy)")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx, envconfig.OsLookuper())
	if err != nil {
		return err
	}
	applyBacktestFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, cleanup, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer cleanup()

	from, to, err := cfg.FeedRange()
	if err != nil {
		return err
	}
	candles, err := feed.LoadCSV(cfg.Feed.CSV.Path, from, to)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles in %s", cfg.Feed.CSV.Path)
	}

	js, err := openJournals(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer js.Close()

	r, balance, err := backtest(ctx, cfg, candles, js, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	performance.PrintReport(out, r)
	fmt.Fprintf(out, "Paper Balance: %s\n", balance)

	runID, err := recordRun(js.db, cfg, r, cfg.Feed.CSV.Path)
	if err != nil {
		return err
	}
	if runID != "" {
		fmt.Fprintf(out, "Run ID:        %s\n", runID)
	}
	return nil
}

func applyBacktestFlags(cfg *config.Config) {
	cfg.Feed.Type = "csv"
	cfg.Bot.Mode = "PRACTICE"
	cfg.Bot.Assets = nil
	if btData != "" {
		cfg.Feed.CSV.Path = btData
	}
	if btAsset != "" {
		cfg.Bot.Asset = btAsset
	}
	if btFrom != "" {
		cfg.Feed.CSV.From = btFrom
	}
	if btTo != "" {
		cfg.Feed.CSV.To = btTo
	}
	if btStrategy != "" {
		cfg.Signal.Strategy = btStrategy
	}
}

// backtest runs one session over candles and returns its report and the
// final paper balance.
func backtest(ctx context.Context, cfg *config.Config, candles []market.Candle, js *journals, log *zap.Logger) (performance.Report, string, error) {
	strat, err := strategies.StrategyByName(cfg.Signal.Strategy, cfg.Signal.Config)
	if err != nil {
		return performance.Report{}, "", fmt.Errorf("strategy: %w", err)
	}
	exec, err := newExecutor(cfg, log)
	if err != nil {
		return performance.Report{}, "", err
	}
	scfg, err := sessionConfig(cfg, cfg.Bot.Asset)
	if err != nil {
		return performance.Report{}, "", err
	}
	// replayed options must settle from candles, never from the wall clock
	scfg.SettlementGrace += 24 * time.Hour

	s, err := session.NewController(scfg, session.Deps{
		Strategy: strat,
		Executor: exec,
		Journal:  js.all,
		Logger:   log,
	})
	if err != nil {
		return performance.Report{}, "", err
	}

	ch := make(chan market.Candle, len(candles))
	for _, c := range candles {
		ch <- c
	}
	close(ch)

	if err := s.Run(ctx, ch); err != nil {
		return performance.Report{}, "", err
	}

	balance := ""
	if e, ok := exec.(*sim.Engine); ok {
		balance = e.Balance().StringFixed(2)
	}
	return s.Report(), balance, nil
}
