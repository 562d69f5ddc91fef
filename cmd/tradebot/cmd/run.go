package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/feed"
	"github.com/rustyeddy/tradebot/logging"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/metrics"
	"github.com/rustyeddy/tradebot/performance"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/session"
	"github.com/rustyeddy/tradebot/strategies"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trade every configured asset from the live feed",
	Long: `Run starts one trading session per configured asset and feeds each from
the configured source: a Redis stream for live candles or a CSV file replayed
at an optional pace.

Every session runs until its feed ends, the daily loss cap halts it, or the
process receives SIGINT/SIGTERM. The first signal stops every session once
its open order has settled; a second signal aborts at once and records open
orders as UNKNOWN. A summary is printed per asset at the end.

Example:
  tradebot run -c tradebot.yaml --backfill data/{asset}-history.csv`,
	RunE: runRun,
}

var (
	runBackfill string
	runPace     time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runBackfill, "backfill", "", "CSV of recent candles loaded before trading; {asset} is replaced per asset")
	runCmd.Flags().DurationVar(&runPace, "pace", 0, "csv feed: delay between candles (0 replays as fast as possible)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	cfg, err := loadConfig(ctx, envconfig.OsLookuper())
	if err != nil {
		return err
	}
	log, cleanup, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer cleanup()

	js, err := openJournals(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer js.Close()

	strat, err := strategies.StrategyByName(cfg.Signal.Strategy, cfg.Signal.Config)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	var m *metrics.Metrics
	srvCtx, stopSrv := context.WithCancel(context.Background())
	defer stopSrv()
	srvDone := make(chan error, 1)
	if cfg.Metrics.Enabled {
		m = metrics.New()
		srv := metrics.NewServer(cfg.Metrics.Addr, m, log)
		go func() { srvDone <- srv.Run(srvCtx) }()
	} else {
		srvDone <- nil
	}

	// account scope shares one set of daily limits between all assets
	var book *risk.Book
	if cfg.Risk.Scope == "account" {
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		book = risk.NewBook(loc)
	}

	g, gctx := errgroup.WithContext(ctx)
	var sessions []*session.Controller
	for _, asset := range cfg.AssetList() {
		alog := log.With(zap.String("asset", asset))
		exec, err := newExecutor(cfg, alog)
		if err != nil {
			return err
		}
		scfg, err := sessionConfig(cfg, asset)
		if err != nil {
			return err
		}
		s, err := session.NewController(scfg, session.Deps{
			Strategy: strat,
			Executor: exec,
			Book:     book,
			Journal:  js.all,
			Metrics:  m,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		if err := s.Connect(ctx); err != nil {
			return err
		}
		if runBackfill != "" {
			path := strings.ReplaceAll(runBackfill, "{asset}", asset)
			history, err := feed.LoadCSV(path, time.Time{}, time.Time{})
			if err != nil {
				return fmt.Errorf("backfill %s: %w", asset, err)
			}
			if err := s.Backfill(history); err != nil {
				return err
			}
		}

		src, closeSrc, err := newSource(gctx, cfg, asset, alog)
		if err != nil {
			return err
		}
		startSession(gctx, g, cfg, asset, s, src, closeSrc, js, m, alog)
		sessions = append(sessions, s)
	}

	log.Info("trading",
		zap.Strings("assets", cfg.AssetList()),
		zap.String("mode", string(cfg.Mode())),
		zap.String("strategy", strat.Name()),
		zap.String("feed", cfg.Feed.Type))

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		stopOnSignal(gctx, sigs, sessions, cancel, log)
	}()

	err = g.Wait()
	cancel()
	<-watchDone
	stopSrv()
	if serr := <-srvDone; serr != nil {
		log.Warn("metrics server", zap.Error(serr))
	}

	out := cmd.OutOrStdout()
	for _, s := range sessions {
		r := s.Report()
		performance.PrintReport(out, r)
		runID, rerr := recordRun(js.db, cfg, r, cfg.Feed.Type)
		if rerr != nil {
			log.Error("record run", zap.Error(rerr))
		} else if runID != "" {
			fmt.Fprintf(out, "Run ID:        %s\n", runID)
		}
		fmt.Fprintln(out)
	}

	if quiet(err) {
		return nil
	}
	return err
}

// stopOnSignal stops every session at the first signal so open orders settle
// before shutdown, and cancels the run at the second.
func stopOnSignal(ctx context.Context, sigs <-chan os.Signal, sessions []*session.Controller, cancel context.CancelFunc, log *zap.Logger) {
	select {
	case <-ctx.Done():
		return
	case sig := <-sigs:
		log.Info("stopping sessions after open orders settle", zap.Stringer("signal", sig))
		for _, s := range sessions {
			s.Stop()
		}
	}
	select {
	case <-ctx.Done():
	case sig := <-sigs:
		log.Warn("aborting", zap.Stringer("signal", sig))
		cancel()
	}
}

// newSource opens the configured feed for one asset.
func newSource(ctx context.Context, cfg *config.Config, asset string, log *zap.Logger) (feed.Source, func() error, error) {
	switch cfg.Feed.Type {
	case "redis":
		r, err := feed.NewRedis(ctx, cfg.RedisFeed(asset), log)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		from, to, err := cfg.FeedRange()
		if err != nil {
			return nil, nil, err
		}
		path := strings.ReplaceAll(cfg.Feed.CSV.Path, "{asset}", asset)
		c, err := feed.NewCSV(path, from, to)
		if err != nil {
			return nil, nil, fmt.Errorf("open feed %s: %w", path, err)
		}
		c.Asset = asset
		c.Pace = runPace
		return c, c.Close, nil
	}
}

// startSession wires source -> fan-out -> session for one asset. The session
// always receives every candle; the candle recorder may fall behind and
// drop. When the session ends the asset's source is stopped with it.
func startSession(ctx context.Context, g *errgroup.Group, cfg *config.Config, asset string, s *session.Controller,
	src feed.Source, closeSrc func() error, js *journals, m *metrics.Metrics, log *zap.Logger) {
	ctx, cancel := context.WithCancel(ctx)

	raw := make(chan market.Candle, cfg.Feed.Buffer)
	fan := feed.NewFanOut(cfg.Feed.Buffer)
	names := []string{asset + "/session"}
	trade := fan.Subscribe(feed.Block)

	var record <-chan market.Candle
	if js.influx != nil {
		record = fan.Subscribe(feed.Drop)
		names = append(names, asset+"/recorder")
	}
	fan.OnDrop = func(i int) { m.FanoutDrop(names[i]) }

	g.Go(func() error {
		defer closeSrc()
		err := src.Run(ctx, raw)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		fan.Run(ctx, raw)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return s.Run(ctx, trade)
	})
	if record != nil {
		g.Go(func() error {
			for c := range record {
				if err := js.influx.RecordCandle(asset, c); err != nil {
					log.Warn("record candle", zap.Error(err))
				}
			}
			return nil
		})
	}
}
