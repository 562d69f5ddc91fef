package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/config"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/performance"
	"github.com/rustyeddy/tradebot/pkg/id"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/session"
	"github.com/rustyeddy/tradebot/sim"
)

// loadConfig reads --config (or the defaults), applies TRADEBOT_*
// environment overrides and validates the result.
func loadConfig(ctx context.Context, l envconfig.Lookuper) (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(cfgPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(ctx, l); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// journals is every sink configured for trade records.
type journals struct {
	all    journal.Multi
	db     *journal.SQLite // nil unless journal.type is sqlite
	influx *journal.Influx // nil unless journal.influx.enabled
}

func openJournals(ctx context.Context, cfg *config.Config, log *zap.Logger) (*journals, error) {
	js := &journals{}
	switch cfg.Journal.Type {
	case "sqlite":
		db, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open journal %s: %w", cfg.Journal.DBPath, err)
		}
		js.db = db
		js.all = append(js.all, db)
	case "csv":
		c, err := journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.StatsFile)
		if err != nil {
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		js.all = append(js.all, c)
	}

	if cfg.Journal.Influx.Enabled {
		ix, err := journal.NewInflux(cfg.Journal.Influx.InfluxConfig)
		if err != nil {
			js.Close()
			return nil, err
		}
		if err := ix.Health(ctx); err != nil {
			log.Warn("influxdb not healthy; writes will be retried per record", zap.Error(err))
		}
		js.influx = ix
		js.all = append(js.all, ix)
	}
	return js, nil
}

func (js *journals) Close() error {
	return js.all.Close()
}

// newExecutor picks the executor for the configured mode. Only PRACTICE has
// a built-in executor; REAL needs an external adapter registered here.
func newExecutor(cfg *config.Config, log *zap.Logger) (broker.Executor, error) {
	interval, err := cfg.Interval()
	if err != nil {
		return nil, err
	}
	reg := broker.NewRegistry()
	reg.Register(broker.Practice, sim.NewEngine(sim.Config{
		Interval:   interval,
		PayoutRate: decimal.NewFromFloat(cfg.Risk.PayoutRate),
		Balance:    decimal.NewFromFloat(cfg.Bot.Balance),
		History:    256,
	}, log))
	return reg.Select(cfg.Mode())
}

func sessionConfig(cfg *config.Config, asset string) (session.Config, error) {
	interval, err := cfg.Interval()
	if err != nil {
		return session.Config{}, err
	}
	hours, err := cfg.Hours()
	if err != nil {
		return session.Config{}, err
	}
	grace, err := cfg.SettlementGrace()
	if err != nil {
		return session.Config{}, err
	}
	delay, err := cfg.SubmitRetryDelay()
	if err != nil {
		return session.Config{}, err
	}
	model, err := risk.ParseRewardModel(cfg.Risk.RewardModel)
	if err != nil {
		return session.Config{}, err
	}
	capPolicy, err := session.ParseCapPolicy(cfg.Risk.OnDailyLossCap)
	if err != nil {
		return session.Config{}, err
	}

	return session.Config{
		Asset:            asset,
		Amount:           cfg.Amount(),
		Duration:         cfg.Duration(),
		Mode:             cfg.Mode(),
		Interval:         interval,
		Indicators:       cfg.Indicators,
		Policy:           cfg.Policy(),
		RewardModel:      model,
		PayoutRate:       cfg.Risk.PayoutRate,
		CapPolicy:        capPolicy,
		Hours:            hours,
		SettlementGrace:  grace,
		SubmitRetries:    cfg.Session.SubmitRetries,
		SubmitRetryDelay: delay,
		CompleteCandles:  cfg.Feed.Type == "csv",
	}, nil
}

// recordRun stores the session summary next to its trades.
func recordRun(db *journal.SQLite, cfg *config.Config, r performance.Report, dataset string) (string, error) {
	if db == nil {
		return "", nil
	}
	redacted := *cfg
	redacted.Feed.Redis.Password = ""
	redacted.Journal.Influx.Token = ""
	raw, err := json.Marshal(redacted)
	if err != nil {
		return "", err
	}
	run := journal.Run{
		RunID:     id.New(),
		Created:   time.Now().UTC(),
		Asset:     r.Asset,
		Strategy:  r.Strategy,
		Mode:      r.Mode,
		Dataset:   dataset,
		Config:    raw,
		Start:     r.Start,
		End:       r.End,
		Candles:   r.Candles,
		Trades:    r.Stats.Trades(),
		Wins:      r.Stats.Wins,
		Losses:    r.Stats.Losses,
		Draws:     r.Stats.Draws,
		NetProfit: r.Stats.TotalProfit,
		WinRate:   r.Stats.WinRate,
	}
	if err := db.RecordRun(run); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return run.RunID, nil
}

// quiet reports whether err is an ordinary shutdown.
func quiet(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
