package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // session.timezone must resolve on hosts without zoneinfo

	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/feed"
	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/logging"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategies"
)

// EnvPrefix prefixes every environment override, e.g. TRADEBOT_BOT_ASSET.
const EnvPrefix = "TRADEBOT_"

// Config is the complete bot configuration.
type Config struct {
	Bot        BotConfig         `json:"bot" yaml:"bot" env:", prefix=BOT_"`
	Indicators indicators.Params `json:"indicators" yaml:"indicators"`
	Signal     SignalConfig      `json:"signal" yaml:"signal" env:", prefix=SIGNAL_"`
	Risk       RiskConfig        `json:"risk" yaml:"risk" env:", prefix=RISK_"`
	Session    SessionConfig     `json:"session" yaml:"session" env:", prefix=SESSION_"`
	Feed       FeedConfig        `json:"feed" yaml:"feed" env:", prefix=FEED_"`
	Journal    JournalConfig     `json:"journal" yaml:"journal" env:", prefix=JOURNAL_"`
	Log        logging.Config    `json:"log" yaml:"log" env:", prefix=LOG_"`
	Metrics    MetricsConfig     `json:"metrics" yaml:"metrics" env:", prefix=METRICS_"`
}

// BotConfig names what is traded and how much.
type BotConfig struct {
	Asset           string   `json:"asset" yaml:"asset" env:"ASSET"`
	Assets          []string `json:"assets,omitempty" yaml:"assets,omitempty" env:"ASSETS"` // extra assets traded alongside Asset
	DurationMinutes int      `json:"duration_minutes" yaml:"duration_minutes" env:"DURATION_MINUTES"`
	Amount          float64  `json:"amount" yaml:"amount" env:"AMOUNT"`
	Mode            string   `json:"mode" yaml:"mode" env:"MODE"`                // PRACTICE or REAL
	Timeframe       string   `json:"timeframe" yaml:"timeframe" env:"TIMEFRAME"` // candle interval, e.g. "1m"
	Balance         float64  `json:"balance" yaml:"balance" env:"BALANCE"`       // paper balance
}

// SignalConfig selects the strategy and its thresholds.
type SignalConfig struct {
	Strategy          string `json:"strategy" yaml:"strategy" env:"STRATEGY"`
	strategies.Config `yaml:",inline"`
}

// RiskConfig holds the gating limits and the policies around them.
type RiskConfig struct {
	MaxDailyLoss      float64 `json:"max_daily_loss" yaml:"max_daily_loss" env:"MAX_DAILY_LOSS"`
	MaxTradesPerDay   int     `json:"max_trades_per_day" yaml:"max_trades_per_day" env:"MAX_TRADES_PER_DAY"`
	MinRiskReward     float64 `json:"min_risk_reward" yaml:"min_risk_reward" env:"MIN_RISK_REWARD"`
	MinSignalStrength float64 `json:"min_signal_strength" yaml:"min_signal_strength" env:"MIN_SIGNAL_STRENGTH"`
	RewardModel       string  `json:"reward_model" yaml:"reward_model" env:"REWARD_MODEL"` // bands or payout
	PayoutRate        float64 `json:"payout_rate" yaml:"payout_rate" env:"PAYOUT_RATE"`
	OnDailyLossCap    string  `json:"on_daily_loss_cap" yaml:"on_daily_loss_cap" env:"ON_DAILY_LOSS_CAP"` // halt or monitor
	Scope             string  `json:"risk_scope" yaml:"risk_scope" env:"SCOPE"`                           // asset or account
}

// HoursConfig is a daily trading window in the session timezone.
type HoursConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Open         int  `json:"open" yaml:"open" env:"OPEN"`
	Close        int  `json:"close" yaml:"close" env:"CLOSE"`
	SkipWeekends bool `json:"skip_weekends" yaml:"skip_weekends" env:"SKIP_WEEKENDS"`
}

type SessionConfig struct {
	Timezone         string      `json:"timezone" yaml:"timezone" env:"TIMEZONE"`
	TradingHours     HoursConfig `json:"trading_hours" yaml:"trading_hours" env:", prefix=HOURS_"`
	SettlementGrace  string      `json:"settlement_grace" yaml:"settlement_grace" env:"SETTLEMENT_GRACE"`
	SubmitRetries    int         `json:"submit_retries" yaml:"submit_retries" env:"SUBMIT_RETRIES"`
	SubmitRetryDelay string      `json:"submit_retry_delay" yaml:"submit_retry_delay" env:"SUBMIT_RETRY_DELAY"`
}

type CSVFeedConfig struct {
	Path string `json:"path" yaml:"path" env:"PATH"`
	From string `json:"from,omitempty" yaml:"from,omitempty" env:"FROM"` // RFC3339, inclusive
	To   string `json:"to,omitempty" yaml:"to,omitempty" env:"TO"`       // RFC3339, exclusive
}

type FeedConfig struct {
	Type   string           `json:"type" yaml:"type" env:"TYPE"` // csv or redis
	Buffer int              `json:"buffer" yaml:"buffer" env:"BUFFER"`
	CSV    CSVFeedConfig    `json:"csv" yaml:"csv" env:", prefix=CSV_"`
	Redis  feed.RedisConfig `json:"redis" yaml:"redis" env:", prefix=REDIS_"`
}

type InfluxJournalConfig struct {
	Enabled              bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
	journal.InfluxConfig `yaml:",inline"`
}

type JournalConfig struct {
	Type       string              `json:"type" yaml:"type" env:"TYPE"` // sqlite, csv or none
	DBPath     string              `json:"db_path,omitempty" yaml:"db_path,omitempty" env:"DB_PATH"`
	TradesFile string              `json:"trades_file,omitempty" yaml:"trades_file,omitempty" env:"TRADES_FILE"`
	StatsFile  string              `json:"stats_file,omitempty" yaml:"stats_file,omitempty" env:"STATS_FILE"`
	Influx     InfluxJournalConfig `json:"influx" yaml:"influx" env:", prefix=INFLUX_"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"ENABLED"`
	Addr    string `json:"addr" yaml:"addr" env:"ADDR"`
}

// LoadFromFile loads configuration from a YAML or JSON file and validates it.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from TRADEBOT_* variables found by l. A nil l
// reads the process environment.
func (c *Config) ApplyEnv(ctx context.Context, l envconfig.Lookuper) error {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           c,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, l),
		DefaultOverwrite: true,
	})
	if err != nil {
		return fmt.Errorf("apply env: %w", err)
	}
	return nil
}

// Validate checks the configuration. Any error here is fatal at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bot.Asset) == "" {
		return fmt.Errorf("bot.asset is required")
	}
	if c.Bot.DurationMinutes <= 0 {
		return fmt.Errorf("bot.duration_minutes must be positive")
	}
	if c.Bot.Amount < 0 {
		return fmt.Errorf("bot.amount must not be negative")
	}
	if c.Bot.Amount == 0 {
		return fmt.Errorf("bot.amount must be positive")
	}
	if _, err := broker.ParseMode(c.Bot.Mode); err != nil {
		return fmt.Errorf("bot.mode: %w", err)
	}
	if _, err := c.Interval(); err != nil {
		return err
	}

	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if _, err := strategies.StrategyByName(c.Signal.Strategy, c.Signal.Config); err != nil {
		return fmt.Errorf("signal: %w", err)
	}

	if c.Risk.MinRiskReward <= 0 {
		return fmt.Errorf("risk.min_risk_reward must be positive")
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if _, err := risk.ParseRewardModel(c.Risk.RewardModel); err != nil {
		return fmt.Errorf("risk.reward_model: %w", err)
	}
	if c.Risk.PayoutRate <= 0 || c.Risk.PayoutRate > 1 {
		return fmt.Errorf("risk.payout_rate must be within (0, 1]")
	}
	switch c.Risk.OnDailyLossCap {
	case "halt", "monitor":
	default:
		return fmt.Errorf("risk.on_daily_loss_cap must be 'halt' or 'monitor'")
	}
	switch c.Risk.Scope {
	case "asset", "account":
	default:
		return fmt.Errorf("risk.risk_scope must be 'asset' or 'account'")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Hours(); err != nil {
		return err
	}
	if _, err := c.SettlementGrace(); err != nil {
		return err
	}
	if c.Session.SubmitRetries < 1 {
		return fmt.Errorf("session.submit_retries must be at least 1")
	}
	if _, err := c.SubmitRetryDelay(); err != nil {
		return err
	}

	switch c.Feed.Type {
	case "csv":
		if c.Feed.CSV.Path == "" {
			return fmt.Errorf("feed.csv.path required for CSV feed")
		}
	case "redis":
		if c.Feed.Redis.Addr == "" || c.Feed.Redis.Stream == "" {
			return fmt.Errorf("feed.redis addr and stream required for Redis feed")
		}
	default:
		return fmt.Errorf("feed.type must be 'csv' or 'redis'")
	}
	if _, _, err := c.FeedRange(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "none":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.StatsFile == "" {
			return fmt.Errorf("journal trades_file and stats_file required for CSV type")
		}
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'csv' or 'none'")
	}
	if c.Journal.Influx.Enabled && (c.Journal.Influx.URL == "" || c.Journal.Influx.Bucket == "") {
		return fmt.Errorf("journal.influx url and bucket required when enabled")
	}

	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr required when metrics are enabled")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Asset:           "EURUSD",
			DurationMinutes: 5,
			Amount:          1,
			Mode:            string(broker.Practice),
			Timeframe:       "1m",
			Balance:         1000,
		},
		Indicators: indicators.DefaultParams(),
		Signal: SignalConfig{
			Strategy: "confluence",
			Config:   strategies.DefaultConfig(),
		},
		Risk: RiskConfig{
			MaxDailyLoss:      5,
			MaxTradesPerDay:   10,
			MinRiskReward:     2,
			MinSignalStrength: 0.8,
			RewardModel:       string(risk.ModelBands),
			PayoutRate:        0.85,
			OnDailyLossCap:    "halt",
			Scope:             "asset",
		},
		Session: SessionConfig{
			Timezone: "UTC",
			TradingHours: HoursConfig{
				Enabled:      false,
				Open:         2,
				Close:        22,
				SkipWeekends: true,
			},
			SettlementGrace:  "30s",
			SubmitRetries:    3,
			SubmitRetryDelay: "2s",
		},
		Feed: FeedConfig{
			Type:   "csv",
			Buffer: 256,
			CSV:    CSVFeedConfig{Path: "./candles.csv"},
			Redis:  feed.RedisConfig{Addr: "localhost:6379", Stream: "candles:{asset}", Group: "tradebot"},
		},
		Journal: JournalConfig{
			Type:       "sqlite",
			DBPath:     "./tradebot.db",
			TradesFile: "./trades.csv",
			StatsFile:  "./stats.csv",
		},
		Log: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// AssetList returns Asset followed by any extra assets, without duplicates.
func (c *Config) AssetList() []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range append([]string{c.Bot.Asset}, c.Bot.Assets...) {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func (c *Config) Duration() time.Duration {
	return time.Duration(c.Bot.DurationMinutes) * time.Minute
}

func (c *Config) Amount() decimal.Decimal {
	return decimal.NewFromFloat(c.Bot.Amount)
}

func (c *Config) Mode() broker.Mode {
	m, _ := broker.ParseMode(c.Bot.Mode)
	return m
}

func (c *Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Bot.Timeframe)
	if err != nil {
		return 0, fmt.Errorf("bot.timeframe: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("bot.timeframe must be positive")
	}
	return d, nil
}

func (c *Config) Policy() risk.Policy {
	return risk.Policy{
		MaxDailyLoss:      decimal.NewFromFloat(c.Risk.MaxDailyLoss),
		MaxTradesPerDay:   c.Risk.MaxTradesPerDay,
		MinRiskReward:     c.Risk.MinRiskReward,
		MinSignalStrength: c.Risk.MinSignalStrength,
	}
}

func (c *Config) Location() (*time.Location, error) {
	tz := c.Session.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("session.timezone: %w", err)
	}
	return loc, nil
}

// Hours is the trading window, or market.AlwaysOpen when disabled.
func (c *Config) Hours() (market.Hours, error) {
	loc, err := c.Location()
	if err != nil {
		return market.Hours{}, err
	}
	th := c.Session.TradingHours
	if !th.Enabled {
		return market.Hours{Loc: loc}, nil
	}
	h := market.Hours{Loc: loc, Open: th.Open, Close: th.Close, SkipWeekends: th.SkipWeekends}
	if err := h.Validate(); err != nil {
		return market.Hours{}, fmt.Errorf("session.trading_hours: %w", err)
	}
	return h, nil
}

func (c *Config) SettlementGrace() (time.Duration, error) {
	return parseOptionalDuration("session.settlement_grace", c.Session.SettlementGrace)
}

func (c *Config) SubmitRetryDelay() (time.Duration, error) {
	return parseOptionalDuration("session.submit_retry_delay", c.Session.SubmitRetryDelay)
}

// FeedRange parses the optional CSV replay bounds.
func (c *Config) FeedRange() (from, to time.Time, err error) {
	if s := c.Feed.CSV.From; s != "" {
		if from, err = time.Parse(time.RFC3339, s); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("feed.csv.from: %w", err)
		}
	}
	if s := c.Feed.CSV.To; s != "" {
		if to, err = time.Parse(time.RFC3339, s); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("feed.csv.to: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("feed.csv.from must be before feed.csv.to")
	}
	return from, to, nil
}

// RedisFeed is the Redis feed configuration for asset. An "{asset}" in the
// stream name is replaced with the asset.
func (c *Config) RedisFeed(asset string) feed.RedisConfig {
	r := c.Feed.Redis
	r.Stream = strings.ReplaceAll(r.Stream, "{asset}", asset)
	return r
}

func parseOptionalDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}
