package journal

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/rustyeddy/tradebot/market"
)

type InfluxConfig struct {
	URL     string        `yaml:"url" json:"url" env:"URL"`
	Token   string        `yaml:"token" json:"token" env:"TOKEN"`
	Org     string        `yaml:"org" json:"org" env:"ORG"`
	Bucket  string        `yaml:"bucket" json:"bucket" env:"BUCKET"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes trades, stats and candles as points. Writes are blocking so
// a failed write surfaces to the caller.
type Influx struct {
	client  influxdb2.Client
	w       pointWriter
	timeout time.Duration
}

func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx: url and bucket are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(timeout.Seconds())).
			SetLogLevel(0),
	)
	return &Influx{
		client:  client,
		w:       client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout: timeout,
	}, nil
}

// Health reports an error unless the server answers "pass".
func (j *Influx) Health(ctx context.Context) error {
	health, err := j.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return fmt.Errorf("influx not healthy: %+v", health)
	}
	return nil
}

func (j *Influx) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.w.WritePoint(ctx, p)
}

func (j *Influx) RecordTrade(t TradeRecord) error {
	if err := j.write(tradePoint(t)); err != nil {
		return fmt.Errorf("influx trade %s: %w", t.TradeID, err)
	}
	return nil
}

func (j *Influx) RecordStats(s StatsSnapshot) error {
	if err := j.write(statsPoint(s)); err != nil {
		return fmt.Errorf("influx stats: %w", err)
	}
	return nil
}

// RecordCandle stores a closed candle for the asset.
func (j *Influx) RecordCandle(asset string, c market.Candle) error {
	if err := j.write(candlePoint(asset, c)); err != nil {
		return fmt.Errorf("influx candle: %w", err)
	}
	return nil
}

func (j *Influx) Close() error {
	if j.client != nil {
		j.client.Close()
	}
	return nil
}

func tradePoint(t TradeRecord) *write.Point {
	return influxdb2.NewPoint(
		"trades",
		map[string]string{
			"asset":     t.Asset,
			"direction": t.Direction,
			"mode":      t.Mode,
			"result":    t.Result,
		},
		map[string]interface{}{
			"trade_id":    t.TradeID,
			"amount":      t.Amount.InexactFloat64(),
			"entry_price": t.EntryPrice,
			"exit_price":  t.ExitPrice,
			"profit":      t.Profit.InexactFloat64(),
			"strength":    t.Strength,
		},
		t.CloseTime,
	)
}

func statsPoint(s StatsSnapshot) *write.Point {
	return influxdb2.NewPoint(
		"stats",
		map[string]string{"asset": s.Asset},
		map[string]interface{}{
			"wins":         s.Wins,
			"losses":       s.Losses,
			"draws":        s.Draws,
			"unknown":      s.Unknown,
			"total_profit": s.TotalProfit.InexactFloat64(),
			"win_rate":     s.WinRate,
		},
		s.Time,
	)
}

func candlePoint(asset string, c market.Candle) *write.Point {
	return influxdb2.NewPoint(
		"candles",
		map[string]string{"asset": asset},
		map[string]interface{}{
			"open":   c.Open,
			"high":   c.High,
			"low":    c.Low,
			"close":  c.Close,
			"volume": c.Volume,
		},
		c.Time,
	)
}
