package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradebot/market"
)

// CSV reads candle rows in one of two layouts:
//
//	time,instrument,granularity,complete,volume,o,h,l,c
//	time,open,high,low,close,volume
//
// time is RFC3339 or RFC3339Nano and marks the candle's open. A single header
// row starting with "time" is allowed. Rows marked incomplete are skipped, as
// are rows outside [From, To) when those are set.
type CSV struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	// Asset, when set, drops rows for other instruments.
	Asset string

	// Pace sleeps between candles when replaying in real time.
	Pace time.Duration

	sawFirst bool
}

func NewCSV(path string, from, to time.Time) (*CSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	return &CSV{f: f, r: r, from: from, to: to}, nil
}

func (c *CSV) Close() error {
	if c.f != nil {
		return c.f.Close()
	}
	return nil
}

// Next returns the next candle in range; ok is false at end of file.
func (c *CSV) Next() (market.Candle, bool, error) {
	for {
		row, err := c.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		if !c.sawFirst {
			c.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		candle, inst, ok, err := parseCandleRow(row)
		if err != nil {
			return market.Candle{}, false, err
		}
		if !ok {
			continue
		}
		if c.Asset != "" && inst != "" && !sameAsset(inst, c.Asset) {
			continue
		}
		if !inRange(candle.Time, c.from, c.to) {
			continue
		}
		return candle, true, nil
	}
}

// Run streams every remaining candle to out and closes it.
func (c *CSV) Run(ctx context.Context, out chan<- market.Candle) error {
	defer close(out)
	for {
		candle, ok, err := c.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := send(ctx, out, candle); err != nil {
			return err
		}
		if c.Pace > 0 {
			select {
			case <-time.After(c.Pace):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// LoadCSV reads a whole file, for backfills and tests.
func LoadCSV(path string, from, to time.Time) ([]market.Candle, error) {
	src, err := NewCSV(path, from, to)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out []market.Candle
	for {
		c, ok, err := src.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, c)
	}
}

func parseCandleRow(row []string) (market.Candle, string, bool, error) {
	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, "", false, nil
	}

	var (
		inst   string
		fields []string // open, high, low, close, volume
	)
	switch {
	case len(row) >= 9:
		inst = strings.TrimSpace(row[1])
		if complete := strings.TrimSpace(row[3]); complete != "" {
			ok, err := strconv.ParseBool(complete)
			if err != nil {
				return market.Candle{}, "", false, fmt.Errorf("bad complete %q: %w", complete, err)
			}
			if !ok {
				return market.Candle{}, "", false, nil
			}
		}
		fields = []string{row[5], row[6], row[7], row[8], row[4]}
	case len(row) >= 6:
		fields = row[1:6]
	default:
		return market.Candle{}, "", false, nil
	}

	t, err := parseTime(ts)
	if err != nil {
		return market.Candle{}, "", false, err
	}

	var v [5]float64
	for i, s := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return market.Candle{}, "", false, fmt.Errorf("bad number %q at %s: %w", s, ts, err)
		}
		v[i] = x
	}

	c := market.Candle{Time: t, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}
	if err := c.Valid(); err != nil {
		return market.Candle{}, "", false, err
	}
	return c, inst, true, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t2, err2 := time.Parse(time.RFC3339Nano, s)
	if err2 != nil {
		return time.Time{}, fmt.Errorf("bad time %q: %w", s, err)
	}
	return t2, nil
}

// sameAsset treats "EUR_USD" and "EURUSD" as the same instrument.
func sameAsset(a, b string) bool {
	norm := func(s string) string {
		return strings.ToUpper(strings.NewReplacer("_", "", "/", "", "-", "").Replace(s))
	}
	return norm(a) == norm(b)
}
