package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	tradeHeader = []string{"timestamp", "trade_id", "asset", "action", "price", "amount", "indicators", "result", "profit", "reason"}
	statsHeader = []string{"time", "asset", "wins", "losses", "draws", "unknown", "total_profit", "win_rate"}
)

// CSV appends trades and stats to two CSV files. Existing files are kept and
// the header is only written to new ones.
type CSV struct {
	mu     sync.Mutex
	trades *csv.Writer
	stats  *csv.Writer
	tf, sf *os.File
}

func NewCSV(tradesPath, statsPath string) (*CSV, error) {
	tf, tw, err := openCSV(tradesPath, tradeHeader)
	if err != nil {
		return nil, err
	}
	sf, sw, err := openCSV(statsPath, statsHeader)
	if err != nil {
		tf.Close()
		return nil, err
	}
	return &CSV{trades: tw, stats: sw, tf: tf, sf: sf}, nil
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	w := csv.NewWriter(f)

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, nil, err
		}
	}
	return f, w, nil
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.trades.Write([]string{
		t.OpenTime.UTC().Format(time.RFC3339),
		t.TradeID,
		t.Asset,
		t.Direction,
		f(t.EntryPrice),
		t.Amount.StringFixed(2),
		t.Indicators,
		t.Result,
		t.Profit.StringFixed(2),
		t.Reason,
	})
	if err != nil {
		return err
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSV) RecordStats(s StatsSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.stats.Write([]string{
		s.Time.UTC().Format(time.RFC3339),
		s.Asset,
		strconv.Itoa(s.Wins),
		strconv.Itoa(s.Losses),
		strconv.Itoa(s.Draws),
		strconv.Itoa(s.Unknown),
		s.TotalProfit.StringFixed(2),
		strconv.FormatFloat(s.WinRate, 'f', 4, 64),
	})
	if err != nil {
		return err
	}
	j.stats.Flush()
	return j.stats.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.stats.Flush()
	if err := j.stats.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.sf.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
