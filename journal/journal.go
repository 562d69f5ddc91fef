package journal

import (
	"errors"
	"time"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/performance"
	"github.com/shopspring/decimal"
)

// TradeRecord is one settled (or abandoned) binary option.
type TradeRecord struct {
	TradeID    string
	Asset      string
	Direction  string
	Mode       string
	Amount     decimal.Decimal
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	Result     string
	Profit     decimal.Decimal
	Strength   float64
	Indicators string // compact indicator readings at entry
	Reason     string // signal reasons at entry
}

// NewTradeRecord flattens an outcome with the context it was opened in.
func NewTradeRecord(o broker.Outcome, strength float64, indicators, reason string) TradeRecord {
	return TradeRecord{
		TradeID:    o.Order.ID,
		Asset:      o.Order.Asset,
		Direction:  string(o.Order.Direction),
		Mode:       string(o.Order.Mode),
		Amount:     o.Order.Amount,
		EntryPrice: o.Order.EntryPrice,
		ExitPrice:  o.ExitPrice,
		OpenTime:   o.Order.OpenedAt,
		CloseTime:  o.ClosedAt,
		Result:     string(o.Result),
		Profit:     o.Profit,
		Strength:   strength,
		Indicators: indicators,
		Reason:     reason,
	}
}

// StatsSnapshot is the running performance after an outcome.
type StatsSnapshot struct {
	Time        time.Time
	Asset       string
	Wins        int
	Losses      int
	Draws       int
	Unknown     int
	TotalProfit decimal.Decimal
	WinRate     float64
}

func NewStatsSnapshot(t time.Time, asset string, s performance.Stats) StatsSnapshot {
	return StatsSnapshot{
		Time:        t,
		Asset:       asset,
		Wins:        s.Wins,
		Losses:      s.Losses,
		Draws:       s.Draws,
		Unknown:     s.Unknown,
		TotalProfit: s.TotalProfit,
		WinRate:     s.WinRate,
	}
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordStats(StatsSnapshot) error
	Close() error
}

// Multi writes every record to all journals and joins their errors.
type Multi []Journal

func (m Multi) RecordTrade(t TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(t))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordStats(s StatsSnapshot) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordStats(s))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) RecordTrade(TradeRecord) error   { return nil }
func (Discard) RecordStats(StatsSnapshot) error { return nil }
func (Discard) Close() error                    { return nil }
