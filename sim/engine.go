// Package sim is a paper executor for fixed-time binary options. It prices
// options from the candles it observes and never touches a real account.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/pkg/id"
	"github.com/rustyeddy/tradebot/strategies"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoPrice is returned when an order arrives before any candle was seen
// and the order carries no entry price.
var ErrNoPrice = errors.New("no price available")

type Config struct {
	// Interval is the candle timeframe; a candle closes at Time+Interval.
	Interval   time.Duration
	PayoutRate decimal.Decimal
	Balance    decimal.Decimal

	// History is how many recent candles are kept to settle orders that
	// arrive after their expiry candle was already observed.
	History int
}

func DefaultConfig() Config {
	return Config{
		Interval:   time.Minute,
		PayoutRate: decimal.RequireFromString("0.85"),
		Balance:    decimal.NewFromInt(1000),
		History:    256,
	}
}

type Engine struct {
	mu      sync.Mutex
	cfg     Config
	open    []broker.Order
	history []market.Candle
	balance decimal.Decimal
	out     chan broker.Settlement
	log     *zap.Logger
}

func NewEngine(cfg Config, log *zap.Logger) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.History <= 0 {
		cfg.History = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		balance: cfg.Balance,
		out:     make(chan broker.Settlement, 64),
		log:     log.Named("sim"),
	}
}

func (e *Engine) Settlements() <-chan broker.Settlement { return e.out }

// Balance is the paper balance after all settled options.
func (e *Engine) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// OpenOrders returns the number of unsettled options.
func (e *Engine) OpenOrders() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}

func (e *Engine) closeTime(c market.Candle) time.Time {
	return c.Time.Add(e.cfg.Interval)
}

// Submit opens a paper option. The entry price is the order's EntryPrice, or
// the last observed close when the order has none.
func (e *Engine) Submit(ctx context.Context, o broker.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if o.Direction != strategies.Call && o.Direction != strategies.Put {
		return "", fmt.Errorf("submit: invalid direction %q", o.Direction)
	}
	if !o.Amount.IsPositive() {
		return "", fmt.Errorf("submit: amount must be positive")
	}
	if o.Duration <= 0 {
		return "", fmt.Errorf("submit: duration must be positive")
	}

	e.mu.Lock()
	if o.EntryPrice == 0 {
		if len(e.history) == 0 {
			e.mu.Unlock()
			return "", fmt.Errorf("submit %s: %w", o.Asset, ErrNoPrice)
		}
		o.EntryPrice = e.history[len(e.history)-1].Close
	}
	if o.OpenedAt.IsZero() {
		o.OpenedAt = time.Now().UTC()
	}
	o.ID = id.NewAt(o.OpenedAt)
	e.balance = e.balance.Sub(o.Amount)

	var done []broker.Settlement
	if c, ok := e.expiryCandleLocked(o); ok {
		done = append(done, e.settleLocked(o, c))
	} else {
		e.open = append(e.open, o)
	}
	e.mu.Unlock()

	e.log.Debug("option opened",
		zap.String("id", o.ID),
		zap.String("direction", string(o.Direction)),
		zap.String("amount", o.Amount.String()),
		zap.Float64("entry", o.EntryPrice),
		zap.Time("expiry", o.Expiry()),
	)
	e.publish(done)
	return o.ID, nil
}

// Observe records a closed candle and settles every option that expired by
// its close.
func (e *Engine) Observe(c market.Candle) {
	e.mu.Lock()
	if n := len(e.history); n > 0 && !c.Time.After(e.history[n-1].Time) {
		e.mu.Unlock()
		return
	}
	e.history = append(e.history, c)
	if len(e.history) > e.cfg.History {
		e.history = e.history[len(e.history)-e.cfg.History:]
	}

	var done []broker.Settlement
	keep := e.open[:0]
	for _, o := range e.open {
		if !e.closeTime(c).Before(o.Expiry()) {
			done = append(done, e.settleLocked(o, c))
			continue
		}
		keep = append(keep, o)
	}
	e.open = keep
	e.mu.Unlock()

	e.publish(done)
}

// Drain settles every open option as Unknown. Use it when the price source
// has ended.
func (e *Engine) Drain() {
	e.mu.Lock()
	var at time.Time
	if n := len(e.history); n > 0 {
		at = e.closeTime(e.history[n-1])
	}
	done := make([]broker.Settlement, 0, len(e.open))
	for _, o := range e.open {
		// the stake is returned since the option was never priced
		e.balance = e.balance.Add(o.Amount)
		done = append(done, broker.Settlement{OrderID: o.ID, Result: broker.Unknown, Profit: decimal.Zero, ClosedAt: at})
	}
	e.open = nil
	e.mu.Unlock()

	e.publish(done)
}

// expiryCandleLocked finds the earliest observed candle closing at or after
// the order's expiry.
func (e *Engine) expiryCandleLocked(o broker.Order) (market.Candle, bool) {
	for _, c := range e.history {
		if !e.closeTime(c).Before(o.Expiry()) {
			return c, true
		}
	}
	return market.Candle{}, false
}

func (e *Engine) settleLocked(o broker.Order, c market.Candle) broker.Settlement {
	res := Settle(o.Direction, o.EntryPrice, c.Close)
	profit := Payout(res, o.Amount, e.cfg.PayoutRate)
	if res != broker.Loss {
		e.balance = e.balance.Add(o.Amount).Add(profit)
	}
	return broker.Settlement{
		OrderID:   o.ID,
		Result:    res,
		Profit:    profit,
		ExitPrice: c.Close,
		ClosedAt:  e.closeTime(c),
	}
}

func (e *Engine) publish(done []broker.Settlement) {
	for _, s := range done {
		e.log.Debug("option settled",
			zap.String("id", s.OrderID),
			zap.String("result", string(s.Result)),
			zap.String("profit", s.Profit.String()),
		)
		e.out <- s
	}
}

// Settle decides a binary option: a CALL wins when the exit is above the
// entry, a PUT when below, and equal prices draw.
func Settle(dir strategies.Direction, entry, exit float64) broker.Result {
	switch {
	case exit == entry:
		return broker.Draw
	case (exit > entry) == (dir == strategies.Call):
		return broker.Win
	}
	return broker.Loss
}

// Payout is the signed profit of a settled option. A draw returns the stake.
func Payout(r broker.Result, amount, rate decimal.Decimal) decimal.Decimal {
	switch r {
	case broker.Win:
		return amount.Mul(rate)
	case broker.Loss:
		return amount.Neg()
	}
	return decimal.Zero
}
