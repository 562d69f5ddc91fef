// Package broker defines the execution contract between the trading session
// and whatever places binary option trades: the paper simulator in PRACTICE
// mode or an external adapter in REAL mode.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/strategies"
	"github.com/shopspring/decimal"
)

// Mode selects paper or live execution.
type Mode string

const (
	Practice Mode = "PRACTICE"
	Real     Mode = "REAL"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case Practice, Real:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (supported: PRACTICE, REAL)", s)
}

// Result of a settled option.
type Result string

const (
	Win     Result = "WIN"
	Loss    Result = "LOSS"
	Draw    Result = "DRAW"
	Unknown Result = "UNKNOWN"
)

// Order is a fixed-amount, fixed-duration option request. It is immutable once
// submitted.
type Order struct {
	ID         string
	Asset      string
	Direction  strategies.Direction
	Amount     decimal.Decimal
	Duration   time.Duration
	OpenedAt   time.Time
	Mode       Mode
	EntryPrice float64
}

// Expiry is when the option settles.
func (o Order) Expiry() time.Time {
	return o.OpenedAt.Add(o.Duration)
}

// Settlement is what an executor reports when an option expires. OrderID is
// the id returned from Submit.
type Settlement struct {
	OrderID   string
	Result    Result
	Profit    decimal.Decimal
	ExitPrice float64
	ClosedAt  time.Time
}

// Outcome joins an order with its settlement.
type Outcome struct {
	Order     Order
	Result    Result
	Profit    decimal.Decimal
	ClosedAt  time.Time
	ExitPrice float64
}

// NewOutcome builds the outcome for order o from settlement s.
func NewOutcome(o Order, s Settlement) Outcome {
	return Outcome{
		Order:     o,
		Result:    s.Result,
		Profit:    s.Profit,
		ClosedAt:  s.ClosedAt,
		ExitPrice: s.ExitPrice,
	}
}

// Executor places orders and reports settlements asynchronously.
type Executor interface {
	// Submit places the order and returns the executor's id for it.
	Submit(ctx context.Context, o Order) (string, error)

	// Settlements delivers one Settlement per accepted order.
	Settlements() <-chan Settlement
}

// PriceObserver is implemented by executors that price their own options
// from the session's candles, such as the paper simulator. The session calls
// Observe with every closed candle before evaluating it.
type PriceObserver interface {
	Observe(c market.Candle)
}

// Drainer is implemented by executors that can give up on open orders when
// no further prices will arrive. Drain settles every open order as Unknown.
type Drainer interface {
	Drain()
}
