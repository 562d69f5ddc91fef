package risk

import (
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/strategies"
	"github.com/shopspring/decimal"
)

// State is the daily risk counter set.
type State struct {
	Day         time.Time // midnight of the trading day, zero before the first reset
	DailyLoss   decimal.Decimal
	TradesToday int
}

// DayOf truncates t to midnight in loc.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// Book owns a State. A Book may be shared by several sessions trading the
// same account; all methods are safe for concurrent use.
type Book struct {
	mu  sync.Mutex
	st  State
	loc *time.Location
}

// NewBook returns an empty book whose days are measured in loc.
func NewBook(loc *time.Location) *Book {
	if loc == nil {
		loc = time.UTC
	}
	return &Book{loc: loc}
}

func (b *Book) Location() *time.Location { return b.loc }

// Snapshot returns a copy of the current state.
func (b *Book) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st
}

// ResetDay clears the daily counters and starts day.
func (b *Book) ResetDay(day time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st = State{Day: DayOf(day, b.loc), DailyLoss: decimal.Zero}
}

// Roll resets the counters when t falls on a different day than the current
// one. It reports whether a reset happened.
func (b *Book) Roll(t time.Time) bool {
	day := DayOf(t, b.loc)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st.Day.Equal(day) {
		return false
	}
	b.st = State{Day: day, DailyLoss: decimal.Zero}
	return true
}

// Reserve evaluates the candidate against the current state and, when
// allowed, counts it against today's trade limit in the same step. Callers
// must Release the reservation if the order is never placed.
func (b *Book) Reserve(sig strategies.Signal, p Proposal, pol Policy) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := Evaluate(sig, p, b.st, pol)
	if d.Allowed {
		b.st.TradesToday++
	}
	return d
}

// Release returns a reservation that did not result in an order.
func (b *Book) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st.TradesToday > 0 {
		b.st.TradesToday--
	}
}

// RecordOutcome adds a LOSS to today's loss total. Other results leave the
// state unchanged.
func (b *Book) RecordOutcome(o broker.Outcome) {
	if o.Result != broker.Loss {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st.DailyLoss = b.st.DailyLoss.Add(o.Profit.Abs())
}
