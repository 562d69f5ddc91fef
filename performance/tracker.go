// Package performance accumulates running trade statistics.
package performance

import (
	"sync"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/shopspring/decimal"
)

// Stats is a point-in-time summary of recorded outcomes.
type Stats struct {
	Wins        int
	Losses      int
	Draws       int
	Unknown     int // settlement never observed; not part of the win rate
	TotalProfit decimal.Decimal
	WinRate     float64
}

// Trades is the number of settled trades.
func (s Stats) Trades() int {
	return s.Wins + s.Losses + s.Draws
}

// Tracker is append-only. Safe for concurrent readers.
type Tracker struct {
	mu sync.RWMutex
	s  Stats
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record adds one outcome and returns the updated stats. UNKNOWN outcomes are
// counted separately and never change profit.
func (t *Tracker) Record(o broker.Outcome) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch o.Result {
	case broker.Win:
		t.s.Wins++
	case broker.Loss:
		t.s.Losses++
	case broker.Draw:
		t.s.Draws++
	default:
		t.s.Unknown++
		return t.s
	}
	t.s.TotalProfit = t.s.TotalProfit.Add(o.Profit)
	t.s.WinRate = winRate(t.s)
	return t.s
}

// Stats returns the current stats.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

func winRate(s Stats) float64 {
	n := s.Trades()
	if n == 0 {
		return 0
	}
	return float64(s.Wins) / float64(n)
}
