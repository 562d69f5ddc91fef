// Package feed delivers raw candles to a trading session. Sources own their
// output channel and close it when they return.
package feed

import (
	"context"
	"time"

	"github.com/rustyeddy/tradebot/market"
)

type Source interface {
	Run(ctx context.Context, out chan<- market.Candle) error
}

// send delivers c unless ctx is done first.
func send(ctx context.Context, out chan<- market.Candle, c market.Candle) error {
	select {
	case out <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
