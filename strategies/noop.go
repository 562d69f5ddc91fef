package strategies

import (
	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/market"
)

// Noop never trades. Useful for dry runs that only collect indicators.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Evaluate(market.Candle, *indicators.Snapshot, *indicators.Snapshot) Signal {
	return noSignal()
}
