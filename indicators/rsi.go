package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/rustyeddy/tradebot/market"
)

// RSI calculates Wilder's Relative Strength Index over the closes. It needs
// period+1 candles. A window with no price movement reports 50.
func RSI(candles []market.Candle, period int) (float64, error) {
	if period < 2 {
		return 0, fmt.Errorf("rsi period must be at least 2, got %d", period)
	}
	if err := needCandles(candles, period+1); err != nil {
		return 0, err
	}

	closes := market.Closes(candles)
	if flat(closes) {
		return 50, nil
	}
	out := talib.Rsi(closes, period)
	return out[len(out)-1], nil
}

func flat(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
