package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/rustyeddy/tradebot/market"
)

// SMA calculates the Simple Moving Average of the last period closes.
func SMA(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if err := needCandles(candles, period); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period), nil
}

// EMA calculates the Exponential Moving Average with alpha 2/(period+1),
// seeded by the SMA of the first period closes.
func EMA(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if err := needCandles(candles, period); err != nil {
		return 0, err
	}

	out := talib.Ema(market.Closes(candles), period)
	return out[len(out)-1], nil
}
