package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/rustyeddy/tradebot/market"
)

// Bias classifies the latest candle's volume against recent history.
type Bias string

const (
	BiasHigh    Bias = "HIGH"
	BiasLow     Bias = "LOW"
	BiasNeutral Bias = "NEUTRAL"
)

// VolumeProfileBias compares the latest volume with the mean volume of the
// window candles before it. HIGH when it is at least multiplier times the
// mean, LOW when at most mean/multiplier, NEUTRAL otherwise.
func VolumeProfileBias(candles []market.Candle, window int, multiplier float64) (Bias, error) {
	if window <= 0 {
		return BiasNeutral, fmt.Errorf("volume window must be positive, got %d", window)
	}
	if multiplier < 1 {
		return BiasNeutral, fmt.Errorf("volume multiplier must be at least 1, got %g", multiplier)
	}
	if err := needCandles(candles, window+1); err != nil {
		return BiasNeutral, err
	}

	n := len(candles)
	hist := market.Volumes(candles[n-1-window : n-1])
	mean := talib.Sma(hist, window)[window-1]
	cur := candles[n-1].Volume

	if mean <= 0 {
		if cur > 0 {
			return BiasHigh, nil
		}
		return BiasNeutral, nil
	}
	switch {
	case cur >= multiplier*mean:
		return BiasHigh, nil
	case cur <= mean/multiplier:
		return BiasLow, nil
	}
	return BiasNeutral, nil
}
