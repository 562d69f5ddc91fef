package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"
	"github.com/rustyeddy/tradebot/market"
)

// Bands is one Bollinger Bands reading.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Width is the distance between the outer bands.
func (b Bands) Width() float64 {
	return b.Upper - b.Lower
}

// BollingerBands returns the SMA of the last period closes and the bands at
// numStd population standard deviations around it.
func BollingerBands(candles []market.Candle, period int, numStd float64) (Bands, error) {
	if period < 2 {
		return Bands{}, fmt.Errorf("bollinger period must be at least 2, got %d", period)
	}
	if numStd <= 0 {
		return Bands{}, fmt.Errorf("bollinger std multiplier must be positive, got %g", numStd)
	}
	if err := needCandles(candles, period); err != nil {
		return Bands{}, err
	}

	// only the trailing period closes matter
	closes := market.Closes(candles[len(candles)-period:])
	up, mid, lo := talib.BBands(closes, period, numStd, numStd, talib.SMA)
	n := len(closes) - 1
	return Bands{Upper: up[n], Middle: mid[n], Lower: lo[n]}, nil
}
