package market

import (
	"fmt"
	"time"
)

// Candle represents OHLCV data for one fixed interval. Time is the open time
// of the interval.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid reports whether the candle's prices are internally consistent.
func (c Candle) Valid() error {
	if c.Time.IsZero() {
		return fmt.Errorf("candle time is zero")
	}
	if c.High < c.Low {
		return fmt.Errorf("candle %s: high %.5f below low %.5f", c.Time.Format(time.RFC3339), c.High, c.Low)
	}
	if c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("candle %s: open/close outside high/low", c.Time.Format(time.RFC3339))
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %s: negative volume", c.Time.Format(time.RFC3339))
	}
	return nil
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts volumes in order.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
