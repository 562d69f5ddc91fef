// Package indicators provides the technical indicators the signal evaluator
// reads: RSI, EMA, Bollinger Bands and a volume profile bias. All functions
// are pure over a slice of closed candles, most recent last.
package indicators

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/tradebot/market"
)

// ErrInsufficientData is returned when the candle window is shorter than an
// indicator's lookback.
var ErrInsufficientData = errors.New("insufficient data")

func needCandles(candles []market.Candle, need int) error {
	if len(candles) < need {
		return fmt.Errorf("%w: need %d candles, got %d", ErrInsufficientData, need, len(candles))
	}
	return nil
}

// Params configures Compute.
type Params struct {
	RSIPeriod        int     `json:"rsi_period" yaml:"rsi_period"`
	EMAFastPeriod    int     `json:"ema_fast_period" yaml:"ema_fast_period"`
	EMASlowPeriod    int     `json:"ema_slow_period" yaml:"ema_slow_period"`
	EMATrendPeriod   int     `json:"ema_trend_period" yaml:"ema_trend_period"`
	BBPeriod         int     `json:"bb_period" yaml:"bb_period"`
	BBStd            float64 `json:"bb_std" yaml:"bb_std"`
	VolumeWindow     int     `json:"volume_window" yaml:"volume_window"`
	VolumeMultiplier float64 `json:"volume_multiplier" yaml:"volume_multiplier"`
}

// DefaultParams mirrors common binary-option settings on one-minute candles.
func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		EMAFastPeriod:    9,
		EMASlowPeriod:    21,
		EMATrendPeriod:   50,
		BBPeriod:         20,
		BBStd:            2,
		VolumeWindow:     20,
		VolumeMultiplier: 1.5,
	}
}

func (p Params) Validate() error {
	if p.RSIPeriod < 2 {
		return fmt.Errorf("rsi_period must be at least 2")
	}
	if p.EMAFastPeriod <= 0 || p.EMASlowPeriod <= 0 {
		return fmt.Errorf("ema periods must be positive")
	}
	if p.EMAFastPeriod >= p.EMASlowPeriod {
		return fmt.Errorf("ema_fast_period must be less than ema_slow_period")
	}
	if p.EMATrendPeriod < 0 {
		return fmt.Errorf("ema_trend_period must not be negative")
	}
	if p.BBPeriod < 2 {
		return fmt.Errorf("bb_period must be at least 2")
	}
	if p.BBStd <= 0 {
		return fmt.Errorf("bb_std must be positive")
	}
	if p.VolumeWindow <= 0 {
		return fmt.Errorf("volume_window must be positive")
	}
	if p.VolumeMultiplier < 1 {
		return fmt.Errorf("volume_multiplier must be at least 1")
	}
	return nil
}

// Lookback is the number of candles Compute needs to produce a snapshot.
func (p Params) Lookback() int {
	n := p.RSIPeriod + 1
	for _, v := range []int{p.EMAFastPeriod, p.EMASlowPeriod, p.EMATrendPeriod, p.BBPeriod, p.VolumeWindow + 1} {
		if v > n {
			n = v
		}
	}
	return n
}

// Snapshot holds every indicator value for one closed candle.
type Snapshot struct {
	Time     time.Time
	Close    float64
	RSI      float64
	EMAFast  float64
	EMASlow  float64
	EMATrend float64 // zero when disabled
	Bands    Bands
	Volume   Bias
}

// Compute evaluates all indicators over candles.
func Compute(candles []market.Candle, p Params) (Snapshot, error) {
	if err := needCandles(candles, p.Lookback()); err != nil {
		return Snapshot{}, err
	}
	last := candles[len(candles)-1]
	s := Snapshot{Time: last.Time, Close: last.Close}

	var err error
	if s.RSI, err = RSI(candles, p.RSIPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("rsi: %w", err)
	}
	if s.EMAFast, err = EMA(candles, p.EMAFastPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("ema fast: %w", err)
	}
	if s.EMASlow, err = EMA(candles, p.EMASlowPeriod); err != nil {
		return Snapshot{}, fmt.Errorf("ema slow: %w", err)
	}
	if p.EMATrendPeriod > 0 {
		if s.EMATrend, err = EMA(candles, p.EMATrendPeriod); err != nil {
			return Snapshot{}, fmt.Errorf("ema trend: %w", err)
		}
	}
	if s.Bands, err = BollingerBands(candles, p.BBPeriod, p.BBStd); err != nil {
		return Snapshot{}, fmt.Errorf("bollinger: %w", err)
	}
	if s.Volume, err = VolumeProfileBias(candles, p.VolumeWindow, p.VolumeMultiplier); err != nil {
		return Snapshot{}, fmt.Errorf("volume: %w", err)
	}
	return s, nil
}
