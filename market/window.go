package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfOrder is returned when a candle does not advance the window's time.
var ErrOutOfOrder = errors.New("candle out of order")

// Window is a bounded, time-ordered buffer of closed candles. The oldest
// candle is evicted once the window is full.
type Window struct {
	candles []Candle
	max     int
}

// NewWindow returns a window that keeps at most max candles.
func NewWindow(max int) *Window {
	if max < 1 {
		max = 1
	}
	return &Window{candles: make([]Candle, 0, max), max: max}
}

// Push appends a closed candle. Candles must arrive strictly increasing in time.
func (w *Window) Push(c Candle) error {
	if n := len(w.candles); n > 0 {
		last := w.candles[n-1].Time
		if !c.Time.After(last) {
			return fmt.Errorf("%w: %s not after %s", ErrOutOfOrder,
				c.Time.Format(time.RFC3339), last.Format(time.RFC3339))
		}
	}
	if len(w.candles) == w.max {
		copy(w.candles, w.candles[1:])
		w.candles = w.candles[:w.max-1]
	}
	w.candles = append(w.candles, c)
	return nil
}

// Candles returns the buffered candles, oldest first. The returned slice must
// not be modified.
func (w *Window) Candles() []Candle {
	return w.candles
}

// Prev returns all candles except the most recent one.
func (w *Window) Prev() []Candle {
	if len(w.candles) == 0 {
		return nil
	}
	return w.candles[:len(w.candles)-1]
}

// Last returns the most recent candle.
func (w *Window) Last() (Candle, bool) {
	if len(w.candles) == 0 {
		return Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}

func (w *Window) Len() int { return len(w.candles) }
func (w *Window) Cap() int { return w.max }

// Reset empties the window.
func (w *Window) Reset() {
	w.candles = w.candles[:0]
}
