package market

// CloseDetector turns a live candle stream, where the current interval may be
// delivered several times as it updates, into a stream of closed candles. A
// candle is considered closed once a candle with a later open time arrives.
//
// Candles with an open time earlier than the pending one are stale and are
// dropped.
type CloseDetector struct {
	pending Candle
	has     bool
	last    Candle
	closed  bool
}

// Observe feeds one raw candle. It returns the candle that closed as a result,
// if any.
func (d *CloseDetector) Observe(c Candle) (Candle, bool) {
	if d.closed && !c.Time.After(d.last.Time) {
		return Candle{}, false
	}
	if !d.has {
		d.pending, d.has = c, true
		return Candle{}, false
	}
	switch {
	case c.Time.Equal(d.pending.Time):
		d.pending = c
		return Candle{}, false
	case c.Time.Before(d.pending.Time):
		return Candle{}, false
	}
	out := d.pending
	d.pending = c
	d.last, d.closed = out, true
	return out, true
}

// Flush emits the pending candle as closed. Use it when the source is known to
// deliver only complete candles, or at end of stream.
func (d *CloseDetector) Flush() (Candle, bool) {
	if !d.has {
		return Candle{}, false
	}
	out := d.pending
	d.has = false
	d.last, d.closed = out, true
	return out, true
}

// Pending returns the candle currently being built.
func (d *CloseDetector) Pending() (Candle, bool) {
	return d.pending, d.has
}
