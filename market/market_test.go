package market

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func at(min int, close float64) Candle {
	return Candle{Time: t0.Add(time.Duration(min) * time.Minute), Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestCandleValid(t *testing.T) {
	tests := []struct {
		name    string
		c       Candle
		wantErr bool
	}{
		{"ok", Candle{Time: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5}, false},
		{"zero time", Candle{Open: 1, High: 1, Low: 1, Close: 1}, true},
		{"high below low", Candle{Time: t0, Open: 1, High: 0.5, Low: 1, Close: 1}, true},
		{"close outside", Candle{Time: t0, Open: 1, High: 2, Low: 0.5, Close: 3}, true},
		{"negative volume", Candle{Time: t0, Open: 1, High: 1, Low: 1, Close: 1, Volume: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Valid()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWindowPushOrdering(t *testing.T) {
	w := NewWindow(3)
	require.NoError(t, w.Push(at(0, 1)))
	require.NoError(t, w.Push(at(1, 2)))

	err := w.Push(at(1, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfOrder))

	err = w.Push(at(0, 3))
	assert.True(t, errors.Is(err, ErrOutOfOrder))
	assert.Equal(t, 2, w.Len())
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Push(at(i, float64(i))))
	}
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []float64{2, 3, 4}, Closes(w.Candles()))
	assert.Equal(t, []float64{2, 3}, Closes(w.Prev()))

	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, 4.0, last.Close)

	w.Reset()
	assert.Equal(t, 0, w.Len())
	_, ok = w.Last()
	assert.False(t, ok)
}

func TestCloseDetector(t *testing.T) {
	var d CloseDetector

	_, ok := d.Observe(at(0, 1.0))
	assert.False(t, ok)

	// live update of the same interval replaces the pending candle
	_, ok = d.Observe(at(0, 1.5))
	assert.False(t, ok)

	closed, ok := d.Observe(at(1, 2.0))
	require.True(t, ok)
	assert.Equal(t, 1.5, closed.Close)
	assert.True(t, closed.Time.Equal(t0))

	// stale candle is dropped
	_, ok = d.Observe(at(0, 9))
	assert.False(t, ok)
	p, _ := d.Pending()
	assert.Equal(t, 2.0, p.Close)

	closed, ok = d.Flush()
	require.True(t, ok)
	assert.Equal(t, 2.0, closed.Close)

	// after flush, the flushed interval cannot be redelivered
	_, ok = d.Observe(at(1, 7))
	assert.False(t, ok)
	_, has := d.Pending()
	assert.False(t, has)

	_, ok = d.Flush()
	assert.False(t, ok)
}

func TestHoursContains(t *testing.T) {
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		h    Hours
		t    time.Time
		want bool
	}{
		{"always open weekend", AlwaysOpen, saturday, true},
		{"default weekend", DefaultHours, saturday, false},
		{"default midday", DefaultHours, monday.Add(12 * time.Hour), true},
		{"default rollover late", DefaultHours, monday.Add(23 * time.Hour), false},
		{"default rollover early", DefaultHours, monday.Add(1 * time.Hour), false},
		{"default open edge", DefaultHours, monday.Add(2 * time.Hour), true},
		{"default close edge", DefaultHours, monday.Add(22 * time.Hour), false},
		{"wrapping window", Hours{Open: 22, Close: 2}, monday.Add(23 * time.Hour), true},
		{"wrapping window outside", Hours{Open: 22, Close: 2}, monday.Add(12 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.h.Contains(tt.t))
		})
	}

	assert.Error(t, Hours{Open: 24}.Validate())
	assert.NoError(t, DefaultHours.Validate())
}

func TestIsForexOpen(t *testing.T) {
	fri := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	assert.True(t, IsForexOpen(fri.Add(20*time.Hour)))
	assert.False(t, IsForexOpen(fri.Add(21*time.Hour)))
	assert.False(t, IsForexOpen(fri.Add(36*time.Hour)))
	assert.False(t, IsForexOpen(fri.Add(2*24*time.Hour+20*time.Hour)))
	assert.True(t, IsForexOpen(fri.Add(2*24*time.Hour+21*time.Hour)))
	assert.True(t, IsForexOpen(fri.Add(-24*time.Hour)))
}
