package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/market"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candles.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const oandaCSV = `time,instrument,granularity,complete,volume,o,h,l,c
2024-01-02T00:00:00Z,EUR_USD,M1,true,10,1.1000,1.1010,1.0990,1.1005
2024-01-02T00:01:00Z,EUR_USD,M1,true,12,1.1005,1.1020,1.1000,1.1015

2024-01-02T00:02:00Z,GBP_USD,M1,true,9,1.2700,1.2710,1.2690,1.2705
2024-01-02T00:03:00Z,EUR_USD,M1,false,3,1.1015,1.1016,1.1014,1.1015
2024-01-02T00:04:00Z,EUR_USD,M1,true,8,1.1015,1.1030,1.1010,1.1025
`

func TestCSVNextOandaLayout(t *testing.T) {
	t.Parallel()

	src, err := NewCSV(writeFile(t, oandaCSV), time.Time{}, time.Time{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	src.Asset = "EURUSD"

	var got []market.Candle
	for {
		c, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, c)
	}

	require.Len(t, got, 3, "other asset and incomplete rows are skipped")
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), got[0].Time.UTC())
	assert.InDelta(t, 1.1000, got[0].Open, 1e-12)
	assert.InDelta(t, 1.1010, got[0].High, 1e-12)
	assert.InDelta(t, 1.0990, got[0].Low, 1e-12)
	assert.InDelta(t, 1.1005, got[0].Close, 1e-12)
	assert.InDelta(t, 10, got[0].Volume, 1e-12)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 4, 0, 0, time.UTC), got[2].Time.UTC())
}

func TestCSVShortLayoutAndRange(t *testing.T) {
	t.Parallel()

	body := `2024-01-02T00:00:00Z,1,2,0.5,1.5,100
2024-01-02T00:01:00Z,1.5,2,1,1.8,90
2024-01-02T00:02:00Z,1.8,2.2,1.7,2.1,80
`
	from := time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 2, 0, 0, time.UTC)
	got, err := LoadCSV(writeFile(t, body), from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.8, got[0].Close, 1e-12)
	assert.InDelta(t, 90, got[0].Volume, 1e-12)
}

func TestCSVErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"bad time", "yesterday,1,2,0.5,1.5,100\n"},
		{"bad number", "2024-01-02T00:00:00Z,1,x,0.5,1.5,100\n"},
		{"high below low", "2024-01-02T00:00:00Z,1,0.4,0.5,1.5,100\n"},
		{"bad complete", "2024-01-02T00:00:00Z,EUR_USD,M1,maybe,10,1,2,0.5,1.5\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadCSV(writeFile(t, tt.body), time.Time{}, time.Time{})
			assert.Error(t, err)
		})
	}
}

func TestCSVRunClosesOutput(t *testing.T) {
	t.Parallel()

	src, err := NewCSV(writeFile(t, oandaCSV), time.Time{}, time.Time{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	out := make(chan market.Candle, 10)
	require.NoError(t, src.Run(context.Background(), out))

	n := 0
	for range out {
		n++
	}
	assert.Equal(t, 4, n)
}

func TestCSVRunHonorsContext(t *testing.T) {
	t.Parallel()

	src, err := NewCSV(writeFile(t, oandaCSV), time.Time{}, time.Time{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan market.Candle) // unbuffered, nobody reads
	err = src.Run(ctx, out)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLoadCSVMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()

	c, err := decodeMessage(map[string]interface{}{
		"data": `{"time":"2024-01-02T00:00:00Z","open":1,"high":2,"low":0.5,"close":1.5,"volume":7}`,
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, c.Close, 1e-12)
	assert.InDelta(t, 7, c.Volume, 1e-12)

	_, err = decodeMessage(map[string]interface{}{})
	assert.Error(t, err)

	_, err = decodeMessage(map[string]interface{}{"data": "{"})
	assert.Error(t, err)

	_, err = decodeMessage(map[string]interface{}{"data": `{"time":"2024-01-02T00:00:00Z","open":1,"high":0.1,"low":0.5,"close":1.5}`})
	assert.Error(t, err)
}

func TestIsBusyGroup(t *testing.T) {
	t.Parallel()

	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(errors.New("ERR no such key")))
}

func TestSameAsset(t *testing.T) {
	t.Parallel()

	assert.True(t, sameAsset("EUR_USD", "eurusd"))
	assert.True(t, sameAsset("EUR/USD", "EURUSD"))
	assert.False(t, sameAsset("GBP_USD", "EURUSD"))
}

func candleAt(min int) market.Candle {
	return market.Candle{
		Time:  time.Date(2024, 1, 2, 0, min, 0, 0, time.UTC),
		Open:  1,
		High:  1,
		Low:   1,
		Close: 1,
	}
}

func TestFanOutBroadcastsToAll(t *testing.T) {
	t.Parallel()

	fo := NewFanOut(10)
	out1 := fo.Subscribe(Block)
	out2 := fo.Subscribe(Drop)

	input := make(chan market.Candle, 10)
	for i := 0; i < 3; i++ {
		input <- candleAt(i)
	}
	close(input)

	fo.Run(context.Background(), input)

	var got1, got2 []market.Candle
	for c := range out1 {
		got1 = append(got1, c)
	}
	for c := range out2 {
		got2 = append(got2, c)
	}
	assert.Len(t, got1, 3)
	assert.Len(t, got2, 3)
	assert.Equal(t, candleAt(2).Time, got1[2].Time)
}

func TestFanOutDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	fo := NewFanOut(1)
	var drops atomic.Int32
	fo.OnDrop = func(i int) {
		assert.Equal(t, 1, i)
		drops.Add(1)
	}
	fast := fo.Subscribe(Block)
	slow := fo.Subscribe(Drop)

	input := make(chan market.Candle)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		input <- candleAt(i)
		c := <-fast
		assert.Equal(t, candleAt(i).Time, c.Time)
	}
	close(input)
	<-done

	assert.Equal(t, int32(2), drops.Load())
	first, ok := <-slow
	require.True(t, ok)
	assert.Equal(t, candleAt(0).Time, first.Time)
	_, ok = <-slow
	assert.False(t, ok)
}

func TestFanOutStopsOnCancel(t *testing.T) {
	t.Parallel()

	fo := NewFanOut(0)
	out := fo.Subscribe(Block)

	ctx, cancel := context.WithCancel(context.Background())
	input := make(chan market.Candle, 1)
	input <- candleAt(0)

	done := make(chan struct{})
	go func() {
		fo.Run(ctx, input)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fan-out did not stop")
	}
	for range out {
	}
	assert.Len(t, fo.ChannelStats(), 1)
}
