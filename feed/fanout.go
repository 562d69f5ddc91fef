package feed

import (
	"context"
	"sync"

	"github.com/rustyeddy/tradebot/market"
)

// Delivery selects how a subscriber is fed when its buffer is full.
type Delivery int

const (
	// Block waits for the subscriber. Use it for replays where every candle
	// must arrive.
	Block Delivery = iota
	// Drop skips the candle for that subscriber and reports it to OnDrop.
	Drop
)

type subscriber struct {
	ch   chan market.Candle
	mode Delivery
}

// FanOut copies candles from one input channel to every subscriber.
type FanOut struct {
	mu      sync.RWMutex
	subs    []subscriber
	bufSize int

	// OnDrop is called with the subscriber's index when a Drop subscriber
	// misses a candle.
	OnDrop func(subscriber int)
}

func NewFanOut(bufSize int) *FanOut {
	return &FanOut{bufSize: bufSize}
}

// Subscribe must be called before Run.
func (f *FanOut) Subscribe(mode Delivery) <-chan market.Candle {
	ch := make(chan market.Candle, f.bufSize)
	f.mu.Lock()
	f.subs = append(f.subs, subscriber{ch: ch, mode: mode})
	f.mu.Unlock()
	return ch
}

// Run forwards until input closes or ctx is done, then closes every
// subscriber channel.
func (f *FanOut) Run(ctx context.Context, input <-chan market.Candle) {
	defer func() {
		f.mu.RLock()
		for _, s := range f.subs {
			close(s.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-input:
			if !ok {
				return
			}
			if !f.broadcast(ctx, c) {
				return
			}
		}
	}
}

func (f *FanOut) broadcast(ctx context.Context, c market.Candle) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for i, s := range f.subs {
		if s.mode == Block {
			select {
			case s.ch <- c:
			case <-ctx.Done():
				return false
			}
			continue
		}
		select {
		case s.ch <- c:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			}
		}
	}
	return true
}

type ChannelStat struct {
	Len int
	Cap int
}

func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.subs))
	for i, s := range f.subs {
		stats[i] = ChannelStat{Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
