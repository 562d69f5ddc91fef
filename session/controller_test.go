package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/sim"
	"github.com/rustyeddy/tradebot/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Monday noon, far from any day boundary.
var t0 = time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)

// smallParams need five candles before the first evaluation.
func smallParams() indicators.Params {
	return indicators.Params{
		RSIPeriod:        3,
		EMAFastPeriod:    2,
		EMASlowPeriod:    4,
		BBPeriod:         3,
		BBStd:            2,
		VolumeWindow:     3,
		VolumeMultiplier: 1.5,
	}
}

func testConfig() Config {
	return Config{
		Asset:            "EURUSD",
		Amount:           decimal.NewFromInt(1),
		Duration:         2 * time.Minute,
		Mode:             broker.Practice,
		Interval:         time.Minute,
		Indicators:       smallParams(),
		Policy:           risk.Policy{MaxDailyLoss: decimal.NewFromInt(5), MaxTradesPerDay: 10, MinRiskReward: 0.5, MinSignalStrength: 0.8},
		RewardModel:      risk.ModelPayout,
		PayoutRate:       0.85,
		CapPolicy:        CapHalt,
		SettlementGrace:  time.Second,
		SubmitRetries:    1,
		SubmitRetryDelay: time.Millisecond,
		CompleteCandles:  true,
	}
}

// series returns n one-minute candles from start whose closes move by step.
func series(start time.Time, n int, step float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		c := 1.1 + float64(i)*step
		out[i] = market.Candle{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   c,
			High:   c + 0.0005,
			Low:    c - 0.0005,
			Close:  c,
			Volume: 100,
		}
	}
	return out
}

func feedOf(candles []market.Candle) <-chan market.Candle {
	ch := make(chan market.Candle, len(candles))
	for _, c := range candles {
		ch <- c
	}
	close(ch)
	return ch
}

// scripted emits the configured signal on the candle at each index.
type scripted struct {
	mu      sync.Mutex
	signals map[time.Time]strategies.Signal
	seen    []time.Time
}

func script(candles []market.Candle, at map[int]strategies.Signal) *scripted {
	s := &scripted{signals: make(map[time.Time]strategies.Signal)}
	for i, sig := range at {
		s.signals[candles[i].Time] = sig
	}
	return s
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Evaluate(c market.Candle, cur, prev *indicators.Snapshot) strategies.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, c.Time)
	if sig, ok := s.signals[c.Time]; ok {
		return sig
	}
	return strategies.Signal{Direction: strategies.None}
}

func (s *scripted) evaluated() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.seen...)
}

func call(strength float64) strategies.Signal {
	return strategies.Signal{Direction: strategies.Call, Strength: strength}
}

func put(strength float64) strategies.Signal {
	return strategies.Signal{Direction: strategies.Put, Strength: strength}
}

type memJournal struct {
	mu     sync.Mutex
	trades []journal.TradeRecord
	stats  []journal.StatsSnapshot
}

func (m *memJournal) RecordTrade(t journal.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memJournal) RecordStats(s journal.StatsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, s)
	return nil
}

func (m *memJournal) Close() error { return nil }

func (m *memJournal) all() []journal.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.TradeRecord(nil), m.trades...)
}

// stubExec accepts orders after failing the first fails submits. When settle
// is set every accepted order settles immediately with that result.
type stubExec struct {
	mu     sync.Mutex
	fails  int
	calls  int
	settle broker.Result
	stray  bool
	orders []broker.Order
	out    chan broker.Settlement
}

func newStubExec() *stubExec {
	return &stubExec{out: make(chan broker.Settlement, 16)}
}

func (e *stubExec) Submit(ctx context.Context, o broker.Order) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls <= e.fails {
		return "", errors.New("platform unavailable")
	}
	id := fmt.Sprintf("stub-%d", e.calls)
	o.ID = id
	e.orders = append(e.orders, o)
	if e.stray {
		e.out <- broker.Settlement{OrderID: "stale", Result: broker.Loss, Profit: decimal.NewFromInt(-1)}
	}
	if e.settle != "" {
		profit := decimal.Zero
		switch e.settle {
		case broker.Win:
			profit = decimal.RequireFromString("0.85")
		case broker.Loss:
			profit = decimal.NewFromInt(-1)
		}
		e.out <- broker.Settlement{OrderID: id, Result: e.settle, Profit: profit, ExitPrice: o.EntryPrice, ClosedAt: o.Expiry()}
	}
	return id, nil
}

func (e *stubExec) Settlements() <-chan broker.Settlement { return e.out }

func (e *stubExec) submits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newSim() *sim.Engine {
	return sim.NewEngine(sim.Config{
		Interval:   time.Minute,
		PayoutRate: decimal.RequireFromString("0.85"),
		Balance:    decimal.NewFromInt(1000),
		History:    64,
	}, nil)
}

func newController(t *testing.T, cfg Config, deps Deps) *Controller {
	t.Helper()
	c, err := NewController(cfg, deps)
	require.NoError(t, err)
	return c
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", Idle.String())
	assert.Equal(t, "WARMING_UP", WarmingUp.String())
	assert.Equal(t, "STOPPED", Stopped.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestParseCapPolicy(t *testing.T) {
	p, err := ParseCapPolicy(" Monitor ")
	require.NoError(t, err)
	assert.Equal(t, CapMonitor, p)

	p, err = ParseCapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, CapHalt, p)

	_, err = ParseCapPolicy("panic")
	assert.Error(t, err)
}

func TestNewControllerValidation(t *testing.T) {
	deps := Deps{Strategy: strategies.Noop{}, Executor: newStubExec()}

	_, err := NewController(testConfig(), Deps{Executor: newStubExec()})
	assert.ErrorContains(t, err, "strategy is required")

	_, err = NewController(testConfig(), Deps{Strategy: strategies.Noop{}})
	assert.ErrorContains(t, err, "executor is required")

	cfg := testConfig()
	cfg.Amount = decimal.Zero
	_, err = NewController(cfg, deps)
	assert.ErrorContains(t, err, "amount must be positive")

	cfg = testConfig()
	cfg.Mode = "paper"
	_, err = NewController(cfg, deps)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Policy.MinRiskReward = 0
	_, err = NewController(cfg, deps)
	assert.ErrorContains(t, err, "min_risk_reward")

	c, err := NewController(testConfig(), deps)
	require.NoError(t, err)
	assert.Equal(t, Idle, c.State())
}

func TestBackfillWarmup(t *testing.T) {
	c := newController(t, testConfig(), Deps{Strategy: strategies.Noop{}, Executor: newSim()})
	candles := series(t0, 8, 0.0001)

	assert.ErrorIs(t, c.Backfill(candles), ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Connected, c.State())

	require.NoError(t, c.Backfill(candles[:3]))
	assert.Equal(t, WarmingUp, c.State())

	// a repeated candle is skipped and does not count toward warmup
	require.NoError(t, c.Backfill(candles[2:4]))
	assert.Equal(t, WarmingUp, c.State())
	assert.Equal(t, 4, c.Status().Candles)

	require.NoError(t, c.Backfill(candles[4:5]))
	assert.Equal(t, Monitoring, c.State())
}

func TestRunWinningTrade(t *testing.T) {
	cfg := testConfig()
	candles := series(t0, 10, 0.0002)
	strat := script(candles, map[int]strategies.Signal{5: call(1)})
	exec := newSim()
	jr := &memJournal{}
	c := newController(t, cfg, Deps{Strategy: strat, Executor: exec, Journal: jr})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))
	assert.Equal(t, Stopped, c.State())

	trades := jr.all()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, "WIN", tr.Result)
	assert.Equal(t, "CALL", tr.Direction)
	assert.Equal(t, "PRACTICE", tr.Mode)
	assert.NotEmpty(t, tr.TradeID)
	assert.True(t, tr.Profit.Equal(decimal.RequireFromString("0.85")), "profit %s", tr.Profit)
	assert.Equal(t, candles[5].Close, tr.EntryPrice)
	assert.Equal(t, candles[7].Close, tr.ExitPrice)
	assert.Equal(t, t0.Add(6*time.Minute), tr.OpenTime)
	assert.Equal(t, t0.Add(8*time.Minute), tr.CloseTime)
	assert.Contains(t, tr.Indicators, "rsi=")

	// candles 6 and 7 arrive while the option is open and are never evaluated
	want := []time.Time{candles[4].Time, candles[5].Time, candles[8].Time, candles[9].Time}
	assert.Equal(t, want, strat.evaluated())

	st := c.Status()
	assert.Equal(t, 10, st.Candles)
	assert.Equal(t, 1, st.Signals)
	assert.Equal(t, 1, st.Stats.Wins)
	assert.Equal(t, 1.0, st.Stats.WinRate)
	assert.Equal(t, 1, st.Risk.TradesToday)
	assert.True(t, st.Risk.DailyLoss.IsZero())
	assert.True(t, exec.Balance().Equal(decimal.RequireFromString("1000.85")))
	assert.Len(t, jr.stats, 1)
}

func TestRunLosingTradeCountsDailyLoss(t *testing.T) {
	candles := series(t0, 10, -0.0002)
	strat := script(candles, map[int]strategies.Signal{5: call(1)})
	c := newController(t, testConfig(), Deps{Strategy: strat, Executor: newSim()})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	st := c.Status()
	assert.Equal(t, 1, st.Stats.Losses)
	assert.True(t, st.Stats.TotalProfit.Equal(decimal.NewFromInt(-1)))
	assert.True(t, st.Risk.DailyLoss.Equal(decimal.NewFromInt(1)))
}

func TestDenyReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		signal strategies.Signal
		reason risk.Code
	}{
		{"weak signal", func(*Config) {}, call(0.5), risk.WeakSignal},
		{"risk reward", func(c *Config) { c.Policy.MinRiskReward = 2 }, put(1), risk.RiskRewardTooLow},
		{"no trades allowed", func(c *Config) { c.Policy.MaxTradesPerDay = 0 }, call(1), risk.TradeLimitReached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			candles := series(t0, 8, 0.0001)
			exec := newStubExec()
			jr := &memJournal{}
			c := newController(t, cfg, Deps{
				Strategy: script(candles, map[int]strategies.Signal{5: tt.signal}),
				Executor: exec,
				Journal:  jr,
			})

			require.NoError(t, c.Run(context.Background(), feedOf(candles)))
			st := c.Status()
			assert.Equal(t, 1, st.Denied[string(tt.reason)])
			assert.Equal(t, 1, st.Signals)
			assert.Zero(t, exec.submits())
			assert.Zero(t, st.Risk.TradesToday)
			assert.Empty(t, jr.all())
		})
	}
}

func TestDailyLossCapHalts(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.MaxDailyLoss = decimal.NewFromInt(1)
	candles := series(t0, 12, -0.0002)
	strat := script(candles, map[int]strategies.Signal{4: call(1), 8: call(1), 10: call(1)})
	c := newController(t, cfg, Deps{Strategy: strat, Executor: newSim()})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	st := c.Status()
	assert.Equal(t, Stopped, st.State)
	assert.Equal(t, 1, st.Stats.Losses)
	assert.Equal(t, 1, st.Denied[string(risk.DailyLossCapHit)])
	assert.Equal(t, 9, st.Candles, "session stops on the denied candle")
}

func TestDailyLossCapMonitor(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.MaxDailyLoss = decimal.NewFromInt(1)
	cfg.CapPolicy = CapMonitor
	candles := series(t0, 12, -0.0002)
	strat := script(candles, map[int]strategies.Signal{4: call(1), 8: call(1), 10: call(1)})
	c := newController(t, cfg, Deps{Strategy: strat, Executor: newSim()})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	st := c.Status()
	assert.Equal(t, 1, st.Stats.Losses)
	assert.Equal(t, 2, st.Denied[string(risk.DailyLossCapHit)])
	assert.Equal(t, 12, st.Candles)
	assert.Equal(t, 1, st.Risk.TradesToday)
}

func TestTradeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.MaxTradesPerDay = 1
	candles := series(t0, 12, 0.0002)
	strat := script(candles, map[int]strategies.Signal{4: call(1), 8: call(1)})
	c := newController(t, cfg, Deps{Strategy: strat, Executor: newSim()})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	st := c.Status()
	assert.Equal(t, 1, st.Stats.Wins)
	assert.Equal(t, 1, st.Denied[string(risk.TradeLimitReached)])
}

func TestDayBoundaryResetsCounters(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.MaxTradesPerDay = 1
	start := time.Date(2024, 2, 5, 23, 50, 0, 0, time.UTC)
	candles := series(start, 20, 0.0002)
	// index 12 opens at 00:02 on the next day
	strat := script(candles, map[int]strategies.Signal{4: call(1), 12: call(1)})
	jr := &memJournal{}
	c := newController(t, cfg, Deps{Strategy: strat, Executor: newSim(), Journal: jr})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	assert.Len(t, jr.all(), 2)
	st := c.Status()
	assert.Empty(t, st.Denied)
	assert.Equal(t, 1, st.Risk.TradesToday)
	assert.Equal(t, time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC), st.Risk.Day)
}

func TestResetDay(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.MaxDailyLoss = decimal.NewFromInt(1)
	candles := series(t0, 10, -0.0002)
	book := risk.NewBook(time.UTC)
	c := newController(t, cfg, Deps{
		Strategy: script(candles, map[int]strategies.Signal{4: call(1)}),
		Executor: newSim(),
		Book:     book,
	})
	require.NoError(t, c.Run(context.Background(), feedOf(candles)))
	require.True(t, book.Snapshot().DailyLoss.Equal(decimal.NewFromInt(1)))

	c.ResetDay(t0)
	st := c.Status().Risk
	assert.True(t, st.DailyLoss.IsZero())
	assert.Zero(t, st.TradesToday)
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), st.Day)
}

func TestSharedBookAcrossSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.MaxTradesPerDay = 1
	book := risk.NewBook(time.UTC)

	eur := series(t0, 8, 0.0002)
	a := newController(t, cfg, Deps{Strategy: script(eur, map[int]strategies.Signal{4: call(1)}), Executor: newSim(), Book: book})
	require.NoError(t, a.Run(context.Background(), feedOf(eur)))

	cfg.Asset = "GBPUSD"
	gbp := series(t0, 8, 0.0002)
	b := newController(t, cfg, Deps{Strategy: script(gbp, map[int]strategies.Signal{4: call(1)}), Executor: newSim(), Book: book})
	require.NoError(t, b.Run(context.Background(), feedOf(gbp)))

	assert.Equal(t, 1, a.Status().Stats.Wins)
	assert.Equal(t, 1, b.Status().Denied[string(risk.TradeLimitReached)])
}

func TestSubmitRetries(t *testing.T) {
	cfg := testConfig()
	cfg.SubmitRetries = 3
	candles := series(t0, 8, 0.0001)
	exec := newStubExec()
	exec.fails = 2
	exec.settle = broker.Win
	c := newController(t, cfg, Deps{Strategy: script(candles, map[int]strategies.Signal{5: call(1)}), Executor: exec})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	assert.Equal(t, 3, exec.submits())
	assert.Equal(t, 1, c.Status().Stats.Wins)
}

func TestSubmitExhaustedReleasesReservation(t *testing.T) {
	cfg := testConfig()
	cfg.SubmitRetries = 2
	candles := series(t0, 8, 0.0001)
	exec := newStubExec()
	exec.fails = 100
	jr := &memJournal{}
	c := newController(t, cfg, Deps{Strategy: script(candles, map[int]strategies.Signal{5: call(1)}), Executor: exec, Journal: jr})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	st := c.Status()
	assert.Equal(t, 2, exec.submits())
	assert.Zero(t, st.Risk.TradesToday)
	assert.Zero(t, st.Stats.Trades())
	assert.Empty(t, jr.all())
	assert.Equal(t, 8, st.Candles)
}

func TestUnmatchedSettlementIgnored(t *testing.T) {
	candles := series(t0, 8, 0.0001)
	exec := newStubExec()
	exec.stray = true
	exec.settle = broker.Draw
	jr := &memJournal{}
	c := newController(t, testConfig(), Deps{Strategy: script(candles, map[int]strategies.Signal{5: put(1)}), Executor: exec, Journal: jr})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	trades := jr.all()
	require.Len(t, trades, 1)
	assert.Equal(t, "DRAW", trades[0].Result)
	assert.Equal(t, "stub-1", trades[0].TradeID)
	assert.True(t, c.Status().Risk.DailyLoss.IsZero())
}

func TestSettlementTimeoutIsUnknown(t *testing.T) {
	cfg := testConfig()
	cfg.Duration = 20 * time.Millisecond
	cfg.SettlementGrace = 10 * time.Millisecond
	candles := series(t0, 6, 0.0001)
	exec := newStubExec()
	jr := &memJournal{}
	c := newController(t, cfg, Deps{Strategy: script(candles, map[int]strategies.Signal{4: call(1)}), Executor: exec, Journal: jr})

	feed := make(chan market.Candle, len(candles))
	for _, cd := range candles {
		feed <- cd
	}
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), feed) }()

	require.Eventually(t, func() bool { return c.Status().Stats.Unknown == 1 }, 2*time.Second, 5*time.Millisecond)
	close(feed)
	require.NoError(t, <-done)

	st := c.Status()
	assert.Zero(t, st.Stats.Trades())
	assert.Zero(t, st.Stats.WinRate)
	assert.True(t, st.Risk.DailyLoss.IsZero())
	trades := jr.all()
	require.Len(t, trades, 1)
	assert.Equal(t, "UNKNOWN", trades[0].Result)
	assert.True(t, trades[0].Profit.IsZero())
}

func TestFeedCloseDrainsOpenOrder(t *testing.T) {
	candles := series(t0, 6, 0.0001)
	exec := newSim()
	c := newController(t, testConfig(), Deps{Strategy: script(candles, map[int]strategies.Signal{5: call(1)}), Executor: exec})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	st := c.Status()
	assert.Equal(t, Stopped, st.State)
	assert.Equal(t, 1, st.Stats.Unknown)
	assert.Zero(t, exec.OpenOrders())
	assert.True(t, exec.Balance().Equal(decimal.NewFromInt(1000)))
}

func TestContextCancelDuringWait(t *testing.T) {
	cfg := testConfig()
	cfg.Duration = time.Hour
	candles := series(t0, 6, 0.0001)
	c := newController(t, cfg, Deps{Strategy: script(candles, map[int]strategies.Signal{4: call(1)}), Executor: newStubExec()})

	feed := make(chan market.Candle, len(candles))
	for _, cd := range candles {
		feed <- cd
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, feed) }()

	require.Eventually(t, func() bool { return c.State() == Executing }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	st := c.Status()
	assert.Equal(t, Stopped, st.State)
	assert.Equal(t, 1, st.Stats.Unknown)
}

func TestStop(t *testing.T) {
	c := newController(t, testConfig(), Deps{Strategy: strategies.Noop{}, Executor: newSim()})
	feed := make(chan market.Candle)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), feed) }()

	for _, cd := range series(t0, 6, 0.0001) {
		feed <- cd
	}
	require.Eventually(t, func() bool { return c.State() == Monitoring }, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, Stopped, c.State())
	assert.ErrorIs(t, c.Run(context.Background(), feed), ErrStopped)
}

// gatedExec holds the first Submit until gate is closed.
type gatedExec struct {
	*stubExec
	gate chan struct{}
}

func (e *gatedExec) Submit(ctx context.Context, o broker.Order) (string, error) {
	if e.submits() == 0 {
		<-e.gate
	}
	return e.stubExec.Submit(ctx, o)
}

func TestStopDuringExecutionSettlesFirst(t *testing.T) {
	candles := series(t0, 20, 0.0001)
	every := make(map[int]strategies.Signal)
	for i := 4; i < len(candles); i++ {
		every[i] = call(1)
	}

	for trial := 0; trial < 20; trial++ {
		exec := &gatedExec{stubExec: newStubExec(), gate: make(chan struct{})}
		exec.settle = broker.Win
		js := &memJournal{}
		c := newController(t, testConfig(), Deps{Strategy: script(candles, every), Executor: exec, Journal: js})

		feed := make(chan market.Candle, len(candles))
		for _, cd := range candles[:5] {
			feed <- cd
		}
		done := make(chan error, 1)
		go func() { done <- c.Run(context.Background(), feed) }()

		require.Eventually(t, func() bool { return c.State() == Executing }, 2*time.Second, time.Millisecond)
		c.Stop()
		assert.True(t, c.Status().Stopping)
		for _, cd := range candles[5:] {
			feed <- cd
		}
		close(exec.gate)

		require.NoError(t, <-done)
		st := c.Status()
		require.Equal(t, 1, exec.submits(), "trial %d", trial)
		assert.Equal(t, 1, st.Stats.Wins)
		assert.Zero(t, st.Stats.Unknown)
		assert.Equal(t, Stopped, st.State)
		assert.False(t, st.Stopping)
		require.Len(t, js.all(), 1)
		assert.Equal(t, "WIN", js.all()[0].Result)
	}
}

func TestLiveFeedCloseDetection(t *testing.T) {
	cfg := testConfig()
	cfg.CompleteCandles = false
	candles := series(t0, 6, 0.0001)
	strat := script(candles, nil)
	c := newController(t, cfg, Deps{Strategy: strat, Executor: newSim()})

	// every interval is delivered twice, the second time with its final close
	feed := make(chan market.Candle, 2*len(candles))
	for _, cd := range candles {
		partial := cd
		partial.Close = cd.Open
		feed <- partial
		feed <- cd
	}
	close(feed)

	require.NoError(t, c.Run(context.Background(), feed))
	assert.Equal(t, 6, c.Status().Candles)
	assert.Equal(t, []time.Time{candles[4].Time, candles[5].Time}, strat.evaluated())
}

func TestTradingHoursFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Hours = market.Hours{Loc: time.UTC, Open: 14, Close: 16}
	candles := series(t0, 10, 0.0001)
	strat := script(candles, nil)
	c := newController(t, cfg, Deps{Strategy: strat, Executor: newSim()})

	require.NoError(t, c.Run(context.Background(), feedOf(candles)))
	assert.Empty(t, strat.evaluated())
	assert.Equal(t, 10, c.Status().Candles)
}

func TestConnectFailure(t *testing.T) {
	c := newController(t, testConfig(), Deps{
		Strategy:  strategies.Noop{},
		Executor:  newSim(),
		Connector: ConnectorFunc(func(context.Context) error { return errors.New("login rejected") }),
	})

	err := c.Run(context.Background(), feedOf(nil))
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.ErrorContains(t, err, "login rejected")
	assert.Equal(t, Idle, c.State())
}

func TestInvalidCandlesSkipped(t *testing.T) {
	candles := series(t0, 6, 0.0001)
	bad := candles[2]
	bad.High = bad.Low - 1
	feed := []market.Candle{candles[0], candles[1], bad, candles[3], candles[2], candles[4], candles[5]}

	c := newController(t, testConfig(), Deps{Strategy: strategies.Noop{}, Executor: newSim()})
	require.NoError(t, c.Run(context.Background(), feedOf(feed)))
	assert.Equal(t, 5, c.Status().Candles)
}

func TestStructuredEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	candles := series(t0, 10, 0.0002)
	c := newController(t, testConfig(), Deps{
		Strategy: script(candles, map[int]strategies.Signal{4: call(0.1), 6: call(1)}),
		Executor: newSim(),
		Logger:   zap.New(core),
	})
	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	deny := logs.FilterMessage("deny").All()
	require.Len(t, deny, 1)
	fields := deny[0].ContextMap()
	assert.Equal(t, "deny", fields["event"])
	assert.Equal(t, string(risk.WeakSignal), fields["reason"])
	assert.Equal(t, "EURUSD", fields["asset"])

	for _, event := range []string{"signal", "order", "outcome", "stats"} {
		assert.NotEmpty(t, logs.FilterField(zap.String("event", event)).All(), event)
	}
}

func TestReport(t *testing.T) {
	candles := series(t0, 10, 0.0002)
	c := newController(t, testConfig(), Deps{
		Strategy: script(candles, map[int]strategies.Signal{4: call(0.1), 6: call(1)}),
		Executor: newSim(),
	})
	require.NoError(t, c.Run(context.Background(), feedOf(candles)))

	r := c.Report()
	assert.Equal(t, "EURUSD", r.Asset)
	assert.Equal(t, "scripted", r.Strategy)
	assert.Equal(t, t0, r.Start)
	assert.Equal(t, candles[9].Time, r.End)
	assert.Equal(t, 10, r.Candles)
	assert.Equal(t, 2, r.Signals)
	assert.Equal(t, 1, r.Denied["WEAK_SIGNAL"])
	assert.Equal(t, 1, r.Stats.Wins)
}
