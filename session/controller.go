package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/metrics"
	"github.com/rustyeddy/tradebot/performance"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategies"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config is everything a session needs to know about the asset it trades.
type Config struct {
	Asset    string
	Amount   decimal.Decimal
	Duration time.Duration // option duration
	Mode     broker.Mode
	Interval time.Duration // candle timeframe; a candle closes at Time+Interval

	Indicators  indicators.Params
	Policy      risk.Policy
	RewardModel risk.RewardModel
	PayoutRate  float64
	CapPolicy   CapPolicy

	// Hours limits evaluation to a trading window. The zero value trades
	// around the clock.
	Hours market.Hours

	SettlementGrace  time.Duration
	SubmitRetries    int
	SubmitRetryDelay time.Duration

	// Window is how many closed candles are kept for indicators. It is
	// raised to at least Indicators.Lookback()+1.
	Window int

	// CompleteCandles marks feeds that deliver every candle exactly once and
	// already closed, such as CSV replay. Each candle is then treated as
	// closed on arrival instead of when the next one starts.
	CompleteCandles bool
}

func (c Config) Validate() error {
	if c.Asset == "" {
		return errors.New("asset is required")
	}
	if !c.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if c.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if _, err := broker.ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if err := c.Hours.Validate(); err != nil {
		return fmt.Errorf("hours: %w", err)
	}
	if c.SettlementGrace < 0 || c.SubmitRetryDelay < 0 {
		return errors.New("settlement grace and retry delay must not be negative")
	}
	return nil
}

// Connector establishes the connection to the trading platform.
type Connector interface {
	Connect(ctx context.Context) error
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) error

func (f ConnectorFunc) Connect(ctx context.Context) error { return f(ctx) }

// Deps are the collaborators of a Controller. Strategy and Executor are
// required; the rest default to private or no-op implementations.
type Deps struct {
	Strategy  strategies.Strategy
	Executor  broker.Executor
	Book      *risk.Book // share one book between sessions for account-wide limits
	Tracker   *performance.Tracker
	Journal   journal.Journal
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Connector Connector
}

// Status is a point-in-time view of a Controller.
type Status struct {
	Asset      string
	State      State
	Risk       risk.State
	Stats      performance.Stats
	Candles    int
	Signals    int
	Denied     map[string]int
	LastCandle time.Time

	// Stopping is set once Stop was called and the session has not yet
	// reached the monitoring boundary where it ends.
	Stopping bool
}

// Controller is the per-asset state machine. Run is not reentrant; the other
// methods are safe to call from any goroutine.
type Controller struct {
	cfg       Config
	strat     strategies.Strategy
	exec      broker.Executor
	book      *risk.Book
	tracker   *performance.Tracker
	journal   journal.Journal
	metrics   *metrics.Metrics
	log       *zap.Logger
	connector Connector

	window   *market.Window
	detector market.CloseDetector
	settled  time.Time // close time of the last settlement
	feedDone bool

	stopOnce sync.Once
	stop     chan struct{}

	mu      sync.Mutex
	state   State
	candles int
	signals int
	denied  map[string]int
	first   time.Time
	last    time.Time
}

func NewController(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session %s: %w", cfg.Asset, err)
	}
	if deps.Strategy == nil {
		return nil, fmt.Errorf("session %s: strategy is required", cfg.Asset)
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("session %s: executor is required", cfg.Asset)
	}
	if cfg.CapPolicy == "" {
		cfg.CapPolicy = CapHalt
	}
	if cfg.RewardModel == "" {
		cfg.RewardModel = risk.ModelBands
	}
	if cfg.SubmitRetries < 1 {
		cfg.SubmitRetries = 1
	}
	if need := cfg.Indicators.Lookback() + 1; cfg.Window < need {
		cfg.Window = need
	}

	if deps.Book == nil {
		deps.Book = risk.NewBook(cfg.Hours.Loc)
	}
	if deps.Tracker == nil {
		deps.Tracker = performance.NewTracker()
	}
	if deps.Journal == nil {
		deps.Journal = journal.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Connector == nil {
		deps.Connector = ConnectorFunc(func(context.Context) error { return nil })
	}

	return &Controller{
		cfg:       cfg,
		strat:     deps.Strategy,
		exec:      deps.Executor,
		book:      deps.Book,
		tracker:   deps.Tracker,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		log:       deps.Logger.Named("session").With(zap.String("asset", cfg.Asset)),
		connector: deps.Connector,
		window:    market.NewWindow(cfg.Window),
		stop:      make(chan struct{}),
		denied:    make(map[string]int),
	}, nil
}

// State returns the current state.
func (s *Controller) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Controller) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev == st {
		return
	}
	s.metrics.SetState(s.cfg.Asset, int(st))
	s.log.Debug("state", zap.String("event", "state"),
		zap.Stringer("from", prev), zap.Stringer("to", st))
}

// Connect moves an idle session to CONNECTED.
func (s *Controller) Connect(ctx context.Context) error {
	switch st := s.State(); st {
	case Idle:
	case Stopped:
		return ErrStopped
	default:
		return nil
	}
	if err := s.connector.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w: %w", s.cfg.Asset, ErrConnectivity, err)
	}
	s.log.Info("connected", zap.String("mode", string(s.cfg.Mode)))
	s.setState(Connected)
	return nil
}

// Backfill loads historical closed candles so indicators are ready before
// the first live candle. Invalid and out of order candles are skipped.
func (s *Controller) Backfill(candles []market.Candle) error {
	switch s.State() {
	case Idle:
		return ErrNotConnected
	case Stopped:
		return ErrStopped
	}
	for _, c := range candles {
		s.ingest(c)
	}
	s.log.Info("backfilled",
		zap.Int("candles", len(candles)),
		zap.Int("window", s.window.Len()))
	s.updateWarmup()
	return nil
}

// ResetDay clears the daily risk counters for day.
func (s *Controller) ResetDay(day time.Time) {
	s.book.ResetDay(day)
	s.metrics.SetDailyLoss(s.cfg.Asset, 0)
	s.log.Info("day reset", zap.Time("day", risk.DayOf(day, s.book.Location())))
}

// Stop asks the session to finish. It is honored the next time the session
// is waiting for a candle; an order in flight settles first.
func (s *Controller) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Controller) stopRequested() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Controller) Status() Status {
	s.mu.Lock()
	denied := make(map[string]int, len(s.denied))
	for k, v := range s.denied {
		denied[k] = v
	}
	st := Status{
		Asset:      s.cfg.Asset,
		State:      s.state,
		Candles:    s.candles,
		Signals:    s.signals,
		Denied:     denied,
		LastCandle: s.last,
	}
	s.mu.Unlock()

	st.Risk = s.book.Snapshot()
	st.Stats = s.tracker.Stats()
	st.Stopping = st.State != Stopped && s.stopRequested()
	return st
}

// Report summarizes the session so far.
func (s *Controller) Report() performance.Report {
	st := s.Status()
	s.mu.Lock()
	start, end := s.first, s.last
	s.mu.Unlock()
	return performance.Report{
		Asset:    s.cfg.Asset,
		Strategy: s.strat.Name(),
		Mode:     string(s.cfg.Mode),
		Start:    start,
		End:      end,
		Candles:  st.Candles,
		Signals:  st.Signals,
		Denied:   st.Denied,
		Stats:    st.Stats,
	}
}

// Run consumes raw candles until the feed closes, Stop is called, the daily
// loss cap halts the session, or ctx is done. An idle session is connected
// first. Closing the feed is a normal end and returns nil.
func (s *Controller) Run(ctx context.Context, candles <-chan market.Candle) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	if s.State() == Connected {
		s.updateWarmup()
	}
	defer s.setState(Stopped)

	for {
		// a pending stop wins over candles that are already queued
		if s.stopRequested() {
			s.log.Info("session stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			s.log.Info("session cancelled", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-s.stop:
			s.log.Info("session stopped")
			return nil
		case raw, ok := <-candles:
			if !ok {
				s.feedDone = true
				if c, ok := s.detector.Flush(); ok && !s.cfg.CompleteCandles {
					if err := s.onClosed(ctx, c, nil); err != nil {
						return s.finish(err)
					}
				}
				s.log.Info("feed closed")
				return nil
			}
			c, closed := s.closed(raw)
			if !closed {
				continue
			}
			if err := s.onClosed(ctx, c, candles); err != nil {
				return s.finish(err)
			}
			if s.feedDone {
				s.log.Info("feed closed")
				return nil
			}
		}
	}
}

var errHalt = errors.New("daily loss cap halt")

func (s *Controller) finish(err error) error {
	if errors.Is(err, errHalt) {
		s.log.Warn("session halted", zap.String("reason", string(risk.DailyLossCapHit)))
		return nil
	}
	return err
}

func (s *Controller) closed(raw market.Candle) (market.Candle, bool) {
	if s.cfg.CompleteCandles {
		return raw, true
	}
	return s.detector.Observe(raw)
}

// ingest records a closed candle without evaluating it. It reports whether
// the candle was accepted.
func (s *Controller) ingest(c market.Candle) bool {
	if err := c.Valid(); err != nil {
		s.log.Warn("invalid candle skipped", zap.Time("time", c.Time), zap.Error(err))
		return false
	}
	if err := s.window.Push(c); err != nil {
		s.log.Warn("candle skipped", zap.Error(err))
		return false
	}
	if o, ok := s.exec.(broker.PriceObserver); ok {
		o.Observe(c)
	}

	s.mu.Lock()
	s.candles++
	if s.first.IsZero() {
		s.first = c.Time
	}
	s.last = c.Time
	s.mu.Unlock()

	s.metrics.CandleClosed(s.cfg.Asset)
	if s.book.Roll(c.Time) {
		s.metrics.SetDailyLoss(s.cfg.Asset, 0)
		s.log.Info("day reset", zap.Time("day", risk.DayOf(c.Time, s.book.Location())))
	}
	return true
}

func (s *Controller) updateWarmup() {
	if s.window.Len() >= s.cfg.Indicators.Lookback()+1 {
		s.setState(Monitoring)
		return
	}
	s.setState(WarmingUp)
}

func (s *Controller) closeTime(c market.Candle) time.Time {
	return c.Time.Add(s.cfg.Interval)
}

// onClosed handles one closed candle in the monitoring loop. feed is the
// live candle channel, read while an order waits for its settlement.
func (s *Controller) onClosed(ctx context.Context, c market.Candle, feed <-chan market.Candle) error {
	if !s.ingest(c) {
		return nil
	}
	if s.State() == WarmingUp {
		s.updateWarmup()
		if s.State() == WarmingUp {
			s.log.Debug("warming up",
				zap.Int("have", s.window.Len()),
				zap.Int("need", s.cfg.Indicators.Lookback()+1))
			return nil
		}
	}
	if !s.closeTime(c).After(s.settled) {
		return nil
	}
	if !s.cfg.Hours.Contains(s.closeTime(c)) {
		s.log.Debug("outside trading hours", zap.Time("time", c.Time))
		return nil
	}
	if s.stopRequested() {
		return nil
	}
	return s.evaluate(ctx, c, feed)
}

func (s *Controller) evaluate(ctx context.Context, c market.Candle, feed <-chan market.Candle) error {
	cur, err := indicators.Compute(s.window.Candles(), s.cfg.Indicators)
	if err != nil {
		s.log.Warn("indicators", zap.Error(err))
		return nil
	}
	prev, err := indicators.Compute(s.window.Prev(), s.cfg.Indicators)
	if err != nil {
		s.log.Warn("previous indicators", zap.Error(err))
		return nil
	}

	s.setState(Evaluating)
	sig := s.strat.Evaluate(c, &cur, &prev)
	if !sig.Actionable() {
		s.setState(Monitoring)
		return nil
	}

	s.mu.Lock()
	s.signals++
	s.mu.Unlock()
	s.metrics.Signal(s.cfg.Asset, string(sig.Direction))
	s.log.Info("signal",
		zap.String("event", "signal"),
		zap.String("direction", string(sig.Direction)),
		zap.Float64("strength", sig.Strength),
		zap.Float64("price", c.Close),
		zap.String("reasons", sig.Summary()),
	)

	amount, _ := s.cfg.Amount.Float64()
	p := risk.Propose(s.cfg.RewardModel, sig.Direction, c.Close, cur.Bands, amount, s.cfg.PayoutRate)
	d := s.book.Reserve(sig, p, s.cfg.Policy)
	if !d.Allowed {
		s.onDenied(d)
		if d.Reason == risk.DailyLossCapHit && s.cfg.CapPolicy == CapHalt {
			return errHalt
		}
		s.setState(Monitoring)
		return nil
	}

	s.setState(Executing)
	err = s.execute(ctx, c, sig, cur, d, feed)
	s.setState(Monitoring)
	return err
}

func (s *Controller) onDenied(d risk.Decision) {
	code := string(d.Reason)
	s.mu.Lock()
	s.denied[code]++
	s.mu.Unlock()
	s.metrics.Denied(s.cfg.Asset, code)
	s.log.Info("deny",
		zap.String("event", "deny"),
		zap.String("reason", code),
		zap.String("detail", d.Msg),
		zap.Float64("risk_reward", d.RiskReward),
	)
}
