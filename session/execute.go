package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/indicators"
	"github.com/rustyeddy/tradebot/journal"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/risk"
	"github.com/rustyeddy/tradebot/strategies"
	"go.uber.org/zap"
)

// execute places the order for an allowed signal and blocks until it
// settles. Candles that arrive in the meantime are ingested but never
// evaluated.
func (s *Controller) execute(ctx context.Context, c market.Candle, sig strategies.Signal, cur indicators.Snapshot, d risk.Decision, feed <-chan market.Candle) error {
	order := broker.Order{
		Asset:      s.cfg.Asset,
		Direction:  sig.Direction,
		Amount:     s.cfg.Amount,
		Duration:   s.cfg.Duration,
		OpenedAt:   s.closeTime(c),
		Mode:       s.cfg.Mode,
		EntryPrice: c.Close,
	}

	id, err := s.submit(ctx, order)
	if err != nil {
		s.book.Release()
		s.metrics.SubmitFailed(s.cfg.Asset)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Error("order rejected", zap.String("direction", string(order.Direction)), zap.Error(err))
		return nil
	}
	order.ID = id

	s.metrics.OrderPlaced(s.cfg.Asset, string(order.Mode))
	s.log.Info("order",
		zap.String("event", "order"),
		zap.String("trade_id", id),
		zap.String("direction", string(order.Direction)),
		zap.String("amount", order.Amount.StringFixed(2)),
		zap.Float64("entry", order.EntryPrice),
		zap.Float64("risk_reward", d.RiskReward),
		zap.Time("expiry", order.Expiry()),
	)

	started := time.Now()
	out, waitErr := s.await(ctx, order, feed)
	s.record(out, sig, cur, time.Since(started))

	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("settlement not observed",
			zap.String("trade_id", id),
			zap.Error(waitErr))
	}
	return nil
}

// submit places o, retrying transient failures.
func (s *Controller) submit(ctx context.Context, o broker.Order) (string, error) {
	var err error
	for attempt := 1; attempt <= s.cfg.SubmitRetries; attempt++ {
		var id string
		id, err = s.exec.Submit(ctx, o)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.log.Warn("submit failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.SubmitRetries),
			zap.Error(err))
		if attempt == s.cfg.SubmitRetries {
			break
		}

		t := time.NewTimer(s.cfg.SubmitRetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return "", fmt.Errorf("submit %s after %d attempts: %w: %w", o.Asset, s.cfg.SubmitRetries, ErrConnectivity, err)
}

// await waits for the settlement of o. It always returns an outcome; when
// the settlement was not observed the outcome is Unknown and the error says
// why.
func (s *Controller) await(ctx context.Context, o broker.Order, feed <-chan market.Candle) (broker.Outcome, error) {
	unknown := broker.Outcome{Order: o, Result: broker.Unknown, ClosedAt: o.Expiry()}
	settlements := s.exec.Settlements()

	drained := false
	drain := func() {
		if d, ok := s.exec.(broker.Drainer); ok && !drained {
			drained = true
			d.Drain()
		}
	}
	if s.feedDone {
		feed = nil
		drain()
	}

	timer := time.NewTimer(o.Duration + s.cfg.SettlementGrace)
	defer timer.Stop()

	for {
		// Settlements published while a candle was observed are picked up
		// before the next candle is read.
		select {
		case st, ok := <-settlements:
			if out, done, err := s.match(o, st, ok); done {
				return out, err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return unknown, ctx.Err()
		case <-timer.C:
			return unknown, fmt.Errorf("trade %s: %w", o.ID, ErrSettlementTimeout)
		case st, ok := <-settlements:
			if out, done, err := s.match(o, st, ok); done {
				return out, err
			}
		case raw, ok := <-feed:
			if !ok {
				s.feedDone = true
				feed = nil
				if c, ok := s.detector.Flush(); ok && !s.cfg.CompleteCandles {
					s.ingest(c)
				}
				drain()
				continue
			}
			if c, closed := s.closed(raw); closed {
				s.ingest(c)
			}
		}
	}
}

func (s *Controller) match(o broker.Order, st broker.Settlement, ok bool) (broker.Outcome, bool, error) {
	if !ok {
		return broker.Outcome{Order: o, Result: broker.Unknown, ClosedAt: o.Expiry()}, true,
			fmt.Errorf("settlement stream closed: %w", ErrConnectivity)
	}
	if st.OrderID != o.ID {
		s.log.Warn("unmatched settlement dropped", zap.String("trade_id", st.OrderID))
		return broker.Outcome{}, false, nil
	}
	out := broker.NewOutcome(o, st)
	if out.ClosedAt.IsZero() {
		out.ClosedAt = o.Expiry()
	}
	return out, true, nil
}

// record books an outcome everywhere it is tracked. Journal failures are
// logged and never stop the session.
func (s *Controller) record(out broker.Outcome, sig strategies.Signal, cur indicators.Snapshot, wait time.Duration) {
	s.book.RecordOutcome(out)
	stats := s.tracker.Record(out)
	if out.Result != broker.Unknown && out.ClosedAt.After(s.settled) {
		s.settled = out.ClosedAt
	}

	rec := journal.NewTradeRecord(out, sig.Strength, summarize(cur), sig.Summary())
	if err := s.journal.RecordTrade(rec); err != nil {
		s.log.Error("journal trade", zap.String("trade_id", out.Order.ID), zap.Error(err))
	}
	if err := s.journal.RecordStats(journal.NewStatsSnapshot(out.ClosedAt, s.cfg.Asset, stats)); err != nil {
		s.log.Error("journal stats", zap.Error(err))
	}

	profit, _ := stats.TotalProfit.Float64()
	loss, _ := s.book.Snapshot().DailyLoss.Float64()
	s.metrics.Outcome(s.cfg.Asset, string(out.Result), wait, profit, stats.WinRate, loss)

	s.log.Info("outcome",
		zap.String("event", "outcome"),
		zap.String("trade_id", out.Order.ID),
		zap.String("result", string(out.Result)),
		zap.String("profit", out.Profit.StringFixed(2)),
		zap.Float64("exit", out.ExitPrice),
	)
	s.log.Info("stats",
		zap.String("event", "stats"),
		zap.Int("wins", stats.Wins),
		zap.Int("losses", stats.Losses),
		zap.Int("draws", stats.Draws),
		zap.Int("unknown", stats.Unknown),
		zap.Float64("win_rate", stats.WinRate),
		zap.String("total_profit", stats.TotalProfit.StringFixed(2)),
	)
}

func summarize(s indicators.Snapshot) string {
	return fmt.Sprintf("rsi=%.2f ema_fast=%.5f ema_slow=%.5f bb=%.5f/%.5f/%.5f vol=%s",
		s.RSI, s.EMAFast, s.EMASlow, s.Bands.Lower, s.Bands.Middle, s.Bands.Upper, s.Volume)
}
