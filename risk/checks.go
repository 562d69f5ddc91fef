package risk

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/tradebot/strategies"
)

// Code identifies why a trade was denied.
type Code string

const (
	TradeLimitReached Code = "TRADE_LIMIT_REACHED"
	DailyLossCapHit   Code = "DAILY_LOSS_CAP_HIT"
	RiskRewardTooLow  Code = "RISK_REWARD_TOO_LOW"
	WeakSignal        Code = "WEAK_SIGNAL"
	NoSignal          Code = "NO_SIGNAL"
)

var (
	ErrTradeLimitReached = errors.New("trade limit reached")
	ErrDailyLossCapHit   = errors.New("daily loss cap hit")
	ErrRiskRewardTooLow  = errors.New("risk-reward too low")
	ErrWeakSignal        = errors.New("weak signal")
	ErrNoSignal          = errors.New("no signal")
)

var codeErrs = map[Code]error{
	TradeLimitReached: ErrTradeLimitReached,
	DailyLossCapHit:   ErrDailyLossCapHit,
	RiskRewardTooLow:  ErrRiskRewardTooLow,
	WeakSignal:        ErrWeakSignal,
	NoSignal:          ErrNoSignal,
}

// DeniedError reports a deny decision as an error.
type DeniedError struct {
	Code Code
	Msg  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("trade denied: %s: %s", e.Code, e.Msg)
}

func (e *DeniedError) Unwrap() error {
	return codeErrs[e.Code]
}

// Decision is the result of gating one candidate trade.
type Decision struct {
	Allowed    bool
	Reason     Code
	Msg        string
	RiskReward float64
}

// Err is nil for an allowed trade, otherwise a *DeniedError.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Code: d.Reason, Msg: d.Msg}
}

func deny(code Code, rr float64, format string, args ...any) Decision {
	return Decision{Reason: code, Msg: fmt.Sprintf(format, args...), RiskReward: rr}
}

// Evaluate gates a candidate trade. Checks run cheapest first and the first
// failure decides the reason. It never mutates st.
func Evaluate(sig strategies.Signal, p Proposal, st State, pol Policy) Decision {
	rr := p.RR()

	if !sig.Actionable() {
		return deny(NoSignal, rr, "signal direction %s", sig.Direction)
	}
	if st.TradesToday >= pol.MaxTradesPerDay {
		return deny(TradeLimitReached, rr, "trades today %d >= max %d", st.TradesToday, pol.MaxTradesPerDay)
	}
	if st.DailyLoss.GreaterThanOrEqual(pol.MaxDailyLoss) {
		return deny(DailyLossCapHit, rr, "daily loss %s >= max %s", st.DailyLoss.StringFixed(2), pol.MaxDailyLoss.StringFixed(2))
	}
	if rr < pol.MinRiskReward {
		return deny(RiskRewardTooLow, rr, "risk-reward %.2f below minimum %.2f", rr, pol.MinRiskReward)
	}
	if sig.Strength < pol.MinSignalStrength {
		return deny(WeakSignal, rr, "strength %.2f below minimum %.2f", sig.Strength, pol.MinSignalStrength)
	}
	return Decision{Allowed: true, RiskReward: rr}
}
