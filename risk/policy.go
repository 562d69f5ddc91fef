package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy holds the limits every candidate trade is gated against.
type Policy struct {
	// Gross realized losses allowed per day before trading halts.
	MaxDailyLoss      decimal.Decimal
	MaxTradesPerDay   int
	MinRiskReward     float64
	MinSignalStrength float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxDailyLoss:      decimal.NewFromInt(5),
		MaxTradesPerDay:   10,
		MinRiskReward:     2.0,
		MinSignalStrength: 0.8,
	}
}

func (p Policy) Validate() error {
	if p.MinRiskReward <= 0 {
		return fmt.Errorf("min_risk_reward must be positive")
	}
	if p.MaxTradesPerDay < 0 {
		return fmt.Errorf("max_trades_per_day must not be negative")
	}
	if p.MaxDailyLoss.IsNegative() {
		return fmt.Errorf("max_daily_loss must not be negative")
	}
	if p.MinSignalStrength < 0 || p.MinSignalStrength > 1 {
		return fmt.Errorf("min_signal_strength must be between 0 and 1")
	}
	return nil
}
